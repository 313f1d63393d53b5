/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package tlsconfig_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/goconn/tlsconfig"
)

var _ = Describe("LoadConfig", func() {
	It("decodes a YAML file into a Config", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "tls.yaml")
		content := "cert_file: /etc/goconn/cert.pem\n" +
			"key_file: /etc/goconn/key.pem\n" +
			"client_auth: require\n" +
			"cipher_list:\n  - ECDHE-RSA-AES128-GCM-SHA256\n"
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())

		cfg, err := tlsconfig.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.CertFile).To(Equal("/etc/goconn/cert.pem"))
		Expect(cfg.KeyFile).To(Equal("/etc/goconn/key.pem"))
		Expect(cfg.ClientAuth).To(Equal(tlsconfig.ClientAuthRequireAny))
		Expect(cfg.CipherList).To(ConsistOf(tlsconfig.CipherECDHE_RSA_AES128_GCM_SHA256))
	})

	It("fails when the file does not exist", func() {
		_, err := tlsconfig.LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})
