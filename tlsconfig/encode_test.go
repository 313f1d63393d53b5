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
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/nabbar/goconn/tlsconfig"
)

var _ = Describe("enum encoding", func() {
	It("round-trips through JSON", func() {
		c := tlsconfig.CipherECDHE_RSA_AES128_GCM_SHA256
		b, err := json.Marshal(c)
		Expect(err).NotTo(HaveOccurred())

		var out tlsconfig.Cipher
		Expect(json.Unmarshal(b, &out)).To(Succeed())
		Expect(out).To(Equal(c))
	})

	It("round-trips through YAML", func() {
		c := tlsconfig.CurveX25519
		b, err := yaml.Marshal(c)
		Expect(err).NotTo(HaveOccurred())

		var out tlsconfig.Curves
		Expect(yaml.Unmarshal(b, &out)).To(Succeed())
		Expect(out).To(Equal(c))
	})

	It("round-trips through CBOR", func() {
		c := tlsconfig.VersionTLS13
		b, err := cbor.Marshal(c)
		Expect(err).NotTo(HaveOccurred())

		var out tlsconfig.Version
		Expect(cbor.Unmarshal(b, &out)).To(Succeed())
		Expect(out).To(Equal(c))
	})
})
