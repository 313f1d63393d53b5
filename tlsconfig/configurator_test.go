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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/goconn/tlsconfig"
)

func TestTLSConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "tlsconfig suite")
}

// writeSelfSignedPair writes a fresh self-signed cert/key PEM pair under dir
// and returns their paths.
func writeSelfSignedPair(dir string) (certPath, keyPath string) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).NotTo(HaveOccurred())

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "goconn-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	Expect(err).NotTo(HaveOccurred())
	Expect(pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der})).To(Succeed())
	Expect(certOut.Close()).To(Succeed())

	keyBytes, err := x509.MarshalECPrivateKey(key)
	Expect(err).NotTo(HaveOccurred())
	keyOut, err := os.Create(keyPath)
	Expect(err).NotTo(HaveOccurred())
	Expect(pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})).To(Succeed())
	Expect(keyOut.Close()).To(Succeed())

	return certPath, keyPath
}

var _ = Describe("Config.Validate", func() {
	It("accepts an empty config", func() {
		Expect(tlsconfig.Config{}.Validate()).To(Succeed())
	})

	It("rejects a key file without a cert file", func() {
		cfg := tlsconfig.Config{KeyFile: "key.pem"}
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects an unrecognized cipher", func() {
		cfg := tlsconfig.Config{CipherList: []tlsconfig.Cipher{"not-a-real-cipher"}}
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("Configurator", func() {
	It("swaps in a freshly built config on success", func() {
		dir := GinkgoT().TempDir()
		certPath, keyPath := writeSelfSignedPair(dir)

		k := tlsconfig.NewConfigurator(nil)
		Expect(k.Current()).To(BeNil())

		err := k.Configure(tlsconfig.Config{CertFile: certPath, KeyFile: keyPath})
		Expect(err).NotTo(HaveOccurred())
		Expect(k.Current()).NotTo(BeNil())
		Expect(k.Current().Certificates).To(HaveLen(1))
	})

	It("leaves the previous config untouched when the new one fails to build", func() {
		dir := GinkgoT().TempDir()
		certPath, keyPath := writeSelfSignedPair(dir)

		k := tlsconfig.NewConfigurator(nil)
		Expect(k.Configure(tlsconfig.Config{CertFile: certPath, KeyFile: keyPath})).To(Succeed())
		first := k.Current()

		err := k.Configure(tlsconfig.Config{CertFile: "/does/not/exist.pem", KeyFile: "/does/not/exist-key.pem"})
		Expect(err).To(HaveOccurred())
		Expect(k.Current()).To(BeIdenticalTo(first))
	})

	It("rejects a config with no certificate at all", func() {
		k := tlsconfig.NewConfigurator(nil)
		err := k.Configure(tlsconfig.Config{})
		Expect(err).To(HaveOccurred())
		Expect(k.Current()).To(BeNil())
	})

	It("defaults an unset ClientAuth to requiring and verifying a client cert", func() {
		dir := GinkgoT().TempDir()
		certPath, keyPath := writeSelfSignedPair(dir)

		k := tlsconfig.NewConfigurator(nil)
		Expect(k.Configure(tlsconfig.Config{CertFile: certPath, KeyFile: keyPath})).To(Succeed())
		Expect(k.Current().ClientAuth.String()).To(ContainSubstring("RequireAndVerify"))
	})

	It("derives a per-accepted override without touching the shared config", func() {
		dir := GinkgoT().TempDir()
		certPath, keyPath := writeSelfSignedPair(dir)

		k := tlsconfig.NewConfigurator(nil)
		Expect(k.Configure(tlsconfig.Config{CertFile: certPath, KeyFile: keyPath})).To(Succeed())

		// The base config defaults to requiring a verified client cert; a
		// specific accepted connection can still relax that to optional
		// without mutating the shared live config.
		relaxed := k.ForAccepted(false)
		Expect(relaxed.ClientAuth.String()).NotTo(ContainSubstring("RequireAndVerify"))
		Expect(k.Current().ClientAuth.String()).To(ContainSubstring("RequireAndVerify"))
	})
})
