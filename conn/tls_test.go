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

package conn_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/nabbar/goconn/conn"
	"github.com/nabbar/goconn/loop"
)

func selfSignedCert() tls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).NotTo(HaveOccurred())

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "goconn-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func pumpUntil(lp loop.Loop, done func() bool, max time.Duration) {
	deadline := time.Now().Add(max)
	for time.Now().Before(deadline) {
		if done() {
			return
		}
		_, _ = lp.Wait(20)
	}
}

var _ = Describe("tlsConn", func() {
	It("completes a handshake and exchanges data over a socketpair", func() {
		cert := selfSignedCert()
		serverCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		clientCfg := &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}

		lp, err := loop.New()
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = lp.Close() }()

		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		Expect(err).NotTo(HaveOccurred())

		var serverUp, clientUp bool

		serverConn, err := conn.NewTLSFromFd(lp, fds[0], serverCfg, true, func(c conn.Conn) { serverUp = true })
		Expect(err).NotTo(HaveOccurred())
		clientConn, err := conn.NewTLSFromFd(lp, fds[1], clientCfg, false, func(c conn.Conn) { clientUp = true })
		Expect(err).NotTo(HaveOccurred())

		pumpUntil(lp, func() bool { return serverUp && clientUp }, 5*time.Second)

		Expect(serverUp).To(BeTrue())
		Expect(clientUp).To(BeTrue())
		Expect(serverConn.State()).To(Equal(conn.StateConnected))
		Expect(clientConn.State()).To(Equal(conn.StateConnected))

		var gotRequest bool
		var request []byte
		serverConn.SetReadHandler(func(c conn.Conn) {
			buf := make([]byte, 64)
			n, err := c.Read(buf)
			if err == nil {
				request = append(request, buf[:n]...)
				gotRequest = true
			}
		})

		n, err := clientConn.Write([]byte("ping"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(4))

		pumpUntil(lp, func() bool { return gotRequest }, 5*time.Second)
		Expect(string(request)).To(Equal("ping"))

		Expect(serverConn.Close()).To(Succeed())
		Expect(clientConn.Close()).To(Succeed())
	})

	It("keeps Sync* safe until a handler is installed, then accepts writes in a short, bounded prefix", func() {
		cert := selfSignedCert()
		serverCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		clientCfg := &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}

		lp, err := loop.New()
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = lp.Close() }()

		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		Expect(err).NotTo(HaveOccurred())

		var serverUp, clientUp bool
		serverConn, err := conn.NewTLSFromFd(lp, fds[0], serverCfg, true, func(c conn.Conn) { serverUp = true })
		Expect(err).NotTo(HaveOccurred())
		clientConn, err := conn.NewTLSFromFd(lp, fds[1], clientCfg, false, func(c conn.Conn) { clientUp = true })
		Expect(err).NotTo(HaveOccurred())

		pumpUntil(lp, func() bool { return serverUp && clientUp }, 5*time.Second)
		Expect(serverUp).To(BeTrue())
		Expect(clientUp).To(BeTrue())

		// Before any SetReadHandler/SetWriteHandler call, the async pumps have
		// not started: a bootstrap exchange over Sync* is not racing anything.
		go func() {
			_, _ = serverConn.SyncWrite([]byte("hello"))
		}()
		got := make([]byte, 5)
		n, err := clientConn.SyncRead(got)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got[:n])).To(Equal("hello"))

		// Installing a handler now engages the async pumps.
		clientConn.SetReadHandler(func(conn.Conn) {})

		// A write of twice the outbound byte budget is accepted only up to
		// the budget: the call returns a nonzero count shorter than requested.
		big := make([]byte, 128*1024)
		n, err = clientConn.Write(big)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">", 0))
		Expect(n).To(BeNumerically("<", len(big)))

		Expect(serverConn.Close()).To(Succeed())
		Expect(clientConn.Close()).To(Succeed())
	})
})
