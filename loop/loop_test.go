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

package loop_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/nabbar/goconn/loop"
)

func TestLoop(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "loop suite")
}

func socketpair() (a, b int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	Expect(err).NotTo(HaveOccurred())
	return fds[0], fds[1]
}

var _ = Describe("epollLoop", func() {
	var (
		lp     loop.Loop
		a, b   int
	)

	BeforeEach(func() {
		var err error
		lp, err = loop.New()
		Expect(err).NotTo(HaveOccurred())
		a, b = socketpair()
	})

	AfterEach(func() {
		_ = lp.Close()
		_ = unix.Close(a)
		_ = unix.Close(b)
	})

	It("fires the readable callback once data arrives", func() {
		var gotMask loop.Mask
		err := lp.CreateFileEvent(a, loop.Readable, func(fd int, mask loop.Mask) {
			gotMask = mask
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = unix.Write(b, []byte("hi"))
		Expect(err).NotTo(HaveOccurred())

		n, err := lp.Wait(1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(gotMask & loop.Readable).NotTo(BeZero())
	})

	It("reports the registered mask via FileEvents", func() {
		Expect(lp.FileEvents(a)).To(Equal(loop.Mask(0)))

		_ = lp.CreateFileEvent(a, loop.Readable, func(int, loop.Mask) {})
		Expect(lp.FileEvents(a)).To(Equal(loop.Readable))

		_ = lp.CreateFileEvent(a, loop.Writable, func(int, loop.Mask) {})
		Expect(lp.FileEvents(a)).To(Equal(loop.Readable | loop.Writable))
	})

	It("stops dispatching a direction once deleted", func() {
		calls := 0
		_ = lp.CreateFileEvent(a, loop.Readable, func(int, loop.Mask) { calls++ })
		lp.DeleteFileEvent(a, loop.Readable)
		Expect(lp.FileEvents(a)).To(Equal(loop.Mask(0)))

		_, _ = unix.Write(b, []byte("x"))
		n, err := lp.Wait(100)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
		Expect(calls).To(Equal(0))
	})

	It("times out with zero events when nothing is ready", func() {
		_ = lp.CreateFileEvent(a, loop.Readable, func(int, loop.Mask) {})
		n, err := lp.Wait(50)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})
})
