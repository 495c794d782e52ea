package forwarder_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yunbug/forward-optimal/internal/forwarder"
	"github.com/yunbug/forward-optimal/internal/proxyproto"
	"github.com/yunbug/forward-optimal/internal/state"
	"github.com/yunbug/forward-optimal/internal/target"
)

func TestForwarder(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Forwarder Suite")
}

// startEchoUpstream starts a TCP server that echoes every byte back.
func startEchoUpstream() net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	return ln
}

// startRecordingUpstream starts a TCP server that reads each connection to
// EOF and delivers the received bytes on the returned channel.
func startRecordingUpstream() (net.Listener, <-chan []byte) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	received := make(chan []byte, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				data, _ := io.ReadAll(c)
				received <- data
			}(conn)
		}
	}()

	return ln, received
}

func bestFor(name string, ln net.Listener) target.Best {
	return target.Best{
		Name:  name,
		Addr:  netip.MustParseAddrPort(ln.Addr().String()),
		Score: 10 * time.Millisecond,
	}
}

var _ = Describe("Server", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		cell   *state.Cell
		log    *slog.Logger
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		cell = state.NewCell()
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
	})

	AfterEach(func() {
		cancel()
	})

	startServer := func(tagging bool) *forwarder.Server {
		srv := forwarder.New(forwarder.Config{
			BindAddr:      "127.0.0.1:0",
			HeaderTagging: tagging,
			Logger:        log,
		}, cell, nil)

		go srv.Listen(ctx)

		Eventually(srv.Addr).ShouldNot(BeNil())
		return srv
	}

	It("should fail to listen on an invalid address", func() {
		srv := forwarder.New(forwarder.Config{
			BindAddr: "256.256.256.256:1",
			Logger:   log,
		}, cell, nil)

		Expect(srv.Listen(ctx)).To(HaveOccurred())
	})

	Context("without a best target", func() {
		It("should drop the connection with no bytes sent", func() {
			srv := startServer(false)

			conn, err := net.Dial("tcp", srv.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			buf := make([]byte, 1)
			n, err := conn.Read(buf)
			Expect(n).To(Equal(0))
			Expect(err).To(Equal(io.EOF))
		})
	})

	Context("with a best target set", func() {
		It("should pass client bytes through unmodified", func() {
			upstream := startEchoUpstream()
			defer upstream.Close()

			cell.Replace(bestFor("echo", upstream))
			srv := startServer(false)

			conn, err := net.Dial("tcp", srv.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			payload := []byte("hello through the forwarder")
			_, err = conn.Write(payload)
			Expect(err).NotTo(HaveOccurred())
			conn.(*net.TCPConn).CloseWrite()

			got, err := io.ReadAll(conn)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(payload))
		})

		It("should relay larger transfers intact in both directions", func() {
			upstream := startEchoUpstream()
			defer upstream.Close()

			cell.Replace(bestFor("echo", upstream))
			srv := startServer(false)

			conn, err := net.Dial("tcp", srv.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			payload := make([]byte, 256*1024)
			for i := range payload {
				payload[i] = byte(i)
			}

			go func() {
				conn.Write(payload)
				conn.(*net.TCPConn).CloseWrite()
			}()

			got, err := io.ReadAll(conn)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(payload))
		})

		It("should route each connection to the current snapshot", func() {
			first, firstReceived := startRecordingUpstream()
			defer first.Close()
			second, secondReceived := startRecordingUpstream()
			defer second.Close()

			cell.Replace(bestFor("first", first))
			srv := startServer(false)

			conn, err := net.Dial("tcp", srv.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			conn.Write([]byte("to first"))
			conn.Close()

			Eventually(firstReceived).Should(Receive(Equal([]byte("to first"))))

			cell.Replace(bestFor("second", second))

			conn, err = net.Dial("tcp", srv.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			conn.Write([]byte("to second"))
			conn.Close()

			Eventually(secondReceived).Should(Receive(Equal([]byte("to second"))))
		})

		It("should keep concurrent connections isolated", func() {
			upstream := startEchoUpstream()
			defer upstream.Close()

			cell.Replace(bestFor("echo", upstream))
			srv := startServer(false)

			const clients = 10
			var wg sync.WaitGroup

			for i := 0; i < clients; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()

					conn, err := net.Dial("tcp", srv.Addr().String())
					Expect(err).NotTo(HaveOccurred())
					defer conn.Close()

					payload := []byte(fmt.Sprintf("client %d payload %d", i, i*31))
					_, err = conn.Write(payload)
					Expect(err).NotTo(HaveOccurred())
					conn.(*net.TCPConn).CloseWrite()

					got, err := io.ReadAll(conn)
					Expect(err).NotTo(HaveOccurred())
					Expect(got).To(Equal(payload))
				}(i)
			}

			wg.Wait()
		})

		It("should drop the connection when the target cannot be dialed", func() {
			// Bind then close to get an address that refuses connections.
			dead, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			best := bestFor("dead", dead)
			dead.Close()

			cell.Replace(best)
			srv := startServer(false)

			conn, err := net.Dial("tcp", srv.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			buf := make([]byte, 1)
			n, err := conn.Read(buf)
			Expect(n).To(Equal(0))
			Expect(err).To(Equal(io.EOF))
		})
	})

	Context("with header tagging enabled", func() {
		It("should prefix the upstream stream with the exact header bytes", func() {
			upstream, received := startRecordingUpstream()
			defer upstream.Close()

			best := bestFor("tagged", upstream)
			cell.Replace(best)
			srv := startServer(true)

			conn, err := net.Dial("tcp", srv.Addr().String())
			Expect(err).NotTo(HaveOccurred())

			payload := []byte("application bytes")
			_, err = conn.Write(payload)
			Expect(err).NotTo(HaveOccurred())
			conn.(*net.TCPConn).CloseWrite()

			src := netip.MustParseAddrPort(conn.LocalAddr().String())
			expected := append(proxyproto.Header(src, best.Addr), payload...)

			var got []byte
			Eventually(received).Should(Receive(&got))
			Expect(got).To(Equal(expected))

			conn.Close()
		})

		It("should not tag when tagging is disabled", func() {
			upstream, received := startRecordingUpstream()
			defer upstream.Close()

			cell.Replace(bestFor("plain", upstream))
			srv := startServer(false)

			conn, err := net.Dial("tcp", srv.Addr().String())
			Expect(err).NotTo(HaveOccurred())

			payload := []byte("raw payload")
			conn.Write(payload)
			conn.Close()

			Eventually(received).Should(Receive(Equal(payload)))
		})
	})
})
