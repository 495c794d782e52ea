package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yunbug/forward-optimal/internal/metrics"
	"github.com/yunbug/forward-optimal/internal/proxyproto"
	"github.com/yunbug/forward-optimal/internal/state"
	"github.com/yunbug/forward-optimal/internal/target"
)

// Config holds the forwarder configuration.
type Config struct {
	// BindAddr is the listen address (host:port).
	BindAddr string

	// HeaderTagging prefixes each outbound connection with a PROXY
	// protocol v2 header identifying the original endpoints.
	HeaderTagging bool

	// DialTimeout bounds the outbound dial to the best target.
	// Zero means no timeout.
	DialTimeout time.Duration

	// Logger for connection events.
	Logger *slog.Logger
}

// Server accepts client connections and relays each one to the current
// best target. Connections arriving while no best target is known are
// dropped without any data exchange.
type Server struct {
	config    Config
	cell      *state.Cell
	collector *metrics.Collector

	mutex    sync.Mutex
	listener net.Listener
}

func New(cfg Config, cell *state.Cell, collector *metrics.Collector) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{
		config:    cfg,
		cell:      cell,
		collector: collector,
	}
}

// Addr returns the bound listen address, or nil before Listen has bound.
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listen binds the listen address and accepts connections until the
// context is cancelled. Each accepted connection is handled by its own
// goroutine; the accept loop never waits on a relay.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.BindAddr, err)
	}

	s.mutex.Lock()
	s.listener = listener
	s.mutex.Unlock()

	s.config.Logger.Info("Forwarder started",
		slog.String("address", listener.Addr().String()))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.config.Logger.Info("Forwarder stopped")
				return nil
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			s.config.Logger.Error("Failed to accept connection",
				slog.String("error", err.Error()))
			continue
		}

		s.collector.Emit(metrics.MetricEvent{Type: metrics.EventConnAccepted})

		best, ok := s.cell.Snapshot()
		if !ok {
			s.config.Logger.Warn("No best target available, dropping connection",
				slog.String("client", conn.RemoteAddr().String()))
			s.collector.Emit(metrics.MetricEvent{Type: metrics.EventConnDropped})
			conn.Close()
			continue
		}

		go s.forward(conn, best)
	}
}

// forward relays one client connection to the given best-target snapshot.
// Any failure terminates only this connection.
func (s *Server) forward(client net.Conn, best target.Best) {
	defer client.Close()

	sessionID := uuid.New().String()
	log := s.config.Logger.With(
		slog.String("session", sessionID),
		slog.String("client", client.RemoteAddr().String()),
		slog.String("target", best.Name))

	dialer := net.Dialer{Timeout: s.config.DialTimeout}
	upstream, err := dialer.Dial("tcp", best.Addr.String())
	if err != nil {
		log.Warn("Failed to dial best target",
			slog.String("addr", best.Addr.String()),
			slog.String("error", err.Error()))
		s.collector.Emit(metrics.MetricEvent{Type: metrics.EventDialFailed, Target: best.Name})
		return
	}
	defer upstream.Close()

	setNoDelay(client)
	setNoDelay(upstream)

	if s.config.HeaderTagging {
		if src, ok := addrPort(client.RemoteAddr()); ok {
			header := proxyproto.Header(src, best.Addr)
			if _, err := upstream.Write(header); err != nil {
				log.Warn("Failed to write proxy header",
					slog.String("error", err.Error()))
				return
			}
		}
	}

	log.Debug("Relay established",
		slog.String("addr", best.Addr.String()))

	start := time.Now()

	var bytesUp, bytesDown int64
	errCh := make(chan error, 2)

	go func() {
		n, err := io.Copy(upstream, client)
		bytesUp = n
		closeWrite(upstream)
		errCh <- err
	}()

	go func() {
		n, err := io.Copy(client, upstream)
		bytesDown = n
		closeWrite(client)
		errCh <- err
	}()

	var closeOnce sync.Once
	closeBoth := func() {
		client.Close()
		upstream.Close()
	}

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug("Relay ended with error",
				slog.String("error", err.Error()))
			// Unblock the opposite direction; the error already
			// decided this connection's fate.
			closeOnce.Do(closeBoth)
		}
	}

	s.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventConnClosed,
		Target:    best.Name,
		BytesUp:   bytesUp,
		BytesDown: bytesDown,
	})

	log.Debug("Relay closed",
		slog.Duration("duration", time.Since(start)),
		slog.Int64("bytes_up", bytesUp),
		slog.Int64("bytes_down", bytesDown))
}

// setNoDelay disables send coalescing so small payloads are not held back.
func setNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
}

// closeWrite half-closes the write side so the peer sees EOF while the
// other direction keeps flowing.
func closeWrite(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
}

func addrPort(addr net.Addr) (netip.AddrPort, bool) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, false
	}
	return tcpAddr.AddrPort(), true
}
