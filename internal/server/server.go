package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-canfd-server/internal/cnl"
	"github.com/kstaniek/go-canfd-server/internal/hub"
	"github.com/kstaniek/go-canfd-server/internal/logging"
	"github.com/kstaniek/go-canfd-server/internal/metrics"
	"github.com/kstaniek/go-canfd-server/internal/transport"
)

// Server accepts cannelloni TCP clients. Frames broadcast by the hub go out to
// every client; frames from clients go to the Send sink.
type Server struct {
	mu    sync.RWMutex
	addr  string
	Hub   *hub.Hub
	Codec transport.FrameCodec
	Send  transport.FrameSink

	flushInterval    time.Duration
	batchSize        int
	readDeadline     time.Duration
	handshakeTimeout time.Duration
	maxClients       int
	readyOnce        sync.Once
	readyCh          chan struct{}
	listener         net.Listener
	clientsMu        sync.Mutex
	clients          map[*hub.Client]net.Conn
	wg               sync.WaitGroup
	logger           *slog.Logger
	nextConnID       atomic.Uint64
	backendOverflow  atomic.Uint64
	backendErrors    atomic.Uint64
}

const (
	defaultFlushInterval    = 5 * time.Millisecond
	defaultBatchSize        = 64
	defaultReadDeadline     = 60 * time.Second
	defaultHandshakeTimeout = 3 * time.Second
	defaultClientBuffer     = 512
)

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		Codec:            &cnl.Codec{},
		flushInterval:    defaultFlushInterval,
		batchSize:        defaultBatchSize,
		readDeadline:     defaultReadDeadline,
		handshakeTimeout: defaultHandshakeTimeout,
		readyCh:          make(chan struct{}),
		clients:          make(map[*hub.Client]net.Conn),
		logger:           logging.L(),
		addr:             ":0",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithHub(h *hub.Hub) ServerOption      { return func(s *Server) { s.Hub = h } }
func WithSend(sink transport.FrameSink) ServerOption {
	return func(s *Server) { s.Send = sink }
}
func WithCodec(c transport.FrameCodec) ServerOption {
	return func(s *Server) {
		if c != nil {
			s.Codec = c
		}
	}
}

func WithFlushInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

func WithBatchSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.readDeadline = d
		}
	}
}

func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Serve listens and accepts clients until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		wrap := fmt.Errorf("%w: %w", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		return wrap
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", ln.Addr().String())
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			wrap := fmt.Errorf("%w: %w", ErrAccept, err)
			metrics.IncError(mapErrToMetric(wrap))
			return wrap
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle performs the handshake, registers the client and runs its IO loops.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	l := s.logger.With("conn_id", s.nextConnID.Add(1), "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	if err := cnl.Handshake(ctx, conn, s.handshakeTimeout); err != nil {
		metrics.IncError(metrics.ErrHandshake)
		l.Warn("handshake_failed", logging.Err(err))
		_ = conn.Close()
		return
	}
	if s.maxClients > 0 && s.Hub != nil && s.Hub.Count() >= s.maxClients {
		metrics.IncHubReject()
		l.Warn("client_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return
	}
	cl := s.register(conn)
	l.Info("client_connected")
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readLoop(ctx, conn, cl, l)
	}()
	s.writeLoop(ctx, conn, cl, l)
	_ = conn.Close()
	<-done
	s.unregister(cl)
	l.Info("client_disconnected")
}

func (s *Server) register(conn net.Conn) *hub.Client {
	buf := defaultClientBuffer
	if s.Hub != nil && s.Hub.OutBufSize > 0 {
		buf = s.Hub.OutBufSize
	}
	cl := hub.NewClient(buf)
	s.clientsMu.Lock()
	s.clients[cl] = conn
	s.clientsMu.Unlock()
	if s.Hub != nil {
		s.Hub.Add(cl)
	}
	return cl
}

func (s *Server) unregister(cl *hub.Client) {
	s.clientsMu.Lock()
	delete(s.clients, cl)
	s.clientsMu.Unlock()
	if s.Hub != nil {
		s.Hub.Remove(cl)
	}
	cl.Close()
}

// Shutdown closes the listener and every client connection, then waits for
// handlers to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.clientsMu.Lock()
	for cl, conn := range s.clients {
		_ = conn.Close()
		cl.Close()
	}
	s.clientsMu.Unlock()
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %w", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_summary", "backend_overflow", s.backendOverflow.Load(), "backend_errors", s.backendErrors.Load())
		return nil
	}
}
