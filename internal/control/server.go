// Package control implements the §6 command channel: a TCP service
// speaking a line-oriented ASCII key=value request/reply protocol
// behind a "SDRFECv1" handshake that also negotiates the peer's
// recovery-block capability, plus a Hub broadcasting periodic stats
// snapshots and metadata-change notices to every connected client.
// Adapted from the teacher's internal/server (functional options,
// accept loop, reader/writer goroutines) and internal/cnl's preamble
// idiom, swapping cannelloni's binary CAN-frame wire format for the
// command channel's ASCII line protocol.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdrfec/gateway/internal/logging"
	"github.com/sdrfec/gateway/internal/metrics"
	"github.com/sdrfec/gateway/internal/wire"
)

// hello is the fixed preamble exchanged by both ends of the command
// channel before any request/reply traffic, per §6.
const hello = "SDRFECv1"

// Handshake performs the command channel's preamble exchange: both
// sides write and read back hello, then each side additionally sends
// the maximum recovery-block count (R) it is willing to honor, per
// §4.1's K/R scheme. A peer declaring a cap above wire.MaxRecoveryBlocks
// can't be satisfied by this codec's matrix cache (internal/erasure
// sizes its Cauchy matrix up to that bound), so the handshake fails
// with ErrCapabilityMismatch rather than accepting a connection that
// would later reject every fecblk request above the mismatch.
func Handshake(ctx context.Context, c net.Conn, timeout time.Duration) error {
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer c.SetDeadline(time.Time{})

	errCh := make(chan error, 2)
	peerMaxCh := make(chan byte, 1)

	go func() {
		if _, err := io.WriteString(c, hello); err != nil {
			errCh <- err
			return
		}
		_, err := c.Write([]byte{wire.MaxRecoveryBlocks})
		errCh <- err
	}()

	go func() {
		buf := make([]byte, len(hello)+1)
		if _, err := io.ReadFull(c, buf); err != nil {
			errCh <- err
			return
		}
		if string(buf[:len(hello)]) != hello {
			errCh <- errors.New("bad hello")
			return
		}
		peerMaxCh <- buf[len(hello)]
		errCh <- nil
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
		}
	}
	peerMax := <-peerMaxCh
	if peerMax > wire.MaxRecoveryBlocks {
		return fmt.Errorf("%w: peer declared max recovery blocks %d > %d", ErrCapabilityMismatch, peerMax, wire.MaxRecoveryBlocks)
	}
	return nil
}

// Server owns the command channel's TCP listener and client lifecycle.
type Server struct {
	mu      sync.RWMutex
	addr    string
	Hub     *Hub
	Codec   *Codec
	Handler Handler

	readDeadline     time.Duration
	handshakeTimeout time.Duration
	maxClients       int

	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error

	listener   net.Listener
	clientsMu  sync.RWMutex
	clients    map[*Client]net.Conn
	wg         sync.WaitGroup
	logger     *slog.Logger
	nextConnID uint64

	totalAccepted      atomic.Uint64
	totalHandshakeFail atomic.Uint64
	totalConnected     atomic.Uint64
	totalDisconnected  atomic.Uint64
}

const (
	defaultReadDeadline     = 60 * time.Second
	defaultHandshakeTimeout = 3 * time.Second
)

type ServerOption func(*Server)

// NewServer builds a command-channel Server with sane defaults; Serve
// must be called to start accepting clients.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		readDeadline:     defaultReadDeadline,
		handshakeTimeout: defaultHandshakeTimeout,
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		clients:          make(map[*Client]net.Conn),
		logger:           logging.L(),
		Codec:            &Codec{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	if s.Hub == nil {
		s.Hub = New()
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithHub(h *Hub) ServerOption          { return func(s *Server) { s.Hub = h } }
func WithHandler(h Handler) ServerOption   { return func(s *Server) { s.Handler = h } }

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
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

// Serve accepts TCP clients and spawns reader/writer goroutines per
// connection. It returns when ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("control_listen", "addr", s.Addr())
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if _, ok := err.(net.Error); ok {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.totalAccepted.Add(1)
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	if err := Handshake(ctx, conn, s.handshakeTimeout); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrHandshake, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		s.totalHandshakeFail.Add(1)
		connLogger.Warn("control_handshake_failed", "error", wrap)
		_ = conn.Close()
		return nil
	}
	if s.maxClients > 0 && s.Hub.Count() >= s.maxClients {
		metrics.IncControlReject()
		connLogger.Warn("control_client_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return nil
	}
	client := s.newClient()
	s.clientsMu.Lock()
	s.clients[client] = conn
	s.clientsMu.Unlock()
	s.totalConnected.Add(1)
	connLogger.Info("control_client_connected")
	s.startWriter(ctx.Done(), conn, client, connLogger)
	s.startReader(ctx.Done(), conn, client, connLogger)
	return nil
}

func (s *Server) newClient() *Client {
	bufSize := 32
	if s.Hub.OutBufSize > 0 {
		bufSize = s.Hub.OutBufSize
	}
	cl := &Client{Out: make(chan string, bufSize), Closed: make(chan struct{})}
	s.Hub.Add(cl)
	metrics.SetControlClients(s.Hub.Count())
	return cl
}

// Shutdown closes the listener and every client connection, then waits
// for IO goroutines to exit.
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
		s.Hub.Remove(cl)
		delete(s.clients, cl)
	}
	s.clientsMu.Unlock()
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("control_shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"handshake_fail", s.totalHandshakeFail.Load(),
			"connected", s.totalConnected.Load(),
			"disconnected", s.totalDisconnected.Load())
		return nil
	}
}

// startReader reads request lines, applies them via s.Handler and
// writes back the resulting reply line.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		br := bufio.NewReader(conn)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			req, err := s.Codec.Decode(br)
			if err != nil {
				if errors.Is(err, ErrEmptyLine) {
					continue
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				return
			}
			reply := Reply{OK: true}
			if s.Handler != nil {
				reply = s.Handler(req)
			}
			if _, err := conn.Write(s.Codec.EncodeReply(reply)); err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}

// startWriter pushes Hub-broadcast notice lines to one client
// connection until it disconnects or ctx is cancelled.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			s.Hub.Remove(cl)
			s.totalDisconnected.Add(1)
			logger.Info("control_client_disconnected")
		}()
		for {
			select {
			case notice := <-cl.Out:
				if _, err := conn.Write([]byte(notice)); err != nil {
					wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
					metrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					return
				}
			case <-cl.Closed:
				return
			case <-ctxDone:
				return
			}
		}
	}()
}
