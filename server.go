package eccentric

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"go.uber.org/zap"

	"github.com/matoous/eccentric/trace"
)

/*
Handler is called with every committed transaction when the data phase ends.
Handler can be for example a spool which queues the message for an MDA or a
relay. The returned id is logged, a returned error is answered with 451 and the
transaction is dropped.
*/
type Handler interface {
	Deliver(ctx context.Context, env *Envelope) (id string, err error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, env *Envelope) (string, error)

// Deliver calls f(ctx, env)
func (f HandlerFunc) Deliver(ctx context.Context, env *Envelope) (string, error) {
	return f(ctx, env)
}

// DefaultAddr is used when Server.Addr is empty
const DefaultAddr = ":2525"

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown
var ErrServerClosed = errors.New("eccentric: server closed")

/*
Server accepts connections and runs one Session per connection in its own goroutine.
*/
type Server struct {
	Addr      string      // TCP address to listen on, DefaultAddr if empty
	Hostname  string      // hostname used in the greeting, the QUIT reply and the Received header
	TLSConfig *tls.Config // when set connections are TLS from the first byte

	// Limits
	Limits Limits

	// New messages are handed off to the Handler.
	// Can be left empty, messages are then accepted and dropped.
	Handler Handler

	// Resolver is used for the client name in the Received header, no lookup when nil
	Resolver trace.Resolver

	log *zap.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup

	ctx          context.Context
	cancel       context.CancelFunc
	shuttingDown atomic.Bool
}

/*
NewServer creates new server, hostname is required. The logger may be nil.
Limits are optional, DefaultLimits are used when none are given.
*/
func NewServer(hostname string, logger *zap.Logger, limits ...Limits) (*Server, error) {
	if hostname == "" {
		return nil, errors.New("hostname is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Addr:      DefaultAddr,
		Hostname:  hostname,
		log:       logger,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	// limits are optional, if no limits were provided, use the default ones
	if len(limits) == 1 {
		s.Limits = limits[0]
	} else {
		s.Limits = DefaultLimits
	}
	return s, nil
}

// ListenAndServe listens on the TCP network address and then
// calls Serve to handle requests on incoming connections.
// Connections are handled securely if TLSConfig is set.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	if srv.TLSConfig != nil {
		l, err := tls.Listen("tcp", addr, srv.TLSConfig)
		if err != nil {
			return errors.Wrap(err, 0)
		}
		srv.log.Info("listening securely", zap.String("addr", l.Addr().String()))
		return srv.Serve(l)
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	srv.log.Info("listening", zap.String("addr", l.Addr().String()))
	return srv.Serve(l)
}

// Serve incoming connections
// Creates new session for each connection and starts go routine to handle it.
// Serve always returns a non-nil error, ErrServerClosed after Shutdown.
func (srv *Server) Serve(ln net.Listener) error {
	if !srv.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer srv.trackListener(ln, false)
	defer ln.Close()

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if srv.shuttingDown.Load() {
				return ErrServerClosed
			}
			if netError, ok := err.(net.Error); ok && netError.Timeout() && !isClosed(err) {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				srv.log.Error("temporary accept error", zap.Error(err), zap.Duration("retry_in", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			return errors.Wrap(err, 0)
		}
		tempDelay = 0

		if !srv.trackConn(conn, true) {
			conn.Close()
			return ErrServerClosed
		}
		go srv.handleConn(conn)
	}
}

func (srv *Server) handleConn(conn net.Conn) {
	defer srv.wg.Done()
	defer srv.trackConn(conn, false)
	defer conn.Close()

	metricConnection.Inc()
	s := srv.NewSession(conn)
	if err := s.Serve(srv.ctx); err != nil && !isClosed(err) {
		s.log.Error("session failed", zap.Error(err), stackField(err))
	}
}

// trackListener adds or removes ln, adding fails once the server is shutting down
func (srv *Server) trackListener(ln net.Listener, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if add {
		if srv.shuttingDown.Load() {
			return false
		}
		srv.listeners[ln] = struct{}{}
	} else {
		delete(srv.listeners, ln)
	}
	return true
}

// trackConn adds or removes conn, adding fails once the server is shutting down
func (srv *Server) trackConn(conn net.Conn, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if add {
		if srv.shuttingDown.Load() {
			return false
		}
		srv.conns[conn] = struct{}{}
		srv.wg.Add(1)
	} else {
		delete(srv.conns, conn)
	}
	return true
}

/*
Shutdown stops accepting connections and ends all live sessions: each of them
is answered with 421 at its next read. Shutdown waits until the sessions are
done or ctx expires, in which case the remaining connections are closed and
ctx error is returned.
*/
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	srv.shuttingDown.Store(true)
	srv.cancel()
	for ln := range srv.listeners {
		ln.Close()
	}
	// wake up sessions blocked in reads, they see the cancelled context
	for conn := range srv.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
	srv.mu.Unlock()

	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		srv.log.Info("server shut down")
		return nil
	case <-ctx.Done():
		srv.mu.Lock()
		for conn := range srv.conns {
			conn.Close()
		}
		srv.mu.Unlock()
		srv.log.Warn("server shutdown timed out, connections closed")
		return ctx.Err()
	}
}
