package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tiancaiamao/hostbridge/pkg/framing"
)

// Defaults for ServerConfig.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 9876
	DefaultAcceptTimeout = time.Second
	DefaultJoinTimeout   = time.Second
	DefaultWriteTimeout  = 10 * time.Second
)

var (
	// ErrAlreadyRunning is returned when another server in this process is running.
	ErrAlreadyRunning = errors.New("a command server is already running in this process")
	// ErrJoinTimeout is returned by Stop when the accept loop did not exit in time.
	ErrJoinTimeout = errors.New("accept loop did not exit before the join timeout")
)

// Scheduler hands a command to the host's execution context. onComplete
// must be called exactly once, on that same context.
type Scheduler interface {
	Schedule(cmd Command, onComplete func(Response))
}

// State is the lifecycle state of a Server.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ServerConfig configures a command server.
type ServerConfig struct {
	Host          string
	Port          int
	Framer        framing.Framer
	MaxFrameSize  int
	AcceptTimeout time.Duration
	JoinTimeout   time.Duration
	WriteTimeout  time.Duration
}

func (c *ServerConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Framer == nil {
		c.Framer = framing.Brace{}
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = framing.DefaultMaxFrameSize
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// Address returns host:port.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server accepts framed commands over TCP and schedules them on the host.
type Server struct {
	cfg   ServerConfig
	sched Scheduler
	log   *slog.Logger

	listen func(ctx context.Context, network, address string) (net.Listener, error)

	mu       sync.Mutex // serializes Start and Stop
	state    atomic.Int32
	listener net.Listener
	done     chan struct{}

	running atomic.Bool
	connMu  sync.Mutex
	conns   map[net.Conn]struct{}
}

// NewServer creates a stopped server. Port 0 picks a free port.
func NewServer(cfg ServerConfig, sched Scheduler, log *slog.Logger) *Server {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	lc := listenConfig()
	return &Server{
		cfg:    cfg,
		sched:  sched,
		log:    log.With("component", "cmdserver"),
		listen: lc.Listen,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Config returns the effective configuration.
func (s *Server) Config() ServerConfig {
	return s.cfg
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug("state change", "from", old, "to", st)
	}
}

// Addr returns the bound listener address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds and begins accepting. Starting a running server is a no-op.
// On failure the server is left Stopped with nothing bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Running {
		return nil
	}
	if !claimProcess(s) {
		s.log.Error("refusing to start", "addr", s.cfg.Address(), "error", ErrAlreadyRunning)
		return ErrAlreadyRunning
	}

	s.setState(Starting)
	ln, err := s.listen(context.Background(), "tcp", s.cfg.Address())
	if err != nil {
		releaseProcess(s)
		s.setState(Stopped)
		err = fmt.Errorf("listen on %s: %w", s.cfg.Address(), err)
		s.log.Error("failed to start command server", "error", err)
		return err
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.running.Store(true)
	s.setState(Running)

	go s.acceptLoop(ln, s.done)

	s.log.Info("command server started", "addr", ln.Addr().String(), "framing", s.cfg.Framer.Name())
	return nil
}

// Stop closes the listener and every live connection, then waits for the
// accept loop up to the join timeout. Stopping a stopped server is a no-op.
// Commands already scheduled still run; their replies are dropped.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != Running {
		return nil
	}
	s.setState(Stopping)
	s.running.Store(false)

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("error closing listener", "error", err)
	}

	s.connMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connMu.Unlock()

	var err error
	select {
	case <-s.done:
	case <-time.After(s.cfg.JoinTimeout):
		err = ErrJoinTimeout
		s.log.Error("command server shutdown incomplete", "error", err)
	}

	s.listener = nil
	releaseProcess(s)
	s.setState(Stopped)
	s.log.Info("command server stopped")
	return err
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	for s.running.Load() {
		if d, ok := ln.(deadliner); ok {
			d.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout))
		}
		c, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("accept failed", "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if !s.track(c) {
			c.Close()
			return
		}
		go s.serveConn(c)
	}
}

func (s *Server) track(c net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

// ConnCount returns the number of live connections.
func (s *Server) ConnCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.conns)
}

func (s *Server) serveConn(c net.Conn) {
	log := s.log.With("conn", uuid.NewString()[:8], "remote", c.RemoteAddr().String())
	log.Info("client connected")
	defer func() {
		s.untrack(c)
		c.Close()
	}()

	ch := framing.NewChannel(c, s.cfg.Framer, framing.WithMaxFrameSize(s.cfg.MaxFrameSize))
	ch.OnDiscard = func(frame []byte, err error) {
		log.Warn("discarding malformed frame", "bytes", len(frame), "error", err)
	}

	for {
		var cmd Command
		if err := ch.ReceiveJSON(&cmd); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Info("client disconnected")
			case errors.Is(err, net.ErrClosed) || !s.running.Load():
				log.Debug("connection closed by shutdown")
			default:
				log.Warn("connection read failed", "error", err)
			}
			return
		}

		log.Debug("command received", "type", cmd.Type, "id", cmd.ID)
		s.sched.Schedule(cmd, func(resp Response) {
			s.reply(c, ch, log, resp)
		})
	}
}

func (s *Server) reply(c net.Conn, ch *framing.Channel, log *slog.Logger, resp Response) {
	c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := ch.Send(resp); err != nil {
		log.Warn("failed to send response, client may have disconnected", "error", err)
	}
}
