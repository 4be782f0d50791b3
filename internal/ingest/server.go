// Package ingest runs the calibration update server: a TCP listener that
// accepts newline delimited "<x>,<y>,<z>" frames from any number of clients
// and applies each one to the calibration store. A serial line carrying the
// same frames can be attached as a second source.
package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/monitoring"
	"github.com/banshee-data/gyrohook/internal/timeutil"
)

const (
	DefaultHost          = "0.0.0.0"
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultMaxFrameBytes = 4096
)

// ErrAlreadyRunning is returned by Start while a listener is bound.
var ErrAlreadyRunning = errors.New("ingest server already running")

var errFrameTooLong = errors.New("frame exceeds maximum length")

// Config configures a Server. Store is required.
type Config struct {
	// Host is the interface to bind, DefaultHost when empty.
	Host     string
	Store    ProfileStore
	Observer Observer
	Metrics  *Metrics
	Clock    timeutil.Clock
	// PollInterval bounds how long a handler blocks in a read before it
	// re-checks whether the server was stopped.
	PollInterval  time.Duration
	MaxFrameBytes int
}

// Server is the IngestServer. A Server can be started again after Stop.
type Server struct {
	host          string
	pollInterval  time.Duration
	maxFrameBytes int
	applier       *Applier
	metrics       *Metrics

	// mu guards session and orders Start against Stop.
	mu      sync.Mutex
	session *session
	running atomic.Bool

	wg sync.WaitGroup
}

// session is one Start..Stop listening period. Handlers keep the session
// they were accepted in, so a restart does not revive handlers of an
// earlier session.
type session struct {
	ln   net.Listener
	done chan struct{}
}

func (ss *session) stopped() bool {
	select {
	case <-ss.done:
		return true
	default:
		return false
	}
}

// NewServer creates a stopped Server.
func NewServer(cfg Config) *Server {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	maxFrame := cfg.MaxFrameBytes
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}

	return &Server{
		host:          host,
		pollInterval:  poll,
		maxFrameBytes: maxFrame,
		metrics:       cfg.Metrics,
		applier: NewApplier(ApplierConfig{
			Store:    cfg.Store,
			Observer: cfg.Observer,
			Metrics:  cfg.Metrics,
			Clock:    cfg.Clock,
		}),
	}
}

// Applier exposes the frame applier so other sources share it.
func (s *Server) Applier() *Applier {
	return s.applier
}

// Start validates port, binds the listener and starts accepting clients in
// the background. An out of range port returns *calibration.ValidationError
// without touching the network; a failed bind returns *calibration.BindError.
func (s *Server) Start(port int) error {
	if err := calibration.ValidatePort(port); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &calibration.BindError{Addr: addr, Err: err}
	}

	ss := &session{ln: ln, done: make(chan struct{})}
	s.session = ss
	s.running.Store(true)
	s.wg.Add(1)
	go s.acceptLoop(ss)

	monitoring.Logf("ingest: listening on %s", ln.Addr())
	return nil
}

// Stop closes the listener. It does not wait for connection handlers; they
// exit at their next read boundary. Calling Stop on a stopped server is a
// no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endSessionLocked(nil)
}

// endSessionLocked marks the server stopped, signals the current session's
// handlers and closes its listener. When only is non-nil the session is
// ended only if it is still the current one.
func (s *Server) endSessionLocked(only *session) {
	ss := s.session
	if ss == nil || (only != nil && ss != only) {
		return
	}
	s.running.Store(false)
	close(ss.done)
	if err := ss.ln.Close(); err != nil {
		monitoring.Warnf("ingest: closing listener: %v", err)
	}
	monitoring.Logf("ingest: stopped listening on %s", ss.ln.Addr())
	s.session = nil
}

// Wait blocks until the accept loop and every connection handler started so
// far have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Running reports whether a listener is bound.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Addr returns the bound address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.session.ln.Addr()
}

// Port returns the bound TCP port, or 0 when stopped.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (s *Server) acceptLoop(ss *session) {
	defer s.wg.Done()

	for {
		conn, err := ss.ln.Accept()
		if err != nil {
			s.mu.Lock()
			if !ss.stopped() {
				monitoring.Errorf("ingest: accept on %s failed, no longer listening: %v", ss.ln.Addr(), err)
				s.endSessionLocked(ss)
			}
			s.mu.Unlock()
			return
		}

		if ss.stopped() {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go s.handleConn(conn, ss)
	}
}

func (s *Server) handleConn(conn net.Conn, ss *session) {
	defer s.wg.Done()
	defer conn.Close()

	from := Origin{
		Source: SourceSocket,
		Remote: conn.RemoteAddr().String(),
		ConnID: uuid.NewString(),
	}
	s.metrics.connOpened()
	defer s.metrics.connClosed()
	monitoring.Logf("ingest: client %s connected (conn %s)", from.Remote, from.ConnID)

	if err := s.serveConn(conn, ss, from); err != nil {
		s.metrics.connError()
		monitoring.Warnf("ingest: %v", &calibration.ConnectionError{Remote: from.Remote, Err: err})
	}
	monitoring.Logf("ingest: client %s disconnected", from.Remote)
}

// serveConn reads frames until EOF, a read error or the end of ss. A nil
// return means the connection ended normally.
func (s *Server) serveConn(conn net.Conn, ss *session, from Origin) error {
	r := bufio.NewReaderSize(conn, s.maxFrameBytes+1)
	var pending []byte

	for !ss.stopped() {
		if err := conn.SetReadDeadline(time.Now().Add(s.pollInterval)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		chunk, err := r.ReadSlice('\n')
		pending = append(pending, chunk...)

		if len(bytes.TrimRight(pending, "\r\n")) > s.maxFrameBytes {
			return fmt.Errorf("%w of %d bytes", errFrameTooLong, s.maxFrameBytes)
		}

		switch {
		case ss.stopped():
			return nil
		case err == nil:
			s.applyFrame(string(pending), from)
			pending = pending[:0]
		case errors.Is(err, bufio.ErrBufferFull):
		case isTimeout(err):
		case errors.Is(err, io.EOF):
			// A final frame without a trailing newline still counts.
			s.applyFrame(string(pending), from)
			return nil
		default:
			return err
		}
	}
	return nil
}

func (s *Server) applyFrame(frame string, from Origin) {
	u, ok, err := s.applier.ApplyFrame(frame, from)
	var perr *calibration.ParseError
	switch {
	case errors.As(err, &perr):
		monitoring.Warnf("ingest: dropped frame from %s: %v", from.Remote, err)
	case err != nil:
		monitoring.Errorf("ingest: failed to store frame from %s: %v", from.Remote, err)
	case ok:
		monitoring.Logf("ingest: applied %s from %s", u.Profile.Offsets(), from.Remote)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
