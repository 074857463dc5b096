// Package server implements the Janus server core: the receive loop, the
// built-in request set, and the registrable handler table dispatched
// against it.
package server

import (
	"sync"
	"time"

	"github.com/janusrpc/janus/errs"
	"github.com/janusrpc/janus/internal/manifest"
	"github.com/janusrpc/janus/internal/sockutil"
	"github.com/janusrpc/janus/internal/wire"
)

// State is a position in the server's lifecycle state machine:
// New -> Listening -> Stopping -> Stopped.
type State int

const (
	StateNew State = iota
	StateListening
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateListening:
		return "Listening"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// HandlerFunc handles one request and returns either a JSON-serializable
// result or a JSON-RPC error, never both.
type HandlerFunc func(req *wire.Request) (any, *errs.Error)

// Server is the Janus server core: it owns a listening SOCK_DGRAM socket,
// a registry of request handlers keyed by (channel, request), and the
// built-in request set that bypasses manifest validation.
type Server struct {
	cfg  Config
	path string

	mu       sync.Mutex
	state    State
	conn     *sockutil.Conn
	handlers map[string]HandlerFunc
	manifest *manifest.Manifest
	inFlight map[string]struct{}

	startedAt       time.Time
	requestsHandled int64

	sem  chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Server bound to no socket yet; call StartListening to
// bind path and begin serving.
func New(path string, cfg Config) *Server {
	return &Server{
		cfg:      cfg,
		path:     path,
		state:    StateNew,
		handlers: make(map[string]HandlerFunc),
		inFlight: make(map[string]struct{}),
		sem:      make(chan struct{}, cfg.MaxConcurrentConnections),
		done:     make(chan struct{}),
	}
}

// SetManifest installs the manifest served by the built-in "manifest"
// request. The "validate" built-in does not consult it.
func (s *Server) SetManifest(m *manifest.Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest = m
}

// Register adds a handler for (channel, request). Reserved built-in names
// cannot be registered over; registering too many handlers returns
// ResourceLimit.
func (s *Server) Register(channel, request string, h HandlerFunc) error {
	if manifest.ReservedRequestNames[request] {
		return errs.Newf(errs.InvalidRequest, "%q is a reserved built-in request name", request)
	}
	key := dispatchKey(channel, request)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.handlers) >= s.cfg.MaxCommandHandlers {
		return errs.New(errs.ResourceLimit, "handler registry is full")
	}
	s.handlers[key] = h
	return nil
}

// Unregister removes a previously registered handler.
func (s *Server) Unregister(channel, request string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, dispatchKey(channel, request))
}

func dispatchKey(channel, request string) string {
	return channel + "\x00" + request
}

// StartListening transitions New -> Listening and binds the server socket.
func (s *Server) StartListening() error {
	s.mu.Lock()
	if s.state != StateNew {
		s.mu.Unlock()
		return errs.Newf(errs.InvalidRequest, "cannot start listening from state %s", s.state)
	}
	s.mu.Unlock()

	if err := sockutil.ValidatePath(s.path, s.cfg.AllowedSocketPrefixes); err != nil {
		return err
	}

	conn, err := sockutil.Listen(s.path, s.cfg.CleanupOnStart)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateListening
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.receiveLoop()
	return nil
}

// Stop transitions to Stopping then Stopped, unblocking the receive loop
// and, if configured, unlinking the socket file.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state == StateStopping || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	conn := s.conn
	s.mu.Unlock()

	close(s.done)
	if conn != nil {
		if s.cfg.CleanupOnShutdown {
			_ = conn.Close()
		} else {
			_ = conn.CloseKeepPath()
		}
	}

	s.wg.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

// WaitForCompletion blocks until the receive loop and every handler
// goroutine have exited. On a server that never started listening it
// returns at once; after Stop it may return just before State reports
// Stopped.
func (s *Server) WaitForCompletion() {
	s.wg.Wait()
}

// State reports the server's current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) receiveLoop() {
	defer s.wg.Done()
	buf := make([]byte, s.effectiveMaxMessageSize())
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := s.conn.RecvFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return // socket closed
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		s.handleDatagram(payload)
	}
}

func (s *Server) handleDatagram(payload []byte) {
	req, err := wire.DecodeRequest(payload, s.effectiveMaxMessageSize())
	if err != nil {
		return // no reply_to available to report a ParseError to
	}
	if s.cfg.MaxArgsDataSize > 0 && len(req.Args) > s.cfg.MaxArgsDataSize {
		if req.ReplyTo != "" {
			s.reply(req, nil, errs.Newf(errs.SecurityViolation, "args payload of %d bytes exceeds maximum %d", len(req.Args), s.cfg.MaxArgsDataSize))
		}
		return
	}

	select {
	case s.sem <- struct{}{}:
	default:
		if req.ReplyTo != "" {
			s.reply(req, nil, errs.New(errs.ResourceLimit, "too many in-flight handlers"))
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()

		if req.ReplyTo == "" {
			s.dispatch(req) // fire-and-forget, result discarded, but still off the receive loop
			return
		}

		deadline := s.cfg.RequestTimeout
		if req.Timeout > 0 {
			deadline = time.Duration(req.Timeout * float64(time.Second))
		}
		resultCh := make(chan struct {
			result any
			err    *errs.Error
		}, 1)
		go func() {
			result, hErr := s.dispatch(req)
			resultCh <- struct {
				result any
				err    *errs.Error
			}{result, hErr}
		}()

		select {
		case out := <-resultCh:
			s.reply(req, out.result, out.err)
		case <-time.After(deadline):
			s.reply(req, nil, errs.New(errs.HandlerTimeout, "handler exceeded its deadline"))
		}
	}()
}

func (s *Server) dispatch(req *wire.Request) (any, *errs.Error) {
	s.mu.Lock()
	s.requestsHandled++
	s.inFlight[req.ID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, req.ID)
		s.mu.Unlock()
	}()

	if builtin, ok := s.builtinHandler(req.Request); ok {
		return builtin(req)
	}

	s.mu.Lock()
	h, ok := s.handlers[dispatchKey(req.ChannelID, req.Request)]
	s.mu.Unlock()
	if !ok {
		return nil, errs.Newf(errs.MethodNotFound, "unknown request %q on channel %q", req.Request, req.ChannelID)
	}
	return h(req)
}

func (s *Server) builtinHandler(request string) (HandlerFunc, bool) {
	switch request {
	case "ping":
		return s.builtinPing, true
	case "echo":
		return s.builtinEcho, true
	case "get_info":
		return s.builtinGetInfo, true
	case "manifest":
		return s.builtinManifest, true
	case "validate":
		return s.builtinValidate, true
	case "slow_process":
		return s.builtinSlowProcess, true
	default:
		return nil, false
	}
}

func (s *Server) reply(req *wire.Request, result any, hErr *errs.Error) {
	var resp *wire.Response
	if hErr != nil {
		resp = wire.NewError(req.ID, req.ChannelID, hErr, nowSeconds())
	} else {
		r, err := wire.NewResult(req.ID, req.ChannelID, result, nowSeconds())
		if err != nil {
			resp = wire.NewError(req.ID, req.ChannelID, errs.Wrap(err), nowSeconds())
		} else {
			resp = r
		}
	}

	encoded, err := wire.EncodeResponse(resp, s.effectiveMaxMessageSize())
	if err != nil {
		return // the response is dropped; encode failures are not logged
	}
	_ = s.conn.SendTo(encoded, req.ReplyTo) // send failures are dropped, not logged or retried
}

func (s *Server) effectiveMaxMessageSize() int {
	if s.cfg.MaxMessageSize > 0 {
		return s.cfg.MaxMessageSize
	}
	return wire.DefaultMaxMessageSize
}

func isTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}
