package client

import (
	"os"
	"sync"
	"time"

	"github.com/janusrpc/janus/errs"
	"github.com/janusrpc/janus/internal/manifest"
	"github.com/janusrpc/janus/internal/sockutil"
	"github.com/janusrpc/janus/internal/timeoutmgr"
	"github.com/janusrpc/janus/internal/wire"
)

// ConnectionState is a point-in-time snapshot of the client's liveness and
// traffic counters.
type ConnectionState struct {
	Connected         bool
	MessagesSent      int64
	ResponsesReceived int64
}

type pendingEntry struct {
	handle  *RequestHandle
	replyTo *sockutil.Conn
	result  chan *wire.Response
}

// Client is the Janus client core: it sends requests to a server's Unix
// datagram socket and correlates responses delivered on a per-request
// ephemeral reply socket, per spec.md §4.7.
type Client struct {
	targetPath string
	cfg        Config

	mu      sync.Mutex
	pending map[string]*pendingEntry

	timeouts *timeoutmgr.Manager

	manifestOnce sync.Once
	manifestErr  error
	loadedMan    *manifest.Manifest

	targetPathOnce sync.Once
	targetPathErr  error

	messagesSent      int64
	responsesReceived int64
}

// New constructs a Client that targets the server listening at targetPath.
func New(targetPath string, cfg Config) *Client {
	return &Client{
		targetPath: targetPath,
		cfg:        cfg,
		pending:    make(map[string]*pendingEntry),
		timeouts:   timeoutmgr.New(),
	}
}

// IsConnected reports whether the target socket path currently exists. This
// is a best-effort liveness check, not a true handshake: the source this
// spec is distilled from does the same stat-based check.
func (c *Client) IsConnected() bool {
	_, err := os.Stat(c.targetPath)
	return err == nil
}

// GetConnectionState returns a snapshot of liveness and traffic counters.
func (c *Client) GetConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionState{
		Connected:         c.IsConnected(),
		MessagesSent:      c.messagesSent,
		ResponsesReceived: c.responsesReceived,
	}
}

// GetRequestStatus reports h's lifecycle state. A nil handle or a handle
// never registered as pending reports StatusCompleted; a retired handle
// reports the final status it was retired with (Completed, Failed,
// Cancelled or Timeout).
func (c *Client) GetRequestStatus(h *RequestHandle) RequestStatus {
	if h == nil {
		return StatusCompleted
	}
	c.mu.Lock()
	_, stillPending := c.pending[h.internalId()]
	c.mu.Unlock()
	if stillPending {
		return StatusPending
	}
	return h.Status()
}

// GetPendingRequests returns the handles currently awaiting a response.
func (c *Client) GetPendingRequests() []*RequestHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*RequestHandle, 0, len(c.pending))
	for _, e := range c.pending {
		out = append(out, e.handle)
	}
	return out
}

// CancelRequest marks h cancelled, cancels its timers, removes it from the
// pending registry, and unblocks the goroutine awaiting its response. It
// returns an error if h is not currently pending.
func (c *Client) CancelRequest(h *RequestHandle) error {
	if h == nil {
		return errs.New(errs.InvalidParams, "nil handle")
	}
	c.mu.Lock()
	e, ok := c.pending[h.internalId()]
	if ok {
		delete(c.pending, h.internalId())
	}
	c.mu.Unlock()
	if !ok {
		return errs.Newf(errs.InvalidParams, "handle for request %q is not pending", h.Request)
	}
	c.timeouts.CancelBilateral(h.internalId())
	h.markCancelled()
	close(e.result)
	_ = e.replyTo.Close()
	return nil
}

// CancelAllRequests cancels every currently pending request and returns how
// many were cancelled.
func (c *Client) CancelAllRequests() int {
	c.mu.Lock()
	entries := make([]*pendingEntry, 0, len(c.pending))
	for _, e := range c.pending {
		entries = append(entries, e)
	}
	c.pending = make(map[string]*pendingEntry)
	c.mu.Unlock()

	for _, e := range entries {
		c.timeouts.CancelBilateral(e.handle.internalId())
		e.handle.markCancelled()
		close(e.result)
		_ = e.replyTo.Close()
	}
	return len(entries)
}

// SendRequestNoResponse fires a request without creating a reply socket or
// awaiting any response.
func (c *Client) SendRequestNoResponse(channel, request string, args any) error {
	if err := c.checkNameLengths(channel, request); err != nil {
		return err
	}
	if err := c.validateTargetPath(); err != nil {
		return err
	}
	raw, err := marshalArgs(args)
	if err != nil {
		return err
	}
	if err := c.checkArgsSize(raw); err != nil {
		return err
	}
	req := &wire.Request{
		ID:        newHandle(request, channel).internalId(),
		ChannelID: channel,
		Request:   request,
		Args:      raw,
		Timestamp: nowSeconds(),
	}
	encoded, err := wire.EncodeRequest(req, c.cfg.MaxMessageSize)
	if err != nil {
		return err
	}
	conn, err := sockutil.DialAnonymous()
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SendTo(encoded, c.targetPath); err != nil {
		return err
	}
	c.mu.Lock()
	c.messagesSent++
	c.mu.Unlock()
	return nil
}

// SendRequest runs the full send protocol from spec.md §4.7: validate
// names, lazily fetch the manifest if validation is enabled, validate args,
// create an ephemeral reply socket, register + arm a bilateral timeout,
// encode and send, then await the correlated response.
func (c *Client) SendRequest(channel, request string, args any, timeout time.Duration) (*wire.Response, *RequestHandle, error) {
	if err := c.checkNameLengths(channel, request); err != nil {
		return nil, nil, err
	}

	rawArgs, err := marshalArgs(args)
	if err != nil {
		return nil, nil, err
	}
	if err := c.checkArgsSize(rawArgs); err != nil {
		return nil, nil, err
	}

	if c.cfg.EnableValidation && !isBuiltin(request) {
		man, err := c.ensureManifest()
		if err != nil {
			return nil, nil, err
		}
		if err := manifest.ValidateArguments(man, channel, request, rawArgs); err != nil {
			return nil, nil, err
		}
	}

	resp, h, err := c.doSend(channel, request, rawArgs, timeout)
	if err != nil {
		return nil, h, err
	}

	if c.cfg.EnableValidation && !isBuiltin(request) && resp.Success {
		man, err := c.ensureManifest()
		if err == nil {
			if vr, verr := manifest.ValidateResponse(man, channel, request, resp.Result); verr == nil && !vr.Valid {
				return nil, h, errs.New(errs.ValidationFailed, manifest.Summary(validationErrorStrings(vr)))
			}
		}
	}
	return resp, h, nil
}

// doSend performs the wire-level send/await protocol with no manifest
// validation of its own: steps 4-7 and 9 of spec.md §4.7. Both SendRequest
// and the one-shot manifest bootstrap in ensureManifest route through this,
// so the manifest fetch never recurses into argument/response validation.
func (c *Client) doSend(channel, request string, rawArgs []byte, timeout time.Duration) (*wire.Response, *RequestHandle, error) {
	if timeout <= 0 {
		timeout = c.cfg.ConnectionTimeout
	}

	if err := c.validateTargetPath(); err != nil {
		return nil, nil, err
	}

	h := newHandle(request, channel)
	replyPath := c.ephemeralPath()
	if err := sockutil.ValidatePath(replyPath, c.cfg.AllowedSocketPrefixes); err != nil {
		return nil, nil, err
	}
	replyConn, err := sockutil.Dial(replyPath)
	if err != nil {
		return nil, nil, err
	}

	entry := &pendingEntry{handle: h, replyTo: replyConn, result: make(chan *wire.Response, 1)}

	c.mu.Lock()
	if len(c.pending) >= c.cfg.MaxPendingCommands {
		c.mu.Unlock()
		_ = replyConn.Close()
		return nil, nil, errs.New(errs.ResourceLimit, "pending request registry is full")
	}
	c.pending[h.internalId()] = entry
	c.mu.Unlock()

	c.timeouts.StartBilateral(h.internalId(), timeout, func(id string, d time.Duration) {
		c.completeTimeout(id)
	})

	req := &wire.Request{
		ID:        h.internalId(),
		ChannelID: channel,
		Request:   request,
		Args:      rawArgs,
		ReplyTo:   replyPath,
		Timeout:   timeout.Seconds(),
		Timestamp: nowSeconds(),
	}
	encoded, err := wire.EncodeRequest(req, c.cfg.MaxMessageSize)
	if err != nil {
		c.abort(h, entry)
		return nil, nil, err
	}
	if err := replyConn.SendTo(encoded, c.targetPath); err != nil {
		c.abort(h, entry)
		return nil, nil, err
	}

	c.mu.Lock()
	c.messagesSent++
	c.mu.Unlock()

	go c.awaitReply(entry)

	resp, ok := <-entry.result
	if !ok {
		// Channel closed by cancellation or timeout without a value.
		switch h.Status() {
		case StatusTimeout:
			return nil, h, errs.New(errs.HandlerTimeout, "request timed out")
		case StatusCancelled:
			return nil, h, errs.New(errs.InvalidRequest, "request was cancelled")
		default:
			return nil, h, errs.New(errs.InternalError, "request ended without a response")
		}
	}
	return resp, h, nil
}

// awaitReply blocks on the reply socket until a correlated response
// arrives, a stale one is dropped and waited past, or the socket is closed
// out from under it by cancellation/timeout.
func (c *Client) awaitReply(e *pendingEntry) {
	buf := make([]byte, c.effectiveMaxMessageSize())
	for {
		n, err := e.replyTo.RecvFrom(buf)
		if err != nil {
			return // socket closed by cancel/timeout/cleanup
		}
		resp, err := wire.DecodeResponse(buf[:n], c.effectiveMaxMessageSize())
		if err != nil {
			continue
		}
		if resp.RequestID != e.handle.internalId() || resp.ChannelID != e.handle.Channel {
			continue // stale or mismatched correlation, per spec.md §9
		}

		c.mu.Lock()
		_, stillPending := c.pending[e.handle.internalId()]
		delete(c.pending, e.handle.internalId())
		c.mu.Unlock()
		if !stillPending {
			return // already cancelled/timed out concurrently
		}

		c.timeouts.CancelBilateral(e.handle.internalId())
		if resp.Success {
			e.handle.setStatus(StatusCompleted)
		} else {
			e.handle.setStatus(StatusFailed)
		}
		c.mu.Lock()
		c.responsesReceived++
		c.mu.Unlock()
		_ = e.replyTo.Close()

		e.result <- resp
		close(e.result)
		return
	}
}

// completeTimeout runs when the bilateral timer for an id fires: the entry
// is retired as Timeout and its awaiting goroutine is unblocked.
func (c *Client) completeTimeout(id string) {
	c.mu.Lock()
	e, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	e.handle.setStatus(StatusTimeout)
	_ = e.replyTo.Close()
	close(e.result)
}

func (c *Client) abort(h *RequestHandle, e *pendingEntry) {
	c.mu.Lock()
	delete(c.pending, h.internalId())
	c.mu.Unlock()
	c.timeouts.CancelBilateral(h.internalId())
	_ = e.replyTo.Close()
}

// validateTargetPath checks the target socket path against the boundary
// rules in spec.md §4.2 (absolute, length, no NUL/"..", allowed prefix)
// exactly once per Client, before any socket syscall touches it.
func (c *Client) validateTargetPath() error {
	c.targetPathOnce.Do(func() {
		c.targetPathErr = sockutil.ValidatePath(c.targetPath, c.cfg.AllowedSocketPrefixes)
	})
	return c.targetPathErr
}

func (c *Client) checkNameLengths(channel, request string) error {
	if len(channel) > c.cfg.MaxChannelNameLength {
		return errs.Newf(errs.InvalidParams, "channel name length %d exceeds maximum %d", len(channel), c.cfg.MaxChannelNameLength)
	}
	if len(request) > c.cfg.MaxCommandNameLength {
		return errs.Newf(errs.InvalidParams, "request name length %d exceeds maximum %d", len(request), c.cfg.MaxCommandNameLength)
	}
	return nil
}

func (c *Client) checkArgsSize(rawArgs []byte) error {
	if c.cfg.MaxArgsDataSize > 0 && len(rawArgs) > c.cfg.MaxArgsDataSize {
		return errs.Newf(errs.SecurityViolation, "args payload of %d bytes exceeds maximum %d", len(rawArgs), c.cfg.MaxArgsDataSize)
	}
	return nil
}

func (c *Client) ephemeralPath() string {
	base := c.targetPath
	if c.cfg.SocketDir != "" {
		base = c.cfg.SocketDir + "/" + basePathName(c.targetPath)
	}
	return sockutil.EphemeralReplyPath(base)
}

func (c *Client) effectiveMaxMessageSize() int {
	if c.cfg.MaxMessageSize > 0 {
		return c.cfg.MaxMessageSize
	}
	return wire.DefaultMaxMessageSize
}

// ensureManifest fetches the server's manifest through the built-in
// "manifest" request exactly once, with validation disabled for that call,
// then caches it for every subsequent validated send.
func (c *Client) ensureManifest() (*manifest.Manifest, error) {
	c.manifestOnce.Do(func() {
		resp, _, err := c.doSend("default", "manifest", nil, c.cfg.ConnectionTimeout)
		if err != nil {
			c.manifestErr = err
			return
		}
		if !resp.Success {
			c.manifestErr = resp.Error
			return
		}
		p := manifest.NewParser()
		man, perr := p.ParseJSON(resp.Result)
		if perr != nil {
			c.manifestErr = perr
			return
		}
		c.loadedMan = man
	})
	return c.loadedMan, c.manifestErr
}

func validationErrorStrings(vr *manifest.ValidationResult) []string {
	out := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		out = append(out, e.Path+": expected "+e.Expected+", got "+e.Actual)
	}
	return out
}

func isBuiltin(request string) bool {
	return manifest.ReservedRequestNames[request]
}
