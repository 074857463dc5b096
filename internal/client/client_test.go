package client_test

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/janusrpc/janus/errs"
	"github.com/janusrpc/janus/internal/client"
	"github.com/janusrpc/janus/internal/sockutil"
	"github.com/janusrpc/janus/internal/wire"
)

// fakeServer is a minimal hand-rolled SOCK_DGRAM peer used to drive the
// client's send protocol without depending on the server package.
type fakeServer struct {
	t    *testing.T
	conn *sockutil.Conn
}

func newFakeServer(t *testing.T, path string) *fakeServer {
	t.Helper()
	conn, err := sockutil.Listen(path, true)
	be.Err(t, err, nil)
	t.Cleanup(func() { conn.Close() })
	return &fakeServer{t: t, conn: conn}
}

// respondOnce waits for a single request and replies with the given
// handler's result.
func (f *fakeServer) respondOnce(handle func(*wire.Request) *wire.Response) {
	go func() {
		buf := make([]byte, wire.DefaultMaxMessageSize)
		n, err := f.conn.RecvFrom(buf)
		if err != nil {
			return
		}
		req, err := wire.DecodeRequest(buf[:n], wire.DefaultMaxMessageSize)
		if err != nil {
			return
		}
		resp := handle(req)
		encoded, err := wire.EncodeResponse(resp, wire.DefaultMaxMessageSize)
		if err != nil {
			return
		}
		_ = f.conn.SendTo(encoded, req.ReplyTo)
	}()
}

func newTestClient(t *testing.T, targetPath string) *client.Client {
	t.Helper()
	cfg := client.DefaultClientConfig()
	cfg.EnableValidation = false
	cfg.ConnectionTimeout = 2 * time.Second
	return client.New(targetPath, cfg)
}

func TestSendRequestPing(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	srv := newFakeServer(t, targetPath)
	srv.respondOnce(func(req *wire.Request) *wire.Response {
		be.Equal(t, req.Request, "ping")
		resp, err := wire.NewResult(req.ID, req.ChannelID, map[string]any{"pong": true}, 0)
		be.Err(t, err, nil)
		return resp
	})

	c := newTestClient(t, targetPath)
	resp, h, err := c.SendRequest("default", "ping", nil, time.Second)
	be.Err(t, err, nil)
	be.True(t, resp.Success)
	be.Equal(t, h.Request, "ping")
	be.Equal(t, c.GetRequestStatus(h), client.StatusCompleted)
}

func TestSendRequestEcho(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	srv := newFakeServer(t, targetPath)
	srv.respondOnce(func(req *wire.Request) *wire.Response {
		var args struct {
			Message string `json:"message"`
		}
		be.Err(t, json.Unmarshal(req.Args, &args), nil)
		resp, err := wire.NewResult(req.ID, req.ChannelID, map[string]any{"echo": args.Message}, 0)
		be.Err(t, err, nil)
		return resp
	})

	c := newTestClient(t, targetPath)
	resp, _, err := c.SendRequest("default", "echo", map[string]any{"message": "Hello from client!"}, time.Second)
	be.Err(t, err, nil)

	var result struct {
		Echo string `json:"echo"`
	}
	be.Err(t, json.Unmarshal(resp.Result, &result), nil)
	be.Equal(t, result.Echo, "Hello from client!")
}

func TestSendRequestMethodNotFound(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	srv := newFakeServer(t, targetPath)
	srv.respondOnce(func(req *wire.Request) *wire.Response {
		return wire.NewError(req.ID, req.ChannelID, errs.New(errs.MethodNotFound, "unknown request"), 0)
	})

	c := newTestClient(t, targetPath)
	resp, _, err := c.SendRequest("default", "unknown_cmd", nil, time.Second)
	be.Err(t, err, nil)
	be.True(t, !resp.Success)
	be.Equal(t, resp.Error.Code, errs.MethodNotFound)
}

func TestSendRequestTimesOut(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	srv := newFakeServer(t, targetPath)
	// Never respond, simulating a server stuck processing a slow request.
	go func() {
		buf := make([]byte, wire.DefaultMaxMessageSize)
		_, _ = srv.conn.RecvFrom(buf)
	}()

	c := newTestClient(t, targetPath)
	_, h, err := c.SendRequest("default", "slow_process", nil, 50*time.Millisecond)
	be.True(t, err != nil)
	be.Equal(t, h.Status(), client.StatusTimeout)
}

func TestCancelRequestUnblocksAwait(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	srv := newFakeServer(t, targetPath)
	go func() {
		buf := make([]byte, wire.DefaultMaxMessageSize)
		_, _ = srv.conn.RecvFrom(buf)
	}()

	c := newTestClient(t, targetPath)
	done := make(chan error, 1)
	go func() {
		_, _, err := c.SendRequest("default", "slow_process", nil, 5*time.Second)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	pending := c.GetPendingRequests()
	be.Equal(t, len(pending), 1)

	be.Err(t, c.CancelRequest(pending[0]), nil)

	select {
	case err := <-done:
		be.True(t, err != nil)
	case <-time.After(time.Second):
		t.Fatal("cancel did not unblock the pending send")
	}
}

func TestCancelAllRequestsReturnsCount(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	srv := newFakeServer(t, targetPath)
	go func() {
		buf := make([]byte, wire.DefaultMaxMessageSize)
		for i := 0; i < 2; i++ {
			_, _ = srv.conn.RecvFrom(buf)
		}
	}()

	c := newTestClient(t, targetPath)
	for i := 0; i < 2; i++ {
		go func() { _, _, _ = c.SendRequest("default", "slow_process", nil, 5*time.Second) }()
	}
	time.Sleep(100 * time.Millisecond)

	n := c.CancelAllRequests()
	be.Equal(t, n, 2)
	be.Equal(t, len(c.GetPendingRequests()), 0)
}

func TestGetRequestStatusDefaultsToCompletedForUnknownHandle(t *testing.T) {
	c := newTestClient(t, "/tmp/does-not-matter.sock")
	be.Equal(t, c.GetRequestStatus(nil), client.StatusCompleted)
}

func TestIsConnectedReflectsSocketExistence(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	c := newTestClient(t, targetPath)
	be.True(t, !c.IsConnected())

	newFakeServer(t, targetPath)
	be.True(t, c.IsConnected())
}

func TestManifestAutoFetchValidatesArgs(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	srv := newFakeServer(t, targetPath)

	manifestJSON := []byte(`{
		"version": "1.0.0",
		"channels": {
			"default": {
				"requests": {
					"greet": {
						"arguments": {"name": {"type": "string", "required": true}},
						"response": {"type": "object", "properties": {"message": {"type": "string"}}}
					}
				}
			}
		}
	}`)

	srv.respondOnce(func(req *wire.Request) *wire.Response {
		be.Equal(t, req.Request, "manifest")
		resp, err := wire.NewResult(req.ID, req.ChannelID, json.RawMessage(manifestJSON), 0)
		be.Err(t, err, nil)
		return resp
	})

	cfg := client.DefaultClientConfig()
	cfg.EnableValidation = true
	cfg.ConnectionTimeout = 2 * time.Second
	c := client.New(targetPath, cfg)

	// Missing required "name" argument should be rejected after the
	// manifest is transparently fetched, without ever reaching the wire.
	_, _, err := c.SendRequest("default", "greet", map[string]any{}, time.Second)
	be.True(t, err != nil)
}

func TestSendRequestRejectsTargetPathOutsideAllowedPrefix(t *testing.T) {
	c := newTestClient(t, "/opt/janus/srv.sock")
	_, _, err := c.SendRequest("default", "ping", nil, time.Second)
	be.True(t, err != nil)
	var rpcErr *errs.Error
	be.True(t, errors.As(err, &rpcErr))
	be.Equal(t, rpcErr.Code, errs.ValidationFailed)
}

func TestSendRequestRejectsTargetPathWithDotDot(t *testing.T) {
	c := newTestClient(t, "/tmp/../etc/srv.sock")
	_, _, err := c.SendRequest("default", "ping", nil, time.Second)
	be.True(t, err != nil)
	var rpcErr *errs.Error
	be.True(t, errors.As(err, &rpcErr))
	be.Equal(t, rpcErr.Code, errs.ValidationFailed)
}

func TestSendRequestNoResponseRejectsTargetPathOutsideAllowedPrefix(t *testing.T) {
	c := newTestClient(t, "/opt/janus/srv.sock")
	err := c.SendRequestNoResponse("default", "ping", nil)
	be.True(t, err != nil)
	var rpcErr *errs.Error
	be.True(t, errors.As(err, &rpcErr))
	be.Equal(t, rpcErr.Code, errs.ValidationFailed)
}

func TestSendRequestRejectsOversizedArgs(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "srv.sock")
	newFakeServer(t, targetPath) // never replies; the oversized check short-circuits first

	cfg := client.DefaultClientConfig()
	cfg.EnableValidation = false
	cfg.ConnectionTimeout = time.Second
	cfg.MaxArgsDataSize = 16
	c := client.New(targetPath, cfg)

	_, _, err := c.SendRequest("default", "echo", map[string]any{"message": "this payload is much longer than 16 bytes"}, time.Second)
	be.True(t, err != nil)
	var rpcErr *errs.Error
	be.True(t, errors.As(err, &rpcErr))
	be.Equal(t, rpcErr.Code, errs.SecurityViolation)
}
