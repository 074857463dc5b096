package sockutil

import (
	"net"
	"os"
	"time"

	"github.com/janusrpc/janus/errs"
)

// Conn wraps a SOCK_DGRAM Unix socket with the bind/cleanup semantics this
// spec requires: a stale file is unlinked before bind when requested, the
// file is created with mode 0600, and Close unlinks it again on the way
// out. It is a thin wrapper over *net.UnixConn, the stdlib type that is
// itself the idiomatic way to speak SOCK_DGRAM on a Unix path — no
// ecosystem wrapper in the retrieval pack addresses this socket family
// (the one socket-wrapping dependency present anywhere in the pack,
// mdlayher/vsock, wraps AF_VSOCK, not filesystem-addressed Unix sockets).
type Conn struct {
	path string
	uc   *net.UnixConn
}

// Listen binds a SOCK_DGRAM socket at path. If cleanupOnStart is set, a
// stale file at path is unlinked first. The resulting socket file is
// created with mode 0600.
func Listen(path string, cleanupOnStart bool) (*Conn, error) {
	if cleanupOnStart {
		_ = os.Remove(path)
	}
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, errs.Newf(errs.ServerError, "resolve socket address %q: %v", path, err)
	}
	uc, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, errs.Newf(errs.ServerError, "bind socket %q: %v", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = uc.Close()
		return nil, errs.Newf(errs.ServerError, "chmod socket %q: %v", path, err)
	}
	return &Conn{path: path, uc: uc}, nil
}

// Dial creates an unbound-then-bound SOCK_DGRAM socket at localPath,
// intended to become the reply socket of a client request. Unlike Listen,
// callers are expected to Close+unlink it themselves on every exit path
// (success, failure, timeout, cancellation).
func Dial(localPath string) (*Conn, error) {
	addr, err := net.ResolveUnixAddr("unixgram", localPath)
	if err != nil {
		return nil, errs.Newf(errs.ServerError, "resolve reply socket address %q: %v", localPath, err)
	}
	uc, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, errs.Newf(errs.ServerError, "bind reply socket %q: %v", localPath, err)
	}
	if err := os.Chmod(localPath, 0o600); err != nil {
		_ = uc.Close()
		return nil, errs.Newf(errs.ServerError, "chmod reply socket %q: %v", localPath, err)
	}
	return &Conn{path: localPath, uc: uc}, nil
}

// DialAnonymous creates an unnamed (Linux autobind / abstract-namespace)
// SOCK_DGRAM socket suitable only for sending: it has no filesystem path,
// so Close never attempts to unlink one. Used for fire-and-forget sends
// where no reply socket file should be created at all.
func DialAnonymous() (*Conn, error) {
	addr := &net.UnixAddr{Net: "unixgram", Name: ""}
	uc, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, errs.Newf(errs.ServerError, "create anonymous socket: %v", err)
	}
	return &Conn{uc: uc}, nil
}

// Path returns the filesystem path this socket is bound to.
func (c *Conn) Path() string { return c.path }

// SendTo writes buf as a single datagram to the socket at dstPath.
func (c *Conn) SendTo(buf []byte, dstPath string) error {
	addr, err := net.ResolveUnixAddr("unixgram", dstPath)
	if err != nil {
		return errs.Newf(errs.ServerError, "resolve destination %q: %v", dstPath, err)
	}
	if _, err := c.uc.WriteToUnix(buf, addr); err != nil {
		return errs.Newf(errs.ServerError, "send to %q: %v", dstPath, err)
	}
	return nil
}

// RecvFrom blocks until a single datagram arrives, writing it into buf
// (which must be pre-sized to the configured max message size) and
// returning the number of bytes read. The Go runtime's netpoller already
// retries on EINTR, so no retry loop is needed here.
func (c *Conn) RecvFrom(buf []byte) (int, error) {
	n, _, err := c.uc.ReadFromUnix(buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SetReadDeadline forwards to the underlying connection. The receive loop
// uses this to wake periodically and check for shutdown without blocking
// forever on a closed socket.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.uc.SetReadDeadline(t)
}

// Close closes the socket and unlinks its path, swallowing unlink errors
// for paths that are already gone.
func (c *Conn) Close() error {
	err := c.uc.Close()
	_ = os.Remove(c.path)
	return err
}

// CloseKeepPath closes the socket without unlinking its path, for shutdown
// configurations that intentionally leave the socket file in place.
func (c *Conn) CloseKeepPath() error {
	return c.uc.Close()
}
