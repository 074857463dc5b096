// Package sockutil implements the Unix-domain datagram socket primitives
// shared by the Janus client and server: path validation, bind/cleanup,
// and ephemeral reply-socket naming.
package sockutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/janusrpc/janus/errs"
)

// MaxSocketPathLength is one less than the sockaddr_un path buffer size on
// Linux (108 bytes including the NUL terminator), so paths of this length
// or shorter are accepted and anything longer is rejected.
const MaxSocketPathLength = 107

// DefaultAllowedPrefixes is the default set of directories a socket path
// must resolve under.
var DefaultAllowedPrefixes = []string{"/tmp", "/var/run"}

// ValidatePath enforces the boundary rules on a candidate socket path:
// absolute, no longer than MaxSocketPathLength, no embedded NUL byte, no
// ".." path segment, and must resolve under one of allowedPrefixes.
func ValidatePath(path string, allowedPrefixes []string) error {
	if path == "" {
		return errs.New(errs.ValidationFailed, "socket path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		return errs.Newf(errs.ValidationFailed, "socket path %q must be absolute", path)
	}
	if len(path) > MaxSocketPathLength {
		return errs.Newf(errs.ValidationFailed, "socket path length %d exceeds maximum %d", len(path), MaxSocketPathLength)
	}
	if strings.ContainsRune(path, 0) {
		return errs.New(errs.ValidationFailed, "socket path contains a NUL byte")
	}
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if seg == ".." {
			return errs.Newf(errs.ValidationFailed, "socket path %q contains a '..' segment", path)
		}
	}

	if len(allowedPrefixes) == 0 {
		allowedPrefixes = DefaultAllowedPrefixes
	}
	clean := filepath.Clean(path)
	for _, prefix := range allowedPrefixes {
		if clean == prefix || strings.HasPrefix(clean, strings.TrimSuffix(prefix, "/")+"/") {
			return nil
		}
	}
	return errs.Newf(errs.ValidationFailed, "socket path %q does not resolve under an allowed prefix", path)
}

// lastStamp enforces strict monotonicity on the nanosecond component of
// EphemeralReplyPath even when the wall clock doesn't advance between two
// calls in the same process (e.g. back-to-back calls on a coarse clock).
var lastStamp int64

// EphemeralReplyPath builds a per-request reply socket path next to base,
// following the <base>_response_<pid>_<monotonic-nanos> naming pattern. No
// two concurrent calls from this process produce the same path: pid is
// constant across the process and the nanosecond stamp is forced to
// strictly increase call over call.
func EphemeralReplyPath(base string) string {
	dir := filepath.Dir(base)
	name := filepath.Base(base)
	stamp := nextStamp()
	full := fmt.Sprintf("%s_response_%d_%d", name, os.Getpid(), stamp)
	return filepath.Join(dir, full)
}

func nextStamp() int64 {
	for {
		old := atomic.LoadInt64(&lastStamp)
		now := time.Now().UnixNano()
		next := now
		if next <= old {
			next = old + 1
		}
		if atomic.CompareAndSwapInt64(&lastStamp, old, next) {
			return next
		}
	}
}

// ParseEphemeralPID extracts the pid embedded in a path produced by
// EphemeralReplyPath, mainly useful for diagnostics/tests.
func ParseEphemeralPID(path string) (int, bool) {
	parts := strings.Split(filepath.Base(path), "_response_")
	if len(parts) != 2 {
		return 0, false
	}
	fields := strings.SplitN(parts[1], "_", 2)
	if len(fields) != 2 {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return pid, true
}
