package client

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a pending or completed request.
type RequestStatus int

// StatusCompleted is the zero value: a handle never registered as pending
// reports Completed, per the "handles default to completed" rule.
const (
	StatusCompleted RequestStatus = iota
	StatusPending
	StatusFailed
	StatusCancelled
	StatusTimeout
)

func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	case StatusTimeout:
		return "Timeout"
	default:
		return "Completed"
	}
}

// RequestHandle is an opaque, client-side token identifying one in-flight
// request. Its internal correlation id is never exposed directly: callers
// see only the request name, channel, creation time, and status. The id
// exists for registry/cancellation plumbing and is reachable only via
// internalId, an unexported accessor.
type RequestHandle struct {
	internalID string
	Request    string
	Channel    string
	CreatedAt  time.Time

	status    atomic.Int32
	cancelled atomic.Bool
}

func newHandle(request, channel string) *RequestHandle {
	return &RequestHandle{
		internalID: uuid.NewString(),
		Request:    request,
		Channel:    channel,
		CreatedAt:  time.Now(),
	}
}

func (h *RequestHandle) internalId() string { return h.internalID }

// Status reports the handle's current lifecycle state.
func (h *RequestHandle) Status() RequestStatus {
	return RequestStatus(h.status.Load())
}

func (h *RequestHandle) setStatus(s RequestStatus) {
	h.status.Store(int32(s))
}

// Cancelled reports whether this handle was cancelled through
// Client.CancelRequest or Client.CancelAllRequests.
func (h *RequestHandle) Cancelled() bool {
	return h.cancelled.Load()
}

func (h *RequestHandle) markCancelled() {
	h.cancelled.Store(true)
	h.setStatus(StatusCancelled)
}
