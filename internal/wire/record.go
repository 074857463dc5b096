// Package wire implements the Janus wire codec: the JSON record shapes
// exchanged between client and server, and the two encodings used to carry
// them (a single-datagram JSON form, and a length-framed form used for
// stream-like diagnostics and tests).
package wire

import (
	"encoding/json"

	"github.com/janusrpc/janus/errs"
)

// Request is the record sent by a client to a server.
type Request struct {
	ID        string          `json:"id"`
	ChannelID string          `json:"channelId"`
	Request   string          `json:"request"`
	Args      json.RawMessage `json:"args,omitempty"`
	ReplyTo   string          `json:"reply_to,omitempty"`
	Timeout   float64         `json:"timeout,omitempty"`
	Timestamp float64         `json:"timestamp"`
}

// Response is the record a server sends back to a client's reply socket.
type Response struct {
	RequestID string          `json:"requestId"`
	ChannelID string          `json:"channelId"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *errs.Error     `json:"error,omitempty"`
	Timestamp float64         `json:"timestamp"`
}

// NewResult builds a successful Response whose Result is the JSON encoding
// of v.
func NewResult(requestID, channelID string, v any, timestamp float64) (*Response, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Response{
		RequestID: requestID,
		ChannelID: channelID,
		Success:   true,
		Result:    raw,
		Timestamp: timestamp,
	}, nil
}

// NewError builds a failed Response carrying e.
func NewError(requestID, channelID string, e *errs.Error, timestamp float64) *Response {
	return &Response{
		RequestID: requestID,
		ChannelID: channelID,
		Success:   false,
		Error:     e,
		Timestamp: timestamp,
	}
}
