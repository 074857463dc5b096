package server

import (
	"encoding/json"
	"time"

	"github.com/janusrpc/janus/errs"
	"github.com/janusrpc/janus/internal/wire"
)

// Version is the server's reported build identifier, surfaced by get_info.
const Version = "0.1.0"

func (s *Server) builtinPing(*wire.Request) (any, *errs.Error) {
	return map[string]any{"pong": true, "timestamp": nowSeconds()}, nil
}

func (s *Server) builtinEcho(req *wire.Request) (any, *errs.Error) {
	var args struct {
		Message string `json:"message"`
	}
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, errs.Newf(errs.InvalidParams, "echo: args is not a JSON object: %v", err)
		}
	}
	return map[string]any{"echo": args.Message}, nil
}

func (s *Server) builtinGetInfo(*wire.Request) (any, *errs.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"version":            Version,
		"uptimeSeconds":      time.Since(s.startedAt).Seconds(),
		"requestsHandled":    s.requestsHandled,
		"activeHandlers":     len(s.inFlight),
		"registeredHandlers": len(s.handlers),
	}, nil
}

func (s *Server) builtinManifest(*wire.Request) (any, *errs.Error) {
	s.mu.Lock()
	man := s.manifest
	s.mu.Unlock()
	if man == nil {
		return map[string]any{}, nil
	}
	return man, nil
}

// builtinValidate checks whether args.message is itself parseable JSON,
// returning the decoded value on success or a reason string on failure.
// It validates the message payload, not traffic against the manifest
// (that's the job of argument/response validation on ordinary requests).
func (s *Server) builtinValidate(req *wire.Request) (any, *errs.Error) {
	var args struct {
		Message *string `json:"message"`
	}
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, errs.Newf(errs.InvalidParams, "validate: args is not a JSON object: %v", err)
		}
	}
	if args.Message == nil {
		return map[string]any{"valid": false, "error": "no message provided for validation"}, nil
	}
	var data any
	if err := json.Unmarshal([]byte(*args.Message), &data); err != nil {
		return map[string]any{"valid": false, "error": "invalid JSON format", "reason": err.Error()}, nil
	}
	return map[string]any{"valid": true, "data": data}, nil
}

func (s *Server) builtinSlowProcess(req *wire.Request) (any, *errs.Error) {
	s.mu.Lock()
	delay := s.cfg.SlowProcessDelay
	s.mu.Unlock()
	time.Sleep(delay)

	var args struct {
		Message string `json:"message"`
	}
	if len(req.Args) > 0 {
		_ = json.Unmarshal(req.Args, &args)
	}
	return map[string]any{"processed": true, "message": args.Message}, nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
