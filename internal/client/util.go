package client

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/janusrpc/janus/errs"
)

func marshalArgs(args any) (json.RawMessage, error) {
	if args == nil {
		return nil, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, errs.Newf(errs.InvalidParams, "marshal args: %v", err)
	}
	return raw, nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func basePathName(path string) string {
	return filepath.Base(path)
}
