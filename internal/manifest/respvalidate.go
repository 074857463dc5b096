package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/janusrpc/janus/errs"
)

// ValidationError is one structured failure produced by ValidateResponse.
type ValidationError struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Code     int    `json:"code"`
}

// ValidationResult is the outcome of validating a response's result payload
// against a manifest's ResponseSpec.
type ValidationResult struct {
	Valid           bool              `json:"valid"`
	Errors          []ValidationError `json:"errors"`
	FieldsValidated int               `json:"fieldsValidated"`
	ValidationTime  time.Duration     `json:"validationTime"`
}

// ValidateResponse validates result against the ResponseSpec declared for
// (channelName, requestName) in m, resolving a $ref to its model first.
func ValidateResponse(m *Manifest, channelName, requestName string, result json.RawMessage) (*ValidationResult, error) {
	start := time.Now()

	ch, ok := m.Channels[channelName]
	if !ok {
		return nil, errs.Newf(errs.MethodNotFound, "unknown channel %q", channelName)
	}
	reqSpec, ok := ch.Requests[requestName]
	if !ok {
		return nil, errs.Newf(errs.MethodNotFound, "unknown request %q in channel %q", requestName, channelName)
	}
	if reqSpec.Response == nil {
		return &ValidationResult{Valid: true, ValidationTime: time.Since(start)}, nil
	}

	spec, err := Resolve(m, reqSpec.Response)
	if err != nil {
		return nil, errs.Newf(errs.ValidationFailed, "resolving response manifest: %v", err)
	}

	var value any
	if len(result) > 0 {
		if err := json.Unmarshal(result, &value); err != nil {
			return nil, errs.Newf(errs.ValidationFailed, "result is not valid JSON: %v", err)
		}
	}

	res := &ValidationResult{Valid: true}
	validateResponseValue("result", value, spec, res)
	res.ValidationTime = time.Since(start)
	if len(res.Errors) > 0 {
		res.Valid = false
	}
	return res, nil
}

func validateResponseValue(path string, v any, spec *ResponseSpec, res *ValidationResult) {
	res.FieldsValidated++

	if spec.Type != "" {
		argSpec := &ArgumentSpec{Type: spec.Type, Items: spec.Items, Properties: spec.Properties, AdditionalProperties: true}
		if !kindMatches(v, spec.Type) {
			res.Errors = append(res.Errors, ValidationError{
				Path:     path,
				Expected: string(spec.Type),
				Actual:   jsonKindName(v),
				Code:     int(errs.ValidationFailed),
			})
			return
		}
		switch spec.Type {
		case TypeArray:
			if arr, ok := v.([]any); ok && argSpec.Items != nil {
				for i, elem := range arr {
					validateResponseValue(fmt.Sprintf("%s[%d]", path, i), elem, &ResponseSpec{Type: argSpec.Items.Type, Items: argSpec.Items.Items, Properties: argSpec.Items.Properties}, res)
				}
			}
		case TypeObject:
			if obj, ok := v.(map[string]any); ok {
				for propName, propSpec := range spec.Properties {
					pv, present := obj[propName]
					res.FieldsValidated++
					if !present {
						if propSpec.Required {
							res.Errors = append(res.Errors, ValidationError{
								Path:     path + "." + propName,
								Expected: "present",
								Actual:   "missing",
								Code:     int(errs.ValidationFailed),
							})
						}
						continue
					}
					validateResponseValue(path+"."+propName, pv, &ResponseSpec{Type: propSpec.Type, Items: propSpec.Items, Properties: propSpec.Properties}, res)
				}
			}
		}
	}
}
