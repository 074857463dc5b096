package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/janusrpc/janus/errs"
)

// ValidateArguments validates args (raw JSON object bytes, possibly nil)
// against the RequestSpec declared for (channelName, requestName) in m.
// Rules are applied in the order spec.md §4.4 lists them.
func ValidateArguments(m *Manifest, channelName, requestName string, args json.RawMessage) error {
	ch, ok := m.Channels[channelName]
	if !ok {
		return errs.Newf(errs.MethodNotFound, "unknown channel %q", channelName)
	}
	reqSpec, ok := ch.Requests[requestName]
	if !ok {
		return errs.Newf(errs.MethodNotFound, "unknown request %q in channel %q", requestName, channelName)
	}

	var values map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &values); err != nil {
			return errs.Newf(errs.InvalidParams, "args is not a JSON object: %v", err)
		}
	}

	for name, spec := range reqSpec.Arguments {
		v, present := values[name]
		if !present {
			if spec.Required {
				return errs.Newf(errs.InvalidParams, "missing required argument %q", name)
			}
			continue
		}
		if err := validateValue(name, v, spec); err != nil {
			return err
		}
	}

	if !reqSpec.AdditionalProperties {
		for name := range values {
			if _, declared := reqSpec.Arguments[name]; !declared {
				return errs.Newf(errs.InvalidParams, "unknown argument %q", name)
			}
		}
	}

	return nil
}

// validateValue checks a single decoded JSON value against an
// ArgumentSpec: kind match, then enum/pattern/range/length/items/
// properties constraints, recursing into arrays and objects.
func validateValue(path string, v any, spec *ArgumentSpec) error {
	if !kindMatches(v, spec.Type) {
		return errs.Newf(errs.InvalidParams, "argument %q: expected type %s, got %s", path, spec.Type, jsonKindName(v))
	}

	if len(spec.Enum) > 0 {
		if !enumContains(spec.Enum, v) {
			return errs.Newf(errs.InvalidParams, "argument %q: value is not one of the allowed enum values", path)
		}
	}

	switch spec.Type {
	case TypeString:
		s := v.(string)
		if spec.MinLength != nil && len(s) < *spec.MinLength {
			return errs.Newf(errs.InvalidParams, "argument %q: length %d is below minLength %d", path, len(s), *spec.MinLength)
		}
		if spec.MaxLength != nil && len(s) > *spec.MaxLength {
			return errs.Newf(errs.InvalidParams, "argument %q: length %d exceeds maxLength %d", path, len(s), *spec.MaxLength)
		}
		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return errs.Newf(errs.InvalidParams, "argument %q: invalid pattern: %v", path, err)
			}
			loc := re.FindStringIndex(s)
			if loc == nil || loc[0] != 0 || loc[1] != len(s) {
				return errs.Newf(errs.InvalidParams, "argument %q: value does not match required pattern", path)
			}
		}

	case TypeInteger, TypeNumber:
		n := v.(float64)
		if spec.Minimum != nil && n < *spec.Minimum {
			return errs.Newf(errs.InvalidParams, "argument %q: value %v is below minimum %v", path, n, *spec.Minimum)
		}
		if spec.Maximum != nil && n > *spec.Maximum {
			return errs.Newf(errs.InvalidParams, "argument %q: value %v exceeds maximum %v", path, n, *spec.Maximum)
		}

	case TypeArray:
		arr := v.([]any)
		if spec.Items != nil {
			for i, elem := range arr {
				if err := validateValue(fmt.Sprintf("%s[%d]", path, i), elem, spec.Items); err != nil {
					return err
				}
			}
		}

	case TypeObject:
		obj := v.(map[string]any)
		for propName, propSpec := range spec.Properties {
			pv, present := obj[propName]
			if !present {
				if propSpec.Required {
					return errs.Newf(errs.InvalidParams, "argument %q: missing required property %q", path, propName)
				}
				continue
			}
			if err := validateValue(fmt.Sprintf("%s.%s", path, propName), pv, propSpec); err != nil {
				return err
			}
		}
		if !spec.AdditionalProperties {
			for propName := range obj {
				if _, declared := spec.Properties[propName]; !declared {
					return errs.Newf(errs.InvalidParams, "argument %q: unknown property %q", path, propName)
				}
			}
		}
	}

	return nil
}

// kindMatches reports whether the decoded JSON value v matches the
// declared ArgType. Integer vs number is strict: a JSON number with a
// fractional component never satisfies TypeInteger.
func kindMatches(v any, t ArgType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		n, ok := v.(float64)
		return ok && n == float64(int64(n))
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeNull:
		return v == nil
	default:
		return false
	}
}

func jsonKindName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func enumContains(enum []any, v any) bool {
	for _, candidate := range enum {
		if fmt.Sprintf("%v", candidate) == fmt.Sprintf("%v", v) {
			return true
		}
	}
	return false
}
