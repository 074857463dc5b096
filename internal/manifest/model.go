// Package manifest implements the Janus manifest model, parser, $ref
// resolution, and the argument/response validators that check live traffic
// against a parsed manifest.
package manifest

import "regexp"

// ReservedRequestNames are request names the server's built-in set owns;
// a user manifest may not declare a request by any of these names.
var ReservedRequestNames = map[string]bool{
	"ping":         true,
	"echo":         true,
	"get_info":     true,
	"manifest":     true,
	"validate":     true,
	"slow_process": true,
}

// semverPattern is a pragmatic (not fully RFC-faithful) semantic version
// matcher: MAJOR.MINOR.PATCH with an optional -prerelease/+build suffix.
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// ArgType enumerates the JSON kinds an ArgumentSpec or ResponseSpec may
// declare.
type ArgType string

const (
	TypeString  ArgType = "string"
	TypeInteger ArgType = "integer"
	TypeNumber  ArgType = "number"
	TypeBoolean ArgType = "boolean"
	TypeArray   ArgType = "array"
	TypeObject  ArgType = "object"
	TypeNull    ArgType = "null"
)

// Manifest is the top-level declaration of a server's channels, requests,
// and the models its responses reference.
type Manifest struct {
	Version  string                  `json:"version" yaml:"version"`
	Channels map[string]*ChannelSpec `json:"channels" yaml:"channels"`
	Models   map[string]*ModelSpec   `json:"models,omitempty" yaml:"models,omitempty"`
}

// ChannelSpec is a namespace of requests within a manifest.
type ChannelSpec struct {
	Description string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Requests    map[string]*RequestSpec `json:"requests" yaml:"requests"`
}

// RequestSpec declares one request's arguments, response shape, and the
// error codes it may return.
type RequestSpec struct {
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Arguments   map[string]*ArgumentSpec `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Response    *ResponseSpec            `json:"response" yaml:"response"`
	ErrorCodes  []int                    `json:"errorCodes,omitempty" yaml:"errorCodes,omitempty"`
	// AdditionalProperties, when true, permits arguments not named in
	// Arguments to pass through unvalidated instead of being rejected as
	// unknown, the top-level counterpart of ArgumentSpec.AdditionalProperties.
	AdditionalProperties bool `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty"`
}

// ArgumentSpec declares the shape and constraints of one request argument.
type ArgumentSpec struct {
	Type        ArgType                  `json:"type" yaml:"type"`
	Required    bool                     `json:"required,omitempty" yaml:"required,omitempty"`
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	MinLength   *int                     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength   *int                     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern     string                   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Minimum     *float64                 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum     *float64                 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Enum        []any                    `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       *ArgumentSpec            `json:"items,omitempty" yaml:"items,omitempty"`
	Properties  map[string]*ArgumentSpec `json:"properties,omitempty" yaml:"properties,omitempty"`
	// AdditionalProperties, when true, permits arguments/object members not
	// named in Properties to pass through unvalidated instead of being
	// rejected as unknown.
	AdditionalProperties bool `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty"`
}

// ResponseSpec declares the shape of a request's response, either inline
// (Type/Properties/Items) or by reference to a model (Ref).
type ResponseSpec struct {
	Ref        string                   `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Type       ArgType                  `json:"type,omitempty" yaml:"type,omitempty"`
	Properties map[string]*ArgumentSpec `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items      *ArgumentSpec            `json:"items,omitempty" yaml:"items,omitempty"`
}

// ModelSpec is a reusable response shape, referenced via "#/models/<name>".
type ModelSpec = ResponseSpec

// IsSemVer reports whether s matches the semantic-version pattern this
// manifest format requires of Manifest.Version.
func IsSemVer(s string) bool {
	return semverPattern.MatchString(s)
}
