package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/janusrpc/janus/errs"
)

// Parser parses and structurally validates Janus manifests.
type Parser struct{}

// NewParser constructs a Parser. It holds no state; the zero value works.
func NewParser() *Parser { return &Parser{} }

// ParseJSON parses data as a JSON manifest and structurally validates it.
// On success it returns a fully cross-reference-resolvable Manifest; on
// failure it returns an *errs.Error describing the phase that failed
// (empty input, malformed JSON, or structural validation).
func (p *Parser) ParseJSON(data []byte) (*Manifest, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errs.New(errs.InvalidRequest, "input string is empty")
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Newf(errs.ParseError, "JSON parsing error: %v", err)
	}
	if err := p.Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseYAML parses data as a YAML manifest. It round-trips through the
// generic yaml.v3 decode so the same json-tagged Manifest struct can be
// reused, since yaml.v3 only honors its own `yaml:` tags natively.
func (p *Parser) ParseYAML(data []byte) (*Manifest, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errs.New(errs.InvalidRequest, "input string is empty")
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, errs.Newf(errs.ParseError, "YAML parsing error: %v", err)
	}
	normalized := normalizeYAML(generic)
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, errs.Newf(errs.ParseError, "YAML parsing error: %v", err)
	}
	return p.ParseJSON(raw)
}

// normalizeYAML converts the map[string]any/map[any]any shapes yaml.v3
// produces into map[string]any recursively, so encoding/json can marshal
// them back out using the Manifest struct's json tags.
func normalizeYAML(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, val := range vv {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return vv
	}
}

// Validate runs the structural checks spec.md §4.3 requires: version
// present and well-formed, at least one channel, every request has a
// response, every $ref resolves, no reserved request names, and argument
// constraints are internally consistent. When any problem is found it
// returns a single *errs.Error whose message is the multi-line Summary of
// every problem.
func (p *Parser) Validate(m *Manifest) error {
	var problems []string

	if m.Version == "" {
		problems = append(problems, "missing version")
	} else if !IsSemVer(m.Version) {
		problems = append(problems, fmt.Sprintf("version %q does not match semantic-version pattern", m.Version))
	}

	if len(m.Channels) == 0 {
		problems = append(problems, "empty channels: manifest must declare at least one channel")
	}

	for chanName, ch := range m.Channels {
		for reqName, reqSpec := range ch.Requests {
			if ReservedRequestNames[reqName] {
				problems = append(problems, fmt.Sprintf("request %q in channel %q collides with a reserved built-in name", reqName, chanName))
			}
			if reqSpec.Response == nil {
				problems = append(problems, fmt.Sprintf("request %q in channel %q has no response", reqName, chanName))
				continue
			}
			if _, err := resolveRef(m, reqSpec.Response, map[string]bool{}); err != nil {
				problems = append(problems, fmt.Sprintf("request %q in channel %q: %v", reqName, chanName, err))
			}
			for argName, arg := range reqSpec.Arguments {
				if err := validateArgumentSpec(arg); err != nil {
					problems = append(problems, fmt.Sprintf("argument %q of request %q in channel %q: %v", argName, reqName, chanName, err))
				}
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errs.New(errs.ValidationFailed, Summary(problems))
}

// Summary renders a human-readable multi-line validation report from a
// list of individual problem descriptions.
func Summary(problems []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("manifest validation failed with %d problem(s):\n", len(problems)))
	for _, p := range problems {
		b.WriteString("  - ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// validateArgumentSpec checks internal consistency of a single argument's
// constraints (minimum <= maximum, minLength >= 0, etc.).
func validateArgumentSpec(a *ArgumentSpec) error {
	if a == nil {
		return fmt.Errorf("nil argument spec")
	}
	if a.MinLength != nil && *a.MinLength < 0 {
		return fmt.Errorf("minLength must be >= 0")
	}
	if a.MaxLength != nil && *a.MaxLength < 0 {
		return fmt.Errorf("maxLength must be >= 0")
	}
	if a.MinLength != nil && a.MaxLength != nil && *a.MinLength > *a.MaxLength {
		return fmt.Errorf("minLength (%d) must be <= maxLength (%d)", *a.MinLength, *a.MaxLength)
	}
	if a.Minimum != nil && a.Maximum != nil && *a.Minimum > *a.Maximum {
		return fmt.Errorf("minimum (%v) must be <= maximum (%v)", *a.Minimum, *a.Maximum)
	}
	if a.Pattern != "" {
		if _, err := regexp.Compile(a.Pattern); err != nil {
			return fmt.Errorf("invalid pattern %q: %v", a.Pattern, err)
		}
	}
	if a.Items != nil {
		if err := validateArgumentSpec(a.Items); err != nil {
			return fmt.Errorf("items: %v", err)
		}
	}
	for name, prop := range a.Properties {
		if err := validateArgumentSpec(prop); err != nil {
			return fmt.Errorf("property %q: %v", name, err)
		}
	}
	return nil
}

// resolveRef resolves resp to a concrete ResponseSpec, following a $ref
// into Manifest.Models. visited guards against cycles: a model visited
// earlier in this resolution chain is never entered again.
func resolveRef(m *Manifest, resp *ResponseSpec, visited map[string]bool) (*ResponseSpec, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response spec")
	}
	if resp.Ref == "" {
		return resp, nil
	}
	name, ok := strings.CutPrefix(resp.Ref, "#/models/")
	if !ok {
		return nil, fmt.Errorf("$ref %q is not of the form #/models/<name>", resp.Ref)
	}
	if visited[name] {
		return nil, fmt.Errorf("cyclic $ref detected at model %q", name)
	}
	model, ok := m.Models[name]
	if !ok {
		return nil, fmt.Errorf("$ref %q does not resolve to a declared model", resp.Ref)
	}
	visited[name] = true
	return resolveRef(m, model, visited)
}

// Resolve is the exported entry point callers (validators) use to follow a
// ResponseSpec's $ref chain down to a concrete, inline shape.
func Resolve(m *Manifest, resp *ResponseSpec) (*ResponseSpec, error) {
	return resolveRef(m, resp, map[string]bool{})
}
