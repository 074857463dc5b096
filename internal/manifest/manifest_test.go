package manifest_test

import (
	"encoding/json"
	"testing"

	"github.com/nalgeon/be"

	"github.com/janusrpc/janus/internal/manifest"
)

const sampleManifest = `{
  "version": "1.0.0",
  "channels": {
    "default": {
      "description": "default channel",
      "requests": {
        "greet": {
          "description": "greets someone",
          "arguments": {
            "name": {"type": "string", "required": true, "minLength": 1, "maxLength": 64}
          },
          "response": {"$ref": "#/models/Greeting"}
        }
      }
    }
  },
  "models": {
    "Greeting": {
      "type": "object",
      "properties": {
        "message": {"type": "string", "required": true}
      }
    }
  }
}`

func TestParseJSONRoundTrip(t *testing.T) {
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(sampleManifest))
	be.Err(t, err, nil)
	be.Equal(t, m.Version, "1.0.0")
	be.True(t, m.Channels["default"] != nil)

	raw, err := json.Marshal(m)
	be.Err(t, err, nil)
	m2, err := p.ParseJSON(raw)
	be.Err(t, err, nil)
	be.Equal(t, m2.Version, m.Version)
	be.Equal(t, len(m2.Channels), len(m.Channels))
}

func TestParseJSONRejectsEmptyInput(t *testing.T) {
	p := manifest.NewParser()
	_, err := p.ParseJSON([]byte(""))
	be.True(t, err != nil)
}

func TestParseJSONRejectsMalformed(t *testing.T) {
	p := manifest.NewParser()
	_, err := p.ParseJSON([]byte("{not json"))
	be.True(t, err != nil)
}

func TestParseJSONRejectsMissingVersion(t *testing.T) {
	p := manifest.NewParser()
	_, err := p.ParseJSON([]byte(`{"channels":{"c":{"requests":{"r":{"response":{"type":"string"}}}}}}`))
	be.True(t, err != nil)
}

func TestParseJSONRejectsEmptyChannels(t *testing.T) {
	p := manifest.NewParser()
	_, err := p.ParseJSON([]byte(`{"version":"1.0.0","channels":{}}`))
	be.True(t, err != nil)
}

func TestParseJSONRejectsReservedRequestName(t *testing.T) {
	p := manifest.NewParser()
	_, err := p.ParseJSON([]byte(`{
		"version":"1.0.0",
		"channels":{"c":{"requests":{"ping":{"response":{"type":"string"}}}}}
	}`))
	be.True(t, err != nil)
}

func TestParseJSONRejectsUnresolvedRef(t *testing.T) {
	p := manifest.NewParser()
	_, err := p.ParseJSON([]byte(`{
		"version":"1.0.0",
		"channels":{"c":{"requests":{"r":{"response":{"$ref":"#/models/Missing"}}}}}
	}`))
	be.True(t, err != nil)
}

func TestParseJSONRejectsBadSemver(t *testing.T) {
	p := manifest.NewParser()
	_, err := p.ParseJSON([]byte(`{
		"version":"not-a-version",
		"channels":{"c":{"requests":{"r":{"response":{"type":"string"}}}}}
	}`))
	be.True(t, err != nil)
}

func TestParseYAML(t *testing.T) {
	yamlDoc := `
version: "1.0.0"
channels:
  default:
    requests:
      greet:
        arguments:
          name:
            type: string
            required: true
        response:
          type: object
          properties:
            message:
              type: string
`
	p := manifest.NewParser()
	m, err := p.ParseYAML([]byte(yamlDoc))
	be.Err(t, err, nil)
	be.Equal(t, m.Version, "1.0.0")
	be.True(t, m.Channels["default"].Requests["greet"] != nil)
}

func TestCyclicRefIsValidationError(t *testing.T) {
	p := manifest.NewParser()
	_, err := p.ParseJSON([]byte(`{
		"version":"1.0.0",
		"channels":{"c":{"requests":{"r":{"response":{"$ref":"#/models/A"}}}}},
		"models":{
			"A":{"$ref":"#/models/B"},
			"B":{"$ref":"#/models/A"}
		}
	}`))
	be.True(t, err != nil)
}

func TestValidateArgumentsRequiredMissing(t *testing.T) {
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(sampleManifest))
	be.Err(t, err, nil)

	err = manifest.ValidateArguments(m, "default", "greet", nil)
	be.True(t, err != nil)
}

func TestValidateArgumentsSuccess(t *testing.T) {
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(sampleManifest))
	be.Err(t, err, nil)

	args, _ := json.Marshal(map[string]any{"name": "Ada"})
	err = manifest.ValidateArguments(m, "default", "greet", args)
	be.Err(t, err, nil)
}

func TestValidateArgumentsUnknownRequest(t *testing.T) {
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(sampleManifest))
	be.Err(t, err, nil)

	err = manifest.ValidateArguments(m, "default", "unknown_cmd", nil)
	be.True(t, err != nil)
}

func TestValidateArgumentsTypeMismatch(t *testing.T) {
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(sampleManifest))
	be.Err(t, err, nil)

	args, _ := json.Marshal(map[string]any{"name": 42})
	err = manifest.ValidateArguments(m, "default", "greet", args)
	be.True(t, err != nil)
}

func TestValidateArgumentsRejectsUnknownArgument(t *testing.T) {
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(sampleManifest))
	be.Err(t, err, nil)

	args, _ := json.Marshal(map[string]any{"name": "Ada", "extra": true})
	err = manifest.ValidateArguments(m, "default", "greet", args)
	be.True(t, err != nil)
}

func TestValidateArgumentsAllowsUnknownWhenRequestIsOpen(t *testing.T) {
	doc := `{
		"version":"1.0.0",
		"channels":{"c":{"requests":{"r":{
			"arguments":{"name":{"type":"string","required":true}},
			"response":{"type":"string"},
			"additionalProperties":true
		}}}}
	}`
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(doc))
	be.Err(t, err, nil)

	args, _ := json.Marshal(map[string]any{"name": "Ada", "extra": true})
	err = manifest.ValidateArguments(m, "c", "r", args)
	be.Err(t, err, nil)
}

func TestValidateResponseSuccess(t *testing.T) {
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(sampleManifest))
	be.Err(t, err, nil)

	result, _ := json.Marshal(map[string]any{"message": "hello"})
	vr, err := manifest.ValidateResponse(m, "default", "greet", result)
	be.Err(t, err, nil)
	be.True(t, vr.Valid)
	be.True(t, vr.FieldsValidated > 0)
}

func TestValidateResponseMissingRequiredField(t *testing.T) {
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(sampleManifest))
	be.Err(t, err, nil)

	result, _ := json.Marshal(map[string]any{})
	vr, err := manifest.ValidateResponse(m, "default", "greet", result)
	be.Err(t, err, nil)
	be.True(t, !vr.Valid)
	be.True(t, len(vr.Errors) > 0)
}

func TestIntegerVsNumberIsStrict(t *testing.T) {
	doc := `{
		"version":"1.0.0",
		"channels":{"c":{"requests":{"r":{
			"arguments":{"count":{"type":"integer","required":true}},
			"response":{"type":"string"}
		}}}}
	}`
	p := manifest.NewParser()
	m, err := p.ParseJSON([]byte(doc))
	be.Err(t, err, nil)

	args, _ := json.Marshal(map[string]any{"count": 3.5})
	err = manifest.ValidateArguments(m, "c", "r", args)
	be.True(t, err != nil)

	args, _ = json.Marshal(map[string]any{"count": 3})
	err = manifest.ValidateArguments(m, "c", "r", args)
	be.Err(t, err, nil)
}
