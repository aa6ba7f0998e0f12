package policy

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// schemaV1 is the JSON Schema for relay session files.
const schemaV1 = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Relay Session Configuration",
  "type": "object",
  "required": ["name", "participants"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9_-]+$"},
    "kickoff": {"type": "string"},
    "max_exchanges": {"type": "integer", "minimum": 1, "maximum": 500},
    "max_tokens": {"type": "integer", "minimum": 1, "maximum": 32000},
    "pace": {"type": "string", "pattern": "^[0-9]+(ms|s|m)$"},
    "participants": {
      "type": "array",
      "minItems": 2,
      "items": {
        "type": "object",
        "required": ["name", "provider", "model"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z][A-Za-z0-9_-]*$"},
          "provider": {"type": "string", "enum": ["anthropic", "openai", "xai", "openrouter"]},
          "model": {"type": "string", "minLength": 1},
          "persona": {"type": "string"},
          "identity": {"type": "string", "pattern": "^[a-z0-9_-]*$"},
          "scope": {"type": "string", "pattern": "^[a-z0-9_-]*$"},
          "api_key_env": {"type": "string"}
        }
      }
    },
    "hydration": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "budget": {"type": "integer", "minimum": 200},
        "top_n": {"type": "integer", "minimum": 1, "maximum": 100},
        "max_notes": {"type": "integer", "minimum": 1, "maximum": 100},
        "excerpts": {"type": "integer", "minimum": 1, "maximum": 50}
      }
    }
  }
}`

// ValidateSchema validates session YAML bytes against the v1 JSON schema.
// The YAML is converted to JSON first because gojsonschema operates on JSON.
func ValidateSchema(yamlBytes []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return fmt.Errorf("parsing YAML for schema validation: %w", err)
	}

	// yaml.v3 decodes top-level map keys as string, but nested maps need
	// normalizing before json.Marshal will accept them.
	jsonBytes, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("converting YAML to JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(schemaV1)
	documentLoader := gojsonschema.NewBytesLoader(jsonBytes)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for _, verr := range result.Errors() {
			errMsg += fmt.Sprintf("- %s\n", verr)
		}
		return fmt.Errorf("schema validation errors:\n%s", errMsg)
	}
	return nil
}

// normalizeYAML recursively converts map[interface{}]interface{} to
// map[string]interface{} so that json.Marshal can handle it.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
