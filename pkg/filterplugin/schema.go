package filterplugin

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema for the hot-loaded YAML rule file shape,
// so external tooling can validate a file before it is dropped into a
// watched directory.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&RuleFile{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "Filter Rule File"
	schema.Description = "Declarative channel filter rules for dispatchd's hot-loaded filter plugin directory"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal filter rule schema: %w", err)
	}
	return out, nil
}
