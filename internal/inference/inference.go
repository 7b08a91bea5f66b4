package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request is one vision-and-text call with a JSON-schema-constrained
// response contract.
type Request struct {
	// Instructions is the system prompt.
	Instructions string

	// Prompt is the user-visible task text accompanying the images.
	Prompt string

	// Images are raster page images, sent in order.
	Images [][]byte

	// SchemaName labels the response contract for the provider.
	SchemaName string

	// Schema is the JSON schema the response must satisfy.
	Schema json.RawMessage
}

// Service is a vision-and-text inference backend. The returned
// payload is guaranteed to validate against the request schema;
// anything the model produced that does not validate surfaces as an
// error so callers can degrade to an empty result.
type Service interface {
	Infer(ctx context.Context, req Request) (json.RawMessage, error)
}

// ValidateAgainstSchema checks a raw response against a JSON schema.
func ValidateAgainstSchema(schemaName string, schema json.RawMessage, payload []byte) error {
	compiled, err := jsonschema.CompileString(schemaName+".json", string(schema))
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", schemaName, err)
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("response failed schema validation: %w", err)
	}
	return nil
}
