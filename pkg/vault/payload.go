package vault

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wilhg/vault/pkg/errmodel"
)

// payloadSchema describes what Add accepts: an object whose well-known
// fields, when present, have the right JSON type. Everything else is free.
const payloadSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": ["string", "null"]},
    "date": {"type": ["string", "null"]}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(payloadSchema), &doc); err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("mem://record-payload.json", doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("mem://record-payload.json")
	})
	return schema, schemaErr
}

// ValidatePayload checks v against the add-payload schema.
func ValidatePayload(v any) error {
	sch, err := compiledSchema()
	if err != nil {
		return errmodel.System("schema_invalid", "compile payload schema", nil, err)
	}
	if err := sch.Validate(v); err != nil {
		ctx := map[string]any{}
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			ctx["detail"] = ve.Error()
		}
		return errmodel.Validation(errmodel.CodeInvalidBody, "payload does not match the record shape", ctx)
	}
	return nil
}

// DecodePayload parses a request body into an add payload.
func DecodePayload(body []byte) (map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errmodel.Validation(errmodel.CodeInvalidBody, "request body is empty", nil)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, errmodel.Validation(errmodel.CodeInvalidBody, "request body is not valid JSON", map[string]any{"detail": err.Error()})
	}
	if err := ValidatePayload(v); err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}
