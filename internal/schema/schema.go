// Package schema validates outbound payloads against the container
// data JSON schema. The schema is compiled once at startup; a schema
// that does not compile is a fatal configuration error.
package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

//go:embed container-data.schema.json
var defaultSchema []byte

type Validator struct {
	schema *jsonschema.Schema
}

// Load compiles the schema at path, or the embedded default when path
// is empty.
func Load(path string) (*Validator, error) {
	raw := defaultSchema
	ref := "embedded://container-data.schema.json"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		raw = b
		ref = path
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(ref, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema resource: %w", err)
	}
	sch, err := c.Compile(ref)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// ValidateRecord checks the record's textual form against the schema.
func (v *Validator) ValidateRecord(r *model.Record) error {
	doc := make(map[string]any, model.FieldCount)
	for k, val := range r.Fields() {
		doc[k] = val
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
