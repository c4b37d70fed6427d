package save

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed save.schema.json
var schemaJSON string

// ErrInvalidDocument marks a document that could not be parsed or does not
// match the save schema.
var ErrInvalidDocument = errors.New("invalid save document")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("save.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Validate checks raw JSON against the save schema.
func Validate(b []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile save schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// Parse validates and decodes a document. Display fields missing from the
// input keep their defaults.
func Parse(b []byte, defaults DisplayDoc) (Document, error) {
	if err := Validate(b); err != nil {
		return Document{}, err
	}
	doc := Document{Display: defaults}
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}
