// Package jsonschema validates JSON payloads against compiled schemas.
//
// Schemas are compiled once and reused; the callback receiver validates
// every webhook body against the same schema.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors collects the leaf failures of a validation.
type ValidationErrors []error

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON schema.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// Compile compiles a schema document. The name is only used to identify
// the schema in error messages.
func Compile(name, document string) (*Schema, error) {
	if name == "" {
		name = "schema.json"
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(document)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}

	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is like Compile but panics on error. It is meant for
// schemas embedded in the binary.
func MustCompile(name, document string) *Schema {
	s, err := Compile(name, document)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema's name.
func (s *Schema) Name() string { return s.name }

// Validate checks a JSON document. A nil error means the document is valid.
// Schema violations are reported as ValidationErrors; malformed JSON is
// reported as a plain error.
func (s *Schema) Validate(body []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return s.ValidateValue(doc)
}

// ValidateValue checks an already decoded value.
func (s *Schema) ValidateValue(v any) error {
	err := s.schema.Validate(v)
	if err == nil {
		return nil
	}

	if ve, ok := err.(*jsonschema.ValidationError); ok {
		return collect(ve)
	}
	return ValidationErrors{err}
}

func collect(err *jsonschema.ValidationError) ValidationErrors {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return ValidationErrors{fmt.Errorf("%s: %s", loc, err.Message)}
	}

	var out ValidationErrors
	for _, c := range err.Causes {
		out = append(out, collect(c)...)
	}
	return out
}
