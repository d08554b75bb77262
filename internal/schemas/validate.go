// Package schemas validates model responses against JSON Schemas.
package schemas

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError is one schema violation at a JSON path.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every violation found in one response.
type ValidationError struct {
	Fields []FieldError
}

func (ve *ValidationError) Error() string {
	return "response failed schema validation: " + ve.Summary()
}

// Summary renders the field errors on one line, for log attributes and operator messages.
func (ve *ValidationError) Summary() string {
	parts := make([]string, len(ve.Fields))
	for i, fe := range ve.Fields {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(parts, "; ")
}

// Validator checks documents against one compiled schema. It is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile builds a Validator from a schema held as a Go value, typically a map[string]any.
func Compile(schema any) (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile response schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate checks a JSON document. Violations are reported as *ValidationError; a document
// that is not JSON returns a plain decode error.
func (v *Validator) Validate(jsonContent string) error {
	result, err := v.schema.Validate(gojsonschema.NewStringLoader(jsonContent))
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Fields: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Fields = append(ve.Fields, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}
