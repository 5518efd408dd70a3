package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks JSON documents against one compiled JSON schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the given JSON schema document.
func NewValidator(schema string) (*Validator, error) {
	compiled, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("cannot compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// ValidateString validates the given json. If no error is returned, then the
// passed json is valid.
func (v *Validator) ValidateString(json string) error {
	result, err := v.schema.Validate(gojsonschema.NewStringLoader(json))
	if err != nil {
		return fmt.Errorf("cannot validate document: %w", err)
	}

	if !result.Valid() {
		var b strings.Builder
		b.WriteString("the document is not valid:")
		for _, e := range result.Errors() {
			b.WriteString("\n- ")
			b.WriteString(e.String())
		}
		return errors.New(b.String())
	}
	return nil
}
