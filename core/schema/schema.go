// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package schema validates JSON documents against JSON schemas.

Schemas are addressed by their "$id":

	v, err := schema.NewValidator(helpRequestSchema, ucsbDateSchema)
	err = v.Validate("http://schemas.campus/HelpRequest.json", body)
*/
package schema

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// Validator validates documents against a set of compiled schemas
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// ValidationError lists every violation of a document
type ValidationError struct {
	SchemaID   string
	Violations []string
}

func (e *ValidationError) Error() string {
	return "the document is not valid:\n- " + strings.Join(e.Violations, "\n- ")
}

// NewValidator compiles the given schemas. Every schema needs a unique "$id".
func NewValidator(schemas ...string) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(schemas))}
	for _, s := range schemas {
		var header struct {
			ID string `json:"$id"`
		}
		if err := json.Unmarshal([]byte(s), &header); err != nil {
			return nil, fmt.Errorf("parse error in schema: %w", err)
		}
		if len(header.ID) == 0 {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", s)
		}
		if v.HasSchema(header.ID) {
			return nil, fmt.Errorf("duplicate schema %s", header.ID)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %w", header.ID, err)
		}
		v.schemas[header.ID] = compiled
	}
	return v, nil
}

// HasSchema returns true if schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	if v == nil {
		return false
	}
	_, ok := v.schemas[schemaID]
	return ok
}

// Validate validates document against the schema schemaID. A document which does not
// match the schema yields a *ValidationError.
func (v *Validator) Validate(schemaID string, document []byte) error {
	if !v.HasSchema(schemaID) {
		return fmt.Errorf("there is no schema %s", schemaID)
	}
	result, err := v.schemas[schemaID].Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s: %w", schemaID, err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{SchemaID: schemaID}
	for _, e := range result.Errors() {
		verr.Violations = append(verr.Violations, e.String())
	}
	return verr
}
