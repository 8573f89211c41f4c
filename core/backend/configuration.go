// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/access"
)

// FieldType is the kind of a resource field
type FieldType string

// all supported field types
const (
	FieldTypeString   FieldType = "string"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDatetime FieldType = "datetime"
)

// Configuration holds a complete backend configuration
type Configuration struct {
	Resources []ResourceConfiguration `json:"resources"`
}

// ResourceConfiguration describes a resource with a flat list of fields
type ResourceConfiguration struct {
	Resource    string               `json:"resource"`
	Path        string               `json:"path"`
	Table       string               `json:"table"`
	Fields      []FieldConfiguration `json:"fields"`
	Permits     []access.Permit      `json:"permits"`
	Description string               `json:"description"`
	// DeletedName names the resource in delete confirmations. Defaults to Resource.
	DeletedName string               `json:"deletedName"`
}

// FieldConfiguration describes a single field of a resource
type FieldConfiguration struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Column      string    `json:"column"`
	Aliases     []string  `json:"aliases"`
	Description string    `json:"description"`
}

// DefaultPermits are used for resources which do not declare permits:
// users may read and list, admins may do everything.
var DefaultPermits = []access.Permit{
	{Role: access.RoleUser, Operations: []core.Operation{core.OperationRead, core.OperationList}},
	{Role: access.RoleAdmin, Operations: core.AllOperations},
}

// ParseConfiguration parses a JSON backend configuration, checks it for consistency
// and fills in the defaults for tables, columns and permits.
func ParseConfiguration(data []byte) (Configuration, error) {
	var config Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse error in backend configuration: %w", err)
	}

	resources := map[string]bool{}
	paths := map[string]bool{}
	for i := range config.Resources {
		rc := &config.Resources[i]
		if len(rc.Resource) == 0 {
			return config, fmt.Errorf("resource %d has no name", i)
		}
		if resources[rc.Resource] {
			return config, fmt.Errorf("resource %s declared twice", rc.Resource)
		}
		resources[rc.Resource] = true

		rc.Path = "/" + strings.Trim(rc.Path, "/")
		if rc.Path == "/" {
			return config, fmt.Errorf("resource %s has no path", rc.Resource)
		}
		if paths[rc.Path] {
			return config, fmt.Errorf("path %s used twice", rc.Path)
		}
		paths[rc.Path] = true

		if len(rc.Table) == 0 {
			rc.Table = core.SnakeCase(rc.Resource)
		}
		if len(rc.DeletedName) == 0 {
			rc.DeletedName = rc.Resource
		}
		if len(rc.Permits) == 0 {
			rc.Permits = DefaultPermits
		}
		if len(rc.Fields) == 0 {
			return config, fmt.Errorf("resource %s has no fields", rc.Resource)
		}

		names := map[string]bool{"id": true}
		for j := range rc.Fields {
			field := &rc.Fields[j]
			switch field.Type {
			case FieldTypeString, FieldTypeBoolean, FieldTypeDatetime:
			default:
				return config, fmt.Errorf("field %s.%s has unknown type '%s'", rc.Resource, field.Name, field.Type)
			}
			if len(field.Column) == 0 {
				field.Column = core.SnakeCase(field.Name)
			}
			for _, name := range append([]string{field.Name}, field.Aliases...) {
				if len(name) == 0 || names[name] {
					return config, fmt.Errorf("field name '%s' of resource %s is empty or not unique", name, rc.Resource)
				}
				names[name] = true
			}
		}
	}
	return config, nil
}

// schemaID returns the JSON schema id for update bodies of the resource
func (rc *ResourceConfiguration) schemaID() string {
	return "http://schemas.campus/" + rc.Resource + ".json"
}

// jsonSchema returns a JSON schema for update bodies. All fields are required,
// additional properties are permitted and ignored.
func (rc *ResourceConfiguration) jsonSchema() string {
	properties := map[string]interface{}{}
	required := []string{}
	for _, field := range rc.Fields {
		var property map[string]interface{}
		switch field.Type {
		case FieldTypeBoolean:
			property = map[string]interface{}{"type": "boolean"}
		case FieldTypeDatetime:
			property = map[string]interface{}{
				"type":    "string",
				"pattern": `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(:\d{2}(\.\d+)?)?$`,
			}
		default:
			property = map[string]interface{}{"type": "string"}
		}
		properties[field.Name] = property
		required = append(required, field.Name)
	}
	schema, _ := json.Marshal(map[string]interface{}{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"$id":        rc.schemaID(),
		"title":      rc.Resource,
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return string(schema)
}
