package backend

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/campus/core"
)

// Record is a single item of a resource: a storage assigned identifier plus
// one value per declared field. Values are string, bool or core.LocalDateTime.
//
// A record with ID 0 has not been persisted yet.
type Record struct {
	ID     int64
	Values map[string]interface{}
	fields []FieldConfiguration
}

// NewRecord returns an empty record for the resource
func (rc *ResourceConfiguration) NewRecord() Record {
	return Record{Values: make(map[string]interface{}, len(rc.Fields)), fields: rc.Fields}
}

// Get returns the value of a field
func (r Record) Get(name string) interface{} {
	return r.Values[name]
}

// MarshalJSON renders the record with the id first and all fields in declaration order
func (r Record) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`{"id":`)
	b.WriteString(strconv.FormatInt(r.ID, 10))
	for _, field := range r.fields {
		name, _ := json.Marshal(field.Name)
		value, err := json.Marshal(r.Values[field.Name])
		if err != nil {
			return nil, fmt.Errorf("cannot marshal field %s: %w", field.Name, err)
		}
		b.WriteByte(',')
		b.Write(name)
		b.WriteByte(':')
		b.Write(value)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// parseValue converts a query parameter into a field value
func (f FieldConfiguration) parseValue(s string) (interface{}, error) {
	switch f.Type {
	case FieldTypeBoolean:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a boolean", s)
		}
		return v, nil
	case FieldTypeDatetime:
		v, err := core.ParseLocalDateTime(s)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a local date time", s)
		}
		return v, nil
	}
	return s, nil
}

// jsonValue converts a decoded JSON value into a field value
func (f FieldConfiguration) jsonValue(v interface{}) (interface{}, error) {
	switch f.Type {
	case FieldTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%v is not a boolean", v)
		}
		return b, nil
	case FieldTypeDatetime:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%v is not a local date time", v)
		}
		return f.parseValue(s)
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%v is not a string", v)
	}
	return s, nil
}

// sqlValue converts a field value into a database parameter
func sqlValue(v interface{}) interface{} {
	if l, ok := v.(core.LocalDateTime); ok {
		return l.Time
	}
	return v
}

// fromSQLValue converts a scanned database value into a field value
func fromSQLValue(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return core.NewLocalDateTime(t)
	}
	return v
}
