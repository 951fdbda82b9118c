package remote

import (
	"github.com/tidwall/gjson"

	"github.com/sidkik/nowsync/pkg/errors"
)

// Reference is a field that points at another record, such as `sys_scope`.
type Reference struct {
	Link  string
	Value string
}

// Value is a single field of a record. It's either a plain string or a
// reference to another record.
type Value struct {
	scalar string
	ref    *Reference
}

// Scalar creates a plain string value.
func Scalar(s string) Value {
	return Value{scalar: s}
}

// Ref creates a reference value.
func Ref(link, value string) Value {
	return Value{ref: &Reference{Link: link, Value: value}}
}

// String returns the value. For references, the ID of the referenced record
// is returned.
func (v Value) String() string {
	if v.ref != nil {
		return v.ref.Value
	}
	return v.scalar
}

// Reference returns the reference if the value is one.
func (v Value) Reference() (Reference, bool) {
	if v.ref == nil {
		return Reference{}, false
	}
	return *v.ref, true
}

// Record is a single row of a table.
type Record map[string]Value

// Get returns the raw value of `field`.
func (r Record) Get(field string) (Value, bool) {
	v, ok := r[field]
	return v, ok
}

// String returns the value of `field`, or an errors.MissingFieldError if the
// record doesn't have the field.
func (r Record) String(field string) (string, error) {
	v, ok := r[field]
	if !ok {
		return "", errors.MissingFieldError{Field: field}
	}
	return v.String(), nil
}

// Value returns the value of `field`, or the empty string if the record
// doesn't have it.
func (r Record) Value(field string) string {
	return r[field].String()
}

// ID returns the record's `sys_id`.
func (r Record) ID() string {
	return r.Value(FieldID)
}

// ScopeID returns the ID of the application that the record belongs to.
func (r Record) ScopeID() string {
	return r.Value(FieldScope)
}

func parseRecord(result gjson.Result) Record {
	record := Record{}
	result.ForEach(func(key, value gjson.Result) bool {
		switch {
		case value.IsObject():
			record[key.String()] = Ref(value.Get("link").String(), value.Get("value").String())
		case value.Type == gjson.Null:
			record[key.String()] = Scalar("")
		default:
			record[key.String()] = Scalar(value.String())
		}
		return true
	})
	return record
}

// parseResult decodes the `result` member of a Table API response, which is
// either a single record or a list of records.
func parseResult(body []byte) ([]Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON response")
	}

	result := gjson.GetBytes(body, "result")
	switch {
	case result.IsArray():
		records := []Record{}
		for _, item := range result.Array() {
			if !item.IsObject() {
				return nil, errors.New("unexpected record type: %s", item.Type)
			}
			records = append(records, parseRecord(item))
		}
		return records, nil
	case result.IsObject():
		return []Record{parseRecord(result)}, nil
	default:
		return nil, errors.MissingFieldError{Field: "result"}
	}
}
