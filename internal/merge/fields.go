// Package merge places extracted field values into a runsheet without
// silently overwriting populated cells.
package merge

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// Row maps column name to cell value.
type Row map[string]string

// Dataset is an ordered list of rows.
type Dataset []Row

// Field is one extracted column value.
type Field struct {
	Name  string
	Value string
}

// OrderedFields is extracted data in a stable order. Conflicts are reported
// in this order.
type OrderedFields []Field

// FieldsFromMap orders m by columns, then any remaining keys alphabetically.
func FieldsFromMap(m map[string]string, columns []string) OrderedFields {
	out := make(OrderedFields, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, col := range columns {
		if v, ok := m[col]; ok && !seen[col] {
			out = append(out, Field{Name: col, Value: v})
			seen[col] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, Field{Name: k, Value: m[k]})
	}
	return out
}

// Get returns the value for name.
func (f OrderedFields) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// Map returns the fields as a map.
func (f OrderedFields) Map() map[string]string {
	m := make(map[string]string, len(f))
	for _, field := range f {
		m[field.Name] = field.Value
	}
	return m
}

// MarshalJSON writes the fields as an object in order.
func (f OrderedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping key order. Non-string values are
// kept as their JSON text; null becomes "". A repeated key keeps its first
// position and its last value.
func (f *OrderedFields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "read fields")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return eris.New("fields must be a JSON object")
	}

	out := OrderedFields{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "read field name")
		}
		name, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return eris.Wrapf(err, "read field %q", name)
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			value = string(raw)
		}

		if i, ok := index[name]; ok {
			out[i].Value = value
			continue
		}
		index[name] = len(out)
		out = append(out, Field{Name: name, Value: value})
	}
	*f = out
	return nil
}
