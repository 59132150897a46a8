package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kwarg is one named argument.
type Kwarg struct {
	Name  string
	Value any
}

// Kwargs is an ordered list of named arguments passed to a callback.
// Insertion order is preserved, including through JSON round trips.
type Kwargs []Kwarg

// KV builds a single kwarg, for literal Kwargs{KV("a", 1), KV("b", 2)}.
func KV(name string, value any) Kwarg {
	return Kwarg{Name: name, Value: value}
}

// Get returns the value for name and whether it is present.
func (k Kwargs) Get(name string) (any, bool) {
	for _, kw := range k {
		if kw.Name == name {
			return kw.Value, true
		}
	}
	return nil, false
}

// Set replaces the value for name, or appends it when absent.
func (k *Kwargs) Set(name string, value any) {
	for i, kw := range *k {
		if kw.Name == name {
			(*k)[i].Value = value
			return
		}
	}
	*k = append(*k, Kwarg{Name: name, Value: value})
}

// MarshalJSON renders a JSON object with keys in insertion order.
func (k Kwargs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kw := range k {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(kw.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(kw.Value)
		if err != nil {
			return nil, fmt.Errorf("kwarg %q: %w", kw.Name, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order as encountered.
// JSON null yields empty kwargs.
func (k *Kwargs) UnmarshalJSON(b []byte) error {
	*k = Kwargs{}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("kwargs: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("kwargs: expected key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("kwarg %q: %w", name, err)
		}
		*k = append(*k, Kwarg{Name: name, Value: normalizeNumbers(value)})
	}
	return nil
}

// normalizeNumbers converts json.Number values (used to keep integers
// exact) into int64 where possible, float64 otherwise.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeNumbers(t[i])
		}
	case map[string]any:
		for key, value := range t {
			t[key] = normalizeNumbers(value)
		}
	}
	return v
}
