package yellow

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Invoice field names understood by the API. The set is open: any other key
// set on Fields is sent as-is and validated by the server.
const (
	FieldBaseCcy   = "base_ccy"
	FieldBasePrice = "base_price"
	FieldCallback  = "callback"
	FieldOrder     = "order"
	FieldType      = "type"
	FieldRedirect  = "redirect"
)

// Fields is an ordered set of invoice request parameters. It encodes to a
// JSON object with keys in insertion order, so the body that gets signed is
// the body the caller built.
//
// The zero value is ready to use. Fields is not safe for concurrent mutation.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewInvoiceFields returns Fields with the two parameters every invoice needs.
func NewInvoiceFields(baseCcy, basePrice string) *Fields {
	f := &Fields{}
	f.Set(FieldBaseCcy, baseCcy)
	f.Set(FieldBasePrice, basePrice)
	return f
}

// Set assigns value to key. An existing key keeps its position.
func (f *Fields) Set(key string, value any) *Fields {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
	return f
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (any, bool) {
	if f == nil || f.values == nil {
		return nil, false
	}
	v, ok := f.values[key]
	return v, ok
}

// Delete removes key if present.
func (f *Fields) Delete(key string) {
	if f == nil || f.values == nil {
		return
	}
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Clone returns a copy that can be modified without touching f. Values are
// copied shallowly.
func (f *Fields) Clone() *Fields {
	out := &Fields{}
	if f == nil {
		return out
	}
	for _, key := range f.keys {
		out.Set(key, f.values[key])
	}
	return out
}

// MarshalJSON encodes the fields as a compact JSON object in insertion order.
func (f *Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.values[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the order keys appear in.
// Numbers are kept as json.Number so prices survive without float rounding.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected JSON object")
	}

	*f = Fields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("fields: expected string key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		f.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
