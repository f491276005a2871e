package pii

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a single scalar field value. Null is tracked separately so a
// JSON null round-trips instead of collapsing into an empty string.
type Value struct {
	Str  string
	Null bool
}

// Record is an ordered mapping from field key to scalar value. Key order
// is the order fields were set (or appeared in the source JSON), and is
// preserved through analysis and re-serialization.
type Record struct {
	keys   []string
	values map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{values: make(map[string]Value)}
}

// Set stores a string value under key, appending the key if it is new.
func (r *Record) Set(key, value string) {
	r.set(key, Value{Str: value})
}

// SetNull stores an explicit null under key.
func (r *Record) SetNull(key string) {
	r.set(key, Value{Null: true})
}

func (r *Record) set(key string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r Record) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Keys returns the field keys in insertion order. The slice is shared;
// callers must not modify it.
func (r Record) Keys() []string {
	return r.keys
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// Clone returns a deep copy with the same keys, values, and order.
func (r Record) Clone() Record {
	out := Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]Value, len(r.values)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// MarshalJSON serializes the record as a JSON object in key order.
// String values are emitted as JSON strings and nulls as JSON null, which
// is also the canonical form hashed for verdict caching.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		v := r.values[key]
		if v.Null {
			buf.WriteString("null")
			continue
		}
		vb, err := json.Marshal(v.Str)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object into an ordered record. Scalars are
// normalized to strings (numbers keep their literal form, booleans become
// "true"/"false"), nulls stay null, and nested arrays or objects are
// flattened to their compact JSON text so the classifier only ever sees
// scalar values.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record payload must be a JSON object, got %v", tok)
	}

	*r = NewRecord()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key token %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		val, err := normalizeScalar(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.set(key, val)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// normalizeScalar converts one raw JSON value to a scalar Value.
func normalizeScalar(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{Null: true}, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return Value{Str: s}, nil
	case 'n':
		return Value{Null: true}, nil
	case '{', '[':
		// Nested structure: flatten to its compact JSON text.
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return Value{}, err
		}
		return Value{Str: buf.String()}, nil
	default:
		// Numbers and booleans keep their literal form.
		return Value{Str: string(raw)}, nil
	}
}
