// ABOUTME: Ordered key/value payload for a remote action.
// ABOUTME: Field order is kept so JSON and multipart bodies follow the caller's order.

package botapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Params is the payload of one remote action. Keys keep insertion order;
// setting an existing key replaces its value in place.
type Params struct {
	keys   []string
	values map[string]any
}

// NewParams builds a payload from alternating key, value arguments.
// It panics on an odd count or a non-string key, like a malformed map literal would fail to compile.
func NewParams(kv ...any) *Params {
	if len(kv)%2 != 0 {
		panic("botapi: NewParams needs key/value pairs")
	}
	p := &Params{values: make(map[string]any, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("botapi: NewParams key %v is not a string", kv[i]))
		}
		p.Set(key, kv[i+1])
	}
	return p
}

// Set stores value under key and returns p for chaining.
func (p *Params) Set(key string, value any) *Params {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Get returns the value stored under key.
func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of fields. A nil Params is empty.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the field names in order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Each calls fn for every field in order and stops at the first error.
func (p *Params) Each(fn func(key string, value any) error) error {
	if p == nil {
		return nil
	}
	for _, k := range p.keys {
		if err := fn(k, p.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes the fields as one object in insertion order.
func (p *Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	err := p.Each(func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding field %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
