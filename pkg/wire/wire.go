// Package wire holds the JSON conventions shared by everything that crosses
// the sandbox boundary: enum variants are externally tagged, unit variants
// are bare strings and tuples are arrays.
package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var ErrVariant = errors.New("bad variant")

// Tag writes v as {"tag": v}.
func Tag(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(name)+3)
	out = append(out, '{')
	out = append(out, name...)
	out = append(out, ':')
	out = append(out, body...)
	return append(out, '}'), nil
}

// Unit writes a unit variant as a bare string.
func Unit(tag string) ([]byte, error) { return json.Marshal(tag) }

// Untag accepts a bare "Tag" string or a single-key object {"Tag": body}.
// Body is nil for unit variants.
func Untag(data []byte) (tag string, body []byte, err error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		err = json.Unmarshal(data, &tag)
		return tag, nil, err
	}
	var m map[string]json.RawMessage
	if err = json.Unmarshal(data, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("%w: expected one key, got %d", ErrVariant, len(m))
	}
	for k, v := range m {
		tag, body = k, v
	}
	return tag, body, nil
}

func Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
