package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a JSON-RPC request identifier. It holds either a string or an
// integer. The zero value is the null id, which only appears on error
// responses to messages whose id could not be read.
//
// RequestID is comparable and can be used as a map key.
type RequestID struct {
	value interface{}
}

// NewIntID returns a numeric request id.
func NewIntID(n int64) RequestID {
	return RequestID{value: n}
}

// NewStringID returns a string request id.
func NewStringID(s string) RequestID {
	return RequestID{value: s}
}

// IsZero reports whether the id is the null id.
func (id RequestID) IsZero() bool {
	return id.value == nil
}

// Value returns the underlying string, int64, or nil.
func (id RequestID) Value() interface{} {
	return id.value
}

// String returns a printable form of the id suitable for logs and labels.
func (id RequestID) String() string {
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return "null"
	}
}

// GoString implements fmt.GoStringer
func (id RequestID) GoString() string {
	switch v := id.value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return "nil"
	}
}

var _ json.Marshaler = RequestID{}

// MarshalJSON implements json.Marshaler
func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

var _ json.Unmarshaler = &RequestID{}

// UnmarshalJSON implements json.Unmarshaler. Fractional numbers are rejected.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty id")
	}

	switch data[0] {
	case 'n':
		if string(data) != "null" {
			return fmt.Errorf("invalid id %s", data)
		}
		id.value = nil
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid string id: %w", err)
		}
		id.value = s
		return nil
	default:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("id must be a string or an integer, got %s", data)
		}
		id.value = n
		return nil
	}
}
