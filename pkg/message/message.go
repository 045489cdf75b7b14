package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Error is a simple error type for message errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// ErrInvalidMessage is returned when input is not a single JSON value.
const ErrInvalidMessage = Error("invalid message")

// Message is a decoded datalink message. It holds any JSON value: usually
// an object, but arrays, strings, numbers, booleans and null pass through
// unchanged.
type Message struct {
	value any
}

// New wraps v as a message. v must be JSON-encodable.
func New(v any) Message {
	return Message{value: v}
}

// Parse decodes exactly one JSON value from data.
func Parse(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Message{}, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidMessage)
	}
	return Message{value: v}, nil
}

// Value returns the decoded JSON value.
func (m Message) Value() any {
	return m.value
}

// Field returns the member key of an object message. It reports false for
// missing keys and for messages that are not objects.
func (m Message) Field(key string) (any, bool) {
	obj, ok := m.value.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// LogValue renders the message as its JSON value in structured logs.
func (m Message) LogValue() slog.Value {
	return slog.AnyValue(m.value)
}

// Encode returns the JSON encoding of m with no trailing delimiter.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m.value)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	return Message{value: cloneValue(m.value)}
}

func cloneMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		// strings, json.Number, float64, bool and nil are immutable
		return v
	}
}

// StripLineEndings removes every trailing carriage return and newline.
func StripLineEndings(line string) string {
	return strings.TrimRight(line, "\r\n")
}
