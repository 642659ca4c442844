// Package ipc carries structured command and response messages between the
// supervisor and its worker process over inherited pipes.
package ipc

import (
	"fmt"
	"sort"
	"strings"
)

// Reserved message keys.
const (
	KeyCmd          = "cmd"
	KeyError        = "error"
	KeyStartupError = "_startup_error"
)

// Message is one queue payload: string keys to JSON-compatible values.
//
// Requests always carry KeyCmd. Responses carry a command-specific payload,
// KeyError for command failures, or KeyStartupError when the worker crashed.
type Message map[string]any

// Envelope pairs a message with the correlation id of the request it belongs to.
// Startup error sentinels carry an empty id.
type Envelope struct {
	ID   string
	Body Message
}

// Cmd returns the request command name.
func (m Message) Cmd() string {
	return m.String(KeyCmd)
}

// ErrorText returns the command failure text when the message reports one.
func (m Message) ErrorText() (string, bool) {
	return m.stringKey(KeyError)
}

// StartupError returns the worker crash diagnostic when the message is a sentinel.
func (m Message) StartupError() (string, bool) {
	return m.stringKey(KeyStartupError)
}

// String returns a string field or "" when absent or not a string.
func (m Message) String(key string) string {
	value, _ := m[key].(string)
	return value
}

// Has reports whether key is present, even with a nil value.
func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Describe renders a stable, single-line form for logs and error messages.
func (m Message) Describe() string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", key, m[key]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func (m Message) stringKey(key string) (string, bool) {
	raw, ok := m[key]
	if !ok {
		return "", false
	}
	if s, isString := raw.(string); isString {
		return s, true
	}
	return fmt.Sprint(raw), true
}
