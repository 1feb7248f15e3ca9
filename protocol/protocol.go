// Package protocol defines the JSON messages exchanged with editor clients.
//
// Every message is a single JSON object with a "type" discriminator. Clients
// send "code" and "input"; the server sends "status", "output", "error" and
// "end".
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types
const (
	TypeCode   = "code"
	TypeInput  = "input"
	TypeStatus = "status"
	TypeOutput = "output"
	TypeError  = "error"
	TypeEnd    = "end"
)

// Inbound is a decoded client message.
type Inbound struct {
	Type     string  `json:"type"`
	Value    *string `json:"value,omitempty"`
	Language string  `json:"language,omitempty"`
}

// Text returns the message value, or "" when the field was absent or null.
func (m Inbound) Text() string {
	if m.Value == nil {
		return ""
	}
	return *m.Value
}

// Outbound is a server notification.
type Outbound struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// MalformedMessageError reports an inbound frame that could not be understood.
type MalformedMessageError struct {
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed message: %s: %v", e.Reason, e.Err)
	}
	return "malformed message: " + e.Reason
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// Decode parses one inbound frame. Unknown types and missing discriminators
// are reported as *MalformedMessageError.
func Decode(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, &MalformedMessageError{Reason: "invalid JSON", Err: err}
	}

	switch msg.Type {
	case TypeCode, TypeInput:
		return msg, nil
	case "":
		return Inbound{}, &MalformedMessageError{Reason: "missing type"}
	default:
		return Inbound{}, &MalformedMessageError{Reason: fmt.Sprintf("unknown type %q", msg.Type)}
	}
}

// Status builds a status notification.
func Status(text string) Outbound {
	return Outbound{Type: TypeStatus, Value: text}
}

// Output builds an output notification carrying a raw chunk of program output.
func Output(chunk string) Outbound {
	return Outbound{Type: TypeOutput, Value: chunk}
}

// Error builds an error notification.
func Error(text string) Outbound {
	return Outbound{Type: TypeError, Value: text}
}

// End marks the end of a run's output stream.
func End() Outbound {
	return Outbound{Type: TypeEnd}
}
