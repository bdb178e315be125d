// Package protocol defines the JSON text frames exchanged over the chat socket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FrameType tags every frame on the wire.
type FrameType string

const (
	TypeUserMessage FrameType = "user_message"
	TypeBotMessage  FrameType = "bot_message"
	TypeTyping      FrameType = "typing"
)

// ErrMalformedFrame is returned for frames that are not JSON objects or lack a type.
var ErrMalformedFrame = errors.New("malformed frame")

// Outbound is a client to server frame.
type Outbound struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
}

// UserMessage builds the only outbound frame the client sends.
func UserMessage(text string) Outbound {
	return Outbound{Type: TypeUserMessage, Message: text}
}

// Inbound is a server to client frame. Fields that do not apply to a type are empty.
type Inbound struct {
	Type      FrameType `json:"type"`
	Message   string    `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// BotMessage builds a bot reply stamped with t.
func BotMessage(text string, t time.Time) Inbound {
	return Inbound{Type: TypeBotMessage, Message: text, Timestamp: FormatTimestamp(t)}
}

// Typing builds the typing control frame. The message is informational only.
func Typing(t time.Time) Inbound {
	return Inbound{Type: TypeTyping, Message: "AI is thinking...", Timestamp: FormatTimestamp(t)}
}

// FormatTimestamp renders t as ISO-8601 with millisecond precision in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// DecodeInbound parses a server frame. Unknown types decode fine and are left
// for the caller to ignore.
func DecodeInbound(data []byte) (Inbound, error) {
	var f Inbound
	if err := json.Unmarshal(data, &f); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}

// DecodeOutbound parses a client frame on the server side.
func DecodeOutbound(data []byte) (Outbound, error) {
	var f Outbound
	if err := json.Unmarshal(data, &f); err != nil {
		return Outbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Outbound{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}
