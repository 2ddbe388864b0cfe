package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType defines the type of a dashboard viewer message
type MessageType string

const (
	// server -> viewer
	MsgList   MessageType = "list"
	MsgDetail MessageType = "detail"
	MsgNotify MessageType = "notify"
	MsgStatus MessageType = "status"

	// viewer -> server
	MsgVisibility MessageType = "visibility"
	MsgRefresh    MessageType = "refresh"
	MsgSelect     MessageType = "select"
)

// ViewerMessage is the envelope for dashboard websocket communication
type ViewerMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Fragment carries a rendered markup fragment for the list or detail pane
type Fragment struct {
	HTML string `json:"html"`
}

// Notification is a transient message shown to the viewer
type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Status reports whether the controller is currently polling
type Status struct {
	Polling  bool `json:"polling"`
	Interval int  `json:"interval_ms"`
}

// Visibility is sent by a viewer when its page is hidden or shown
type Visibility struct {
	Hidden bool `json:"hidden"`
}

// Select asks the dashboard to select a captured request
type Select struct {
	ID uint64 `json:"id"`
}

// NewMessage wraps a payload in a ViewerMessage
func NewMessage(msgType MessageType, payload any) (*ViewerMessage, error) {
	msg := &ViewerMessage{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	msg.Payload = payloadBytes
	return msg, nil
}

// Decode unmarshals the message payload into v
func (m *ViewerMessage) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("empty payload for %s message", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", m.Type, err)
	}
	return nil
}
