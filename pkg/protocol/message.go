// Package protocol defines the websocket messages exchanged between the pilot
// console page and the pilot.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of websocket message.
type MessageType string

const (
	// Page → pilot
	TypePointer MessageType = "pointer" // Pointer down/move/up on a stick
	TypeLayout  MessageType = "layout"  // Page position of a stick's area

	// Pilot → page
	TypeStatus   MessageType = "status"   // Pilot status snapshot
	TypeJoystick MessageType = "joystick" // Joystick render frame
	TypeFrame    MessageType = "frame"    // Video access unit metadata
	TypeError    MessageType = "error"    // Rejected input

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope of every websocket message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// ParseData unmarshals the message data into v.
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// PointerKind is the phase of a pointer event.
type PointerKind string

const (
	PointerDown PointerKind = "down"
	PointerMove PointerKind = "move"
	PointerUp   PointerKind = "up"
)

// PointerData is one pointer event in page coordinates.
type PointerData struct {
	Stick string      `json:"stick"` // "xy" or "zr"
	Kind  PointerKind `json:"kind"`
	X     float64     `json:"x"`
	Y     float64     `json:"y"`
}

// LayoutData is the page position of a stick's area top-left corner.
type LayoutData struct {
	Stick string  `json:"stick"`
	Left  float64 `json:"left"`
	Top   float64 `json:"top"`
}

// FrameData describes one received video access unit.
type FrameData struct {
	Seq       uint64 `json:"seq"`
	Keyframe  bool   `json:"keyframe"`
	Timestamp uint32 `json:"timestamp"`
	Size      int    `json:"size"`
}

// ErrorData explains a rejected message.
type ErrorData struct {
	Message string `json:"message"`
}

// PingData contains ping information.
type PingData struct {
	ID string `json:"id"`
}

// PongData answers a ping.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// NewPongMessage answers ping, measuring latency from its timestamp.
func NewPongMessage(ping *Message) (*Message, error) {
	var data PingData
	if err := ping.ParseData(&data); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        data.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// NewErrorMessage creates an error message.
func NewErrorMessage(format string, args ...any) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: fmt.Sprintf(format, args...)})
}

// GetPointerData extracts pointer data.
func (m *Message) GetPointerData() (*PointerData, error) {
	var data PointerData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLayoutData extracts layout data.
func (m *Message) GetLayoutData() (*LayoutData, error) {
	var data LayoutData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
