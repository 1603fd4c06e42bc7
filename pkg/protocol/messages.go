// Package protocol defines the frames exchanged on the record streaming websocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cisec/eflp/pkg/types"
)

// MessageType represents the type of a stream frame.
type MessageType string

const (
	// Server -> client frames
	MessageTypeRecords MessageType = "records"
	MessageTypeDone    MessageType = "done"
	MessageTypeError   MessageType = "error"
)

// Error codes carried by MessageTypeError frames.
const (
	CodeBadFrame = "bad_frame"
	CodeRead     = "read"
)

// Message is the envelope of every frame.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RecordsBatch carries a batch of normalized records. Seq starts at 1 and
// increases per batch, so a client can detect gaps.
type RecordsBatch struct {
	Vendor  string         `json:"vendor"`
	Seq     int            `json:"seq"`
	Records []types.Record `json:"records"`
}

// Done closes a successful stream.
type Done struct {
	Vendor     string `json:"vendor"`
	Batches    int    `json:"batches"`
	Lines      int    `json:"lines"`
	Records    int    `json:"records"`
	Skipped    int    `json:"skipped"`
	DurationMs int64  `json:"duration_ms"`
}

// Error closes a failed stream.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a frame with the given type and payload.
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", msgType, err)
	}

	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

// ParsePayload unmarshals the message payload into the given target.
func (m *Message) ParsePayload(target interface{}) error {
	return json.Unmarshal(m.Payload, target)
}

// Decode parses a raw frame.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	switch m.Type {
	case MessageTypeRecords, MessageTypeDone, MessageTypeError:
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", m.Type)
	}
}
