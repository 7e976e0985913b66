package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// MessageType routes an envelope to the stage handler that consumes it
type MessageType string

const (
	MessageTypeProcessing MessageType = "processing_job"
	MessageTypeChunking   MessageType = "chunking_job"
	MessageTypeIndexing   MessageType = "indexing_job"
)

// Envelope is the wire wrapper stored in the queue. Body holds the typed
// stage message identified by Type; handlers decode it with DecodeBody.
type Envelope struct {
	ID         string          `json:"id"`
	Type       MessageType     `json:"type"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Body       json.RawMessage `json:"body"`
}

// NewEnvelope wraps a stage message for transport
func NewEnvelope(msgType MessageType, body interface{}) (*Envelope, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}
	return &Envelope{
		ID:         uuid.New().String(),
		Type:       msgType,
		EnqueuedAt: time.Now().UTC(),
		Body:       data,
	}, nil
}

// DecodeBody unmarshals the envelope body into the given stage message
func (e *Envelope) DecodeBody(v interface{}) error {
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("failed to decode %s message: %w", e.Type, err)
	}
	return nil
}
