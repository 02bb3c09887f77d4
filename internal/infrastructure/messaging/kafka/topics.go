package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/molecule-search/pkg/errors"
)

const (
	TopicChatCompleted = "chat.completed"

	EventChatCompleted = "chat.completed"

	sourceService = "molecule-search"
	schemaVersion = "v1"
)

// EventEnvelope wraps every payload put on the bus.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// ChatCompletedPayload summarises one chat exchange. The prompt text itself
// is not published, only its length.
type ChatCompletedPayload struct {
	SessionID   string `json:"session_id"`
	PromptChars int    `json:"prompt_chars"`
	SMILES      string `json:"smiles,omitempty"`
	Chunks      int    `json:"chunks"`
	Replaced    int    `json:"replaced"`
	DurationMs  int64  `json:"duration_ms"`
	Status      string `json:"status"`
}

func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        sourceService,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}

// PublishEvent wraps payload in an envelope and publishes it under key.
func PublishEvent(ctx context.Context, p Publisher, topic, eventType, key string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return p.Publish(ctx, topic, []byte(key), value)
}
