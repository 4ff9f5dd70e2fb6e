package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/obrapay/pkg/telemetry/correlation"
)

const TypeSettlementCompleted = "settlement.completed"

// Envelope wraps every event published by the service.
type Envelope struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Payload    json.RawMessage   `json:"payload"`
}

func NewEnvelope(ctx context.Context, eventType string, payload any, at time.Time) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:         ulid.Make().String(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Metadata:   correlation.Fields(ctx),
		Payload:    data,
	}, nil
}
