// Package audit provides audit event emission for operator-relevant actions.
//
// Purpose:
//
//	Defines the audit event schema and an Emitter interface with two
//	implementations: a zerolog-backed stub for development and a Kafka
//	producer for production streams.
//
// Key Responsibilities:
//   - Event struct with action, actor and target identities
//   - LoggerEmitter logs events as structured JSON (never fails)
//   - KafkaEmitter produces to the configured audit topic
//
// Thread Safety:
//   - Emitter implementations are safe for concurrent use.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Actions emitted by the bot service.
const (
	ActionUserStart       = "user.start"
	ActionReferralCreated = "referral.register"
	ActionBroadcastStart  = "broadcast.start"
	ActionBroadcastFinish = "broadcast.finish"
	ActionAPIKeyRotate    = "apikey.rotate"
)

// Event represents a single audit record.
type Event struct {
	EventID   uuid.UUID      `json:"event_id"`
	ActorID   int64          `json:"actor_id"`
	TargetID  int64          `json:"target_id,omitempty"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(action string, actorID, targetID int64, metadata map[string]any) Event {
	return Event{
		EventID:   uuid.New(),
		ActorID:   actorID,
		TargetID:  targetID,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// Emitter abstracts the audit backend.
type Emitter interface {
	// Emit records an audit event. Returns an error for monitoring; callers
	// treat emission as best effort.
	Emit(ctx context.Context, event Event) error
}

// LoggerEmitter is a development stub that logs audit events as JSON.
type LoggerEmitter struct {
	logger zerolog.Logger
}

// NewLoggerEmitter creates a logger-based audit emitter.
func NewLoggerEmitter(logger zerolog.Logger) *LoggerEmitter {
	return &LoggerEmitter{logger: logger.With().Str("component", "audit").Logger()}
}

// Emit logs the audit event. Never fails.
func (e *LoggerEmitter) Emit(ctx context.Context, event Event) error {
	e.logger.Info().
		Str("event_id", event.EventID.String()).
		Int64("actor_id", event.ActorID).
		Int64("target_id", event.TargetID).
		Str("action", event.Action).
		Interface("metadata", event.Metadata).
		Msg("audit event")
	return nil
}

// NoopEmitter discards all events. Useful in tests.
type NoopEmitter struct{}

// Emit discards the event.
func (NoopEmitter) Emit(ctx context.Context, event Event) error {
	return nil
}
