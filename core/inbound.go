package core

import (
	"time"

	"github.com/hupe1980/convopipe/internal/util"
)

// InboundEvent is the normalized conversational event handed over by the
// (out of scope) webhook/normalization layer. Delivery is at-least-once;
// the fingerprint derived from this event is what makes processing
// exactly-once per logical unit of work.
type InboundEvent struct {
	// ConversationID identifies the counterpart (one conversation per identity).
	ConversationID string `json:"conversation_id"`
	// FingerprintHint carries the provider-assigned message id when the
	// provider supplies one. When empty the fingerprint falls back to a
	// content digest.
	FingerprintHint string `json:"fingerprint_hint,omitempty"`
	// Text is the message body.
	Text string `json:"text"`
	// Timestamp is the provider receive time. Volatile: excluded from
	// fingerprint derivation.
	Timestamp time.Time `json:"timestamp"`
	// CorrelationID threads the delivery through logs and audit events.
	CorrelationID string `json:"correlation_id"`
}

// NewID generates a unique identifier for events and audit records.
func NewID() string { return util.NewID() }
