package testutil

import (
	"time"

	"github.com/hupe1980/convopipe/core"
)

// EventBuilder provides a fluent helper for constructing inbound events in
// tests. Example:
//
//	ev := NewEventBuilder("conv-1").Text("oi").Hint("msg-1").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	conversationID  string
	fingerprintHint string
	text            string
	timestamp       time.Time
	correlationID   string
}

// NewEventBuilder creates a builder for an event bound to a conversation.
func NewEventBuilder(conversationID string) *EventBuilder {
	return &EventBuilder{conversationID: conversationID}
}

// Text sets the message body (chainable).
func (b *EventBuilder) Text(t string) *EventBuilder { b.text = t; return b }

// Hint sets the provider-assigned message id used as fingerprint hint (chainable).
func (b *EventBuilder) Hint(h string) *EventBuilder { b.fingerprintHint = h; return b }

// At sets the receive timestamp (chainable). Defaults to time.Now.
func (b *EventBuilder) At(ts time.Time) *EventBuilder { b.timestamp = ts; return b }

// Correlation sets the correlation id (chainable). Defaults to a fresh id.
func (b *EventBuilder) Correlation(id string) *EventBuilder { b.correlationID = id; return b }

// Build constructs the core.InboundEvent value.
func (b *EventBuilder) Build() core.InboundEvent {
	ts := b.timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	corr := b.correlationID
	if corr == "" {
		corr = core.NewID()
	}
	return core.InboundEvent{
		ConversationID:  b.conversationID,
		FingerprintHint: b.fingerprintHint,
		Text:            b.text,
		Timestamp:       ts,
		CorrelationID:   corr,
	}
}
