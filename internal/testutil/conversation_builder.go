package testutil

import (
	"time"

	"github.com/hupe1980/convopipe/core"
)

// ConversationBuilder helps construct conversations with fluent chaining
// for tests. Example:
//
//	conv := NewConversationBuilder("conv-1").State(core.StateQualifying).Turn("user", "oi").Build()
type ConversationBuilder struct {
	id      string
	state   core.State
	version int64
	intents []string
	turns   []core.Turn
	outcome *core.Outcome
	ttl     time.Duration
}

// NewConversationBuilder creates a builder for a conversation with the
// given id. Use chainable methods then call Build.
func NewConversationBuilder(id string) *ConversationBuilder {
	return &ConversationBuilder{id: id, state: core.StateNew, version: 1, ttl: 2 * time.Hour}
}

// State sets the current state (chainable).
func (b *ConversationBuilder) State(s core.State) *ConversationBuilder { b.state = s; return b }

// Version overrides the starting version (chainable).
func (b *ConversationBuilder) Version(v int64) *ConversationBuilder { b.version = v; return b }

// TTL sets the inactivity TTL (chainable).
func (b *ConversationBuilder) TTL(d time.Duration) *ConversationBuilder { b.ttl = d; return b }

// Intent appends a pending intent (chainable).
func (b *ConversationBuilder) Intent(i string) *ConversationBuilder {
	b.intents = append(b.intents, i)
	return b
}

// Turn appends a history turn (chainable).
func (b *ConversationBuilder) Turn(role, text string) *ConversationBuilder {
	b.turns = append(b.turns, core.Turn{Role: role, Text: text, Timestamp: time.Now().UTC()})
	return b
}

// Outcome sets a terminal outcome (chainable).
func (b *ConversationBuilder) Outcome(o core.Outcome) *ConversationBuilder {
	b.outcome = &o
	return b
}

// Build returns a *core.Conversation with the configured shape.
func (b *ConversationBuilder) Build() *core.Conversation {
	c := core.NewConversation(b.id, b.ttl)
	c.CurrentState = b.state
	c.Version = b.version
	c.PendingIntents = append(c.PendingIntents, b.intents...)
	c.HistoryWindow = append(c.HistoryWindow, b.turns...)
	c.Outcome = b.outcome
	return c
}
