package core

import "time"

// State enumerates the per-conversation state machine.
type State string

const (
	StateNew           State = "NEW"
	StateGreeting      State = "GREETING"
	StateQualifying    State = "QUALIFYING"
	StateInProgress    State = "IN_PROGRESS"
	StateAwaitingInput State = "AWAITING_INPUT"
	StateClosing       State = "CLOSING"
	StateExpired       State = "EXPIRED"
)

// Outcome is a terminal marker. Once set, the conversation is immutable
// except for audit-trail appends.
type Outcome string

const (
	OutcomeCompleted     Outcome = "COMPLETED"
	OutcomeRejectedAbuse Outcome = "REJECTED_ABUSE"
	OutcomeExpired       Outcome = "EXPIRED"
	OutcomeAbandoned     Outcome = "ABANDONED"
)

// Capacity bounds for the ordered sequences carried by a conversation.
// Eviction is oldest-first.
const (
	MaxPendingIntents = 3
	MaxHistoryTurns   = 10
)

// Turn is one entry of the bounded history window.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the versioned per-counterpart state. Version is the
// optimistic-concurrency token: Save only succeeds against the exact
// version that was loaded, and the store bumps it by one on success.
type Conversation struct {
	ID             string   `json:"id"`
	Version        int64    `json:"version"`
	CurrentState   State    `json:"current_state"`
	PendingIntents []string `json:"pending_intents,omitempty"`
	HistoryWindow  []Turn   `json:"history_window,omitempty"`
	Outcome        *Outcome `json:"outcome,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewConversation creates a fresh conversation in StateNew with the given
// inactivity TTL. Version starts at 1.
func NewConversation(id string, ttl time.Duration) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:           id,
		Version:      1,
		CurrentState: StateNew,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// Clone returns a deep copy safe for independent mutation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.PendingIntents = append([]string(nil), c.PendingIntents...)
	clone.HistoryWindow = append([]Turn(nil), c.HistoryWindow...)
	if c.Outcome != nil {
		o := *c.Outcome
		clone.Outcome = &o
	}
	return &clone
}

// Terminal reports whether a terminal outcome has been set.
func (c *Conversation) Terminal() bool { return c.Outcome != nil }

// SetOutcome sets the terminal outcome exactly once. A second call returns
// ErrConversationClosed regardless of the value.
func (c *Conversation) SetOutcome(o Outcome) error {
	if c.Outcome != nil {
		return ErrConversationClosed
	}
	c.Outcome = &o
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ExpiredAt reports whether the conversation's inactivity TTL has elapsed
// at the given instant.
func (c *Conversation) ExpiredAt(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Touch extends the inactivity TTL after a processed event.
func (c *Conversation) Touch(ttl time.Duration) {
	now := time.Now().UTC()
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(ttl)
}

// PushIntent appends an intent, evicting the oldest entry once the bound
// of MaxPendingIntents is reached.
func (c *Conversation) PushIntent(intent string) {
	c.PendingIntents = append(c.PendingIntents, intent)
	if len(c.PendingIntents) > MaxPendingIntents {
		c.PendingIntents = append([]string(nil), c.PendingIntents[len(c.PendingIntents)-MaxPendingIntents:]...)
	}
}

// PopIntent removes and returns the oldest pending intent.
func (c *Conversation) PopIntent() (string, bool) {
	if len(c.PendingIntents) == 0 {
		return "", false
	}
	head := c.PendingIntents[0]
	c.PendingIntents = append([]string(nil), c.PendingIntents[1:]...)
	return head, true
}

// AddTurn appends a turn to the history window, evicting the oldest entry
// once the bound of MaxHistoryTurns is reached.
func (c *Conversation) AddTurn(role, text string) {
	c.HistoryWindow = append(c.HistoryWindow, Turn{Role: role, Text: text, Timestamp: time.Now().UTC()})
	if len(c.HistoryWindow) > MaxHistoryTurns {
		c.HistoryWindow = append([]Turn(nil), c.HistoryWindow[len(c.HistoryWindow)-MaxHistoryTurns:]...)
	}
}

// HistorySummary renders the history window as "role: text" lines for the
// reasoning backend's bounded context.
func (c *Conversation) HistorySummary() []string {
	out := make([]string, 0, len(c.HistoryWindow))
	for _, t := range c.HistoryWindow {
		out = append(out, t.Role+": "+t.Text)
	}
	return out
}

// transitions is the closed adjacency of the state machine. A selector
// output outside the current state's candidates is out-of-contract.
var transitions = map[State][]State{
	StateNew:           {StateGreeting, StateQualifying},
	StateGreeting:      {StateQualifying, StateClosing},
	StateQualifying:    {StateInProgress, StateAwaitingInput, StateClosing},
	StateInProgress:    {StateAwaitingInput, StateClosing},
	StateAwaitingInput: {StateInProgress, StateClosing},
	StateClosing:       {},
	StateExpired:       {},
}

// CandidateStates returns the ordered set of states reachable from the
// current state. The slice is a copy.
func (c *Conversation) CandidateStates() []State {
	return append([]State(nil), transitions[c.CurrentState]...)
}

// ValidTransition reports whether target is reachable from the current
// state in one step.
func (c *Conversation) ValidTransition(target State) bool {
	for _, s := range transitions[c.CurrentState] {
		if s == target {
			return true
		}
	}
	return false
}
