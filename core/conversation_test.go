package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_TransitionsAreClosed(t *testing.T) {
	c := NewConversation("c1", time.Hour)

	assert.ElementsMatch(t, []State{StateGreeting, StateQualifying}, c.CandidateStates())
	assert.True(t, c.ValidTransition(StateQualifying))
	assert.False(t, c.ValidTransition(StateClosing))
	assert.False(t, c.ValidTransition(StateExpired))

	c.CurrentState = StateClosing
	assert.Empty(t, c.CandidateStates(), "terminal states have no successors")
	assert.False(t, c.ValidTransition(StateNew))
}

func TestConversation_OutcomeIsWriteOnce(t *testing.T) {
	c := NewConversation("c1", time.Hour)

	require.NoError(t, c.SetOutcome(OutcomeCompleted))
	assert.True(t, c.Terminal())

	err := c.SetOutcome(OutcomeAbandoned)
	assert.ErrorIs(t, err, ErrConversationClosed)
	assert.Equal(t, OutcomeCompleted, *c.Outcome, "first outcome sticks")
}

func TestConversation_IntentBoundEvictsOldest(t *testing.T) {
	c := NewConversation("c1", time.Hour)

	for _, in := range []string{"a", "b", "c", "d"} {
		c.PushIntent(in)
	}

	assert.Equal(t, []string{"b", "c", "d"}, c.PendingIntents)

	head, ok := c.PopIntent()
	require.True(t, ok)
	assert.Equal(t, "b", head)
	assert.Equal(t, []string{"c", "d"}, c.PendingIntents)
}

func TestConversation_HistoryBoundEvictsOldest(t *testing.T) {
	c := NewConversation("c1", time.Hour)

	for i := 0; i < MaxHistoryTurns+2; i++ {
		c.AddTurn("user", string(rune('a'+i)))
	}

	require.Len(t, c.HistoryWindow, MaxHistoryTurns)
	assert.Equal(t, "c", c.HistoryWindow[0].Text, "two oldest turns evicted")
}

func TestConversation_CloneIsIndependent(t *testing.T) {
	c := NewConversation("c1", time.Hour)
	c.PushIntent("a")
	c.AddTurn("user", "oi")

	clone := c.Clone()
	clone.PushIntent("b")
	clone.AddTurn("assistant", "olá")
	require.NoError(t, clone.SetOutcome(OutcomeCompleted))

	assert.Len(t, c.PendingIntents, 1)
	assert.Len(t, c.HistoryWindow, 1)
	assert.False(t, c.Terminal())
}

func TestConversation_ExpiredAt(t *testing.T) {
	c := NewConversation("c1", time.Hour)

	assert.False(t, c.ExpiredAt(time.Now()))
	assert.True(t, c.ExpiredAt(time.Now().Add(2*time.Hour)))

	c.Touch(time.Hour)
	assert.False(t, c.ExpiredAt(time.Now().Add(90*time.Minute)))
}
