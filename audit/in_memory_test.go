package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convopipe/core"
)

func appendN(t *testing.T, chain *InMemoryChain, conversationID string, n int) []core.AuditEvent {
	t.Helper()
	ctx := context.Background()
	var out []core.AuditEvent
	for i := 0; i < n; i++ {
		head, err := chain.Head(ctx, conversationID)
		require.NoError(t, err)
		ev, err := chain.Append(ctx, core.AuditEvent{
			ConversationID: conversationID,
			Actor:          core.ActorSystem,
			Action:         "decision_arbitrated",
			Detail:         map[string]string{"reason": "test"},
		}, head)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestInMemoryChain_GenesisAndLinkage(t *testing.T) {
	chain := NewInMemoryChain()
	ctx := context.Background()

	head, err := chain.Head(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, core.GenesisHash, head)

	events := appendN(t, chain, "c1", 3)
	assert.Equal(t, core.GenesisHash, events[0].PrevHash)
	assert.Equal(t, events[0].Hash, events[1].PrevHash)
	assert.Equal(t, events[1].Hash, events[2].PrevHash)

	ok, bad, err := chain.VerifyChain(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1, bad)
}

func TestInMemoryChain_ConflictOnStaleHead(t *testing.T) {
	chain := NewInMemoryChain()
	appendN(t, chain, "c1", 2)

	_, err := chain.Append(context.Background(), core.AuditEvent{
		ConversationID: "c1",
		Actor:          core.ActorSystem,
		Action:         "late_append",
	}, core.GenesisHash)

	require.Error(t, err)
	assert.True(t, core.IsChainConflict(err))
}

func TestInMemoryChain_TamperBreaksVerificationFromIndex(t *testing.T) {
	chain := NewInMemoryChain()
	appendN(t, chain, "c1", 4)

	// Reach into the store and rewrite one event's content.
	chain.mu.Lock()
	chain.chains["c1"][2].Action = "forged"
	chain.mu.Unlock()

	ok, bad, err := chain.VerifyChain(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, bad, "verification must fail at the first modified link")
}

func TestVerify_ExportedChainIsIndependentlyCheckable(t *testing.T) {
	chain := NewInMemoryChain()
	appendN(t, chain, "c1", 3)

	events, err := chain.Events(context.Background(), "c1")
	require.NoError(t, err)

	ok, bad, err := Verify(events)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1, bad)

	events[1].Detail["reason"] = "rewritten"
	ok, bad, _ = Verify(events)
	assert.False(t, ok)
	assert.Equal(t, 1, bad)
}

func TestInMemoryChain_IndependentPerConversation(t *testing.T) {
	chain := NewInMemoryChain()
	appendN(t, chain, "c1", 2)

	head, err := chain.Head(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, core.GenesisHash, head)
}
