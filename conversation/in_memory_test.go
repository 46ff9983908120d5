package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convopipe/core"
)

func TestInMemoryStore_LoadOrCreate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	conv, err := s.LoadOrCreate(ctx, "c1", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, core.StateNew, conv.CurrentState)
	assert.Equal(t, int64(1), conv.Version)

	again, err := s.LoadOrCreate(ctx, "c1", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, conv.Version, again.Version)

	// Returned snapshots are clones.
	again.CurrentState = core.StateClosing
	fresh, _ := s.LoadOrCreate(ctx, "c1", 2*time.Hour)
	assert.Equal(t, core.StateNew, fresh.CurrentState)
}

func TestInMemoryStore_SaveBumpsVersion(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	conv, _ := s.LoadOrCreate(ctx, "c1", time.Hour)
	conv.CurrentState = core.StateQualifying

	saved, err := s.Save(ctx, conv, conv.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.Equal(t, core.StateQualifying, saved.CurrentState)
}

func TestInMemoryStore_SaveVersionConflict(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	a, _ := s.LoadOrCreate(ctx, "c1", time.Hour)
	b, _ := s.LoadOrCreate(ctx, "c1", time.Hour)

	a.CurrentState = core.StateQualifying
	_, err := s.Save(ctx, a, a.Version)
	require.NoError(t, err)

	// The second worker raced on the same version and must lose.
	b.CurrentState = core.StateGreeting
	_, err = s.Save(ctx, b, b.Version)
	require.Error(t, err)
	assert.True(t, core.IsVersionConflict(err))
}

func TestInMemoryStore_TerminalConversationIsImmutable(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	conv, _ := s.LoadOrCreate(ctx, "c1", time.Hour)
	require.NoError(t, conv.SetOutcome(core.OutcomeRejectedAbuse))
	saved, err := s.Save(ctx, conv, conv.Version)
	require.NoError(t, err)
	require.True(t, saved.Terminal())

	loaded, _ := s.LoadOrCreate(ctx, "c1", time.Hour)
	loaded.CurrentState = core.StateQualifying
	_, err = s.Save(ctx, loaded, loaded.Version)
	assert.ErrorIs(t, err, core.ErrConversationClosed)
}

func TestInMemoryStore_IdleConversationExpires(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	s.SetNowFunc(func() time.Time { return now })

	conv, _ := s.LoadOrCreate(ctx, "c1", 2*time.Hour)
	require.Equal(t, core.StateNew, conv.CurrentState)

	now = now.Add(3 * time.Hour)
	expired, err := s.LoadOrCreate(ctx, "c1", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, core.StateExpired, expired.CurrentState)
	require.NotNil(t, expired.Outcome)
	assert.Equal(t, core.OutcomeExpired, *expired.Outcome)
	assert.Greater(t, expired.Version, conv.Version)
}
