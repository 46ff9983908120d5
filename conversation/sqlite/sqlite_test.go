package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convopipe/core"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LoadOrCreate(t *testing.T) {
	s := openStore(t)

	conv, err := s.LoadOrCreate(context.Background(), "c1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, int64(1), conv.Version)
	assert.Equal(t, core.StateNew, conv.CurrentState)

	// A second load returns the stored row, not a fresh one.
	again, err := s.LoadOrCreate(context.Background(), "c1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, conv.Version, again.Version)
	assert.Equal(t, conv.CreatedAt, again.CreatedAt)
}

func TestStore_SaveRoundTripsDocument(t *testing.T) {
	s := openStore(t)

	conv, err := s.LoadOrCreate(context.Background(), "c1", time.Hour)
	require.NoError(t, err)

	conv.CurrentState = core.StateQualifying
	conv.PushIntent("quero segunda via")
	conv.AddTurn("user", "oi")
	conv.AddTurn("assistant", "olá, como posso ajudar?")

	saved, err := s.Save(context.Background(), conv, conv.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	loaded, err := s.LoadOrCreate(context.Background(), "c1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, core.StateQualifying, loaded.CurrentState)
	assert.Equal(t, []string{"quero segunda via"}, loaded.PendingIntents)
	require.Len(t, loaded.HistoryWindow, 2)
	assert.Equal(t, "assistant", loaded.HistoryWindow[1].Role)
}

func TestStore_StaleVersionConflicts(t *testing.T) {
	s := openStore(t)

	conv, err := s.LoadOrCreate(context.Background(), "c1", time.Hour)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), conv, conv.Version)
	require.NoError(t, err)

	// The first writer bumped the version; saving against the stale load fails.
	_, err = s.Save(context.Background(), conv, conv.Version)
	require.Error(t, err)
	assert.True(t, core.IsVersionConflict(err))
}

func TestStore_TerminalConversationIsImmutable(t *testing.T) {
	s := openStore(t)

	conv, err := s.LoadOrCreate(context.Background(), "c1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, conv.SetOutcome(core.OutcomeCompleted))
	saved, err := s.Save(context.Background(), conv, conv.Version)
	require.NoError(t, err)

	saved.CurrentState = core.StateQualifying
	_, err = s.Save(context.Background(), saved, saved.Version)
	assert.ErrorIs(t, err, core.ErrConversationClosed)
}

func TestStore_IdleConversationExpires(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.SetNowFunc(func() time.Time { return now })

	conv, err := s.LoadOrCreate(context.Background(), "c1", time.Hour)
	require.NoError(t, err)
	require.False(t, conv.Terminal())

	now = base.Add(2 * time.Hour)
	expired, err := s.LoadOrCreate(context.Background(), "c1", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, core.StateExpired, expired.CurrentState)
	require.NotNil(t, expired.Outcome)
	assert.Equal(t, core.OutcomeExpired, *expired.Outcome)
	assert.Equal(t, conv.Version+1, expired.Version)
}
