// Package sqlite provides a durable, SQLite-backed ConversationStore. The
// conditional write is expressed as an UPDATE guarded by the expected
// version, so the version check and the bump are one atomic statement.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/convopipe/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	version       INTEGER NOT NULL,
	current_state TEXT NOT NULL,
	outcome       TEXT,
	doc           TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	expires_at    TEXT NOT NULL
);
`

// doc carries the bounded sequences; top-level columns stay queryable.
type doc struct {
	PendingIntents []string    `json:"pending_intents,omitempty"`
	HistoryWindow  []core.Turn `json:"history_window,omitempty"`
}

// Store is a SQLite-backed core.ConversationStore.
type Store struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// Open opens (or creates) the conversation database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open conversation db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init conversation schema: %w", err)
	}
	return &Store{db: db, nowFunc: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SetNowFunc overrides the clock. Test hook.
func (s *Store) SetNowFunc(now func() time.Time) { s.nowFunc = now }

// LoadOrCreate implements core.ConversationStore.
func (s *Store) LoadOrCreate(ctx context.Context, id string, ttl time.Duration) (*core.Conversation, error) {
	now := s.nowFunc().UTC()
	fresh := core.NewConversation(id, ttl)
	fresh.CreatedAt = now
	fresh.UpdatedAt = now
	fresh.ExpiresAt = now.Add(ttl)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, version, current_state, doc, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, '{}', ?, ?, ?)`,
		id, fresh.Version, string(fresh.CurrentState),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), fresh.ExpiresAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	conv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !conv.Terminal() && conv.ExpiredAt(now) {
		expired := core.OutcomeExpired
		res, err := s.db.ExecContext(ctx, `
			UPDATE conversations SET version = version + 1, current_state = ?, outcome = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			string(core.StateExpired), string(expired), now.Format(time.RFC3339Nano), id, conv.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
		}
		// A concurrent expirer may have won; either way reload the truth.
		_ = res
		return s.load(ctx, id)
	}
	return conv, nil
}

// Save implements core.ConversationStore.
func (s *Store) Save(ctx context.Context, conv *core.Conversation, expectedVersion int64) (*core.Conversation, error) {
	d, err := json.Marshal(doc{PendingIntents: conv.PendingIntents, HistoryWindow: conv.HistoryWindow})
	if err != nil {
		return nil, fmt.Errorf("marshal conversation doc: %w", err)
	}

	var outcome *string
	if conv.Outcome != nil {
		o := string(*conv.Outcome)
		outcome = &o
	}

	now := s.nowFunc().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET version = version + 1, current_state = ?, outcome = ?, doc = ?, updated_at = ?, expires_at = ?
		WHERE id = ? AND version = ? AND outcome IS NULL`,
		string(conv.CurrentState), outcome, string(d),
		now.Format(time.RFC3339Nano), conv.ExpiresAt.UTC().Format(time.RFC3339Nano),
		conv.ID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		stored, loadErr := s.load(ctx, conv.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if stored.Terminal() {
			return nil, core.ErrConversationClosed
		}
		return nil, &core.VersionConflictError{ConversationID: conv.ID, Expected: expectedVersion, Actual: stored.Version}
	}
	return s.load(ctx, conv.ID)
}

func (s *Store) load(ctx context.Context, id string) (*core.Conversation, error) {
	var (
		conv                      core.Conversation
		state, rawDoc             string
		outcome                   sql.NullString
		created, updated, expires string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, version, current_state, outcome, doc, created_at, updated_at, expires_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.Version, &state, &outcome, &rawDoc, &created, &updated, &expires)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	conv.CurrentState = core.State(state)
	if outcome.Valid {
		o := core.Outcome(outcome.String)
		conv.Outcome = &o
	}

	var d doc
	if err := json.Unmarshal([]byte(rawDoc), &d); err != nil {
		return nil, fmt.Errorf("unmarshal conversation doc: %w", err)
	}
	conv.PendingIntents = d.PendingIntents
	conv.HistoryWindow = d.HistoryWindow

	for dst, src := range map[*time.Time]string{
		&conv.CreatedAt: created,
		&conv.UpdatedAt: updated,
		&conv.ExpiresAt: expires,
	} {
		parsed, err := time.Parse(time.RFC3339Nano, src)
		if err != nil {
			return nil, fmt.Errorf("parse conversation timestamp: %w", err)
		}
		*dst = parsed
	}
	return &conv, nil
}

var _ core.ConversationStore = (*Store)(nil)
