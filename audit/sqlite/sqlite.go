// Package sqlite provides a durable, SQLite-backed AuditChain. The table is
// append-only; a UNIQUE(conversation_id, prev_hash) constraint backs the
// optimistic head check so two racing appenders can never both link to the
// same predecessor.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/convopipe/audit"
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/internal/util"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id        TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL,
	actor           TEXT NOT NULL,
	action          TEXT NOT NULL,
	timestamp       TEXT NOT NULL,
	correlation_id  TEXT NOT NULL DEFAULT '',
	detail          TEXT NOT NULL DEFAULT '{}',
	prev_hash       TEXT NOT NULL,
	hash            TEXT NOT NULL,
	UNIQUE(conversation_id, prev_hash)
);
CREATE INDEX IF NOT EXISTS idx_audit_conversation ON audit_events(conversation_id, seq);
`

// Chain is a SQLite-backed core.AuditChain.
type Chain struct {
	db *sql.DB
}

// Open opens (or creates) the chain database at path. WAL mode and a busy
// timeout keep concurrent readers from blocking appenders.
func Open(path string) (*Chain, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Chain{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Chain) Close() error { return c.db.Close() }

// Append implements core.AuditChain.
func (c *Chain) Append(ctx context.Context, ev core.AuditEvent, expectedPrevHash string) (core.AuditEvent, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return core.AuditEvent{}, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	head, err := headTx(ctx, tx, ev.ConversationID)
	if err != nil {
		return core.AuditEvent{}, err
	}
	if expectedPrevHash != head {
		return core.AuditEvent{}, &core.ChainConflictError{
			ConversationID: ev.ConversationID,
			ExpectedPrev:   expectedPrevHash,
			ActualPrev:     head,
		}
	}

	if ev.EventID == "" {
		ev.EventID = util.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.PrevHash = head
	ev.Hash = ev.ComputeHash()

	detail := "{}"
	if len(ev.Detail) > 0 {
		b, err := json.Marshal(ev.Detail)
		if err != nil {
			return core.AuditEvent{}, fmt.Errorf("marshal detail: %w", err)
		}
		detail = string(b)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events (event_id, conversation_id, actor, action, timestamp, correlation_id, detail, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.ConversationID, string(ev.Actor), ev.Action,
		ev.Timestamp.Format(time.RFC3339Nano), ev.CorrelationID, detail, ev.PrevHash, ev.Hash,
	)
	if err != nil {
		// The unique (conversation_id, prev_hash) constraint catches a race
		// that slipped past the head read inside another connection.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.AuditEvent{}, &core.ChainConflictError{
				ConversationID: ev.ConversationID,
				ExpectedPrev:   expectedPrevHash,
				ActualPrev:     head,
			}
		}
		return core.AuditEvent{}, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return core.AuditEvent{}, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return ev, nil
}

// Head implements core.AuditChain.
func (c *Chain) Head(ctx context.Context, conversationID string) (string, error) {
	var head string
	err := c.db.QueryRowContext(ctx,
		`SELECT hash FROM audit_events WHERE conversation_id = ? ORDER BY seq DESC LIMIT 1`,
		conversationID,
	).Scan(&head)
	if err == sql.ErrNoRows {
		return core.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return head, nil
}

func headTx(ctx context.Context, tx *sql.Tx, conversationID string) (string, error) {
	var head string
	err := tx.QueryRowContext(ctx,
		`SELECT hash FROM audit_events WHERE conversation_id = ? ORDER BY seq DESC LIMIT 1`,
		conversationID,
	).Scan(&head)
	if err == sql.ErrNoRows {
		return core.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return head, nil
}

// Events implements core.AuditChain.
func (c *Chain) Events(ctx context.Context, conversationID string) ([]core.AuditEvent, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT event_id, conversation_id, actor, action, timestamp, correlation_id, detail, prev_hash, hash
		FROM audit_events WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []core.AuditEvent
	for rows.Next() {
		var ev core.AuditEvent
		var actor, ts, detail string
		if err := rows.Scan(&ev.EventID, &ev.ConversationID, &actor, &ev.Action, &ts, &ev.CorrelationID, &detail, &ev.PrevHash, &ev.Hash); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Actor = core.Actor(actor)
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &ev.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// VerifyChain implements core.AuditChain.
func (c *Chain) VerifyChain(ctx context.Context, conversationID string) (bool, int, error) {
	events, err := c.Events(ctx, conversationID)
	if err != nil {
		return false, 0, err
	}
	return audit.Verify(events)
}

var _ core.AuditChain = (*Chain)(nil)
