/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	checkpointQueueCapacity = 4096
	checkpointMaxRetries    = 5
	checkpointBaseBackoff   = 100 * time.Millisecond
	checkpointMaxBackoff    = 5 * time.Second
)

// checkpoint is one queued durable-store write.
type checkpoint struct {
	kind        string
	sessionCode string
	seq         int64
	snap        Snapshot
	enqueuedAt  time.Time
}

// DurableWriter drains a single process-wide checkpoint queue and
// applies each entry to Postgres in enqueue order. Per-session causal
// order falls out of two facts: every checkpoint is tagged with a
// monotonically increasing per-session sequence number (Store.Mutate
// assigns it), and a session's own worker is the only producer for
// that session's checkpoints, so enqueue order already is
// per-session FIFO — a single writer applying in enqueue order never
// needs to reorder by seq itself.
type DurableWriter struct {
	pool  *pgxpool.Pool
	queue chan checkpoint
	store *Store

	DroppedCheckpoints func(sessionCode string) // hook for C13's counter
}

// NewDurableWriter wires a writer against an open pool. Call Run in
// its own goroutine; call Enqueue (or set st.OnCheckpoint to
// w.Enqueue) from the session workers.
func NewDurableWriter(pool *pgxpool.Pool, st *Store) *DurableWriter {
	return &DurableWriter{
		pool:  pool,
		queue: make(chan checkpoint, checkpointQueueCapacity),
		store: st,
	}
}

// Enqueue matches store.CheckpointFunc's signature so it can be
// assigned directly to Store.OnCheckpoint.
func (w *DurableWriter) Enqueue(kind, sessionCode string, seq int64, snap Snapshot) {
	cp := checkpoint{kind: kind, sessionCode: sessionCode, seq: seq, snap: snap, enqueuedAt: time.Now()}
	select {
	case w.queue <- cp:
	default:
		log.Printf("[STORE] checkpoint queue full, dropping %s seq=%d session=%s", kind, seq, sessionCode)
		if w.DroppedCheckpoints != nil {
			w.DroppedCheckpoints(sessionCode)
		}
	}
}

// Run drains the queue until ctx is cancelled. Intended to be the
// single background writer goroutine per process.
func (w *DurableWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cp := <-w.queue:
			w.apply(ctx, cp)
		}
	}
}

func (w *DurableWriter) apply(ctx context.Context, cp checkpoint) {
	backoff := checkpointBaseBackoff
	var lastErr error
	for attempt := 0; attempt < checkpointMaxRetries; attempt++ {
		if err := w.write(ctx, cp); err != nil {
			lastErr = err
			log.Printf("[STORE] checkpoint write failed (attempt %d/%d) kind=%s session=%s: %v",
				attempt+1, checkpointMaxRetries, cp.kind, cp.sessionCode, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > checkpointMaxBackoff {
				backoff = checkpointMaxBackoff
			}
			continue
		}
		if w.store != nil {
			w.store.MarkPersistenceDegraded(cp.sessionCode, false)
		}
		return
	}

	log.Printf("[STORE] checkpoint permanently dropped kind=%s session=%s seq=%d: %v",
		cp.kind, cp.sessionCode, cp.seq, lastErr)
	if w.store != nil {
		w.store.MarkPersistenceDegraded(cp.sessionCode, true)
	}
	if w.DroppedCheckpoints != nil {
		w.DroppedCheckpoints(cp.sessionCode)
	}
}

// write performs one checkpoint's actual upsert. The schema (see
// schema.sql) gives sessions (code), players and answers (composite)
// each a natural key so every write here is an idempotent
// ON CONFLICT ... DO UPDATE, satisfying the at-most-once invariant
// even if the same checkpoint is ever retried after a partial
// success.
func (w *DurableWriter) write(ctx context.Context, cp checkpoint) error {
	if w.pool == nil {
		return nil // no durable store configured: in-memory-only mode
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (code, status, theme, current_item_index, state_version, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (code) DO UPDATE SET
			status = EXCLUDED.status,
			theme = EXCLUDED.theme,
			current_item_index = EXCLUDED.current_item_index,
			state_version = EXCLUDED.state_version,
			updated_at = now()
		WHERE sessions.state_version < EXCLUDED.state_version`,
		cp.sessionCode, cp.snap.Status, cp.snap.Theme, cp.snap.CurrentItemIndex, cp.snap.StateVersion)
	if err != nil {
		return err
	}

	for _, p := range cp.snap.Players {
		_, err = tx.Exec(ctx, `
			INSERT INTO players (session_code, player_id, display_name, score, streak, online)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_code, player_id) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				score = EXCLUDED.score,
				streak = EXCLUDED.streak,
				online = EXCLUDED.online`,
			cp.sessionCode, p.ID, p.DisplayName, p.Score, p.Streak, p.Online)
		if err != nil {
			return err
		}
	}

	for _, a := range cp.snap.Answers {
		rawJSON, err := json.Marshal(a.Raw)
		if err != nil {
			return err
		}
		normalizedJSON, err := json.Marshal(a.NormalizedAnswer)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO answers (session_code, item_id, player_id, raw, normalized, is_correct, score_percentage, score, time_spent_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (session_code, item_id, player_id) DO UPDATE SET
				raw = EXCLUDED.raw,
				normalized = EXCLUDED.normalized,
				is_correct = EXCLUDED.is_correct,
				score_percentage = EXCLUDED.score_percentage,
				score = EXCLUDED.score,
				time_spent_ms = EXCLUDED.time_spent_ms`,
			cp.sessionCode, a.ItemID, a.PlayerID, rawJSON, normalizedJSON, a.IsCorrect, a.ScorePercentage, a.Score, a.TimeSpentMs)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
