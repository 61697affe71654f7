/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store implements the session store (spec §4.2): an
// in-memory, per-session authoritative state map guarded for
// concurrent mutation, versioned snapshots for rejoin, and a
// checkpoint hand-off to the durable adapter in durable.go.
//
// Grounded on partybox's GameManager.games map[string]*Game with its
// RWMutex-guarded lookup, generalized from a single struct-literal
// mutation site into a closure-based Mutate so every caller's
// read-modify-write happens under the same session lock and bumps
// stateVersion exactly once.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/partyquiz/engine/internal/quiz"
)

var ErrNotFound = errors.New("store: session not found")

// AnswerRecord is one player's committed answer to one item, kept for
// rejoin rehydration (spec §4.2) and durable checkpointing (spec
// §4.11) under the natural key (itemID, playerID). Raw/Normalized are
// `any` because an answer's wire shape varies by question type
// (string, number, option id, ...), mirroring itemstate.CommittedAnswer.
type AnswerRecord struct {
	ItemID           string
	PlayerID         string
	PlayerName       string
	Raw              any
	NormalizedAnswer any
	IsCorrect        *bool
	ScorePercentage  float64
	Score            int
	TimeSpentMs      int64
	AnsweredAt       time.Time
}

// Snapshot is a read-only, deep-enough copy of a session's state for
// bootstrap/rejoin responses; slices are copied so callers can't
// mutate the authoritative state through it.
type Snapshot struct {
	ID                  string
	Code                string
	Status              quiz.SessionStatus
	Theme               string
	Items               []quiz.Item
	CurrentItemIndex    int
	Players             []quiz.Player
	Answers             []AnswerRecord
	StateVersion        int64
	PersistenceDegraded bool
}

// entry is the store's internal per-session record.
type entry struct {
	mu      sync.Mutex
	session quiz.Session
	players map[string]*quiz.Player
	answers map[string]map[string]AnswerRecord // itemID -> playerID -> record
}

// CheckpointFunc is called after every mutation that spec §4.2 lists
// as a checkpoint trigger. kind is a short tag ("JOIN", "LEAVE",
// "ANSWER", "ITEM_TRANSITION", "SCORE_ADJUST", "SESSION_END") used by
// the durable writer to pick a table/upsert shape.
type CheckpointFunc func(kind string, sessionCode string, seq int64, snap Snapshot)

// Store holds every live session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	seqs     map[string]int64 // per-session monotonic checkpoint sequence

	OnCheckpoint CheckpointFunc
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*entry),
		seqs:     make(map[string]int64),
	}
}

// Create installs a brand-new session in LOBBY.
func (st *Store) Create(session quiz.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if session.Status == "" {
		session.Status = quiz.StatusLobby
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	st.sessions[session.Code] = &entry{
		session: session,
		players: make(map[string]*quiz.Player),
		answers: make(map[string]map[string]AnswerRecord),
	}
}

// Load installs a session rehydrated from durable storage (spec
// §4.2's "Rehydration"), restoring both its players and its committed
// answer history so a reconnecting client can be replayed the exact
// REVEAL_ANSWERS state for the item it left on.
func (st *Store) Load(session quiz.Session, players []quiz.Player, answers []AnswerRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e := &entry{
		session: session,
		players: make(map[string]*quiz.Player),
		answers: make(map[string]map[string]AnswerRecord),
	}
	for i := range players {
		p := players[i]
		e.players[p.ID] = &p
	}
	for _, a := range answers {
		byPlayer, ok := e.answers[a.ItemID]
		if !ok {
			byPlayer = make(map[string]AnswerRecord)
			e.answers[a.ItemID] = byPlayer
		}
		byPlayer[a.PlayerID] = a
	}
	st.sessions[session.Code] = e
}

// RecordAnswers stores committed answers for itemID under the
// session's lock, bumps stateVersion once, and — like Mutate — fires
// an "ANSWER" checkpoint carrying the full snapshot (including the
// updated answer set) for the durable writer to upsert.
func (st *Store) RecordAnswers(sessionCode, itemID string, records []AnswerRecord) (Snapshot, error) {
	st.mu.RLock()
	e, ok := st.sessions[sessionCode]
	st.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	e.mu.Lock()
	if e.answers == nil {
		e.answers = make(map[string]map[string]AnswerRecord)
	}
	byPlayer, ok := e.answers[itemID]
	if !ok {
		byPlayer = make(map[string]AnswerRecord)
		e.answers[itemID] = byPlayer
	}
	for _, r := range records {
		r.ItemID = itemID
		byPlayer[r.PlayerID] = r
	}
	e.session.StateVersion++
	e.session.UpdatedAt = time.Now()
	snap := snapshotLocked(e)
	e.mu.Unlock()

	if st.OnCheckpoint != nil {
		st.mu.Lock()
		st.seqs[sessionCode]++
		seq := st.seqs[sessionCode]
		st.mu.Unlock()
		st.OnCheckpoint("ANSWER", sessionCode, seq, snap)
	}
	return snap, nil
}

// Mutate runs fn under the named session's lock, bumps stateVersion
// exactly once on return (unless fn reports no change), and — when
// kind is non-empty — fires the configured checkpoint callback with a
// fresh snapshot and the next per-session sequence number.
//
// fn receives the live session and player map and reports whether it
// changed anything; a false return skips the version bump and the
// checkpoint entirely (e.g. a no-op CANCEL_ITEM on an already-IDLE
// item).
func (st *Store) Mutate(sessionCode, kind string, fn func(s *quiz.Session, players map[string]*quiz.Player) bool) (Snapshot, error) {
	st.mu.RLock()
	e, ok := st.sessions[sessionCode]
	st.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	e.mu.Lock()
	changed := fn(&e.session, e.players)
	if changed {
		e.session.StateVersion++
		e.session.UpdatedAt = time.Now()
	}
	snap := snapshotLocked(e)
	e.mu.Unlock()

	if changed && kind != "" && st.OnCheckpoint != nil {
		st.mu.Lock()
		st.seqs[sessionCode]++
		seq := st.seqs[sessionCode]
		st.mu.Unlock()
		st.OnCheckpoint(kind, sessionCode, seq, snap)
	}
	return snap, nil
}

// View runs fn under the session lock without bumping stateVersion,
// for read-only inspection that still needs a consistent view (e.g.
// the item-state machine checking AllAnswered against the live player
// map before the supervisor decides to call Mutate).
func (st *Store) View(sessionCode string, fn func(s *quiz.Session, players map[string]*quiz.Player)) error {
	st.mu.RLock()
	e, ok := st.sessions[sessionCode]
	st.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session, e.players)
	return nil
}

// Snapshot returns a read-only copy of the named session's state.
func (st *Store) Snapshot(sessionCode string) (Snapshot, error) {
	st.mu.RLock()
	e, ok := st.sessions[sessionCode]
	st.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotLocked(e), nil
}

// MarkPersistenceDegraded is called by the durable adapter when a
// checkpoint exhausts its retry budget (spec §7's persistence-degraded
// flag); cleared on the next successful checkpoint.
func (st *Store) MarkPersistenceDegraded(sessionCode string, degraded bool) {
	st.mu.RLock()
	e, ok := st.sessions[sessionCode]
	st.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.session.PersistenceDegraded = degraded
	e.mu.Unlock()
}

// Delete removes a session entirely (used on ARCHIVED/reaper
// teardown).
func (st *Store) Delete(sessionCode string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, sessionCode)
	delete(st.seqs, sessionCode)
}

// Codes lists every currently-live session code, for the reaper loop.
func (st *Store) Codes() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, 0, len(st.sessions))
	for code := range st.sessions {
		out = append(out, code)
	}
	return out
}

func snapshotLocked(e *entry) Snapshot {
	players := make([]quiz.Player, 0, len(e.players))
	for _, p := range e.players {
		players = append(players, *p)
	}
	items := make([]quiz.Item, len(e.session.Items))
	copy(items, e.session.Items)

	answers := make([]AnswerRecord, 0, len(e.answers))
	for _, byPlayer := range e.answers {
		for _, a := range byPlayer {
			answers = append(answers, a)
		}
	}

	return Snapshot{
		ID:                  e.session.ID,
		Code:                e.session.Code,
		Status:              e.session.Status,
		Theme:               e.session.Theme,
		Items:               items,
		CurrentItemIndex:    e.session.CurrentItemIndex,
		Players:             players,
		Answers:             answers,
		StateVersion:        e.session.StateVersion,
		PersistenceDegraded: e.session.PersistenceDegraded,
	}
}
