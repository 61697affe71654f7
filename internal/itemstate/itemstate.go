/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package itemstate implements the per-item lifecycle machine (spec
// §4.5): IDLE → ACTIVE → LOCKED → REVEALED → IDLE, with an auto-lock
// timer, host-driven LOCK/CANCEL/REVEAL transitions, and the answer
// intake guardrails (only-in-ACTIVE, late-arrival rejection,
// overwrite-on-resubmit).
//
// Grounded on partybox's celebrity.go turn/round state fields
// (gameStarted, currentTurn, turnOrder, roundEndsAt) generalized from
// a fixed turn-taking flow into a timer-driven, re-entrant item
// machine, with C1/C6 plumbed in at the ACTIVE→LOCKED transition per
// spec §4.5 ("Runs C6 (speed podium), commits per-answer scores").
package itemstate

import (
	"errors"
	"sort"
	"time"

	"github.com/partyquiz/engine/internal/podium"
	"github.com/partyquiz/engine/internal/quiz"
	"github.com/partyquiz/engine/internal/validator"
)

// Phase is one of the four item lifecycle states.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseActive   Phase = "ACTIVE"
	PhaseLocked   Phase = "LOCKED"
	PhaseRevealed Phase = "REVEALED"
)

var (
	ErrNotActive       = errors.New("itemstate: item is not ACTIVE")
	ErrNotLocked       = errors.New("itemstate: item is not LOCKED")
	ErrLateSubmission  = errors.New("itemstate: submission arrived after lock")
	ErrAlreadyStarted  = errors.New("itemstate: item is already started")
)

// CommittedAnswer is the frozen-at-lock record for one player's
// answer to this item, after validator scoring and (when applicable)
// speed-podium bonus have both been folded in.
type CommittedAnswer struct {
	PlayerID        string
	PlayerName      string
	Raw             any
	NormalizedAnswer any
	IsCorrect       *bool
	ScorePercentage float64
	Score           int
	TimeSpentMs     int64
	AnsweredAt      time.Time
}

// pendingAnswer is an in-flight submission prior to the ACTIVE→LOCKED
// freeze; overwritten in place on resubmission.
type pendingAnswer struct {
	raw         any
	timeSpentMs int64
	receivedAt  time.Time
}

// Machine drives one item's lifecycle. Not safe for concurrent use;
// callers (the C9 supervisor) serialize access via the session's
// command channel.
type Machine struct {
	Item  quiz.Item
	Phase Phase

	startedAt time.Time
	pending   map[string]pendingAnswer // playerID -> submission
	committed []CommittedAnswer

	lockTimer *time.Timer

	// PodiumConfig is taken from the owning session at ACTIVE start.
	PodiumConfig quiz.PodiumConfig
}

// New creates a machine for item in the IDLE phase.
func New(item quiz.Item) *Machine {
	return &Machine{
		Item:    item,
		Phase:   PhaseIdle,
		pending: make(map[string]pendingAnswer),
	}
}

// Start transitions IDLE → ACTIVE, recording the item's start instant
// and returning the duration after which the caller should post an
// auto-lock command (the Machine does not own a goroutine itself —
// the supervisor schedules the timer and calls Lock when it fires, or
// cancels it early on host LOCK_ITEM / all-answered).
func (m *Machine) Start(now time.Time, podiumCfg quiz.PodiumConfig) (time.Duration, error) {
	if m.Phase != PhaseIdle {
		return 0, ErrAlreadyStarted
	}
	m.Phase = PhaseActive
	m.startedAt = now
	m.pending = make(map[string]pendingAnswer)
	m.committed = nil
	m.PodiumConfig = podiumCfg

	return time.Duration(m.Item.TimerSeconds) * time.Second, nil
}

// Submit records or overwrites a player's pending answer. Only valid
// while ACTIVE; arrivals once LOCKED are late and rejected.
func (m *Machine) Submit(playerID string, raw any, now time.Time) error {
	if m.Phase != PhaseActive {
		return ErrLateSubmission
	}
	m.pending[playerID] = pendingAnswer{
		raw:         raw,
		timeSpentMs: now.Sub(m.startedAt).Milliseconds(),
		receivedAt:  now,
	}
	return nil
}

// AnsweredCount reports how many distinct players have a pending
// submission, for ANSWER_COUNT_UPDATED.
func (m *Machine) AnsweredCount() int {
	return len(m.pending)
}

// AllAnswered reports whether every online player (by id) has
// submitted, used by the supervisor to trigger an early lock.
func (m *Machine) AllAnswered(onlinePlayerIDs []string) bool {
	if len(onlinePlayerIDs) == 0 {
		return false
	}
	for _, id := range onlinePlayerIDs {
		if _, ok := m.pending[id]; !ok {
			return false
		}
	}
	return true
}

// PlayerNameFunc resolves a player id to its display name at lock
// time, supplied by the caller since Machine has no player registry.
type PlayerNameFunc func(playerID string) string

// StreakFunc resolves a player's pre-item streak count, needed by the
// validator's streak bonus.
type StreakFunc func(playerID string) int

// Lock transitions ACTIVE → LOCKED, freezing the answer set, scoring
// every submission via the validator, and running the speed podium.
// Players who never submitted get a NO_ANSWER committed record.
func (m *Machine) Lock(onlinePlayerIDs []string, nameOf PlayerNameFunc, streakOf StreakFunc) ([]CommittedAnswer, []podium.Result, error) {
	if m.Phase != PhaseActive {
		return nil, nil, ErrNotActive
	}
	if m.lockTimer != nil {
		m.lockTimer.Stop()
		m.lockTimer = nil
	}
	m.Phase = PhaseLocked

	committed := make([]CommittedAnswer, 0, len(onlinePlayerIDs))

	for _, pid := range onlinePlayerIDs {
		p, ok := m.pending[pid]
		var result validator.Result
		var timeSpent int64
		if ok {
			result = validator.Validate(validator.Input{
				QuestionType:  m.Item.QuestionType,
				Raw:           p.raw,
				Options:       m.Item.Options,
				Settings:      m.Item.Settings,
				CurrentStreak: streakOf(pid),
				TimeSpentMs:   p.timeSpentMs,
				TimeLimitMs:   int64(m.Item.TimerSeconds) * 1000,
			})
			timeSpent = p.timeSpentMs
		} else {
			noAnswer := false
			result = validator.Result{IsCorrect: &noAnswer, Format: quiz.FormatNoAnswer}
			timeSpent = int64(m.Item.TimerSeconds) * 1000
		}

		committed = append(committed, CommittedAnswer{
			PlayerID:          pid,
			PlayerName:        nameOf(pid),
			Raw:                p.raw,
			NormalizedAnswer:  result.NormalizedAnswer,
			IsCorrect:         result.IsCorrect,
			ScorePercentage:   result.ScorePercentage,
			Score:             result.Score,
			TimeSpentMs:       timeSpent,
			AnsweredAt:        p.receivedAt,
		})
	}

	sort.Slice(committed, func(i, j int) bool { return committed[i].PlayerID < committed[j].PlayerID })

	var candidates []podium.Candidate
	for _, c := range committed {
		candidates = append(candidates, podium.Candidate{
			PlayerID:        c.PlayerID,
			PlayerName:      c.PlayerName,
			BaseScore:       c.Score,
			ScorePercentage: c.ScorePercentage,
			TimeSpentMs:     c.TimeSpentMs,
		})
	}
	podiumResults := podium.Compute(candidates, m.PodiumConfig)

	bonusByPlayer := make(map[string]int, len(podiumResults))
	for _, pr := range podiumResults {
		bonusByPlayer[pr.PlayerID] = pr.BonusPoints
	}
	for i := range committed {
		if bonus, ok := bonusByPlayer[committed[i].PlayerID]; ok {
			committed[i].Score += bonus
		}
	}

	m.committed = committed
	return committed, podiumResults, nil
}

// Reveal transitions LOCKED → REVEALED. Calling it again while
// already REVEALED is an idempotent re-reveal: the same committed
// answers are returned so the caller can re-emit REVEAL_ANSWERS.
func (m *Machine) Reveal() ([]CommittedAnswer, error) {
	if m.Phase != PhaseLocked && m.Phase != PhaseRevealed {
		return nil, ErrNotLocked
	}
	m.Phase = PhaseRevealed
	return m.committed, nil
}

// Cancel returns any non-IDLE phase back to IDLE with no scoring
// effect: uncommitted answers are discarded and player scores are
// left untouched (committed answers, if any, are also discarded per
// spec §4.5 — CANCEL never partially applies a LOCKED result).
func (m *Machine) Cancel() {
	if m.lockTimer != nil {
		m.lockTimer.Stop()
		m.lockTimer = nil
	}
	m.Phase = PhaseIdle
	m.pending = make(map[string]pendingAnswer)
	m.committed = nil
}

// SetLockTimer lets the supervisor hand the Machine its own timer
// handle so Lock/Cancel can stop it; the Machine never starts a timer
// itself since it has no goroutine of its own.
func (m *Machine) SetLockTimer(t *time.Timer) {
	m.lockTimer = t
}
