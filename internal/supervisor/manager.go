/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package supervisor

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/partyquiz/engine/internal/leaderboard"
	"github.com/partyquiz/engine/internal/quiz"
)

// sessionCodeAlphabet is restricted to uppercase letters and digits,
// per spec §3's "6-character uppercase alphanumeric code".
const sessionCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Manager owns every live session's Worker, generalized from
// Seednode-partybox's GameManager{hubs map[string]*Hub}: one worker
// goroutine per session, a reaper that tears down ENDED/ARCHIVED
// sessions, and collision-checked code generation.
type Manager struct {
	mu          sync.Mutex
	workers     map[string]*Worker
	idleTimeout time.Duration

	Deps   Deps
	Mirror leaderboard.Mirror
}

// NewManager creates a manager; if idleTimeout > 0 a reaper goroutine
// starts immediately.
func NewManager(deps Deps, mirror leaderboard.Mirror, idleTimeout time.Duration) *Manager {
	m := &Manager{
		workers:     make(map[string]*Worker),
		idleTimeout: idleTimeout,
		Deps:        deps,
		Mirror:      mirror,
	}
	if deps.Registry != nil {
		deps.Registry.OnGrace = func(sessionCode, playerID string) {
			if w, ok := m.Get(sessionCode); ok {
				w.Send(Command{Type: cmdInternalGrace, PlayerID: playerID})
			}
		}
	}
	if idleTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

// Get returns the worker for a live session code.
func (m *Manager) Get(sessionCode string) (*Worker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[sessionCode]
	return w, ok
}

// CreateSession installs a brand-new session (bound to a pre-built
// item list, since quiz authoring is out of scope per spec §1) and
// starts its worker.
func (m *Manager) CreateSession(items []quiz.Item, theme string) *Worker {
	code := m.newSessionCode()
	m.Deps.Store.Create(quiz.Session{
		ID:     uuid.NewString(),
		Code:   code,
		Theme:  theme,
		Items:  items,
		Status: quiz.StatusLobby,
	})

	w := NewWorker(code, m.Mirror, m.Deps)
	m.mu.Lock()
	m.workers[code] = w
	m.mu.Unlock()

	go w.Run()
	return w
}

func (m *Manager) newSessionCode() string {
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 6)
		for i := range out {
			out[i] = sessionCodeAlphabet[int(buf[i])%len(sessionCodeAlphabet)]
		}
		code := string(out)

		m.mu.Lock()
		_, exists := m.workers[code]
		m.mu.Unlock()
		if !exists {
			return code
		}
	}
}

// reaperLoop mirrors GameManager.reaperLoop's idle-timeout-halved
// ticker cadence, tearing down ENDED/ARCHIVED sessions. Sessions in
// any other status are left running however long they have been idle.
func (m *Manager) reaperLoop() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()
	for range ticker.C {
		m.reapOnce()
	}
}

func (m *Manager) reapOnce() {
	for _, code := range m.Deps.Store.Codes() {
		snap, err := m.Deps.Store.Snapshot(code)
		if err != nil {
			continue
		}
		if snap.Status != quiz.StatusEnded && snap.Status != quiz.StatusArchived {
			continue
		}
		m.mu.Lock()
		if w, ok := m.workers[code]; ok {
			w.Stop()
			delete(m.workers, code)
		}
		m.mu.Unlock()
		m.Deps.Store.Delete(code)
	}
}

// ActiveSessionCount reports sessions not in ENDED/ARCHIVED, for C13's gauge.
func (m *Manager) ActiveSessionCount() int {
	count := 0
	for _, code := range m.Deps.Store.Codes() {
		snap, err := m.Deps.Store.Snapshot(code)
		if err != nil {
			continue
		}
		if snap.Status != quiz.StatusEnded && snap.Status != quiz.StatusArchived {
			count++
		}
	}
	return count
}
