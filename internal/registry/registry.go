/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package registry implements the connection registry (spec §4.3):
// socket↔(session, role, playerId) mapping, heartbeats, presence
// quality, grace-period disconnects, device-fingerprint recognition,
// and single-use rejoin tokens.
//
// Grounded on partybox's cookie-bound playerID + GameManager idle
// reaper (Seednode-partybox/celebrity.go) for the presence/grace-timer
// shape, and on the fantasy-esports connection manager
// (other_examples/9c616b14_...) for the heartbeat/quality split.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Quality is the connection-quality label in spec §3.
type Quality string

const (
	QualityGood    Quality = "good"
	QualityPoor    Quality = "poor"
	QualityOffline Quality = "offline"
)

// Role mirrors eventbus.Role to avoid a package-cycle (registry is a
// pure bookkeeping layer, eventbus is the fan-out layer; both are
// leaves consumed by the supervisor).
type Role string

const (
	RoleHost    Role = "HOST"
	RolePlayer  Role = "PLAYER"
	RoleDisplay Role = "DISPLAY"
)

const (
	heartbeatInterval = 15 * time.Second
	poorAfterMisses   = 2
	offlineAfterMisses = 4
	leaveGracePeriod  = 30 * time.Second
	rejoinTokenTTL    = 10 * time.Minute
)

// Connection is one socket's registry entry.
type Connection struct {
	SocketID      string
	SessionCode   string
	Role          Role
	PlayerID      string
	LastHeartbeat time.Time
	Quality       Quality
}

type rejoinToken struct {
	sessionCode string
	playerID    string
	expiresAt   time.Time
	used        bool
}

// OnGrace fires when a player's disconnect grace period elapses
// without a reconnect, so the caller can emit PLAYER_LEFT.
type OnGrace func(sessionCode, playerID string)

// Registry tracks connections across all sessions.
type Registry struct {
	mu          sync.Mutex
	connections map[string]*Connection       // socketID -> connection
	fingerprints map[string]map[string]string // sessionCode -> fingerprint -> playerID
	tokens      map[string]*rejoinToken       // token -> entry
	graceTimers map[string]*time.Timer        // sessionCode|playerID -> pending-leave timer

	OnGrace OnGrace
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		connections:  make(map[string]*Connection),
		fingerprints: make(map[string]map[string]string),
		tokens:       make(map[string]*rejoinToken),
		graceTimers:  make(map[string]*time.Timer),
	}
}

// Connect registers a new socket and cancels any pending grace timer
// for this player (a reconnect within the grace window).
func (r *Registry) Connect(socketID, sessionCode string, role Role, playerID string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := &Connection{
		SocketID:      socketID,
		SessionCode:   sessionCode,
		Role:          role,
		PlayerID:      playerID,
		LastHeartbeat: time.Now(),
		Quality:       QualityGood,
	}
	r.connections[socketID] = conn

	if playerID != "" {
		key := graceKey(sessionCode, playerID)
		if t, ok := r.graceTimers[key]; ok {
			t.Stop()
			delete(r.graceTimers, key)
		}
	}
	return conn
}

// Disconnect removes a socket and, for players, starts the grace
// timer before the caller should be told the player has left.
func (r *Registry) Disconnect(socketID string) {
	r.mu.Lock()
	conn, ok := r.connections[socketID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.connections, socketID)
	sessionCode, playerID := conn.SessionCode, conn.PlayerID
	r.mu.Unlock()

	if playerID == "" {
		return
	}

	key := graceKey(sessionCode, playerID)
	timer := time.AfterFunc(leaveGracePeriod, func() {
		r.mu.Lock()
		delete(r.graceTimers, key)
		stillOnline := false
		for _, c := range r.connections {
			if c.SessionCode == sessionCode && c.PlayerID == playerID {
				stillOnline = true
				break
			}
		}
		r.mu.Unlock()

		if !stillOnline && r.OnGrace != nil {
			r.OnGrace(sessionCode, playerID)
		}
	})

	r.mu.Lock()
	r.graceTimers[key] = timer
	r.mu.Unlock()
}

func graceKey(sessionCode, playerID string) string {
	return sessionCode + "|" + playerID
}

// Heartbeat records a liveness ping and resets quality to good; the
// spec §4.3 miss thresholds are applied by RefreshQuality.
func (r *Registry) Heartbeat(socketID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[socketID]
	if !ok {
		return
	}
	conn.LastHeartbeat = now
	conn.Quality = QualityGood
}

// RefreshQuality recomputes every connection's quality label from the
// elapsed time since its last heartbeat; intended to be called
// periodically (e.g. every heartbeatInterval) by the caller's own
// ticker. Returns the sockets whose quality changed, for
// CONNECTION_STATUS_UPDATE emission.
func (r *Registry) RefreshQuality(now time.Time) []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed []Connection
	for _, conn := range r.connections {
		misses := int(now.Sub(conn.LastHeartbeat) / heartbeatInterval)
		var want Quality
		switch {
		case misses >= offlineAfterMisses:
			want = QualityOffline
		case misses >= poorAfterMisses:
			want = QualityPoor
		default:
			want = QualityGood
		}
		if want != conn.Quality {
			conn.Quality = want
			changed = append(changed, *conn)
		}
	}
	return changed
}

// Get returns the connection for a socket, if any.
func (r *Registry) Get(socketID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[socketID]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// RecognizeFingerprint looks up which player a device fingerprint maps
// to within a session; BindFingerprint records the mapping.
func (r *Registry) RecognizeFingerprint(sessionCode, fingerprint string) (playerID string, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.fingerprints[sessionCode]
	if !ok {
		return "", false
	}
	pid, ok := m[fingerprint]
	return pid, ok
}

// BindFingerprint associates a fingerprint with a player for future
// DEVICE_RECOGNIZED lookups.
func (r *Registry) BindFingerprint(sessionCode, fingerprint, playerID string) {
	if fingerprint == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.fingerprints[sessionCode]
	if !ok {
		m = make(map[string]string)
		r.fingerprints[sessionCode] = m
	}
	m[fingerprint] = playerID
}

// IssueRejoinToken generates a single-use, TTL-bound token for an
// offline player, returned once to the requesting host.
func (r *Registry) IssueRejoinToken(sessionCode, playerID string) string {
	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = &rejoinToken{
		sessionCode: sessionCode,
		playerID:    playerID,
		expiresAt:   time.Now().Add(rejoinTokenTTL),
	}
	return token
}

// RedeemRejoinToken validates and consumes a token. A token may only
// be redeemed once; redemption past its expiry or a second redemption
// both fail.
func (r *Registry) RedeemRejoinToken(token string) (sessionCode, playerID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.tokens[token]
	if !exists || t.used || time.Now().After(t.expiresAt) {
		return "", "", false
	}
	t.used = true
	return t.sessionCode, t.playerID, true
}
