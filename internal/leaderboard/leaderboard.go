/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package leaderboard maintains per-session score aggregation, dense
// ranking, and an optional Redis-backed mirror for high-concurrency
// rank reads (spec §4.7). The in-memory table is always authoritative;
// the mirror is a best-effort cache layered on top, grounded on the
// sorted-set leaderboard idiom (ZADD/ZINCRBY/ZREVRANGE/ZREVRANK).
package leaderboard

import (
	"context"
	"log"
	"sort"
	"sync"
)

// Entry is one player's position in a leaderboard view.
type Entry struct {
	PlayerID string
	Name     string
	Score    int
	Rank     int
}

// Mirror is the optional cache sink a Board may push score updates
// into. Implementations must not block the caller for long and must
// never return an error that the Board cannot simply log and ignore.
type Mirror interface {
	Set(ctx context.Context, boardKey, playerID string, score int) error
	Remove(ctx context.Context, boardKey, playerID string) error
}

// Board tracks scores for one session.
type Board struct {
	mu      sync.RWMutex
	key     string
	scores  map[string]int
	names   map[string]string
	shadow  map[string]bool // "left with answers" players, still ranked
	mirror  Mirror
	verbose bool
}

// New creates an empty board for the given session code. mirror may be
// nil to run purely in-memory.
func New(sessionCode string, mirror Mirror) *Board {
	return &Board{
		key:    "session:" + sessionCode + ":leaderboard",
		scores: make(map[string]int),
		names:  make(map[string]string),
		shadow: make(map[string]bool),
		mirror: mirror,
	}
}

// Upsert sets a player's name and current total score.
func (b *Board) Upsert(playerID, name string, score int) {
	b.mu.Lock()
	b.scores[playerID] = score
	b.names[playerID] = name
	b.mu.Unlock()

	b.mirrorSet(playerID, score)
}

// MarkLeftWithAnswers keeps a disconnected player's score visible in
// the shadow list without counting them as active.
func (b *Board) MarkLeftWithAnswers(playerID string) {
	b.mu.Lock()
	b.shadow[playerID] = true
	b.mu.Unlock()
}

// Remove permanently drops a player (KICK).
func (b *Board) Remove(playerID string) {
	b.mu.Lock()
	delete(b.scores, playerID)
	delete(b.names, playerID)
	delete(b.shadow, playerID)
	b.mu.Unlock()

	if b.mirror != nil {
		if err := b.mirror.Remove(context.Background(), b.key, playerID); err != nil {
			log.Printf("[LEADERBOARD] mirror remove failed for %s: %v", playerID, err)
		}
	}
}

// Reset clears all scores (RESET_SESSION), keeping no shadow entries.
func (b *Board) Reset() {
	b.mu.Lock()
	b.scores = make(map[string]int)
	b.shadow = make(map[string]bool)
	b.mu.Unlock()
}

func (b *Board) mirrorSet(playerID string, score int) {
	if b.mirror == nil {
		return
	}
	if err := b.mirror.Set(context.Background(), b.key, playerID, score); err != nil {
		log.Printf("[LEADERBOARD] mirror set failed for %s: %v", playerID, err)
	}
}

// Full returns every ranked player, highest score first, dense-ranked
// (ties share a rank).
func (b *Board) Full() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rankedLocked(-1)
}

// TopN returns at most n ranked players.
func (b *Board) TopN(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rankedLocked(n)
}

// RankOf returns the 1-based dense rank of playerID, or 0 if unranked.
func (b *Board) RankOf(playerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.rankedLocked(-1) {
		if e.PlayerID == playerID {
			return e.Rank
		}
	}
	return 0
}

func (b *Board) rankedLocked(limit int) []Entry {
	entries := make([]Entry, 0, len(b.scores))
	for id, score := range b.scores {
		entries = append(entries, Entry{PlayerID: id, Name: b.names[id], Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})

	rank := 0
	lastScore := 0
	for i := range entries {
		if i == 0 || entries[i].Score != lastScore {
			rank++
			lastScore = entries[i].Score
		}
		entries[i].Rank = rank
	}

	if limit >= 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
