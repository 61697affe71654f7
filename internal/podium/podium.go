/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package podium implements the speed-podium aggregation (spec §4.6):
// on an item's lock, the three fastest 100%-correct answers earn a
// percentage bonus on top of their committed score.
package podium

import (
	"math"
	"sort"

	"github.com/partyquiz/engine/internal/quiz"
)

// Candidate is one committed answer eligible for podium consideration.
type Candidate struct {
	PlayerID        string
	PlayerName      string
	BaseScore       int
	ScorePercentage float64
	TimeSpentMs     int64
}

// Result is one podium placement.
type Result struct {
	PlayerID       string `json:"playerId"`
	PlayerName     string `json:"playerName"`
	Position       int    `json:"position"`
	BonusPercentage int   `json:"bonusPercentage"`
	BonusPoints    int    `json:"bonusPoints"`
}

// Compute filters to 100%-correct answers, sorts by elapsed time
// ascending (ties broken by playerID, for determinism), and awards a
// bonus to up to the top 3 per cfg's percentage split. It returns the
// podium in ranked order; the caller is responsible for folding
// BonusPoints into the committed answer score and the player's total.
func Compute(candidates []Candidate, cfg quiz.PodiumConfig) []Result {
	if !cfg.Enabled {
		return nil
	}

	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ScorePercentage == 100 {
			eligible = append(eligible, c)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].TimeSpentMs != eligible[j].TimeSpentMs {
			return eligible[i].TimeSpentMs < eligible[j].TimeSpentMs
		}
		return eligible[i].PlayerID < eligible[j].PlayerID
	})

	if len(eligible) > 3 {
		eligible = eligible[:3]
	}

	pcts := [3]int{cfg.Pct1, cfg.Pct2, cfg.Pct3}
	results := make([]Result, 0, len(eligible))
	for i, c := range eligible {
		bonus := int(math.Round(float64(c.BaseScore) * float64(pcts[i]) / 100))
		results = append(results, Result{
			PlayerID:        c.PlayerID,
			PlayerName:      c.PlayerName,
			Position:        i + 1,
			BonusPercentage: pcts[i],
			BonusPoints:     bonus,
		})
	}
	return results
}
