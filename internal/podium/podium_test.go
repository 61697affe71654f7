package podium

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/partyquiz/engine/internal/quiz"
)

func TestSpeedPodiumOrdersByTime(t *testing.T) {
	candidates := []Candidate{
		{PlayerID: "c", PlayerName: "Carol", BaseScore: 10, ScorePercentage: 100, TimeSpentMs: 1600},
		{PlayerID: "a", PlayerName: "Alice", BaseScore: 10, ScorePercentage: 100, TimeSpentMs: 800},
		{PlayerID: "b", PlayerName: "Bob", BaseScore: 10, ScorePercentage: 100, TimeSpentMs: 1200},
		{PlayerID: "d", PlayerName: "Dan", BaseScore: 10, ScorePercentage: 40, TimeSpentMs: 500},
	}
	cfg := quiz.PodiumConfig{Enabled: true, Pct1: 30, Pct2: 20, Pct3: 10}

	results := Compute(candidates, cfg)
	require.Len(t, results, 3)
	require.Equal(t, "a", results[0].PlayerID)
	require.Equal(t, 3, results[0].BonusPoints)
	require.Equal(t, "b", results[1].PlayerID)
	require.Equal(t, 2, results[1].BonusPoints)
	require.Equal(t, "c", results[2].PlayerID)
	require.Equal(t, 1, results[2].BonusPoints)
}

func TestSpeedPodiumTieBreakByPlayerID(t *testing.T) {
	candidates := []Candidate{
		{PlayerID: "zzz", BaseScore: 10, ScorePercentage: 100, TimeSpentMs: 1000},
		{PlayerID: "aaa", BaseScore: 10, ScorePercentage: 100, TimeSpentMs: 1000},
	}
	cfg := quiz.PodiumConfig{Enabled: true, Pct1: 30, Pct2: 20, Pct3: 10}

	results := Compute(candidates, cfg)
	require.Equal(t, "aaa", results[0].PlayerID)
	require.Equal(t, "zzz", results[1].PlayerID)
}

func TestSpeedPodiumOnlyPerfectScores(t *testing.T) {
	candidates := []Candidate{
		{PlayerID: "a", BaseScore: 10, ScorePercentage: 90, TimeSpentMs: 100},
		{PlayerID: "b", BaseScore: 10, ScorePercentage: 50, TimeSpentMs: 200},
	}
	cfg := quiz.PodiumConfig{Enabled: true, Pct1: 30, Pct2: 20, Pct3: 10}
	require.Empty(t, Compute(candidates, cfg))
}

func TestSpeedPodiumDisabled(t *testing.T) {
	candidates := []Candidate{{PlayerID: "a", BaseScore: 10, ScorePercentage: 100, TimeSpentMs: 100}}
	require.Nil(t, Compute(candidates, quiz.PodiumConfig{Enabled: false}))
}
