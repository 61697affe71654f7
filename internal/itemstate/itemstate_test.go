package itemstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/partyquiz/engine/internal/quiz"
)

func mcItem() quiz.Item {
	return quiz.Item{
		ID:           "item-1",
		Type:         quiz.ItemQuestion,
		QuestionType: quiz.QMCSingle,
		TimerSeconds: 20,
		Options: []quiz.Option{
			{ID: "a", Text: "Paris", IsCorrect: true},
			{ID: "b", Text: "Lyon"},
		},
		Settings: quiz.Settings{BasePoints: 10},
	}
}

func names(m map[string]string) PlayerNameFunc {
	return func(id string) string { return m[id] }
}

func noStreak(string) int { return 0 }

func TestLifecycleHappyPath(t *testing.T) {
	m := New(mcItem())
	require.Equal(t, PhaseIdle, m.Phase)

	start := time.Now()
	_, err := m.Start(start, quiz.PodiumConfig{})
	require.NoError(t, err)
	require.Equal(t, PhaseActive, m.Phase)

	require.NoError(t, m.Submit("alice", "a", start.Add(time.Second)))
	require.Equal(t, 1, m.AnsweredCount())

	committed, _, err := m.Lock([]string{"alice", "bob"}, names(map[string]string{"alice": "Alice", "bob": "Bob"}), noStreak)
	require.NoError(t, err)
	require.Equal(t, PhaseLocked, m.Phase)
	require.Len(t, committed, 2)

	var alice, bob CommittedAnswer
	for _, c := range committed {
		if c.PlayerID == "alice" {
			alice = c
		} else {
			bob = c
		}
	}
	require.Equal(t, 100.0, alice.ScorePercentage)
	require.Equal(t, 10, alice.Score)
	require.Equal(t, 0.0, bob.ScorePercentage)

	revealed, err := m.Reveal()
	require.NoError(t, err)
	require.Equal(t, PhaseRevealed, m.Phase)
	require.Len(t, revealed, 2)

	// idempotent re-reveal
	revealedAgain, err := m.Reveal()
	require.NoError(t, err)
	require.Equal(t, revealed, revealedAgain)
}

func TestLateSubmissionRejectedAfterLock(t *testing.T) {
	m := New(mcItem())
	start := time.Now()
	_, _ = m.Start(start, quiz.PodiumConfig{})
	_, _, err := m.Lock([]string{}, names(nil), noStreak)
	require.NoError(t, err)

	err = m.Submit("alice", "a", start.Add(time.Second))
	require.ErrorIs(t, err, ErrLateSubmission)
}

func TestResubmissionOverwritesPrior(t *testing.T) {
	m := New(mcItem())
	start := time.Now()
	_, _ = m.Start(start, quiz.PodiumConfig{})

	require.NoError(t, m.Submit("alice", "b", start.Add(time.Second)))
	require.NoError(t, m.Submit("alice", "a", start.Add(2*time.Second)))
	require.Equal(t, 1, m.AnsweredCount())

	committed, _, err := m.Lock([]string{"alice"}, names(map[string]string{"alice": "Alice"}), noStreak)
	require.NoError(t, err)
	require.Equal(t, 100.0, committed[0].ScorePercentage)
}

func TestCancelFromAnyNonIdlePhaseDiscardsScoring(t *testing.T) {
	m := New(mcItem())
	start := time.Now()
	_, _ = m.Start(start, quiz.PodiumConfig{})
	require.NoError(t, m.Submit("alice", "a", start))

	m.Cancel()
	require.Equal(t, PhaseIdle, m.Phase)
	require.Equal(t, 0, m.AnsweredCount())

	// item can be started again after cancel
	_, err := m.Start(time.Now(), quiz.PodiumConfig{})
	require.NoError(t, err)
}

func TestAllAnsweredDetectsCompleteSet(t *testing.T) {
	m := New(mcItem())
	start := time.Now()
	_, _ = m.Start(start, quiz.PodiumConfig{})

	require.False(t, m.AllAnswered([]string{"alice", "bob"}))
	_ = m.Submit("alice", "a", start)
	require.False(t, m.AllAnswered([]string{"alice", "bob"}))
	_ = m.Submit("bob", "b", start)
	require.True(t, m.AllAnswered([]string{"alice", "bob"}))
}

func TestStartTwiceFails(t *testing.T) {
	m := New(mcItem())
	_, err := m.Start(time.Now(), quiz.PodiumConfig{})
	require.NoError(t, err)
	_, err = m.Start(time.Now(), quiz.PodiumConfig{})
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestLockWithSpeedPodiumFoldsBonusIntoScore(t *testing.T) {
	m := New(mcItem())
	start := time.Now()
	_, _ = m.Start(start, quiz.PodiumConfig{Enabled: true, Pct1: 30, Pct2: 20, Pct3: 10})

	require.NoError(t, m.Submit("alice", "a", start.Add(500*time.Millisecond)))
	require.NoError(t, m.Submit("bob", "a", start.Add(900*time.Millisecond)))

	committed, podiumResults, err := m.Lock(
		[]string{"alice", "bob"},
		names(map[string]string{"alice": "Alice", "bob": "Bob"}),
		noStreak,
	)
	require.NoError(t, err)
	require.Len(t, podiumResults, 2)
	require.Equal(t, "alice", podiumResults[0].PlayerID)
	require.Equal(t, 1, podiumResults[0].Position)

	for _, c := range committed {
		if c.PlayerID == "alice" {
			require.Equal(t, 13, c.Score) // 10 base + 30% of 10 = 3
		}
	}
}
