package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/partyquiz/engine/internal/quiz"
)

func TestMCSingleHappyPath(t *testing.T) {
	options := []quiz.Option{
		{ID: "o1", Text: "Paris", IsCorrect: true},
		{ID: "o2", Text: "London", IsCorrect: false},
	}
	settings := quiz.Settings{BasePoints: 10, StreakBonus: true, StreakPoints: 1}

	alice := Validate(Input{QuestionType: quiz.QMCSingle, Raw: "o1", Options: options, Settings: settings, CurrentStreak: 0})
	require.True(t, *alice.IsCorrect)
	require.Equal(t, 10, alice.Score)

	bob := Validate(Input{QuestionType: quiz.QMCSingle, Raw: "o2", Options: options, Settings: settings, CurrentStreak: 0})
	require.False(t, *bob.IsCorrect)
	require.Equal(t, 0, bob.Score)
}

func TestTrueFalseBooleanCoercion(t *testing.T) {
	options := []quiz.Option{
		{ID: "o1", Text: "True", IsCorrect: true},
		{ID: "o2", Text: "False", IsCorrect: false},
	}
	settings := quiz.Settings{BasePoints: 10}

	res := Validate(Input{QuestionType: quiz.QTrueFalse, Raw: "true", Options: options, Settings: settings})
	require.True(t, *res.IsCorrect)
	require.Equal(t, 100.0, res.ScorePercentage)

	res2 := Validate(Input{QuestionType: quiz.QTrueFalse, Raw: true, Options: options, Settings: settings})
	require.True(t, *res2.IsCorrect)
}

func TestOrderPartial(t *testing.T) {
	options := []quiz.Option{
		{ID: "A", Order: 0},
		{ID: "B", Order: 1},
		{ID: "C", Order: 2},
		{ID: "D", Order: 3},
	}
	settings := quiz.Settings{BasePoints: 10}

	res := Validate(Input{QuestionType: quiz.QOrder, Raw: []any{"A", "C", "B", "D"}, Options: options, Settings: settings})
	require.Equal(t, 50.0, res.ScorePercentage)
	require.False(t, *res.IsCorrect)
	require.Equal(t, 5, res.Score)
}

func TestFuzzyTextTier(t *testing.T) {
	settings := quiz.Settings{BasePoints: 10, CorrectAnswerText: "Amsterdam"}
	res := Validate(Input{QuestionType: quiz.QOpenText, Raw: "Amsterdem", Settings: settings})
	require.Equal(t, 70.0, res.ScorePercentage)
	require.True(t, *res.IsCorrect)
	require.Equal(t, 7, res.Score)
}

func TestPollForcesZeroScore(t *testing.T) {
	settings := quiz.Settings{BasePoints: 10}
	res := Validate(Input{QuestionType: quiz.QPoll, Raw: nil, Settings: settings})
	require.True(t, *res.IsCorrect)
	require.Equal(t, 0, res.Score)
}

func TestValidatorIsPure(t *testing.T) {
	options := []quiz.Option{{ID: "o1", IsCorrect: true}}
	settings := quiz.Settings{BasePoints: 10}
	in := Input{QuestionType: quiz.QMCSingle, Raw: "o1", Options: options, Settings: settings}

	a := Validate(in)
	b := Validate(in)
	require.Equal(t, a, b)
}

func TestMalformedPayloadCoercesToZero(t *testing.T) {
	options := []quiz.Option{{ID: "o1", IsCorrect: true}}
	settings := quiz.Settings{BasePoints: 10}
	res := Validate(Input{QuestionType: quiz.QMCSingle, Raw: 12345, Options: options, Settings: settings})
	require.NotNil(t, res.IsCorrect)
	require.Equal(t, 0.0, res.ScorePercentage)
}

func TestSimilaritySymmetry(t *testing.T) {
	pairs := [][2]string{
		{"amsterdam", "amsterdem"},
		{"paris", "london"},
		{"", "x"},
		{"same", "same"},
	}
	for _, p := range pairs {
		require.InDelta(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), 1e-9)
	}
}

func TestMCMultiplePartialScoring(t *testing.T) {
	options := []quiz.Option{
		{ID: "o1", IsCorrect: true},
		{ID: "o2", IsCorrect: true},
		{ID: "o3", IsCorrect: false},
	}
	settings := quiz.Settings{BasePoints: 10}

	res := Validate(Input{QuestionType: quiz.QMCMultiple, Raw: []any{"o1", "o3"}, Options: options, Settings: settings})
	require.InDelta(t, 100.0/3-50.0/3, res.ScorePercentage, 1e-9)
}
