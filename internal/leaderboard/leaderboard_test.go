package leaderboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullPathFromScenarioS1(t *testing.T) {
	b := New("ABC123", nil)
	b.Upsert("alice", "Alice", 10)
	b.Upsert("bob", "Bob", 0)

	full := b.Full()
	require.Len(t, full, 2)
	require.Equal(t, "alice", full[0].PlayerID)
	require.Equal(t, 1, full[0].Rank)
	require.Equal(t, "bob", full[1].PlayerID)
	require.Equal(t, 2, full[1].Rank)
}

func TestDenseRanksShareTies(t *testing.T) {
	b := New("ABC123", nil)
	b.Upsert("a", "A", 10)
	b.Upsert("b", "B", 10)
	b.Upsert("c", "C", 5)

	require.Equal(t, 1, b.RankOf("a"))
	require.Equal(t, 1, b.RankOf("b"))
	require.Equal(t, 2, b.RankOf("c"))
}

func TestTopNTruncates(t *testing.T) {
	b := New("ABC123", nil)
	for i, id := range []string{"a", "b", "c"} {
		b.Upsert(id, id, 10-i)
	}
	require.Len(t, b.TopN(2), 2)
}

func TestResetClearsScores(t *testing.T) {
	b := New("ABC123", nil)
	b.Upsert("a", "A", 10)
	b.Reset()
	require.Empty(t, b.Full())
}

func TestMirrorFailureDoesNotBlockCommit(t *testing.T) {
	b := New("ABC123", errMirror{})
	require.NotPanics(t, func() {
		b.Upsert("a", "A", 10)
	})
	require.Equal(t, 10, b.Full()[0].Score)
}

type errMirror struct{}

func (errMirror) Set(_ context.Context, _, _ string, _ int) error    { return assertErr }
func (errMirror) Remove(_ context.Context, _, _ string) error        { return assertErr }

var assertErr = errFake("mirror down")

type errFake string

func (e errFake) Error() string { return string(e) }
