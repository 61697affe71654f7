package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishTargetsCorrectRoles(t *testing.T) {
	bus := New()
	host := NewSocket("h1", "ABC123", RoleHost, "")
	player := NewSocket("p1", "ABC123", RolePlayer, "alice")
	display := NewSocket("d1", "ABC123", RoleDisplay, "")
	bus.Register(host)
	bus.Register(player)
	bus.Register(display)

	bus.Publish("ABC123", TargetHostOnly, "", NewEnvelope("ITEM_LOCKED", nil, 1))
	env, ok := host.Next()
	require.True(t, ok)
	require.Equal(t, "ITEM_LOCKED", env.Type)

	require.Empty(t, player.queue)
	require.Empty(t, display.queue)
}

func TestPublishPlayersOnlyExcludesHostAndDisplay(t *testing.T) {
	bus := New()
	host := NewSocket("h1", "ABC123", RoleHost, "")
	player := NewSocket("p1", "ABC123", RolePlayer, "alice")
	bus.Register(host)
	bus.Register(player)

	bus.Publish("ABC123", TargetPlayersOnly, "", NewEnvelope("ITEM_STARTED", nil, 1))
	_, ok := player.Next()
	require.True(t, ok)
	require.Empty(t, host.queue)
}

func TestOverflowRetainsLatestLeaderboardUpdate(t *testing.T) {
	s := NewSocket("p1", "ABC123", RolePlayer, "alice")
	s.capacity = 2

	s.Enqueue(NewEnvelope("LEADERBOARD_UPDATE", map[string]int{"v": 1}, 1))
	s.Enqueue(NewEnvelope("LEADERBOARD_UPDATE", map[string]int{"v": 2}, 2))

	require.Len(t, s.queue, 1)
	require.Equal(t, int64(2), s.queue[0].StateVersion)
}

func TestOverflowDropsOldestNonIdempotentFirst(t *testing.T) {
	s := NewSocket("p1", "ABC123", RolePlayer, "alice")
	s.capacity = 2

	s.Enqueue(NewEnvelope("PLAYER_ANSWERED", nil, 1))
	s.Enqueue(NewEnvelope("LEADERBOARD_UPDATE", nil, 2))
	s.Enqueue(NewEnvelope("PLAYER_ANSWERED", nil, 3))

	require.Len(t, s.queue, 2)
	var sawLeaderboard bool
	for _, e := range s.queue {
		if e.Type == "LEADERBOARD_UPDATE" {
			sawLeaderboard = true
		}
	}
	require.True(t, sawLeaderboard)
}

func TestSustainedOverflowMarksOffline(t *testing.T) {
	s := NewSocket("p1", "ABC123", RolePlayer, "alice")
	s.capacity = 1

	offlined := make(chan string, 1)
	s.OnOffline = func(id string) { offlined <- id }

	for i := 0; i < offlineOverflowStreak+1; i++ {
		s.Enqueue(NewEnvelope("PLAYER_ANSWERED", nil, int64(i)))
	}

	select {
	case id := <-offlined:
		require.Equal(t, "p1", id)
	case <-time.After(time.Second):
		t.Fatal("expected OnOffline callback to fire")
	}
}

func TestUnregisterRemovesSocketFromRoom(t *testing.T) {
	bus := New()
	s := NewSocket("p1", "ABC123", RolePlayer, "alice")
	bus.Register(s)
	require.Equal(t, 1, bus.RoomSize("ABC123"))

	bus.Unregister("ABC123", "p1")
	require.Equal(t, 0, bus.RoomSize("ABC123"))
}
