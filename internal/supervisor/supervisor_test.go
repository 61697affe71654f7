package supervisor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/partyquiz/engine/internal/eventbus"
	"github.com/partyquiz/engine/internal/quiz"
	"github.com/partyquiz/engine/internal/registry"
	"github.com/partyquiz/engine/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, *store.Store, *eventbus.Bus) {
	t.Helper()
	st := store.New()
	bus := eventbus.New()
	reg := registry.New()

	st.Create(quiz.Session{
		ID:   "s1",
		Code: "ABC123",
		Items: []quiz.Item{{
			ID:           "item-1",
			Type:         quiz.ItemQuestion,
			QuestionType: quiz.QMCSingle,
			TimerSeconds: 20,
			Options: []quiz.Option{
				{ID: "a", Text: "Paris", IsCorrect: true},
				{ID: "b", Text: "Lyon"},
			},
			Settings: quiz.Settings{BasePoints: 10},
		}},
	})

	w := NewWorker("ABC123", nil, Deps{Store: st, Bus: bus, Registry: reg})
	go w.Run()
	t.Cleanup(w.Stop)
	return w, st, bus
}

func waitFor(t *testing.T, s *eventbus.Socket, eventType string) eventbus.Envelope {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		type result struct {
			env eventbus.Envelope
			ok  bool
		}
		ch := make(chan result, 1)
		go func() {
			env, ok := s.Next()
			ch <- result{env, ok}
		}()
		select {
		case r := <-ch:
			if !r.ok {
				t.Fatalf("socket closed waiting for %s", eventType)
			}
			if r.env.Type == eventType {
				return r.env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func TestJoinStartSubmitLockRevealFlow(t *testing.T) {
	w, st, bus := newTestWorker(t)

	host := eventbus.NewSocket("h1", "ABC123", eventbus.RoleHost, "")
	player := eventbus.NewSocket("p1", "ABC123", eventbus.RolePlayer, "alice")
	bus.Register(host)
	bus.Register(player)

	w.Send(Command{Type: "JOIN_SESSION", SocketID: "p1", PlayerID: "alice", Payload: mustJSON(map[string]string{"displayName": "Alice"})})
	waitFor(t, player, "PLAYER_JOINED")

	w.Send(Command{Type: "START_ITEM"})
	waitFor(t, player, "ITEM_STARTED")

	snap, _ := st.Snapshot("ABC123")
	require.Equal(t, quiz.StatusActive, snap.Status)

	w.Send(Command{Type: "SUBMIT_ANSWER", SocketID: "p1", PlayerID: "alice", Payload: mustJSON(map[string]any{"raw": "a"})})
	waitFor(t, player, "ANSWER_RECEIVED")
	waitFor(t, host, "PLAYER_ANSWERED")

	w.Send(Command{Type: "LOCK_ITEM"})
	waitFor(t, player, "ITEM_LOCKED")

	snap, _ = st.Snapshot("ABC123")
	require.Len(t, snap.Players, 1)
	require.Equal(t, 10, snap.Players[0].Score)

	w.Send(Command{Type: "REVEAL_ANSWERS"})
	env := waitFor(t, player, "REVEAL_ANSWERS")
	require.Equal(t, "REVEAL_ANSWERS", env.Type)
}

func TestResetSessionClearsScoresKeepsPlayers(t *testing.T) {
	w, st, bus := newTestWorker(t)
	player := eventbus.NewSocket("p1", "ABC123", eventbus.RolePlayer, "alice")
	bus.Register(player)

	w.Send(Command{Type: "JOIN_SESSION", SocketID: "p1", PlayerID: "alice", Payload: mustJSON(map[string]string{"displayName": "Alice"})})
	waitFor(t, player, "PLAYER_JOINED")

	w.Send(Command{Type: "START_ITEM"})
	waitFor(t, player, "ITEM_STARTED")
	w.Send(Command{Type: "SUBMIT_ANSWER", SocketID: "p1", PlayerID: "alice", Payload: mustJSON(map[string]any{"raw": "a"})})
	waitFor(t, player, "ANSWER_RECEIVED")
	w.Send(Command{Type: "LOCK_ITEM"})
	waitFor(t, player, "ITEM_LOCKED")

	w.Send(Command{Type: "RESET_SESSION"})
	waitFor(t, player, "SESSION_RESET")

	snap, _ := st.Snapshot("ABC123")
	require.Equal(t, quiz.StatusLobby, snap.Status)
	require.Len(t, snap.Players, 1)
	require.Equal(t, 0, snap.Players[0].Score)
}

func TestKickPlayerEmitsKickedAndLeft(t *testing.T) {
	w, _, bus := newTestWorker(t)
	player := eventbus.NewSocket("p1", "ABC123", eventbus.RolePlayer, "alice")
	bus.Register(player)

	w.Send(Command{Type: "JOIN_SESSION", SocketID: "p1", PlayerID: "alice", Payload: mustJSON(map[string]string{"displayName": "Alice"})})
	waitFor(t, player, "PLAYER_JOINED")

	w.Send(Command{Type: "KICK_PLAYER", Payload: mustJSON(map[string]string{"playerId": "alice"})})
	waitFor(t, player, "PLAYER_KICKED")
}

func TestEndSessionEmitsFinalScoreboard(t *testing.T) {
	w, st, bus := newTestWorker(t)
	player := eventbus.NewSocket("p1", "ABC123", eventbus.RolePlayer, "alice")
	bus.Register(player)

	w.Send(Command{Type: "JOIN_SESSION", SocketID: "p1", PlayerID: "alice", Payload: mustJSON(map[string]string{"displayName": "Alice"})})
	waitFor(t, player, "PLAYER_JOINED")

	w.Send(Command{Type: "END_SESSION"})
	waitFor(t, player, "SESSION_ENDED")

	snap, _ := st.Snapshot("ABC123")
	require.Equal(t, quiz.StatusEnded, snap.Status)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
