package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/partyquiz/engine/internal/quiz"
)

func TestDurableWriterWithNilPoolClearsDegradedFlag(t *testing.T) {
	st := New()
	st.Create(quiz.Session{ID: "1", Code: "ABC123"})
	st.MarkPersistenceDegraded("ABC123", true)

	w := NewDurableWriter(nil, st)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	w.Enqueue("ANSWER", "ABC123", 1, Snapshot{Code: "ABC123"})

	require.Eventually(t, func() bool {
		snap, _ := st.Snapshot("ABC123")
		return !snap.PersistenceDegraded
	}, time.Second, 5*time.Millisecond)
}

func TestDurableWriterDropsOnFullQueue(t *testing.T) {
	w := &DurableWriter{queue: make(chan checkpoint, 1)}
	var dropped int
	w.DroppedCheckpoints = func(sessionCode string) { dropped++ }

	w.Enqueue("ANSWER", "ABC123", 1, Snapshot{})
	w.Enqueue("ANSWER", "ABC123", 2, Snapshot{}) // queue capacity 1: this one drops

	require.Equal(t, 1, dropped)
}
