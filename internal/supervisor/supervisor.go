/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package supervisor implements the per-session worker (spec §4.9):
// one goroutine per live session, receiving a stream of host/player
// commands and timer-fired events over a single channel, dispatching
// to the item-state machine (C5) and the Swan Chase simulator (C8)
// under that session's exclusive control, running the pure scoring
// and ranking logic (C1/C6/C7), persisting through C2, and emitting
// every resulting event through C4.
//
// Grounded on Seednode-partybox's Hub.run select-loop over
// register/unreg/joins/mods/guesses channels (celebrity.go), with the
// fixed channel set generalized into one Command union dispatched by
// Type, and the GameManager.reaperLoop idle-timeout pattern carried
// over for session reaping in manager.go.
package supervisor

import (
	"encoding/json"
	"log"
	"time"

	"github.com/partyquiz/engine/internal/eventbus"
	"github.com/partyquiz/engine/internal/itemstate"
	"github.com/partyquiz/engine/internal/leaderboard"
	"github.com/partyquiz/engine/internal/metrics"
	"github.com/partyquiz/engine/internal/quiz"
	"github.com/partyquiz/engine/internal/registry"
	"github.com/partyquiz/engine/internal/store"
	"github.com/partyquiz/engine/internal/swanchase"
)

// Command is one unit of work posted to a session's worker, whether
// it originated from a client frame or from an internal timer.
type Command struct {
	Type     string
	SocketID string
	PlayerID string
	Role     registry.Role
	Payload  json.RawMessage
}

const (
	cmdInternalLockFired = "_ITEM_LOCK_TIMER_FIRED"
	cmdInternalSwanTick  = "_SWAN_CHASE_TICK"
	cmdInternalGrace     = "_PLAYER_GRACE_ELAPSED"

	commandQueueCapacity = 64
)

// Worker drives one session's lifecycle. All of its state is only
// ever touched from its own run loop goroutine; every external
// interaction happens by sending a Command.
type Worker struct {
	SessionCode string

	store      *store.Store
	bus        *eventbus.Bus
	reg        *registry.Registry
	board      *leaderboard.Board
	metrics    metrics.Recorder
	verbose    bool

	commands chan Command

	current     *itemstate.Machine
	lockTimer   *time.Timer
	swan        *swanchase.Simulator
	swanTicker  *time.Ticker
	swanStop    chan struct{}
	lastInputAt map[string]time.Time

	done chan struct{}
}

// Deps bundles the shared, process-wide collaborators every worker
// needs; one Deps is constructed at startup and handed to every
// worker the supervisor spawns.
type Deps struct {
	Store    *store.Store
	Bus      *eventbus.Bus
	Registry *registry.Registry
	Metrics  metrics.Recorder
	Verbose  bool
}

// NewWorker creates (but does not start) a worker for sessionCode.
func NewWorker(sessionCode string, mirror leaderboard.Mirror, deps Deps) *Worker {
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	return &Worker{
		SessionCode: sessionCode,
		store:       deps.Store,
		bus:         deps.Bus,
		reg:         deps.Registry,
		board:       leaderboard.New(sessionCode, mirror),
		metrics:     m,
		verbose:     deps.Verbose,
		commands:    make(chan Command, commandQueueCapacity),
		lastInputAt: make(map[string]time.Time),
		done:        make(chan struct{}),
	}
}

// Send enqueues a command for this worker's run loop. Safe to call
// from any goroutine (the HTTP/websocket handlers, the registry's
// grace timer, this worker's own timers).
func (w *Worker) Send(cmd Command) {
	select {
	case w.commands <- cmd:
	case <-w.done:
	}
}

// Stop terminates the run loop and any running minigame tick loop.
func (w *Worker) Stop() {
	close(w.done)
}

// Run is the worker's main loop; call it in its own goroutine.
func (w *Worker) Run() {
	for {
		select {
		case <-w.done:
			w.teardownSwanChase()
			return
		case cmd := <-w.commands:
			w.handle(cmd)
		}
	}
}

func (w *Worker) handle(cmd Command) {
	switch cmd.Type {
	case "JOIN_SESSION", "REJOIN_AS_EXISTING", "JOIN_AS_NEW":
		w.handleJoin(cmd)
	case "SUBMIT_ANSWER":
		w.handleSubmitAnswer(cmd)
	case "START_ITEM":
		w.handleStartItem(cmd)
	case "LOCK_ITEM", cmdInternalLockFired:
		w.handleLockItem(cmd)
	case "CANCEL_ITEM":
		w.handleCancelItem(cmd)
	case "REVEAL_ANSWERS":
		w.handleRevealAnswers(cmd)
	case "END_SESSION":
		w.handleEndSession(cmd)
	case "RESET_SESSION":
		w.handleResetSession(cmd)
	case "PAUSE_SESSION":
		w.handlePause(cmd, true)
	case "RESUME_SESSION":
		w.handlePause(cmd, false)
	case "KICK_PLAYER":
		w.handleKick(cmd)
	case "GENERATE_REJOIN_TOKEN":
		w.handleGenerateRejoinToken(cmd)
	case "ADJUST_SCORE":
		w.handleAdjustScore(cmd)
	case "START_SWAN_CHASE":
		w.handleStartSwanChase(cmd)
	case "SWAN_CHASE_INPUT":
		w.handleSwanChaseInput(cmd)
	case cmdInternalSwanTick:
		w.handleSwanTick()
	case cmdInternalGrace:
		w.handlePlayerGraceElapsed(cmd)
	default:
		w.logf("unrecognized command type %q", cmd.Type)
	}
}

func (w *Worker) logf(format string, args ...any) {
	if !w.verbose {
		return
	}
	log.Printf("[SUPERVISOR %s] "+format, append([]any{w.SessionCode}, args...)...)
}

func (w *Worker) publish(target eventbus.Target, socketID string, eventType string, payload any, stateVersion int64) {
	w.bus.Publish(w.SessionCode, target, socketID, eventbus.NewEnvelope(eventType, payload, stateVersion))
}

func (w *Worker) onlinePlayerIDs(players map[string]*quiz.Player) []string {
	ids := make([]string, 0, len(players))
	for id, p := range players {
		if p.Online {
			ids = append(ids, id)
		}
	}
	return ids
}

// --- join / leave / rejoin -------------------------------------------------

func (w *Worker) handleJoin(cmd Command) {
	var body struct {
		DisplayName       string `json:"displayName"`
		Avatar            string `json:"avatar"`
		DeviceFingerprint string `json:"deviceFingerprint"`
	}
	_ = json.Unmarshal(cmd.Payload, &body)

	if body.DeviceFingerprint != "" {
		if existingID, found := w.reg.RecognizeFingerprint(w.SessionCode, body.DeviceFingerprint); found {
			w.publish(eventbus.TargetSingle, cmd.SocketID, "DEVICE_RECOGNIZED", map[string]string{"playerId": existingID}, w.currentStateVersion())
			if cmd.Type != "REJOIN_AS_EXISTING" {
				return
			}
		}
	}

	playerID := cmd.PlayerID
	snap, err := w.store.Mutate(w.SessionCode, "JOIN", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		if p, ok := players[playerID]; ok {
			if p.Online {
				return false
			}
			p.Online = true
			p.LeftAt = nil
			return true
		}
		players[playerID] = &quiz.Player{
			ID:                playerID,
			DisplayName:       body.DisplayName,
			Avatar:            body.Avatar,
			DeviceFingerprint: body.DeviceFingerprint,
			Online:            true,
			JoinedAt:          time.Now(),
		}
		return true
	})
	if err != nil {
		w.logf("join failed: %v", err)
		return
	}

	w.reg.BindFingerprint(w.SessionCode, body.DeviceFingerprint, playerID)
	w.board.Upsert(playerID, body.DisplayName, 0)
	w.publish(eventbus.TargetSession, "", "PLAYER_JOINED", map[string]string{"playerId": playerID, "displayName": body.DisplayName}, snap.StateVersion)
}

func (w *Worker) handlePlayerGraceElapsed(cmd Command) {
	snap, err := w.store.Mutate(w.SessionCode, "LEAVE", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		p, ok := players[cmd.PlayerID]
		if !ok || !p.Online {
			return false
		}
		p.Online = false
		now := time.Now()
		p.LeftAt = &now
		return true
	})
	if err != nil {
		return
	}
	hasAnswer := w.current != nil && w.current.AnsweredCount() > 0
	if hasAnswer {
		w.board.MarkLeftWithAnswers(cmd.PlayerID)
	} else {
		w.board.Remove(cmd.PlayerID)
	}
	w.publish(eventbus.TargetSession, "", "PLAYER_LEFT", map[string]string{"playerId": cmd.PlayerID}, snap.StateVersion)
}

func (w *Worker) handleKick(cmd Command) {
	var body struct {
		PlayerID string `json:"playerId"`
	}
	_ = json.Unmarshal(cmd.Payload, &body)

	snap, err := w.store.Mutate(w.SessionCode, "LEAVE", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		if _, ok := players[body.PlayerID]; !ok {
			return false
		}
		delete(players, body.PlayerID)
		return true
	})
	if err != nil {
		return
	}
	w.board.Remove(body.PlayerID)
	w.publish(eventbus.TargetSingle, body.PlayerID, "PLAYER_KICKED", nil, snap.StateVersion)
	w.publish(eventbus.TargetSession, "", "PLAYER_LEFT", map[string]string{"playerId": body.PlayerID}, snap.StateVersion)
}

func (w *Worker) handleGenerateRejoinToken(cmd Command) {
	var body struct {
		PlayerID string `json:"playerId"`
	}
	_ = json.Unmarshal(cmd.Payload, &body)
	token := w.reg.IssueRejoinToken(w.SessionCode, body.PlayerID)
	w.publish(eventbus.TargetHostOnly, "", "REJOIN_TOKEN_GENERATED", map[string]string{"playerId": body.PlayerID, "token": token}, w.currentStateVersion())
}

// --- item lifecycle ---------------------------------------------------------

func (w *Worker) handleStartItem(cmd Command) {
	snap, err := w.store.Snapshot(w.SessionCode)
	if err != nil {
		return
	}
	if snap.CurrentItemIndex >= len(snap.Items) {
		return
	}
	item := snap.Items[snap.CurrentItemIndex]
	w.current = itemstate.New(item)

	podiumCfg := quiz.PodiumConfig{
		Enabled: item.Settings.PodiumEnabled,
	}
	podiumCfg.Pct1, podiumCfg.Pct2, podiumCfg.Pct3 = item.Settings.PodiumSplit()

	duration, err := w.current.Start(time.Now(), podiumCfg)
	if err != nil {
		w.logf("start item failed: %v", err)
		return
	}

	if duration > 0 {
		w.lockTimer = time.AfterFunc(duration, func() {
			w.Send(Command{Type: cmdInternalLockFired})
		})
		w.current.SetLockTimer(w.lockTimer)
	}

	result, err := w.store.Mutate(w.SessionCode, "ITEM_TRANSITION", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		if s.Status == quiz.StatusLobby {
			s.Status = quiz.StatusActive
		}
		return true
	})
	if err != nil {
		return
	}

	visibleOptions := make([]quiz.Option, len(item.Options))
	for i, o := range item.Options {
		visibleOptions[i] = o
		visibleOptions[i].IsCorrect = false
	}
	w.publish(eventbus.TargetSession, "", "ITEM_STARTED", map[string]any{
		"itemId":       item.ID,
		"questionType": item.QuestionType,
		"prompt":       item.Prompt,
		"options":      visibleOptions,
		"mediaRefs":    item.MediaRefs,
		"timerSeconds": item.TimerSeconds,
	}, result.StateVersion)
}

func (w *Worker) handleSubmitAnswer(cmd Command) {
	if w.current == nil {
		return
	}
	var body struct {
		Raw any `json:"raw"`
	}
	_ = json.Unmarshal(cmd.Payload, &body)

	if err := w.current.Submit(cmd.PlayerID, body.Raw, time.Now()); err != nil {
		w.publish(eventbus.TargetSingle, cmd.SocketID, "ERROR", map[string]string{"reason": err.Error()}, w.currentStateVersion())
		return
	}

	w.publish(eventbus.TargetSingle, cmd.SocketID, "ANSWER_RECEIVED", nil, w.currentStateVersion())
	w.publish(eventbus.TargetHostOnly, "", "PLAYER_ANSWERED", map[string]string{"playerId": cmd.PlayerID}, w.currentStateVersion())

	var online []string
	_ = w.store.View(w.SessionCode, func(s *quiz.Session, players map[string]*quiz.Player) {
		online = w.onlinePlayerIDs(players)
	})
	w.publish(eventbus.TargetSession, "", "ANSWER_COUNT_UPDATED", map[string]int{
		"count": w.current.AnsweredCount(),
		"total": len(online),
	}, w.currentStateVersion())

	if w.current.AllAnswered(online) {
		w.handleLockItem(Command{})
	}
}

func (w *Worker) handleLockItem(cmd Command) {
	if w.current == nil {
		return
	}
	var online []string
	names := map[string]string{}
	streaks := map[string]int{}
	_ = w.store.View(w.SessionCode, func(s *quiz.Session, players map[string]*quiz.Player) {
		online = w.onlinePlayerIDs(players)
		for id, p := range players {
			names[id] = p.DisplayName
			streaks[id] = p.Streak
		}
	})

	committed, podiumResults, err := w.current.Lock(online,
		func(id string) string { return names[id] },
		func(id string) int { return streaks[id] })
	if err != nil {
		return
	}

	snap, err := w.store.Mutate(w.SessionCode, "SCORE_ADJUST", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		for _, c := range committed {
			p, ok := players[c.PlayerID]
			if !ok {
				continue
			}
			p.Score += c.Score
			if c.IsCorrect != nil && *c.IsCorrect {
				p.Streak++
			} else {
				p.Streak = 0
			}
			w.board.Upsert(p.ID, p.DisplayName, p.Score)
			w.metrics.IncAnswersProcessed(string(w.current.Item.QuestionType))
		}
		return true
	})
	if err != nil {
		return
	}

	if _, err := w.store.RecordAnswers(w.SessionCode, w.current.Item.ID, committedToAnswerRecords(committed)); err != nil {
		w.logf("failed to record answers for item %s: %v", w.current.Item.ID, err)
	}

	w.publish(eventbus.TargetSession, "", "ANSWER_COUNT_UPDATED", map[string]int{
		"count": w.current.AnsweredCount(),
		"total": len(online),
	}, snap.StateVersion)
	w.publish(eventbus.TargetSession, "", "LEADERBOARD_UPDATE", w.board.Full(), snap.StateVersion)
	if len(podiumResults) > 0 {
		w.publish(eventbus.TargetSession, "", "SPEED_PODIUM_RESULTS", podiumResults, snap.StateVersion)
	}
	w.publish(eventbus.TargetSession, "", "ITEM_LOCKED", map[string]string{"itemId": w.current.Item.ID}, snap.StateVersion)
}

func (w *Worker) handleRevealAnswers(cmd Command) {
	if w.current == nil {
		return
	}
	committed, err := w.current.Reveal()
	if err != nil {
		return
	}
	w.publish(eventbus.TargetSession, "", "REVEAL_ANSWERS", map[string]any{
		"itemId":  w.current.Item.ID,
		"answers": committed,
	}, w.currentStateVersion())
}

func (w *Worker) handleCancelItem(cmd Command) {
	if w.current == nil {
		return
	}
	w.current.Cancel()
	w.publish(eventbus.TargetSession, "", "ITEM_CANCELLED", map[string]string{"itemId": w.current.Item.ID}, w.currentStateVersion())
}

// --- session-level commands --------------------------------------------------

func (w *Worker) handleEndSession(cmd Command) {
	if w.current != nil {
		w.current.Cancel()
	}
	w.teardownSwanChase()

	snap, err := w.store.Mutate(w.SessionCode, "SESSION_END", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		s.Status = quiz.StatusEnded
		return true
	})
	if err != nil {
		return
	}
	w.publish(eventbus.TargetSession, "", "SESSION_ENDED", map[string]any{"finalScoreboard": w.board.Full()}, snap.StateVersion)
}

func (w *Worker) handleResetSession(cmd Command) {
	if w.current != nil {
		w.current.Cancel()
	}
	snap, err := w.store.Mutate(w.SessionCode, "SESSION_END", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		s.Status = quiz.StatusLobby
		s.CurrentItemIndex = 0
		for _, p := range players {
			p.Score = 0
			p.Streak = 0
		}
		return true
	})
	if err != nil {
		return
	}
	w.board.Reset()
	w.publish(eventbus.TargetSession, "", "SESSION_RESET", nil, snap.StateVersion)
}

func (w *Worker) handlePause(cmd Command, paused bool) {
	kind := "SESSION_PAUSED"
	status := quiz.StatusPaused
	if !paused {
		kind = "SESSION_RESUMED"
		status = quiz.StatusActive
	}
	snap, err := w.store.Mutate(w.SessionCode, "ITEM_TRANSITION", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		s.Status = status
		return true
	})
	if err != nil {
		return
	}
	w.publish(eventbus.TargetSession, "", kind, nil, snap.StateVersion)
}

func (w *Worker) handleAdjustScore(cmd Command) {
	var body struct {
		PlayerID string `json:"playerId"`
		Delta    int    `json:"delta"`
	}
	_ = json.Unmarshal(cmd.Payload, &body)

	snap, err := w.store.Mutate(w.SessionCode, "SCORE_ADJUST", func(s *quiz.Session, players map[string]*quiz.Player) bool {
		p, ok := players[body.PlayerID]
		if !ok {
			return false
		}
		p.Score += body.Delta
		w.board.Upsert(p.ID, p.DisplayName, p.Score)
		return true
	})
	if err != nil {
		return
	}
	w.publish(eventbus.TargetSession, "", "SCORE_ADJUSTED", map[string]any{"playerId": body.PlayerID, "delta": body.Delta}, snap.StateVersion)
}

func (w *Worker) currentStateVersion() int64 {
	snap, err := w.store.Snapshot(w.SessionCode)
	if err != nil {
		return 0
	}
	return snap.StateVersion
}

// committedToAnswerRecords converts the item-state machine's
// in-memory committed answers into the store's durable shape, keyed
// by item for rehydration and checkpointing (spec §4.2/§4.11).
func committedToAnswerRecords(committed []itemstate.CommittedAnswer) []store.AnswerRecord {
	out := make([]store.AnswerRecord, len(committed))
	for i, c := range committed {
		out[i] = store.AnswerRecord{
			PlayerID:         c.PlayerID,
			PlayerName:       c.PlayerName,
			Raw:              c.Raw,
			NormalizedAnswer: c.NormalizedAnswer,
			IsCorrect:        c.IsCorrect,
			ScorePercentage:  c.ScorePercentage,
			Score:            c.Score,
			TimeSpentMs:      c.TimeSpentMs,
			AnsweredAt:       c.AnsweredAt,
		}
	}
	return out
}
