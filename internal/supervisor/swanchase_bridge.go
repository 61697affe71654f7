/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package supervisor

import (
	"encoding/json"
	"time"

	"github.com/partyquiz/engine/internal/eventbus"
	"github.com/partyquiz/engine/internal/quiz"
	"github.com/partyquiz/engine/internal/swanchase"
)

const swanInputRateLimit = 30 // messages per second per player, per spec §4.8

func (w *Worker) handleStartSwanChase(cmd Command) {
	var body struct {
		BoatIDs  []string `json:"boatIds"`
		SwanIDs  []string `json:"swanIds"`
		Duration int      `json:"durationSeconds"`
	}
	_ = json.Unmarshal(cmd.Payload, &body)
	if body.Duration <= 0 {
		body.Duration = 90
	}

	cfg := swanchase.DefaultConfig()
	safeZone := swanchase.SafeZone{Center: swanchase.Vec2{X: cfg.Bounds.X / 2, Y: cfg.Bounds.Y / 2}, Radius: 50}
	w.swan = swanchase.New(cfg, safeZone, body.BoatIDs, body.SwanIDs, time.Duration(body.Duration)*time.Second)
	w.lastInputAt = make(map[string]time.Time)

	w.swanTicker = time.NewTicker(swanchase.TickInterval)
	w.swanStop = make(chan struct{})
	ticker := w.swanTicker
	stop := w.swanStop
	go func() {
		for {
			select {
			case <-ticker.C:
				w.Send(Command{Type: cmdInternalSwanTick})
			case <-stop:
				return
			}
		}
	}()

	w.publish(eventbus.TargetSession, "", "SWAN_CHASE_STATE", swanChaseStatePayload(w.swan), w.currentStateVersion())
}

func (w *Worker) handleSwanChaseInput(cmd Command) {
	if w.swan == nil {
		return
	}
	now := time.Now()
	if last, ok := w.lastInputAt[cmd.PlayerID]; ok && now.Sub(last) < time.Second/swanInputRateLimit {
		return // excess input dropped per spec §4.8's 30 msg/s/player limit
	}
	w.lastInputAt[cmd.PlayerID] = now

	var body struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Sprint bool    `json:"sprint"`
		Dash   bool    `json:"dash"`
	}
	_ = json.Unmarshal(cmd.Payload, &body)
	w.swan.SetInput(cmd.PlayerID, swanchase.Vec2{X: body.X, Y: body.Y}, body.Sprint, body.Dash)
}

func (w *Worker) handleSwanTick() {
	if w.swan == nil {
		return
	}
	start := time.Now()
	tags, safes, end := w.swan.Tick(start, swanchase.TickInterval)
	w.metrics.ObserveTickDuration(time.Since(start))

	for _, tag := range tags {
		w.publish(eventbus.TargetSession, "", "BOAT_TAGGED", map[string]string{"boatId": tag.BoatID, "swanId": tag.SwanID}, w.currentStateVersion())
	}
	for _, s := range safes {
		w.publish(eventbus.TargetSession, "", "BOAT_SAFE", map[string]any{"boatId": s.BoatID, "order": s.Order}, w.currentStateVersion())
	}

	w.publish(eventbus.TargetSession, "", "SWAN_CHASE_STATE", swanChaseStatePayload(w.swan), w.currentStateVersion())

	if end != nil {
		snap, err := w.store.Mutate(w.SessionCode, "SCORE_ADJUST", func(s *quiz.Session, players map[string]*quiz.Player) bool {
			for playerID, delta := range end.Scores {
				if p, ok := players[playerID]; ok {
					p.Score += delta
					w.board.Upsert(p.ID, p.DisplayName, p.Score)
				}
			}
			return true
		})
		if err == nil {
			w.publish(eventbus.TargetSession, "", "SWAN_CHASE_ENDED", map[string]any{"reason": end.Reason, "scores": end.Scores}, snap.StateVersion)
		}
		w.teardownSwanChase()
	}
}

func (w *Worker) teardownSwanChase() {
	if w.swan != nil {
		w.swan.Cancel()
		w.swan = nil
	}
	if w.swanTicker != nil {
		w.swanTicker.Stop()
		w.swanTicker = nil
	}
	if w.swanStop != nil {
		close(w.swanStop)
		w.swanStop = nil
	}
}

func swanChaseStatePayload(sim *swanchase.Simulator) map[string]any {
	return map[string]any{
		"participants":      sim.Participants,
		"safeZone":          sim.SafeZone,
		"timeRemainingMs":   sim.TimeRemaining.Milliseconds(),
	}
}
