/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package metrics registers the process's Prometheus collectors once
// and exposes them through a small interface so C9/C2/C3/C8 never
// import prometheus/client_golang directly — only internal/httpserver
// (which serves /metrics) and this package touch the library, keeping
// it at the edges the way the teacher's stack treats optional
// infrastructure.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the narrow surface the engine packages depend on.
type Recorder interface {
	SetActiveSessions(n int)
	SetConnectedSockets(role string, n int)
	IncAnswersProcessed(questionType string)
	IncCheckpointDrops()
	ObserveTickDuration(d time.Duration)
}

// Metrics is the concrete Recorder backed by a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	connectedSockets  *prometheus.GaugeVec
	answersProcessed  *prometheus.CounterVec
	checkpointDrops   prometheus.Counter
	tickDuration      prometheus.Histogram
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "partyquiz",
			Name:      "active_sessions",
			Help:      "Number of sessions not in ENDED or ARCHIVED status.",
		}),
		connectedSockets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "partyquiz",
			Name:      "connected_sockets",
			Help:      "Connected websocket sockets by role.",
		}, []string{"role"}),
		answersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partyquiz",
			Name:      "answers_processed_total",
			Help:      "Answers scored by the validator, labeled by question type.",
		}, []string{"question_type"}),
		checkpointDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partyquiz",
			Name:      "checkpoint_drops_total",
			Help:      "Durable-store checkpoints permanently dropped after exhausting retries.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "partyquiz",
			Name:      "swanchase_tick_duration_seconds",
			Help:      "Wall time spent computing one Swan Chase simulation tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 10),
		}),
	}

	reg.MustRegister(m.activeSessions, m.connectedSockets, m.answersProcessed, m.checkpointDrops, m.tickDuration)
	return m
}

func (m *Metrics) SetActiveSessions(n int) { m.activeSessions.Set(float64(n)) }

func (m *Metrics) SetConnectedSockets(role string, n int) {
	m.connectedSockets.WithLabelValues(role).Set(float64(n))
}

func (m *Metrics) IncAnswersProcessed(questionType string) {
	m.answersProcessed.WithLabelValues(questionType).Inc()
}

func (m *Metrics) IncCheckpointDrops() { m.checkpointDrops.Inc() }

func (m *Metrics) ObserveTickDuration(d time.Duration) { m.tickDuration.Observe(d.Seconds()) }

// Noop satisfies Recorder for code paths (and tests) that run without
// metrics wired in, e.g. when --metrics is off.
type Noop struct{}

func (Noop) SetActiveSessions(int)              {}
func (Noop) SetConnectedSockets(string, int)    {}
func (Noop) IncAnswersProcessed(string)         {}
func (Noop) IncCheckpointDrops()                {}
func (Noop) ObserveTickDuration(time.Duration)  {}
