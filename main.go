/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/partyquiz/engine/internal/config"
	"github.com/partyquiz/engine/internal/eventbus"
	"github.com/partyquiz/engine/internal/httpserver"
	"github.com/partyquiz/engine/internal/leaderboard"
	"github.com/partyquiz/engine/internal/metrics"
	"github.com/partyquiz/engine/internal/registry"
	"github.com/partyquiz/engine/internal/store"
	"github.com/partyquiz/engine/internal/supervisor"
)

const (
	releaseVersion           = "0.1.0"
	defaultHeartbeatInterval = 15 * time.Second
)

func main() {
	log.SetFlags(0)
	cfg := &config.Config{}
	cobra.CheckErr(config.NewCommand(cfg, releaseVersion, run).Execute())
}

// run wires every engine package together and serves until the
// process receives an interrupt or termination signal. Grounded on
// Seednode-partybox's main.go+ServePage split, generalized so cobra's
// RunE hands off to a single composition root instead of one
// hardcoded game's ServePage.
func run(cmd *cobra.Command, cfg *config.Config, args []string) error {
	httpserver.Version = releaseVersion

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New()
	bus := eventbus.New()
	reg := registry.New()

	var met *metrics.Metrics
	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Metrics {
		met = metrics.New()
		recorder = met
	}

	var mirror leaderboard.Mirror
	if cfg.RedisAddr != "" {
		mirror = leaderboard.NewRedisMirror(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		writer := store.NewDurableWriter(pool, st)
		writer.DroppedCheckpoints = func(sessionCode string) {
			recorder.IncCheckpointDrops()
		}
		st.OnCheckpoint = writer.Enqueue
		go writer.Run(ctx)
	}

	mgr := supervisor.NewManager(supervisor.Deps{
		Store:    st,
		Bus:      bus,
		Registry: reg,
		Metrics:  recorder,
		Verbose:  cfg.Verbose,
	}, mirror, cfg.SessionTimeout)

	go presenceLoop(ctx, reg, mgr, recorder, cfg)

	srv := httpserver.New(cfg, mgr, reg, st, bus, met)
	return srv.Run(ctx)
}

// presenceLoop periodically refreshes connection quality and the
// active-session gauge, mirroring GameManager.reaperLoop's ticker
// shape but driven off the configured heartbeat interval instead of
// half the idle timeout.
func presenceLoop(ctx context.Context, reg *registry.Registry, mgr *supervisor.Manager, recorder metrics.Recorder, cfg *config.Config) {
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.RefreshQuality(time.Now())
			recorder.SetActiveSessions(mgr.ActiveSessionCount())
		}
	}
}
