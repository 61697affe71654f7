/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package config implements process configuration (spec §4.10):
// cobra/pflag-bound flags, viper-sourced environment overrides under
// the PARTYQUIZ_ prefix, and the teacher's "-"/"_" normalization so
// --player-timeout and PARTYQUIZ_PLAYER_TIMEOUT resolve to the same
// setting either way.
//
// Grounded directly on Seednode-partybox's config.go: same
// viper/pflag wiring shape, same validate()-before-run gate, extended
// with the session engine's own flags (database/redis addresses,
// heartbeat interval, metrics toggle).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully-resolved process configuration.
type Config struct {
	Bind              string
	Port              int
	Prefix            string
	TLSCert           string
	TLSKey            string
	PlayerTimeout     time.Duration
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	DatabaseURL       string
	RedisAddr         string
	Verbose           bool
	Profile           bool
	Metrics           bool
	Version           bool
}

// Validate enforces the TLS-pair-or-neither rule and the port range,
// exactly as the teacher's Config.validate.
func (c *Config) Validate() error {
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	return nil
}

// Scheme reports "https" when a TLS cert/key pair is configured.
func (c *Config) Scheme() string {
	if c.TLSCert != "" && c.TLSKey != "" {
		return "https"
	}
	return "http"
}

// RunFunc is the handler invoked once flags/env are resolved and
// validated; the root main package wires this to its httpserver bootstrap.
type RunFunc func(cmd *cobra.Command, cfg *Config, args []string) error

// NewCommand builds the root cobra command, binding every flag to
// viper with the PARTYQUIZ_ environment prefix.
func NewCommand(cfg *Config, version string, run RunFunc) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PARTYQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "partyquiz",
		Short:         "Realtime multiplayer quiz session engine.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg, args)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYQUIZ_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: PARTYQUIZ_PORT)")
	fs.StringVar(&cfg.Prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYQUIZ_PREFIX)")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "path to tls certificate (env: PARTYQUIZ_TLS_CERT)")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "path to tls keyfile (env: PARTYQUIZ_TLS_KEY)")
	fs.DurationVar(&cfg.PlayerTimeout, "player-timeout", 10*time.Minute, "offline-player grace period; not read by the engine, whose disconnect grace period is a fixed 30s (env: PARTYQUIZ_PLAYER_TIMEOUT)")
	fs.DurationVar(&cfg.SessionTimeout, "session-timeout", 60*time.Minute, "reaper cadence: every half of this duration, ENDED/ARCHIVED sessions are torn down; 0 disables the reaper (env: PARTYQUIZ_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", 15*time.Second, "expected client heartbeat cadence (env: PARTYQUIZ_HEARTBEAT_INTERVAL)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string for the durable store (env: PARTYQUIZ_DATABASE_URL)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "optional redis address for the leaderboard rank cache (env: PARTYQUIZ_REDIS_ADDR)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display additional output (env: PARTYQUIZ_VERBOSE)")
	fs.BoolVar(&cfg.Profile, "profile", false, "register net/http/pprof handlers (env: PARTYQUIZ_PROFILE)")
	fs.BoolVar(&cfg.Metrics, "metrics", false, "expose a /metrics endpoint (env: PARTYQUIZ_METRICS)")
	fs.BoolVarP(&cfg.Version, "version", "V", false, "display version and exit (env: PARTYQUIZ_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partyquiz v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
