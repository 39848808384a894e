package main

import (
	"context"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/multiplier-synth/multiplier-api/internal/access"
	"github.com/multiplier-synth/multiplier-api/internal/account"
	"github.com/multiplier-synth/multiplier-api/internal/auth"
	"github.com/multiplier-synth/multiplier-api/internal/config"
	"github.com/multiplier-synth/multiplier-api/internal/database"
	"github.com/multiplier-synth/multiplier-api/internal/logger"
	"github.com/multiplier-synth/multiplier-api/internal/membership"
	"github.com/multiplier-synth/multiplier-api/internal/records"
	"github.com/multiplier-synth/multiplier-api/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Connect to the configured database, bootstrap the schema when
autoMigrate is set, and serve the /multiplier-api/v1 routes until
SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("multiplier starting", "listen", cfg.ListenAddr, "db", cfg.Describe())

	// Root context cancelled on SIGINT or SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		log.Info("Schema bootstrapped")
	}

	accounts := account.NewStore(db)
	lookup, rdb := membershipLookup(cfg, accounts, log)
	if rdb != nil {
		defer rdb.Close()
	}
	classifier := access.NewClassifier(accounts, lookup, log)
	recs := records.New(db, records.Options{OwnedDeletesOnly: cfg.OwnedDeletesOnly})
	nonces := auth.NewNonceManager(cfg.NonceSecret, cfg.NonceTTL.Std())

	srv := server.New(cfg, log, db, accounts, recs, classifier, nonces)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	log.Info("multiplier stopped")
	return nil
}

// membershipLookup builds the optional Patreon lookup, cached in Redis
// when an address is configured. The lookup is nil when disabled; the
// Redis client is nil without a cache and must be closed by the caller.
func membershipLookup(cfg *config.Config, attrs membership.AttributeSource, log *logger.Logger) (membership.Lookup, *goredis.Client) {
	if !cfg.Patreon.Enabled {
		return nil, nil
	}
	client := membership.NewPatreonClient(cfg.Patreon.APIBase, cfg.Patreon.Timeout.Std(), attrs)
	if cfg.Patreon.RedisAddr == "" {
		log.Info("Membership lookup enabled", "apiBase", cfg.Patreon.APIBase)
		return client, nil
	}

	rdb := membership.NewRedisClient(cfg.Patreon.RedisAddr)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn("Membership cache unreachable, continuing without it until it recovers",
			"redis", cfg.Patreon.RedisAddr, "error", err)
	}
	log.Info("Membership lookup enabled", "apiBase", cfg.Patreon.APIBase, "redis", cfg.Patreon.RedisAddr)
	return membership.NewCached(client, rdb, cfg.Patreon.CacheTTL.Std(), log), rdb
}
