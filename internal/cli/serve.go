package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/codeweaver-pro/auditrec/internal/capture"
	"github.com/codeweaver-pro/auditrec/internal/logger"
	"github.com/codeweaver-pro/auditrec/internal/relay"
	"github.com/codeweaver-pro/auditrec/internal/server"
	"github.com/codeweaver-pro/auditrec/internal/storage"
)

// Execute implements the go-flags Commander interface for ServeCommand.
// It wires store, recorder, relay and HTTP server together and blocks
// until the daemon shuts down.
func (c *ServeCommand) Execute(args []string) error {
	// A .env file lets dev setups override secrets without editing YAML.
	_ = godotenv.Load()

	cfg, err := resolveConfig(c.globals)
	if err != nil {
		return err
	}

	if c.Port > 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if tok := os.Getenv("AUDITREC_TOKEN"); tok != "" {
		cfg.Daemon.AuthToken = tok
	}
	if addr := os.Getenv("AUDITREC_REDIS_ADDR"); addr != "" {
		cfg.Relay.RedisAddr = addr
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedact(cfg.Logging.RedactText)

	path, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	if c.globals != nil && c.globals.DBPath != "" {
		path = c.globals.DBPath
	}

	store, db, err := openStoreAt(path, cfg.Storage.SQLiteJournalMode)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	ctx := context.Background()

	// Config denylist entries fold into the stored exclusion rules.
	if len(cfg.Capture.DenylistDomains) > 0 || len(cfg.Capture.DenylistRegex) > 0 {
		if err := store.AddExclusionRules(ctx, cfg.Capture.DenylistDomains, cfg.Capture.DenylistRegex); err != nil {
			return fmt.Errorf("apply denylist: %w", err)
		}
	}

	sinks := capture.Fanout{storage.NewSink(store)}

	if cfg.Relay.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Relay.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		pingErr := client.Ping(pingCtx).Err()
		cancel()
		if pingErr != nil {
			logger.Warn("relay disabled, redis unreachable", "addr", cfg.Relay.RedisAddr, "error", pingErr.Error())
			client.Close()
		} else {
			defer client.Close()
			sinks = append(sinks, relay.NewPublisher(client, cfg.Relay.Channel))
			logger.Info("relay enabled", "addr", cfg.Relay.RedisAddr, "channel", cfg.Relay.Channel)
		}
	}

	settle := time.Duration(cfg.Capture.SettleMS) * time.Millisecond
	recorder := capture.NewRecorder(sinks, settle)

	srv := server.NewServer(store, recorder, cfg)
	if err := srv.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	logger.Info("auditrec starting", "version", c.version, "database", path)
	return srv.Start()
}
