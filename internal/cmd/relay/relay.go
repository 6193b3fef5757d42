// Package relay parses relay command flags and launches the outbox relay.
package relay

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/redis/rueidis"

	"github.com/emberline/catalogstore/internal/platform/config"
	platformotel "github.com/emberline/catalogstore/internal/platform/otel"
	outboxrelay "github.com/emberline/catalogstore/internal/relay"
	"github.com/emberline/catalogstore/internal/storage/sqlite"
)

// Config holds relay command configuration.
type Config struct {
	DBPath       string        `env:"CATALOGSTORE_RELAY_DB_PATH" envDefault:"data/catalog.db"`
	RedisAddr    string        `env:"CATALOGSTORE_RELAY_REDIS_ADDR" envDefault:"localhost:6379"`
	Stream       string        `env:"CATALOGSTORE_RELAY_STREAM" envDefault:"catalog-events"`
	BatchSize    int           `env:"CATALOGSTORE_RELAY_BATCH_SIZE" envDefault:"100"`
	MaxAttempts  int           `env:"CATALOGSTORE_RELAY_MAX_ATTEMPTS" envDefault:"5"`
	PollInterval time.Duration `env:"CATALOGSTORE_RELAY_POLL_INTERVAL" envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The catalog SQLite database path")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "The Redis address events are published to")
	fs.StringVar(&cfg.Stream, "stream", cfg.Stream, "The Redis stream key for catalog events")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum pending rows fetched per poll")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Publish attempts before a row is marked failed")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Outbox poll interval")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the relay and blocks until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := platformotel.Setup(ctx, "catalogstore-relay")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer client.Close()

	publisher := outboxrelay.NewStreamPublisher(client, cfg.Stream)
	r := outboxrelay.New(store, publisher, cfg.BatchSize, cfg.MaxAttempts)

	log.Printf("relaying outbox events from %s to stream %s", cfg.DBPath, cfg.Stream)
	if err := r.Run(ctx, cfg.PollInterval); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
