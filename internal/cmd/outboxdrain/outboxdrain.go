// Package outboxdrain runs a single outbox delivery pass and exits. It is
// the operational escape hatch when the long-running relay is down and
// pending rows need to be pushed out by hand.
package outboxdrain

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/redis/rueidis"

	"github.com/emberline/catalogstore/internal/platform/config"
	outboxrelay "github.com/emberline/catalogstore/internal/relay"
	"github.com/emberline/catalogstore/internal/storage/sqlite"
)

// Config holds drain command configuration.
type Config struct {
	DBPath      string `env:"CATALOGSTORE_RELAY_DB_PATH" envDefault:"data/catalog.db"`
	RedisAddr   string `env:"CATALOGSTORE_RELAY_REDIS_ADDR" envDefault:"localhost:6379"`
	Stream      string `env:"CATALOGSTORE_RELAY_STREAM" envDefault:"catalog-events"`
	BatchSize   int    `env:"CATALOGSTORE_RELAY_BATCH_SIZE" envDefault:"100"`
	MaxAttempts int    `env:"CATALOGSTORE_RELAY_MAX_ATTEMPTS" envDefault:"5"`
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
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum pending rows fetched per pass")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Publish attempts before a row is marked failed")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run delivers one batch of pending outbox rows and reports how many went out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
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

	delivered, err := r.ProcessPending(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "delivered %d outbox events to %s\n", delivered, cfg.Stream)
	return nil
}
