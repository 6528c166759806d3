// Command pgstatus connects to a PostgreSQL database through the provider,
// leases one connection (which also terminates long-idle backends) and prints
// the pool status.
//
// Usage:
//
//	pgstatus -config pgstatus.yaml [-plain]
//
// Any PGSTATUS_* environment variable overrides the file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hsharp/lib-dbprovider/internal/config"
	"github.com/hsharp/lib-dbprovider/provider/log"
	"github.com/hsharp/lib-dbprovider/provider/postgres"
	"github.com/hsharp/lib-dbprovider/provider/zap"
)

const syncTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pgstatus:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	plain := flag.Bool("plain", false, "write plain text logs to stderr instead of JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, *plain)
	if err != nil {
		return err
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		_ = logger.Sync(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := postgres.New(postgres.WithLogger(logger))

	defer func() {
		if err := db.Close(); err != nil {
			logger.Log(context.Background(), log.LevelWarn, "failed to close database", log.Err(err))
		}
	}()

	if err := db.Setup(cfg.Pool); err != nil {
		return err
	}

	if err := db.Connect(ctx, cfg.Database); err != nil {
		return err
	}

	conn, err := db.AcquireConnection(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	}

	pingErr := conn.Ping(ctx)
	conn.Release()

	if pingErr != nil {
		return fmt.Errorf("ping failed: %w", pingErr)
	}

	fmt.Println(db.String())

	return nil
}

//nolint:ireturn
func newLogger(cfg config.Log, plain bool) (log.Logger, error) {
	if plain {
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}

		return log.NewGoLogger(os.Stderr, level), nil
	}

	return zap.New(zap.Config{
		Environment: zap.Environment(cfg.Environment),
		Level:       cfg.Level,
	})
}
