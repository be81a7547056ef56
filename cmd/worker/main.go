package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/accesstrails/trailsync/internal/config"
	"github.com/accesstrails/trailsync/internal/jobs"
	"github.com/accesstrails/trailsync/remote"
	"github.com/accesstrails/trailsync/store/sqlite"
	"github.com/accesstrails/trailsync/syncqueue"
)

// The worker is the deferred-sync half of the system: drain registrations
// made by the api process land here through the broker, so pending items
// get delivered even when the api process that queued them is gone.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the worker")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	local, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("local store error: %v", err)
	}
	defer func() { _ = local.Close() }()

	source := remote.NewStore(remote.NewPostgresSource(pool), local)
	queue := syncqueue.New(local, source, nil, logger)

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			"sync":    10, // higher priority
			"default": 5,
		},
	})
	mux := asynq.NewServeMux()

	mux.HandleFunc(jobs.TaskDrainQueue, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.DrainQueuePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad drain payload")
			return err
		}
		start := time.Now()
		res, err := queue.Drain(ctx, p.Category)
		if err != nil {
			logger.Warn().Str("category", p.Category).Err(err).Msg("deferred drain failed")
			return err // retryable per asynq policy
		}
		logger.Info().Str("category", p.Category).
			Int("delivered", res.Delivered).Int("remaining", res.Remaining).
			Dur("duration", time.Since(start)).Msg("deferred drain done")
		if res.Remaining > 0 {
			// items are still failing; let asynq retry the registration
			return fmt.Errorf("%d items remaining in %s", res.Remaining, p.Category)
		}
		return nil
	})

	logger.Info().Msg("worker running")
	log.Fatal(srv.Run(mux))
}
