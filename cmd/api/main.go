// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/accesstrails/trailsync/cache"
	"github.com/accesstrails/trailsync/fetch"
	"github.com/accesstrails/trailsync/internal/config"
	"github.com/accesstrails/trailsync/internal/connectivity"
	"github.com/accesstrails/trailsync/internal/deferred"
	"github.com/accesstrails/trailsync/internal/http/routes"
	"github.com/accesstrails/trailsync/remote"
	"github.com/accesstrails/trailsync/retry"
	"github.com/accesstrails/trailsync/store/sqlite"
	"github.com/accesstrails/trailsync/syncqueue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Info().Str("port", cfg.Port).Msg("starting trailsync api")

	// Hosted store
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	// Local persistent store: sync queue items + read replica
	local, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("local store error: %v", err)
	}
	defer func() { _ = local.Close() }()

	source := remote.NewStore(remote.NewPostgresSource(pool), local)

	// Connectivity watcher
	conn := connectivity.New(cfg.Probe.URL, cfg.Probe.Interval, logger)
	conn.Start(context.Background())
	defer conn.Stop()

	// Read path: retry policy + single-flight cache + fetcher
	policy := retry.Policy{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BaseDelay:   cfg.Fetch.BaseDelay,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
	results := cache.New()
	fetcher := fetch.New(results, policy, logger)

	// Write path: durable queue + background-sync coordinator
	queue := syncqueue.New(local, source, conn.Online, logger)
	var facility syncqueue.Deferred = deferred.Noop{}
	if cfg.HasDeferredSync() {
		af := deferred.NewAsynq(cfg.RedisAddr)
		defer func() { _ = af.Close() }()
		facility = af
	}
	coord := syncqueue.NewCoordinator(queue, facility, conn, logger)
	coord.Start(context.Background())
	defer coord.Close()

	s := routes.New(routes.ServerOptions{
		Fetcher: fetcher,
		Queue:   queue,
		Coord:   coord,
		Source:  source,
		Conn:    conn,
		Timeout: cfg.Fetch.Timeout,
		Log:     logger,
	})
	h := hlog.NewHandler(logger)(s.Router)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: h}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
