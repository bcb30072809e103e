// cmd/registry/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"libraledger/internal/audit"
	"libraledger/internal/circulation"
	"libraledger/internal/config"
	"libraledger/internal/journal"
	"libraledger/internal/logger"
	"libraledger/internal/registry"
	"libraledger/internal/server"
	"libraledger/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to ./config.yaml when present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log, cfg.App)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("registry stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	j, health, closeJournal, err := openJournal(ctx, cfg.Journal, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	svc := registry.NewService(
		registry.WithJournal(j),
		registry.WithLogger(log),
		registry.WithPolicy(circulation.Policy{
			LoanPeriod: cfg.Registry.LoanPeriod,
			DailyFee:   cfg.Registry.DailyFee,
		}),
		registry.WithLowStockThreshold(cfg.Registry.LowStockThreshold),
		registry.WithTopLimit(cfg.Registry.TopLimit),
	)

	auditor := audit.NewEngine(audit.WithLogger(log))
	auditor.Register(audit.DefaultChecks(svc, j)...)

	router := server.NewRouter(log, server.Options{
		CORSOrigins:   cfg.Server.CORSOrigins,
		RateLimit:     cfg.Server.RateLimit.Enabled,
		RatePerSecond: cfg.Server.RateLimit.Rate,
		RateBurst:     cfg.Server.RateLimit.Burst,
		HealthDetails: health,
	}, registry.NewHandler(svc, auditor))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("journal", cfg.Journal.Driver).
			Msg("registry listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig, log zerolog.Logger) (journal.Journal, func() map[string]string, func(), error) {
	switch cfg.Driver {
	case "postgres":
		db, err := sqlx.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open journal database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("ping journal database: %w", err)
		}
		pg := journal.NewPostgres(db, journal.WithBreaker(cfg.BreakerTrips, cfg.BreakerTimeout))
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		log.Info().Msg("postgres journal ready")
		health := func() map[string]string {
			return map[string]string{"journal": "postgres", "journal_breaker": pg.BreakerState()}
		}
		closer := func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("close journal database")
			}
		}
		return pg, health, closer, nil
	default:
		mem := journal.NewMemory()
		health := func() map[string]string {
			return map[string]string{"journal": "memory", "journal_events": fmt.Sprint(mem.Len())}
		}
		return mem, health, func() {}, nil
	}
}
