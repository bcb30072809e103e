// cmd/audit/main.go
package main

import (
	"context"
	"flag"
	"os"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"libraledger/internal/audit"
	"libraledger/internal/clients"
	"libraledger/internal/journal"
)

func main() {
	registryURL := flag.String("registry", "http://localhost:8080", "base URL of a running registry")
	databaseURL := flag.String("journal-db", "", "optional postgres journal to replay for expected stock")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := clients.NewRegistryClient(*registryURL, nil)
	report, err := client.Audit(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("registry", *registryURL).Msg("audit request failed")
	}
	printReport(log, report)

	if *databaseURL != "" {
		if err := replay(ctx, log, *databaseURL); err != nil {
			log.Fatal().Err(err).Msg("journal replay failed")
		}
	}

	if !report.Passed {
		os.Exit(1)
	}
}

func printReport(log zerolog.Logger, report *audit.Report) {
	for _, r := range report.Results {
		event := log.Info()
		if !r.Passed {
			event = log.Error()
		}
		event.
			Str("check", r.Name).
			Str("operator", r.Operator).
			Float64("expected", r.Expected).
			Float64("actual", r.Actual).
			Str("error", r.Error).
			Msg(r.Hypothesis)
	}
	log.Info().
		Bool("passed", report.Passed).
		Int("violations", len(report.Violations)).
		Dur("duration", report.Duration).
		Msg("audit finished")
}

func replay(ctx context.Context, log zerolog.Logger, databaseURL string) error {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	stock, err := audit.ReplayStock(ctx, journal.NewPostgres(db))
	if err != nil {
		return err
	}

	codes := make([]string, 0, len(stock))
	for code := range stock {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		log.Info().Str("code", code).Int("expected_stock", stock[code]).Msg("journal replay")
	}
	return nil
}
