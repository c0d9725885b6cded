// mock-ingest runs the extraction pipeline once against a pair of saved HTML
// files and prints the run summary as JSON. Useful for validating selector
// changes against captured pages without touching the live site.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/okarpenko/autoria-scraper/internal/config"
	"github.com/okarpenko/autoria-scraper/internal/coordinator"
	"github.com/okarpenko/autoria-scraper/internal/database"
	"github.com/okarpenko/autoria-scraper/internal/extractor"
	"github.com/okarpenko/autoria-scraper/internal/logger"
	"github.com/okarpenko/autoria-scraper/internal/storage"
)

func main() {
	var (
		listingPath = flag.String("listing", "", "path to the saved listing page HTML")
		detailPath  = flag.String("detail", "", "path to the saved detail page HTML")
		dbPath      = flag.String("db", "", "database path (defaults to DATABASE_PATH)")
	)
	flag.Parse()

	log := logger.New(os.Getenv("LOG_LEVEL"), true)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *listingPath == "" {
		*listingPath = cfg.MockListingFile
	}
	if *detailPath == "" {
		*detailPath = cfg.MockDetailFile
	}
	if *dbPath == "" {
		*dbPath = cfg.DatabasePath
	}

	db, err := database.Initialize(*dbPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	coord := coordinator.New(
		coordinator.Config{
			MaxPages:         1,
			MaxTicketsPerRun: cfg.MaxTicketsPerRun,
			Workers:          cfg.MaxConcurrentRequests,
		},
		nil, // ProcessMockPair supplies its own file fetcher
		extractor.New(cfg.BaseURL, log),
		db,
		storage.NewMemoryRunStore(10),
		nil,
		log,
	)

	summary, err := coord.ProcessMockPair(context.Background(), *listingPath, *detailPath)
	if err != nil {
		log.Fatal().Err(err).Msg("mock ingestion failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Fatal().Err(err).Msg("failed to encode summary")
	}
}
