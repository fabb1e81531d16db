package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/ohub/outage-aggregator/internal/config"
	"github.com/ohub/outage-aggregator/internal/logging"
	"github.com/ohub/outage-aggregator/internal/repository"
)

// purge-provider drops all snapshot history for one provider. Run it
// after an adapter schema change so the next poll starts clean.
func main() {
	provider := flag.String("provider", "", "provider name to purge (required)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	if *provider == "" {
		logging.Fatalf("missing required -provider flag")
	}

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	removed, err := db.PurgeProvider(context.Background(), *provider)
	if err != nil {
		logging.Fatalf("Failed to purge provider %q: %v", *provider, err)
	}

	slog.Info("provider purged", "provider", *provider, "rows_removed", removed)
}
