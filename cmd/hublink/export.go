package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/fleethub/hublink/internal/storage"
)

// runExport dumps recent delivery records from the configured store to a
// JSON file (gzipped when the path ends in .gz). An empty path writes
// deliveries_<timestamp>.json.gz in the working directory.
func runExport(outPath string) error {
	if outPath == "" {
		outPath = fmt.Sprintf("deliveries_%s.json.gz", time.Now().Format("20060102_150405"))
	}

	zlog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	store, err := storage.NewStore(zlog)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer store.Close()

	limit := viper.GetInt("storage.memory.maxRecords")
	if limit <= 0 {
		limit = 1000
	}
	records, err := store.RecentDeliveries(limit)
	if err != nil {
		return fmt.Errorf("reading deliveries: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if strings.HasSuffix(outPath, ".gz") {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		enc = json.NewEncoder(gz)
	}
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding deliveries: %w", err)
	}

	fmt.Fprintf(os.Stderr, "exported %d deliveries to %s\n", len(records), outPath)
	return nil
}
