// Package memory stores delivery records in memory with optional gzipped
// JSON export. It is the default store and the one tests run against.
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fleethub/hublink/pkg/core"
)

// Config holds the in-memory store settings.
type Config struct {
	OutputDir      string
	CompressOutput bool
	MaxRecords     int // oldest records are discarded beyond this; 0 = unlimited
}

// Store keeps delivery records in memory, newest last.
type Store struct {
	cfg Config

	mu      sync.RWMutex
	records []core.DeliveryRecord
}

// New creates a new memory store.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Init initializes the store.
func (s *Store) Init() error {
	if s.cfg.OutputDir != "" {
		if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	return nil
}

// Close exports the collected records if an output directory is configured.
func (s *Store) Close() error {
	if s.cfg.OutputDir == "" {
		return nil
	}
	name := fmt.Sprintf("deliveries_%s.json", time.Now().Format("20060102_150405"))
	if s.cfg.CompressOutput {
		name += ".gz"
	}
	return s.ExportFile(filepath.Join(s.cfg.OutputDir, name))
}

// SaveDelivery appends one record.
func (s *Store) SaveDelivery(r *core.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *r)
	if s.cfg.MaxRecords > 0 && len(s.records) > s.cfg.MaxRecords {
		s.records = s.records[len(s.records)-s.cfg.MaxRecords:]
	}
	return nil
}

// SaveDeliveries appends a batch of records.
func (s *Store) SaveDeliveries(rs []core.DeliveryRecord) error {
	for i := range rs {
		if err := s.SaveDelivery(&rs[i]); err != nil {
			return err
		}
	}
	return nil
}

// RecentDeliveries returns up to limit records, newest first.
func (s *Store) RecentDeliveries(limit int) ([]core.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]core.DeliveryRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// ExportFile writes all records as JSON (gzipped when configured) to path.
func (s *Store) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if s.cfg.CompressOutput {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	return s.Export(w)
}

// Export writes all records as a JSON array to w, oldest first.
func (s *Store) Export(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records
	if records == nil {
		records = []core.DeliveryRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding deliveries: %w", err)
	}
	return nil
}
