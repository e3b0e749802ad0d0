// Package gormstore implements the storage.Store interface on a gorm
// database (Postgres or SQLite via internal/database).
package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fleethub/hublink/internal/database"
	"github.com/fleethub/hublink/pkg/core"
)

// Delivery is the gorm row for one delivery record. Details keeps the full
// record as JSON so schema additions never lose data written by older
// builds.
type Delivery struct {
	ID         uint      `gorm:"primarykey"`
	RecordedAt time.Time `gorm:"index"`
	Game       string

	SourceCity         string
	SourceCompany      string
	DestinationCity    string
	DestinationCompany string

	Cargo            string
	CargoMassTons    float64
	CargoDamagePct   float64
	Income           float64
	IsSpecial        bool
	Market           string
	DistanceTraveled float64
	FuelConsumed     float64

	Details datatypes.JSON
}

// Store persists delivery records through gorm.
type Store struct {
	dbm *database.Manager
	db  *gorm.DB

	dumpInterval time.Duration
	stopChan     chan struct{}
}

// Config holds gorm store settings.
type Config struct {
	// DumpInterval controls how often an in-memory SQLite database is
	// vacuumed to disk. Zero disables dumping.
	DumpInterval time.Duration
	DumpPath     string
}

// New creates a store on an already-connected database manager.
func New(dbm *database.Manager, cfg Config) *Store {
	s := &Store{
		dbm:          dbm,
		db:           dbm.DB,
		dumpInterval: cfg.DumpInterval,
		stopChan:     make(chan struct{}),
	}
	if cfg.DumpPath != "" {
		s.dbm.SqliteFilePath = cfg.DumpPath
	}
	return s
}

// Init migrates the schema and starts the dump loop for in-memory SQLite.
func (s *Store) Init() error {
	if err := s.db.AutoMigrate(&Delivery{}); err != nil {
		return fmt.Errorf("migrating delivery schema: %w", err)
	}

	if s.dbm.IsLocal && s.dbm.SqliteFilePath != "" && s.dumpInterval > 0 {
		go s.dumpLoop()
	}
	return nil
}

// Close stops the dump loop and performs a final dump when applicable.
func (s *Store) Close() error {
	close(s.stopChan)
	if s.dbm.IsLocal && s.dbm.SqliteFilePath != "" {
		return s.dbm.DumpMemoryToDisk(s.dbm.SqliteFilePath)
	}
	return nil
}

// SaveDelivery inserts one record.
func (s *Store) SaveDelivery(r *core.DeliveryRecord) error {
	row, err := toRow(r)
	if err != nil {
		return err
	}
	if err := s.db.Create(row).Error; err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// SaveDeliveries inserts a batch in one statement.
func (s *Store) SaveDeliveries(rs []core.DeliveryRecord) error {
	if len(rs) == 0 {
		return nil
	}
	rows := make([]Delivery, 0, len(rs))
	for i := range rs {
		row, err := toRow(&rs[i])
		if err != nil {
			return err
		}
		rows = append(rows, *row)
	}
	if err := s.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("inserting deliveries: %w", err)
	}
	return nil
}

// RecentDeliveries returns up to limit records, newest first.
func (s *Store) RecentDeliveries(limit int) ([]core.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Delivery
	err := s.db.Model(&Delivery{}).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}

	out := make([]core.DeliveryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func toRow(r *core.DeliveryRecord) (*Delivery, error) {
	details, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshalling delivery details: %w", err)
	}
	return &Delivery{
		RecordedAt:         r.RecordedAt,
		Game:               string(r.Game),
		SourceCity:         r.SourceCity,
		SourceCompany:      r.SourceCompany,
		DestinationCity:    r.DestinationCity,
		DestinationCompany: r.DestinationCompany,
		Cargo:              r.Cargo,
		CargoMassTons:      r.CargoMassTons,
		CargoDamagePct:     r.CargoDamagePct,
		Income:             r.Income,
		IsSpecial:          r.IsSpecial,
		Market:             r.Market,
		DistanceTraveled:   r.DistanceTraveled,
		FuelConsumed:       r.FuelConsumed,
		Details:            datatypes.JSON(details),
	}, nil
}

func fromRow(row Delivery) core.DeliveryRecord {
	return core.DeliveryRecord{
		RecordedAt:         row.RecordedAt,
		Game:               core.GameID(row.Game),
		SourceCity:         row.SourceCity,
		SourceCompany:      row.SourceCompany,
		DestinationCity:    row.DestinationCity,
		DestinationCompany: row.DestinationCompany,
		Cargo:              row.Cargo,
		CargoMassTons:      row.CargoMassTons,
		CargoDamagePct:     row.CargoDamagePct,
		Income:             row.Income,
		IsSpecial:          row.IsSpecial,
		Market:             row.Market,
		DistanceTraveled:   row.DistanceTraveled,
		FuelConsumed:       row.FuelConsumed,
	}
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via
// VACUUM INTO. VACUUM INTO is a point-in-time snapshot, so no pause is
// needed.
func (s *Store) dumpLoop() {
	ticker := time.NewTicker(s.dumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.dbm.DumpMemoryToDisk(s.dbm.SqliteFilePath); err != nil {
				s.dbm.Logger.Error().Err(err).Msg("Error dumping deliveries to disk")
			}
		}
	}
}
