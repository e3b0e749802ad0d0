package storage

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/fleethub/hublink/internal/database"
	"github.com/fleethub/hublink/internal/storage/gormstore"
	"github.com/fleethub/hublink/internal/storage/memory"
)

// NewStore builds the configured store backend. Supported types are
// "memory", "sqlite" and "postgres".
func NewStore(log zerolog.Logger) (Store, error) {
	backend := viper.GetString("storage.type")

	switch backend {
	case "", "memory":
		return memory.New(memory.Config{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			MaxRecords:     viper.GetInt("storage.memory.maxRecords"),
		}), nil

	case "sqlite":
		path := viper.GetString("storage.sqlitePath")
		if path == "" {
			path = "hublink.db"
		}
		dbm := database.NewManager(log)
		if err := dbm.ConnectSqlite(path); err != nil {
			return nil, err
		}
		return gormstore.New(dbm, gormstore.Config{
			DumpInterval: viper.GetDuration("storage.dumpInterval"),
			DumpPath:     path,
		}), nil

	case "postgres":
		dbm := database.NewManager(log)
		if err := dbm.Connect(); err != nil {
			return nil, err
		}
		return gormstore.New(dbm, gormstore.Config{
			DumpInterval: viper.GetDuration("storage.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlitePath"),
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", backend)
	}
}

// ensure both backends satisfy Store
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*gormstore.Store)(nil)
)
