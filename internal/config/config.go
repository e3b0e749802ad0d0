package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// TelemetryConfig holds telemetry feed connection settings.
type TelemetryConfig struct {
	WebsocketURL   string        `json:"websocketUrl" mapstructure:"websocketUrl"`
	APIURL         string        `json:"apiUrl" mapstructure:"apiUrl"`
	Mode           string        `json:"mode" mapstructure:"mode"`
	PollInterval   time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
	AutoReconnect  bool          `json:"autoReconnect" mapstructure:"autoReconnect"`
	ReconnectDelay time.Duration `json:"reconnectDelay" mapstructure:"reconnectDelay"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	MaxRecords     int    `json:"maxRecords" mapstructure:"maxRecords"`
}

// StorageConfig holds the delivery store settings.
type StorageConfig struct {
	Type         string        `json:"type" mapstructure:"type"`
	SqlitePath   string        `json:"sqlitePath" mapstructure:"sqlitePath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	Memory       MemoryConfig  `json:"memory" mapstructure:"memory"`
}

// OTelConfig holds OpenTelemetry export settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./hublinklogs")

	viper.SetDefault("telemetry.websocketUrl", "ws://localhost:25555")
	viper.SetDefault("telemetry.apiUrl", "http://localhost:25555/api/ets2/telemetry")
	viper.SetDefault("telemetry.mode", "auto")
	viper.SetDefault("telemetry.pollIntervalMs", 100)
	viper.SetDefault("telemetry.autoReconnect", true)
	viper.SetDefault("telemetry.reconnectDelayMs", 3000)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "hublink")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlitePath", "")
	viper.SetDefault("storage.dumpInterval", "3m")
	viper.SetDefault("storage.memory.outputDir", "./deliveries")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.maxRecords", 0)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "fleet-metrics")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "hublink")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName("hublink.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetTelemetryConfig returns the telemetry connection settings.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		WebsocketURL:   viper.GetString("telemetry.websocketUrl"),
		APIURL:         viper.GetString("telemetry.apiUrl"),
		Mode:           viper.GetString("telemetry.mode"),
		PollInterval:   time.Duration(viper.GetInt("telemetry.pollIntervalMs")) * time.Millisecond,
		AutoReconnect:  viper.GetBool("telemetry.autoReconnect"),
		ReconnectDelay: time.Duration(viper.GetInt("telemetry.reconnectDelayMs")) * time.Millisecond,
	}
}

// GetStorageConfig returns the delivery store settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:         viper.GetString("storage.type"),
		SqlitePath:   viper.GetString("storage.sqlitePath"),
		DumpInterval: viper.GetDuration("storage.dumpInterval"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			MaxRecords:     viper.GetInt("storage.memory.maxRecords"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry export settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
