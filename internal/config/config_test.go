package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hublink.cfg.json"), []byte(content), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"telemetry": { "websocketUrl": "ws://10.0.0.5:25555", "mode": "polling" },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "ws://10.0.0.5:25555", viper.GetString("telemetry.websocketUrl"))
	assert.Equal(t, "polling", viper.GetString("telemetry.mode"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./hublinklogs", viper.GetString("logsDir"))
	assert.Equal(t, "ws://localhost:25555", viper.GetString("telemetry.websocketUrl"))
	assert.Equal(t, "http://localhost:25555/api/ets2/telemetry", viper.GetString("telemetry.apiUrl"))
	assert.Equal(t, "auto", viper.GetString("telemetry.mode"))
	assert.Equal(t, 100, viper.GetInt("telemetry.pollIntervalMs"))
	assert.Equal(t, true, viper.GetBool("telemetry.autoReconnect"))
	assert.Equal(t, 3000, viper.GetInt("telemetry.reconnectDelayMs"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, "", viper.GetString("api.apiKey"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "hublink", viper.GetString("db.database"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./deliveries", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, true, viper.GetBool("storage.memory.compressOutput"))
	assert.Equal(t, "3m", viper.GetString("storage.dumpInterval"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "hublink", viper.GetString("otel.serviceName"))
	assert.Equal(t, "5s", viper.GetString("otel.batchTimeout"))
	assert.Equal(t, true, viper.GetBool("otel.insecure"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetTelemetryConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{}`)
	require.NoError(t, Load(dir))

	tc := GetTelemetryConfig()
	assert.Equal(t, "ws://localhost:25555", tc.WebsocketURL)
	assert.Equal(t, "http://localhost:25555/api/ets2/telemetry", tc.APIURL)
	assert.Equal(t, "auto", tc.Mode)
	assert.Equal(t, 100*time.Millisecond, tc.PollInterval)
	assert.Equal(t, true, tc.AutoReconnect)
	assert.Equal(t, 3*time.Second, tc.ReconnectDelay)
}

func TestGetTelemetryConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"telemetry": {
			"websocketUrl": "ws://sim:25555",
			"apiUrl": "http://sim:25555/api/ets2/telemetry",
			"mode": "streaming",
			"pollIntervalMs": 250,
			"autoReconnect": false,
			"reconnectDelayMs": 500
		}
	}`)
	require.NoError(t, Load(dir))

	tc := GetTelemetryConfig()
	assert.Equal(t, "ws://sim:25555", tc.WebsocketURL)
	assert.Equal(t, "streaming", tc.Mode)
	assert.Equal(t, 250*time.Millisecond, tc.PollInterval)
	assert.Equal(t, false, tc.AutoReconnect)
	assert.Equal(t, 500*time.Millisecond, tc.ReconnectDelay)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "memory", sc.Type)
	assert.Equal(t, "./deliveries", sc.Memory.OutputDir)
	assert.Equal(t, true, sc.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, sc.DumpInterval)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"sqlitePath": "/tmp/hublink.db",
			"dumpInterval": "10m",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false }
		}
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/hublink.db", sc.SqlitePath)
	assert.Equal(t, 10*time.Minute, sc.DumpInterval)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{}`)
	require.NoError(t, Load(dir))

	oc := GetOTelConfig()
	assert.Equal(t, false, oc.Enabled)
	assert.Equal(t, "hublink", oc.ServiceName)
	assert.Equal(t, 5*time.Second, oc.BatchTimeout)
	assert.Equal(t, "", oc.Endpoint)
	assert.Equal(t, true, oc.Insecure)
}
