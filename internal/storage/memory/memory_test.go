package memory

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleethub/hublink/pkg/core"
)

func record(cargo string, income float64) core.DeliveryRecord {
	return core.DeliveryRecord{
		RecordedAt: time.Now(),
		Game:       core.GameETS2,
		Cargo:      cargo,
		Income:     income,
	}
}

func TestSaveAndRecent(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Init())

	for _, c := range []string{"flour", "logs", "fuel"} {
		r := record(c, 1000)
		require.NoError(t, s.SaveDelivery(&r))
	}

	recent, err := s.RecentDeliveries(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "fuel", recent[0].Cargo)
	assert.Equal(t, "logs", recent[1].Cargo)
}

func TestMaxRecordsTrimsOldest(t *testing.T) {
	s := New(Config{MaxRecords: 2})
	for _, c := range []string{"a", "b", "c"} {
		r := record(c, 1)
		require.NoError(t, s.SaveDelivery(&r))
	}

	recent, err := s.RecentDeliveries(0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Cargo)
	assert.Equal(t, "b", recent[1].Cargo)
}

func TestExportEmptyIsJSONArray(t *testing.T) {
	s := New(Config{})

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))

	var records []core.DeliveryRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	assert.Empty(t, records)
	assert.NotContains(t, buf.String(), "null")
}

func TestCloseExportsGzip(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{OutputDir: dir, CompressOutput: true})
	require.NoError(t, s.Init())

	r := record("machinery", 2500)
	require.NoError(t, s.SaveDelivery(&r))
	require.NoError(t, s.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "deliveries_*.json.gz"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	var records []core.DeliveryRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "machinery", records[0].Cargo)
	assert.Equal(t, 2500.0, records[0].Income)
}
