package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleethub/hublink/internal/connection"
	"github.com/fleethub/hublink/internal/dispatcher"
	"github.com/fleethub/hublink/internal/history"
	"github.com/fleethub/hublink/internal/job"
	"github.com/fleethub/hublink/internal/logging"
	"github.com/fleethub/hublink/internal/monitor"
	"github.com/fleethub/hublink/internal/parser"
	"github.com/fleethub/hublink/internal/storage/memory"
	"github.com/fleethub/hublink/internal/worker"
	"github.com/fleethub/hublink/pkg/core"
)

// newControlFixture wires the globals the control handlers read and returns a
// test server over the control mux plus the shared event bus.
func newControlFixture(t *testing.T) (*httptest.Server, *dispatcher.Dispatcher) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	bus, err := dispatcher.New(nil)
	require.NoError(t, err)

	connManager = connection.NewManager(connection.DefaultConfig(), parser.New(logger), bus, logger)
	workerManager = worker.NewManager(worker.Dependencies{
		Store:  memory.New(memory.Config{}),
		Logger: logger,
	}, 100, time.Minute)
	monitorService = monitor.NewService(monitor.Dependencies{
		Connection:    connManager,
		WorkerManager: workerManager,
		LogManager:    logging.NewSlogManager(),
		StatusDir:     t.TempDir(),
	})

	tracker := job.NewTracker(bus, logger)
	hist := history.NewBuffer(10)
	hist.Subscribe(bus)

	srv := httptest.NewServer(controlMux(tracker, hist))
	t.Cleanup(srv.Close)
	return srv, bus
}

func jobSnapshot(odometer, fuel float64, j *core.Job) core.TelemetrySnapshot {
	return core.TelemetrySnapshot{
		Session: core.Session{Connected: true, Game: core.GameETS2},
		Vehicle: core.Vehicle{Odometer: odometer, Fuel: fuel, Speed: 80},
		Job:     j,
	}
}

func TestControl_Status(t *testing.T) {
	srv, _ := newControlFixture(t)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status monitor.ProgramStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "disconnected", status.ConnectionState)
	assert.False(t, status.JobActive)
	assert.Zero(t, status.PendingDeliveries)
}

func TestControl_Snapshot(t *testing.T) {
	srv, _ := newControlFixture(t)

	resp, err := http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap core.TelemetrySnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.False(t, snap.Session.Connected)
	assert.Nil(t, snap.Job)
}

func TestControl_History(t *testing.T) {
	srv, bus := newControlFixture(t)

	bus.Publish(dispatcher.TopicSnapshot, jobSnapshot(1000, 300, nil))

	resp, err := http.Get(srv.URL + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var samples []history.Sample
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&samples))
	require.Len(t, samples, 1)
	assert.Equal(t, 80.0, samples[0].Speed)
}

func TestControl_PrepareWithoutJob(t *testing.T) {
	srv, _ := newControlFixture(t)

	resp, err := http.Post(srv.URL+"/deliveries/prepare", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestControl_PrepareWithActiveJob(t *testing.T) {
	srv, bus := newControlFixture(t)

	j := &core.Job{SourceCity: "Calais", DestinationCity: "Duisburg", Cargo: "Logs", Income: 5000}
	bus.Publish(dispatcher.TopicSnapshot, jobSnapshot(1000, 300, j))
	bus.Publish(dispatcher.TopicSnapshot, jobSnapshot(1450, 250, j))

	resp, err := http.Post(srv.URL+"/deliveries/prepare", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var record core.DeliveryRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, 450.0, record.DistanceTraveled)
	assert.Equal(t, 50.0, record.FuelConsumed)
	assert.Equal(t, "Calais", record.SourceCity)
	assert.Equal(t, "Duisburg", record.DestinationCity)
}
