package connection

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleethub/hublink/internal/dispatcher"
	"github.com/fleethub/hublink/internal/parser"
	"github.com/fleethub/hublink/pkg/core"
)

type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(msg string, kv ...any) { a.l.Debug(msg, kv...) }
func (a slogAdapter) Info(msg string, kv ...any)  { a.l.Info(msg, kv...) }
func (a slogAdapter) Error(msg string, kv ...any) { a.l.Error(msg, kv...) }

// recorder collects published snapshots and state changes.
type recorder struct {
	mu        sync.Mutex
	snapshots []core.TelemetrySnapshot
	statuses  []Status
}

func (r *recorder) attach(bus *dispatcher.Dispatcher) {
	bus.Subscribe(dispatcher.TopicSnapshot, func(e dispatcher.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.snapshots = append(r.snapshots, e.Payload.(core.TelemetrySnapshot))
		return nil
	})
	bus.Subscribe(dispatcher.TopicStateChange, func(e dispatcher.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.statuses = append(r.statuses, e.Payload.(Status))
		return nil
	})
}

func (r *recorder) snapshotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recorder) lastSnapshot() core.TelemetrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

func (r *recorder) sawState(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.statuses {
		if st.State == s {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *recorder) {
	t.Helper()
	logger := slog.Default()
	bus, err := dispatcher.New(slogAdapter{logger})
	require.NoError(t, err)

	rec := &recorder{}
	rec.attach(bus)

	m := NewManager(cfg, parser.New(logger), bus, logger)
	t.Cleanup(m.Disconnect)
	return m, rec
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func telemetryAPIServer(t *testing.T, body string, status *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != nil && status.Load() != http.StatusOK {
			w.WriteHeader(int(status.Load()))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPolling_PublishesSnapshots(t *testing.T) {
	srv := telemetryAPIServer(t, `{"game": {"connected": true, "gameName": "ETS2"}, "truck": {"speed": 10}}`, nil)

	cfg := DefaultConfig()
	cfg.Mode = ModePolling
	cfg.APIEndpoint = srv.URL
	cfg.PollInterval = 10 * time.Millisecond
	m, rec := newTestManager(t, cfg)

	m.Connect()

	waitFor(t, 2*time.Second, func() bool { return rec.snapshotCount() >= 2 })
	assert.Equal(t, StateConnected, m.State())
	assert.True(t, m.IsSessionRunning())
	assert.InDelta(t, 36.0, m.Snapshot().Vehicle.Speed, 1e-9)
	assert.Equal(t, core.GameETS2, m.Snapshot().Session.Game)
}

func TestPolling_FailureMarksDisconnectedThenRecovers(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := telemetryAPIServer(t, `{"game": {"connected": true}}`, &status)

	cfg := DefaultConfig()
	cfg.Mode = ModePolling
	cfg.APIEndpoint = srv.URL
	cfg.PollInterval = 10 * time.Millisecond
	m, rec := newTestManager(t, cfg)

	m.Connect()

	waitFor(t, 2*time.Second, func() bool { return m.State() == StateDisconnected })
	assert.Equal(t, "failed to connect to the telemetry API", m.Status().LastError)

	// The loop keeps polling; once the endpoint heals it reconnects.
	status.Store(http.StatusOK)
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateConnected })
	assert.Empty(t, m.Status().LastError)
	waitFor(t, 2*time.Second, func() bool { return rec.snapshotCount() >= 1 })
}

func TestStreaming_ReceivesMessages(t *testing.T) {
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for i := 1; i <= 3; i++ {
			msg := fmt.Sprintf(`{"game": {"connected": true}, "truck": {"odometer": %d00}}`, i)
			if err := c.WriteMessage(ws.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Mode = ModeStreaming
	cfg.WebsocketURL = wsURL(srv)
	cfg.AutoReconnect = false
	m, rec := newTestManager(t, cfg)

	m.Connect()

	waitFor(t, 2*time.Second, func() bool { return rec.snapshotCount() >= 3 })
	assert.Equal(t, StateConnected, m.State())
	assert.InDelta(t, 300, rec.lastSnapshot().Vehicle.Odometer, 1e-9)
}

func TestConnect_Idempotent(t *testing.T) {
	var dials atomic.Int32
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Mode = ModeStreaming
	cfg.WebsocketURL = wsURL(srv)
	cfg.AutoReconnect = false
	m, _ := newTestManager(t, cfg)

	m.Connect()
	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateConnected })
	m.Connect()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
}

func TestConnect_WhileReconnectingKeepsSingleTransport(t *testing.T) {
	var dials atomic.Int32
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if n == 1 {
			// Drop the first connection right away to force a reconnect.
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Mode = ModeStreaming
	cfg.WebsocketURL = wsURL(srv)
	cfg.ReconnectDelay = 100 * time.Millisecond
	m, rec := newTestManager(t, cfg)

	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return rec.sawState(StateReconnecting) })

	// Manual Connect while the reconnect timer is armed must take over: the
	// timer may not fire a concurrent dial against the new connection.
	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateConnected })

	time.Sleep(3 * cfg.ReconnectDelay)
	assert.Equal(t, int32(2), dials.Load(), "exactly one reconnect dial may happen")
	assert.Equal(t, StateConnected, m.State())
}

func TestAutoMode_FallsBackToPolling(t *testing.T) {
	srv := telemetryAPIServer(t, `{"game": {"connected": true}}`, nil)

	cfg := DefaultConfig()
	cfg.Mode = ModeAuto
	cfg.WebsocketURL = "ws://127.0.0.1:1" // nothing listens here
	cfg.APIEndpoint = srv.URL
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ReconnectDelay = 20 * time.Millisecond
	m, rec := newTestManager(t, cfg)

	m.Connect()

	waitFor(t, 2*time.Second, func() bool { return m.State() == StateConnected })
	assert.True(t, rec.sawState(StateReconnecting))
	waitFor(t, 2*time.Second, func() bool { return rec.snapshotCount() >= 1 })
}

func TestDisconnect_StopsPublications(t *testing.T) {
	srv := telemetryAPIServer(t, `{"game": {"connected": true}}`, nil)

	cfg := DefaultConfig()
	cfg.Mode = ModePolling
	cfg.APIEndpoint = srv.URL
	cfg.PollInterval = 10 * time.Millisecond
	m, rec := newTestManager(t, cfg)

	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return rec.snapshotCount() >= 1 })

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	count := rec.snapshotCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, rec.snapshotCount(), "no snapshots may arrive after Disconnect")
}

func TestDisconnect_CancelsPendingReconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeStreaming
	cfg.WebsocketURL = "ws://127.0.0.1:1"
	cfg.ReconnectDelay = 50 * time.Millisecond
	m, rec := newTestManager(t, cfg)

	m.Connect()
	waitFor(t, 2*time.Second, func() bool { return rec.sawState(StateReconnecting) })

	m.Disconnect()

	// The armed reconnect timer must never fire against the torn-down manager.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestDisconnect_SafeFromAnyState(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())

	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())
}
