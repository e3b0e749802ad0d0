// Package connection owns the live link to the telemetry provider. It
// speaks two transports — a persistent WebSocket stream and a periodic HTTP
// poll — with an auto mode that prefers streaming and falls back to polling
// when the stream drops. Every inbound frame is normalized and published on
// the event bus; the manager itself never hands errors to its caller.
package connection

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fleethub/hublink/internal/dispatcher"
	"github.com/fleethub/hublink/internal/parser"
	"github.com/fleethub/hublink/pkg/core"
)

const (
	defaultWebsocketURL   = "ws://localhost:25555"
	defaultAPIEndpoint    = "http://localhost:25555/api/ets2/telemetry"
	defaultPollInterval   = 100 * time.Millisecond
	defaultReconnectDelay = 3 * time.Second
	httpTimeout           = 5 * time.Second
)

// Config holds the transport settings. Zero values for URLs, intervals and
// mode are replaced with the defaults above; use DefaultConfig as the
// starting point to get AutoReconnect enabled.
type Config struct {
	WebsocketURL   string
	APIEndpoint    string
	PollInterval   time.Duration
	Mode           Mode
	AutoReconnect  bool
	ReconnectDelay time.Duration
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		WebsocketURL:   defaultWebsocketURL,
		APIEndpoint:    defaultAPIEndpoint,
		PollInterval:   defaultPollInterval,
		Mode:           ModeAuto,
		AutoReconnect:  true,
		ReconnectDelay: defaultReconnectDelay,
	}
}

func (c *Config) applyDefaults() {
	if c.WebsocketURL == "" {
		c.WebsocketURL = defaultWebsocketURL
	}
	if c.APIEndpoint == "" {
		c.APIEndpoint = defaultAPIEndpoint
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Mode == "" {
		c.Mode = ModeAuto
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
}

// Manager is the transport connection manager. All mutable state is guarded
// by mu; scheduled work (reconnect timer, poll ticks, read loop) carries the
// generation it was started under and becomes a no-op once Disconnect bumps
// the generation.
type Manager struct {
	cfg    Config
	parser *parser.Parser
	logger *slog.Logger
	bus    *dispatcher.Dispatcher

	httpClient *http.Client

	mu             sync.Mutex
	gen            uint64
	state          State
	lastError      string
	lastUpdate     time.Time
	snapshot       core.TelemetrySnapshot
	streamCloser   func() // closes the active websocket, nil when none
	pollStop       chan struct{}
	reconnectTimer *time.Timer
}

// NewManager creates a connection manager publishing onto the given bus.
func NewManager(cfg Config, p *parser.Parser, bus *dispatcher.Dispatcher, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:        cfg,
		parser:     p,
		logger:     logger,
		bus:        bus,
		httpClient: &http.Client{Timeout: httpTimeout},
		state:      StateDisconnected,
		snapshot:   parser.DefaultSnapshot(),
	}
}

// Connect starts the configured transport. Idempotent: calling it while
// already Connecting or Connected is a no-op. Returns immediately; results
// surface through snapshot and state-change events.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	// An armed reconnect timer would race the attempt started here and end
	// up with two live transports. This attempt takes over.
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.setStateLocked(StateConnecting, m.lastError)
	gen := m.gen
	mode := m.cfg.Mode
	m.mu.Unlock()
	m.publishState()

	if mode == ModePolling {
		m.startPolling(gen)
		return
	}
	go m.dialStreaming(gen)
}

// Disconnect tears the link down: closes any streaming connection, stops the
// polling loop, cancels a pending reconnect and moves to Disconnected. Safe
// to call from any state, any number of times. No snapshot or state event is
// published after it returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	changed := m.state != StateDisconnected
	m.state = StateDisconnected
	if m.streamCloser != nil {
		m.streamCloser()
		m.streamCloser = nil
	}
	if m.pollStop != nil {
		close(m.pollStop)
		m.pollStop = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.mu.Unlock()

	if changed {
		m.publishState()
	}
	m.logger.Debug("Telemetry link disconnected")
}

// Snapshot returns the most recent telemetry snapshot.
func (m *Manager) Snapshot() core.TelemetrySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, LastError: m.lastError, LastUpdate: m.lastUpdate}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsJobActive reports whether the latest snapshot carries an active job.
func (m *Manager) IsJobActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.JobActive()
}

// IsSessionRunning reports whether the simulator is connected and unpaused.
func (m *Manager) IsSessionRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.Session.Running()
}

// setStateLocked updates state and error under mu. Callers publish after
// unlocking via publishState.
func (m *Manager) setStateLocked(s State, lastError string) {
	m.state = s
	m.lastError = lastError
}

func (m *Manager) publishState() {
	m.bus.Publish(dispatcher.TopicStateChange, m.Status())
}

// publishFrame stores a normalized snapshot and publishes it. Frames from a
// stale generation (arriving after Disconnect) are dropped.
func (m *Manager) publishFrame(gen uint64, snap core.TelemetrySnapshot) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.snapshot = snap
	m.lastUpdate = time.Now()
	m.mu.Unlock()

	m.bus.Publish(dispatcher.TopicSnapshot, snap)
}

// scheduleReconnect arms the reconnect timer. In auto mode the retry goes to
// the polling transport: a dead streaming endpoint is usually absent rather
// than transiently broken, while polling is a cheap probe that self-heals.
func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateReconnecting, m.lastError)
	delay := m.cfg.ReconnectDelay
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		// A stale generation or an attempt already in flight (manual
		// Connect won the race) makes this timer a no-op.
		if gen != m.gen || m.state == StateConnected || m.state == StateConnecting {
			m.mu.Unlock()
			return
		}
		m.reconnectTimer = nil
		m.setStateLocked(StateConnecting, m.lastError)
		mode := m.cfg.Mode
		m.mu.Unlock()
		m.publishState()

		if mode == ModeStreaming {
			go m.dialStreaming(gen)
			return
		}
		// Auto mode falls back to polling after a streaming drop.
		m.startPolling(gen)
	})
	m.mu.Unlock()

	m.publishState()
	m.logger.Info("Scheduling telemetry reconnect", "delay", delay, "mode", m.cfg.Mode)
}
