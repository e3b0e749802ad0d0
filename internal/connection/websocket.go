package connection

import (
	"time"

	ws "github.com/gorilla/websocket"
)

const dialTimeout = 10 * time.Second

// dialStreaming attempts the streaming transport. A failed dial takes the
// same path as a dropped connection: record the error, then let the close
// handling decide between reconnect and giving up.
func (m *Manager) dialStreaming(gen uint64) {
	dialer := ws.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(m.cfg.WebsocketURL, nil)
	if err != nil {
		m.logger.Warn("WebSocket dial failed", "url", m.cfg.WebsocketURL, "error", err)
		m.onStreamingClosed(gen, err.Error())
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.streamCloser = func() { _ = conn.Close() }
	m.setStateLocked(StateConnected, "")
	m.mu.Unlock()
	m.publishState()

	m.logger.Info("WebSocket connected", "url", m.cfg.WebsocketURL)
	go m.readLoop(gen, conn)
}

// readLoop normalizes and publishes every inbound message until the
// connection drops. With gorilla a read error is what surfaces both
// transport errors and the close event, so it drives the close transition.
func (m *Manager) readLoop(gen uint64, conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.onStreamingClosed(gen, err.Error())
			return
		}
		m.publishFrame(gen, m.parser.Normalize(message))
	}
}

// onStreamingClosed handles the close event: back to Disconnected, then
// schedule a reconnect when enabled.
func (m *Manager) onStreamingClosed(gen uint64, cause string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.streamCloser != nil {
		m.streamCloser()
		m.streamCloser = nil
	}
	m.setStateLocked(StateDisconnected, cause)
	reconnect := m.cfg.AutoReconnect
	m.mu.Unlock()
	m.publishState()

	m.logger.Warn("WebSocket closed", "cause", cause, "autoReconnect", reconnect)
	if reconnect {
		m.scheduleReconnect(gen)
	}
}
