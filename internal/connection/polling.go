package connection

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// startPolling launches the polling loop: one immediate fetch, then one per
// interval. Failed fetches mark the tick Disconnected and keep polling;
// provider outages are transient by design, not fatal.
func (m *Manager) startPolling(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.pollStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.pollStop = stop
	interval := m.cfg.PollInterval
	m.mu.Unlock()

	m.logger.Info("Polling telemetry API", "url", m.cfg.APIEndpoint, "interval", interval)

	go func() {
		m.pollOnce(gen)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.pollOnce(gen)
			}
		}
	}()
}

// pollOnce performs a single fetch-normalize-publish cycle.
func (m *Manager) pollOnce(gen uint64) {
	raw, err := m.fetch()
	if err != nil {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		changed := m.state != StateDisconnected || m.lastError == ""
		m.setStateLocked(StateDisconnected, "failed to connect to the telemetry API")
		m.mu.Unlock()

		if changed {
			m.publishState()
		}
		m.logger.Debug("Telemetry poll failed", "error", err)
		return
	}

	snap := m.parser.Normalize(raw)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	changed := m.state != StateConnected
	m.setStateLocked(StateConnected, "")
	m.mu.Unlock()

	if changed {
		m.publishState()
	}
	m.publishFrame(gen, snap)
}

func (m *Manager) fetch() ([]byte, error) {
	resp, err := m.httpClient.Get(m.cfg.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telemetry endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading telemetry response: %w", err)
	}
	return body, nil
}
