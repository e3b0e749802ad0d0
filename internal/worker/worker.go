// Package worker moves prepared delivery records from the dispatcher into
// the store and the dashboard backend. Records queue in memory and flush on
// an interval so a slow store never blocks snapshot processing.
package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fleethub/hublink/internal/dispatcher"
	"github.com/fleethub/hublink/internal/queue"
	"github.com/fleethub/hublink/internal/storage"
	"github.com/fleethub/hublink/pkg/core"
)

const defaultFlushInterval = 5 * time.Second

// Submitter is the subset of the API client the worker needs.
type Submitter interface {
	SubmitDeliveries(records []core.DeliveryRecord) error
}

// Dependencies holds all dependencies for the worker manager.
type Dependencies struct {
	Store     storage.Store
	Submitter Submitter // optional, nil disables dashboard submission
	Logger    *slog.Logger
}

// Manager drains the delivery queue into the store on an interval.
type Manager struct {
	deps          Dependencies
	queue         *queue.Queue[core.DeliveryRecord]
	flushInterval time.Duration

	mu            sync.RWMutex
	isRunning     bool
	stopChan      chan struct{}
	lastFlushTook time.Duration
}

// NewManager creates a worker manager. queueLimit bounds the in-memory
// delivery queue; 0 means unbounded.
func NewManager(deps Dependencies, queueLimit int, flushInterval time.Duration) *Manager {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &Manager{
		deps:          deps,
		queue:         queue.New[core.DeliveryRecord](queueLimit),
		flushInterval: flushInterval,
	}
}

// RegisterHandlers subscribes the worker to prepared delivery events.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Subscribe(dispatcher.TopicDeliveryPrepared, m.handleDeliveryPrepared, dispatcher.Logged())
}

func (m *Manager) handleDeliveryPrepared(e dispatcher.Event) error {
	record, ok := e.Payload.(core.DeliveryRecord)
	if !ok {
		m.deps.Logger.Error("Unexpected payload type on delivery topic")
		return nil
	}
	m.queue.Push(record)
	return nil
}

// QueueLen returns the number of records waiting to be flushed.
func (m *Manager) QueueLen() int {
	return m.queue.Len()
}

// GetLastFlushDuration returns the duration of the last flush cycle.
func (m *Manager) GetLastFlushDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFlushTook
}

// IsRunning returns whether the flush loop is running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// Start begins the periodic flush loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := m.Flush(); err != nil {
					m.deps.Logger.Error("Delivery flush failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the flush loop and performs a final flush.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	close(m.stopChan)
	m.mu.Unlock()

	if err := m.Flush(); err != nil {
		m.deps.Logger.Error("Final delivery flush failed", "error", err)
	}
}

// Flush drains the queue into the store. Records go back on the queue when
// the store write fails so nothing is lost across retries.
func (m *Manager) Flush() error {
	records := m.queue.Drain()
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	if err := m.deps.Store.SaveDeliveries(records); err != nil {
		m.queue.Requeue(records)
		return err
	}

	// Dashboard submission is best effort; the store is the source of truth.
	if m.deps.Submitter != nil {
		if err := m.deps.Submitter.SubmitDeliveries(records); err != nil {
			m.deps.Logger.Warn("Failed to submit deliveries to dashboard", "error", err, "count", len(records))
		}
	}

	took := time.Since(start)
	m.mu.Lock()
	m.lastFlushTook = took
	m.mu.Unlock()

	m.deps.Logger.Debug("Flushed deliveries", "count", len(records), "took", took)
	return nil
}
