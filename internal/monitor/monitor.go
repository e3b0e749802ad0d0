// Package monitor reports runtime health: connection state, pending
// deliveries and flush timings. It writes a status file every second and,
// when InfluxDB is available, a connection health point.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fleethub/hublink/internal/connection"
	"github.com/fleethub/hublink/internal/influx"
	"github.com/fleethub/hublink/internal/logging"
	"github.com/fleethub/hublink/internal/worker"
)

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	Connection    *connection.Manager
	WorkerManager *worker.Manager
	LogManager    *logging.SlogManager
	Influx        *influx.Manager // optional
	StatusDir     string
}

// ProgramStatus is the snapshot of runtime health written to the status file.
type ProgramStatus struct {
	Time                time.Time `json:"time"`
	ConnectionState     string    `json:"connectionState"`
	LastConnectionError string    `json:"lastConnectionError,omitempty"`
	JobActive           bool      `json:"jobActive"`
	PendingDeliveries   int       `json:"pendingDeliveries"`
	LastFlushDurationMs float32   `json:"lastFlushDurationMs"`
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current program status.
func (s *Service) GetProgramStatus() ProgramStatus {
	status := s.deps.Connection.Status()
	return ProgramStatus{
		Time:                time.Now(),
		ConnectionState:     string(status.State),
		LastConnectionError: status.LastError,
		JobActive:           s.deps.Connection.IsJobActive(),
		PendingDeliveries:   s.deps.WorkerManager.QueueLen(),
		LastFlushDurationMs: float32(s.deps.WorkerManager.GetLastFlushDuration().Milliseconds()),
	}
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine")

		statusFile, err := os.Create(filepath.Join(s.deps.StatusDir, "status.json"))
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer func() {
			if statusFile != nil {
				statusFile.Close()
			}
		}()

		ticker := time.NewTicker(1000 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				status := s.GetProgramStatus()

				if statusFile != nil {
					if err := writeStatusFile(statusFile, status); err != nil {
						logger.Error("Error writing status file", "error", err)
					}
				}

				if s.deps.Influx != nil {
					point := influx.ConnectionPoint(s.deps.Connection.Status())
					if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketPerformance, point); err != nil {
						logger.Debug("Error writing connection point", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// writeStatusFile rewrites the status file in place so readers always see a
// single complete JSON document.
func writeStatusFile(f *os.File, status ProgramStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
