// Package job watches the snapshot stream for job-presence transitions and
// turns the latest snapshot plus the recorded baseline into persistence-ready
// delivery records.
package job

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/fleethub/hublink/internal/dispatcher"
	"github.com/fleethub/hublink/pkg/core"
)

// Tracker subscribes to the snapshot stream and maintains the job baseline.
// The snapshot's job field is the only authoritative signal: a job appearing
// captures the odometer/fuel baseline, a job disappearing discards it. No
// record is ever produced automatically — the stream does not guarantee a
// final "completed" frame before the job field vanishes, so production is
// always the caller's explicit Prepare call.
type Tracker struct {
	logger *slog.Logger
	bus    *dispatcher.Dispatcher

	mu       sync.Mutex
	snapshot core.TelemetrySnapshot
	baseline *core.JobBaseline
}

// NewTracker creates a tracker and subscribes it to the snapshot topic.
func NewTracker(bus *dispatcher.Dispatcher, logger *slog.Logger) *Tracker {
	t := &Tracker{logger: logger, bus: bus}
	bus.Subscribe(dispatcher.TopicSnapshot, func(e dispatcher.Event) error {
		if snap, ok := e.Payload.(core.TelemetrySnapshot); ok {
			t.HandleSnapshot(snap)
		}
		return nil
	})
	return t
}

// HandleSnapshot consumes one snapshot and updates the baseline state.
func (t *Tracker) HandleSnapshot(snap core.TelemetrySnapshot) {
	t.mu.Lock()
	t.snapshot = snap

	var started, ended bool
	switch {
	case snap.Job != nil && t.baseline == nil:
		t.baseline = &core.JobBaseline{
			StartOdometer: snap.Vehicle.Odometer,
			StartFuel:     snap.Vehicle.Fuel,
		}
		started = true
	case snap.Job == nil && t.baseline != nil:
		t.baseline = nil
		ended = true
	}
	t.mu.Unlock()

	if started {
		t.logger.Info("Job started",
			"source", snap.Job.SourceCity,
			"destination", snap.Job.DestinationCity,
			"cargo", snap.Job.Cargo,
			"startOdometer", snap.Vehicle.Odometer,
			"startFuel", snap.Vehicle.Fuel)
		t.bus.Publish(dispatcher.TopicJobStarted, snap)
	}
	if ended {
		t.logger.Info("Job ended", "odometer", snap.Vehicle.Odometer)
		t.bus.Publish(dispatcher.TopicJobEnded, snap)
	}
}

// Baseline returns a copy of the current baseline, or nil when no job is
// being tracked.
func (t *Tracker) Baseline() *core.JobBaseline {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.baseline == nil {
		return nil
	}
	b := *t.baseline
	return &b
}

// Prepare combines the latest snapshot and the baseline into a delivery
// record. Returns nil when no job is active or no baseline exists. Negative
// deltas (odometer reset, mid-job refuel) are clamped to zero with a logged
// warning. Preparing a record does not touch the baseline: only the
// tracker's own job-gone observation ends job tracking.
func (t *Tracker) Prepare() *core.DeliveryRecord {
	t.mu.Lock()
	snap := t.snapshot
	baseline := t.baseline
	t.mu.Unlock()

	if snap.Job == nil || baseline == nil {
		return nil
	}

	distance := math.Round(snap.Vehicle.Odometer - baseline.StartOdometer)
	if distance < 0 {
		t.logger.Warn("Negative trip distance clamped to zero",
			"startOdometer", baseline.StartOdometer,
			"currentOdometer", snap.Vehicle.Odometer)
		distance = 0
	}

	fuel := baseline.StartFuel - snap.Vehicle.Fuel
	if fuel < 0 {
		t.logger.Warn("Negative fuel consumption clamped to zero",
			"startFuel", baseline.StartFuel,
			"currentFuel", snap.Vehicle.Fuel)
		fuel = 0
	}

	record := &core.DeliveryRecord{
		RecordedAt:         time.Now(),
		Game:               snap.Session.Game,
		SourceCity:         snap.Job.SourceCity,
		SourceCompany:      snap.Job.SourceCompany,
		DestinationCity:    snap.Job.DestinationCity,
		DestinationCompany: snap.Job.DestinationCompany,
		Cargo:              snap.Job.Cargo,
		CargoMassTons:      snap.Job.CargoMass / 1000,
		CargoDamagePct:     snap.Job.CargoDamage * 100,
		Income:             snap.Job.Income,
		IsSpecial:          snap.Job.IsSpecial,
		Market:             snap.Job.Market,
		DistanceTraveled:   distance,
		FuelConsumed:       fuel,
	}

	t.bus.Publish(dispatcher.TopicDeliveryPrepared, *record)
	return record
}
