// Package history keeps a bounded in-memory window of recent snapshots so
// the control endpoint can serve speed/fuel charts without re-reading the
// feed. Latency matters here: reads happen on every chart refresh.
package history

import (
	"sync"
	"time"

	"github.com/fleethub/hublink/internal/dispatcher"
	"github.com/fleethub/hublink/pkg/core"
)

const defaultCapacity = 600 // ~1 minute at the default 100ms poll interval

// Sample is one retained telemetry observation.
type Sample struct {
	Time     time.Time `json:"time"`
	Speed    float64   `json:"speed"`
	RPM      float64   `json:"rpm"`
	Fuel     float64   `json:"fuel"`
	Odometer float64   `json:"odometer"`
}

// Buffer is a fixed-capacity ring of samples, oldest evicted first.
type Buffer struct {
	mu       sync.Mutex
	samples  []Sample
	capacity int
	start    int
	size     int
}

// NewBuffer creates a buffer holding up to capacity samples (0 uses the
// default).
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// Subscribe attaches the buffer to the snapshot stream.
func (b *Buffer) Subscribe(bus *dispatcher.Dispatcher) {
	bus.Subscribe(dispatcher.TopicSnapshot, func(e dispatcher.Event) error {
		if snap, ok := e.Payload.(core.TelemetrySnapshot); ok {
			b.Record(snap, e.Timestamp)
		}
		return nil
	})
}

// Record appends one observation, evicting the oldest when full.
func (b *Buffer) Record(snap core.TelemetrySnapshot, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.size) % b.capacity
	b.samples[idx] = Sample{
		Time:     at,
		Speed:    snap.Vehicle.Speed,
		RPM:      snap.Vehicle.RPM,
		Fuel:     snap.Vehicle.Fuel,
		Odometer: snap.Vehicle.Odometer,
	}
	if b.size < b.capacity {
		b.size++
	} else {
		b.start = (b.start + 1) % b.capacity
	}
}

// Samples returns all retained samples, oldest first.
func (b *Buffer) Samples() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Sample, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.samples[(b.start+i)%b.capacity]
	}
	return out
}

// Len returns the number of retained samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Reset discards all samples.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.size = 0
}
