// Package storage defines the boundary to the delivery store. The telemetry
// core only ever inserts prepared records and reads recent ones back; user,
// role and announcement data live with the dashboard backend, not here.
package storage

import "github.com/fleethub/hublink/pkg/core"

// Store is the interface all delivery store implementations must satisfy.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	// Record persistence
	SaveDelivery(r *core.DeliveryRecord) error
	SaveDeliveries(rs []core.DeliveryRecord) error

	// RecentDeliveries returns up to limit records, newest first.
	RecentDeliveries(limit int) ([]core.DeliveryRecord, error)
}
