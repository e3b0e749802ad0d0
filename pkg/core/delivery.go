package core

import "time"

// JobBaseline is the odometer/fuel reading captured the moment a job appears
// on the snapshot stream. It lives for at most one job.
type JobBaseline struct {
	StartOdometer float64 `json:"startOdometer"`
	StartFuel     float64 `json:"startFuel"`
}

// DeliveryRecord is the persistence-ready summary of a completed (or
// in-progress) delivery, computed from the latest snapshot and the baseline.
type DeliveryRecord struct {
	RecordedAt time.Time `json:"recordedAt"`
	Game       GameID    `json:"game"`

	SourceCity         string `json:"sourceCity"`
	SourceCompany      string `json:"sourceCompany"`
	DestinationCity    string `json:"destinationCity"`
	DestinationCompany string `json:"destinationCompany"`

	Cargo            string  `json:"cargo"`
	CargoMassTons    float64 `json:"cargoMassTons"`
	CargoDamagePct   float64 `json:"cargoDamagePct"` // 0..100
	Income           float64 `json:"income"`
	IsSpecial        bool    `json:"isSpecial"`
	Market           string  `json:"market"`
	DistanceTraveled float64 `json:"distanceTraveled"` // km, rounded, never negative
	FuelConsumed     float64 `json:"fuelConsumed"`     // liters, never negative
}
