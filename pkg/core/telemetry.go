// Package core holds the value types shared between the telemetry link,
// the job tracker and the storage boundary.
package core

import "time"

// GameID identifies which simulator produced a telemetry payload.
type GameID string

const (
	GameETS2    GameID = "ets2"
	GameATS     GameID = "ats"
	GameUnknown GameID = "unknown"
)

// Session describes the simulator session itself, independent of the truck.
type Session struct {
	Connected     bool   `json:"connected"`
	Paused        bool   `json:"paused"`
	SimulatedTime string `json:"simulatedTime"`
	Game          GameID `json:"game"`
}

// Running reports whether the simulation is actively advancing.
func (s Session) Running() bool {
	return s.Connected && !s.Paused
}

// Damage holds the per-component damage fractions of the truck, each in [0,1].
type Damage struct {
	Engine       float64 `json:"engine"`
	Transmission float64 `json:"transmission"`
	Cabin        float64 `json:"cabin"`
	Chassis      float64 `json:"chassis"`
	Wheels       float64 `json:"wheels"`
	Total        float64 `json:"total"`
}

// Position is the truck's placement in game-world coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vehicle is the truck portion of a snapshot. Speeds are km/h, fuel is
// liters, odometer is km.
type Vehicle struct {
	Speed              float64  `json:"speed"`
	SpeedLimit         float64  `json:"speedLimit"`
	CruiseControlOn    bool     `json:"cruiseControlOn"`
	CruiseControlSpeed float64  `json:"cruiseControlSpeed"`
	Fuel               float64  `json:"fuel"`
	FuelCapacity       float64  `json:"fuelCapacity"`
	FuelRate           float64  `json:"fuelRate"`
	Odometer           float64  `json:"odometer"`
	RPM                float64  `json:"rpm"`
	RPMMax             float64  `json:"rpmMax"`
	Gear               int      `json:"gear"` // 0 neutral, negative reverse
	EngineOn           bool     `json:"engineOn"`
	ElectricOn         bool     `json:"electricOn"`
	WipersOn           bool     `json:"wipersOn"`
	ParkBrakeOn        bool     `json:"parkBrakeOn"`
	LightsBeamLowOn    bool     `json:"lightsBeamLowOn"`
	LightsBeamHighOn   bool     `json:"lightsBeamHighOn"`
	BlinkerLeftOn      bool     `json:"blinkerLeftOn"`
	BlinkerRightOn     bool     `json:"blinkerRightOn"`
	Position           Position `json:"position"`
	Damage             Damage   `json:"damage"`
}

// Trailer is the attached-trailer portion of a snapshot.
type Trailer struct {
	Attached bool    `json:"attached"`
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Mass     float64 `json:"mass"`
	Damage   float64 `json:"damage"`
}

// Job describes the delivery currently underway. A nil *Job on the snapshot
// is the sole authoritative signal that no delivery is in progress.
type Job struct {
	Income             float64   `json:"income"`
	Deadline           time.Time `json:"deadline"`
	RemainingTime      string    `json:"remainingTime"`
	SourceCity         string    `json:"sourceCity"`
	SourceCompany      string    `json:"sourceCompany"`
	DestinationCity    string    `json:"destinationCity"`
	DestinationCompany string    `json:"destinationCompany"`
	Cargo              string    `json:"cargo"`
	CargoMass          float64   `json:"cargoMass"` // kg
	CargoDamage        float64   `json:"cargoDamage"`
	IsSpecial          bool      `json:"isSpecial"`
	Market             string    `json:"market"`
}

// Navigation carries the route guidance portion of a snapshot.
type Navigation struct {
	EstimatedTime     string  `json:"estimatedTime"`
	EstimatedDistance float64 `json:"estimatedDistance"`
	SpeedLimit        float64 `json:"speedLimit"`
}

// TelemetrySnapshot is one complete telemetry reading. Snapshots are
// immutable; each inbound payload produces a fresh value that replaces the
// previous one wholesale.
type TelemetrySnapshot struct {
	Session    Session    `json:"session"`
	Vehicle    Vehicle    `json:"vehicle"`
	Trailer    Trailer    `json:"trailer"`
	Job        *Job       `json:"job,omitempty"`
	Navigation Navigation `json:"navigation"`
}

// JobActive reports whether a delivery is in progress.
func (t TelemetrySnapshot) JobActive() bool {
	return t.Job != nil
}
