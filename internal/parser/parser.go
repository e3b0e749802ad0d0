// Package parser converts raw telemetry frames into canonical snapshots.
// It is pure []byte -> core.TelemetrySnapshot conversion with zero external
// dependencies beyond a logger.
package parser

import (
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/fleethub/hublink/pkg/core"
)

// Parser normalizes heterogeneous telemetry payloads. Conversion never
// fails: a frame that cannot be decoded at all yields DefaultSnapshot so a
// single bad frame can never take down the connection loop.
type Parser struct {
	logger *slog.Logger
}

// New creates a new parser with only a logger dependency.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// DefaultSnapshot is the canonical all-default snapshot: disconnected
// session, zeroed vehicle, no job.
func DefaultSnapshot() core.TelemetrySnapshot {
	return core.TelemetrySnapshot{
		Session: core.Session{Game: core.GameUnknown},
	}
}

// mpsToKmh converts a speed in meters/second to km/h. Providers encode
// reverse motion as negative speed; displayed speed is always non-negative.
func mpsToKmh(v float64) float64 {
	return math.Abs(v) * 3.6
}

// Normalize decodes one raw frame and maps it onto the canonical snapshot.
func (p *Parser) Normalize(raw []byte) core.TelemetrySnapshot {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		p.logger.Debug("Dropping unparseable telemetry frame",
			"error", err, "bytes", len(raw))
		return DefaultSnapshot()
	}
	return p.NormalizeMap(m)
}

// NormalizeMap maps an already-decoded frame onto the canonical snapshot.
// For every field the nested camelCase path is checked first, then the flat
// snake_case key, then the documented default.
func (p *Parser) NormalizeMap(m map[string]any) core.TelemetrySnapshot {
	pl := payload(m)

	snap := core.TelemetrySnapshot{
		Session: core.Session{
			Connected:     pl.boolean(false, "game.connected", "game_connected"),
			Paused:        pl.boolean(false, "game.paused", "game_paused"),
			SimulatedTime: pl.str("", "game.time", "game_time"),
			Game:          parseGame(pl.str("", "game.gameName", "game_name")),
		},
		Vehicle: core.Vehicle{
			Speed:              mpsToKmh(pl.float(0, "truck.speed", "truck_speed")),
			SpeedLimit:         mpsToKmh(pl.float(0, "truck.speedLimit", "truck_speed_limit")),
			CruiseControlOn:    pl.boolean(false, "truck.cruiseControlOn", "truck_cruise_control_on"),
			CruiseControlSpeed: mpsToKmh(pl.float(0, "truck.cruiseControlSpeed", "truck_cruise_control_speed")),
			Fuel:               pl.float(0, "truck.fuel", "truck_fuel"),
			FuelCapacity:       pl.float(0, "truck.fuelCapacity", "truck_fuel_capacity"),
			FuelRate:           pl.float(0, "truck.fuelAverageConsumption", "truck_fuel_average_consumption"),
			Odometer:           pl.float(0, "truck.odometer", "truck_odometer"),
			RPM:                pl.float(0, "truck.engineRpm", "truck_engine_rpm"),
			RPMMax:             pl.float(0, "truck.engineRpmMax", "truck_engine_rpm_max"),
			Gear:               pl.integer(0, "truck.gear", "truck_gear"),
			EngineOn:           pl.boolean(false, "truck.engineOn", "truck_engine_on"),
			ElectricOn:         pl.boolean(false, "truck.electricOn", "truck_electric_on"),
			WipersOn:           pl.boolean(false, "truck.wipersOn", "truck_wipers_on"),
			ParkBrakeOn:        pl.boolean(false, "truck.parkBrakeOn", "truck_park_brake_on"),
			LightsBeamLowOn:    pl.boolean(false, "truck.lightsBeamLowOn", "truck_lights_beam_low_on"),
			LightsBeamHighOn:   pl.boolean(false, "truck.lightsBeamHighOn", "truck_lights_beam_high_on"),
			BlinkerLeftOn:      pl.boolean(false, "truck.blinkerLeftActive", "truck_blinker_left_active"),
			BlinkerRightOn:     pl.boolean(false, "truck.blinkerRightActive", "truck_blinker_right_active"),
			Position: core.Position{
				X: pl.float(0, "truck.placement.x", "truck_placement_x"),
				Y: pl.float(0, "truck.placement.y", "truck_placement_y"),
				Z: pl.float(0, "truck.placement.z", "truck_placement_z"),
			},
			Damage: parseDamage(pl),
		},
		Trailer: core.Trailer{
			Attached: pl.boolean(false, "trailer.attached", "trailer_attached"),
			ID:       pl.str("", "trailer.id", "trailer_id"),
			Name:     pl.str("", "trailer.name", "trailer_name"),
			Mass:     pl.float(0, "trailer.mass", "trailer_mass"),
			Damage:   pl.float(0, "trailer.wear", "trailer_wear"),
		},
		Job: parseJob(pl),
		Navigation: core.Navigation{
			EstimatedTime:     pl.str("", "navigation.estimatedTime", "navigation_estimated_time"),
			EstimatedDistance: pl.float(0, "navigation.estimatedDistance", "navigation_estimated_distance"),
			SpeedLimit:        mpsToKmh(pl.float(0, "navigation.speedLimit", "navigation_speed_limit")),
		},
	}

	return snap
}

func parseGame(name string) core.GameID {
	switch strings.ToLower(name) {
	case "ets2", "eurotrucks2", "euro truck simulator 2":
		return core.GameETS2
	case "ats", "amtrucks", "american truck simulator":
		return core.GameATS
	default:
		return core.GameUnknown
	}
}

func parseDamage(pl payload) core.Damage {
	d := core.Damage{
		Engine:       pl.float(0, "truck.wearEngine", "truck_wear_engine"),
		Transmission: pl.float(0, "truck.wearTransmission", "truck_wear_transmission"),
		Cabin:        pl.float(0, "truck.wearCabin", "truck_wear_cabin"),
		Chassis:      pl.float(0, "truck.wearChassis", "truck_wear_chassis"),
		Wheels:       pl.float(0, "truck.wearWheels", "truck_wear_wheels"),
	}
	// No provider reports an aggregate, so take the worst component.
	d.Total = pl.float(maxComponent(d), "truck.wearTotal", "truck_wear_total")
	return d
}

func maxComponent(d core.Damage) float64 {
	return max(d.Engine, d.Transmission, d.Cabin, d.Chassis, d.Wheels)
}

// parseJob extracts the active job, if any. A frame with no job keys, or a
// job object with no income, route or cargo, means no delivery is underway.
func parseJob(pl payload) *core.Job {
	if !pl.has("job", "job_income", "job_source_city", "job_cargo") {
		return nil
	}

	j := core.Job{
		Income:             pl.float(0, "job.income", "job_income"),
		Deadline:           parseDeadline(pl.str("", "job.deadlineTime", "job_deadline_time")),
		RemainingTime:      pl.str("", "job.remainingTime", "job_remaining_time"),
		SourceCity:         pl.str("", "job.sourceCity", "job_source_city"),
		SourceCompany:      pl.str("", "job.sourceCompany", "job_source_company"),
		DestinationCity:    pl.str("", "job.destinationCity", "job_destination_city"),
		DestinationCompany: pl.str("", "job.destinationCompany", "job_destination_company"),
		Cargo:              pl.str("", "job.cargo", "cargo.name", "job_cargo"),
		CargoMass:          pl.float(0, "job.cargoMass", "cargo.mass", "job_cargo_mass"),
		CargoDamage:        pl.float(0, "job.cargoDamage", "cargo.damage", "job_cargo_damage"),
		IsSpecial:          pl.boolean(false, "job.isSpecial", "job_special"),
		Market:             pl.str("", "job.market", "job_market"),
	}

	if j.Income == 0 && j.SourceCity == "" && j.DestinationCity == "" && j.Cargo == "" {
		return nil
	}
	return &j
}

func parseDeadline(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
