package models

import "time"

// Setpoints are the operator-adjustable targets.
type Setpoints struct {
	MembranePressureBar float64 `json:"membrane_pressure_bar"`
	PermeateFlowM3h     float64 `json:"permeate_flow_m3h"`
	PH                  float64 `json:"ph"`
	ChlorineMgL         float64 `json:"chlorine_mg_l"`
}

// ProcessValues are the conditioned measurements of one scan.
type ProcessValues struct {
	MembranePressureBar      float64 `json:"membrane_pressure_bar"`
	FeedPressureBar          float64 `json:"feed_pressure_bar"`
	SuctionPressureBar       float64 `json:"suction_pressure_bar"`
	DifferentialPressureBar  float64 `json:"differential_pressure_bar"`
	FeedTemperatureC         float64 `json:"feed_temperature_c"`
	TankLevelPct             float64 `json:"tank_level_pct"`
	PermeateFlowM3h          float64 `json:"permeate_flow_m3h"`
	PermeateConductivityUScm float64 `json:"permeate_conductivity_us_cm"`
	PH                       float64 `json:"ph"`
	ChlorineMgL              float64 `json:"chlorine_mg_l"`
}

// OutputValues are the actuator commands written in the last scan.
type OutputValues struct {
	PumpEnable          bool    `json:"pump_enable"`
	CleaningPump        bool    `json:"cleaning_pump"`
	InletValve          bool    `json:"inlet_valve"`
	FlushValve          bool    `json:"flush_valve"`
	PermeateToTank      bool    `json:"permeate_to_tank"`
	ConcentrateValvePct float64 `json:"concentrate_valve_pct"`
	HPSpeedPct          float64 `json:"hp_speed_pct"`
	AcidDosingPct       float64 `json:"acid_dosing_pct"`
	ChlorineDosingPct   float64 `json:"chlorine_dosing_pct"`
}

// PumpStatus is the HMI view of one pump unit.
type PumpStatus struct {
	Group          string  `json:"group"`
	ID             int     `json:"id"`
	Duty           bool    `json:"duty"`
	Commanded      bool    `json:"commanded"`
	Running        bool    `json:"running"`
	SpeedPct       float64 `json:"speed_pct"`
	RuntimeHours   float64 `json:"runtime_hours"`
	Efficiency     float64 `json:"efficiency"`
	Faulted        bool    `json:"faulted"`
	Fault          string  `json:"fault,omitempty"`
	MaintenanceDue bool    `json:"maintenance_due"`
}

// LoopStatus is the HMI view of one PID loop.
type LoopStatus struct {
	Name     string  `json:"name"`
	Enabled  bool    `json:"enabled"`
	Setpoint float64 `json:"setpoint"`
	Measured float64 `json:"measured"`
	Output   float64 `json:"output"`
	P        float64 `json:"p"`
	I        float64 `json:"i"`
	D        float64 `json:"d"`
}

// PlantState is the snapshot handed to monitoring, persistence and telemetry.
type PlantState struct {
	ID           int           `json:"id"`
	Step         string        `json:"step"`                  // IDLE | PRE_FLUSH | ... | TRIPPED
	StepSeconds  float64       `json:"step_seconds"`          // time in step
	Fault        string        `json:"fault,omitempty"`       // e.g. "RAMP_TIMEOUT"
	Safe         bool          `json:"safe"`                  // interlocks healthy this scan
	TripLatched  bool          `json:"trip_latched"`          // restart blocked until RESET
	TripReason   string        `json:"trip_reason,omitempty"` // highest priority latched condition
	TripCodes    []string      `json:"trip_codes,omitempty"`  // e.g. ["LEAK", "MEMBRANE_OVERPRESSURE"]
	Setpoints    Setpoints     `json:"setpoints"`
	Process      ProcessValues `json:"process"`
	Outputs      OutputValues  `json:"outputs"`
	Pumps        []PumpStatus  `json:"pumps"`
	Loops        []LoopStatus  `json:"loops"`
	Alarms       []string      `json:"alarms,omitempty"`
	SensorFaults []string      `json:"sensor_faults,omitempty"`
	ProducedM3   float64       `json:"produced_m3"`
	Scans        uint64        `json:"scans"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SetpointPatch is a partial setpoint update; nil fields keep their value.
type SetpointPatch struct {
	MembranePressureBar *float64 `json:"membrane_pressure_bar,omitempty"`
	PermeateFlowM3h     *float64 `json:"permeate_flow_m3h,omitempty"`
	PH                  *float64 `json:"ph,omitempty"`
	ChlorineMgL         *float64 `json:"chlorine_mg_l,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SetpointPatch) Empty() bool {
	return p.MembranePressureBar == nil && p.PermeateFlowM3h == nil && p.PH == nil && p.ChlorineMgL == nil
}

// Apply returns sp with the patch applied.
func (p SetpointPatch) Apply(sp Setpoints) Setpoints {
	if p.MembranePressureBar != nil {
		sp.MembranePressureBar = *p.MembranePressureBar
	}
	if p.PermeateFlowM3h != nil {
		sp.PermeateFlowM3h = *p.PermeateFlowM3h
	}
	if p.PH != nil {
		sp.PH = *p.PH
	}
	if p.ChlorineMgL != nil {
		sp.ChlorineMgL = *p.ChlorineMgL
	}
	return sp
}
