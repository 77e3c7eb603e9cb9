package plant

import (
	"time"

	"desalination_plant/internal/control/interlock"
	"desalination_plant/internal/control/pid"
	"desalination_plant/internal/control/pumps"
	"desalination_plant/internal/control/sequencer"
	"desalination_plant/internal/control/timer"
	"desalination_plant/internal/models"
)

// Inputs is one scan of field values.
type Inputs struct {
	MembranePressureBar      float64
	FeedPressureBar          float64
	SuctionPressureBar       float64
	DifferentialPressureBar  float64
	FeedTemperatureC         float64
	TankLevelPct             float64
	PermeateFlowM3h          float64
	PermeateConductivityUScm float64
	PH                       float64
	ChlorineMgL              float64

	EmergencyStop bool
	FireAlarm     bool
	LeakDetected  bool

	// CommOK is false once the field device has stopped answering.
	CommOK bool

	FeedPumps []pumps.Feedback
	HPPumps   []pumps.Feedback
}

// PumpCommand drives one pump unit.
type PumpCommand struct {
	Run      bool    `json:"run"`
	SpeedPct float64 `json:"speed_pct"`
}

// Outputs are all actuator commands of one scan.
type Outputs struct {
	FeedPumps           []PumpCommand `json:"feed_pumps"`
	HPPumps             []PumpCommand `json:"hp_pumps"`
	CleaningPump        bool          `json:"cleaning_pump"`
	InletValve          bool          `json:"inlet_valve"`
	FlushValve          bool          `json:"flush_valve"`
	PermeateToTank      bool          `json:"permeate_to_tank"`
	ConcentrateValvePct float64       `json:"concentrate_valve_pct"`
	AcidDosingPct       float64       `json:"acid_dosing_pct"`
	ChlorineDosingPct   float64       `json:"chlorine_dosing_pct"`
}

// SafeOutputs is the state every actuator is forced to on a trip: pumps
// stopped, dosing off, valves closed, permeate to drain.
func SafeOutputs(feedUnits, hpUnits int) Outputs {
	return Outputs{
		FeedPumps: make([]PumpCommand, feedUnits),
		HPPumps:   make([]PumpCommand, hpUnits),
	}
}

// PumpEnable reports whether any pump is commanded to run.
func (o Outputs) PumpEnable() bool {
	if o.CleaningPump {
		return true
	}
	for _, p := range o.FeedPumps {
		if p.Run {
			return true
		}
	}
	for _, p := range o.HPPumps {
		if p.Run {
			return true
		}
	}
	return false
}

// IsSafe reports whether o equals the forced safe state.
func (o Outputs) IsSafe() bool {
	return !o.PumpEnable() && !o.InletValve && !o.FlushValve && !o.PermeateToTank &&
		o.ConcentrateValvePct == 0 && o.AcidDosingPct == 0 && o.ChlorineDosingPct == 0
}

// CommandKind names an operator command.
type CommandKind string

const (
	CmdStart     CommandKind = "START"
	CmdStop      CommandKind = "STOP"
	CmdClean     CommandKind = "CLEAN"
	CmdReset     CommandKind = "RESET"
	CmdSetpoints CommandKind = "SETPOINTS"
)

// Command is queued by the service and applied at the start of a scan.
type Command struct {
	Kind      CommandKind      `json:"kind"`
	Setpoints models.Setpoints `json:"setpoints,omitempty"`
}

// Event is produced by a scan. The runner stamps and persists it.
type Event struct {
	Type        string
	Description string
	Metadata    map[string]any
}

// Scan is the result of one Tick.
type Scan struct {
	Outputs Outputs
	Events  []Event
}

// State is all mutable plant data. Only Tick changes it.
type State struct {
	Setpoints models.Setpoints
	Values    models.ProcessValues
	Interlock interlock.Result
	// Latched holds every trip seen since the last accepted RESET.
	Latched      interlock.Trip
	SensorFaults []string
	CleanRequest bool
	Divert       bool
	Alarms       map[string]string
	Outputs      Outputs
	ProducedM3   float64
	Scans        uint64

	Seq  *sequencer.Sequencer
	Feed *pumps.Group
	HP   *pumps.Group

	Pressure pid.Controller
	Flow     pid.Controller
	PH       pid.Controller
	Chlorine pid.Controller

	pressureOn, flowOn, phOn, chlorineOn bool
	// pressureSp is the setpoint the pressure loop used last; rampSp
	// rises towards the operator setpoint during HP_RAMP.
	pressureSp, rampSp float64

	fouling      timer.OnDelay
	conductivity timer.OnDelay
	phDev        timer.OnDelay
	chlorineDev  timer.OnDelay
}

// NewState returns an idle plant with the configured setpoints.
func NewState(cfg *Config) *State {
	st := &State{
		Setpoints: cfg.Limits.Clamp(cfg.Setpoints),
		Alarms:    map[string]string{},
		Seq:       sequencer.New(cfg.Timing),
		Feed:      pumps.NewGroup("feed", cfg.FeedPumps),
		HP:        pumps.NewGroup("hp", cfg.HPPumps),
		Pressure:  pid.New(cfg.PressureLoop),
		Flow:      pid.New(cfg.FlowLoop),
		PH:        pid.New(cfg.PHLoop),
		Chlorine:  pid.New(cfg.ChlorineLoop),
	}
	st.fouling.Preset = cfg.Quality.FoulingDelay
	st.conductivity.Preset = cfg.Quality.ConductivityDelay
	st.phDev.Preset = cfg.Quality.DeviationDelay
	st.chlorineDev.Preset = cfg.Quality.DeviationDelay
	st.Outputs = SafeOutputs(cfg.FeedPumps.Units, cfg.HPPumps.Units)
	return st
}

// Restore applies a persisted snapshot and pump records to a fresh state.
// A latched trip survives a restart.
func (st *State) Restore(cfg *Config, snap models.PlantState, recs []pumps.Record) {
	if snap.ID != 0 {
		if snap.Setpoints != (models.Setpoints{}) {
			st.Setpoints = cfg.Limits.Clamp(snap.Setpoints)
		}
		st.ProducedM3 = snap.ProducedM3
		if snap.TripLatched {
			st.Latched = interlock.FromCodes(snap.TripCodes)
			if st.Latched == interlock.None {
				st.Latched = interlock.FromCodes([]string{snap.TripReason})
			}
		}
		if st.Latched != interlock.None {
			st.Seq.Restore(sequencer.Tripped, sequencer.FaultNone)
		}
	}
	st.Feed.Restore(recs)
	st.HP.Restore(recs)
}

// StepTime is the time spent in the current step.
func (st *State) StepTime() time.Duration { return st.Seq.Elapsed() }
