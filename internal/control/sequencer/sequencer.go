package sequencer

import (
	"fmt"
	"time"
)

// Step of the RO train sequence.
type Step int

const (
	Idle Step = iota
	PreFlush
	FeedStart
	HPRamp
	Production
	Standby
	Cleaning
	Shutdown
	Tripped
)

var stepNames = [...]string{
	Idle:       "IDLE",
	PreFlush:   "PRE_FLUSH",
	FeedStart:  "FEED_START",
	HPRamp:     "HP_RAMP",
	Production: "PRODUCTION",
	Standby:    "STANDBY",
	Cleaning:   "CLEANING",
	Shutdown:   "SHUTDOWN",
	Tripped:    "TRIPPED",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("STEP(%d)", int(s))
	}
	return stepNames[s]
}

// ParseStep is the inverse of String.
func ParseStep(name string) (Step, bool) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), true
		}
	}
	return Idle, false
}

// Running reports whether the step belongs to an active run, i.e. one a Stop
// command can end.
func (s Step) Running() bool {
	switch s {
	case PreFlush, FeedStart, HPRamp, Production, Standby, Cleaning:
		return true
	}
	return false
}

// Fault explains a transition to SHUTDOWN that was not operator initiated.
type Fault string

const (
	FaultNone             Fault = ""
	FaultFeedStartTimeout Fault = "FEED_START_TIMEOUT"
	FaultRampTimeout      Fault = "RAMP_TIMEOUT"
	FaultPumpsUnavailable Fault = "PUMPS_UNAVAILABLE"
)

// Timing holds step durations, timeouts and the process thresholds that end
// a step early.
type Timing struct {
	PreFlush         time.Duration `json:"pre_flush"`
	FeedStartTimeout time.Duration `json:"feed_start_timeout"`
	RampTimeout      time.Duration `json:"ramp_timeout"`
	CleaningDuration time.Duration `json:"cleaning_duration"`
	ShutdownFlush    time.Duration `json:"shutdown_flush"`

	MinFeedPressureBar   float64 `json:"min_feed_pressure_bar"`
	RampCompleteFraction float64 `json:"ramp_complete_fraction"`
	TankHighPct          float64 `json:"tank_high_pct"`
	TankRestartPct       float64 `json:"tank_restart_pct"`
}

func DefaultTiming() Timing {
	return Timing{
		PreFlush:             30 * time.Second,
		FeedStartTimeout:     60 * time.Second,
		RampTimeout:          120 * time.Second,
		CleaningDuration:     30 * time.Minute,
		ShutdownFlush:        60 * time.Second,
		MinFeedPressureBar:   1.5,
		RampCompleteFraction: 0.95,
		TankHighPct:          95,
		TankRestartPct:       80,
	}
}

func (t Timing) Validate() error {
	if t.RampCompleteFraction <= 0 || t.RampCompleteFraction > 1 {
		return fmt.Errorf("ramp complete fraction must be in (0,1], got %.2f", t.RampCompleteFraction)
	}
	if t.TankRestartPct >= t.TankHighPct {
		return fmt.Errorf("tank restart level %.1f must be below tank high %.1f", t.TankRestartPct, t.TankHighPct)
	}
	if t.FeedStartTimeout <= 0 || t.RampTimeout <= 0 {
		return fmt.Errorf("feed start and ramp timeouts must be > 0")
	}
	return nil
}

// Inputs is what the sequencer sees in one scan. Start, Stop, Clean and
// Reset are one-scan command pulses.
type Inputs struct {
	Start bool
	Stop  bool
	Clean bool
	Reset bool

	Safe           bool
	Latched        bool
	PumpsAvailable bool
	CleanRequest   bool

	FeedPressureBar     float64
	MembranePressureBar float64
	MembraneSetpointBar float64
	TankLevelPct        float64
}

func (in Inputs) tripped() bool { return !in.Safe || in.Latched }

// Outputs are the per-step actuator targets.
type Outputs struct {
	FeedPumps        bool `json:"feed_pumps"`
	HPPumps          bool `json:"hp_pumps"`
	CleaningPump     bool `json:"cleaning_pump"`
	InletValve       bool `json:"inlet_valve"`
	ConcentrateValve bool `json:"concentrate_valve"`
	FlushValve       bool `json:"flush_valve"`
	PermeateToTank   bool `json:"permeate_to_tank"`
	PressureControl  bool `json:"pressure_control"`
	Dosing           bool `json:"dosing"`
}

// PumpEnable reports whether any pump is enabled.
func (o Outputs) PumpEnable() bool { return o.FeedPumps || o.HPPumps || o.CleaningPump }

// Targets is the output table of each step. TRIPPED and unknown steps map to
// the safe state.
func Targets(s Step) Outputs {
	switch s {
	case PreFlush:
		return Outputs{FeedPumps: true, InletValve: true, ConcentrateValve: true, FlushValve: true}
	case FeedStart:
		return Outputs{FeedPumps: true, InletValve: true, ConcentrateValve: true}
	case HPRamp:
		return Outputs{FeedPumps: true, HPPumps: true, InletValve: true, ConcentrateValve: true, PressureControl: true}
	case Production:
		return Outputs{FeedPumps: true, HPPumps: true, InletValve: true, ConcentrateValve: true,
			PermeateToTank: true, PressureControl: true, Dosing: true}
	case Cleaning:
		return Outputs{CleaningPump: true, ConcentrateValve: true, FlushValve: true}
	case Shutdown:
		return Outputs{FeedPumps: true, InletValve: true, ConcentrateValve: true, FlushValve: true}
	default:
		return Outputs{}
	}
}

// Next is the transition function. elapsed is the time already spent in
// step. At most one transition is taken per call.
func Next(step Step, in Inputs, elapsed time.Duration, t Timing) (Step, Fault) {
	if step == Tripped {
		if in.Reset && !in.tripped() {
			return Idle, FaultNone
		}
		return Tripped, FaultNone
	}
	if in.tripped() {
		return Tripped, FaultNone
	}
	if step.Running() {
		if in.Stop {
			return Shutdown, FaultNone
		}
		if !in.PumpsAvailable {
			return Shutdown, FaultPumpsUnavailable
		}
	}

	switch step {
	case Idle:
		if in.Start && in.PumpsAvailable {
			return PreFlush, FaultNone
		}
	case PreFlush:
		if elapsed >= t.PreFlush {
			return FeedStart, FaultNone
		}
	case FeedStart:
		if in.FeedPressureBar >= t.MinFeedPressureBar {
			return HPRamp, FaultNone
		}
		if elapsed >= t.FeedStartTimeout {
			return Shutdown, FaultFeedStartTimeout
		}
	case HPRamp:
		if in.MembranePressureBar >= t.RampCompleteFraction*in.MembraneSetpointBar {
			return Production, FaultNone
		}
		if elapsed >= t.RampTimeout {
			return Shutdown, FaultRampTimeout
		}
	case Production:
		if in.Clean || in.CleanRequest {
			return Cleaning, FaultNone
		}
		if in.TankLevelPct >= t.TankHighPct {
			return Standby, FaultNone
		}
	case Standby:
		if in.Clean || in.CleanRequest {
			return Cleaning, FaultNone
		}
		if in.TankLevelPct <= t.TankRestartPct {
			return FeedStart, FaultNone
		}
	case Cleaning:
		if elapsed >= t.CleaningDuration {
			return Shutdown, FaultNone
		}
	case Shutdown:
		if elapsed >= t.ShutdownFlush {
			return Idle, FaultNone
		}
	}
	return step, FaultNone
}

// Transition records a step change made by Tick.
type Transition struct {
	From  Step
	To    Step
	Fault Fault
}

// Sequencer keeps the current step and time in step.
type Sequencer struct {
	Timing Timing

	step    Step
	elapsed time.Duration
	fault   Fault

	last    Transition
	changed bool
}

func New(t Timing) *Sequencer {
	return &Sequencer{Timing: t}
}

func (s *Sequencer) Step() Step { return s.step }

func (s *Sequencer) Elapsed() time.Duration { return s.elapsed }

// Fault is the reason of the last abnormal shutdown; cleared by the next
// start.
func (s *Sequencer) Fault() Fault { return s.fault }

// Transition returns the step change made by the last Tick, if any.
func (s *Sequencer) Transition() (Transition, bool) { return s.last, s.changed }

// Restore puts the sequencer into step with zero time in step.
func (s *Sequencer) Restore(step Step, fault Fault) {
	s.step, s.elapsed, s.fault = step, 0, fault
	s.changed = false
}

// Tick advances time in step, applies Next and returns the step targets.
// While in is unsafe or latched the result is always the safe state.
func (s *Sequencer) Tick(in Inputs, dt time.Duration) Outputs {
	if dt > 0 {
		s.elapsed += dt
	}
	s.changed = false

	next, f := Next(s.step, in, s.elapsed, s.Timing)
	if next != s.step {
		s.last = Transition{From: s.step, To: next, Fault: f}
		s.changed = true
		if next == PreFlush {
			s.fault = FaultNone
		}
		if f != FaultNone {
			s.fault = f
		}
		s.step = next
		s.elapsed = 0
	}

	if in.tripped() {
		return Targets(Tripped)
	}
	return Targets(s.step)
}
