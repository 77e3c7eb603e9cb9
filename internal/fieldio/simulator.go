package fieldio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"desalination_plant/internal/plant"
)

// ----------- Process model constants -----------
const (
	SuctionBar         = 1.5   // intake head
	FeedBoostBar       = 2.0   // feed pump boost at full speed
	HPHeadBar          = 72.0  // HP pump head at full speed, valve closed
	OsmoticBar         = 27.0  // seawater osmotic pressure
	PermeabilityM3hBar = 1.45  // permeate per bar of net driving pressure
	FeedTemperatureC   = 22.0  // °C
	RawPH              = 8.1   // seawater pH before acid dosing
	AcidPHDrop         = 1.4   // pH drop at 100 % acid dosing
	ChlorineAtFullMgL  = 2.0   // residual at 100 % dosing
	BaseConductivity   = 220.0 // µS/cm at nominal pressure
	IdleConductivity   = 350.0 // stagnant permeate
	CleanDPBar         = 0.8   // differential pressure of clean membranes
	FoulingBarPerHour  = 0.02  // dp rise while producing
	CleaningBarPerHour = 2.0   // dp recovery while cleaning
	LowSuctionBar      = 0.1   // intake starved
)

const (
	TankVolumeM3        = 500.0
	DemandM3h           = 30.0
	DefaultTankLevelPct = 60.0
	PressureTauSec      = 3.0
	QualityTauSec       = 20.0
	MotorIdleCurrent    = 0.2 // fraction of full-load current at zero speed
	FeedFullLoadA       = 40.0
	HPFullLoadA         = 150.0
	OvercurrentFactor   = 1.6
)

// Faults are the conditions tests and the simulation API inject into the
// model.
type Faults struct {
	Leak          bool `json:"leak"`
	Fire          bool `json:"fire"`
	EmergencyStop bool `json:"emergency_stop"`
	CommLoss      bool `json:"comm_loss"`
	LowSuction    bool `json:"low_suction"`
	// FailedSensor is a sensor tag that reads NaN.
	FailedSensor string `json:"failed_sensor,omitempty"`
	// Pump faults are keyed by the pump run tag, e.g. P_HP_1_RUN.
	PumpWear        map[string]float64 `json:"pump_wear,omitempty"` // remaining efficiency, 0..1
	PumpNoStart     map[string]bool    `json:"pump_no_start,omitempty"`
	PumpOvercurrent map[string]bool    `json:"pump_overcurrent,omitempty"`
}

// ErrInvalidFault is returned by Inject for a fault set naming an unknown
// tag or an out-of-range wear value.
var ErrInvalidFault = errors.New("invalid fault")

// Simulator is a lumped model of one RO train. It reads actuator tags and
// writes sensor tags; the controller never sees its internals.
type Simulator struct {
	tags      *TagTable
	feedUnits int
	hpUnits   int
	feedFlow  float64
	hpFlow    float64

	mu     sync.Mutex
	faults Faults

	membrane  float64
	feed      float64
	tank      float64
	dp        float64
	ph        float64
	chlorine  float64
	conduct   float64
	permeate  float64
	lastCycle time.Time
}

// NewSimulator seeds tags so that the first controller read succeeds.
func NewSimulator(tags *TagTable, cfg *plant.Config) *Simulator {
	s := &Simulator{
		tags:      tags,
		feedUnits: cfg.FeedPumps.Units,
		hpUnits:   cfg.HPPumps.Units,
		feedFlow:  cfg.FeedPumps.NominalFlowM3h,
		hpFlow:    cfg.HPPumps.NominalFlowM3h,
		tank:      DefaultTankLevelPct,
		dp:        CleanDPBar,
		ph:        RawPH,
		conduct:   IdleConductivity,
	}
	s.publish(nil)
	return s
}

// Device returns a TagDevice over the simulator's tags that goes offline
// while a CommLoss fault is injected.
func (s *Simulator) Device() *TagDevice {
	d := NewTagDevice(s.tags, s.feedUnits, s.hpUnits)
	d.Online = func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.faults.CommLoss
	}
	return d
}

// Inject replaces the active fault set. An invalid set leaves the active
// one in place.
func (s *Simulator) Inject(f Faults) error {
	if err := s.check(f); err != nil {
		return err
	}
	s.mu.Lock()
	s.faults = f
	s.mu.Unlock()
	return nil
}

func (s *Simulator) check(f Faults) error {
	if f.FailedSensor != "" {
		if _, ok := s.tags.Read(f.FailedSensor); !ok || s.isPumpRunTag(f.FailedSensor) {
			return fmt.Errorf("%w: unknown sensor %q", ErrInvalidFault, f.FailedSensor)
		}
	}
	for tag, w := range f.PumpWear {
		if !s.isPumpRunTag(tag) {
			return fmt.Errorf("%w: unknown pump %q", ErrInvalidFault, tag)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: wear %.2f for %s outside [0, 1]", ErrInvalidFault, w, tag)
		}
	}
	for _, m := range []map[string]bool{f.PumpNoStart, f.PumpOvercurrent} {
		for tag := range m {
			if !s.isPumpRunTag(tag) {
				return fmt.Errorf("%w: unknown pump %q", ErrInvalidFault, tag)
			}
		}
	}
	return nil
}

func (s *Simulator) isPumpRunTag(tag string) bool {
	for u := 1; u <= s.feedUnits; u++ {
		if tag == PumpRunTag(GroupFeed, u) {
			return true
		}
	}
	for u := 1; u <= s.hpUnits; u++ {
		if tag == PumpRunTag(GroupHP, u) {
			return true
		}
	}
	return false
}

// Faults returns the active fault set.
func (s *Simulator) Faults() Faults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults
}

// Run ticks at the given interval until ctx is canceled.
func (s *Simulator) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if s.lastCycle.IsZero() {
				s.lastCycle = now
				continue
			}
			s.Step(now.Sub(s.lastCycle))
			s.lastCycle = now
		}
	}
}

type pumpRun struct {
	running bool
	speed   float64
}

// Step advances the model by dt.
func (s *Simulator) Step(dt time.Duration) {
	if dt <= 0 {
		return
	}
	f := s.Faults()
	sec := dt.Seconds()

	feedRun := s.readPumps(GroupFeed, s.feedUnits, f)
	hpRun := s.readPumps(GroupHP, s.hpUnits, f)
	inlet := s.flag(TagInletValve)
	valve := s.value(TagConcentrateValve) / 100
	toTank := s.flag(TagPermeateToTank)
	cleaning := s.flag(TagCleaningPump)

	suction := SuctionBar
	if f.LowSuction {
		suction = LowSuctionBar
	}

	feedTarget := suction
	if inlet {
		feedTarget += FeedBoostBar * sq(maxSpeed(feedRun)/100)
	}
	s.feed = lag(s.feed, feedTarget, sec, PressureTauSec)

	hpSpeed := maxSpeed(hpRun)
	membraneTarget := s.feed
	if hpSpeed > 0 {
		membraneTarget += HPHeadBar * sq(hpSpeed/100) * (1 - 0.15*valve)
	}
	s.membrane = lag(s.membrane, membraneTarget, sec, PressureTauSec)

	producing := hpSpeed > 0 && s.membrane > OsmoticBar
	s.permeate = 0
	if producing {
		s.permeate = (s.membrane - OsmoticBar) * PermeabilityM3hBar * (1 - 0.3*valve)
	}

	in := 0.0
	if toTank {
		in = s.permeate
	}
	s.tank += (in - DemandM3h) / TankVolumeM3 * 100 * sec / 3600
	s.tank = math.Max(0, math.Min(100, s.tank))

	switch {
	case cleaning:
		s.dp = math.Max(CleanDPBar, s.dp-CleaningBarPerHour*sec/3600)
	case producing:
		s.dp += FoulingBarPerHour * sec / 3600
	}

	s.ph = lag(s.ph, RawPH-AcidPHDrop*s.value(TagAcidDosing)/100, sec, QualityTauSec)
	s.chlorine = lag(s.chlorine, ChlorineAtFullMgL*s.value(TagChlorineDosing)/100, sec, QualityTauSec)
	condTarget := IdleConductivity
	if producing {
		condTarget = BaseConductivity * 28 / math.Max(1, s.membrane-OsmoticBar)
	}
	s.conduct = lag(s.conduct, condTarget, sec, QualityTauSec)

	s.publish(&f)
	s.publishPumps(GroupFeed, feedRun, s.feedFlow, s.feed, FeedFullLoadA, f)
	s.publishPumps(GroupHP, hpRun, s.hpFlow, s.membrane, HPFullLoadA, f)
}

func (s *Simulator) readPumps(group string, n int, f Faults) []pumpRun {
	out := make([]pumpRun, n)
	for i := range out {
		run := PumpRunTag(group, i+1)
		if s.flag(run) && !f.PumpNoStart[run] {
			out[i] = pumpRun{running: true, speed: s.value(PumpSpeedTag(group, i+1))}
		}
	}
	return out
}

func (s *Simulator) publishPumps(group string, runs []pumpRun, nominal, discharge, fullLoad float64, f Faults) {
	for i, r := range runs {
		u := i + 1
		run := PumpRunTag(group, u)
		if !r.running {
			s.tags.Write(PumpFeedbackTag(group, u), 0)
			s.tags.Write(PumpFlowTag(group, u), 0)
			s.tags.Write(PumpPressureTag(group, u), 0)
			s.tags.Write(PumpCurrentTag(group, u), 0)
			continue
		}
		wear := 1.0
		if w, ok := f.PumpWear[run]; ok {
			wear = w
		}
		current := fullLoad * (MotorIdleCurrent + (1-MotorIdleCurrent)*r.speed/100)
		if f.PumpOvercurrent[run] {
			current *= OvercurrentFactor
		}
		s.tags.Write(PumpFeedbackTag(group, u), 1)
		s.tags.Write(PumpFlowTag(group, u), nominal*r.speed/100*wear)
		s.tags.Write(PumpPressureTag(group, u), discharge)
		s.tags.Write(PumpCurrentTag(group, u), current)
	}
}

// publish writes the process sensors. f may be nil before the first step.
func (s *Simulator) publish(f *Faults) {
	var faults Faults
	if f != nil {
		faults = *f
	}
	suction := SuctionBar
	if faults.LowSuction {
		suction = LowSuctionBar
	}
	vals := map[string]float64{
		TagMembranePressure:     s.membrane,
		TagFeedPressure:         s.feed,
		TagSuctionPressure:      suction,
		TagDifferentialPressure: s.dp,
		TagFeedTemperature:      FeedTemperatureC,
		TagTankLevel:            s.tank,
		TagPermeateFlow:         s.permeate,
		TagPermeateConductivity: s.conduct,
		TagPH:                   s.ph,
		TagChlorine:             s.chlorine,
		TagEmergencyStop:        boolTag(faults.EmergencyStop),
		TagFireAlarm:            boolTag(faults.Fire),
		TagLeakDetected:         boolTag(faults.Leak),
	}
	if faults.FailedSensor != "" {
		if _, ok := vals[faults.FailedSensor]; ok {
			vals[faults.FailedSensor] = math.NaN()
		}
	}
	for k, v := range vals {
		s.tags.Write(k, v)
	}
	if f == nil {
		for _, g := range []struct {
			name string
			n    int
		}{{GroupFeed, s.feedUnits}, {GroupHP, s.hpUnits}} {
			s.publishPumps(g.name, make([]pumpRun, g.n), 0, 0, 0, faults)
		}
	}
}

func (s *Simulator) value(tag string) float64 {
	v, _ := s.tags.Read(tag)
	return v
}

func (s *Simulator) flag(tag string) bool { return s.value(tag) >= 0.5 }

// lag is a first-order response of x towards target.
func lag(x, target, sec, tau float64) float64 {
	if tau <= 0 {
		return target
	}
	a := sec / tau
	if a > 1 {
		a = 1
	}
	return x + (target-x)*a
}

func maxSpeed(runs []pumpRun) float64 {
	var m float64
	for _, r := range runs {
		if r.running && r.speed > m {
			m = r.speed
		}
	}
	return m
}

func sq(x float64) float64 { return x * x }
