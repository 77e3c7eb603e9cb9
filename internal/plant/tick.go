package plant

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"desalination_plant/internal/control/interlock"
	"desalination_plant/internal/control/pid"
	"desalination_plant/internal/control/pumps"
	"desalination_plant/internal/control/sensor"
	"desalination_plant/internal/control/sequencer"
	"desalination_plant/internal/models"
)

// Alarm codes raised by Tick besides sensor faults.
const (
	AlarmConductivityHigh  = "PERMEATE_CONDUCTIVITY_HIGH"
	AlarmMembraneFouling   = "MEMBRANE_FOULING"
	AlarmPHDeviation       = "PH_DEVIATION"
	AlarmChlorineDeviation = "CHLORINE_DEVIATION"
	AlarmPumpsUnavailable  = "PUMPS_UNAVAILABLE"

	sensorAlarmPrefix = "SENSOR_"
)

// Transmitter names, also used in SENSOR_<NAME> alarm codes.
const (
	SensorMembranePressure     = "membrane_pressure"
	SensorFeedPressure         = "feed_pressure"
	SensorSuctionPressure      = "suction_pressure"
	SensorDifferentialPressure = "differential_pressure"
	SensorFeedTemperature      = "feed_temperature"
	SensorTankLevel            = "tank_level"
	SensorPermeateFlow         = "permeate_flow"
	SensorPermeateConductivity = "permeate_conductivity"
	SensorPH                   = "ph"
	SensorChlorine             = "chlorine"
)

// critical transmitters feed a pressure trip; losing one trips the plant
var critical = map[string]bool{
	SensorMembranePressure: true,
	SensorFeedPressure:     true,
	SensorSuctionPressure:  true,
}

// Tick runs one scan. The evaluation order is fixed: condition sensors,
// apply commands, interlocks, pump fault monitors, sequencer, pump rotation,
// PID loops, permeate quality, forced safe state, alarm diff.
func Tick(st *State, cfg *Config, in Inputs, cmds []Command, dt time.Duration) Scan {
	var events []Event
	st.Scans++

	// sensors
	faults := st.condition(cfg, in)

	// commands
	var seqIn sequencer.Inputs
	reset := false
	for _, c := range cmds {
		switch c.Kind {
		case CmdStart:
			seqIn.Start = true
		case CmdStop:
			seqIn.Stop = true
		case CmdClean:
			seqIn.Clean = true
		case CmdReset:
			reset = true
		case CmdSetpoints:
			st.Setpoints = cfg.Limits.Clamp(c.Setpoints)
		}
	}

	// interlocks
	v := st.Values
	snap := interlock.Snapshot{
		MembranePressureBar: v.MembranePressureBar,
		FeedPressureBar:     v.FeedPressureBar,
		SuctionPressureBar:  v.SuctionPressureBar,
		FeedTemperatureC:    v.FeedTemperatureC,
		TankLevelPct:        v.TankLevelPct,
		EmergencyStop:       in.EmergencyStop,
		FireAlarm:           in.FireAlarm,
		LeakDetected:        in.LeakDetected,
		PumpsRunning:        anyRunning(in.FeedPumps) || anyRunning(in.HPPumps),
		CommOK:              in.CommOK,
	}
	for name := range faults {
		if critical[name] {
			snap.CriticalSensorFault = true
		}
	}
	res := interlock.Evaluate(snap, cfg.Interlocks)
	st.Interlock = res
	if fresh := res.Tripped &^ st.Latched; fresh != interlock.None {
		events = append(events, Event{
			Type:        models.EventTrip,
			Description: "Interlock trip: " + fresh.Primary().String(),
			Metadata: map[string]any{
				"reason":                res.Reason.String(),
				"codes":                 res.Tripped.Codes(),
				"step":                  st.Seq.Step().String(),
				"membrane_pressure_bar": v.MembranePressureBar,
				"feed_pressure_bar":     v.FeedPressureBar,
			},
		})
		st.Latched |= res.Tripped
	}
	if reset {
		if res.Safe && st.Latched != interlock.None {
			events = append(events, Event{
				Type:        models.EventAlarmCleared,
				Description: "Trip reset: " + st.Latched.String(),
				Metadata:    map[string]any{"codes": st.Latched.Codes()},
			})
			st.Latched = interlock.None
		}
		st.Feed.ResetFaults()
		st.HP.ResetFaults()
	}
	tripped := !res.Safe || st.Latched != interlock.None

	// pump fault monitors
	events = append(events, pumpEvents(st.Feed.Name, st.Feed.Monitor(in.FeedPumps, dt))...)
	events = append(events, pumpEvents(st.HP.Name, st.HP.Monitor(in.HPPumps, dt))...)

	// sequencer
	seqIn.Reset = reset
	seqIn.Safe = res.Safe
	seqIn.Latched = st.Latched != interlock.None
	seqIn.PumpsAvailable = st.Feed.Available() && st.HP.Available()
	seqIn.CleanRequest = st.CleanRequest
	seqIn.FeedPressureBar = v.FeedPressureBar
	seqIn.MembranePressureBar = v.MembranePressureBar
	seqIn.MembraneSetpointBar = st.Setpoints.MembranePressureBar
	seqIn.TankLevelPct = v.TankLevelPct
	target := st.Seq.Tick(seqIn, dt)
	if tr, ok := st.Seq.Transition(); ok {
		desc := fmt.Sprintf("Step %s -> %s", tr.From, tr.To)
		if tr.Fault != sequencer.FaultNone {
			desc += " (" + string(tr.Fault) + ")"
		}
		events = append(events, Event{
			Type:        models.EventStepChange,
			Description: desc,
			Metadata:    map[string]any{"from": tr.From.String(), "to": tr.To.String(), "fault": string(tr.Fault)},
		})
	}
	if st.Seq.Step() == sequencer.Cleaning {
		st.CleanRequest = false
		st.fouling.Reset()
	}

	// pump rotation
	events = append(events, pumpEvents(st.Feed.Name, st.Feed.Tick(target.FeedPumps, cfg.FeedPumpSpeedPct, dt))...)
	events = append(events, pumpEvents(st.HP.Name, st.HP.Tick(target.HPPumps, 0, dt))...)

	// PID loops
	var out Outputs
	sp := st.Setpoints
	st.pressureSp = sp.MembranePressureBar
	if st.Seq.Step() == sequencer.HPRamp && cfg.RampRateBarPerSec > 0 {
		if !st.pressureOn {
			st.rampSp = v.MembranePressureBar
		}
		st.rampSp = math.Min(st.pressureSp, st.rampSp+cfg.RampRateBarPerSec*dt.Seconds())
		st.pressureSp = st.rampSp
	}
	speed := runLoop(&st.Pressure, &st.pressureOn, target.PressureControl && !faults[SensorMembranePressure],
		st.pressureSp, v.MembranePressureBar, dt)
	st.HP.SetSpeed(speed)

	valve := runLoop(&st.Flow, &st.flowOn, target.Dosing && !faults[SensorPermeateFlow], sp.PermeateFlowM3h, v.PermeateFlowM3h, dt)
	switch {
	case st.flowOn:
		out.ConcentrateValvePct = valve
	case target.ConcentrateValve:
		out.ConcentrateValvePct = 100
	}
	out.AcidDosingPct = runLoop(&st.PH, &st.phOn, target.Dosing && !faults[SensorPH], sp.PH, v.PH, dt)
	out.ChlorineDosingPct = runLoop(&st.Chlorine, &st.chlorineOn, target.Dosing && !faults[SensorChlorine],
		sp.ChlorineMgL, v.ChlorineMgL, dt)

	// permeate quality and fouling
	st.Divert = st.conductivity.Update(target.PermeateToTank && v.PermeateConductivityUScm > cfg.Quality.MaxPermeateConductivityUScm, dt)
	if st.fouling.Update(target.HPPumps && v.DifferentialPressureBar > cfg.Quality.MaxDifferentialPressureBar, dt) {
		st.CleanRequest = true
	}
	phDev := st.phDev.Update(st.phOn && math.Abs(v.PH-sp.PH) > cfg.Quality.PHDeviation, dt)
	clDev := st.chlorineDev.Update(st.chlorineOn && math.Abs(v.ChlorineMgL-sp.ChlorineMgL) > cfg.Quality.ChlorineDeviationMgL, dt)

	out.FeedPumps = commands(st.Feed)
	out.HPPumps = commands(st.HP)
	out.CleaningPump = target.CleaningPump
	out.InletValve = target.InletValve
	out.FlushValve = target.FlushValve
	out.PermeateToTank = target.PermeateToTank && !st.Divert

	// forced safe state
	if tripped {
		st.Feed.Stop()
		st.HP.Stop()
		st.Pressure.Reset()
		st.Flow.Reset()
		st.PH.Reset()
		st.Chlorine.Reset()
		st.pressureOn, st.flowOn, st.phOn, st.chlorineOn = false, false, false, false
		out = SafeOutputs(len(st.Feed.Units), len(st.HP.Units))
	}

	if out.PermeateToTank && dt > 0 {
		st.ProducedM3 += v.PermeateFlowM3h * dt.Hours()
	}

	// alarms
	want := map[string]string{}
	for name := range faults {
		want[sensorAlarmPrefix+strings.ToUpper(name)] = models.EventSensorFault
	}
	if st.Divert {
		want[AlarmConductivityHigh] = models.EventAlarm
	}
	if st.CleanRequest {
		want[AlarmMembraneFouling] = models.EventAlarm
	}
	if phDev {
		want[AlarmPHDeviation] = models.EventAlarm
	}
	if clDev {
		want[AlarmChlorineDeviation] = models.EventAlarm
	}
	if !seqIn.PumpsAvailable {
		want[AlarmPumpsUnavailable] = models.EventAlarm
	}
	events = append(events, st.diffAlarms(want)...)

	st.Outputs = out
	return Scan{Outputs: out, Events: events}
}

// condition range-checks every analog input into st.Values and returns the
// set of faulted transmitters.
func (st *State) condition(cfg *Config, in Inputs) map[string]bool {
	faults := map[string]bool{}
	read := func(name string, r sensor.Range, raw float64) float64 {
		rd := r.Condition(raw)
		if rd.Fault {
			faults[name] = true
		}
		return rd.Value
	}
	s := cfg.Sensors
	st.Values = models.ProcessValues{
		MembranePressureBar:      read(SensorMembranePressure, s.MembranePressure, in.MembranePressureBar),
		FeedPressureBar:          read(SensorFeedPressure, s.FeedPressure, in.FeedPressureBar),
		SuctionPressureBar:       read(SensorSuctionPressure, s.SuctionPressure, in.SuctionPressureBar),
		DifferentialPressureBar:  read(SensorDifferentialPressure, s.DifferentialPressure, in.DifferentialPressureBar),
		FeedTemperatureC:         read(SensorFeedTemperature, s.FeedTemperature, in.FeedTemperatureC),
		TankLevelPct:             read(SensorTankLevel, s.TankLevel, in.TankLevelPct),
		PermeateFlowM3h:          read(SensorPermeateFlow, s.PermeateFlow, in.PermeateFlowM3h),
		PermeateConductivityUScm: read(SensorPermeateConductivity, s.PermeateConductivity, in.PermeateConductivityUScm),
		PH:                       read(SensorPH, s.PH, in.PH),
		ChlorineMgL:              read(SensorChlorine, s.Chlorine, in.ChlorineMgL),
	}
	st.SensorFaults = st.SensorFaults[:0]
	for name := range faults {
		st.SensorFaults = append(st.SensorFaults, name)
	}
	sort.Strings(st.SensorFaults)
	return faults
}

// diffAlarms raises and clears alarms so that st.Alarms equals want.
func (st *State) diffAlarms(want map[string]string) []Event {
	var events []Event
	for _, code := range sortedKeys(want) {
		if _, active := st.Alarms[code]; active {
			continue
		}
		typ := want[code]
		st.Alarms[code] = typ
		events = append(events, Event{
			Type:        typ,
			Description: "Alarm raised: " + code,
			Metadata:    map[string]any{"code": code},
		})
	}
	for _, code := range sortedKeys(st.Alarms) {
		if _, still := want[code]; still {
			continue
		}
		delete(st.Alarms, code)
		events = append(events, Event{
			Type:        models.EventAlarmCleared,
			Description: "Alarm cleared: " + code,
			Metadata:    map[string]any{"code": code},
		})
	}
	return events
}

// runLoop updates c while enabled and resets it on the enabling edge. A
// disabled loop reports zero output.
func runLoop(c *pid.Controller, on *bool, enabled bool, setpoint, measured float64, dt time.Duration) float64 {
	if !enabled {
		if *on {
			c.Reset()
		}
		*on = false
		return 0
	}
	if !*on {
		c.Reset()
		*on = true
	}
	return c.Update(setpoint, measured, dt)
}

func commands(g *pumps.Group) []PumpCommand {
	out := make([]PumpCommand, len(g.Units))
	for i, u := range g.Units {
		out[i] = PumpCommand{Run: u.Commanded, SpeedPct: u.SpeedPct}
	}
	return out
}

func pumpEvents(group string, in []pumps.Event) []Event {
	out := make([]Event, 0, len(in))
	for _, e := range in {
		var typ string
		switch e.Kind {
		case pumps.EventFault:
			typ = models.EventFault
		case pumps.EventMaintenance:
			typ = models.EventMaintenance
		default:
			typ = models.EventRotation
		}
		meta := map[string]any{"group": group, "unit": e.Unit}
		if e.From != 0 {
			meta["from"] = e.From
		}
		if e.Fault != pumps.FaultNone {
			meta["fault"] = string(e.Fault)
		}
		out = append(out, Event{
			Type:        typ,
			Description: fmt.Sprintf("%s pump %d: %s", group, e.Unit, e.Detail),
			Metadata:    meta,
		})
	}
	return out
}

func anyRunning(fb []pumps.Feedback) bool {
	for _, f := range fb {
		if f.Running {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
