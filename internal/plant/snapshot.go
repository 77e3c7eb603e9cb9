package plant

import (
	"desalination_plant/internal/control/interlock"
	"desalination_plant/internal/control/pid"
	"desalination_plant/internal/control/pumps"
	"desalination_plant/internal/models"
)

// Snapshot copies st into the HMI/persistence view. The result shares no
// memory with st. UpdatedAt is left to the caller.
func Snapshot(st *State) models.PlantState {
	v := st.Values
	sp := st.Setpoints

	snap := models.PlantState{
		ID:          1,
		Step:        st.Seq.Step().String(),
		StepSeconds: st.Seq.Elapsed().Seconds(),
		Fault:       string(st.Seq.Fault()),
		Safe:        st.Interlock.Safe,
		TripLatched: st.Latched != interlock.None,
		Setpoints:   sp,
		Process:     v,
		Outputs: models.OutputValues{
			PumpEnable:          st.Outputs.PumpEnable(),
			CleaningPump:        st.Outputs.CleaningPump,
			InletValve:          st.Outputs.InletValve,
			FlushValve:          st.Outputs.FlushValve,
			PermeateToTank:      st.Outputs.PermeateToTank,
			ConcentrateValvePct: st.Outputs.ConcentrateValvePct,
			HPSpeedPct:          hpSpeed(st.Outputs.HPPumps),
			AcidDosingPct:       st.Outputs.AcidDosingPct,
			ChlorineDosingPct:   st.Outputs.ChlorineDosingPct,
		},
		ProducedM3: st.ProducedM3,
		Scans:      st.Scans,
	}
	if snap.TripLatched {
		snap.TripReason = st.Latched.Primary().String()
		snap.TripCodes = st.Latched.Codes()
	}

	snap.Pumps = append(pumpStatus(st.Feed), pumpStatus(st.HP)...)
	snap.Loops = []models.LoopStatus{
		loopStatus("membrane_pressure", &st.Pressure, st.pressureOn, st.pressureSp, v.MembranePressureBar),
		loopStatus("permeate_flow", &st.Flow, st.flowOn, sp.PermeateFlowM3h, v.PermeateFlowM3h),
		loopStatus("ph", &st.PH, st.phOn, sp.PH, v.PH),
		loopStatus("chlorine", &st.Chlorine, st.chlorineOn, sp.ChlorineMgL, v.ChlorineMgL),
	}
	if len(st.Alarms) > 0 {
		snap.Alarms = sortedKeys(st.Alarms)
	}
	if len(st.SensorFaults) > 0 {
		snap.SensorFaults = append([]string(nil), st.SensorFaults...)
	}
	return snap
}

func pumpStatus(g *pumps.Group) []models.PumpStatus {
	duty := g.Duty()
	out := make([]models.PumpStatus, 0, len(g.Units))
	for _, u := range g.Units {
		out = append(out, models.PumpStatus{
			Group:          g.Name,
			ID:             u.ID,
			Duty:           u.ID == duty,
			Commanded:      u.Commanded,
			Running:        u.Running,
			SpeedPct:       u.SpeedPct,
			RuntimeHours:   u.RuntimeHours,
			Efficiency:     u.Efficiency,
			Faulted:        u.Faulted,
			Fault:          string(u.Fault),
			MaintenanceDue: u.MaintenanceDue,
		})
	}
	return out
}

func loopStatus(name string, c *pid.Controller, on bool, setpoint, measured float64) models.LoopStatus {
	t := c.Terms()
	ls := models.LoopStatus{
		Name:     name,
		Enabled:  on,
		Setpoint: setpoint,
		Measured: measured,
	}
	if on {
		ls.Output = c.Output()
		ls.P, ls.I, ls.D = t.P, t.I, t.D
	}
	return ls
}

func hpSpeed(cmds []PumpCommand) float64 {
	var max float64
	for _, c := range cmds {
		if c.Run && c.SpeedPct > max {
			max = c.SpeedPct
		}
	}
	return max
}
