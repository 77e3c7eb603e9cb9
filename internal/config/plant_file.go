package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"desalination_plant/internal/control/pid"
	"desalination_plant/internal/control/pumps"
	"desalination_plant/internal/plant"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// LoadPlant reads an INI tuning file over plant.DefaultConfig. Keys are
// <section>.<key>; durations need a unit ("30s", "72h"). An empty path or a
// missing file yields the defaults.
func LoadPlant(path string) (plant.Config, error) {
	pc := plant.DefaultConfig()
	if path == "" {
		return pc, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return pc, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return pc, fmt.Errorf("read plant file %s: %w", path, err)
	}
	v := viper.New()
	if err := v.MergeConfigMap(iniSections(file)); err != nil {
		return pc, fmt.Errorf("load plant file %s: %w", path, err)
	}
	applyPlant(v, &pc)
	if err := pc.Validate(); err != nil {
		return pc, fmt.Errorf("plant file %s: %w", path, err)
	}
	return pc, nil
}

// iniSections turns the file into section -> key -> value so viper can
// address values as "section.key".
func iniSections(f *ini.File) map[string]any {
	out := make(map[string]any)
	for _, sec := range f.Sections() {
		if len(sec.Keys()) == 0 {
			continue
		}
		keys := make(map[string]any, len(sec.Keys()))
		for _, k := range sec.Keys() {
			keys[k.Name()] = k.String()
		}
		if sec.Name() == ini.DefaultSection {
			for k, val := range keys {
				out[k] = val
			}
			continue
		}
		out[sec.Name()] = keys
	}
	return out
}

func applyPlant(v *viper.Viper, pc *plant.Config) {
	floats := map[string]*float64{
		"setpoints.membrane_pressure_bar": &pc.Setpoints.MembranePressureBar,
		"setpoints.permeate_flow_m3h":     &pc.Setpoints.PermeateFlowM3h,
		"setpoints.ph":                    &pc.Setpoints.PH,
		"setpoints.chlorine_mg_l":         &pc.Setpoints.ChlorineMgL,

		"limits.membrane_pressure_min_bar": &pc.Limits.MembranePressureMinBar,
		"limits.membrane_pressure_max_bar": &pc.Limits.MembranePressureMaxBar,
		"limits.permeate_flow_min_m3h":     &pc.Limits.PermeateFlowMinM3h,
		"limits.permeate_flow_max_m3h":     &pc.Limits.PermeateFlowMaxM3h,
		"limits.ph_min":                    &pc.Limits.PHMin,
		"limits.ph_max":                    &pc.Limits.PHMax,
		"limits.chlorine_min_mg_l":         &pc.Limits.ChlorineMinMgL,
		"limits.chlorine_max_mg_l":         &pc.Limits.ChlorineMaxMgL,

		"interlocks.max_membrane_pressure_bar": &pc.Interlocks.MaxMembranePressureBar,
		"interlocks.max_feed_pressure_bar":     &pc.Interlocks.MaxFeedPressureBar,
		"interlocks.min_suction_pressure_bar":  &pc.Interlocks.MinSuctionPressureBar,
		"interlocks.min_feed_temperature_c":    &pc.Interlocks.MinFeedTemperatureC,
		"interlocks.max_feed_temperature_c":    &pc.Interlocks.MaxFeedTemperatureC,
		"interlocks.max_tank_level_pct":        &pc.Interlocks.MaxTankLevelPct,

		"timing.min_feed_pressure_bar":  &pc.Timing.MinFeedPressureBar,
		"timing.ramp_complete_fraction": &pc.Timing.RampCompleteFraction,
		"timing.tank_high_pct":          &pc.Timing.TankHighPct,
		"timing.tank_restart_pct":       &pc.Timing.TankRestartPct,

		"quality.max_permeate_conductivity_us_cm": &pc.Quality.MaxPermeateConductivityUScm,
		"quality.max_differential_pressure_bar":   &pc.Quality.MaxDifferentialPressureBar,
		"quality.ph_deviation":                    &pc.Quality.PHDeviation,
		"quality.chlorine_deviation_mg_l":         &pc.Quality.ChlorineDeviationMgL,

		"control.feed_pump_speed_pct":   &pc.FeedPumpSpeedPct,
		"control.ramp_rate_bar_per_sec": &pc.RampRateBarPerSec,
	}
	durations := map[string]*time.Duration{
		"timing.pre_flush":          &pc.Timing.PreFlush,
		"timing.feed_start_timeout": &pc.Timing.FeedStartTimeout,
		"timing.ramp_timeout":       &pc.Timing.RampTimeout,
		"timing.cleaning_duration":  &pc.Timing.CleaningDuration,
		"timing.shutdown_flush":     &pc.Timing.ShutdownFlush,

		"quality.conductivity_delay": &pc.Quality.ConductivityDelay,
		"quality.fouling_delay":      &pc.Quality.FoulingDelay,
		"quality.deviation_delay":    &pc.Quality.DeviationDelay,
	}
	for key, dst := range floats {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}
	for key, dst := range durations {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	applyLoop(v, "pressure_loop", &pc.PressureLoop)
	applyLoop(v, "flow_loop", &pc.FlowLoop)
	applyLoop(v, "ph_loop", &pc.PHLoop)
	applyLoop(v, "chlorine_loop", &pc.ChlorineLoop)
	applyPumps(v, "feed_pumps", &pc.FeedPumps)
	applyPumps(v, "hp_pumps", &pc.HPPumps)
}

func applyLoop(v *viper.Viper, section string, c *pid.Config) {
	for key, dst := range map[string]*float64{
		"kp": &c.Kp, "ki": &c.Ki, "kd": &c.Kd, "out_min": &c.OutMin, "out_max": &c.OutMax,
	} {
		if k := section + "." + key; v.IsSet(k) {
			*dst = v.GetFloat64(k)
		}
	}
}

func applyPumps(v *viper.Viper, section string, c *pumps.Config) {
	if k := section + ".units"; v.IsSet(k) {
		c.Units = v.GetInt(k)
	}
	for key, dst := range map[string]*float64{
		"nominal_flow_m3h":           &c.NominalFlowM3h,
		"min_efficiency":             &c.MinEfficiency,
		"min_check_drive_pct":        &c.MinCheckDrivePct,
		"max_current_a":              &c.MaxCurrentA,
		"max_discharge_pressure_bar": &c.MaxDischargePressureBar,
	} {
		if k := section + "." + key; v.IsSet(k) {
			*dst = v.GetFloat64(k)
		}
	}
	for key, dst := range map[string]*time.Duration{
		"rotation_interval": &c.RotationInterval,
		"min_dwell":         &c.MinDwell,
		"handover_delay":    &c.HandoverDelay,
		"efficiency_delay":  &c.EfficiencyDelay,
		"overcurrent_delay": &c.OvercurrentDelay,
		"feedback_timeout":  &c.FeedbackTimeout,
	} {
		if k := section + "." + key; v.IsSet(k) {
			*dst = v.GetDuration(k)
		}
	}
}
