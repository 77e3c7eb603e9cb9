package plant

import (
	"errors"
	"fmt"
	"math"
	"time"

	"desalination_plant/internal/control/interlock"
	"desalination_plant/internal/control/pid"
	"desalination_plant/internal/control/pumps"
	"desalination_plant/internal/control/sensor"
	"desalination_plant/internal/control/sequencer"
	"desalination_plant/internal/models"
)

// ErrOutOfLimits is wrapped by Limits.Check.
var ErrOutOfLimits = errors.New("setpoint out of limits")

// Limits are the physical bounds of each operator setpoint.
type Limits struct {
	MembranePressureMinBar float64 `json:"membrane_pressure_min_bar"`
	MembranePressureMaxBar float64 `json:"membrane_pressure_max_bar"`
	PermeateFlowMinM3h     float64 `json:"permeate_flow_min_m3h"`
	PermeateFlowMaxM3h     float64 `json:"permeate_flow_max_m3h"`
	PHMin                  float64 `json:"ph_min"`
	PHMax                  float64 `json:"ph_max"`
	ChlorineMinMgL         float64 `json:"chlorine_min_mg_l"`
	ChlorineMaxMgL         float64 `json:"chlorine_max_mg_l"`
}

type bound struct {
	name     string
	v        float64
	min, max float64
}

func (l Limits) bounds(sp models.Setpoints) []bound {
	return []bound{
		{"membrane_pressure_bar", sp.MembranePressureBar, l.MembranePressureMinBar, l.MembranePressureMaxBar},
		{"permeate_flow_m3h", sp.PermeateFlowM3h, l.PermeateFlowMinM3h, l.PermeateFlowMaxM3h},
		{"ph", sp.PH, l.PHMin, l.PHMax},
		{"chlorine_mg_l", sp.ChlorineMgL, l.ChlorineMinMgL, l.ChlorineMaxMgL},
	}
}

// Check returns an error naming the first setpoint outside its limits.
func (l Limits) Check(sp models.Setpoints) error {
	for _, b := range l.bounds(sp) {
		if b.v < b.min || b.v > b.max || math.IsNaN(b.v) {
			return fmt.Errorf("%w: %s %.2f outside [%.2f, %.2f]", ErrOutOfLimits, b.name, b.v, b.min, b.max)
		}
	}
	return nil
}

// Clamp forces every setpoint into its limits.
func (l Limits) Clamp(sp models.Setpoints) models.Setpoints {
	return models.Setpoints{
		MembranePressureBar: clamp(sp.MembranePressureBar, l.MembranePressureMinBar, l.MembranePressureMaxBar),
		PermeateFlowM3h:     clamp(sp.PermeateFlowM3h, l.PermeateFlowMinM3h, l.PermeateFlowMaxM3h),
		PH:                  clamp(sp.PH, l.PHMin, l.PHMax),
		ChlorineMgL:         clamp(sp.ChlorineMgL, l.ChlorineMinMgL, l.ChlorineMaxMgL),
	}
}

// Sensors holds the valid range of every analog transmitter.
type Sensors struct {
	MembranePressure     sensor.Range `json:"membrane_pressure"`
	FeedPressure         sensor.Range `json:"feed_pressure"`
	SuctionPressure      sensor.Range `json:"suction_pressure"`
	DifferentialPressure sensor.Range `json:"differential_pressure"`
	FeedTemperature      sensor.Range `json:"feed_temperature"`
	TankLevel            sensor.Range `json:"tank_level"`
	PermeateFlow         sensor.Range `json:"permeate_flow"`
	PermeateConductivity sensor.Range `json:"permeate_conductivity"`
	PH                   sensor.Range `json:"ph"`
	Chlorine             sensor.Range `json:"chlorine"`
}

// Quality holds the water-quality and fouling alarm limits.
type Quality struct {
	MaxPermeateConductivityUScm float64       `json:"max_permeate_conductivity_us_cm"`
	ConductivityDelay           time.Duration `json:"conductivity_delay"`
	MaxDifferentialPressureBar  float64       `json:"max_differential_pressure_bar"`
	FoulingDelay                time.Duration `json:"fouling_delay"`
	PHDeviation                 float64       `json:"ph_deviation"`
	ChlorineDeviationMgL        float64       `json:"chlorine_deviation_mg_l"`
	DeviationDelay              time.Duration `json:"deviation_delay"`
}

// Config is everything the scan needs besides its inputs.
type Config struct {
	Setpoints  models.Setpoints `json:"setpoints"`
	Limits     Limits           `json:"limits"`
	Sensors    Sensors          `json:"sensors"`
	Interlocks interlock.Limits `json:"interlocks"`
	Timing     sequencer.Timing `json:"timing"`
	Quality    Quality          `json:"quality"`

	PressureLoop pid.Config `json:"pressure_loop"`
	FlowLoop     pid.Config `json:"flow_loop"`
	PHLoop       pid.Config `json:"ph_loop"`
	ChlorineLoop pid.Config `json:"chlorine_loop"`

	FeedPumps        pumps.Config `json:"feed_pumps"`
	HPPumps          pumps.Config `json:"hp_pumps"`
	FeedPumpSpeedPct float64      `json:"feed_pump_speed_pct"`

	// RampRateBarPerSec limits how fast membrane pressure is raised during
	// HP_RAMP; zero disables the ramp.
	RampRateBarPerSec float64 `json:"ramp_rate_bar_per_sec"`
}

// DefaultConfig is a single seawater RO train with two feed pumps and four
// high-pressure pumps.
func DefaultConfig() Config {
	return Config{
		Setpoints: models.Setpoints{
			MembranePressureBar: 55,
			PermeateFlowM3h:     40,
			PH:                  7.5,
			ChlorineMgL:         0.5,
		},
		Limits: Limits{
			MembranePressureMinBar: 40,
			MembranePressureMaxBar: 64,
			PermeateFlowMinM3h:     10,
			PermeateFlowMaxM3h:     60,
			PHMin:                  6.5,
			PHMax:                  8.5,
			ChlorineMinMgL:         0.2,
			ChlorineMaxMgL:         2.0,
		},
		Sensors: Sensors{
			// fallbacks lean towards a trip or a stop
			MembranePressure:     sensor.Range{Min: 0, Max: 80, Fallback: 80},
			FeedPressure:         sensor.Range{Min: 0, Max: 10, Fallback: 10},
			SuctionPressure:      sensor.Range{Min: -1, Max: 6, Fallback: 0},
			DifferentialPressure: sensor.Range{Min: 0, Max: 5, Fallback: 0},
			FeedTemperature:      sensor.Range{Min: -10, Max: 60, Fallback: 25},
			TankLevel:            sensor.Range{Min: 0, Max: 100, Fallback: 95},
			PermeateFlow:         sensor.Range{Min: 0, Max: 100, Fallback: 0},
			PermeateConductivity: sensor.Range{Min: 0, Max: 2000, Fallback: 2000},
			PH:                   sensor.Range{Min: 0, Max: 14, Fallback: 7},
			Chlorine:             sensor.Range{Min: 0, Max: 5, Fallback: 5},
		},
		Interlocks: interlock.DefaultLimits(),
		Timing:     sequencer.DefaultTiming(),
		Quality: Quality{
			MaxPermeateConductivityUScm: 500,
			ConductivityDelay:           10 * time.Second,
			MaxDifferentialPressureBar:  2.5,
			FoulingDelay:                time.Minute,
			PHDeviation:                 0.5,
			ChlorineDeviationMgL:        0.5,
			DeviationDelay:              time.Minute,
		},
		PressureLoop: pid.Config{Kp: 1.0, Ki: 0.3, OutMin: 30, OutMax: 100},
		FlowLoop:     pid.Config{Kp: 1.0, Ki: 0.2, OutMin: 20, OutMax: 100, Reverse: true},
		PHLoop:       pid.Config{Kp: 40, Ki: 5, OutMin: 0, OutMax: 100, Reverse: true},
		ChlorineLoop: pid.Config{Kp: 50, Ki: 5, OutMin: 0, OutMax: 100},
		FeedPumps: pumps.Config{
			Units:                   2,
			RotationInterval:        168 * time.Hour,
			MinDwell:                time.Hour,
			HandoverDelay:           10 * time.Second,
			NominalFlowM3h:          120,
			MinEfficiency:           0.7,
			EfficiencyDelay:         5 * time.Minute,
			MinCheckDrivePct:        30,
			MaxCurrentA:             60,
			OvercurrentDelay:        3 * time.Second,
			MaxDischargePressureBar: 8,
			FeedbackTimeout:         5 * time.Second,
		},
		HPPumps: pumps.Config{
			Units:                   4,
			RotationInterval:        72 * time.Hour,
			MinDwell:                time.Hour,
			HandoverDelay:           15 * time.Second,
			NominalFlowM3h:          100,
			MinEfficiency:           0.75,
			EfficiencyDelay:         5 * time.Minute,
			MinCheckDrivePct:        40,
			MaxCurrentA:             180,
			OvercurrentDelay:        3 * time.Second,
			MaxDischargePressureBar: 70,
			FeedbackTimeout:         5 * time.Second,
		},
		FeedPumpSpeedPct:  100,
		RampRateBarPerSec: 1,
	}
}

// Validate checks the config as a whole, including the setpoints against
// their own limits.
func (c Config) Validate() error {
	if c.Limits.MembranePressureMaxBar >= c.Interlocks.MaxMembranePressureBar {
		return fmt.Errorf("membrane pressure setpoint max %.1f must be below the trip %.1f",
			c.Limits.MembranePressureMaxBar, c.Interlocks.MaxMembranePressureBar)
	}
	for _, b := range c.Limits.bounds(c.Setpoints) {
		if !(b.min < b.max) {
			return fmt.Errorf("limits for %s: min %.2f must be < max %.2f", b.name, b.min, b.max)
		}
	}
	if err := c.Limits.Check(c.Setpoints); err != nil {
		return fmt.Errorf("setpoints: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	loops := map[string]pid.Config{
		"pressure_loop": c.PressureLoop,
		"flow_loop":     c.FlowLoop,
		"ph_loop":       c.PHLoop,
		"chlorine_loop": c.ChlorineLoop,
	}
	for name, lc := range loops {
		if err := lc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := c.FeedPumps.Validate(); err != nil {
		return fmt.Errorf("feed_pumps: %w", err)
	}
	if err := c.HPPumps.Validate(); err != nil {
		return fmt.Errorf("hp_pumps: %w", err)
	}
	if c.FeedPumpSpeedPct <= 0 || c.FeedPumpSpeedPct > 100 {
		return fmt.Errorf("feed pump speed must be in (0,100], got %.1f", c.FeedPumpSpeedPct)
	}
	if c.RampRateBarPerSec < 0 {
		return fmt.Errorf("ramp rate must be >= 0, got %.2f", c.RampRateBarPerSec)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
