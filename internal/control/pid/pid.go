package pid

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Config holds gains and output limits of a single loop.
type Config struct {
	Kp      float64 `json:"kp"`
	Ki      float64 `json:"ki"` // per second
	Kd      float64 `json:"kd"` // seconds
	OutMin  float64 `json:"out_min"`
	OutMax  float64 `json:"out_max"`
	Reverse bool    `json:"reverse"` // output rises when measured rises above setpoint
}

var errNegativeGain = errors.New("pid gains must be >= 0")

// Validate checks that the limits form a non-empty range and gains are sane.
func (c Config) Validate() error {
	if c.Kp < 0 || c.Ki < 0 || c.Kd < 0 {
		return errNegativeGain
	}
	if !(c.OutMin < c.OutMax) {
		return fmt.Errorf("pid output range invalid: min %.3f must be < max %.3f", c.OutMin, c.OutMax)
	}
	return nil
}

// Terms are the contributions of the last update.
type Terms struct {
	P     float64 `json:"p"`
	I     float64 `json:"i"`
	D     float64 `json:"d"`
	Error float64 `json:"error"`
}

// State is the persisted part of a controller.
type State struct {
	Integral  float64 `json:"integral"`
	PrevError float64 `json:"prev_error"`
	Output    float64 `json:"output"`
	Primed    bool    `json:"primed"`
}

// Controller is a positional PID with conditional-integration anti-windup.
// It has no clock of its own: the caller supplies dt on every update.
type Controller struct {
	cfg   Config
	st    State
	terms Terms
}

// New returns a controller whose output starts at OutMin.
func New(cfg Config) Controller {
	return Controller{cfg: cfg, st: State{Output: cfg.OutMin}}
}

func (c *Controller) Config() Config { return c.cfg }

// SetConfig swaps gains/limits without resetting the integral.
func (c *Controller) SetConfig(cfg Config) {
	c.cfg = cfg
	c.st.Output = clamp(c.st.Output, cfg.OutMin, cfg.OutMax)
}

// Update computes a new output. A non-positive dt or a non-finite error
// returns the previous output and leaves the state untouched.
func (c *Controller) Update(setpoint, measured float64, dt time.Duration) float64 {
	if dt <= 0 {
		return c.st.Output
	}
	sec := dt.Seconds()

	e := setpoint - measured
	if !finite(e) {
		return c.st.Output
	}
	if c.cfg.Reverse {
		e = -e
	}

	p := c.cfg.Kp * e
	var d float64
	if c.st.Primed {
		d = c.cfg.Kd * (e - c.st.PrevError) / sec
	}

	integral := c.st.Integral + c.cfg.Ki*e*sec
	if !finite(integral) {
		integral = c.st.Integral
	}
	u := p + integral + d
	// freeze the integral while saturated in the direction of the error
	if (u > c.cfg.OutMax && e > 0) || (u < c.cfg.OutMin && e < 0) {
		integral = c.st.Integral
		u = p + integral + d
	}
	// opposite infinite terms
	if math.IsNaN(u) {
		return c.st.Output
	}

	out := clamp(u, c.cfg.OutMin, c.cfg.OutMax)

	c.st.Integral = integral
	c.st.PrevError = e
	c.st.Output = out
	c.st.Primed = true
	c.terms = Terms{P: p, I: integral, D: d, Error: e}
	return out
}

// Output returns the last computed output.
func (c *Controller) Output() float64 { return c.st.Output }

func (c *Controller) Terms() Terms { return c.terms }

// Reset clears the integral and derivative history; output returns to OutMin.
func (c *Controller) Reset() {
	c.st = State{Output: c.cfg.OutMin}
	c.terms = Terms{}
}

func (c *Controller) Snapshot() State { return c.st }

// Restore loads persisted state, clamping the output into the current limits.
func (c *Controller) Restore(s State) {
	s.Output = clamp(s.Output, c.cfg.OutMin, c.cfg.OutMax)
	c.st = s
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
