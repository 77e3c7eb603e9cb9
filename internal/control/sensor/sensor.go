package sensor

import "math"

// Range bounds a transmitter's valid signal. Values outside it are treated
// as a failed transmitter and replaced by Fallback.
type Range struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Fallback float64 `json:"fallback"`
}

// Reading is a conditioned analog value.
type Reading struct {
	Value float64 `json:"value"`
	Raw   float64 `json:"raw"`
	Fault bool    `json:"fault,omitempty"`
}

// Condition range-checks raw.
func (r Range) Condition(raw float64) Reading {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < r.Min || raw > r.Max {
		return Reading{Value: r.Fallback, Raw: raw, Fault: true}
	}
	return Reading{Value: raw, Raw: raw}
}
