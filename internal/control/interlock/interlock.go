package interlock

import "strings"

// Trip is a bit set of interlock conditions.
type Trip uint32

// Trip conditions, in descending priority.
const (
	TripEmergencyStop Trip = 1 << iota
	TripFire
	TripLeak
	TripMembraneOverpressure
	TripFeedOverpressure
	TripFreeze
	TripOverTemperature
	TripLowSuction
	TripTankOverflow
	TripSensorFault
	TripCommLoss
)

const None Trip = 0

var tripNames = []struct {
	t    Trip
	name string
}{
	{TripEmergencyStop, "EMERGENCY_STOP"},
	{TripFire, "FIRE"},
	{TripLeak, "LEAK"},
	{TripMembraneOverpressure, "MEMBRANE_OVERPRESSURE"},
	{TripFeedOverpressure, "FEED_OVERPRESSURE"},
	{TripFreeze, "FREEZE"},
	{TripOverTemperature, "OVER_TEMPERATURE"},
	{TripLowSuction, "LOW_SUCTION"},
	{TripTankOverflow, "TANK_OVERFLOW"},
	{TripSensorFault, "SENSOR_FAULT"},
	{TripCommLoss, "COMM_LOSS"},
}

// Has reports whether every bit of o is set in t.
func (t Trip) Has(o Trip) bool { return o != 0 && t&o == o }

// Primary returns the highest-priority condition set in t.
func (t Trip) Primary() Trip {
	for _, n := range tripNames {
		if t&n.t != 0 {
			return n.t
		}
	}
	return None
}

// Codes lists the names of every condition in t in priority order.
func (t Trip) Codes() []string {
	var out []string
	for _, n := range tripNames {
		if t&n.t != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// FromCodes rebuilds a Trip from names produced by Codes. Unknown names are
// ignored.
func FromCodes(codes []string) Trip {
	var t Trip
	for _, c := range codes {
		for _, n := range tripNames {
			if n.name == c {
				t |= n.t
			}
		}
	}
	return t
}

func (t Trip) String() string {
	if t == None {
		return "NONE"
	}
	return strings.Join(t.Codes(), "|")
}

// Snapshot is the set of values the interlocks look at in one scan.
type Snapshot struct {
	MembranePressureBar float64
	FeedPressureBar     float64
	SuctionPressureBar  float64
	FeedTemperatureC    float64
	TankLevelPct        float64

	EmergencyStop bool
	FireAlarm     bool
	LeakDetected  bool

	// PumpsRunning gates the low suction check: an idle plant has no suction.
	PumpsRunning bool
	// CriticalSensorFault is set when a pressure transmitter feeding a trip
	// is out of range.
	CriticalSensorFault bool
	CommOK              bool
}

// Limits are the configured trip thresholds.
type Limits struct {
	MaxMembranePressureBar float64 `json:"max_membrane_pressure_bar"`
	MaxFeedPressureBar     float64 `json:"max_feed_pressure_bar"`
	MinSuctionPressureBar  float64 `json:"min_suction_pressure_bar"`
	MinFeedTemperatureC    float64 `json:"min_feed_temperature_c"`
	MaxFeedTemperatureC    float64 `json:"max_feed_temperature_c"`
	MaxTankLevelPct        float64 `json:"max_tank_level_pct"`
}

// DefaultLimits are the seawater RO trip points.
func DefaultLimits() Limits {
	return Limits{
		MaxMembranePressureBar: 65,
		MaxFeedPressureBar:     6,
		MinSuctionPressureBar:  0.5,
		MinFeedTemperatureC:    2,
		MaxFeedTemperatureC:    45,
		MaxTankLevelPct:        98,
	}
}

// Result of one evaluation.
type Result struct {
	Safe    bool `json:"safe"`
	Reason  Trip `json:"reason"`
	Tripped Trip `json:"tripped"`
}

// Evaluate checks s against l. A max limit trips when strictly exceeded, a
// min limit when the value falls strictly below it.
func Evaluate(s Snapshot, l Limits) Result {
	var t Trip
	if s.EmergencyStop {
		t |= TripEmergencyStop
	}
	if s.FireAlarm {
		t |= TripFire
	}
	if s.LeakDetected {
		t |= TripLeak
	}
	if s.MembranePressureBar > l.MaxMembranePressureBar {
		t |= TripMembraneOverpressure
	}
	if s.FeedPressureBar > l.MaxFeedPressureBar {
		t |= TripFeedOverpressure
	}
	if s.FeedTemperatureC < l.MinFeedTemperatureC {
		t |= TripFreeze
	}
	if s.FeedTemperatureC > l.MaxFeedTemperatureC {
		t |= TripOverTemperature
	}
	if s.PumpsRunning && s.SuctionPressureBar < l.MinSuctionPressureBar {
		t |= TripLowSuction
	}
	if s.TankLevelPct > l.MaxTankLevelPct {
		t |= TripTankOverflow
	}
	if s.CriticalSensorFault {
		t |= TripSensorFault
	}
	if !s.CommOK {
		t |= TripCommLoss
	}
	return Result{Safe: t == None, Reason: t.Primary(), Tripped: t}
}
