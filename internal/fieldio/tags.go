package fieldio

import (
	"fmt"
	"sort"
	"sync"
)

// Analog inputs.
const (
	TagMembranePressure     = "PT_MEMBRANE"
	TagFeedPressure         = "PT_FEED"
	TagSuctionPressure      = "PT_SUCTION"
	TagDifferentialPressure = "PDT_MEMBRANE"
	TagFeedTemperature      = "TT_FEED"
	TagTankLevel            = "LT_PRODUCT_TANK"
	TagPermeateFlow         = "FT_PERMEATE"
	TagPermeateConductivity = "CT_PERMEATE"
	TagPH                   = "AT_PH"
	TagChlorine             = "AT_CHLORINE"
)

// Digital inputs, 1 = active.
const (
	TagEmergencyStop = "ESTOP"
	TagFireAlarm     = "FIRE_ALARM"
	TagLeakDetected  = "LEAK_DETECTED"
)

// Outputs.
const (
	TagCleaningPump     = "P_CIP_RUN"
	TagInletValve       = "XV_INLET"
	TagFlushValve       = "XV_FLUSH"
	TagPermeateToTank   = "XV_PERMEATE_TANK"
	TagConcentrateValve = "FCV_CONCENTRATE"
	TagAcidDosing       = "DP_ACID"
	TagChlorineDosing   = "DP_CHLORINE"
)

// Pump groups as they appear in tag names.
const (
	GroupFeed = "FEED"
	GroupHP   = "HP"
)

// Per-unit pump tags, e.g. P_HP_2_RUN.
func PumpRunTag(group string, unit int) string { return pumpTag(group, unit, "RUN") }
func PumpSpeedTag(group string, unit int) string { return pumpTag(group, unit, "SPEED") }
func PumpFeedbackTag(group string, unit int) string { return pumpTag(group, unit, "RUN_FB") }
func PumpFlowTag(group string, unit int) string { return pumpTag(group, unit, "FLOW") }
func PumpPressureTag(group string, unit int) string { return pumpTag(group, unit, "PRESS") }
func PumpCurrentTag(group string, unit int) string { return pumpTag(group, unit, "CURRENT") }

func pumpTag(group string, unit int, signal string) string {
	return fmt.Sprintf("P_%s_%d_%s", group, unit, signal)
}

// Tags is a named register set shared with the field.
type Tags interface {
	Read(name string) (float64, bool)
	Write(name string, v float64)
}

// TagTable is an in-memory Tags guarded by a mutex.
type TagTable struct {
	mu   sync.RWMutex
	vals map[string]float64
}

func NewTagTable() *TagTable {
	return &TagTable{vals: make(map[string]float64)}
}

func (t *TagTable) Read(name string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vals[name]
	return v, ok
}

func (t *TagTable) Write(name string, v float64) {
	t.mu.Lock()
	t.vals[name] = v
	t.mu.Unlock()
}

// Dump copies every tag, for diagnostics.
func (t *TagTable) Dump() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.vals))
	for k, v := range t.vals {
		out[k] = v
	}
	return out
}

// Names lists the known tags in sorted order.
func (t *TagTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.vals))
	for k := range t.vals {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func boolTag(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
