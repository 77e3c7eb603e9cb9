package pumps

import (
	"fmt"
	"time"

	"desalination_plant/internal/control/timer"
)

// FaultCode identifies why a unit was taken out of service.
type FaultCode string

const (
	FaultNone            FaultCode = ""
	FaultOvercurrent     FaultCode = "OVERCURRENT"
	FaultOverpressure    FaultCode = "DISCHARGE_OVERPRESSURE"
	FaultNoRunFeedback   FaultCode = "NO_RUN_FEEDBACK"
	FaultRestoredLatched FaultCode = "LATCHED"
)

// Config tunes one group of identical pumps.
type Config struct {
	Units int `json:"units"`

	RotationInterval time.Duration `json:"rotation_interval"`
	MinDwell         time.Duration `json:"min_dwell"`
	HandoverDelay    time.Duration `json:"handover_delay"`

	NominalFlowM3h   float64       `json:"nominal_flow_m3h"`
	MinEfficiency    float64       `json:"min_efficiency"`
	EfficiencyDelay  time.Duration `json:"efficiency_delay"`
	MinCheckDrivePct float64       `json:"min_check_drive_pct"`

	MaxCurrentA             float64       `json:"max_current_a"`
	OvercurrentDelay        time.Duration `json:"overcurrent_delay"`
	MaxDischargePressureBar float64       `json:"max_discharge_pressure_bar"`
	FeedbackTimeout         time.Duration `json:"feedback_timeout"`
}

// Validate rejects configurations the group cannot run with.
func (c Config) Validate() error {
	if c.Units < 1 {
		return fmt.Errorf("pump group needs at least one unit, got %d", c.Units)
	}
	if c.NominalFlowM3h <= 0 {
		return fmt.Errorf("nominal flow must be > 0, got %.2f", c.NominalFlowM3h)
	}
	if c.RotationInterval > 0 && c.RotationInterval < c.MinDwell {
		return fmt.Errorf("rotation interval %v shorter than min dwell %v", c.RotationInterval, c.MinDwell)
	}
	return nil
}

// Feedback is what the field reports for one unit.
type Feedback struct {
	Running              bool    `json:"running"`
	FlowM3h              float64 `json:"flow_m3h"`
	DischargePressureBar float64 `json:"discharge_pressure_bar"`
	CurrentA             float64 `json:"current_a"`
}

// Unit is the controller's view of one pump.
type Unit struct {
	ID             int       `json:"id"`
	Commanded      bool      `json:"commanded"`
	SpeedPct       float64   `json:"speed_pct"`
	Running        bool      `json:"running"`
	RuntimeHours   float64   `json:"runtime_hours"`
	Efficiency     float64   `json:"efficiency"`
	Faulted        bool      `json:"faulted"`
	Fault          FaultCode `json:"fault,omitempty"`
	MaintenanceDue bool      `json:"maintenance_due"`

	effLow      timer.OnDelay
	overcurrent timer.OnDelay
	noFeedback  timer.OnDelay
}

// EventKind classifies group events.
type EventKind string

const (
	EventRotation    EventKind = "ROTATION"
	EventFault       EventKind = "FAULT"
	EventMaintenance EventKind = "MAINTENANCE"
)

// Event is emitted by Monitor and Tick for the alarm/event log.
type Event struct {
	Kind   EventKind
	Unit   int
	From   int
	Fault  FaultCode
	Detail string
}

// SelectNext returns the index of the healthy unit with the fewest runtime
// hours, ties going to the lower index. The unit at exclude is skipped; pass
// -1 to consider all units.
func SelectNext(units []Unit, exclude int) (int, bool) {
	best := -1
	for i := range units {
		if i == exclude || units[i].Faulted {
			continue
		}
		if best < 0 || units[i].RuntimeHours < units[best].RuntimeHours {
			best = i
		}
	}
	return best, best >= 0
}

// Group runs one duty pump out of Units, rotating by runtime.
type Group struct {
	Name  string
	cfg   Config
	Units []Unit

	duty         int
	onDuty       time.Duration
	handoverFrom int
	handoverLeft time.Duration
}

func NewGroup(name string, cfg Config) *Group {
	g := &Group{Name: name, cfg: cfg, duty: -1, handoverFrom: -1}
	g.Units = make([]Unit, cfg.Units)
	for i := range g.Units {
		g.Units[i].ID = i + 1
		g.Units[i].effLow.Preset = cfg.EfficiencyDelay
		g.Units[i].overcurrent.Preset = cfg.OvercurrentDelay
		g.Units[i].noFeedback.Preset = cfg.FeedbackTimeout
	}
	return g
}

// Duty returns the 1-based id of the duty unit, or 0 when there is none.
func (g *Group) Duty() int {
	if g.duty < 0 {
		return 0
	}
	return g.Units[g.duty].ID
}

// OnDuty is the time the current duty unit has run under demand.
func (g *Group) OnDuty() time.Duration { return g.onDuty }

// Available reports whether at least one unit can run.
func (g *Group) Available() bool {
	_, ok := SelectNext(g.Units, -1)
	return ok
}

// AnyRunning reports running feedback on any unit.
func (g *Group) AnyRunning() bool {
	for _, u := range g.Units {
		if u.Running {
			return true
		}
	}
	return false
}

// Monitor ingests feedback, accumulates runtime and runs the fault checks.
// Faults stop the unit immediately; low efficiency only flags maintenance.
func (g *Group) Monitor(fb []Feedback, dt time.Duration) []Event {
	var events []Event
	for i := range g.Units {
		u := &g.Units[i]
		var f Feedback
		if i < len(fb) {
			f = fb[i]
		}
		u.Running = f.Running
		if f.Running && dt > 0 {
			u.RuntimeHours += dt.Hours()
		}
		if u.Faulted {
			continue
		}

		if g.cfg.FeedbackTimeout > 0 && u.noFeedback.Update(u.Commanded && !f.Running, dt) {
			events = append(events, g.fault(u, FaultNoRunFeedback, "commanded on without running feedback"))
			continue
		}
		if u.overcurrent.Update(f.Running && f.CurrentA > g.cfg.MaxCurrentA, dt) {
			events = append(events, g.fault(u, FaultOvercurrent, fmt.Sprintf("current %.1f A above %.1f A", f.CurrentA, g.cfg.MaxCurrentA)))
			continue
		}
		if f.Running && f.DischargePressureBar > g.cfg.MaxDischargePressureBar {
			events = append(events, g.fault(u, FaultOverpressure, fmt.Sprintf("discharge %.1f bar above %.1f bar", f.DischargePressureBar, g.cfg.MaxDischargePressureBar)))
			continue
		}

		checking := f.Running && u.SpeedPct >= g.cfg.MinCheckDrivePct && u.SpeedPct > 0
		if checking {
			u.Efficiency = (f.FlowM3h / g.cfg.NominalFlowM3h) / (u.SpeedPct / 100)
		}
		if u.effLow.Update(checking && u.Efficiency < g.cfg.MinEfficiency, dt) && !u.MaintenanceDue {
			u.MaintenanceDue = true
			events = append(events, Event{
				Kind:   EventMaintenance,
				Unit:   u.ID,
				Detail: fmt.Sprintf("efficiency %.2f below %.2f", u.Efficiency, g.cfg.MinEfficiency),
			})
		}
	}
	return events
}

func (g *Group) fault(u *Unit, code FaultCode, detail string) Event {
	u.Faulted = true
	u.Fault = code
	u.Commanded = false
	u.SpeedPct = 0
	return Event{Kind: EventFault, Unit: u.ID, Fault: code, Detail: detail}
}

// Tick selects the duty unit and writes unit commands. Must run after Monitor
// in the same scan so that freshly faulted units are replaced at once.
func (g *Group) Tick(demand bool, speedPct float64, dt time.Duration) []Event {
	var events []Event

	if g.handoverFrom >= 0 {
		g.handoverLeft -= dt
		if g.handoverLeft <= 0 || g.Units[g.handoverFrom].Faulted || !demand {
			g.handoverFrom, g.handoverLeft = -1, 0
		}
	}

	if g.duty < 0 || g.Units[g.duty].Faulted {
		prev := g.duty
		next, ok := SelectNext(g.Units, -1)
		if !ok {
			g.duty = -1
		} else if next != prev {
			g.duty = next
			g.onDuty = 0
			if prev >= 0 {
				events = append(events, Event{
					Kind:   EventRotation,
					Unit:   g.Units[next].ID,
					From:   g.Units[prev].ID,
					Detail: "duty replaced after fault",
				})
			}
		}
	}

	if demand && g.duty >= 0 {
		if dt > 0 {
			g.onDuty += dt
		}
		if g.cfg.RotationInterval > 0 && g.onDuty >= g.cfg.RotationInterval && g.onDuty >= g.cfg.MinDwell {
			if next, ok := SelectNext(g.Units, g.duty); ok {
				events = append(events, Event{
					Kind:   EventRotation,
					Unit:   g.Units[next].ID,
					From:   g.Units[g.duty].ID,
					Detail: fmt.Sprintf("rotation after %v on duty", g.onDuty.Round(time.Second)),
				})
				if g.cfg.HandoverDelay > 0 {
					g.handoverFrom = g.duty
					g.handoverLeft = g.cfg.HandoverDelay
				}
				g.duty = next
			}
			g.onDuty = 0
		}
	}

	for i := range g.Units {
		u := &g.Units[i]
		on := demand && !u.Faulted && (i == g.duty || i == g.handoverFrom)
		u.Commanded = on
		if on {
			u.SpeedPct = speedPct
		} else {
			u.SpeedPct = 0
		}
	}
	return events
}

// SetSpeed updates the speed of every commanded unit. It lets a loop that
// runs after Tick drive the group.
func (g *Group) SetSpeed(speedPct float64) {
	for i := range g.Units {
		if g.Units[i].Commanded {
			g.Units[i].SpeedPct = speedPct
		}
	}
}

// Stop drops every command and any handover in progress.
func (g *Group) Stop() {
	g.handoverFrom, g.handoverLeft = -1, 0
	for i := range g.Units {
		g.Units[i].Commanded = false
		g.Units[i].SpeedPct = 0
	}
}

// ResetFaults clears fault and maintenance flags (operator acknowledge).
func (g *Group) ResetFaults() {
	for i := range g.Units {
		u := &g.Units[i]
		u.Faulted = false
		u.Fault = FaultNone
		u.MaintenanceDue = false
		u.effLow.Reset()
		u.overcurrent.Reset()
		u.noFeedback.Reset()
	}
}

// Record is the persisted part of a unit.
type Record struct {
	Group          string    `json:"group" db:"pump_group"`
	ID             int       `json:"id" db:"unit_id"`
	RuntimeHours   float64   `json:"runtime_hours" db:"runtime_hours"`
	Faulted        bool      `json:"faulted" db:"faulted"`
	Fault          string    `json:"fault" db:"fault_code"`
	MaintenanceDue bool      `json:"maintenance_due" db:"maintenance_due"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Records exports the persisted view of every unit.
func (g *Group) Records() []Record {
	out := make([]Record, 0, len(g.Units))
	for _, u := range g.Units {
		out = append(out, Record{
			Group:          g.Name,
			ID:             u.ID,
			RuntimeHours:   u.RuntimeHours,
			Faulted:        u.Faulted,
			Fault:          string(u.Fault),
			MaintenanceDue: u.MaintenanceDue,
		})
	}
	return out
}

// Restore applies persisted records; records for other groups or unknown
// units are ignored.
func (g *Group) Restore(recs []Record) {
	for _, r := range recs {
		if r.Group != g.Name || r.ID < 1 || r.ID > len(g.Units) {
			continue
		}
		u := &g.Units[r.ID-1]
		u.RuntimeHours = r.RuntimeHours
		u.Faulted = r.Faulted
		u.Fault = FaultCode(r.Fault)
		if u.Faulted && u.Fault == FaultNone {
			u.Fault = FaultRestoredLatched
		}
		u.MaintenanceDue = r.MaintenanceDue
	}
}
