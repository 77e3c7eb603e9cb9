package pumps

import (
	"testing"
	"time"
)

const scan = 100 * time.Millisecond

func testConfig() Config {
	return Config{
		Units:                   3,
		RotationInterval:        10 * time.Second,
		MinDwell:                5 * time.Second,
		HandoverDelay:           time.Second,
		NominalFlowM3h:          100,
		MinEfficiency:           0.6,
		EfficiencyDelay:         2 * time.Second,
		MinCheckDrivePct:        20,
		MaxCurrentA:             100,
		OvercurrentDelay:        500 * time.Millisecond,
		MaxDischargePressureBar: 70,
		FeedbackTimeout:         time.Second,
	}
}

// healthyFeedback reports every commanded unit as running at nominal efficiency.
func healthyFeedback(g *Group) []Feedback {
	fb := make([]Feedback, len(g.Units))
	for i, u := range g.Units {
		if u.Commanded {
			fb[i] = Feedback{Running: true, FlowM3h: g.cfg.NominalFlowM3h * u.SpeedPct / 100, DischargePressureBar: 55, CurrentA: 60}
		}
	}
	return fb
}

func scanGroup(g *Group, demand bool, speed float64, n int, fb func(*Group) []Feedback) []Event {
	var all []Event
	for i := 0; i < n; i++ {
		all = append(all, g.Monitor(fb(g), scan)...)
		all = append(all, g.Tick(demand, speed, scan)...)
	}
	return all
}

func TestSelectNext_LowestRuntimeTiesByIndex(t *testing.T) {
	cases := []struct {
		name    string
		units   []Unit
		exclude int
		want    int
		wantOK  bool
	}{
		{"lowest runtime wins", []Unit{{RuntimeHours: 30}, {RuntimeHours: 10}, {RuntimeHours: 20}}, -1, 1, true},
		{"tie goes to lowest index", []Unit{{RuntimeHours: 10}, {RuntimeHours: 5}, {RuntimeHours: 5}}, -1, 1, true},
		{"faulted skipped", []Unit{{RuntimeHours: 30}, {RuntimeHours: 1, Faulted: true}, {RuntimeHours: 20}}, -1, 2, true},
		{"exclude skipped", []Unit{{RuntimeHours: 1}, {RuntimeHours: 2}, {RuntimeHours: 3}}, 0, 1, true},
		{"all faulted", []Unit{{Faulted: true}, {Faulted: true}}, -1, -1, false},
		{"only excluded healthy", []Unit{{RuntimeHours: 1}, {Faulted: true}}, 0, -1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := SelectNext(tc.units, tc.exclude)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("SelectNext = (%d, %v), want (%d, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := testConfig()
	bad.Units = 0
	if bad.Validate() == nil {
		t.Fatalf("expected error for zero units")
	}
	bad = testConfig()
	bad.RotationInterval = time.Second
	if bad.Validate() == nil {
		t.Fatalf("expected error when rotation interval < dwell")
	}
}

func TestGroup_InitialDutyIsLowestRuntime(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Units[0].RuntimeHours = 50
	g.Units[1].RuntimeHours = 20
	g.Units[2].RuntimeHours = 20

	g.Tick(true, 80, scan)
	if g.Duty() != 2 {
		t.Fatalf("expected unit 2 on duty, got %d", g.Duty())
	}
	if !g.Units[1].Commanded || g.Units[1].SpeedPct != 80 {
		t.Fatalf("duty unit not commanded: %+v", g.Units[1])
	}
	if g.Units[0].Commanded || g.Units[2].Commanded {
		t.Fatalf("standby units must stay off")
	}
}

func TestGroup_NoDemandStopsAll(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Tick(true, 70, scan)
	g.Tick(false, 70, scan)
	for _, u := range g.Units {
		if u.Commanded || u.SpeedPct != 0 {
			t.Fatalf("unit %d still commanded without demand", u.ID)
		}
	}
}

func TestGroup_RotationWithGracefulHandover(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Units[0].RuntimeHours = 0
	g.Units[1].RuntimeHours = 5
	g.Units[2].RuntimeHours = 10

	// 99 scans: still below the 10 s interval
	ev := scanGroup(g, true, 75, 99, healthyFeedback)
	if len(ev) != 0 || g.Duty() != 1 {
		t.Fatalf("unexpected rotation before interval: duty=%d events=%+v", g.Duty(), ev)
	}

	ev = scanGroup(g, true, 75, 1, healthyFeedback)
	if len(ev) != 1 || ev[0].Kind != EventRotation || ev[0].From != 1 || ev[0].Unit != 2 {
		t.Fatalf("expected rotation 1→2, got %+v", ev)
	}
	if !g.Units[0].Commanded || !g.Units[1].Commanded {
		t.Fatalf("outgoing and incoming must both run during handover")
	}

	// handover delay is 1 s
	scanGroup(g, true, 75, 10, healthyFeedback)
	if g.Units[0].Commanded {
		t.Fatalf("outgoing unit must stop after handover delay")
	}
	if !g.Units[1].Commanded {
		t.Fatalf("incoming unit must keep running")
	}
}

func TestGroup_RotationHonoursMinDwell(t *testing.T) {
	cfg := testConfig()
	cfg.RotationInterval = 5 * time.Second
	cfg.MinDwell = 5 * time.Second
	g := NewGroup("hp", cfg)

	ev := scanGroup(g, true, 75, 49, healthyFeedback)
	if len(ev) != 0 {
		t.Fatalf("rotated before min dwell: %+v", ev)
	}
}

func TestGroup_FaultedDutyReplacedImmediately(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Tick(true, 80, scan)
	if g.Duty() != 1 {
		t.Fatalf("expected duty 1, got %d", g.Duty())
	}

	overcurrent := func(g *Group) []Feedback {
		fb := healthyFeedback(g)
		fb[0].CurrentA = 150
		return fb
	}
	ev := scanGroup(g, true, 80, 6, overcurrent)

	var fault, rotation bool
	for _, e := range ev {
		switch e.Kind {
		case EventFault:
			fault = e.Unit == 1 && e.Fault == FaultOvercurrent
		case EventRotation:
			rotation = e.From == 1 && e.Unit == 2
		}
	}
	if !fault || !rotation {
		t.Fatalf("expected overcurrent fault and rotation, got %+v", ev)
	}
	if g.Units[0].Commanded {
		t.Fatalf("faulted unit must be stopped")
	}
	if !g.Units[1].Commanded {
		t.Fatalf("replacement must run without handover delay")
	}
}

func TestMonitor_LowEfficiencyFlagsMaintenanceOnly(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Tick(true, 80, scan)

	worn := func(g *Group) []Feedback {
		fb := healthyFeedback(g)
		fb[0].FlowM3h = 30 // 0.3/0.8 = 0.375
		return fb
	}
	ev := scanGroup(g, true, 80, 25, worn)

	maint := 0
	for _, e := range ev {
		if e.Kind == EventMaintenance {
			maint++
		}
		if e.Kind == EventFault {
			t.Fatalf("low efficiency must not fault the unit: %+v", e)
		}
	}
	if maint != 1 {
		t.Fatalf("expected one maintenance event, got %d", maint)
	}
	u := g.Units[0]
	if !u.MaintenanceDue || u.Faulted || !u.Commanded {
		t.Fatalf("unexpected unit state: %+v", u)
	}
}

func TestMonitor_EfficiencyIgnoredAtLowDrive(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Tick(true, 10, scan)

	starved := func(g *Group) []Feedback {
		fb := healthyFeedback(g)
		fb[0].FlowM3h = 0.1
		return fb
	}
	scanGroup(g, true, 10, 50, starved)
	if g.Units[0].MaintenanceDue {
		t.Fatalf("efficiency must not be judged below MinCheckDrivePct")
	}
}

func TestMonitor_DischargeOverpressureFaults(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Tick(true, 80, scan)

	fb := healthyFeedback(g)
	fb[0].DischargePressureBar = 71
	ev := g.Monitor(fb, scan)
	if len(ev) != 1 || ev[0].Fault != FaultOverpressure {
		t.Fatalf("expected overpressure fault, got %+v", ev)
	}
}

func TestMonitor_NoRunFeedbackFaults(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Tick(true, 80, scan)

	dead := func(*Group) []Feedback { return make([]Feedback, 3) }
	ev := scanGroup(g, true, 80, 10, dead)
	if len(ev) == 0 || ev[0].Kind != EventFault || ev[0].Fault != FaultNoRunFeedback {
		t.Fatalf("expected no-feedback fault, got %+v", ev)
	}
}

func TestMonitor_RuntimeAccumulatesOnFeedback(t *testing.T) {
	g := NewGroup("hp", testConfig())
	fb := []Feedback{{Running: true}, {}, {Running: true}}
	for i := 0; i < 36000; i++ {
		g.Monitor(fb, scan)
	}
	if h := g.Units[0].RuntimeHours; h < 0.999 || h > 1.001 {
		t.Fatalf("expected ~1h, got %.4f", h)
	}
	if g.Units[1].RuntimeHours != 0 {
		t.Fatalf("stopped unit must not accumulate runtime")
	}
}

func TestGroup_UnavailableWhenAllFaulted(t *testing.T) {
	g := NewGroup("feed", testConfig())
	for i := range g.Units {
		g.Units[i].Faulted = true
	}
	g.Tick(true, 80, scan)
	if g.Available() || g.Duty() != 0 {
		t.Fatalf("expected no duty and unavailable group")
	}
	g.ResetFaults()
	if !g.Available() {
		t.Fatalf("reset must restore availability")
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Units[1].RuntimeHours = 42.5
	g.Units[2].Faulted = true
	g.Units[2].Fault = FaultOvercurrent

	h := NewGroup("hp", testConfig())
	h.Restore(append(g.Records(), Record{Group: "feed", ID: 1, RuntimeHours: 99}))

	if h.Units[1].RuntimeHours != 42.5 {
		t.Fatalf("runtime not restored: %+v", h.Units[1])
	}
	if !h.Units[2].Faulted || h.Units[2].Fault != FaultOvercurrent {
		t.Fatalf("fault not restored: %+v", h.Units[2])
	}
	if h.Units[0].RuntimeHours != 0 {
		t.Fatalf("foreign group record must be ignored")
	}
}

func TestGroup_SetSpeedOnlyCommandedUnits(t *testing.T) {
	g := NewGroup("hp", testConfig())
	g.Tick(true, 0, scan)
	g.SetSpeed(65)
	if g.Units[0].SpeedPct != 65 {
		t.Fatalf("duty unit speed not applied: %+v", g.Units[0])
	}
	if g.Units[1].SpeedPct != 0 || g.Units[2].SpeedPct != 0 {
		t.Fatalf("standby units must stay at zero speed")
	}
}
