package timer

import "time"

// OnDelay is a scan-driven on-delay timer. Q turns true once the input has
// been continuously true for Preset.
type OnDelay struct {
	Preset  time.Duration
	elapsed time.Duration
	q       bool
}

// Update advances the timer by dt and returns Q.
func (t *OnDelay) Update(in bool, dt time.Duration) bool {
	if !in {
		t.elapsed = 0
		t.q = false
		return false
	}
	if dt > 0 && t.elapsed < t.Preset {
		t.elapsed += dt
		if t.elapsed > t.Preset {
			t.elapsed = t.Preset
		}
	}
	t.q = t.elapsed >= t.Preset
	return t.q
}

// Q reports the last output.
func (t *OnDelay) Q() bool { return t.q }

// Elapsed returns accumulated time while the input was held true.
func (t *OnDelay) Elapsed() time.Duration { return t.elapsed }

func (t *OnDelay) Reset() {
	t.elapsed = 0
	t.q = false
}

// OffDelay keeps Q true for Preset after the input drops.
type OffDelay struct {
	Preset  time.Duration
	elapsed time.Duration
	q       bool
}

// Update advances the timer by dt and returns Q.
func (t *OffDelay) Update(in bool, dt time.Duration) bool {
	if in {
		t.elapsed = 0
		t.q = true
		return true
	}
	if !t.q {
		return false
	}
	if dt > 0 {
		t.elapsed += dt
	}
	if t.elapsed >= t.Preset {
		t.q = false
		t.elapsed = 0
	}
	return t.q
}

// Q reports the last output.
func (t *OffDelay) Q() bool { return t.q }

func (t *OffDelay) Reset() {
	t.elapsed = 0
	t.q = false
}
