package xmplayer

import "testing"

func TestEnvelopeValueDisabled(t *testing.T) {
	e := Envelope{}
	r := EnvelopeRunner{}
	if v := r.Value(&e, 64); v != 64 {
		t.Errorf("disabled envelope should return the caller default, got %d", v)
	}
}

func TestEnvelopeValueInterpolates(t *testing.T) {
	e := Envelope{
		Enabled: true,
		Points:  []EnvelopePoint{{X: 0, Y: 0}, {X: 10, Y: 64}},
	}
	r := EnvelopeRunner{Tick: 5}
	if v := r.Value(&e, 0); v != 32 {
		t.Errorf("expected the midpoint to interpolate to 32, got %d", v)
	}
}

func TestEnvelopeValueClampsPastEnds(t *testing.T) {
	e := Envelope{
		Enabled: true,
		Points:  []EnvelopePoint{{X: 0, Y: 10}, {X: 10, Y: 64}},
	}
	r := EnvelopeRunner{Tick: -1}
	if v := r.Value(&e, 0); v != 10 {
		t.Errorf("before the first point should clamp to its Y, got %d", v)
	}
	r.Tick = 1000
	if v := r.Value(&e, 0); v != 64 {
		t.Errorf("past the last point should clamp to its Y, got %d", v)
	}
}

func TestEnvelopeRunnerSustainHoldsAtKeyHeld(t *testing.T) {
	e := Envelope{
		Enabled:      true,
		Sustain:      true,
		SustainPoint: 1,
		Points:       []EnvelopePoint{{X: 0, Y: 0}, {X: 5, Y: 64}, {X: 10, Y: 0}},
	}
	r := EnvelopeRunner{Tick: 5}
	r.Advance(&e, true)
	if r.Tick != 5 {
		t.Errorf("sustain should hold the runner at the sustain point while the key is held, got tick %d", r.Tick)
	}
	r.Advance(&e, false)
	if r.Tick != 6 {
		t.Errorf("releasing the key should let the runner advance past sustain, got tick %d", r.Tick)
	}
}

func TestEnvelopeRunnerLoopWraps(t *testing.T) {
	e := Envelope{
		Enabled:   true,
		Loop:      true,
		LoopStart: 0,
		LoopEnd:   1,
		Points:    []EnvelopePoint{{X: 0, Y: 0}, {X: 3, Y: 64}},
	}
	r := EnvelopeRunner{Tick: 3}
	r.Advance(&e, false)
	if r.Tick != 0 {
		t.Errorf("advancing past the loop end should wrap to the loop start tick, got %d", r.Tick)
	}
}

func TestEnvelopeResetRewinds(t *testing.T) {
	r := EnvelopeRunner{Tick: 42}
	r.Reset()
	if r.Tick != 0 {
		t.Errorf("Reset should zero Tick, got %d", r.Tick)
	}
}
