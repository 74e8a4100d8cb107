package xmplayer

// EnvelopePoint is one (x, y) node of a piecewise-linear envelope. x is in
// ticks, y is 0..64 for a volume envelope or 0..255 for a panning one
// (grounded on peakle-xm/xmfile.EnvelopePoint).
type EnvelopePoint struct {
	X, Y int
}

// Envelope is a piecewise-linear volume or panning curve with optional
// sustain and loop (§3, §4.3).
type Envelope struct {
	Points []EnvelopePoint

	Enabled  bool
	Sustain  bool
	Loop     bool
	SustainPoint int
	LoopStart    int
	LoopEnd      int
}

// EnvelopeRunner tracks one channel's position within an Envelope over
// time. Each channel/instrument pairing gets its own runner so pausing at a
// sustain point or wrapping a loop never affects other channels sharing the
// instrument.
type EnvelopeRunner struct {
	Tick int // elapsed ticks since the note (or envelope reset) began
}

// Reset rewinds the runner to the start of the envelope.
func (r *EnvelopeRunner) Reset() {
	r.Tick = 0
}

// Advance moves the runner forward by one tick, honoring sustain (held
// while the note hasn't received a key-off) and loop wrap.
func (r *EnvelopeRunner) Advance(e *Envelope, keyHeld bool) {
	if !e.Enabled || len(e.Points) == 0 {
		return
	}

	if e.Sustain && keyHeld && r.Tick >= e.Points[clampIdx(e.SustainPoint, len(e.Points))].X {
		return
	}

	r.Tick++

	if e.Loop && len(e.Points) > e.LoopEnd {
		loopEndX := e.Points[clampIdx(e.LoopEnd, len(e.Points))].X
		loopStartX := e.Points[clampIdx(e.LoopStart, len(e.Points))].X
		if r.Tick > loopEndX {
			r.Tick = loopStartX
		}
	}
}

// Value evaluates the envelope at the runner's current tick via linear
// interpolation between the bracketing points. Returns 0..64 (volume) or
// 0..255 (panning) depending on which envelope this is: the caller supplies
// the right default when the envelope is disabled.
func (r *EnvelopeRunner) Value(e *Envelope, disabledDefault int) int {
	if !e.Enabled || len(e.Points) == 0 {
		return disabledDefault
	}

	pts := e.Points
	if r.Tick <= pts[0].X {
		return pts[0].Y
	}
	last := pts[len(pts)-1]
	if r.Tick >= last.X {
		return last.Y
	}

	for i := 0; i < len(pts)-1; i++ {
		a, b := pts[i], pts[i+1]
		if r.Tick >= a.X && r.Tick <= b.X {
			if b.X == a.X {
				return a.Y
			}
			return a.Y + (b.Y-a.Y)*(r.Tick-a.X)/(b.X-a.X)
		}
	}
	return last.Y
}

func clampIdx(i, n int) int {
	if n == 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
