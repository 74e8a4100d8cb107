package xmplayer

// Instrument owns its Samples exclusively (§9 Cyclic references: the Player
// refers to instrument/sample/channel by index triple, never by
// back-pointer) and maps realized notes to one of up to 16 samples via a
// 96-entry table (§3, §4.3).
type Instrument struct {
	Name string

	Samples     []Sample
	NoteSamples [96]int // sample index per note, or NoNote

	VolumeEnvelope  Envelope
	PanningEnvelope Envelope

	VolumeFadeout int // per-tick fadeout amount, 0 disables fadeout

	volRunner  [MaxChannels]EnvelopeRunner
	panRunner  [MaxChannels]EnvelopeRunner
	fadeAmount [MaxChannels]int // current fadeout multiplier, 0..32768
}

// GetSampleForNote returns the Sample realized note should play, or nil if
// the note has no mapped sample (silently skipped per §7).
func (ins *Instrument) GetSampleForNote(note Note) *Sample {
	if note < 0 || int(note) >= len(ins.NoteSamples) {
		return nil
	}
	si := ins.NoteSamples[note]
	if si == NoNote || si < 0 || si >= len(ins.Samples) {
		return nil
	}
	return &ins.Samples[si]
}

// Play dispatches to the sample mapped to note, resets the channel's
// envelope runners and fadeout, and starts the sample on the mixer.
func (ins *Instrument) Play(mixer Mixer, channel int, note Note, accumulator int, volume int) {
	s := ins.GetSampleForNote(note)
	if s == nil {
		return
	}

	ins.volRunner[channel].Reset()
	ins.panRunner[channel].Reset()
	ins.fadeAmount[channel] = 32768

	s.Play(mixer, channel, accumulator, volume)
}

// UpdateEnvelopePos advances channel's envelope cursors by one tick.
// keyHeld is false once the channel has received a key-off, at which point
// sustain no longer holds the envelope and fadeout begins to apply.
func (ins *Instrument) UpdateEnvelopePos(channel int, keyHeld bool) {
	ins.volRunner[channel].Advance(&ins.VolumeEnvelope, keyHeld)
	ins.panRunner[channel].Advance(&ins.PanningEnvelope, keyHeld)

	if !keyHeld && ins.VolumeFadeout > 0 {
		ins.fadeAmount[channel] -= ins.VolumeFadeout
		if ins.fadeAmount[channel] < 0 {
			ins.fadeAmount[channel] = 0
		}
	}
}

// EnvelopeAmp returns the channel's current volume envelope amplitude,
// 0..64 (a constant 64 if the envelope is disabled), already folded with
// the fadeout multiplier.
func (ins *Instrument) EnvelopeAmp(channel int) int {
	amp := ins.volRunner[channel].Value(&ins.VolumeEnvelope, 64)
	return (amp * ins.fadeAmount[channel]) >> 15
}

// PanEnvelopeAmp returns the channel's current panning envelope value,
// 0..255 (128 — centered — if the envelope is disabled).
func (ins *Instrument) PanEnvelopeAmp(channel int) int {
	return ins.panRunner[channel].Value(&ins.PanningEnvelope, 128)
}

// BendNote computes a new pitch accumulator for note with a fine semitone
// offset (1/128-semitone units), used by arpeggio and vibrato.
func (ins *Instrument) BendNote(note Note, fineOffset int) int {
	return NoteAccumulator(note, 0, fineOffset)
}

// BendNoteDirect sets the mixer frequency directly from an already-computed
// pitch accumulator (used by portamento, which advances its own
// accumulator independent of any single note).
func (ins *Instrument) BendNoteDirect(mixer Mixer, channel int, sample *Sample, accumulator int) {
	mixer.SetFrequency(channel, Frequency(sample.C4Speed, accumulator))
}
