package xmplayer

// Sample is one instrument sample: a PCM buffer plus loop and panning
// metadata (§3 Sample, §4.2). 8-bit samples are widened losslessly to
// int16 at load time (Is16Bit remembers the original depth so Save can
// narrow them back exactly).
type Sample struct {
	Name string

	Data    []int16
	Is16Bit bool

	C4Speed  int // base playback rate in Hz
	RelNote  int // signed semitone offset from the instrument's note map
	Finetune int // signed, 1/128-semitone units

	Volume      int // 0..255
	BasePanning int // 0..255, the sample's at-rest panning
	Panning     int // 0..255, transient effect-mutated panning

	LoopType    LoopType
	LoopStart   int // in frames
	LoopLength  int // in frames
}

// Frames returns the sample's length in frames (not bytes).
func (s *Sample) Frames() int {
	return len(s.Data)
}

// PlayLengthMS returns how long, in milliseconds, this sample plays for at
// the given realized pitch accumulator, starting from frame zero; bpm does
// not affect the result. Looping samples return 0 — the player uses
// LoopType to know it must not run a countdown for them (§4.2).
func (s *Sample) PlayLengthMS(accumulator int, bpm int) int {
	if s.LoopType != LoopNone {
		return 0
	}
	freq := Frequency(s.C4Speed, accumulator)
	if freq <= 0 {
		return 0
	}
	return (s.Frames() * 1000) / freq
}

// Play asks mixer to start this sample on channel at the pitch for note,
// with the given volume (0..31, mixer scale) and the sample's current
// panning. It restores the loop region if the sample loops.
func (s *Sample) Play(mixer Mixer, channel int, accumulator int, volume int) {
	loop := LoopSpec{Type: s.LoopType}
	if s.LoopType != LoopNone {
		loop.Start = s.LoopStart
		loop.Length = s.LoopLength
	}

	mixer.Start(channel, SampleRef{Data: s.Data, Is16Bit: s.Is16Bit}, loop,
		Frequency(s.C4Speed, accumulator), volume, s.Panning>>1)
}

// ResetPanning restores the transient panning shadow back to the sample's
// base panning. Called on play()/stop() (§9 Supplemented: initDefaultPanning
// /resetPanning) and at the start of every row.
func (s *Sample) ResetPanning() {
	s.Panning = s.BasePanning
}
