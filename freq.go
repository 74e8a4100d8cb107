package xmplayer

import "math"

// Linear frequency table (§4.1). The reference target emits only the linear
// table (never the Amiga/logarithmic one), so that's the only table this
// library builds.
//
// Pitch is carried everywhere as an accumulator in 128-fine-steps-per-
// semitone units (the same unit portamento advances in). An accumulator of
// pitchBias*fineStepsPerSemitone corresponds to the sample's own C4Speed;
// every 12 semitones (accumulatorOctave units) doubles or halves frequency.
const (
	fineStepsPerSemitone = 128
	semitonesPerOctave   = 12
	accumulatorOctave    = fineStepsPerSemitone * semitonesPerOctave // 1536

	// pitchBias shifts the realized-note space up by 48 semitones so that
	// note+relnote+finetune accumulators never go negative (player.cpp
	// seeds porta accumulators from "48 + rel_note + note").
	pitchBias = 48

	// PortaAccumulatorMax is the documented ceiling for the portamento
	// accumulator: 128 fine-steps times the widest representable span
	// (156 semitones, §9 Fixed-point arithmetic).
	PortaAccumulatorMax = 19968
)

// octaveTable[i] holds a Q16.16 fixed-point multiplier for 2^(i/accumulatorOctave),
// i in [0, accumulatorOctave). Built once at init time; every runtime pitch
// lookup afterwards is an integer table index, shift and multiply.
var octaveTable [accumulatorOctave]uint32

func init() {
	for i := range octaveTable {
		octaveTable[i] = uint32(math.Pow(2, float64(i)/accumulatorOctave) * 65536)
	}
}

// NoteAccumulator folds a realized note, relative-note offset and finetune
// into a single pitch accumulator in the unit Frequency expects. finetune is
// in 1/128-semitone units, as stored on Sample.
func NoteAccumulator(note Note, relNote int, finetune int) int {
	return (pitchBias+relNote+int(note))*fineStepsPerSemitone + finetune
}

// Frequency maps a pitch accumulator (as produced by NoteAccumulator, or
// advanced by portamento/vibrato/arpeggio) to a playback rate in Hz, given
// the sample's own base rate (C4Speed, i.e. the rate at which it plays at
// pitchBias semitones with zero finetune).
func Frequency(c4Speed int, accumulator int) int {
	base := pitchBias * fineStepsPerSemitone
	delta := accumulator - base

	octaves := delta / accumulatorOctave
	rem := delta % accumulatorOctave
	if rem < 0 {
		rem += accumulatorOctave
		octaves--
	}

	freq := (int64(c4Speed) * int64(octaveTable[rem])) >> 16
	if octaves >= 0 {
		freq <<= uint(octaves)
	} else {
		freq >>= uint(-octaves)
	}
	if freq < 1 {
		freq = 1
	}
	return int(freq)
}

// ClampPorta clamps a portamento accumulator to the engine's documented
// range, [0, PortaAccumulatorMax].
func ClampPorta(acc int) int {
	if acc < 0 {
		return 0
	}
	if acc > PortaAccumulatorMax {
		return PortaAccumulatorMax
	}
	return acc
}
