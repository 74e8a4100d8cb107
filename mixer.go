package xmplayer

// Mixer is the hardware audio backend the Player drives (§6). It is
// deliberately the only contact point between the tick engine and actual
// PCM resampling/mixing — the DSP itself is out of scope for this library
// (see SPEC_FULL.md Non-goals); cmd/xmplay/mixer provides one concrete,
// software implementation.
type Mixer interface {
	// Start begins playback of sample on channel at freqHz, volume
	// (0..31) and pan (0..127). loop describes the loop region, if any.
	Start(channel int, sample SampleRef, loop LoopSpec, freqHz int, volume int, pan int)

	// SetFrequency retunes an already-playing channel.
	SetFrequency(channel int, freqHz int)

	// SetVolume updates an already-playing channel's volume (0..31).
	SetVolume(channel int, volume int)

	// SetPanning updates an already-playing channel's pan (0..127).
	SetPanning(channel int, pan int)

	// Stop silences channel immediately.
	Stop(channel int)
}

// SampleRef is an immutable view of a Sample's PCM data, passed to Mixer.Start
// without transferring ownership: the Mixer must not retain a reference to
// Data past the call that supersedes or stops the channel.
type SampleRef struct {
	Data    []int16
	Is16Bit bool
}

// LoopSpec describes a sample's loop region in frames.
type LoopSpec struct {
	Type   LoopType
	Start  int
	Length int
}
