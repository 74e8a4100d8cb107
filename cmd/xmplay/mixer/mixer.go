// Package mixer is a concrete, scalar software implementation of
// xmplayer.Mixer: fixed-point resampling and stereo panning, no SIMD, no
// post-mix DSP. The sample-rate conversion and mixing algorithm itself is
// out of scope for the core library; this is where it actually lives.
package mixer

import "github.com/ntxm-go/xmplayer"

const fracBits = 16

// channelState tracks one mixer voice: its sample reference, fixed-point
// playback position and the delta-rate resampling step derived from the
// channel's current frequency (mirrors the pos/epos/dr bookkeeping of a
// scalar MOD mixer's inner loop).
type channelState struct {
	active bool
	data   []int16
	loop   xmplayer.LoopSpec

	pos   uint64 // frame position, fracBits of fraction
	delta uint64 // per-output-sample position step

	volume int // 0..31
	pan    int // 0..127
}

// Mixer mixes up to xmplayer.MaxChannels voices into an interleaved
// stereo int16 buffer at a fixed sampling rate.
type Mixer struct {
	samplingHz int
	channels   [xmplayer.MaxChannels]channelState
}

// New returns a Mixer producing audio at samplingHz.
func New(samplingHz int) *Mixer {
	return &Mixer{samplingHz: samplingHz}
}

func rateToDelta(freqHz, samplingHz int) uint64 {
	if freqHz <= 0 || samplingHz <= 0 {
		return 0
	}
	return (uint64(freqHz) << fracBits) / uint64(samplingHz)
}

func (m *Mixer) Start(channel int, sample xmplayer.SampleRef, loop xmplayer.LoopSpec, freqHz, volume, pan int) {
	if channel < 0 || channel >= len(m.channels) {
		return
	}
	ch := &m.channels[channel]
	*ch = channelState{
		active: true,
		data:   sample.Data,
		loop:   loop,
		delta:  rateToDelta(freqHz, m.samplingHz),
		volume: volume,
		pan:    pan,
	}
}

func (m *Mixer) SetFrequency(channel, freqHz int) {
	if channel < 0 || channel >= len(m.channels) {
		return
	}
	m.channels[channel].delta = rateToDelta(freqHz, m.samplingHz)
}

func (m *Mixer) SetVolume(channel, volume int) {
	if channel < 0 || channel >= len(m.channels) {
		return
	}
	m.channels[channel].volume = volume
}

func (m *Mixer) SetPanning(channel, pan int) {
	if channel < 0 || channel >= len(m.channels) {
		return
	}
	m.channels[channel].pan = pan
}

func (m *Mixer) Stop(channel int) {
	if channel < 0 || channel >= len(m.channels) {
		return
	}
	m.channels[channel].active = false
}

// Generate mixes len(out)/2 stereo frames into out, clearing it first.
// Channels whose sample runs past its end stop automatically if they have
// no loop, or wrap into the loop region otherwise.
func (m *Mixer) Generate(out []int16) {
	nFrames := len(out) / 2
	mix := make([]int32, len(out))

	for i := range m.channels {
		ch := &m.channels[i]
		if !ch.active || len(ch.data) == 0 || ch.delta == 0 {
			continue
		}

		lvol := int32((127 - ch.pan) * ch.volume)
		rvol := int32(ch.pan * ch.volume)
		epos := uint64(len(ch.data)) << fracBits
		loopStart := uint64(ch.loop.Start) << fracBits
		loopEnd := uint64(ch.loop.Start+ch.loop.Length) << fracBits
		if ch.loop.Type != xmplayer.LoopNone && ch.loop.Length > 0 && loopEnd < epos {
			epos = loopEnd
		}

		for f := 0; f < nFrames; f++ {
			if ch.pos >= epos {
				if ch.loop.Type != xmplayer.LoopNone && ch.loop.Length > 0 {
					ch.pos = loopStart
					epos = loopEnd
				} else {
					ch.active = false
					break
				}
			}
			s := int32(ch.data[ch.pos>>fracBits])
			mix[2*f] += (s * lvol) >> 12
			mix[2*f+1] += (s * rvol) >> 12
			ch.pos += ch.delta
		}
	}

	for i, v := range mix {
		out[i] = clampInt16(v)
	}
}

func clampInt16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

var _ xmplayer.Mixer = (*Mixer)(nil)
