package xmplayer

import (
	"bytes"
	"encoding/binary"
)

const (
	xmSaveVersion       = 0x0104
	xmSaveHeaderSize     = 0x114
	xmSaveInstSize       = 0x107
	xmSaveSampleHdrSize  = 0x28
	xmSaveTrackerName    = "NitroTracker"
)

// SaveXM writes song in the XM 1.04 layout (§4.5), the inverse of LoadXM.
// Cells use the presence-mask form whenever any field is absent; empty
// instruments are materialized as cleared bytes, matching what a tracker
// that created them would have written.
func SaveXM(song *Song) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(xmMagic)
	writeFixedString(&buf, song.Name, 20, 0)
	buf.WriteByte(0x1A)
	writeFixedString(&buf, xmSaveTrackerName, 20, 0)
	binary.Write(&buf, binary.LittleEndian, uint16(xmSaveVersion))
	binary.Write(&buf, binary.LittleEndian, uint32(xmSaveHeaderSize))

	flags := uint16(0)
	if song.LinearFreqTable {
		flags = 1
	}
	hdr := xmSongHeader{
		PotLength:       uint16(song.PotLength()),
		RestartPosition: uint16(song.RestartPosition),
		NChannels:       uint16(song.Channels),
		NPatterns:       uint16(len(song.Patterns)),
		NInstruments:    uint16(len(song.Instruments)),
		Flags:           flags,
		Tempo:           uint16(song.Tempo),
		BPM:             uint16(song.BPM),
	}
	binary.Write(&buf, binary.LittleEndian, &hdr)

	pot := make([]byte, 256)
	copy(pot, song.POT)
	buf.Write(pot)

	for i, pattern := range song.Patterns {
		if err := savePattern(&buf, pattern, song.Channels, i); err != nil {
			return nil, err
		}
	}

	for i := range song.Instruments {
		saveInstrument(&buf, song.Instrument(i))
	}

	return buf.Bytes(), nil
}

func writeFixedString(buf *bytes.Buffer, s string, n int, pad byte) {
	b := make([]byte, n)
	for i := range b {
		b[i] = pad
	}
	copy(b, s)
	buf.Write(b)
}

func savePattern(buf *bytes.Buffer, pattern *Pattern, channels, index int) error {
	var ptnHeaderLen uint32 = 9
	binary.Write(buf, binary.LittleEndian, ptnHeaderLen)
	buf.WriteByte(0) // packing type

	rows := pattern.Rows()
	if rows > MaxPatternLength {
		return newCodecError(ErrPatternTooLong, "pattern %d has %d rows", index, rows)
	}
	binary.Write(buf, binary.LittleEndian, uint16(rows))

	var data bytes.Buffer
	for row := 0; row < rows; row++ {
		for ch := 0; ch < channels; ch++ {
			encodeCell(&data, pattern.Cell(ch, row))
		}
	}

	binary.Write(buf, binary.LittleEndian, uint16(data.Len()))
	buf.Write(data.Bytes())
	return nil
}

// encodeCell writes cell's packed representation, the inverse of
// decodeCell. Every field is written unpacked (no magic byte) only when
// note, instrument, volume, effect and effect_param are all present;
// otherwise a presence-mask byte precedes whichever fields are set.
func encodeCell(buf *bytes.Buffer, c Cell) {
	writeNote := c.Note != NoteEmpty
	writeInst := c.Instrument != NoNote
	writeVol := c.Volume != NoNote || c.Effect2 != Effect2None
	writeEff := c.Effect != EffectNone
	writeEffParam := c.Effect != EffectNone // a parameter only means something alongside an effect

	allFields := writeNote && writeInst && writeVol && writeEff && writeEffParam

	if !allFields {
		var mask byte
		if writeNote {
			mask |= 1 << 0
		}
		if writeInst {
			mask |= 1 << 1
		}
		if writeVol {
			mask |= 1 << 2
		}
		if writeEff {
			mask |= 1 << 3
		}
		if writeEffParam {
			mask |= 1 << 4
		}
		buf.WriteByte(mask | 0x80)
	}

	if writeNote {
		buf.WriteByte(encodeNote(c.Note))
	}
	if writeInst {
		buf.WriteByte(byte(c.Instrument + 1))
	}
	if writeVol {
		buf.WriteByte(encodeVolumeByte(c))
	}
	if writeEff {
		buf.WriteByte(byte(c.Effect))
	}
	if writeEffParam {
		buf.WriteByte(c.EffectParam)
	}
}

// encodeNote reconstructs the raw XM note byte. Every legal value (0, 97,
// or 1..96) keeps bit 7 clear, so it's always safe to write bare as the
// cell's magic byte when every field is present.
func encodeNote(n Note) byte {
	switch n {
	case NoteOff:
		return 97
	case NoteEmpty:
		return 0
	default:
		return byte(n) + 1
	}
}

// encodeVolumeByte reconstructs the XM volume-column byte from either a
// plain volume or a secondary effect, the inverse of decodeVolumeByte.
func encodeVolumeByte(c Cell) byte {
	if c.Volume != NoNote {
		return byte((c.Volume+1)/2) + 16
	}
	p := c.Effect2Param & 0x0F
	switch c.Effect2 {
	case Effect2VolSlideDown:
		return 0x60 | p
	case Effect2VolSlideUp:
		return 0x70 | p
	case Effect2FineVolDown:
		return 0x80 | p
	case Effect2FineVolUp:
		return 0x90 | p
	case Effect2VibratoSpeed:
		return 0xA0 | p
	case Effect2VibratoDepth:
		return 0xB0 | p
	case Effect2SetPanning:
		return 0xC0 | p
	case Effect2PanSlideLeft:
		return 0xD0 | p
	case Effect2PanSlideRight:
		return 0xE0 | p
	case Effect2TonePorta:
		return 0xF0 | p
	default:
		return 0
	}
}

func saveInstrument(buf *bytes.Buffer, ins *Instrument) {
	if ins == nil {
		ins = &Instrument{}
	}

	binary.Write(buf, binary.LittleEndian, uint32(xmSaveInstSize))
	writeFixedString(buf, ins.Name, 22, 0)
	buf.WriteByte(0) // instrument type, always 0
	binary.Write(buf, binary.LittleEndian, uint16(len(ins.Samples)))

	if len(ins.Samples) == 0 {
		buf.Write(make([]byte, xmSaveInstSize-29))
		return
	}

	binary.Write(buf, binary.LittleEndian, uint32(xmSaveSampleHdrSize))

	var noteSamples [96]byte
	for i, si := range ins.NoteSamples {
		if si >= 0 && si < 256 {
			noteSamples[i] = byte(si)
		}
	}
	buf.Write(noteSamples[:])

	writeEnvelopePoints(buf, ins.VolumeEnvelope.Points)
	writeEnvelopePoints(buf, ins.PanningEnvelope.Points)

	buf.WriteByte(byte(len(ins.VolumeEnvelope.Points)))
	buf.WriteByte(byte(len(ins.PanningEnvelope.Points)))
	buf.WriteByte(byte(ins.VolumeEnvelope.SustainPoint))
	buf.WriteByte(byte(ins.VolumeEnvelope.LoopStart))
	buf.WriteByte(byte(ins.VolumeEnvelope.LoopEnd))
	buf.WriteByte(byte(ins.PanningEnvelope.SustainPoint))
	buf.WriteByte(byte(ins.PanningEnvelope.LoopStart))
	buf.WriteByte(byte(ins.PanningEnvelope.LoopEnd))
	buf.WriteByte(envelopeTypeByte(ins.VolumeEnvelope))
	buf.WriteByte(envelopeTypeByte(ins.PanningEnvelope))
	buf.Write(make([]byte, 4)) // vibrato type/sweep/depth/rate, unused
	binary.Write(buf, binary.LittleEndian, uint16(ins.VolumeFadeout))
	buf.Write(make([]byte, 11)) // reserved

	buf.Write(make([]byte, xmSaveInstSize-252))

	for i := range ins.Samples {
		writeSampleHeader(buf, &ins.Samples[i])
	}
	for i := range ins.Samples {
		writeSampleBody(buf, &ins.Samples[i])
	}
}

func envelopeTypeByte(e Envelope) byte {
	var t byte
	if e.Enabled {
		t |= 1
	}
	if e.Sustain {
		t |= 2
	}
	if e.Loop {
		t |= 4
	}
	return t
}

func writeEnvelopePoints(buf *bytes.Buffer, points []EnvelopePoint) {
	var raw [24]uint16
	for i := 0; i < 12 && i < len(points); i++ {
		raw[2*i] = uint16(points[i].X)
		raw[2*i+1] = uint16(points[i].Y)
	}
	binary.Write(buf, binary.LittleEndian, &raw)
}

func writeSampleHeader(buf *bytes.Buffer, s *Sample) {
	length := s.Frames()
	loopStart, loopLength := s.LoopStart, s.LoopLength
	if s.Is16Bit {
		length *= 2
		loopStart *= 2
		loopLength *= 2
	}
	binary.Write(buf, binary.LittleEndian, uint32(length))
	binary.Write(buf, binary.LittleEndian, uint32(loopStart))
	binary.Write(buf, binary.LittleEndian, uint32(loopLength))

	buf.WriteByte(byte((s.Volume + 1) / 4))
	buf.WriteByte(byte(int8(s.Finetune)))

	var typeByte byte = byte(s.LoopType) & 0x3
	if s.Is16Bit {
		typeByte |= 1 << 4
	}
	buf.WriteByte(typeByte)
	buf.WriteByte(byte(s.BasePanning))
	buf.WriteByte(byte(int8(s.RelNote)))
	buf.WriteByte(0x80) // reserved

	writeFixedString(buf, s.Name, 22, ' ')
}

func writeSampleBody(buf *bytes.Buffer, s *Sample) {
	if s.Is16Bit {
		var last int16
		for _, v := range s.Data {
			diff := v - last
			last = v
			binary.Write(buf, binary.LittleEndian, uint16(diff))
		}
		return
	}

	var last int8
	for _, v := range s.Data {
		raw := int8(v >> 8)
		diff := raw - last
		last = raw
		buf.WriteByte(byte(diff))
	}
}
