package xmplayer

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
)

const xmMagic = "Extended Module: "

// xmSongHeader is the fixed-size part of the XM header following the
// magic, song name, tracker name and version fields (§4.5).
type xmSongHeader struct {
	PotLength       uint16
	RestartPosition uint16
	NChannels       uint16
	NPatterns       uint16
	NInstruments    uint16
	Flags           uint16
	Tempo           uint16
	BPM             uint16
}

// xmSampleHeader is the fixed 40-byte per-sample header (§4.5).
type xmSampleHeader struct {
	Length     uint32
	LoopStart  uint32
	LoopLength uint32
	Volume     uint8
	Finetune   int8
	Type       uint8
	Panning    uint8
	RelNote    int8
	Reserved   uint8
	Name       [22]byte
}

// LoadXM parses XM file data into a Song, bit-exact to the 1.03/1.04 layout
// (§4.5). data must hold the whole file; LoadXM never retains it.
func LoadXM(data []byte) (*Song, error) {
	if len(data) == 0 {
		return nil, newCodecError(ErrZeroByteFile, "empty file")
	}

	r := bytes.NewReader(data)

	magic := make([]byte, len(xmMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != xmMagic {
		return nil, newCodecError(ErrBadMagic, "missing XM magic header")
	}

	nameBuf := make([]byte, 20)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return nil, newCodecError(ErrPatternReadError, "read song name: %v", err)
	}
	name := strings.TrimRight(string(nameBuf), "\x00 ")

	if _, err := r.Seek(21, io.SeekCurrent); err != nil {
		return nil, newCodecError(ErrPatternReadError, "seek past tracker name: %v", err)
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, newCodecError(ErrPatternReadError, "read version: %v", err)
	}
	if version != 0x0103 && version != 0x0104 {
		return nil, newCodecError(ErrBadMagic, "unsupported XM version %#04x", version)
	}

	if _, err := r.Seek(4, io.SeekCurrent); err != nil { // header size, unused
		return nil, newCodecError(ErrPatternReadError, "seek past header size: %v", err)
	}

	var hdr xmSongHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, newCodecError(ErrPatternReadError, "read song header: %v", err)
	}

	pot := make([]byte, 256)
	if _, err := io.ReadFull(r, pot); err != nil {
		return nil, newCodecError(ErrPatternReadError, "read pattern order table: %v", err)
	}

	tempo := int(hdr.Tempo)
	if tempo == 0 {
		tempo = 1 // some XMs in the wild store 0 here
	}

	song := &Song{
		Name:            name,
		LinearFreqTable: hdr.Flags&1 != 0,
		Tempo:           tempo,
		BPM:             int(hdr.BPM),
		Channels:        int(hdr.NChannels),
		RestartPosition: int(hdr.RestartPosition),
		POT:             append([]byte(nil), pot[:hdr.PotLength]...),
	}

	dprintf("xm: %q channels=%d patterns=%d instruments=%d tempo=%d bpm=%d\n",
		name, hdr.NChannels, hdr.NPatterns, hdr.NInstruments, tempo, hdr.BPM)

	for i := 0; i < int(hdr.NPatterns); i++ {
		if err := loadPattern(r, song, i); err != nil {
			return nil, err
		}
	}

	for i := 0; i < int(hdr.NInstruments); i++ {
		ins, err := loadInstrument(r, i)
		if err != nil {
			return nil, err
		}
		song.SetInstrument(i, ins)
	}

	return song, nil
}

func loadPattern(r *bytes.Reader, song *Song, index int) error {
	var headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return newCodecError(ErrPatternReadError, "pattern %d header length: %v", index, err)
	}
	if _, err := r.Seek(1, io.SeekCurrent); err != nil { // packing type, always 0
		return newCodecError(ErrPatternReadError, "pattern %d packing type: %v", index, err)
	}

	var rows uint16
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return newCodecError(ErrPatternReadError, "pattern %d row count: %v", index, err)
	}
	if int(rows) > MaxPatternLength {
		return newCodecError(ErrPatternTooLong, "pattern %d has %d rows", index, rows)
	}

	var dataSize uint16
	if err := binary.Read(r, binary.LittleEndian, &dataSize); err != nil {
		return newCodecError(ErrPatternReadError, "pattern %d data size: %v", index, err)
	}

	song.AddPattern(int(rows))
	pattern := song.Pattern(index)

	if dataSize == 0 {
		return nil
	}

	raw := make([]byte, dataSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return newCodecError(ErrPatternReadError, "pattern %d: %v", index, err)
	}

	pos := 0
	for row := 0; row < int(rows); row++ {
		for ch := 0; ch < song.Channels; ch++ {
			if pos >= len(raw) {
				return newCodecError(ErrPatternReadError, "pattern %d: ran out of packed data at row %d channel %d", index, row, ch)
			}
			cell, n := decodeCell(raw[pos:])
			pos += n
			if ch < len(pattern.Channels) {
				pattern.SetCell(ch, row, cell)
			}
		}
	}
	return nil
}

// decodeCell decodes one packed cell from the front of b, returning the
// cell and the number of bytes consumed (§4.5).
func decodeCell(b []byte) (Cell, int) {
	pos := 0
	magic := b[pos]
	pos++

	haveNote, haveInst, haveVol, haveEff, haveEffParam := true, true, true, true, true
	var rawNote byte

	if magic&0x80 != 0 {
		haveNote = magic&0x01 != 0
		haveInst = magic&0x02 != 0
		haveVol = magic&0x04 != 0
		haveEff = magic&0x08 != 0
		haveEffParam = magic&0x10 != 0
	} else {
		rawNote = magic
		haveNote = false
	}

	cell := EmptyCell

	if haveNote {
		rawNote = b[pos]
		pos++
	}
	if haveNote || magic&0x80 == 0 {
		cell.Note = canonicalizeNote(rawNote)
	}

	if haveInst {
		rawInst := b[pos]
		pos++
		if rawInst == 0 {
			cell.Instrument = NoNote
		} else {
			cell.Instrument = int(rawInst) - 1
		}
	}

	if haveVol {
		rawVol := b[pos]
		pos++
		decodeVolumeByte(rawVol, &cell)
	}

	haveExplicitEff := haveEff
	var rawEff byte
	if haveEff {
		rawEff = b[pos]
		pos++
	}
	if haveEffParam {
		rawEffParam := b[pos]
		pos++
		cell.EffectParam = rawEffParam
		if !haveExplicitEff {
			cell.Effect = EffectArpeggio
		}
	}
	if haveExplicitEff {
		cell.Effect = Effect(rawEff)
	}

	return cell, pos
}

// canonicalizeNote maps a raw XM note byte to the internal representation
// (§4.5: 1..96 -> note-1, 97 -> STOP, else EMPTY).
func canonicalizeNote(raw byte) Note {
	switch {
	case raw >= 1 && raw <= 96:
		return Note(raw - 1)
	case raw == 97:
		return NoteOff
	default:
		return NoteEmpty
	}
}

// decodeVolumeByte canonicalizes the XM volume-column byte, splitting out a
// secondary effect for values 0x60 and above. Per the fixed mapping used
// here, 0xD0-0xDF is pan-slide left and 0xE0-0xEF is pan-slide right (the
// reference encoder has an unreachable duplicate branch for the latter;
// this implementation gives each its own range).
func decodeVolumeByte(raw byte, cell *Cell) {
	switch {
	case raw == 0:
		cell.Volume = NoNote
	case raw >= 0x10 && raw <= 0x50:
		v := (int(raw) - 16) * 2
		if v > MaxVolume {
			v = MaxVolume
		}
		cell.Volume = v
	case raw >= 0x60:
		param := int(raw & 0x0F)
		switch {
		case raw <= 0x6F:
			cell.Effect2, cell.Effect2Param = Effect2VolSlideDown, byte(param)
		case raw <= 0x7F:
			cell.Effect2, cell.Effect2Param = Effect2VolSlideUp, byte(param)
		case raw <= 0x8F:
			cell.Effect2, cell.Effect2Param = Effect2FineVolDown, byte(param)
		case raw <= 0x9F:
			cell.Effect2, cell.Effect2Param = Effect2FineVolUp, byte(param)
		case raw <= 0xAF:
			cell.Effect2, cell.Effect2Param = Effect2VibratoSpeed, byte(param)
		case raw <= 0xBF:
			cell.Effect2, cell.Effect2Param = Effect2VibratoDepth, byte(param)
		case raw <= 0xCF:
			cell.Effect2, cell.Effect2Param = Effect2SetPanning, byte(param)
		case raw <= 0xDF:
			cell.Effect2, cell.Effect2Param = Effect2PanSlideLeft, byte(param)
		case raw <= 0xEF:
			cell.Effect2, cell.Effect2Param = Effect2PanSlideRight, byte(param)
		default:
			cell.Effect2, cell.Effect2Param = Effect2TonePorta, byte(param)
		}
	default:
		cell.Volume = NoNote
	}
}

func loadInstrument(r *bytes.Reader, index int) (*Instrument, error) {
	var instSize uint32
	if err := binary.Read(r, binary.LittleEndian, &instSize); err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d size: %v", index, err)
	}
	nameBuf := make([]byte, 22)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d name: %v", index, err)
	}
	if _, err := r.Seek(1, io.SeekCurrent); err != nil { // instrument type, unused
		return nil, newCodecError(ErrPatternReadError, "instrument %d type: %v", index, err)
	}
	var nSamples uint16
	if err := binary.Read(r, binary.LittleEndian, &nSamples); err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d sample count: %v", index, err)
	}

	ins := &Instrument{Name: strings.TrimRight(string(nameBuf), "\x00 ")}
	for i := range ins.NoteSamples {
		ins.NoteSamples[i] = NoNote
	}

	if nSamples == 0 {
		if _, err := r.Seek(int64(instSize)-29, io.SeekCurrent); err != nil {
			return nil, newCodecError(ErrPatternReadError, "instrument %d: seek past empty header: %v", index, err)
		}
		return ins, nil
	}

	var sampleHeaderSize uint32
	if err := binary.Read(r, binary.LittleEndian, &sampleHeaderSize); err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d sample header size: %v", index, err)
	}

	var noteSamples [96]byte
	if _, err := io.ReadFull(r, noteSamples[:]); err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d note map: %v", index, err)
	}
	for i, s := range noteSamples {
		ins.NoteSamples[i] = int(s)
	}

	volEnv, err := readEnvelopePoints(r)
	if err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d volume envelope: %v", index, err)
	}
	panEnv, err := readEnvelopePoints(r)
	if err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d panning envelope: %v", index, err)
	}

	var nVolPoints, nPanPoints, volSustain, volLoopStart, volLoopEnd, panSustain, panLoopStart, panLoopEnd, volType, panType uint8
	fields := []*uint8{&nVolPoints, &nPanPoints, &volSustain, &volLoopStart, &volLoopEnd, &panSustain, &panLoopStart, &panLoopEnd, &volType, &panType}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, newCodecError(ErrPatternReadError, "instrument %d envelope flags: %v", index, err)
		}
	}
	if _, err := r.Seek(4, io.SeekCurrent); err != nil { // vibrato type/sweep/depth/rate
		return nil, newCodecError(ErrPatternReadError, "instrument %d vibrato fields: %v", index, err)
	}
	var fadeout uint16
	if err := binary.Read(r, binary.LittleEndian, &fadeout); err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d fadeout: %v", index, err)
	}
	if _, err := r.Seek(11, io.SeekCurrent); err != nil { // reserved
		return nil, newCodecError(ErrPatternReadError, "instrument %d reserved bytes: %v", index, err)
	}

	ins.VolumeEnvelope = Envelope{
		Points:       volEnv[:clampEnvCount(nVolPoints)],
		Enabled:      volType&1 != 0,
		Sustain:      volType&2 != 0,
		Loop:         volType&4 != 0,
		SustainPoint: int(volSustain),
		LoopStart:    int(volLoopStart),
		LoopEnd:      int(volLoopEnd),
	}
	ins.PanningEnvelope = Envelope{
		Points:       panEnv[:clampEnvCount(nPanPoints)],
		Enabled:      panType&1 != 0,
		Sustain:      panType&2 != 0,
		Loop:         panType&4 != 0,
		SustainPoint: int(panSustain),
		LoopStart:    int(panLoopStart),
		LoopEnd:      int(panLoopEnd),
	}
	ins.VolumeFadeout = int(fadeout)

	// Instrument headers may be longer than the 252 bytes read above (some
	// trackers nest extended chunks); seek relative to tolerate it.
	if _, err := r.Seek(int64(instSize)-252, io.SeekCurrent); err != nil {
		return nil, newCodecError(ErrPatternReadError, "instrument %d: tolerance seek: %v", index, err)
	}

	sampleHeaders := make([]xmSampleHeader, nSamples)
	for i := range sampleHeaders {
		if err := binary.Read(r, binary.LittleEndian, &sampleHeaders[i]); err != nil {
			return nil, newCodecError(ErrPatternReadError, "instrument %d sample %d header: %v", index, i, err)
		}
	}

	ins.Samples = make([]Sample, nSamples)
	for i := range sampleHeaders {
		s, err := loadSampleBody(r, &sampleHeaders[i])
		if err != nil {
			return nil, newCodecError(ErrPatternReadError, "instrument %d sample %d body: %v", index, i, err)
		}
		ins.Samples[i] = *s
	}

	return ins, nil
}

func clampEnvCount(n uint8) int {
	if n > 12 {
		return 12
	}
	return int(n)
}

func readEnvelopePoints(r *bytes.Reader) ([12]EnvelopePoint, error) {
	var raw [24]uint16
	var out [12]EnvelopePoint
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return out, err
	}
	for i := range out {
		out[i] = EnvelopePoint{X: int(raw[2*i]), Y: int(raw[2*i+1])}
	}
	return out, nil
}

func loadSampleBody(r *bytes.Reader, hdr *xmSampleHeader) (*Sample, error) {
	volume := int(hdr.Volume)
	if volume == 64 {
		volume = 255
	} else {
		volume *= 4
	}

	is16Bit := hdr.Type&0x10 != 0
	loopType := LoopType(hdr.Type & 0x3)
	if hdr.LoopLength == 0 {
		loopType = LoopNone
	}

	name := strings.TrimRight(string(hdr.Name[:]), "\x00 ")

	raw := make([]byte, hdr.Length)
	if hdr.Length > 0 {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}
	}

	var data []int16
	var loopStart, loopLength int
	if is16Bit {
		n := int(hdr.Length) / 2
		data = make([]int16, n)
		var last int16
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
			v += last
			data[i] = v
			last = v
		}
		loopStart = int(hdr.LoopStart) / 2
		loopLength = int(hdr.LoopLength) / 2
	} else {
		data = make([]int16, len(raw))
		var last int8
		for i, b := range raw {
			v := int8(b) + last
			data[i] = int16(v) * 256
			last = v
		}
		loopStart = int(hdr.LoopStart)
		loopLength = int(hdr.LoopLength)
	}

	return &Sample{
		Name:        name,
		Data:        data,
		Is16Bit:     is16Bit,
		C4Speed:     8363,
		RelNote:     int(hdr.RelNote),
		Finetune:    int(hdr.Finetune),
		Volume:      volume,
		BasePanning: int(hdr.Panning),
		Panning:     int(hdr.Panning),
		LoopType:    loopType,
		LoopStart:   loopStart,
		LoopLength:  loopLength,
	}, nil
}
