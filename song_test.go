package xmplayer

import "testing"

func TestMsPerTick(t *testing.T) {
	s := Song{BPM: 125}
	if ms := s.MsPerTick(); ms != 20 {
		t.Errorf("MsPerTick() at 125 BPM = %d, want 20", ms)
	}
}

func TestMsPerTickZeroBPM(t *testing.T) {
	s := Song{BPM: 0}
	if ms := s.MsPerTick(); ms != 2500 {
		t.Errorf("MsPerTick() with BPM=0 should fall back to 2500, got %d", ms)
	}
}

func TestPatternAndPatternLength(t *testing.T) {
	s := Song{Patterns: []*Pattern{NewPattern(2, 16)}}
	if s.PatternLength(0) != 16 {
		t.Errorf("PatternLength(0) = %d, want 16", s.PatternLength(0))
	}
	if s.PatternLength(5) != 0 {
		t.Errorf("PatternLength out of range should be 0, got %d", s.PatternLength(5))
	}
	if s.Pattern(5) != nil {
		t.Errorf("Pattern out of range should be nil")
	}
}

func TestPotLength(t *testing.T) {
	s := Song{POT: []byte{0, 1, 2}}
	if s.PotLength() != 3 {
		t.Errorf("PotLength() = %d, want 3", s.PotLength())
	}
}

func TestChannelMutedBitManipulation(t *testing.T) {
	s := Song{}
	if s.ChannelMuted(3) {
		t.Errorf("channel should start unmuted")
	}
	s.SetChannelMuted(3, true)
	if !s.ChannelMuted(3) {
		t.Errorf("channel 3 should now be muted")
	}
	if s.ChannelMuted(4) {
		t.Errorf("muting channel 3 must not affect channel 4")
	}
	s.SetChannelMuted(3, false)
	if s.ChannelMuted(3) {
		t.Errorf("channel 3 should be unmuted again")
	}
}

func TestChannelMutedOutOfRange(t *testing.T) {
	s := Song{}
	if !s.ChannelMuted(-1) {
		t.Errorf("an out-of-range channel should report muted (safe default)")
	}
	if !s.ChannelMuted(MaxChannels) {
		t.Errorf("a channel beyond MaxChannels should report muted (safe default)")
	}
	s.SetChannelMuted(-1, true) // must not panic
	s.SetChannelMuted(MaxChannels, true)
}

func TestResizePatternGrowsAndPreserves(t *testing.T) {
	s := Song{Patterns: []*Pattern{NewPattern(1, 4)}}
	s.Patterns[0].SetCell(0, 2, Cell{Note: Note(10), Instrument: NoNote})

	s.ResizePattern(0, 8)
	if s.PatternLength(0) != 8 {
		t.Fatalf("ResizePattern should grow to 8 rows, got %d", s.PatternLength(0))
	}
	if got := s.Patterns[0].Cell(0, 2); got.Note != Note(10) {
		t.Errorf("ResizePattern must preserve existing cell data, got %+v", got)
	}
	if got := s.Patterns[0].Cell(0, 7); got != EmptyCell {
		t.Errorf("newly added rows must be cleared, got %+v", got)
	}
}

func TestResizePatternShrinks(t *testing.T) {
	s := Song{Patterns: []*Pattern{NewPattern(1, 8)}}
	s.ResizePattern(0, 4)
	if s.PatternLength(0) != 4 {
		t.Errorf("ResizePattern should shrink to 4 rows, got %d", s.PatternLength(0))
	}
}

func TestAddPattern(t *testing.T) {
	s := Song{Channels: 2}
	idx := s.AddPattern(16)
	if idx != 0 {
		t.Errorf("first AddPattern should return index 0, got %d", idx)
	}
	if len(s.Patterns[0].Channels) != 2 {
		t.Errorf("added pattern should have the song's channel count")
	}
	if s.Patterns[0].Rows() != 16 {
		t.Errorf("added pattern should have 16 rows, got %d", s.Patterns[0].Rows())
	}
}

func TestSetPotEntryGrows(t *testing.T) {
	s := Song{}
	s.SetPotEntry(3, 7)
	if s.PotLength() != 4 {
		t.Fatalf("SetPotEntry should grow the POT to cover index 3, got length %d", s.PotLength())
	}
	if s.POT[3] != 7 {
		t.Errorf("POT[3] = %d, want 7", s.POT[3])
	}
	if s.POT[0] != 0 {
		t.Errorf("intermediate POT entries should be zero-filled, got %d", s.POT[0])
	}
}

func TestSetTempoClamps(t *testing.T) {
	s := Song{}
	s.SetTempo(0)
	if s.Tempo != 1 {
		t.Errorf("SetTempo(0) should clamp to 1, got %d", s.Tempo)
	}
	s.SetTempo(100)
	if s.Tempo != 31 {
		t.Errorf("SetTempo(100) should clamp to 31, got %d", s.Tempo)
	}
	s.SetTempo(10)
	if s.Tempo != 10 {
		t.Errorf("SetTempo(10) = %d, want 10", s.Tempo)
	}
}

func TestSetBPMClamps(t *testing.T) {
	s := Song{}
	s.SetBPM(10)
	if s.BPM != 32 {
		t.Errorf("SetBPM(10) should clamp to 32, got %d", s.BPM)
	}
	s.SetBPM(1000)
	if s.BPM != 255 {
		t.Errorf("SetBPM(1000) should clamp to 255, got %d", s.BPM)
	}
	s.SetBPM(125)
	if s.BPM != 125 {
		t.Errorf("SetBPM(125) = %d, want 125", s.BPM)
	}
}

func TestSetInstrumentGrows(t *testing.T) {
	s := Song{}
	ins := &Instrument{Name: "lead"}
	s.SetInstrument(2, ins)

	if len(s.Instruments) != 3 {
		t.Fatalf("SetInstrument(2, ...) should grow the list to length 3, got %d", len(s.Instruments))
	}
	if s.Instrument(0) != nil || s.Instrument(1) != nil {
		t.Errorf("intermediate instrument slots should stay nil")
	}
	if s.Instrument(2) != ins {
		t.Errorf("Instrument(2) should return the instrument just set")
	}
}

func TestInstrumentOutOfRange(t *testing.T) {
	s := Song{}
	if s.Instrument(-1) != nil || s.Instrument(0) != nil {
		t.Errorf("Instrument on an empty song should return nil")
	}
}
