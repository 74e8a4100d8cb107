package xmplayer

import "testing"

func testInstrument() *Instrument {
	ins := &Instrument{
		Name:        "lead",
		Samples:     []Sample{{Name: "s0", C4Speed: 8363, Data: make([]int16, 100)}},
		NoteSamples: fullNoteMap(0),
	}
	ins.NoteSamples[10] = NoNote
	return ins
}

func TestGetSampleForNoteUnmapped(t *testing.T) {
	ins := testInstrument()
	if s := ins.GetSampleForNote(Note(10)); s != nil {
		t.Errorf("an unmapped note should return nil, got %+v", s)
	}
}

func TestGetSampleForNoteOutOfRange(t *testing.T) {
	ins := testInstrument()
	if s := ins.GetSampleForNote(Note(-1)); s != nil {
		t.Errorf("a negative note should return nil, got %+v", s)
	}
	if s := ins.GetSampleForNote(Note(200)); s != nil {
		t.Errorf("a note beyond the 96-entry map should return nil, got %+v", s)
	}
}

func TestGetSampleForNoteMapped(t *testing.T) {
	ins := testInstrument()
	s := ins.GetSampleForNote(Note(20))
	if s == nil {
		t.Fatalf("expected a mapped sample")
	}
	if s.Name != "s0" {
		t.Errorf("got sample %q, want s0", s.Name)
	}
}

func TestInstrumentPlayResetsRunnersAndFade(t *testing.T) {
	ins := testInstrument()
	ins.volRunner[2].Tick = 5
	ins.fadeAmount[2] = 100

	m := &testMixer{}
	ins.Play(m, 2, Note(20), NoteAccumulator(0, 0, 0), 31)

	if ins.volRunner[2].Tick != 0 {
		t.Errorf("Play should reset the volume envelope runner, got tick %d", ins.volRunner[2].Tick)
	}
	if ins.fadeAmount[2] != 32768 {
		t.Errorf("Play should reset fadeAmount to 32768, got %d", ins.fadeAmount[2])
	}
	if !m.active[2] {
		t.Errorf("Play should start the channel on the mixer")
	}
}

func TestInstrumentPlayUnmappedNoteIsNoop(t *testing.T) {
	ins := testInstrument()
	m := &testMixer{}
	ins.Play(m, 0, Note(10), NoteAccumulator(0, 0, 0), 31)
	if m.active[0] {
		t.Errorf("Play for an unmapped note must not touch the mixer")
	}
}

func TestUpdateEnvelopePosAppliesFadeoutAfterKeyOff(t *testing.T) {
	ins := testInstrument()
	ins.VolumeFadeout = 1000
	ins.fadeAmount[0] = 32768

	ins.UpdateEnvelopePos(0, false)
	if ins.fadeAmount[0] != 32768-1000 {
		t.Errorf("fadeAmount = %d, want %d", ins.fadeAmount[0], 32768-1000)
	}
}

func TestUpdateEnvelopePosFadeoutFloorsAtZero(t *testing.T) {
	ins := testInstrument()
	ins.VolumeFadeout = 40000
	ins.fadeAmount[0] = 32768

	ins.UpdateEnvelopePos(0, false)
	if ins.fadeAmount[0] != 0 {
		t.Errorf("fadeAmount should floor at 0, got %d", ins.fadeAmount[0])
	}
}

func TestUpdateEnvelopePosNoFadeoutWhileKeyHeld(t *testing.T) {
	ins := testInstrument()
	ins.VolumeFadeout = 1000
	ins.fadeAmount[0] = 32768

	ins.UpdateEnvelopePos(0, true)
	if ins.fadeAmount[0] != 32768 {
		t.Errorf("fadeAmount should not change while the key is held, got %d", ins.fadeAmount[0])
	}
}

func TestEnvelopeAmpDisabledIsMax(t *testing.T) {
	ins := testInstrument()
	ins.fadeAmount[0] = 32768
	if amp := ins.EnvelopeAmp(0); amp != 64 {
		t.Errorf("a disabled volume envelope at full fadeout should report 64, got %d", amp)
	}
}

func TestEnvelopeAmpFoldsFadeout(t *testing.T) {
	ins := testInstrument()
	ins.fadeAmount[0] = 16384 // half of 32768
	if amp := ins.EnvelopeAmp(0); amp != 32 {
		t.Errorf("half fadeout should halve the amplitude, got %d", amp)
	}
}

func TestPanEnvelopeAmpDisabledIsCentered(t *testing.T) {
	ins := testInstrument()
	if amp := ins.PanEnvelopeAmp(0); amp != 128 {
		t.Errorf("a disabled panning envelope should report centered 128, got %d", amp)
	}
}

func TestBendNoteMatchesNoteAccumulator(t *testing.T) {
	ins := testInstrument()
	got := ins.BendNote(Note(20), 5)
	want := NoteAccumulator(Note(20), 0, 5)
	if got != want {
		t.Errorf("BendNote(20, 5) = %d, want %d", got, want)
	}
}

func TestBendNoteDirectSetsMixerFrequency(t *testing.T) {
	ins := testInstrument()
	m := &testMixer{}
	acc := NoteAccumulator(0, 0, 0)
	ins.BendNoteDirect(m, 1, &ins.Samples[0], acc)

	want := Frequency(ins.Samples[0].C4Speed, acc)
	if m.freq[1] != want {
		t.Errorf("BendNoteDirect frequency = %d, want %d", m.freq[1], want)
	}
}
