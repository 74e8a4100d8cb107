package xmplayer

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"

	clone "github.com/huandu/go-clone/generic"
)

const testSampleLength = 1000

var testNoteNames = [12]string{"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}

var testSong = Song{
	Name:            "testsong",
	LinearFreqTable: true,
	Tempo:           6,
	BPM:             125,
	Channels:        1,
	POT:             []byte{0},
	Instruments: []*Instrument{
		{
			Name:        "testins1",
			Samples:     []Sample{{Name: "s1", Volume: 240, BasePanning: 128, C4Speed: 8363, Data: make([]int16, testSampleLength)}},
			NoteSamples: fullNoteMap(0),
		},
		{
			Name:        "testins2",
			Samples:     []Sample{{Name: "s2", Volume: 220, BasePanning: 128, C4Speed: 8363, Data: make([]int16, testSampleLength)}},
			NoteSamples: fullNoteMap(0),
		},
	},
}

func fullNoteMap(sample int) [96]int {
	var m [96]int
	for i := range m {
		m[i] = sample
	}
	return m
}

// testMixer records the last Start/SetFrequency/SetVolume/SetPanning call
// per channel so tests can assert on what the player pushed to its audio
// backend without any real DSP.
type testMixer struct {
	active [MaxChannels]bool
	freq   [MaxChannels]int
	volume [MaxChannels]int
	pan    [MaxChannels]int
}

func (m *testMixer) Start(channel int, sample SampleRef, loop LoopSpec, freqHz, volume, pan int) {
	m.active[channel] = true
	m.freq[channel] = freqHz
	m.volume[channel] = volume
	m.pan[channel] = pan
}
func (m *testMixer) SetFrequency(channel, freqHz int) { m.freq[channel] = freqHz }
func (m *testMixer) SetVolume(channel, volume int)    { m.volume[channel] = volume }
func (m *testMixer) SetPanning(channel, pan int)      { m.pan[channel] = pan }
func (m *testMixer) Stop(channel int)                 { m.active[channel] = false }

var _ Mixer = (*testMixer)(nil)

// recordingEvents captures every notification the Player fires, in order.
type recordingEvents struct {
	rows     []int
	pots     []int
	stopped  int
	finished []int
}

func (e *recordingEvents) RowUpdated(row int)         { e.rows = append(e.rows, row) }
func (e *recordingEvents) PotPositionUpdated(pos int) { e.pots = append(e.pots, pos) }
func (e *recordingEvents) PlaybackStopped()           { e.stopped++ }
func (e *recordingEvents) SampleFinished(channel int) { e.finished = append(e.finished, channel) }
func (e *recordingEvents) Debug(string)               {}

var _ Events = (*recordingEvents)(nil)

// newPlayerWithTestPattern builds a single-pattern song from an ASCII grid
// (rows of channel cells) and returns a playing Player driving a testMixer.
func newPlayerWithTestPattern(pattern [][]string, t *testing.T) (*Player, *testMixer) {
	t.Helper()

	cells, nChannels := convertTestPatternData(pattern)

	song := clone.Clone(testSong)
	song.Channels = nChannels
	song.Patterns = []*Pattern{{Channels: cells}}

	mixer := &testMixer{}
	player := NewPlayer(mixer, NullEvents{})
	player.SetSong(&song)
	player.Play(0, 0, false)

	return player, mixer
}

// convertTestPatternData parses rows of cells of the form "C-4 01 40 A04":
// note, instrument (hex, 1-based, ".." for none), volume (raw XM volume
// byte in hex, ".." for none), effect + param (1 hex digit type, 2 hex
// digit param, "..." for none). An empty string cell is entirely absent.
func convertTestPatternData(pattern [][]string) ([][]Cell, int) {
	nChannels := len(pattern[0])
	rows := len(pattern)

	cells := make([][]Cell, nChannels)
	for c := range cells {
		cells[c] = make([]Cell, rows)
	}

	for r, row := range pattern {
		for c, col := range row {
			if col == "" {
				cells[c][r] = EmptyCell
				continue
			}
			cells[c][r] = decodeTestCell(col)
		}
	}
	return cells, nChannels
}

func decodeTestCell(col string) Cell {
	parts := colToParts(col)
	cell := EmptyCell

	cell.Note = decodeTestNote(parts[0])
	cell.Instrument = decodeTestInstrument(parts[1])
	if parts[2] != ".." {
		v, err := strconv.ParseUint(parts[2], 16, 8)
		if err != nil {
			panic(err)
		}
		decodeVolumeByte(byte(v), &cell)
	}
	cell.Effect, cell.EffectParam = decodeTestEffect(parts[3])

	return cell
}

func colToParts(s string) []string {
	result := strings.Split(s, " ")
	filtered := result[:0]
	for _, r := range result {
		if r != "" {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// decodeTestNote parses "C-4"/"C#4" style note names (octave 0..7), "^^^"
// for note-off, "..." for empty.
func decodeTestNote(s string) Note {
	switch s {
	case "...":
		return NoteEmpty
	case "^^^":
		return NoteOff
	}
	ni := slices.Index(testNoteNames[:], s[0:2])
	if ni == -1 {
		panic(fmt.Sprintf("invalid note %q", s))
	}
	oct := int(s[2] - '0')
	return Note(12*oct + ni)
}

func decodeTestInstrument(s string) int {
	if s == ".." {
		return NoNote
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		panic(err)
	}
	return int(v) - 1
}

func decodeTestEffect(s string) (Effect, byte) {
	if s == "..." || s == "" {
		return EffectNone, 0
	}
	fx, err := strconv.ParseUint(s[0:1], 16, 8)
	if err != nil {
		panic(err)
	}
	param, err := strconv.ParseUint(s[1:3], 16, 8)
	if err != nil {
		panic(err)
	}
	return Effect(fx), byte(param)
}

// advanceToNextRow ticks the player in 1ms steps until its row advances, or
// give up after a generous upper bound (guards against a test pattern that
// never moves, e.g. a stuck E6x pattern loop).
func advanceToNextRow(t *testing.T, p *Player) {
	t.Helper()
	old := p.row
	for i := 0; i < 100000 && p.row == old; i++ {
		p.Tick(1)
	}
	if p.row == old {
		t.Fatalf("row did not advance past %d", old)
	}
}
