package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/fatih/color"
	"github.com/gordonklaus/portaudio"
	"github.com/ntxm-go/xmplayer"
	"github.com/ntxm-go/xmplayer/cmd/xmplay/mixer"
)

var (
	white   = color.New(color.FgWhite).SprintfFunc()
	cyan    = color.New(color.FgCyan).SprintfFunc()
	magenta = color.New(color.FgMagenta).SprintfFunc()
	yellow  = color.New(color.FgYellow).SprintfFunc()
	blue    = color.New(color.FgHiBlue).SprintFunc()
	green   = color.New(color.FgGreen).SprintfFunc()
)

const (
	escape     = "\x1b["
	hideCursor = escape + "?25l"
	showCursor = escape + "?25h"
)

const (
	patternRowsBefore = 4
	patternRowsAfter  = 4
	uiLineCount       = 3
)

// rowEvent is posted from the audio callback's events.RowUpdated, and
// drained on the render loop goroutine. Events must be cheap and must not
// call back into the Player, so this just stashes the numbers.
type rowEvent struct {
	pot, row int
}

// queueEvents adapts xmplayer.Events into a small buffered channel so the
// render loop can pick up row/position changes without touching the
// Player from the audio callback thread.
type queueEvents struct {
	rows chan rowEvent
	pot  int
}

func newQueueEvents() *queueEvents {
	return &queueEvents{rows: make(chan rowEvent, 64)}
}

func (e *queueEvents) RowUpdated(row int) {
	select {
	case e.rows <- rowEvent{pot: e.pot, row: row}:
	default:
	}
}
func (e *queueEvents) PotPositionUpdated(pos int) { e.pot = pos }
func (e *queueEvents) PlaybackStopped()           {}
func (e *queueEvents) SampleFinished(int)         {}
func (e *queueEvents) Debug(string)               {}

// AudioPlayer encapsulates audio playback and UI rendering for one XM song.
type AudioPlayer struct {
	player *xmplayer.Player
	song   *xmplayer.Song
	mix    *mixer.Mixer
	events *queueEvents
	stream *portaudio.Stream

	samplingHz     int
	framesRendered int64
	lastMs         int64

	uiWriter        io.Writer
	selectedChannel int
	soloChannel     int
	lastPot, lastRow int

	ctx            context.Context
	cancelFn       context.CancelFunc
	wg             sync.WaitGroup
	stopOnce       sync.Once
	terminated     bool
	keyboardDoneCh chan struct{}
}

// NewAudioPlayer wires up a Player/Mixer pair for song and returns an
// AudioPlayer ready to Run.
func NewAudioPlayer(song *xmplayer.Song, samplingHz int, noUI bool) *AudioPlayer {
	var uiw io.Writer = os.Stdout
	if noUI {
		uiw = io.Discard
	}

	events := newQueueEvents()
	m := mixer.New(samplingHz)
	p := xmplayer.NewPlayer(m, events)
	p.SetSong(song)

	ctx, cancel := context.WithCancel(context.Background())

	return &AudioPlayer{
		player:         p,
		song:           song,
		mix:            m,
		events:         events,
		samplingHz:     samplingHz,
		uiWriter:       uiw,
		soloChannel:    -1,
		ctx:            ctx,
		cancelFn:       cancel,
		keyboardDoneCh: make(chan struct{}),
	}
}

// Run starts audio playback and the UI rendering loop, returning once the
// user quits.
func (ap *AudioPlayer) Run(samplingHz, startPot int) error {
	ap.player.Play(startPot, 0, false)

	if err := portaudio.Initialize(); err != nil {
		return err
	}

	stream, err := portaudio.OpenDefaultStream(0, 2, float64(samplingHz), 1024, ap.streamCallback)
	if err != nil {
		return err
	}
	ap.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}

	ap.setupSignalHandlers()
	ap.setupKeyboardHandlers()

	fmt.Fprint(ap.uiWriter, hideCursor)
	fmt.Fprintln(ap.uiWriter, ap.song.Name)

	for {
		select {
		case <-ap.ctx.Done():
			goto exit
		case ev := <-ap.events.rows:
			ap.lastPot, ap.lastRow = ev.pot, ev.row
			ap.renderUI()
		}
	}

exit:
	fmt.Fprint(ap.uiWriter, showCursor)

	select {
	case <-ap.keyboardDoneCh:
	case <-time.After(500 * time.Millisecond):
	}

	ap.wg.Wait()
	return nil
}

// streamCallback is called by PortAudio to generate audio samples. It
// ticks the player in lockstep with the frames it renders, so the tick
// engine's internal clock stays matched to the audio clock.
func (ap *AudioPlayer) streamCallback(out []int16) {
	if !ap.player.IsPlaying() {
		clear(out)
		return
	}

	ap.mix.Generate(out)

	ap.framesRendered += int64(len(out) / 2)
	nextMs := ap.framesRendered * 1000 / int64(ap.samplingHz)
	ap.player.Tick(int(nextMs - ap.lastMs))
	ap.lastMs = nextMs
}

func (ap *AudioPlayer) setupSignalHandlers() {
	sigch := make(chan os.Signal, 5)
	signal.Notify(sigch, syscall.SIGINT)

	ap.wg.Add(1)
	go func() {
		defer ap.wg.Done()
		for {
			select {
			case <-ap.ctx.Done():
				return
			case sig := <-sigch:
				if sig == syscall.SIGINT {
					ap.Stop()
					return
				}
			}
		}
	}()
}

func (ap *AudioPlayer) setupKeyboardHandlers() {
	ap.wg.Add(1)
	go func() {
		defer ap.wg.Done()
		keyboard.Listen(func(key keys.Key) (stop bool, err error) {
			if key.Code == keys.CtrlC || key.Code == keys.Escape {
				ap.Stop()
				return true, nil
			}
			ap.handleKeyPress(key)
			return false, nil
		})
		close(ap.keyboardDoneCh)
	}()
}

func (ap *AudioPlayer) handleKeyPress(key keys.Key) {
	switch key.Code {
	case keys.Left:
		if ap.selectedChannel > 0 {
			ap.selectedChannel--
		}
	case keys.Right:
		if ap.selectedChannel < ap.song.Channels-1 {
			ap.selectedChannel++
		}
	case keys.Space:
		if ap.player.IsPlaying() {
			ap.player.Stop()
		} else {
			ap.player.Play(ap.lastPot, ap.lastRow, false)
		}
	case keys.RuneKey:
		if len(key.Runes) == 0 {
			return
		}
		switch key.Runes[0] {
		case 'q':
			muted := ap.song.ChannelMuted(ap.selectedChannel)
			ap.song.SetChannelMuted(ap.selectedChannel, !muted)
		case 's':
			if ap.soloChannel != ap.selectedChannel {
				ap.soloChannel = ap.selectedChannel
				for c := 0; c < ap.song.Channels; c++ {
					ap.song.SetChannelMuted(c, c != ap.selectedChannel)
				}
			} else {
				ap.soloChannel = -1
				for c := 0; c < ap.song.Channels; c++ {
					ap.song.SetChannelMuted(c, false)
				}
			}
		}
	}
}

func (ap *AudioPlayer) Stop() {
	ap.stopOnce.Do(func() {
		ap.player.Stop()
		ap.cancelFn()

		if ap.stream != nil {
			ap.stream.Stop()
			ap.stream.Close()
		}
		if !ap.terminated {
			portaudio.Terminate()
			ap.terminated = true
		}

		fmt.Fprint(ap.uiWriter, showCursor)
	})
}

func (ap *AudioPlayer) renderUI() {
	fmt.Fprintf(ap.uiWriter, "%s %02X %s %02X/%02X\n",
		blue("row"), ap.lastRow, blue("pat"), ap.lastPot, ap.song.PotLength())

	for i := -patternRowsBefore; i <= patternRowsAfter; i++ {
		ap.renderNoteRow(ap.lastPot, ap.lastRow+i, i == 0)
	}

	fmt.Fprintf(ap.uiWriter, escape+"%dF", uiLineCount+patternRowsBefore+patternRowsAfter)
}

func (ap *AudioPlayer) renderNoteRow(potPos, row int, isCurrent bool) {
	pattern := ap.song.Pattern(int(ap.song.POT[potPos%len(ap.song.POT)]))
	if pattern == nil || row < 0 || row >= pattern.Rows() {
		fmt.Fprintln(ap.uiWriter)
		return
	}

	if isCurrent {
		fmt.Fprint(ap.uiWriter, ">>> ")
	} else {
		fmt.Fprint(ap.uiWriter, "    ")
	}

	maxChannels := 4
	for c := 0; c < len(pattern.Channels) && c < maxChannels; c++ {
		cell := pattern.Cell(c, row)
		fmt.Fprint(ap.uiWriter, white("%s", noteStr(cell.Note)), " ",
			cyan("%2X", cell.Instrument), " ", magenta("%X", cell.Effect), yellow("%02X", cell.EffectParam))
		if c < maxChannels-1 {
			fmt.Fprint(ap.uiWriter, "|")
		}
	}
	if len(pattern.Channels) > maxChannels {
		fmt.Fprint(ap.uiWriter, " ...")
	}

	if isCurrent {
		fmt.Fprint(ap.uiWriter, " <<<")
	}
	fmt.Fprintln(ap.uiWriter)
}

var noteNames = [12]string{"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}

// noteStr renders a Note as e.g. "C-4", "===" for note-off, or "..." for
// an empty cell.
func noteStr(n xmplayer.Note) string {
	switch n {
	case xmplayer.NoteEmpty:
		return "..."
	case xmplayer.NoteOff:
		return "==="
	default:
		octave := int(n) / 12
		return fmt.Sprintf("%s%d", noteNames[int(n)%12], octave)
	}
}
