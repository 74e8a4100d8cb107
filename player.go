package xmplayer

// channelActive is the tri-state lifecycle of a mixer channel (§3 Player
// state).
type channelActive int

const (
	channelOff channelActive = iota
	channelOn
	channelToBeDisabled
)

// fadeOutMs is the duration of the anti-click fade used both for explicit
// stop/fade effects and for the automatic pre-row-boundary retrigger fade.
const fadeOutMs = 50

// fadeScale is the fixed-point unit for fadeVol: fadeScale means "no
// attenuation" (20.12 fixed point, §9).
const fadeScale = 4096

// playerChannel is the per-channel runtime state the tick engine mutates
// (§3 Player state, per channel).
type playerChannel struct {
	active channelActive
	single bool // true for PlayNote/PlaySample channels, not driven by the song cursor
	loop   bool
	msLeft int // ms remaining until a non-looping sample ends naturally

	note, prevNote Note
	instrument     *Instrument
	sample         *Sample
	keyHeld        bool // false once a key-off has been seen

	volume   int // target volume, 0..MaxVolume
	envVol   int // instrument envelope amplitude, 0..64
	fadeVol  int // anti-click fade amplitude, 0..fadeScale

	fadeActive       bool
	fadeIsVolumeSet  bool // true: this fade ramps ch.volume itself, not fadeVol
	fadeMs           int
	fadeTotalMs      int
	fadeStartVolume  int
	fadeTargetVolume int

	portaEnabled     bool
	portaIncrement   int
	portaAccumulator int
	portaToneTarget  int
	portaUp          bool

	vibPhase          int
	vibPhaseIncrement int
	vibDepth          int

	baseAccumulator int // pitch accumulator before per-tick pitch effects

	effect      Effect
	effectParam byte

	effect2      Effect2
	effect2Param byte

	setVolRequested bool
	setVolTarget    int
	lastSlideSpeed  int

	panning int // transient, 0..255
}

// Player is a tick-accurate XM state machine (§4.6) driving a Mixer from a
// Song. It is single-threaded and cooperative: every interactive mutator
// (PlayNote, PlaySample, StopChannel, SetSong, SetPatternLoop) is posted
// through a command queue and applied at the top of the next Tick, per §5.
type Player struct {
	song   *Song
	mixer  Mixer
	events Events

	channels [MaxChannels]playerChannel

	queue commandQueue

	playing     bool
	justStarted bool
	songLoop    bool
	patternLoop bool // interactive "loop current pattern forever" toggle
	waitRow     bool // a Stop() is pending at the next row boundary

	potPos   int
	pattern  int
	row      int
	rowTicks int
	tickMs   int64 // 16.16 fixed point

	patternLoopBegin   int
	patternLoopCount   int
	patternLoopJumpNow bool

	patternBreakRequested bool
	patternBreakRow       int
	positionJumpRequested bool
	positionJumpPos       int

	patternDelay      int
	patternDelayStore int

	lastAutoChannel int
}

// NewPlayer creates a Player bound to mixer and events; song may be nil
// (bind one later with SetSong).
func NewPlayer(mixer Mixer, events Events) *Player {
	if events == nil {
		events = NullEvents{}
	}
	p := &Player{mixer: mixer, events: events, lastAutoChannel: MaxChannels - 1}
	p.initChannelState()
	return p
}

func (p *Player) initChannelState() {
	for i := range p.channels {
		p.channels[i] = playerChannel{
			active:  channelOff,
			note:    NoteEmpty,
			prevNote: NoteEmpty,
			fadeVol: fadeScale,
			panning: 128,
		}
	}
}

// SetSong rebinds the song and clears all playback state (§4.6 Lifecycle).
func (p *Player) SetSong(s *Song) {
	p.queue.post(func(p *Player) {
		p.song = s
		p.playing = false
		p.justStarted = false
		p.waitRow = false
		p.potPos = 0
		p.row = 0
		p.rowTicks = 0
		p.tickMs = 0
		p.patternLoopBegin = 0
		p.patternLoopCount = 0
		p.patternLoopJumpNow = false
		p.patternBreakRequested = false
		p.positionJumpRequested = false
		p.patternDelay = 0
		p.patternDelayStore = 0
		p.initChannelState()
		if s != nil && len(s.POT) > 0 {
			p.pattern = int(s.POT[0])
		}
	})
}

// Song returns the currently bound song.
func (p *Player) Song() *Song { return p.song }

// IsPlaying reports whether the song cursor is advancing.
func (p *Player) IsPlaying() bool { return p.playing }

// Play starts song playback from (potPos, row). loop requests the engine
// restart at RestartPosition when the song reaches its end (§4.6).
func (p *Player) Play(potPos, row int, loop bool) {
	p.queue.post(func(p *Player) {
		p.startPlaybackLocked(potPos, row, loop)
	})
}

func (p *Player) startPlaybackLocked(potPos, row int, loop bool) {
	if p.song == nil || p.song.PotLength() == 0 {
		return
	}
	if potPos < 0 || potPos >= p.song.PotLength() {
		potPos = 0
	}
	p.potPos = potPos
	p.pattern = int(p.song.POT[potPos])
	if row < 0 || row >= p.song.PatternLength(p.pattern) {
		row = 0
	}
	p.row = row
	p.rowTicks = 0
	p.tickMs = 0
	p.songLoop = loop
	p.playing = true
	p.justStarted = true
	p.waitRow = false

	for i := range p.channels {
		if sample := p.channels[i].sample; sample != nil {
			sample.ResetPanning()
		}
	}
}

// SeekTo restarts playback at (potPos, row) without constructing a new
// Player (§9 Supplemented, grounded on the teacher's player.SeekTo).
func (p *Player) SeekTo(potPos, row int) {
	p.Play(potPos, row, p.songLoop)
}

// Stop requests a fade-out of every active channel and halts the song
// cursor at the next row boundary. Idempotent: a second call before the
// boundary is a no-op (§5 Cancellation).
func (p *Player) Stop() {
	p.queue.post(func(p *Player) {
		if !p.playing || p.waitRow {
			return
		}
		p.waitRow = true
		for i := range p.channels {
			if p.channels[i].active == channelOn {
				p.startFade(i, 0, fadeOutMs)
			}
		}
	})
}

// SetPatternLoop toggles the "loop the current pattern forever" behavior
// (§9 Supplemented — distinct from the E6x tracker effect).
func (p *Player) SetPatternLoop(loop bool) {
	p.queue.post(func(p *Player) { p.patternLoop = loop })
}

// resolveChannel implements the channel==255 "auto" selection rule: find a
// free channel from the highest index down, and remember it so a paired
// StopChannel(255) call lands on the same channel.
func (p *Player) resolveChannel(channel int) int {
	if channel != 255 {
		if channel < 0 || channel >= MaxChannels {
			return -1
		}
		return channel
	}
	for i := MaxChannels - 1; i >= 0; i-- {
		if p.channels[i].active == channelOff {
			p.lastAutoChannel = i
			return i
		}
	}
	return p.lastAutoChannel
}

// PlayNote is an interactive (editor) entry point, independent of the song
// cursor: play note on channel using instrument inst at vol (§4.6).
func (p *Player) PlayNote(note Note, vol int, channel int, inst *Instrument) {
	p.queue.post(func(p *Player) {
		c := p.resolveChannel(channel)
		if c < 0 || inst == nil {
			return
		}
		sample := inst.GetSampleForNote(note)
		if sample == nil {
			return
		}
		ch := &p.channels[c]
		p.stopSingleSampleLocked(c, true)

		ch.active = channelOn
		ch.single = true
		ch.note, ch.prevNote = note, NoteEmpty
		ch.instrument = inst
		ch.sample = sample
		ch.keyHeld = true
		ch.volume = vol
		ch.envVol = 64
		ch.fadeVol = fadeScale
		ch.fadeActive = false
		ch.loop = sample.LoopType != LoopNone
		ch.panning = sample.BasePanning
		sample.Panning = sample.BasePanning

		acc := NoteAccumulator(note, sample.RelNote, sample.Finetune)
		ch.baseAccumulator = acc
		ch.msLeft = sample.PlayLengthMS(acc, p.songBPM())
		inst.Play(p.mixer, c, note, acc, scaleMixerVolume(ch.volume, ch.envVol, ch.fadeVol))
	})
}

// PlaySample plays sample directly on channel, bypassing any instrument
// (§4.6). Per §9's Open Question resolution, any single sample previously
// active on the channel is always stopped first, and SampleFinished fires
// only for that preempted sample — never for the one just started.
func (p *Player) PlaySample(sample *Sample, note Note, vol int, channel int) {
	p.queue.post(func(p *Player) {
		c := p.resolveChannel(channel)
		if c < 0 || sample == nil {
			return
		}
		p.stopSingleSampleLocked(c, true)

		ch := &p.channels[c]
		ch.active = channelOn
		ch.single = true
		ch.note, ch.prevNote = note, NoteEmpty
		ch.instrument = nil
		ch.sample = sample
		ch.keyHeld = true
		ch.volume = vol
		ch.envVol = 64
		ch.fadeVol = fadeScale
		ch.fadeActive = false
		ch.loop = sample.LoopType != LoopNone
		ch.panning = sample.BasePanning
		sample.Panning = sample.BasePanning

		acc := NoteAccumulator(note, sample.RelNote, sample.Finetune)
		ch.baseAccumulator = acc
		ch.msLeft = sample.PlayLengthMS(acc, p.songBPM())
		sample.Play(p.mixer, c, acc, scaleMixerVolume(ch.volume, ch.envVol, ch.fadeVol))
	})
}

// StopChannel fades channel c out. Immediate for a free-running single
// sample, lazy (fade) for a song channel (§5 Cancellation).
func (p *Player) StopChannel(channel int) {
	p.queue.post(func(p *Player) {
		c := p.lastAutoChannel
		if channel != 255 {
			c = p.resolveChannel(channel)
		}
		if c < 0 {
			return
		}
		if p.channels[c].single {
			p.stopSingleSampleLocked(c, false)
		} else {
			p.startFade(c, 0, fadeOutMs)
		}
	})
}

// stopSingleSampleLocked silences a free-running single-sample channel. If
// notify is true and a sample was actually preempted, a SampleFinished
// event fires for it (the §9 Open Question resolution).
func (p *Player) stopSingleSampleLocked(c int, notify bool) {
	ch := &p.channels[c]
	wasPlaying := ch.active != channelOff && ch.single
	ch.active = channelOff
	ch.single = false
	ch.sample = nil
	ch.instrument = nil
	ch.fadeActive = false
	p.mixer.Stop(c)
	if wasPlaying && notify {
		p.events.SampleFinished(c)
	}
}

func (p *Player) songBPM() int {
	if p.song == nil {
		return 125
	}
	return p.song.BPM
}

// scaleMixerVolume folds target volume (0..MaxVolume), envelope amplitude
// (0..64) and fade amplitude (0..fadeScale) down to the Mixer's 0..31 range.
// The reference does this through the constants 0x210/0x418/0x3c1; any
// scaling that lands in the same range is equivalent (§4.6).
func scaleMixerVolume(volume, envVol, fadeVol int) int {
	v := volume * envVol * fadeVol
	v >>= 20 // 128 * 64 * 4096 == 1<<25; >>20 lands in 0..32, clamped to 31 below
	if v < 0 {
		v = 0
	}
	if v > 31 {
		v = 31
	}
	return v
}

// startFade arms the anti-click fade engine on channel c toward target
// (0..fadeScale) over durationMs. Used for stop/note-cut/pre-retrigger
// fades, which collapse the mixer gain regardless of the channel's volume.
func (p *Player) startFade(c, target, durationMs int) {
	ch := &p.channels[c]
	ch.fadeActive = true
	ch.fadeIsVolumeSet = false
	ch.fadeMs = durationMs
	ch.fadeTotalMs = durationMs
	ch.fadeStartVolume = ch.fadeVol
	ch.fadeTargetVolume = target
}

// startVolumeFade arms the same engine toward a new channel volume (0..
// MaxVolume, not a fadeVol attenuation) over durationMs, for deferred
// Cxx/volume-slide/fine-vol requests applied from prepareAntiClick (§4.6):
// unlike startFade, this ramps ch.volume itself and leaves fadeVol alone.
func (p *Player) startVolumeFade(c, target, durationMs int) {
	ch := &p.channels[c]
	ch.fadeActive = true
	ch.fadeIsVolumeSet = true
	ch.fadeMs = durationMs
	ch.fadeTotalMs = durationMs
	ch.fadeStartVolume = ch.volume
	ch.fadeTargetVolume = target
}

// handleFade advances channel c's fade curve by dtMs (§4.6 Fade engine).
func (p *Player) handleFade(c, dtMs int) {
	ch := &p.channels[c]
	if !ch.fadeActive {
		return
	}

	ch.fadeMs -= dtMs
	if ch.fadeMs <= 0 {
		if ch.fadeIsVolumeSet {
			ch.volume = ch.fadeTargetVolume
			ch.fadeVol = fadeScale
		} else {
			ch.fadeVol = ch.fadeTargetVolume
			if ch.fadeTargetVolume == 0 {
				ch.active = channelToBeDisabled
			}
		}
		ch.fadeActive = false
		return
	}

	elapsed := ch.fadeTotalMs - ch.fadeMs
	span := ch.fadeTargetVolume - ch.fadeStartVolume
	v := ch.fadeStartVolume + span*elapsed/ch.fadeTotalMs

	lo, hi := ch.fadeStartVolume, ch.fadeTargetVolume
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	if ch.fadeIsVolumeSet {
		ch.volume = v
	} else {
		ch.fadeVol = v
	}
}

// Tick advances the engine by dtMs milliseconds (§4.6 on_tick). Callers
// typically invoke this from a ~1kHz monotonic clock (§6 Time source); tests
// may call it with any schedule.
func (p *Player) Tick(dtMs int) {
	p.queue.drain(func(c command) { c(p) })

	for i := range p.channels {
		p.handleFade(i, dtMs)
		p.tickSingleSample(i, dtMs)
	}

	if p.song == nil {
		return
	}

	p.tickMs += int64(dtMs) << 16
	msPerTick := int64(p.song.MsPerTick()) << 16

	if p.tickMs+int64(fadeOutMs)<<16 >= msPerTick {
		p.prepareAntiClick()
	}

	for i := range p.channels {
		p.advanceChannelVolume(i, dtMs)
	}

	if p.playing && p.justStarted {
		p.playRow()
		p.handleEffects()
		p.handleTickEffects()
		p.justStarted = false
		p.events.RowUpdated(p.row)
	}

	if p.tickMs >= msPerTick {
		p.onTickBoundary(msPerTick)
	}
}

// tickSingleSample counts down a free-running single-sample channel's
// remaining lifetime and fires SampleFinished on natural end (§4.6).
func (p *Player) tickSingleSample(c, dtMs int) {
	ch := &p.channels[c]
	if ch.active == channelOff || !ch.single || ch.loop {
		return
	}
	ch.msLeft -= dtMs
	if ch.msLeft <= 0 {
		p.mixer.Stop(c)
		ch.active = channelOff
		ch.single = false
		ch.sample = nil
		p.events.SampleFinished(c)
	}
}

// prepareAntiClick runs the two pre-row-boundary fade preparations: apply
// any deferred "set volume" request, and, on the row's last tick, pre-fade
// any channel about to be retriggered by the upcoming row's note.
func (p *Player) prepareAntiClick() {
	for i := range p.channels {
		ch := &p.channels[i]
		if ch.setVolRequested {
			ch.setVolRequested = false
			p.startVolumeFade(i, ch.setVolTarget, fadeOutMs)
		}
	}

	if p.song == nil || p.rowTicks != p.song.Tempo-1 {
		return
	}
	nextCells := p.peekNextRowCells()
	if nextCells == nil {
		return
	}
	for i, cell := range nextCells {
		if i >= MaxChannels {
			break
		}
		if cell.Note != NoteEmpty && cell.Note != NoteOff {
			ch := &p.channels[i]
			if ch.active == channelOn && !ch.fadeActive {
				p.startFade(i, 0, fadeOutMs)
			}
		}
	}
}

// peekNextRowCells returns the cells of the row that calcNextPos would
// select right now, without mutating any engine state, or nil if no new
// row is coming up next tick (e.g. a pattern delay is holding).
func (p *Player) peekNextRowCells() []Cell {
	row, potPos, _, finished := p.calcNextPos()
	if finished || p.patternDelay > 1 {
		return nil
	}
	pattern := p.song.Pattern(int(p.song.POT[potPos]))
	if pattern == nil {
		return nil
	}
	cells := make([]Cell, len(pattern.Channels))
	for c := range pattern.Channels {
		cells[c] = pattern.Cell(c, row)
	}
	return cells
}

// advanceChannelVolume advances per-channel envelope position and recomputes
// the effective mixer volume (§4.6).
func (p *Player) advanceChannelVolume(c, dtMs int) {
	ch := &p.channels[c]
	if ch.active == channelOff {
		return
	}
	if ch.active == channelToBeDisabled {
		p.mixer.Stop(c)
		ch.active = channelOff
		return
	}

	if ch.instrument != nil {
		ch.instrument.UpdateEnvelopePos(c, ch.keyHeld)
		ch.envVol = ch.instrument.EnvelopeAmp(c)
	} else {
		ch.envVol = 64
	}

	vol := scaleMixerVolume(ch.volume, ch.envVol, ch.fadeVol)
	if !ch.single && p.song != nil && p.song.ChannelMuted(c) {
		vol = 0
	}
	p.mixer.SetVolume(c, vol)
}

// onTickBoundary runs every time tick_ms crosses ms_per_tick (§4.6): it
// advances row_ticks and, once a full row's worth of ticks have elapsed,
// computes and commits the next row position and runs the per-row effect
// handling. handle_tick_effects always runs, once per boundary, regardless
// of whether the row advanced this time.
func (p *Player) onTickBoundary(msPerTick int64) {
	p.rowTicks++
	if p.rowTicks >= p.song.Tempo {
		p.rowTicks = 0

		if p.patternDelayStore > 0 {
			p.patternDelay = p.patternDelayStore
			p.patternDelayStore = 0
		}

		row, potPos, pattern, finished := p.calcNextPos()

		if p.waitRow {
			p.stopAllChannels()
			p.playing = false
			p.waitRow = false
			p.events.PlaybackStopped()
			p.tickMs -= msPerTick
			p.copyPrevNotes()
			return
		}

		p.finishEffects(pattern, row)

		if p.patternDelay > 1 {
			p.patternDelay--
		} else {
			p.row, p.potPos, p.pattern = row, potPos, pattern
			p.patternLoopJumpNow = false
			p.patternBreakRequested = false
			p.positionJumpRequested = false
			if finished {
				p.stopAllChannels()
				p.playing = false
				p.events.PlaybackStopped()
				p.tickMs -= msPerTick
				p.copyPrevNotes()
				return
			}
			p.playRow()
		}

		p.handleEffects()
		p.events.RowUpdated(p.row)
		if p.row == 0 {
			p.events.PotPositionUpdated(p.potPos)
		}
	}

	p.handleTickEffects()

	p.tickMs -= msPerTick
	p.copyPrevNotes()
}

func (p *Player) copyPrevNotes() {
	for i := range p.channels {
		p.channels[i].prevNote = p.channels[i].note
	}
}

func (p *Player) stopAllChannels() {
	for i := range p.channels {
		ch := &p.channels[i]
		if ch.active != channelOff {
			p.mixer.Stop(i)
		}
		ch.active = channelOff
		if sample := ch.sample; sample != nil {
			sample.ResetPanning()
		}
	}
}

// calcNextPos computes the next (row, potPos, pattern, finished) following
// the priority order in §4.6:
//  1. pattern delay stall
//  2. pattern-loop jump
//  3. pattern break (± position jump)
//  4. end of pattern (song loop / pattern loop / finished)
//  5. simple row+1
//
// Pure: it reads but never clears patternLoopJumpNow/patternBreakRequested/
// positionJumpRequested. It is also used by peekNextRowCells to look ahead
// without committing, so consuming those flags here would drop the request
// when the real tick boundary asks again.
func (p *Player) calcNextPos() (row, potPos, pattern int, finished bool) {
	potPos = p.potPos
	pattern = p.pattern

	if p.patternDelay > 1 {
		return p.row, potPos, pattern, false
	}

	if p.patternLoopJumpNow {
		return p.patternLoopBegin, potPos, pattern, false
	}

	if p.patternBreakRequested {
		row = p.patternBreakRow
		if p.positionJumpRequested {
			potPos = p.positionJumpPos
		} else {
			potPos++
		}
		if potPos >= p.song.PotLength() {
			potPos = p.song.RestartPosition
		}
		pattern = int(p.song.POT[potPos])
		return row, potPos, pattern, false
	}

	plen := p.song.PatternLength(pattern)
	if p.row+1 >= plen {
		if p.patternLoop {
			return 0, potPos, pattern, false
		}
		potPos++
		if potPos >= p.song.PotLength() {
			if p.songLoop {
				potPos = p.song.RestartPosition
			} else {
				return 0, potPos, pattern, true
			}
		}
		pattern = int(p.song.POT[potPos])
		return 0, potPos, pattern, false
	}

	return p.row + 1, potPos, pattern, false
}

// playRow triggers new notes for the current row (§4.6 Row playback): for
// each channel with a non-empty, non-stop note, a valid instrument, an
// effect other than tone-porta, and no note-delay pending, start the note.
func (p *Player) playRow() {
	pattern := p.song.Pattern(p.pattern)
	if pattern == nil {
		return
	}

	nChannels := minInt(minInt(p.song.Channels, MaxChannels), len(pattern.Channels))
	for c := 0; c < nChannels; c++ {
		cell := pattern.Cell(c, p.row)
		ch := &p.channels[c]

		ch.note = cell.Note
		ch.effect = cell.Effect
		ch.effectParam = cell.EffectParam
		ch.effect2 = cell.Effect2
		ch.effect2Param = cell.Effect2Param

		if cell.Instrument != NoNote {
			ch.instrument = p.song.Instrument(cell.Instrument)
		}

		noteDelay := cell.Effect == EffectExtended && (cell.EffectParam>>4) == ExtNoteDelay && (cell.EffectParam&0xF) != 0
		toneporta := cell.Effect == EffectTonePorta || cell.Effect2 == Effect2TonePorta

		if cell.Note == NoteOff {
			ch.keyHeld = false
			if !ch.single {
				ch.active = channelToBeDisabled
			}
		} else if cell.Note != NoteEmpty && ch.instrument != nil && !toneporta && !noteDelay {
			p.triggerNote(c, cell.Note, ch.instrument)
		}

		if cell.Volume != NoNote {
			p.updateChannelVolume(c, cell.Volume)
		}
		if sample := ch.sample; sample != nil {
			sample.ResetPanning()
			ch.panning = sample.BasePanning
		}
	}
}

// triggerNote starts note on channel c using inst, per playRow.
func (p *Player) triggerNote(c int, note Note, inst *Instrument) {
	ch := &p.channels[c]
	sample := inst.GetSampleForNote(note)
	if sample == nil {
		return
	}

	ch.active = channelOn
	ch.single = false
	ch.sample = sample
	ch.keyHeld = true
	ch.loop = sample.LoopType != LoopNone
	ch.fadeActive = false
	ch.fadeVol = fadeScale
	if ch.volume == 0 {
		ch.volume = sample.Volume * MaxVolume / 255
	}
	ch.portaEnabled = false
	ch.portaAccumulator = 0

	acc := NoteAccumulator(note, sample.RelNote, sample.Finetune)
	ch.baseAccumulator = acc
	ch.msLeft = sample.PlayLengthMS(acc, p.song.BPM)

	inst.Play(p.mixer, c, note, acc, scaleMixerVolume(ch.volume, ch.envVol, ch.fadeVol))
}

// updateChannelVolume applies the volume-column value from a cell.
func (p *Player) updateChannelVolume(c, vol int) {
	ch := &p.channels[c]
	if vol > MaxVolume {
		vol = MaxVolume
	}
	if vol < 0 {
		vol = 0
	}
	ch.volume = vol
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
