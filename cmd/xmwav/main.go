// XM player that renders straight to a WAV file instead of live audio.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ntxm-go/xmplayer"
	"github.com/ntxm-go/xmplayer/cmd/xmplay/mixer"
	"github.com/ntxm-go/xmplayer/cmd/xmwav/wav"
)

const (
	outputHz    = 44100
	blockFrames = 1024
)

type stderrEvents struct{}

func (stderrEvents) RowUpdated(int)         {}
func (stderrEvents) PotPositionUpdated(pos int) { fmt.Fprintf(os.Stderr, "pos %d\n", pos) }
func (stderrEvents) PlaybackStopped()       {}
func (stderrEvents) SampleFinished(int)     {}
func (stderrEvents) Debug(msg string)       { fmt.Fprintln(os.Stderr, msg) }

func main() {
	log.SetFlags(0)
	log.SetPrefix("xmwav: ")

	wavOut := flag.String("wav", "", "output WAVE file path")
	loop := flag.Bool("loop", false, "loop the song instead of stopping at the end")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Missing XM filename")
	}
	if *wavOut == "" {
		log.Fatal("No -wav option provided")
	}

	xmF, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	song, err := xmplayer.LoadXM(xmF)
	if err != nil {
		log.Fatal(err)
	}

	m := mixer.New(outputHz)
	player := xmplayer.NewPlayer(m, stderrEvents{})
	player.SetSong(song)
	player.Play(0, 0, *loop)

	wavF, err := os.Create(*wavOut)
	if err != nil {
		log.Fatal(err)
	}
	defer wavF.Close()

	wavW, err := wav.NewWriter(wavF, outputHz)
	if err != nil {
		log.Fatal(err)
	}

	buf := make([]int16, blockFrames*2)
	var framesRendered int64
	var msRendered int64

	for player.IsPlaying() {
		m.Generate(buf)
		if err := wavW.WriteFrame(buf); err != nil {
			log.Fatal(err)
		}

		framesRendered += blockFrames
		nextMs := framesRendered * 1000 / outputHz
		player.Tick(int(nextMs - msRendered))
		msRendered = nextMs
	}

	if err := wavW.Finish(); err != nil {
		log.Fatal(err)
	}
}
