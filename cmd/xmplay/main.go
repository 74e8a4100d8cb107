// Interactive terminal XM player.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/ntxm-go/xmplayer"
)

var (
	flagHz    = flag.Int("hz", 44100, "output hz")
	flagStart = flag.Int("start", 0, "starting pattern-order position, clamped to the song's max")
	flagNoUI  = flag.Bool("no-ui", false, "disable the terminal row display")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("xmplay: ")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("Missing XM filename")
	}

	xmF, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	song, err := xmplayer.LoadXM(xmF)
	if err != nil {
		log.Fatal(err)
	}

	start := *flagStart
	if start < 0 {
		start = 0
	}
	if start >= song.PotLength() {
		start = song.PotLength() - 1
	}

	ap := NewAudioPlayer(song, *flagHz, *flagNoUI)
	if err := ap.Run(*flagHz, start); err != nil {
		log.Fatal(err)
	}
}
