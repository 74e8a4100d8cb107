package xmplayer

import (
	"fmt"
	"io"
)

// dumpWriter, when non-nil, receives a trace of codec loads: one summary
// line per file (song name, channel/pattern/instrument counts, tempo and
// bpm); patterns and instruments are not traced individually. Grounded on
// xm_transport.cpp's my_dprintf calls and the teacher's SetDumpWriter.
var dumpWriter io.Writer

// SetDumpWriter directs codec trace output to w, or disables it if w is
// nil. Intended for cmd/xmdump-style inspection tools; ordinary library
// use leaves it unset.
func SetDumpWriter(w io.Writer) {
	dumpWriter = w
}

func dprintf(format string, args ...interface{}) {
	if dumpWriter == nil {
		return
	}
	fmt.Fprintf(dumpWriter, format, args...)
}
