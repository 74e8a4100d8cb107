// A _very_ simple WAVE file writer.
// See http://soundfile.sapp.org/doc/WaveFormat/ for format documentation.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavTypePCM = 1

// ErrInvalidChunkHeaderLength means that the provided chunk name was not
// 4 characters.
var ErrInvalidChunkHeaderLength = errors.New("chunk header name is not 4 characters")

// Writer writes a WAV file and its sample data to WS as they arrive,
// backpatching the length fields when Finish is called.
type Writer struct {
	WS io.WriteSeeker
}

type format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// NewWriter returns a Writer for a 16-bit stereo WAV file at sampleRate.
func NewWriter(ws io.WriteSeeker, sampleRate int) (*Writer, error) {
	w := &Writer{WS: ws}

	if err := w.writeChunkHeader("RIFF", 0); err != nil {
		return nil, err
	}
	if _, err := ws.Write([]byte("WAVE")); err != nil {
		return nil, err
	}

	if err := w.writeChunkHeader("fmt ", 16); err != nil {
		return nil, err
	}
	f := format{AudioFormat: wavTypePCM, Channels: 2, SampleRate: uint32(sampleRate), BitsPerSample: 16}
	f.ByteRate = uint32(sampleRate) * 2 * (16 / 8)
	f.BlockAlign = 2 * (16 / 8)
	if err := binary.Write(ws, binary.LittleEndian, f); err != nil {
		return nil, err
	}

	if err := w.writeChunkHeader("data", 0); err != nil {
		return nil, err
	}

	return w, nil
}

// WriteFrame writes interleaved stereo samples to w.
func (w *Writer) WriteFrame(samples []int16) error {
	return binary.Write(w.WS, binary.LittleEndian, samples)
}

// Finish backpatches the RIFF and data chunk lengths now that the total
// size is known. Must be called once, after all audio has been written.
func (w *Writer) Finish() error {
	wlen, err := w.WS.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	if _, err := w.WS.Seek(4, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w.WS, binary.LittleEndian, int32(wlen-8)); err != nil {
		return err
	}

	if _, err := w.WS.Seek(40, io.SeekStart); err != nil {
		return err
	}
	return binary.Write(w.WS, binary.LittleEndian, int32(wlen-44))
}

func (w *Writer) writeChunkHeader(chunk string, initialSize int) error {
	if len(chunk) != 4 {
		return fmt.Errorf("%w: %q", ErrInvalidChunkHeaderLength, chunk)
	}
	if _, err := w.WS.Write([]byte(chunk)); err != nil {
		return err
	}
	return binary.Write(w.WS, binary.LittleEndian, int32(initialSize))
}
