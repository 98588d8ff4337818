// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/secondmusic/audio"
)

// wavReader is an interface for gowav.Decoder to allow testing.
type wavReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type source struct {
	dec      wavReader
	format   *goaudio.Format
	bitDepth int
	frames   uint64
	hasLen   bool
	intBuf   *goaudio.IntBuffer
}

func (s *source) Read(dst []float32) int {
	if len(dst) == 0 {
		return 0
	}
	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: s.format,
		}
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]
	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 || (err != nil && n < 0) {
		return 0
	}
	var maxVal float32
	switch s.bitDepth {
	case 8:
		maxVal = 128.0
	case 16:
		maxVal = 32768.0
	case 24:
		maxVal = 8388608.0
	case 32:
		maxVal = 2147483648.0
	default:
		maxVal = 32768.0
	}
	for i := 0; i < n; i++ {
		dst[i] = float32(s.intBuf.Data[i]) / maxVal
	}
	return n
}

func (s *source) EstimateLen() (uint64, bool) {
	return s.frames, s.hasLen
}

// Decoder decodes RIFF WAVE files through go-audio/wav. The input must be an
// io.ReadSeeker; file handles qualify.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (*audio.FormattedSoundStream, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil, ErrSeekableRequired
	}
	dec := gowav.NewDecoder(rs)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, ErrNotWavFile
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	format := dec.Format()
	layout, ok := audio.GuessLayout(format.NumChannels)
	if !ok {
		return nil, ErrUnsupportedWavLayout
	}
	src := &source{
		dec:      dec,
		format:   format,
		bitDepth: int(dec.BitDepth),
	}
	if dur, err := dec.Duration(); err == nil && dur > 0 {
		src.frames = uint64(dur.Seconds() * float64(format.SampleRate))
		src.hasLen = true
	}
	return &audio.FormattedSoundStream{
		SampleRate: float64(format.SampleRate),
		Layout:     layout,
		Reader:     src,
	}, nil
}
