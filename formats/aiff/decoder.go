// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"fmt"
	"io"

	goaiff "github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"

	"github.com/ik5/secondmusic/audio"
)

// aiffReader is an interface for goaiff.Decoder to allow testing.
type aiffReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
	Format() *goaudio.Format
}

type source struct {
	dec      aiffReader
	bitDepth int
	intBuf   *goaudio.IntBuffer
}

func (s *source) Read(dst []float32) int {
	if len(dst) == 0 {
		return 0
	}
	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: s.dec.Format(),
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

// Decoder decodes AIFF files through go-audio/aiff. The input must be an
// io.ReadSeeker; file handles qualify.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (*audio.FormattedSoundStream, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil, ErrSeekableRequired
	}
	dec := goaiff.NewDecoder(rs)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, ErrNotAiffFile
	}
	format := dec.Format()
	if format == nil {
		return nil, fmt.Errorf("%w", ErrNotAiffFile)
	}
	layout, ok := audio.GuessLayout(format.NumChannels)
	if !ok {
		return nil, ErrUnsupportedAiffLayout
	}
	return &audio.FormattedSoundStream{
		SampleRate: float64(format.SampleRate),
		Layout:     layout,
		Reader: &source{
			dec:      dec,
			bitDepth: int(dec.BitDepth),
		},
	}, nil
}
