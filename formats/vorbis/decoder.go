// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/ik5/secondmusic/audio"
)

// oggReader is an interface for oggvorbis.Reader to allow testing.
type oggReader interface {
	Read([]float32) (int, error)
	SetPosition(pos int64) error
	Length() int64
}

type source struct {
	dec      oggReader
	channels int
	seekable bool
}

func (s *source) Read(dst []float32) int {
	// keep reads to whole sample frames
	want := len(dst) / s.channels * s.channels
	total := 0
	for total < want {
		n, err := s.dec.Read(dst[total:want])
		total += n
		if err != nil || n == 0 {
			break
		}
	}
	return total
}

func (s *source) Seek(frame uint64) (uint64, bool) {
	if !s.seekable {
		return 0, false
	}
	if err := s.dec.SetPosition(int64(frame)); err != nil {
		return 0, false
	}
	return frame, true
}

func (s *source) EstimateLen() (uint64, bool) {
	if !s.seekable {
		return 0, false
	}
	length := s.dec.Length()
	if length <= 0 {
		return 0, false
	}
	return uint64(length), true
}

// Decoder decodes Ogg Vorbis files through jfreymuth/oggvorbis. Seeking is
// sample-exact when the input is an io.ReadSeeker.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (*audio.FormattedSoundStream, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	layout, ok := audio.GuessLayout(dec.Channels())
	if !ok {
		return nil, ErrUnsupportedChannelCount
	}
	_, seekable := r.(io.ReadSeeker)
	return &audio.FormattedSoundStream{
		SampleRate: float64(dec.SampleRate()),
		Layout:     layout,
		Reader: &source{
			dec:      dec,
			channels: dec.Channels(),
			seekable: seekable,
		},
	}, nil
}
