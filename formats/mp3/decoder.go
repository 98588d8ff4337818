// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/ik5/secondmusic/audio"
)

// mp3Reader is an interface for gomp3.Decoder to allow testing.
type mp3Reader interface {
	Read([]byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Length() int64
}

// go-mp3 always produces 16-bit little-endian stereo.
const (
	channels       = 2
	bytesPerSample = 2
	bytesPerFrame  = channels * bytesPerSample
)

type source struct {
	dec      mp3Reader
	seekable bool
	buf      []byte
}

func (s *source) Read(dst []float32) int {
	bytesNeeded := len(dst) * bytesPerSample
	if cap(s.buf) < bytesNeeded {
		s.buf = make([]byte, bytesNeeded)
	}
	s.buf = s.buf[:bytesNeeded]
	total := 0
	// go-mp3 reads at most one frame at a time; keep going until the buffer
	// is full or the stream ends.
	for total < bytesNeeded {
		n, err := s.dec.Read(s.buf[total:])
		total += n
		if err != nil || n == 0 {
			break
		}
	}
	samples := total / bytesPerSample
	for i := 0; i < samples; i++ {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = float32(v) / 32768.0
	}
	return samples
}

func (s *source) Seek(frame uint64) (uint64, bool) {
	if !s.seekable {
		return 0, false
	}
	_, err := s.dec.Seek(int64(frame)*bytesPerFrame, io.SeekStart)
	if err != nil {
		return 0, false
	}
	return frame, true
}

func (s *source) EstimateLen() (uint64, bool) {
	if !s.seekable {
		return 0, false
	}
	length := s.dec.Length()
	if length < 0 {
		return 0, false
	}
	return uint64(length) / bytesPerFrame, true
}

// Decoder decodes MPEG-1 Layer 3 files through hajimehoshi/go-mp3. Seeking
// and length estimation are available when the input is an io.Seeker.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (*audio.FormattedSoundStream, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	_, seekable := r.(io.Seeker)
	return &audio.FormattedSoundStream{
		SampleRate: float64(dec.SampleRate()),
		Layout:     audio.Stereo,
		Reader:     &source{dec: dec, seekable: seekable, buf: make([]byte, 8192)},
	}, nil
}
