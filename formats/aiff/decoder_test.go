// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"math"
	"testing"

	goaudio "github.com/go-audio/audio"
)

type fakeAiff struct {
	data []int
	pos  int
}

func (f *fakeAiff) Format() *goaudio.Format {
	return &goaudio.Format{NumChannels: 1, SampleRate: 8000}
}

func (f *fakeAiff) PCMBuffer(buf *goaudio.IntBuffer) (int, error) {
	n := min(len(buf.Data), len(f.data)-f.pos)
	if n <= 0 {
		return 0, nil
	}
	copy(buf.Data[:n], f.data[f.pos:f.pos+n])
	f.pos += n
	return n, nil
}

func TestSourceNormalizesBitDepths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bitDepth int
		raw      int
		want     float64
	}{
		{8, 64, 0.5},
		{16, 16384, 0.5},
		{16, -32768, -1.0},
		{24, 4194304, 0.5},
		{32, 1073741824, 0.5},
	}
	for _, tt := range tests {
		src := &source{
			dec:      &fakeAiff{data: []int{tt.raw}},
			bitDepth: tt.bitDepth,
		}
		buf := make([]float32, 1)
		if n := src.Read(buf); n != 1 {
			t.Fatalf("bitDepth %d: read %d", tt.bitDepth, n)
		}
		if math.Abs(float64(buf[0])-tt.want) > 1e-6 {
			t.Errorf("bitDepth %d: %d -> %v, want %v", tt.bitDepth, tt.raw, buf[0], tt.want)
		}
	}
}

func TestSourceShortReadAtEnd(t *testing.T) {
	t.Parallel()

	src := &source{dec: &fakeAiff{data: make([]int, 10)}, bitDepth: 16}
	buf := make([]float32, 64)
	if n := src.Read(buf); n != 10 {
		t.Errorf("read %d, want 10", n)
	}
	if n := src.Read(buf); n != 0 {
		t.Errorf("read past end = %d, want 0", n)
	}
}
