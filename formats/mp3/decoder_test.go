// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"io"
	"math"
	"testing"
)

// fakeMP3 emulates go-mp3's byte-stream interface: 16-bit little-endian
// stereo, one int16 value per sample.
type fakeMP3 struct {
	pcm []int16
	pos int
}

func (f *fakeMP3) Read(p []byte) (int, error) {
	if f.pos >= len(f.pcm) {
		return 0, io.EOF
	}
	n := 0
	for n+1 < len(p) && f.pos < len(f.pcm) {
		v := f.pcm[f.pos]
		p[n] = byte(v)
		p[n+1] = byte(uint16(v) >> 8)
		n += 2
		f.pos++
	}
	return n, nil
}

func (f *fakeMP3) Seek(offset int64, whence int) (int64, error) {
	f.pos = int(offset / bytesPerSample)
	return offset, nil
}

func (f *fakeMP3) Length() int64 {
	return int64(len(f.pcm)) * bytesPerSample
}

func TestSourceReadConvertsPCM(t *testing.T) {
	t.Parallel()

	src := &source{
		dec:      &fakeMP3{pcm: []int16{0, 16384, -16384, 32767}},
		seekable: true,
	}
	buf := make([]float32, 4)
	n := src.Read(buf)
	if n != 4 {
		t.Fatalf("read %d samples, want 4", n)
	}
	want := []float64{0, 0.5, -0.5, 32767.0 / 32768.0}
	for i := range want {
		if math.Abs(float64(buf[i])-want[i]) > 1e-4 {
			t.Errorf("sample %d = %v, want %v", i, buf[i], want[i])
		}
	}
	if n = src.Read(buf); n != 0 {
		t.Errorf("read past the end returned %d", n)
	}
}

func TestSourceSeekAndLength(t *testing.T) {
	t.Parallel()

	pcm := make([]int16, 400) // 200 stereo frames
	for i := range pcm {
		pcm[i] = int16(i)
	}
	src := &source{dec: &fakeMP3{pcm: pcm}, seekable: true}
	if frames, ok := src.EstimateLen(); !ok || frames != 200 {
		t.Errorf("EstimateLen = %v, %v, want 200 frames", frames, ok)
	}
	if frame, ok := src.Seek(50); !ok || frame != 50 {
		t.Errorf("Seek = %v, %v", frame, ok)
	}
	buf := make([]float32, 2)
	src.Read(buf)
	if buf[0] != float32(100)/32768.0 {
		t.Errorf("after seeking to frame 50, first sample = %v", buf[0])
	}
}

func TestSourceNotSeekable(t *testing.T) {
	t.Parallel()

	src := &source{dec: &fakeMP3{pcm: make([]int16, 8)}, seekable: false}
	if _, ok := src.Seek(0); ok {
		t.Error("seek must fail without a seekable input")
	}
	if _, ok := src.EstimateLen(); ok {
		t.Error("length must be unknown without a seekable input")
	}
}
