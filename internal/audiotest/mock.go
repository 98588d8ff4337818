// SPDX-License-Identifier: EPL-2.0

// Package audiotest provides deterministic sound sources and a delegate for
// engine tests.
package audiotest

import (
	"math"
	"sync"

	"github.com/ik5/secondmusic/audio"
)

// MockSource generates audio from a waveform function. It supports the full
// optional capability set (seek, coarse skip, clone, length estimate) so
// tests can exercise every engine path.
type MockSource struct {
	sampleRate  int
	channels    int
	totalFrames int
	position    int
	waveform    func(frame, channel int) float32
}

// NewMockSource creates a mock source. totalFrames is the number of sample
// frames to generate; waveform maps (frame, channel) to a sample value.
func NewMockSource(sampleRate, channels, totalFrames int, waveform func(frame, channel int) float32) *MockSource {
	return &MockSource{
		sampleRate:  sampleRate,
		channels:    channels,
		totalFrames: totalFrames,
		waveform:    waveform,
	}
}

// NewSilentSource generates totalFrames of silence.
func NewSilentSource(sampleRate, channels, totalFrames int) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame, channel int) float32 {
		return 0
	})
}

// NewSineSource generates a sine wave at the given frequency.
func NewSineSource(sampleRate, channels, totalFrames int, frequency float64) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame, channel int) float32 {
		t := float64(frame) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

// NewConstantSource generates a constant value.
func NewConstantSource(sampleRate, channels, totalFrames int, value float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame, channel int) float32 {
		return value
	})
}

func (m *MockSource) Read(dst []float32) int {
	framesRequested := len(dst) / m.channels
	framesToWrite := min(framesRequested, m.totalFrames-m.position)
	if framesToWrite <= 0 {
		return 0
	}
	for frame := 0; frame < framesToWrite; frame++ {
		for ch := 0; ch < m.channels; ch++ {
			dst[frame*m.channels+ch] = m.waveform(m.position+frame, ch)
		}
	}
	m.position += framesToWrite
	return framesToWrite * m.channels
}

func (m *MockSource) Seek(frame uint64) (uint64, bool) {
	m.position = min(int(frame), m.totalFrames)
	return uint64(m.position), true
}

func (m *MockSource) SkipCoarse(count uint64, _ []float32) uint64 {
	frames := int(count) / m.channels
	skipFrames := min(frames, m.totalFrames-m.position)
	if skipFrames <= 0 {
		return 0
	}
	m.position += skipFrames
	return uint64(skipFrames * m.channels)
}

func (m *MockSource) Clone() audio.SoundReader {
	clone := *m
	return &clone
}

func (m *MockSource) EstimateLen() (uint64, bool) {
	return uint64(m.totalFrames), true
}

// Stream wraps the source in a FormattedSoundStream.
func (m *MockSource) Stream(layout audio.SpeakerLayout) *audio.FormattedSoundStream {
	return &audio.FormattedSoundStream{
		SampleRate: float64(m.sampleRate),
		Layout:     layout,
		Reader:     m,
	}
}

// Delegate is a SoundDelegate over an in-memory set of named sources. Each
// OpenFile hands out a fresh clone, so files can be "opened" repeatedly.
type Delegate struct {
	mu       sync.Mutex
	files    map[string]*audio.FormattedSoundStream
	warnings []string
	// OpenCount tracks opens per name.
	OpenCount map[string]int
}

func NewDelegate() *Delegate {
	return &Delegate{
		files:     map[string]*audio.FormattedSoundStream{},
		OpenCount: map[string]int{},
	}
}

// AddFile registers a stream under a name.
func (d *Delegate) AddFile(name string, stream *audio.FormattedSoundStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = stream
}

func (d *Delegate) OpenFile(name string) *audio.FormattedSoundStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCount[name]++
	stream, ok := d.files[name]
	if !ok {
		return nil
	}
	if clone := stream.Clone(); clone != nil {
		return clone
	}
	return stream
}

func (d *Delegate) Warning(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings = append(d.warnings, message)
}

// Warnings returns a snapshot of the warnings so far.
func (d *Delegate) Warnings() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.warnings))
	copy(out, d.warnings)
	return out
}
