// SPDX-License-Identifier: EPL-2.0

package secondmusic

import (
	"testing"

	"github.com/ik5/secondmusic/audio"
	"github.com/ik5/secondmusic/internal/audiotest"
	"github.com/ik5/secondmusic/soundtrack"
)

func testSound(path string, start, end float64, stream bool) *soundtrack.Sound {
	return &soundtrack.Sound{
		Name:   path,
		Path:   path,
		Start:  start,
		End:    end,
		Gain:   1,
		Stream: stream,
	}
}

func TestSoundManBufferedLifecycle(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("a.wav", audiotest.NewConstantSource(1000, 1, 1000, 0.5).Stream(audio.Mono))
	m := newSoundMan(delegate, ForegroundRuntime{})
	sound := testSound("a.wav", 0, -1, false)

	m.load(sound)
	if !m.isReady(sound) {
		t.Fatal("foreground load should complete synchronously")
	}
	if sec, ok := m.knownLengthSeconds(sound); !ok || sec != 1 {
		t.Errorf("known length = %v, %v", sec, ok)
	}

	// two playbacks share the decoded buffer
	s1 := m.getSound(sound)
	s2 := m.getSound(sound)
	if s1 == nil || s2 == nil {
		t.Fatal("getSound failed")
	}
	buf := make([]float32, 10)
	s1.Reader.Read(buf)
	if buf[0] != 0.5 {
		t.Errorf("decoded sample = %v", buf[0])
	}
	s2.Reader.Read(buf)
	if buf[0] != 0.5 {
		t.Errorf("second stream should be independent, got %v", buf[0])
	}
	if delegate.OpenCount["a.wav"] != 1 {
		t.Errorf("file opened %d times, want 1", delegate.OpenCount["a.wav"])
	}

	// load counts are per call
	m.load(sound)
	m.unload(sound)
	if _, ok := m.buffers["a.wav"]; !ok {
		t.Fatal("one ref left, must stay resident")
	}
	m.unload(sound)
	if _, ok := m.buffers["a.wav"]; ok {
		t.Fatal("last unload must evict")
	}
}

func TestSoundManStartOffset(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("ramp.wav", audiotest.NewMockSource(1000, 1, 1000, func(frame, _ int) float32 {
		return float32(frame)
	}).Stream(audio.Mono))
	m := newSoundMan(delegate, ForegroundRuntime{})
	sound := testSound("ramp.wav", 0.5, 0.75, false)
	m.load(sound)
	s := m.getSound(sound)
	if s == nil {
		t.Fatal("getSound failed")
	}
	buf := make([]float32, 1)
	s.Reader.Read(buf)
	if buf[0] != 500 {
		t.Errorf("stream should start at the sound's start offset, got %v", buf[0])
	}
	// bounded by end: 250 samples total
	rest := make([]float32, 1000)
	n := s.Reader.Read(rest)
	if n != 249 {
		t.Errorf("read %d more samples, want 249", n)
	}
}

func TestSoundManStreamed(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("s.ogg", audiotest.NewConstantSource(1000, 1, 1000, 0.25).Stream(audio.Mono))
	m := newSoundMan(delegate, ForegroundRuntime{})
	sound := testSound("s.ogg", 0, -1, true)
	m.load(sound)
	if !m.isReady(sound) {
		t.Fatal("stream should be ready")
	}
	s1 := m.getSound(sound)
	s2 := m.getSound(sound)
	if s1 == nil || s2 == nil {
		t.Fatal("both instances should be available (cloneable source)")
	}
	if _, ok := m.streams["s.ogg"]; !ok {
		t.Error("stream cache entry missing")
	}
	m.unload(sound)
	if _, ok := m.streams["s.ogg"]; ok {
		t.Error("unload must drop the entry")
	}
}

func TestSoundManFailedLoad(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	m := newSoundMan(delegate, ForegroundRuntime{})
	sound := testSound("ghost.wav", 0, -1, false)
	m.load(sound)
	if !m.isReady(sound) {
		t.Error("a failed load still counts as ready, so flows can proceed")
	}
	if s := m.getSound(sound); s != nil {
		t.Error("a failed sound must not produce a stream")
	}
	if len(delegate.Warnings()) == 0 {
		t.Error("the failure should have been reported")
	}
}

func TestPoolRuntimeRunsAndCloses(t *testing.T) {
	t.Parallel()

	p := NewPoolRuntime(2)
	results := make(chan int, 100)
	for i := range 100 {
		p.SpawnTask(TaskBufferLoad, func() { results <- i })
	}
	p.Close()
	close(results)
	count := 0
	for range results {
		count++
	}
	if count != 100 {
		t.Errorf("ran %d tasks, want all 100 before Close returns", count)
	}
}
