// SPDX-License-Identifier: EPL-2.0

package secondmusic

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/ik5/secondmusic/audio"
	"github.com/ik5/secondmusic/soundtrack"
)

// The sound manager owns everything loaded from disk. Preloaded sounds go
// through bufferMan, which decodes the whole file into a shared float32
// buffer that any number of concurrent playbacks read directly. Streamed
// sounds go through streamMan, which keeps an opened decoder per file and
// clones it (or primes a replacement in the background) when playback wants
// an instance.
//
// Cache entries are shared between loader threads and the audio thread;
// readiness is published through a single atomic word per entry. The audio
// thread polls it and never waits. Load counts are plain ints because only
// the audio thread touches them.

type loadState = int32

const (
	stateLoading loadState = iota
	stateReady
	stateFailed
)

type soundMan struct {
	delegate SoundDelegate
	runtime  TaskRuntime

	buffers map[string]*cachedBuffer
	streams map[string]*cachedStream
	// kinds remembers whether each path is buffered or streamed, with the
	// total load count across both.
	kinds map[string]*soundKindInfo
}

type soundKindInfo struct {
	streamed  bool
	loadCount int
}

type cachedBuffer struct {
	state atomic.Int32
	// written by the loading task before state is set; read-only afterward
	rate   float64
	layout audio.SpeakerLayout
	data   []float32
}

type cachedStream struct {
	state atomic.Int32
	// stream is handed out on playback and replaced by a background task;
	// valid only when state says ready.
	stream    *audio.FormattedSoundStream
	lengthSec float64 // estimated, < 0 when unknown
}

func newSoundMan(delegate SoundDelegate, runtime TaskRuntime) *soundMan {
	return &soundMan{
		delegate: delegate,
		runtime:  runtime,
		buffers:  map[string]*cachedBuffer{},
		streams:  map[string]*cachedStream{},
		kinds:    map[string]*soundKindInfo{},
	}
}

// load requests that the sound's file be resident. Recursive: call load N
// times and it takes N unloads to let go.
func (m *soundMan) load(sound *soundtrack.Sound) {
	info := m.kinds[sound.Path]
	if info == nil {
		info = &soundKindInfo{streamed: sound.Stream}
		m.kinds[sound.Path] = info
	} else if info.streamed != sound.Stream {
		m.delegate.Warning(fmt.Sprintf("sound file %q is both streamed and buffered", sound.Path))
	}
	info.loadCount++
	if info.streamed {
		m.loadStream(sound.Path)
	} else {
		m.loadBuffer(sound.Path)
	}
}

// unload undoes one load. The data actually sticks around as long as some
// playing stream references it.
func (m *soundMan) unload(sound *soundtrack.Sound) {
	info := m.kinds[sound.Path]
	if info == nil {
		m.delegate.Warning(fmt.Sprintf("unbalanced unload of sound file %q (THIS IS A BUG IN SMS)", sound.Path))
		return
	}
	info.loadCount--
	if info.loadCount > 0 {
		return
	}
	delete(m.kinds, sound.Path)
	// Playing streams hold their own references to the decoded data, so
	// dropping the cache entry here is safe; the memory goes away when the
	// last playback does.
	if info.streamed {
		delete(m.streams, sound.Path)
	} else {
		delete(m.buffers, sound.Path)
	}
}

func (m *soundMan) unloadAll() {
	m.kinds = map[string]*soundKindInfo{}
	m.buffers = map[string]*cachedBuffer{}
	m.streams = map[string]*cachedStream{}
}

// isReady reports whether playback of the sound can start without waiting.
// A failed load counts as ready: the flow proceeds and the source is skipped
// with a warning at play time.
func (m *soundMan) isReady(sound *soundtrack.Sound) bool {
	if info := m.kinds[sound.Path]; info != nil && info.streamed {
		ent := m.streams[sound.Path]
		return ent != nil && ent.state.Load() != stateLoading
	}
	ent := m.buffers[sound.Path]
	return ent != nil && ent.state.Load() != stateLoading
}

// knownLengthSeconds returns the sound file's total length, if the cache
// knows it.
func (m *soundMan) knownLengthSeconds(sound *soundtrack.Sound) (float64, bool) {
	if info := m.kinds[sound.Path]; info != nil && info.streamed {
		ent := m.streams[sound.Path]
		if ent != nil && ent.state.Load() == stateReady && ent.lengthSec >= 0 {
			return ent.lengthSec, true
		}
		return 0, false
	}
	ent := m.buffers[sound.Path]
	if ent == nil || ent.state.Load() != stateReady || len(ent.data) == 0 {
		return 0, false
	}
	return float64(len(ent.data)/ent.layout.NumChannels()) / ent.rate, true
}

// getSound returns a stream positioned at the sound's start, or nil if the
// sound isn't loaded (or its load failed).
func (m *soundMan) getSound(sound *soundtrack.Sound) *audio.FormattedSoundStream {
	if info := m.kinds[sound.Path]; info != nil && info.streamed {
		return m.getStreamed(sound)
	}
	return m.getBuffered(sound)
}

func (m *soundMan) loadBuffer(path string) {
	if _, ok := m.buffers[path]; ok {
		return
	}
	ent := &cachedBuffer{}
	m.buffers[path] = ent
	delegate := m.delegate
	m.runtime.SpawnTask(TaskBufferLoad, func() {
		stream := delegate.OpenFile(path)
		if stream == nil {
			delegate.Warning(fmt.Sprintf("unable to open sound file: %q", path))
			ent.state.Store(stateFailed)
			return
		}
		ent.rate = stream.SampleRate
		ent.layout = stream.Layout
		ent.data = readWholeSound(stream)
		ent.state.Store(stateReady)
	})
}

// readWholeSound pulls the entire stream into one buffer, sized up front
// from the length estimate when there is one.
func readWholeSound(stream *audio.FormattedSoundStream) []float32 {
	numChannels := stream.Layout.NumChannels()
	var data []float32
	if frames, ok := audio.EstimateLen(stream.Reader); ok {
		data = make([]float32, 0, frames*uint64(numChannels))
	}
	chunk := make([]float32, 32768)
	for {
		n := stream.Reader.Read(chunk)
		if n == 0 {
			break
		}
		data = append(data, chunk[:n]...)
	}
	return data
}

func (m *soundMan) getBuffered(sound *soundtrack.Sound) *audio.FormattedSoundStream {
	ent := m.buffers[sound.Path]
	if ent == nil || ent.state.Load() != stateReady || len(ent.data) == 0 {
		return nil
	}
	numChannels := ent.layout.NumChannels()
	cursor := min(int(sound.Start*ent.rate)*numChannels, len(ent.data))
	end := len(ent.data)
	if sound.End >= 0 {
		end = min(int(math.Ceil(sound.End*ent.rate))*numChannels, len(ent.data))
	}
	return &audio.FormattedSoundStream{
		SampleRate: ent.rate,
		Layout:     ent.layout,
		Reader: &bufferStream{
			data:        ent.data,
			cursor:      cursor,
			end:         end,
			numChannels: numChannels,
		},
	}
}

func (m *soundMan) loadStream(path string) {
	if _, ok := m.streams[path]; ok {
		return
	}
	ent := &cachedStream{lengthSec: -1}
	m.streams[path] = ent
	m.fillStream(ent, path, TaskStreamLoad)
}

// fillStream opens a fresh decoder into the entry in the background.
func (m *soundMan) fillStream(ent *cachedStream, path string, kind TaskKind) {
	delegate := m.delegate
	m.runtime.SpawnTask(kind, func() {
		stream := delegate.OpenFile(path)
		if stream == nil {
			delegate.Warning(fmt.Sprintf("unable to open sound file: %q", path))
			ent.state.Store(stateFailed)
			return
		}
		if frames, ok := audio.EstimateLen(stream.Reader); ok {
			ent.lengthSec = float64(frames) / stream.SampleRate
		}
		ent.stream = stream
		ent.state.Store(stateReady)
	})
}

func (m *soundMan) getStreamed(sound *soundtrack.Sound) *audio.FormattedSoundStream {
	ent := m.streams[sound.Path]
	if ent == nil || ent.state.Load() != stateReady || ent.stream == nil {
		return nil
	}
	var instance *audio.FormattedSoundStream
	if ent.stream.CanBeCloned() {
		instance = ent.stream.Clone()
	} else {
		// hand out the cached decoder and prime a replacement
		instance = ent.stream
		ent.stream = nil
		ent.state.Store(stateLoading)
		m.fillStream(ent, sound.Path, TaskStreamDecode)
	}
	if sound.Start > 0 {
		// Streamed decodes happen on the audio thread (current limitation),
		// and so does this skip to the start offset.
		frame := uint64(sound.Start * instance.SampleRate)
		if _, ok := audio.Seek(instance.Reader, frame); !ok {
			scratch := make([]float32, 4096)
			audio.SkipPrecise(instance.Reader, frame*uint64(instance.Layout.NumChannels()), scratch)
		}
	}
	return instance
}

// bufferStream reads out of a fully decoded shared buffer. Cloning and O(1)
// seeking are trivial, which is what makes preloaded sounds loopable and
// cheap to multiply instantiate.
type bufferStream struct {
	data        []float32
	cursor      int
	end         int
	numChannels int
}

func (b *bufferStream) Read(buf []float32) int {
	n := min(b.end-b.cursor, len(buf))
	if n <= 0 {
		return 0
	}
	copy(buf[:n], b.data[b.cursor:b.cursor+n])
	b.cursor += n
	return n
}

func (b *bufferStream) Seek(frame uint64) (uint64, bool) {
	pos := min(int(frame)*b.numChannels, len(b.data))
	b.cursor = pos
	return uint64(pos / b.numChannels), true
}

func (b *bufferStream) SkipCoarse(count uint64, _ []float32) uint64 {
	n := min(uint64(b.end-b.cursor), count)
	b.cursor += int(n)
	return n
}

func (b *bufferStream) Clone() audio.SoundReader {
	clone := *b
	return &clone
}

func (b *bufferStream) EstimateLen() (uint64, bool) {
	return uint64(len(b.data) / b.numChannels), true
}
