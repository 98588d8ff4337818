// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"io"
	"sync"
)

// SoundReader is an ongoing decoding of sound data. The engine pulls
// interleaved float32 samples in [-1, 1] from it, either to populate a cache
// or to stream directly.
//
// Read is the only required operation. A reader that can do more implements
// one or more of the optional capability interfaces (Seeker, CoarseSkipper,
// Cloner, LengthEstimator); the package-level Seek, SkipCoarse, SkipPrecise,
// CloneReader, and EstimateLen helpers consult them and fall back to safe
// defaults.
type SoundReader interface {
	// Read produces some sound, placing it into buf, and returns the number
	// of samples (not sample frames) written. Anything short of len(buf)
	// means the stream has ended.
	Read(buf []float32) int
}

// Seeker is a SoundReader that can seek to an exact sample frame.
//
// Seeking is permitted to end up earlier than the target, but never later,
// and the returned frame number must be exact. A reader that cannot know
// exactly where it seeked to must not implement Seeker; the engine works
// around missing seek support with the skip routines instead.
type Seeker interface {
	SoundReader
	// Seek seeks toward the given sample frame, measured from the beginning
	// of the stream, and returns the exact frame it landed on. ok is false
	// when seeking failed. The engine does not reopen the file then: the
	// sound manager falls back to the skip routines, and the loop adapter
	// stops looping and plays the stream out.
	Seek(frame uint64) (actual uint64, ok bool)
}

// CoarseSkipper is a SoundReader that can efficiently skip ahead by
// discarding partial buffers, skipping packets, etc.
type CoarseSkipper interface {
	SoundReader
	// SkipCoarse skips up to count samples and returns the number actually
	// skipped, possibly zero. scratch is scratch space.
	SkipCoarse(count uint64, scratch []float32) uint64
}

// Cloner is a SoundReader that can be cheaply duplicated, letting several
// playbacks share one decode.
type Cloner interface {
	SoundReader
	// Clone returns an independent reader positioned at the same point.
	Clone() SoundReader
}

// LengthEstimator is a SoundReader that can guess its total length.
type LengthEstimator interface {
	SoundReader
	// EstimateLen returns a best-guess estimate of the total number of
	// sample frames in the stream. The engine never calls this after it has
	// read or skipped data.
	EstimateLen() (frames uint64, ok bool)
}

// Seek attempts an exact seek, returning ok=false if the reader cannot seek.
func Seek(r SoundReader, frame uint64) (uint64, bool) {
	if s, ok := r.(Seeker); ok {
		return s.Seek(frame)
	}
	return 0, false
}

// SkipCoarse skips up to count samples using the reader's coarse skip if it
// has one.
func SkipCoarse(r SoundReader, count uint64, scratch []float32) uint64 {
	if s, ok := r.(CoarseSkipper); ok {
		return s.SkipCoarse(count, scratch)
	}
	return 0
}

// SkipPrecise skips exactly count samples, reading and discarding whatever
// the coarse skip leaves over. It returns true if there is more sound data to
// come, false if the stream ended early.
func SkipPrecise(r SoundReader, count uint64, scratch []float32) bool {
	skipped := SkipCoarse(r, count, scratch)
	if skipped > count {
		panic("bug in program's sound delegate: SkipCoarse skipped too many samples")
	}
	rem := count - skipped
	for rem > 0 {
		amt := min(uint64(len(scratch)), rem)
		red := r.Read(scratch[:amt])
		if red == 0 {
			return false
		}
		rem -= uint64(red)
	}
	return true
}

// CanBeCloned reports whether CloneReader will succeed for this reader.
func CanBeCloned(r SoundReader) bool {
	_, ok := r.(Cloner)
	return ok
}

// CloneReader clones the reader, or returns nil if it is not cloneable.
func CloneReader(r SoundReader) SoundReader {
	if c, ok := r.(Cloner); ok {
		return c.Clone()
	}
	return nil
}

// EstimateLen returns the reader's length estimate, if it has one.
func EstimateLen(r SoundReader) (uint64, bool) {
	if e, ok := r.(LengthEstimator); ok {
		return e.EstimateLen()
	}
	return 0, false
}

// FormattedSoundStream is a sound stream actively being decoded from game
// data. It has a particular sample rate (which the engine will convert), a
// particular speaker layout (which it may also convert), and a reader that
// returns decoded samples as needed.
type FormattedSoundStream struct {
	SampleRate float64
	Layout     SpeakerLayout
	Reader     SoundReader
}

// CanBeCloned reports whether the stream can be cheaply cloned.
func (s *FormattedSoundStream) CanBeCloned() bool {
	return CanBeCloned(s.Reader)
}

// Clone duplicates the stream. It returns nil if the reader is not cloneable.
func (s *FormattedSoundStream) Clone() *FormattedSoundStream {
	r := CloneReader(s.Reader)
	if r == nil {
		return nil
	}
	return &FormattedSoundStream{
		SampleRate: s.SampleRate,
		Layout:     s.Layout,
		Reader:     r,
	}
}

// Decoder constructs a FormattedSoundStream from an input reader.
type Decoder interface {
	Decode(r io.Reader) (*FormattedSoundStream, error)
}

// Registry maps format keys (e.g. "wav", "mp3", "ogg") to decoders.
type Registry struct {
	codecs map[string]Decoder

	mtx sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.codecs[format]
	return d, ok
}
