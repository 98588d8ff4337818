// SPDX-License-Identifier: EPL-2.0

package audio

import "math"

// The loop adapter plays a sound with declared loop points: the region
// between the loop points repeats until the requested playback length runs
// out, then the tail (if any) plays and the optional fade out ends the
// stream. The wrapped reader must support exact seeking; the engine only
// installs this adapter over streams that do.

type loopAdapter struct {
	inner       Seeker
	numChannels int
	gain        float32
	// samplesTillNextLoop counts down to the next rewind; negative disables
	// looping (length exhausted, playing out the tail).
	samplesTillNextLoop int64
	hasLoop             bool
	// samplesTillFadeOut and samplesLeft as in the fade adapter.
	samplesTillFadeOut uint64
	samplesLeft        uint64
	// loopStartFrame is the frame seeked to on rewind; loopLengthSamples the
	// size of one full loop.
	loopStartFrame    uint64
	loopLengthSamples uint64
	fadeIn            *Fader
	fadeOut           *Fader
	scratch           []float32
}

// NewLoopAdapter wraps a seekable stream with loop-point handling. Seconds
// are measured at the stream's own sample rate. lengthSec is how long the
// looped body should last before the fade out; lengthSec < 0 loops forever.
func NewLoopAdapter(stream *FormattedSoundStream, seeker Seeker, gain, fadeInSec, lengthSec, fadeOutSec, startSec, loopStartSec, loopEndSec float64) SoundReader {
	rate := stream.SampleRate
	numChannels := stream.Layout.NumChannels()
	ch := uint64(numChannels)
	startFrame := uint64(startSec * rate)
	loopStartFrame := uint64(loopStartSec * rate)
	loopEndFrame := uint64(math.Ceil(loopEndSec * rate))
	a := &loopAdapter{
		inner:               seeker,
		numChannels:         numChannels,
		gain:                float32(gain),
		hasLoop:             true,
		samplesTillNextLoop: int64((loopEndFrame - min(loopEndFrame, startFrame)) * ch),
		loopStartFrame:      loopStartFrame,
		loopLengthSamples:   (loopEndFrame - min(loopEndFrame, loopStartFrame)) * ch,
		fadeIn:              MaybeStartFader(FadeLinear, 0, 1, fadeInSec*rate),
		fadeOut:             MaybeStartFader(FadeLinear, 1, 0, fadeOutSec*rate),
		scratch:             make([]float32, 4096),
	}
	if lengthSec >= 0 {
		a.samplesTillFadeOut = uint64(lengthSec*rate) * ch
		a.samplesLeft = uint64(math.Ceil((lengthSec+math.Max(fadeOutSec, 0))*rate)) * ch
	} else {
		a.samplesTillFadeOut = unbounded
		a.samplesLeft = unbounded
	}
	return a
}

// rewind seeks the inner stream back to the loop start.
func (a *loopAdapter) rewind() bool {
	actual, ok := a.inner.Seek(a.loopStartFrame)
	if !ok {
		return false
	}
	if actual > a.loopStartFrame {
		panic("bug in program's sound delegate: seek seeked past the requested timestamp")
	}
	if toSkip := (a.loopStartFrame - actual) * uint64(a.numChannels); toSkip > 0 {
		SkipPrecise(a.inner, toSkip, a.scratch)
	}
	a.samplesTillNextLoop = int64(a.loopLengthSamples)
	return true
}

func (a *loopAdapter) Read(out []float32) int {
	if a.samplesLeft == 0 {
		return 0
	}
	if a.hasLoop && a.samplesTillNextLoop == 0 {
		if !a.rewind() {
			a.hasLoop = false
		}
	}
	amountToRead := uint64(len(out))
	if a.hasLoop && uint64(a.samplesTillNextLoop) < amountToRead {
		amountToRead = uint64(a.samplesTillNextLoop)
	}
	amountToRead = min(amountToRead, a.samplesLeft)
	if till := a.samplesTillFadeOut; till > 0 {
		amountToRead = min(amountToRead, till)
	}
	if amountToRead%uint64(a.numChannels) != 0 {
		panic("engine bug: not reading a whole number of sample frames at a time")
	}
	amountRead := a.inner.Read(out[:amountToRead])
	if amountRead%a.numChannels != 0 {
		panic("bug in program's sound delegate: didn't read a whole number of sample frames at a time")
	}
	if amountRead == 0 {
		if a.hasLoop {
			// source ran dry before the declared loop end; rewind anyway
			a.samplesTillNextLoop = 0
			if !a.rewind() {
				return 0
			}
			return a.Read(out)
		}
		a.samplesLeft = 0
		return 0
	}
	if a.samplesLeft != unbounded {
		a.samplesLeft -= uint64(amountRead)
	}
	if a.hasLoop {
		a.samplesTillNextLoop -= int64(amountRead)
	}
	if a.samplesTillFadeOut != unbounded && a.samplesTillFadeOut > 0 {
		a.samplesTillFadeOut -= uint64(amountRead)
	}
	if a.gain != 1 {
		for i := range amountRead {
			out[i] *= a.gain
		}
	}
	if a.fadeIn != nil {
		applyFader(a.fadeIn, out[:amountRead], a.numChannels)
		if a.fadeIn.Complete() {
			a.fadeIn = nil
		} else {
			a.fadeIn.StepBy(float64(amountRead / a.numChannels))
		}
	}
	if a.samplesTillFadeOut == 0 && a.fadeOut != nil {
		applyFader(a.fadeOut, out[:amountRead], a.numChannels)
		if a.fadeOut.Complete() {
			a.fadeOut = nil
			a.samplesLeft = 0
		} else {
			a.fadeOut.StepBy(float64(amountRead / a.numChannels))
		}
	}
	return amountRead
}
