// SPDX-License-Identifier: EPL-2.0

package audio

import "math"

// The fade adapter applies fade in, playback length, fade out, and the
// sound's fixed gain to a stream, counting in samples at the stream's native
// rate and layout.

type fadeAdapter struct {
	inner       SoundReader
	numChannels int
	gain        float32
	// samplesTillFadeOut counts down to the start of the fade out. Once it
	// reaches zero the fade out (if any) is running.
	samplesTillFadeOut uint64
	// samplesLeft counts down to the end of the stream.
	samplesLeft uint64
	// fadeIn/fadeOut are nil when complete/absent.
	fadeIn  *Fader
	fadeOut *Fader
}

const unbounded = math.MaxUint64

// NewFadeAdapter wraps a stream with fade-in/length/fade-out handling.
// Seconds are measured at the stream's own sample rate. lengthSec < 0 means
// "play to the end"; soundSec < 0 means the total sound length is unknown.
func NewFadeAdapter(stream *FormattedSoundStream, gain, fadeInSec, lengthSec, fadeOutSec, soundSec float64) SoundReader {
	rate := stream.SampleRate
	numChannels := stream.Layout.NumChannels()
	ch := uint64(numChannels)
	samplesInSound := uint64(unbounded)
	if soundSec >= 0 {
		samplesInSound = uint64(math.Ceil(soundSec*rate)) * ch
	}
	var samplesTillFadeOut, samplesLeft uint64
	if lengthSec >= 0 {
		samplesTillFadeOut = uint64(lengthSec*rate) * ch
		samplesLeft = min(uint64(math.Ceil((lengthSec+math.Max(fadeOutSec, 0))*rate))*ch, samplesInSound)
	} else {
		samplesLeft = samplesInSound
		samplesTillFadeOut = samplesLeft
	}
	return &fadeAdapter{
		inner:              stream.Reader,
		numChannels:        numChannels,
		gain:               float32(gain),
		samplesTillFadeOut: samplesTillFadeOut,
		samplesLeft:        samplesLeft,
		fadeIn:             MaybeStartFader(FadeLinear, 0, 1, fadeInSec*rate),
		fadeOut:            MaybeStartFader(FadeLinear, 1, 0, fadeOutSec*rate),
	}
}

func (a *fadeAdapter) Read(out []float32) int {
	if a.samplesLeft == 0 {
		return 0
	}
	amountToRead := uint64(len(out))
	amountToRead = min(amountToRead, a.samplesTillFadeOut, a.samplesLeft)
	if amountToRead == 0 {
		// length boundary reached; switch to the fade out
		amountToRead = min(uint64(len(out)), a.samplesLeft)
	}
	if amountToRead%uint64(a.numChannels) != 0 {
		panic("engine bug: not reading whole sample frames at a time")
	}
	amountRead := a.inner.Read(out[:amountToRead])
	if amountRead%a.numChannels != 0 {
		panic("bug in program's sound delegate: didn't read a whole sample frame at a time")
	}
	if amountRead == 0 {
		// hit the end, prematurely or not; nothing left for us here
		a.samplesLeft = 0
		return 0
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
	if a.samplesTillFadeOut > 0 {
		a.samplesTillFadeOut -= uint64(amountRead)
	}
	if a.samplesLeft != unbounded {
		a.samplesLeft -= uint64(amountRead)
	}
	return amountRead
}

func (a *fadeAdapter) SkipCoarse(count uint64, scratch []float32) uint64 {
	result := SkipCoarse(a.inner, count, scratch)
	if result > 0 {
		a.samplesTillFadeOut -= min(a.samplesTillFadeOut, result)
		if a.samplesLeft != unbounded {
			a.samplesLeft -= min(a.samplesLeft, result)
		}
		frames := float64(result / uint64(a.numChannels))
		if a.fadeIn != nil {
			a.fadeIn.StepBy(frames)
		}
		if a.samplesTillFadeOut == 0 && a.fadeOut != nil {
			a.fadeOut.StepBy(frames)
		}
	}
	return result
}

// applyFader multiplies whole sample frames by the fader's volume, evaluated
// per frame.
func applyFader(f *Fader, out []float32, numChannels int) {
	frame := 0
	for n := 0; n < len(out); frame++ {
		v := float32(f.EvaluateT(float64(frame)))
		for c := 0; c < numChannels; c++ {
			out[n] *= v
			n++
		}
	}
}
