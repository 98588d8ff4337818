// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"github.com/ik5/secondmusic/utils"
)

// The rate adapter ingests a stream at one sample rate and produces a stream
// at another, using Catmull-Rom cubic interpolation over a four-frame window.
// Output is monotonic in time: no input frame is ever emitted twice or
// skipped relative to the interpolation cursor. A one-pole low-pass takes the
// edge off aliasing when downsampling.
type rateAdapter struct {
	inner    SoundReader
	ratio    float64 // input frames per output frame
	channels int

	// Ring of 4 frames for cubic interpolation:
	// frames[0]=t-1, frames[1]=t0, frames[2]=t+1, frames[3]=t+2
	frames   [4][]float32
	hasFrame [4]bool
	primed   bool

	// Position within the current interpolation span, in [0, 1).
	pos float64

	srcBuf []float32
	eof    bool

	filterState []float32
	useFilter   bool
	filterAlpha float32
}

// NewRateAdapter wraps a stream with a sample rate conversion. Equal rates
// return the inner reader unchanged.
func NewRateAdapter(inner SoundReader, numChannels int, inRate, outRate float64) SoundReader {
	if inRate == outRate {
		return inner
	}
	ratio := inRate / outRate
	a := &rateAdapter{
		inner:       inner,
		ratio:       ratio,
		channels:    numChannels,
		srcBuf:      make([]float32, numChannels),
		useFilter:   ratio > 1,
		filterAlpha: 0.5,
		filterState: make([]float32, numChannels),
	}
	for i := range a.frames {
		a.frames[i] = make([]float32, numChannels)
	}
	return a
}

// fetchNextFrame shifts the window and reads one more source frame. Once the
// source has ended the window keeps shifting, so the last frames drain out.
func (a *rateAdapter) fetchNextFrame() bool {
	copy(a.frames[0], a.frames[1])
	copy(a.frames[1], a.frames[2])
	copy(a.frames[2], a.frames[3])
	a.hasFrame[0] = a.hasFrame[1]
	a.hasFrame[1] = a.hasFrame[2]
	a.hasFrame[2] = a.hasFrame[3]

	n := 0
	if !a.eof {
		n = a.inner.Read(a.srcBuf[:a.channels])
	}
	if n > 0 {
		copy(a.frames[3], a.srcBuf[:n])
		a.hasFrame[3] = true
		if a.useFilter {
			for c := 0; c < a.channels; c++ {
				a.frames[3][c] = a.filterAlpha*a.frames[3][c] + (1-a.filterAlpha)*a.filterState[c]
				a.filterState[c] = a.frames[3][c]
			}
		}
	} else {
		a.hasFrame[3] = false
		a.eof = true
	}
	return a.hasFrame[3] || a.hasFrame[2]
}

// prime fills the initial four-frame window.
func (a *rateAdapter) prime() bool {
	for i := 0; i < 4; i++ {
		n := a.inner.Read(a.srcBuf[:a.channels])
		if n > 0 {
			copy(a.frames[i], a.srcBuf[:n])
			a.hasFrame[i] = true
			if i == 0 && a.useFilter {
				copy(a.filterState, a.srcBuf[:n])
			}
			continue
		}
		a.eof = true
		if i == 0 {
			return false
		}
		// duplicate the last valid frame for the remaining slots
		for j := i; j < 4; j++ {
			copy(a.frames[j], a.frames[i-1])
			a.hasFrame[j] = true
		}
		break
	}
	a.primed = true
	return true
}

func (a *rateAdapter) Read(out []float32) int {
	if len(out)%a.channels != 0 {
		panic("engine bug: rate adapter read of partial sample frames")
	}
	if !a.primed && !a.prime() {
		return 0
	}
	written := 0
	framesNeeded := len(out) / a.channels
	for written < framesNeeded {
		for a.pos >= 1 {
			a.pos--
			if !a.fetchNextFrame() {
				return written * a.channels
			}
		}
		if !a.hasFrame[1] || !a.hasFrame[2] {
			return written * a.channels
		}
		alpha := float32(a.pos)
		for c := 0; c < a.channels; c++ {
			y0 := a.frames[1][c]
			if a.hasFrame[0] {
				y0 = a.frames[0][c]
			}
			y1 := a.frames[1][c]
			y2 := a.frames[2][c]
			y3 := y2
			if a.hasFrame[3] {
				y3 = a.frames[3][c]
			}
			out[written*a.channels+c] = utils.CubicInterpolate(y0, y1, y2, y3, alpha)
		}
		written++
		a.pos += a.ratio
	}
	return written * a.channels
}
