// SPDX-License-Identifier: EPL-2.0

package audio

import "math"

// FadeType specifies what kind of curve to use in a fade.
//
// Logarithmic fades have (roughly) the same perceived volume change per unit
// time. Linear fades seem to speed up or slow down over the course of the
// fade, and should be used when intermixing correlated tracks. Exponential
// fades "hang out" at the louder side; arguably the best sounding of the
// three, and the default.
type FadeType int

const (
	// FadeExponential fades on an exponential curve.
	FadeExponential FadeType = iota
	// FadeLogarithmic fades with constant perceived volume change.
	FadeLogarithmic
	// FadeLinear fades linearly between amplification factors. You only want
	// this when crossfading between partly correlated samples.
	FadeLinear
)

// Natural logarithm / natural exponent of the quietest amplitude we consider
// audible. Equivalent to about -96.3dB, the ratio of the smallest to the
// largest non-zero voltage a 16-bit DAC will output.
const (
	silentLog = -11.1
	silentExp = 1.0000152
)

// Fader represents a fade, in or out, currently in progress. Positions and
// lengths are measured in sample frames, fractions permitted.
//
// The three curves all step linearly through an internal position; the
// exponential and logarithmic curves store the position in transformed space
// so that stepping stays a single addition per frame.
type Fader struct {
	kind      FadeType
	curvePos  float64
	curveStep float64
	to        float64
	length    float64
	pos       float64
}

// NewFader returns a blank fader holding the given volume.
func NewFader(volume float64) *Fader {
	volume = clampVolume(volume)
	return &Fader{
		kind:     FadeLinear,
		curvePos: volume,
		to:       volume,
		length:   0,
		pos:      1,
	}
}

// StartFader starts a fade from one volume to another over the given number
// of sample frames.
func StartFader(kind FadeType, from, to, length float64) *Fader {
	from = clampVolume(from)
	to = clampVolume(to)
	if math.IsNaN(length) || length < 0 {
		length = 0
	}
	f := &Fader{kind: kind, to: to, length: length}
	switch kind {
	case FadeExponential:
		a := math.Max(math.Exp(from), silentExp)
		b := math.Max(math.Exp(to), silentExp)
		f.curvePos = a
		f.curveStep = (b - a) / (length + 1)
	case FadeLogarithmic:
		a := math.Max(math.Log(from), silentLog)
		b := math.Max(math.Log(to), silentLog)
		f.curvePos = a
		f.curveStep = (b - a) / (length + 1)
	default:
		f.curvePos = from
		f.curveStep = (to - from) / (length + 1)
	}
	return f
}

// MaybeStartFader is StartFader, except that it returns nil when the length
// is zero, negative, or not finite.
func MaybeStartFader(kind FadeType, from, to, length float64) *Fader {
	if length > 0 && !math.IsInf(length, 0) && !math.IsNaN(length) {
		return StartFader(kind, from, to, length)
	}
	return nil
}

// Complete reports whether the fade has run its course.
func (f *Fader) Complete() bool {
	return f.pos >= f.length
}

func (f *Fader) decodeCurve(pos float64) float64 {
	switch f.kind {
	case FadeExponential:
		return clampVolume(math.Log(pos))
	case FadeLogarithmic:
		return clampVolume(math.Exp(pos))
	}
	return clampVolume(pos)
}

// Evaluate returns the current volume.
func (f *Fader) Evaluate() float64 {
	if f.Complete() {
		return f.to
	}
	return f.decodeCurve(f.curvePos)
}

// EvaluateT returns the volume t sample frames into the future, where 0 is
// the first frame of a buffer, 1 the second, and so on.
func (f *Fader) EvaluateT(t float64) float64 {
	if f.pos+t >= f.length {
		return f.to
	}
	return f.decodeCurve(f.curvePos + f.curveStep*t)
}

// StepByOne advances the fade by a single sample frame.
func (f *Fader) StepByOne() {
	if !f.Complete() {
		f.curvePos += f.curveStep
		f.pos++
	}
}

// StepBy advances the fade by the given number of sample frames.
func (f *Fader) StepBy(count float64) {
	if !f.Complete() {
		f.curvePos += f.curveStep * count
		f.pos += count
	}
}

// Target returns the volume the fade is heading toward.
func (f *Fader) Target() float64 { return f.to }

func clampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
