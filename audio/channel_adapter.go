// SPDX-License-Identifier: EPL-2.0

package audio

// The channel adapter takes in a stream with one speaker layout and outputs a
// stream with a different one, through a fixed per-pair coefficient matrix:
// out[o] = Σ matrix[o][i] * in[i] for each sample frame.
//
// Downmixes use conventional ITU-style weights (center and surrounds fold
// into the fronts at -3dB, LFE is dropped); upmixes leave unmapped channels
// silent, except mono which duplicates into both fronts of a stereo pair and
// feeds only the center of a surround layout. LFE is never synthesized.

// Channel order per layout:
//   mono          C
//   stereo        FL FR
//   headphones    L R (same as stereo)
//   quadraphonic  FL FR RL RR
//   5.1           FL FR C LFE RL RR
//   7.1           FL FR C LFE RL RR SL SR

const minus3dB = 0.7071068

type channelAdapter struct {
	inner  SoundReader
	inCh   int
	outCh  int
	matrix [][]float32
	buf    []float32
}

// NewChannelAdapter wraps a stream with a layout conversion. Same-layout (or
// stereo/headphones) conversions return the inner reader unchanged.
func NewChannelAdapter(inner SoundReader, from, to SpeakerLayout) SoundReader {
	if from.NumChannels() == to.NumChannels() {
		return inner
	}
	return &channelAdapter{
		inner:  inner,
		inCh:   from.NumChannels(),
		outCh:  to.NumChannels(),
		matrix: remixMatrix(from, to),
		buf:    make([]float32, 4096),
	}
}

func (a *channelAdapter) Read(out []float32) int {
	if len(out)%a.outCh != 0 {
		panic("engine bug: channel adapter read of partial sample frames")
	}
	frames := len(out) / a.outCh
	need := frames * a.inCh
	if cap(a.buf) < need {
		a.buf = make([]float32, need)
	}
	in := a.buf[:need]
	n := a.inner.Read(in)
	if n%a.inCh != 0 {
		panic("bug in program's sound delegate: didn't read a whole sample frame at a time")
	}
	framesRead := n / a.inCh
	for f := 0; f < framesRead; f++ {
		inF := in[f*a.inCh : (f+1)*a.inCh]
		outF := out[f*a.outCh : (f+1)*a.outCh]
		for o, row := range a.matrix {
			var sum float32
			for i, k := range row {
				if k != 0 {
					sum += k * inF[i]
				}
			}
			outF[o] = sum
		}
	}
	return framesRead * a.outCh
}

func (a *channelAdapter) SkipCoarse(count uint64, scratch []float32) uint64 {
	// count is in output samples; convert to input samples and back,
	// rounding to whole frames.
	frames := count / uint64(a.outCh)
	skipped := SkipCoarse(a.inner, frames*uint64(a.inCh), scratch)
	return (skipped / uint64(a.inCh)) * uint64(a.outCh)
}

// remixMatrix builds the (to × from) coefficient matrix for a layout pair.
func remixMatrix(from, to SpeakerLayout) [][]float32 {
	fromCh := from.NumChannels()
	toCh := to.NumChannels()
	m := make([][]float32, toCh)
	for o := range m {
		m[o] = make([]float32, fromCh)
	}
	set := func(o, i int, k float32) { m[o][i] = k }
	type pair struct{ from, to int }
	switch (pair{fromCh, toCh}) {
	case pair{1, 2}:
		set(0, 0, 1)
		set(1, 0, 1)
	case pair{1, 4}:
		set(0, 0, 1)
		set(1, 0, 1)
	case pair{1, 6}, pair{1, 8}:
		set(2, 0, 1) // center only
	case pair{2, 1}:
		set(0, 0, 0.5)
		set(0, 1, 0.5)
	case pair{2, 4}, pair{2, 6}, pair{2, 8}:
		set(0, 0, 1)
		set(1, 1, 1)
	case pair{4, 1}:
		for i := range 4 {
			set(0, i, 0.25)
		}
	case pair{4, 2}:
		set(0, 0, 0.5)
		set(0, 2, 0.5)
		set(1, 1, 0.5)
		set(1, 3, 0.5)
	case pair{4, 6}:
		set(0, 0, 1)
		set(1, 1, 1)
		set(4, 2, 1)
		set(5, 3, 1)
	case pair{4, 8}:
		set(0, 0, 1)
		set(1, 1, 1)
		set(4, 2, 1)
		set(5, 3, 1)
	case pair{6, 1}:
		// FL FR C LFE RL RR
		set(0, 0, 0.5)
		set(0, 1, 0.5)
		set(0, 2, minus3dB)
		set(0, 4, 0.25)
		set(0, 5, 0.25)
	case pair{6, 2}:
		set(0, 0, 1)
		set(0, 2, minus3dB)
		set(0, 4, minus3dB)
		set(1, 1, 1)
		set(1, 2, minus3dB)
		set(1, 5, minus3dB)
	case pair{6, 4}:
		set(0, 0, 1)
		set(0, 2, minus3dB)
		set(1, 1, 1)
		set(1, 2, minus3dB)
		set(2, 4, 1)
		set(3, 5, 1)
	case pair{6, 8}:
		for i := range 6 {
			set(i, i, 1)
		}
	case pair{8, 1}:
		set(0, 0, 0.5)
		set(0, 1, 0.5)
		set(0, 2, minus3dB)
		set(0, 4, 0.25)
		set(0, 5, 0.25)
		set(0, 6, 0.25)
		set(0, 7, 0.25)
	case pair{8, 2}:
		set(0, 0, 1)
		set(0, 2, minus3dB)
		set(0, 4, minus3dB)
		set(0, 6, minus3dB)
		set(1, 1, 1)
		set(1, 2, minus3dB)
		set(1, 5, minus3dB)
		set(1, 7, minus3dB)
	case pair{8, 4}:
		set(0, 0, 1)
		set(0, 2, minus3dB)
		set(1, 1, 1)
		set(1, 2, minus3dB)
		set(2, 4, 1)
		set(2, 6, minus3dB)
		set(3, 5, 1)
		set(3, 7, minus3dB)
	case pair{8, 6}:
		for i := range 6 {
			set(i, i, 1)
		}
		set(4, 6, minus3dB)
		set(5, 7, minus3dB)
	}
	return m
}
