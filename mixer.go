// SPDX-License-Identifier: EPL-2.0

package secondmusic

import "github.com/ik5/secondmusic/audio"

// volumeGetter is something with opinions on how loud a particular playing
// sound should be.
type volumeGetter interface {
	// stepFadersBy is called after every output buffer with the number of
	// sample frames mixed.
	stepFadersBy(n float64)
	// getVolume returns the sound's volume t sample frames into the future
	// (0 is the first frame of the buffer). ok=false means the sound should
	// stop. A volume of zero is still a valid, playing volume; the stream
	// keeps consuming, and the mixer assumes it will stay zero for the rest
	// of the buffer.
	getVolume(id *playingSoundID, t float64) (volume float64, ok bool)
	// isVarying is called at the start of every pass of the mix loop over a
	// playing sound (at least once per output buffer, again after a short
	// read), before that pass's getVolume calls, and by bump. alive=false
	// means the sound should stop;
	// varying says whether the volume changes within the buffer.
	isVarying(id *playingSoundID) (varying bool, alive bool)
}

// playingSoundID attributes a mixer channel to the flow and node that fired
// it and the mix control it plays on.
type playingSoundID struct {
	flowName string
	nodeName string
	channel  string
}

type mixerChannel struct {
	stream audio.SoundReader
	id     playingSoundID
}

// mixer owns the active source list and sums sample blocks into the output.
type mixer struct {
	channels []mixerChannel
	// samplesPerFrame is the number of output channels.
	samplesPerFrame int
	nextFrame       uint64
}

func newMixer(samplesPerFrame int) *mixer {
	return &mixer{samplesPerFrame: samplesPerFrame}
}

// play installs a new active source.
func (m *mixer) play(stream audio.SoundReader, id playingSoundID) {
	m.channels = append(m.channels, mixerChannel{stream: stream, id: id})
}

// mix sums every active source into out (existing contents are added to, not
// overwritten) and advances the frame counter. mixBuf is scratch of the same
// length. Sources that die are removed.
func (m *mixer) mix(out, mixBuf []float32, vg volumeGetter) {
	keep := m.channels[:0]
	for i := range m.channels {
		ch := &m.channels[i]
		if m.mixChannel(ch, out, mixBuf, vg) {
			keep = append(keep, *ch)
		}
	}
	clearTail(m.channels, len(keep))
	m.channels = keep
	outFrames := len(out) / m.samplesPerFrame
	vg.stepFadersBy(float64(outFrames))
	m.nextFrame += uint64(outFrames)
}

// bump is mix with an empty buffer: it gives the volume getter a chance to
// notice that some sounds have died.
func (m *mixer) bump(vg volumeGetter) {
	keep := m.channels[:0]
	for i := range m.channels {
		ch := &m.channels[i]
		if _, alive := vg.isVarying(&ch.id); alive {
			keep = append(keep, *ch)
		}
	}
	clearTail(m.channels, len(keep))
	m.channels = keep
}

// mixChannel returns true if the channel lived, false if it died.
func (m *mixer) mixChannel(ch *mixerChannel, out, mixBuf []float32, vg volumeGetter) bool {
	accumLen := 0
	for len(out) > 0 {
		varying, alive := vg.isVarying(&ch.id)
		if !alive {
			return false
		}
		var n int
		if !varying {
			// The volume holds for the whole buffer; sample it at the
			// halfway point and mix in one go.
			outFrames := len(out) / m.samplesPerFrame
			volume, ok := vg.getVolume(&ch.id, float64(outFrames)*0.5)
			if !ok {
				return false
			}
			switch {
			case volume == 0:
				// nothing audible; keep the stream moving
				if !audio.SkipPrecise(ch.stream, uint64(len(out)), mixBuf) {
					return false
				}
				n = len(out)
			default:
				n = ch.stream.Read(mixBuf[:len(out)])
				if n%m.samplesPerFrame != 0 {
					panic("bug in program's sound delegate: read a partial sample frame")
				}
				v := float32(volume)
				if volume == 1 {
					for x := 0; x < n; x++ {
						out[x] += mixBuf[x]
					}
				} else {
					for x := 0; x < n; x++ {
						out[x] += mixBuf[x] * v
					}
				}
			}
		} else {
			// The volume is moving; evaluate it per sample frame.
			n = ch.stream.Read(mixBuf[:len(out)])
			if n%m.samplesPerFrame != 0 {
				panic("bug in program's sound delegate: read a partial sample frame")
			}
			t := 0.5
			for x := 0; x < n; x += m.samplesPerFrame {
				volume, ok := vg.getVolume(&ch.id, t)
				t++
				if !ok {
					return false
				}
				if volume == 0 {
					// assume it stays zero for the rest of the buffer
					break
				}
				v := float32(volume)
				for s := x; s < x+m.samplesPerFrame; s++ {
					out[s] += mixBuf[s] * v
				}
			}
		}
		if n == 0 {
			// (maybe) done outputting forever
			return accumLen != 0
		}
		if n < len(out) {
			// short read; try to mix a little more
			out = out[n:]
			mixBuf = mixBuf[n:]
			accumLen += n
			continue
		}
		return true
	}
	return true
}

func clearTail(channels []mixerChannel, from int) {
	for i := from; i < len(channels); i++ {
		channels[i] = mixerChannel{}
	}
}
