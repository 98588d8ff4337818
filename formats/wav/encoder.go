// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/secondmusic/utils"
)

// Encode16 writes interleaved float32 samples as a 16-bit PCM WAV file.
// Used for offline rendering of engine output.
func Encode16(w io.WriteSeeker, sampleRate, numChannels int, samples []float32) error {
	enc := gowav.NewEncoder(w, sampleRate, 16, numChannels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, 0, 8192),
	}
	// Write in chunks so huge renders don't need a second full-size buffer.
	const chunk = 8192
	for start := 0; start < len(samples); start += chunk {
		end := min(start+chunk, len(samples))
		buf.Data = buf.Data[:0]
		for _, s := range samples[start:end] {
			buf.Data = append(buf.Data, int(utils.Float32ToInt16(s)))
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("%w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}
