// SPDX-License-Identifier: EPL-2.0

package secondmusic_test

import (
	"fmt"

	"github.com/ik5/secondmusic"
	"github.com/ik5/secondmusic/audio"
	"github.com/ik5/secondmusic/internal/audiotest"
	"github.com/ik5/secondmusic/soundtrack"
)

// Render half a second of a looping flow offline. Foreground loading makes
// the result deterministic, which is what you want for tests and bounced
// mixes alike.
func Example() {
	st, err := soundtrack.FromSource(`
sound tone
    file "tone.wav"
    length 1

flow ambience with loop
    play sound tone and wait
`)
	if err != nil {
		panic(err)
	}

	delegate := audiotest.NewDelegate()
	delegate.AddFile("tone.wav", audiotest.NewSineSource(48000, 1, 48000, 220).Stream(audio.Mono))

	engine, err := secondmusic.New(delegate, audio.Stereo, 48000, 0, false)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	engine.ReplaceSoundtrack(st)
	engine.StartFlow("ambience", 1.0, 0, audio.FadeLinear)

	out := make([]float32, 48000) // half a second of stereo
	engine.TurnHandle(out)

	silent := true
	for _, s := range out {
		if s != 0 {
			silent = false
			break
		}
	}
	fmt.Println("silent:", silent)
	// Output: silent: false
}
