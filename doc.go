// SPDX-License-Identifier: EPL-2.0

// Package secondmusic is a dynamic-music engine for games and recording
// pipelines.
//
// Composers describe a soundtrack — a declarative graph of Sounds,
// Sequences, Nodes, and Flows — and the host program drives the engine by
// periodically requesting blocks of mixed audio. The engine interprets the
// soundtrack in realtime: triggered playback, crossfades, branching on
// game-set values, and mix-bus volume control.
//
// # Basic usage
//
//	st, err := soundtrack.FromSource(source)
//	if err != nil { ... }
//	engine, err := secondmusic.New(
//	    secondmusic.NewFileDelegate("assets/music"),
//	    audio.Stereo, 48000, 0, true,
//	)
//	if err != nil { ... }
//	defer engine.Close()
//	engine.ReplaceSoundtrack(st)
//	engine.StartFlow("battle", 1.0, 0.5, audio.FadeExponential)
//
// and then, in your sound output callback:
//
//	engine.TurnHandle(out)
//
// TurnHandle sums the active music into out, so zero the buffer first unless
// you're layering the engine over another signal.
//
// # Threads
//
// Exactly one goroutine — the audio thread — calls TurnHandle. The audio
// thread never blocks: not on IO, not on a lock anyone else holds, not on
// allocation in its steady-state path. Game code talks to the engine through
// Commanders:
//
//	commander := engine.NewCommander()
//	go func() {
//	    commander.SetFlowControlToNumber("underwater", 1)
//	    commander.FadeFlowOut("overworld", 2.0, audio.FadeExponential)
//	}()
//
// Commands issued from a single goroutine arrive in issue order. For
// cross-command atomicity, batch them in a Transaction: committed
// transactions are delivered contiguously, with nothing interleaved.
//
// # Loading
//
// Sounds default to being fully decoded into memory when a flow that uses
// them starts or is precached; sounds marked "stream" in the soundtrack keep
// only an open decoder. With backgroundLoading, decoding happens on a worker
// pool and a starting flow waits (silently, without blocking the audio
// thread) until its sounds are ready; Precache ahead of time to avoid the
// wait. In foreground mode everything loads synchronously on the audio
// thread, which makes output a deterministic function of the command
// schedule — the mode to use for offline rendering.
//
// Audio files are opened through the SoundDelegate. NewFileDelegate covers
// the common case of reading wav/mp3/ogg/aiff files from a directory; games
// with pack files supply their own delegate.
package secondmusic
