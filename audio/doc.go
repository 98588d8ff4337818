// SPDX-License-Identifier: EPL-2.0

// Package audio provides the engine's stream primitives and adapters.
//
// # Streams
//
// The SoundReader interface is the foundation: a pull source of interleaved
// float32 samples in [-1, 1]. A short read ends the stream. Optional
// capabilities — exact seeking, coarse skipping, cheap cloning, length
// estimation — are separate interfaces, consulted through the package-level
// helpers:
//
//	n := reader.Read(buf)
//	frame, ok := audio.Seek(reader, 44100)
//	audio.SkipPrecise(reader, 1024, scratch)
//
// A FormattedSoundStream pairs a reader with its sample rate and speaker
// layout.
//
// # Adapters
//
// Adapters are readers layered over other readers, chained by the engine to
// convert every source to its output format:
//
//   - NewFadeAdapter applies fade-in, bounded length, fade-out, and gain.
//   - NewLoopAdapter does the same for sounds with loop points, rewinding
//     the wrapped (seekable) reader at the loop boundary.
//   - NewRateAdapter converts sample rates with Catmull-Rom cubic
//     interpolation. Output is monotonic in time: no sample is emitted twice
//     or skipped.
//   - NewChannelAdapter converts speaker layouts through fixed coefficient
//     matrices.
//
// # Faders
//
// Fader evaluates a fade curve per sample frame. Three curves: linear (for
// correlated-signal crossfades), logarithmic (constant perceived change),
// and exponential (the default; hangs near the louder side).
//
// # Sample format
//
// Samples are float32 in [-1.0, 1.0]: 0 is silence, ±1 full scale. The
// normalized format keeps intermediate processing free of bit-depth
// concerns; nothing clips until the host converts the final mix.
package audio
