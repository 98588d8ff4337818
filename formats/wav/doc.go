// SPDX-License-Identifier: EPL-2.0

// Package wav decodes and encodes RIFF WAVE files for the engine.
//
// The Decoder adapts go-audio/wav to the engine's stream contract, handling
// 8/16/24/32-bit PCM at any channel count the engine knows a layout for. The
// decoded length is reported as an estimate when the header carries one, so
// "play ... and wait" steps can compute their wait without decoding ahead.
//
// Encode16 goes the other way: it writes a block of interleaved float32
// engine output as a 16-bit PCM file, which is what the offline render
// example uses.
package wav
