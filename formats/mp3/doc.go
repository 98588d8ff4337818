// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1 Layer 3 files for the engine.
//
// go-mp3 outputs 16-bit little-endian stereo at the file's sample rate; this
// package converts to the engine's normalized float32 samples. When the
// underlying reader is seekable the source supports exact seeking (frames map
// 1:1 to 4-byte groups of decoded output) and length estimation, which lets
// the engine loop mp3 sounds without reopening them.
package mp3
