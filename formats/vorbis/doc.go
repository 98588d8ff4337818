// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis files for the engine.
//
// oggvorbis already produces normalized float32 samples, so this package
// mostly passes data straight through, taking care to hand the engine whole
// sample frames. Sample-exact seeking and length reporting are available when
// the input reader is seekable.
package vorbis
