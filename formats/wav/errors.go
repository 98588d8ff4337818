// SPDX-License-Identifier: EPL-2.0

package wav

import "errors"

var (
	ErrNotWavFile           = errors.New("not a RIFF WAVE file")
	ErrSeekableRequired     = errors.New("wav decoding requires a seekable reader")
	ErrUnsupportedWavLayout = errors.New("unsupported wav channel count")
)
