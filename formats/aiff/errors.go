// SPDX-License-Identifier: EPL-2.0

package aiff

import "errors"

var (
	ErrNotAiffFile           = errors.New("not an AIFF file")
	ErrSeekableRequired      = errors.New("aiff decoding requires a seekable reader")
	ErrUnsupportedAiffLayout = errors.New("unsupported aiff channel count")
)
