// SPDX-License-Identifier: EPL-2.0

package vorbis

import "errors"

var (
	ErrUnsupportedChannelCount = errors.New("unsupported vorbis channel count")
)
