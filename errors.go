// SPDX-License-Identifier: EPL-2.0

package secondmusic

import "errors"

var (
	ErrNilDelegate          = errors.New("engine needs a sound delegate")
	ErrInvalidSampleRate    = errors.New("sample rate must be a positive finite number")
	ErrInvalidSpeakerLayout = errors.New("unknown speaker layout")
	ErrInvalidThreadCount   = errors.New("thread count must not be negative")
)
