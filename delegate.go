// SPDX-License-Identifier: EPL-2.0

package secondmusic

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ik5/secondmusic/audio"
	"github.com/ik5/secondmusic/formats/aiff"
	"github.com/ik5/secondmusic/formats/mp3"
	"github.com/ik5/secondmusic/formats/vorbis"
	"github.com/ik5/secondmusic/formats/wav"
)

// SoundDelegate is what the engine hangs onto to open sound files and report
// problems. It must be safe for concurrent use: with background loading
// enabled it is called from loader threads, otherwise from the audio thread.
type SoundDelegate interface {
	// OpenFile attempts to open a sound file with the given name. If it
	// doesn't exist, an IO error occurs, the format can't be identified, or
	// whatever, the delegate should report the problem in an
	// application-specific way and return nil.
	OpenFile(name string) *audio.FormattedSoundStream
	// Warning presents and/or logs a warning.
	Warning(message string)
}

// FileDelegate is a SoundDelegate that resolves names against a directory and
// picks a decoder by file extension. It is the bundled "just play files"
// delegate; games with pack files or scripted asset stores supply their own.
type FileDelegate struct {
	root     string
	registry *audio.Registry
	warn     func(message string)
}

// NewFileDelegate returns a FileDelegate rooted at the given directory, with
// the wav, mp3, ogg, and aiff decoders registered. Warnings go to stderr
// until SetWarningHandler replaces them.
func NewFileDelegate(root string) *FileDelegate {
	registry := audio.NewRegistry()
	registry.Register("wav", wav.Decoder{})
	registry.Register("mp3", mp3.Decoder{})
	registry.Register("ogg", vorbis.Decoder{})
	registry.Register("aiff", aiff.Decoder{})
	registry.Register("aif", aiff.Decoder{})
	return &FileDelegate{
		root:     root,
		registry: registry,
		warn: func(message string) {
			fmt.Fprintln(os.Stderr, "SMS warning:", message)
		},
	}
}

// SetWarningHandler redirects warnings somewhere other than stderr.
func (d *FileDelegate) SetWarningHandler(warn func(message string)) {
	d.warn = warn
}

// Register adds or replaces a decoder for a file extension (without the dot).
func (d *FileDelegate) Register(format string, dec audio.Decoder) {
	d.registry.Register(format, dec)
}

// OpenFile reads the whole file into memory and decodes from there, so the
// OS handle is released immediately no matter how long the stream lives.
func (d *FileDelegate) OpenFile(name string) *audio.FormattedSoundStream {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	dec, ok := d.registry.Get(ext)
	if !ok {
		d.Warning(fmt.Sprintf("no decoder for %q", name))
		return nil
	}
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if err != nil {
		d.Warning(fmt.Sprintf("unable to read %q: %v", name, err))
		return nil
	}
	stream, err := dec.Decode(bytes.NewReader(data))
	if err != nil {
		d.Warning(fmt.Sprintf("unable to decode %q: %v", name, err))
		return nil
	}
	return stream
}

func (d *FileDelegate) Warning(message string) {
	d.warn(message)
}
