//go:build !linux

package alsa

import (
	"errors"

	"github.com/meddje/silenttrace/pkg/audio"
)

// Open always fails on non-Linux platforms; use the portaudio backend instead.
func Open(cfg audio.Config) (*Source, error) {
	return nil, errors.New("alsa: backend is only available on linux")
}

// Source is a placeholder so the package signature matches across platforms.
type Source struct{ audio.Source }
