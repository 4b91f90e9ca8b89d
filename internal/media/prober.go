// Package media probes audio files for the stream metadata a correction
// needs: codec, sample rate, duration and the tags frame clocks are derived
// from.
package media

import (
	"context"
	"errors"

	"github.com/maauso/delayfix/internal/frame"
)

// ErrMetadataUnavailable is returned when a file has no audio stream or no
// usable duration.
var ErrMetadataUnavailable = errors.New("metadata unavailable")

// Prober reads the metadata of the first audio stream of a file.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// Metadata describes the first audio stream of a file.
type Metadata struct {
	Path       string
	Codec      string
	Container  string
	SampleRate float64
	Channels   int
	DurationMs float64
	FrameRate  string
	// Tags merges format and stream tags; stream tags win.
	Tags map[string]string
	// Attributes holds every scalar stream field, plus format fields with a
	// "format_" prefix.
	Attributes map[string]string
	// TagText is the raw tag block as reported by the prober.
	TagText string
}

// DurationS returns the duration in seconds.
func (m Metadata) DurationS() float64 { return m.DurationMs / 1000 }

// Track returns the normalized view the frame resolver works on.
func (m Metadata) Track() frame.Track {
	return frame.Track{
		Codec:      m.Codec,
		SampleRate: m.SampleRate,
		Channels:   m.Channels,
		FrameRate:  m.FrameRate,
		Tags:       m.Tags,
		Attributes: m.Attributes,
		TagText:    m.TagText,
	}
}
