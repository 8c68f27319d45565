package soundcloud

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// Transcoding protocols and qualities the API reports
const (
	ProtocolProgressive = "progressive"
	ProtocolHLS         = "hls"

	QualityHQ = "hq"
	QualitySQ = "sq"
)

// ErrNoTranscoding is returned when a track offers no stream zester can save
var ErrNoTranscoding = errors.New("no progressive high quality transcoding")

// Media lists the encodings a track can be streamed in
type Media struct {
	Transcodings []Transcoding `json:"transcodings,omitempty" yaml:"transcodings,omitempty"`
}

// Transcoding is one encoding of a track. URL resolves to the actual media
// location, it is not the media itself.
type Transcoding struct {
	URL      string `json:"url" yaml:"url"`
	Preset   string `json:"preset,omitempty" yaml:"preset,omitempty"`
	Duration int64  `json:"duration,omitempty" yaml:"duration,omitempty"`
	Snipped  bool   `json:"snipped,omitempty" yaml:"snipped,omitempty"`
	Format   Format `json:"format" yaml:"format"`
	Quality  string `json:"quality,omitempty" yaml:"quality,omitempty"`
}

// Format describes how a transcoding is delivered
type Format struct {
	Protocol string `json:"protocol" yaml:"protocol"`
	MimeType string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
}

// AudioTranscoding returns the first progressive high quality transcoding
// of the track. Snipped previews are never chosen.
func (t *Track) AudioTranscoding() (*Transcoding, error) {
	if t.Media == nil {
		return nil, fmt.Errorf("track %d has no media information: %w", t.ID, ErrNoTranscoding)
	}
	for i := range t.Media.Transcodings {
		tc := &t.Media.Transcodings[i]
		if tc.Snipped || tc.URL == "" {
			continue
		}
		if tc.Quality == QualityHQ && tc.Format.Protocol == ProtocolProgressive {
			return tc, nil
		}
	}
	return nil, fmt.Errorf("track %d: %w", t.ID, ErrNoTranscoding)
}

// Extension returns the file extension for the transcoding's mime type
func (tc *Transcoding) Extension() string {
	mediaType, _, err := mime.ParseMediaType(tc.Format.MimeType)
	if err != nil {
		return ".bin"
	}
	switch {
	case mediaType == "audio/mpeg":
		return ".mp3"
	case strings.HasPrefix(mediaType, "audio/ogg"):
		return ".ogg"
	case mediaType == "audio/mp4" || mediaType == "audio/aac":
		return ".m4a"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
