package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Quality is a user-chosen constraint on the downloaded media.
type Quality string

const (
	QualitySource    Quality = "source"
	Quality1080p60   Quality = "1080p60"
	Quality1080p     Quality = "1080p"
	Quality720p60    Quality = "720p60"
	Quality720p      Quality = "720p"
	Quality480p      Quality = "480p"
	Quality360p      Quality = "360p"
	QualityAudioOnly Quality = "audio_only"
)

// ErrInvalidQuality is returned for a selector that is neither source,
// audio_only nor a resolution token.
var ErrInvalidQuality = errors.New("invalid quality selector")

var resolutionRe = regexp.MustCompile(`^(\d+)p(\d+)?$`)

// MaxHeight returns the height limit encoded in a resolution token such as
// "720p60" (the frame-rate suffix is ignored). ok is false for source and
// audio_only.
func (q Quality) MaxHeight() (height int, ok bool) {
	m := resolutionRe.FindStringSubmatch(string(q))
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h <= 0 {
		return 0, false
	}
	return h, true
}

// Validate returns ErrInvalidQuality for unknown selectors.
func (q Quality) Validate() error {
	switch q {
	case QualitySource, QualityAudioOnly:
		return nil
	}
	if _, ok := q.MaxHeight(); ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidQuality, string(q))
}

// OrDefault returns q, or def when q is empty.
func (q Quality) OrDefault(def Quality) Quality {
	if q == "" {
		return def
	}
	return q
}
