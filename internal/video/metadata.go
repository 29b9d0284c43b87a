// Package video resolves the time window a video clip covers, from capture
// metadata when available and from a caller-supplied substitute instant when
// it is not.
package video

import (
	"errors"
	"fmt"
	"time"

	"gpxhelper/internal/track"
)

// ErrMissingDuration reports metadata without a usable duration. Duration
// cannot be guessed, so this is a hard failure rather than a fallback.
var ErrMissingDuration = errors.New("video metadata has no duration")

// Reliability says whether a resolved window came from real capture
// metadata or from a substitute timestamp.
type Reliability int

const (
	SourceExact Reliability = iota
	SourceFallback
)

func (r Reliability) String() string {
	if r == SourceFallback {
		return "fallback"
	}
	return "exact"
}

// Metadata is what the extraction tool reports about a video file. Nil
// fields were not present in the container.
type Metadata struct {
	CreationTime    *time.Time
	DurationSeconds *float64
	Source          Reliability
}

// ResolveWindow derives the [start, end) window covered by a clip. A missing
// or already-unreliable creation time substitutes the fallback instant
// (typically the file modification time) and the result is flagged
// SourceFallback so callers can warn the user; it is never passed off as
// exact. All arithmetic happens on the UTC timeline.
func ResolveWindow(meta Metadata, fallback time.Time) (track.Window, Reliability, error) {
	if meta.DurationSeconds == nil {
		return track.Window{}, SourceFallback, ErrMissingDuration
	}
	if *meta.DurationSeconds <= 0 {
		return track.Window{}, SourceFallback, fmt.Errorf("%w: non-positive duration %g", ErrMissingDuration, *meta.DurationSeconds)
	}

	reliability := meta.Source
	var start time.Time
	if meta.CreationTime != nil {
		start = meta.CreationTime.UTC()
	} else {
		start = fallback.UTC()
		reliability = SourceFallback
	}

	end := start.Add(time.Duration(*meta.DurationSeconds * float64(time.Second)))
	return track.Window{Start: start, End: end}, reliability, nil
}
