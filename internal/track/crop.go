package track

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidWindow reports a window whose start is not strictly before
	// its end.
	ErrInvalidWindow = errors.New("window start must be before end")
	// ErrEmptyRange reports a crop whose resolved end index precedes its
	// resolved start index.
	ErrEmptyRange = errors.New("cropped range is empty or inverted")
)

// Window is a [Start, End) time range on the UTC timeline.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate checks the strict ordering invariant.
func (w Window) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start=%s end=%s", ErrInvalidWindow, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Crop returns the contiguous sub-track between the points nearest to the
// window bounds. Each bound resolves independently to the point whose
// timestamp is closest, ties going to the earlier index. Matching by nearest
// point rather than strict containment tolerates mismatches between the GPS
// logging interval and the requested bounds; a window outside the track's
// span clamps to the nearest endpoint. The resolved range is inclusive on
// both sides, so equal indices yield a single-point track; an inverted range
// fails with ErrEmptyRange.
func Crop(t Track, w Window) (Track, error) {
	if len(t.Points) < 2 {
		return Track{}, fmt.Errorf("%w: got %d", ErrInsufficientTimestampedPoints, len(t.Points))
	}
	if err := w.Validate(); err != nil {
		return Track{}, err
	}

	iStart := nearestIndex(t.Points, w.Start)
	iEnd := nearestIndex(t.Points, w.End)
	if iEnd < iStart {
		return Track{}, fmt.Errorf("%w: start index %d, end index %d", ErrEmptyRange, iStart, iEnd)
	}
	return Track{Points: t.Points[iStart : iEnd+1]}, nil
}

// nearestIndex scans the whole track for the point closest in time to the
// target. The scan keeps the first minimum it sees, which is what breaks
// ties toward the earlier index.
func nearestIndex(points []Point, target time.Time) int {
	best := 0
	bestDiff := absDuration(points[0].Time.Sub(target))
	for i := 1; i < len(points); i++ {
		diff := absDuration(points[i].Time.Sub(target))
		if diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
