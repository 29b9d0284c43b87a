package animation

import (
	"fmt"
	"math"
)

// Frame is one step of the animation schedule. Subpath shares backing
// storage with the projected route; neither is mutated after creation.
type Frame struct {
	Index    int
	Progress float64
	Point    Point2
	Subpath  []Point2
}

// BuildTimeline produces the full frame schedule for a projected route.
// Progress runs linearly and inclusively from 0 to 1 over FrameCount frames;
// each frame's point index is progress interpolated over point count (not
// arc length) and rounded to the nearest index. A 2-point route still
// produces the configured frame count, with the marker moving directly
// between the two positions.
func BuildTimeline(points []Point2, cfg Config) ([]Frame, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientTrackPoints, len(points))
	}

	total := cfg.FrameCount()
	frames := make([]Frame, total)
	for i := 0; i < total; i++ {
		progress := float64(i) / float64(total-1)
		idx := int(math.Round(progress * float64(len(points)-1)))
		if idx < 0 {
			idx = 0
		} else if idx > len(points)-1 {
			idx = len(points) - 1
		}
		frames[i] = Frame{
			Index:    i,
			Progress: progress,
			Point:    points[idx],
			Subpath:  points[:idx+1],
		}
	}
	return frames, nil
}
