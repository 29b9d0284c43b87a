package render

import (
	"gpxhelper/internal/animation"
)

// Empirical per-unit costs, measured on a mid-range 4-core machine. They
// only need to be right to within a factor of two: the estimate is advisory
// and never used to reject a job.
const (
	setupCost        = 1.5    // ffmpeg startup, basemap composition
	tileCost         = 0.08   // fetch + decode of one uncached tile
	perPixelCost     = 6e-9   // overlay drawing per output pixel
	perPointCost     = 2.5e-7 // polyline segment cost per route point
	perFrameFixed    = 0.004  // PNG encode + pipe write per frame
)

// Estimate predicts wall-clock seconds for a job from closed-form
// arithmetic, without rendering anything.
func Estimate(points, tiles int, cfg animation.Config) float64 {
	frames := float64(cfg.FrameCount())
	pixels := float64(cfg.Width) * float64(cfg.Height)
	perFrame := pixels*perPixelCost + float64(points)*perPointCost + perFrameFixed
	return setupCost + float64(tiles)*tileCost + frames*perFrame
}
