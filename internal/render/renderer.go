package render

import (
	"context"
	"image"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gpxhelper/internal/animation"
)

// Renderer runs one animation job: basemap once, then a bounded pool of
// workers drawing frames.
type Renderer struct {
	Tiles   TileProvider
	Workers int
	Log     zerolog.Logger
}

// NewRenderer sizes the worker pool to the machine when workers <= 0.
func NewRenderer(tiles TileProvider, workers int, log zerolog.Logger) *Renderer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Renderer{Tiles: tiles, Workers: workers, Log: log}
}

// RenderAll renders every frame of the timeline. The basemap is built once
// and shared read-only across workers; results land in an index-addressed
// slice, so assembly order is positional no matter which worker finishes
// first. progress (optional) is called after each completed frame. The
// second return value is the number of basemap tiles that could not be
// fetched.
func (r *Renderer) RenderAll(ctx context.Context, route []animation.Point2, frames []animation.Frame, cfg animation.Config, progress func(done, total int)) ([]image.Image, int, error) {
	bm, err := BuildBasemap(ctx, r.Tiles, route, cfg.Width, cfg.Height, r.Log)
	if err != nil {
		return nil, 0, err
	}

	images := make([]image.Image, len(frames))
	var done atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)
	for i, fr := range frames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			images[i] = RenderFrame(bm, fr, route, cfg)
			if progress != nil {
				progress(int(done.Add(1)), len(frames))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	r.Log.Info().Int("frames", len(frames)).Int("zoom", bm.Zoom).Int("missed_tiles", bm.Missed).
		Msg("frames rendered")
	return images, bm.Missed, nil
}
