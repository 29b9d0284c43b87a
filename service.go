// Package gpxhelper glues the track, video, animation, render and encode
// packages into the operations exposed by the CLI and the HTTP API.
package gpxhelper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gpxhelper/internal/animation"
	"gpxhelper/internal/config"
	"gpxhelper/internal/encode"
	"gpxhelper/internal/metrics"
	"gpxhelper/internal/render"
	"gpxhelper/internal/track"
	"gpxhelper/internal/video"
)

// Service owns the long-lived pieces (tile provider with its caches, encoder,
// metrics) and runs individual jobs against them. Safe for concurrent use.
type Service struct {
	cfg      config.Config
	log      zerolog.Logger
	renderer *render.Renderer
	encoder  encode.Encoder
	metrics  *metrics.Collector
}

// New wires a Service from config. metrics may be nil when instrumentation
// is disabled.
func New(cfg config.Config, log zerolog.Logger, m *metrics.Collector) (*Service, error) {
	tiles, err := render.NewHTTPTileProvider(cfg.TileStyle, cfg.TileCacheDir, log)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		renderer: render.NewRenderer(tiles, cfg.Workers, log),
		encoder:  encode.NewFFmpeg(cfg.FFmpegPath, cfg.FFmpegTimeout, log),
		metrics:  m,
	}, nil
}

// NewWithDeps builds a Service around injected renderer and encoder.
// Used by tests and by callers that bring their own tile source.
func NewWithDeps(cfg config.Config, log zerolog.Logger, renderer *render.Renderer, encoder encode.Encoder, m *metrics.Collector) *Service {
	return &Service{cfg: cfg, log: log, renderer: renderer, encoder: encoder, metrics: m}
}

// TrimByTime crops a GPX document to the sub-track nearest the given window
// and returns the cropped document.
func (s *Service) TrimByTime(gpxData []byte, w track.Window) ([]byte, error) {
	t, skipped, err := track.Parse(gpxData)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.log.Warn().Int("skipped", skipped).Msg("ignoring points without timestamps")
	}

	cropped, err := track.Crop(t, w)
	if err != nil {
		return nil, err
	}

	out, err := cropped.Serialize()
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TrimsTotal.Inc()
	}
	s.log.Info().Int("points_in", len(t.Points)).Int("points_out", len(cropped.Points)).
		Time("start", w.Start).Time("end", w.End).Msg("track trimmed")
	return out, nil
}

// TrimByVideo crops a GPX document to the window covered by a video clip.
// fallback stands in for the capture time when the metadata has none; the
// returned reliability tells the caller whether that happened.
func (s *Service) TrimByVideo(gpxData []byte, meta video.Metadata, fallback time.Time) ([]byte, video.Reliability, error) {
	w, reliability, err := video.ResolveWindow(meta, fallback)
	if err != nil {
		return nil, reliability, err
	}
	if reliability == video.SourceFallback {
		s.log.Warn().Time("assumed_start", w.Start).
			Msg("no capture time in video metadata, window based on substitute timestamp")
	}

	out, err := s.TrimByTime(gpxData, w)
	return out, reliability, err
}

// RenderAnimation renders a GPX track into an MP4 animation. progress
// (optional) is called after every completed frame.
func (s *Service) RenderAnimation(ctx context.Context, gpxData []byte, cfg animation.Config, progress func(done, total int)) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t, _, err := track.Parse(gpxData)
	if err != nil {
		return nil, err
	}

	route := animation.Project(t)
	frames, err := animation.BuildTimeline(route, cfg)
	if err != nil {
		return nil, err
	}

	renderStart := time.Now()
	images, missed, err := s.renderer.RenderAll(ctx, route, frames, cfg, progress)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RenderDuration.Observe(time.Since(renderStart).Seconds())
		s.metrics.FramesRendered.Add(float64(len(images)))
		s.metrics.TilesMissed.Add(float64(missed))
	}

	encodeStart := time.Now()
	out, err := s.encoder.Encode(ctx, images, cfg.FPS)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.EncodeDuration.Observe(time.Since(encodeStart).Seconds())
		s.metrics.RendersTotal.Inc()
	}
	s.log.Info().Int("frames", len(images)).Int("bytes", len(out)).
		Dur("render", time.Since(renderStart)).Msg("animation complete")
	return out, nil
}

// EstimateRenderCost predicts the wall-clock seconds a RenderAnimation call
// for this track and config would take, without rendering anything.
func (s *Service) EstimateRenderCost(gpxData []byte, cfg animation.Config) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	t, _, err := track.Parse(gpxData)
	if err != nil {
		return 0, err
	}

	route := animation.Project(t)
	if len(route) < 2 {
		return 0, animation.ErrInsufficientTrackPoints
	}
	bounds := animation.BoundsOf(route).WithMargin(0.05)
	_, tiles := render.Coverage(bounds, cfg.Width, cfg.Height)
	return render.Estimate(len(route), len(tiles), cfg), nil
}
