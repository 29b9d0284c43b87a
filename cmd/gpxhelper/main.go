package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"gpxhelper"
	"gpxhelper/internal/animation"
	"gpxhelper/internal/config"
	"gpxhelper/internal/metrics"
	"gpxhelper/internal/server"
	"gpxhelper/internal/track"
	"gpxhelper/internal/video"
)

const usage = `Usage: gpxhelper <command> [flags]

Commands:
  trim      Crop a GPX track to a time window or a video's span
  animate   Render a GPX track into an MP4 map animation
  estimate  Predict how long an animation render would take
  serve     Run the HTTP API

Run 'gpxhelper <command> -h' for command flags.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	switch os.Args[1] {
	case "trim":
		err = runTrim(cfg, log, os.Args[2:])
	case "animate":
		err = runAnimate(cfg, log, os.Args[2:])
	case "estimate":
		err = runEstimate(cfg, log, os.Args[2:])
	case "serve":
		err = runServe(cfg, log, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
}

func runTrim(cfg config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("trim", flag.ExitOnError)
	gpxPath := fs.String("gpx", "", "Path to the GPX file.")
	output := fs.String("o", "trimmed.gpx", "Output GPX file name.")
	startStr := fs.String("start", "", "Window start (RFC 3339 with offset).")
	endStr := fs.String("end", "", "Window end (RFC 3339 with offset).")
	videoPath := fs.String("video", "", "Derive the window from this video file instead of -start/-end.")
	fs.Parse(args)

	if *gpxPath == "" {
		return fmt.Errorf("-gpx is required")
	}
	gpxData, err := os.ReadFile(*gpxPath)
	if err != nil {
		return err
	}

	svc, err := gpxhelper.New(cfg, log, nil)
	if err != nil {
		return err
	}

	var out []byte
	if *videoPath != "" {
		extractor := video.NewExifTool(cfg.ExifToolPath, cfg.ExifToolTimeout, log)
		meta, err := extractor.Extract(context.Background(), *videoPath)
		if err != nil {
			return err
		}
		stat, err := os.Stat(*videoPath)
		if err != nil {
			return err
		}

		var reliability video.Reliability
		out, reliability, err = svc.TrimByVideo(gpxData, meta, stat.ModTime())
		if err != nil {
			return err
		}
		if reliability == video.SourceFallback {
			log.Warn().Msg("window derived from file modification time, verify the result")
		}
	} else {
		w, err := parseWindow(*startStr, *endStr)
		if err != nil {
			return err
		}
		out, err = svc.TrimByTime(gpxData, w)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(*output, out, 0o644); err != nil {
		return err
	}
	log.Info().Str("output", *output).Msg("trimmed track written")
	return nil
}

func parseWindow(start, end string) (track.Window, error) {
	if start == "" || end == "" {
		return track.Window{}, fmt.Errorf("-start and -end are required without -video")
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return track.Window{}, fmt.Errorf("parse -start: %w", err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return track.Window{}, fmt.Errorf("parse -end: %w", err)
	}
	return track.Window{Start: s.UTC(), End: e.UTC()}, nil
}

// animationFlags registers the shared animate/estimate flags on fs and
// returns a closure producing the resulting config.
func animationFlags(fs *flag.FlagSet) func() (animation.Config, error) {
	defaults := animation.DefaultConfig()
	duration := fs.Float64("duration", 10, "Animation duration in seconds.")
	resolution := fs.String("resolution", "1280x720", "Output resolution, e.g. 1920x1080.")
	fps := fs.Int("fps", defaults.FPS, "Frames per second.")
	markerColor := fs.String("marker-color", defaults.MarkerColor, "Marker color (hex).")
	trailColor := fs.String("trail-color", defaults.TrailColor, "Trail color (hex).")
	routeColor := fs.String("route-color", defaults.RouteColor, "Full route color (hex).")
	routeOpacity := fs.Float64("route-opacity", defaults.RouteOpacity, "Full route opacity (0..1).")
	lineWidth := fs.Float64("line-width", defaults.LineWidth, "Trail line width.")
	markerSize := fs.Float64("marker-size", defaults.MarkerSize, "Marker radius in pixels.")

	return func() (animation.Config, error) {
		cfg := defaults
		cfg.DurationSeconds = *duration
		cfg.FPS = *fps
		cfg.MarkerColor = *markerColor
		cfg.TrailColor = *trailColor
		cfg.RouteColor = *routeColor
		cfg.RouteOpacity = *routeOpacity
		cfg.LineWidth = *lineWidth
		cfg.MarkerSize = *markerSize

		var err error
		cfg.Width, cfg.Height, err = animation.ParseResolution(*resolution)
		if err != nil {
			return cfg, err
		}
		return cfg, cfg.Validate()
	}
}

func runAnimate(cfg config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("animate", flag.ExitOnError)
	gpxPath := fs.String("gpx", "", "Path to the GPX file.")
	output := fs.String("o", "route.mp4", "Output video file name.")
	buildCfg := animationFlags(fs)
	fs.Parse(args)

	if *gpxPath == "" {
		return fmt.Errorf("-gpx is required")
	}
	gpxData, err := os.ReadFile(*gpxPath)
	if err != nil {
		return err
	}
	animCfg, err := buildCfg()
	if err != nil {
		return err
	}

	svc, err := gpxhelper.New(cfg, log, nil)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(animCfg.FrameCount()), "rendering")
	out, err := svc.RenderAnimation(context.Background(), gpxData, animCfg, func(done, total int) {
		bar.Set(done)
	})
	if err != nil {
		return err
	}
	bar.Finish()

	if err := os.WriteFile(*output, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("\nVideo saved to %s\n", *output)
	return nil
}

func runEstimate(cfg config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	gpxPath := fs.String("gpx", "", "Path to the GPX file.")
	buildCfg := animationFlags(fs)
	fs.Parse(args)

	if *gpxPath == "" {
		return fmt.Errorf("-gpx is required")
	}
	gpxData, err := os.ReadFile(*gpxPath)
	if err != nil {
		return err
	}
	animCfg, err := buildCfg()
	if err != nil {
		return err
	}

	svc, err := gpxhelper.New(cfg, log, nil)
	if err != nil {
		return err
	}
	est, err := svc.EstimateRenderCost(gpxData, animCfg)
	if err != nil {
		return err
	}
	fmt.Printf("Estimated render time: %.1fs\n", est)
	return nil
}

func runServe(cfg config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", cfg.Listen, "Listen address.")
	fs.Parse(args)

	var m *metrics.Collector
	if cfg.MetricsEnabled {
		m = metrics.NewCollector()
	}

	svc, err := gpxhelper.New(cfg, log, m)
	if err != nil {
		return err
	}
	extractor := video.NewExifTool(cfg.ExifToolPath, cfg.ExifToolTimeout, log)
	srv := server.New(svc, extractor, m, log)

	log.Info().Str("listen", *listen).Msg("serving HTTP API")
	return http.ListenAndServe(*listen, srv.Handler())
}
