// Package server exposes the service operations over HTTP. Requests are
// stateless; a failed request aborts only itself.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gpxhelper"
	"gpxhelper/internal/animation"
	"gpxhelper/internal/metrics"
	"gpxhelper/internal/render"
	"gpxhelper/internal/track"
	"gpxhelper/internal/video"
)

const (
	apiVersion     = "v1"
	maxUploadBytes = 32 << 20
)

// Server routes HTTP requests to a Service. Construct with New; the zero
// value is not usable.
type Server struct {
	svc       *gpxhelper.Service
	extractor video.Extractor
	metrics   *metrics.Collector
	log       zerolog.Logger
	mux       *http.ServeMux
}

// New builds the full route table. extractor reads capture metadata for
// trim-by-video; metrics may be nil to disable /metrics and instrumentation.
func New(svc *gpxhelper.Service, extractor video.Extractor, m *metrics.Collector, log zerolog.Logger) *Server {
	s := &Server{svc: svc, extractor: extractor, metrics: m, log: log, mux: http.NewServeMux()}

	s.route("GET /api/v1/health", "health", s.handleHealth)
	s.route("GET /api/v1/capabilities", "capabilities", s.handleCapabilities)
	s.route("POST /api/v1/gpx/trim-by-time", "trim-by-time", s.handleTrimByTime)
	s.route("POST /api/v1/gpx/trim-by-video", "trim-by-video", s.handleTrimByVideo)
	s.route("POST /api/v1/gpx/map-animate", "map-animate", s.handleMapAnimate)
	s.route("POST /api/v1/gpx/map-animate/estimate", "map-animate-estimate", s.handleEstimate)
	if m != nil {
		s.mux.Handle("GET /metrics", m.Handler())
	}
	return s
}

// Handler returns the root handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) route(pattern, endpoint string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		}
		s.log.Debug().Str("endpoint", endpoint).Int("status", rec.status).Msg("request handled")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "gpxhelper"})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": apiVersion,
		"endpoints": []string{
			"POST /api/v1/gpx/trim-by-time",
			"POST /api/v1/gpx/trim-by-video",
			"POST /api/v1/gpx/map-animate/estimate",
			"POST /api/v1/gpx/map-animate",
		},
	})
}

func (s *Server) handleTrimByTime(w http.ResponseWriter, r *http.Request) {
	gpxData, _, err := readUpload(r, "gpx_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start, err := parseRequestTime(r.FormValue("start_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	end, err := parseRequestTime(r.FormValue("end_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := s.svc.TrimByTime(gpxData, track.Window{Start: start, End: end})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeAttachment(w, out, "trimmed.gpx", "application/gpx+xml")
}

func (s *Server) handleTrimByVideo(w http.ResponseWriter, r *http.Request) {
	gpxData, _, err := readUpload(r, "gpx_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	videoData, videoName, err := readUpload(r, "video_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// The extraction tool wants a real file.
	tmp, err := os.CreateTemp("", "gpxhelper-*"+filepath.Ext(videoName))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(videoData); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	tmp.Close()

	meta, err := s.extractor.Extract(r.Context(), tmp.Name())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The upload is a fresh copy, so its mtime is useless as a capture-time
	// substitute unless the client told us the original one.
	fallback := time.Now().UTC()
	if v := r.FormValue("file_modified_time"); v != "" {
		if t, err := parseRequestTime(v); err == nil {
			fallback = t
		}
	}

	out, reliability, err := s.svc.TrimByVideo(gpxData, meta, fallback)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if reliability == video.SourceFallback {
		w.Header().Set("X-Time-Source", "fallback")
	}
	writeAttachment(w, out, "trimmed.gpx", "application/gpx+xml")
}

func (s *Server) handleMapAnimate(w http.ResponseWriter, r *http.Request) {
	gpxData, gpxName, err := readUpload(r, "gpx_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := animationConfigFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := s.svc.RenderAnimation(r.Context(), gpxData, cfg, nil)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	stem := strings.TrimSuffix(filepath.Base(gpxName), filepath.Ext(gpxName))
	if stem == "" || stem == "." {
		stem = "route"
	}
	writeAttachment(w, out, stem+".mp4", "video/mp4")
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	gpxData, _, err := readUpload(r, "gpx_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := animationConfigFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	est, err := s.svc.EstimateRenderCost(gpxData, cfg)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"estimated_seconds": math.Round(est*100) / 100,
	})
}

// animationConfigFromForm builds a validated Config from the form fields
// shared by map-animate and its estimate.
func animationConfigFromForm(r *http.Request) (animation.Config, error) {
	cfg := animation.DefaultConfig()

	duration, err := formFloat(r, "duration_seconds", 0)
	if err != nil {
		return cfg, err
	}
	cfg.DurationSeconds = duration

	fps, err := formFloat(r, "fps", animation.DefaultFPS)
	if err != nil {
		return cfg, err
	}
	cfg.FPS = int(math.Round(fps))

	cfg.Width, cfg.Height, err = animation.ParseResolution(r.FormValue("resolution"))
	if err != nil {
		return cfg, err
	}

	if v := r.FormValue("marker_color"); v != "" {
		cfg.MarkerColor = v
	}
	if v := r.FormValue("trail_color"); v != "" {
		cfg.TrailColor = v
	}
	if v := r.FormValue("full_trail_color"); v != "" {
		cfg.RouteColor = v
	}
	if cfg.RouteOpacity, err = formFloat(r, "full_trail_opacity", cfg.RouteOpacity); err != nil {
		return cfg, err
	}
	if cfg.TrailOpacity, err = formFloat(r, "line_opacity", cfg.TrailOpacity); err != nil {
		return cfg, err
	}
	if cfg.LineWidth, err = formFloat(r, "line_width", cfg.LineWidth); err != nil {
		return cfg, err
	}
	if cfg.MarkerSize, err = formFloat(r, "marker_size", cfg.MarkerSize); err != nil {
		return cfg, err
	}

	// The server renders with its configured style, but an unknown name is
	// still a client error.
	if v := r.FormValue("tile_type"); v != "" {
		if _, ok := render.Styles[v]; !ok {
			return cfg, fmt.Errorf("unknown tile_type %q", v)
		}
	}

	return cfg, cfg.Validate()
}

func formFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return f, nil
}

// parseRequestTime parses an RFC 3339 timestamp. Timestamps without an
// explicit offset are rejected rather than guessed at.
func parseRequestTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q must be RFC 3339 with a timezone offset", v)
	}
	return t.UTC(), nil
}

func readUpload(r *http.Request, field string) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("parsing multipart form: %w", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("missing %s upload", field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading %s upload: %w", field, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%s file is empty", field)
	}
	return data, header.Filename, nil
}

// writeServiceError maps domain sentinels to 400 and everything else to 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	for _, sentinel := range []error{
		track.ErrMalformedGPX,
		track.ErrInsufficientTimestampedPoints,
		track.ErrInvalidWindow,
		track.ErrEmptyRange,
		video.ErrMissingDuration,
		animation.ErrInvalidConfig,
		animation.ErrInsufficientTrackPoints,
	} {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	s.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeAttachment(w http.ResponseWriter, payload []byte, filename, mediaType string) {
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(payload)
}
