package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpxhelper"
	"gpxhelper/internal/config"
	"gpxhelper/internal/metrics"
	"gpxhelper/internal/render"
	"gpxhelper/internal/track"
	"gpxhelper/internal/video"
)

type stubTiles struct{}

func (stubTiles) Fetch(_ context.Context, _ render.Tile) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 230, G: 230, B: 230, A: 255})
		}
	}
	return img, nil
}

type stubEncoder struct{}

func (stubEncoder) Encode(_ context.Context, frames []image.Image, _ int) ([]byte, error) {
	return []byte(fmt.Sprintf("mp4:%d", len(frames))), nil
}

type stubExtractor struct {
	meta video.Metadata
}

func (e stubExtractor) Extract(_ context.Context, _ string) (video.Metadata, error) {
	return e.meta, nil
}

var trackStart = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func fixtureGPX(n int) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><gpx version="1.1" creator="test"><trk><trkseg>`)
	for i := 0; i < n; i++ {
		ts := trackStart.Add(time.Duration(i) * 10 * time.Second)
		fmt.Fprintf(&b, `<trkpt lat="%f" lon="%f"><time>%s</time></trkpt>`,
			48.1+float64(i)*0.001, 11.5+float64(i)*0.001, ts.Format(time.RFC3339))
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	return []byte(b.String())
}

func testServer(t *testing.T, extractor video.Extractor) *Server {
	t.Helper()
	renderer := render.NewRenderer(stubTiles{}, 2, zerolog.Nop())
	svc := gpxhelper.NewWithDeps(config.Config{}, zerolog.Nop(), renderer, stubEncoder{}, nil)
	return New(svc, extractor, metrics.NewCollector(), zerolog.Nop())
}

// multipartBody builds a form with an optional gpx_file part plus fields.
func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, data := range files {
		part, err := mw.CreateFormFile(name, name+".bin")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func post(t *testing.T, srv *Server, path string, files map[string][]byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files, fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := testServer(t, stubExtractor{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "gpxhelper", body["service"])
}

func TestCapabilities(t *testing.T) {
	srv := testServer(t, stubExtractor{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/capabilities", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Version   string   `json:"version"`
		Endpoints []string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v1", body.Version)
	assert.Contains(t, body.Endpoints, "POST /api/v1/gpx/trim-by-time")
	assert.Contains(t, body.Endpoints, "POST /api/v1/gpx/map-animate")
}

func TestTrimByTime(t *testing.T) {
	srv := testServer(t, stubExtractor{})

	t.Run("success", func(t *testing.T) {
		rec := post(t, srv, "/api/v1/gpx/trim-by-time",
			map[string][]byte{"gpx_file": fixtureGPX(10)},
			map[string]string{
				"start_time": trackStart.Add(20 * time.Second).Format(time.RFC3339),
				"end_time":   trackStart.Add(50 * time.Second).Format(time.RFC3339),
			})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/gpx+xml", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "trimmed.gpx")

		cropped, _, err := track.Parse(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Len(t, cropped.Points, 4)
	})

	t.Run("timestamp without offset is rejected", func(t *testing.T) {
		rec := post(t, srv, "/api/v1/gpx/trim-by-time",
			map[string][]byte{"gpx_file": fixtureGPX(10)},
			map[string]string{
				"start_time": "2024-06-01T10:00:20",
				"end_time":   trackStart.Add(50 * time.Second).Format(time.RFC3339),
			})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing upload is rejected", func(t *testing.T) {
		rec := post(t, srv, "/api/v1/gpx/trim-by-time", nil,
			map[string]string{
				"start_time": trackStart.Format(time.RFC3339),
				"end_time":   trackStart.Add(time.Minute).Format(time.RFC3339),
			})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inverted window is a client error", func(t *testing.T) {
		rec := post(t, srv, "/api/v1/gpx/trim-by-time",
			map[string][]byte{"gpx_file": fixtureGPX(10)},
			map[string]string{
				"start_time": trackStart.Add(time.Minute).Format(time.RFC3339),
				"end_time":   trackStart.Format(time.RFC3339),
			})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTrimByVideo(t *testing.T) {
	duration := 40.0

	t.Run("exact metadata", func(t *testing.T) {
		creation := trackStart.Add(10 * time.Second)
		srv := testServer(t, stubExtractor{meta: video.Metadata{
			CreationTime:    &creation,
			DurationSeconds: &duration,
		}})

		rec := post(t, srv, "/api/v1/gpx/trim-by-video",
			map[string][]byte{"gpx_file": fixtureGPX(10), "video_file": []byte("videobytes")},
			nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, rec.Header().Get("X-Time-Source"))

		cropped, _, err := track.Parse(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, creation, cropped.Points[0].Time)
	})

	t.Run("fallback is surfaced in a header", func(t *testing.T) {
		srv := testServer(t, stubExtractor{meta: video.Metadata{
			DurationSeconds: &duration,
			Source:          video.SourceFallback,
		}})

		rec := post(t, srv, "/api/v1/gpx/trim-by-video",
			map[string][]byte{"gpx_file": fixtureGPX(10), "video_file": []byte("videobytes")},
			map[string]string{"file_modified_time": trackStart.Add(10 * time.Second).Format(time.RFC3339)})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "fallback", rec.Header().Get("X-Time-Source"))
	})

	t.Run("no duration is a client error", func(t *testing.T) {
		srv := testServer(t, stubExtractor{})

		rec := post(t, srv, "/api/v1/gpx/trim-by-video",
			map[string][]byte{"gpx_file": fixtureGPX(10), "video_file": []byte("videobytes")},
			nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMapAnimate(t *testing.T) {
	srv := testServer(t, stubExtractor{})

	t.Run("returns a video", func(t *testing.T) {
		rec := post(t, srv, "/api/v1/gpx/map-animate",
			map[string][]byte{"gpx_file": fixtureGPX(10)},
			map[string]string{
				"duration_seconds": "0.2",
				"resolution":       "320x240",
			})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
		body, _ := io.ReadAll(rec.Body)
		assert.True(t, bytes.HasPrefix(body, []byte("mp4:")))
	})

	t.Run("bad resolution is rejected", func(t *testing.T) {
		rec := post(t, srv, "/api/v1/gpx/map-animate",
			map[string][]byte{"gpx_file": fixtureGPX(10)},
			map[string]string{
				"duration_seconds": "0.2",
				"resolution":       "garbage",
			})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown tile_type is rejected", func(t *testing.T) {
		rec := post(t, srv, "/api/v1/gpx/map-animate",
			map[string][]byte{"gpx_file": fixtureGPX(10)},
			map[string]string{
				"duration_seconds": "0.2",
				"resolution":       "320x240",
				"tile_type":        "nope",
			})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-positive duration is rejected", func(t *testing.T) {
		rec := post(t, srv, "/api/v1/gpx/map-animate",
			map[string][]byte{"gpx_file": fixtureGPX(10)},
			map[string]string{
				"duration_seconds": "0",
				"resolution":       "320x240",
			})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEstimate(t *testing.T) {
	srv := testServer(t, stubExtractor{})

	rec := post(t, srv, "/api/v1/gpx/map-animate/estimate",
		map[string][]byte{"gpx_file": fixtureGPX(10)},
		map[string]string{
			"duration_seconds": "10",
			"resolution":       "1280x720",
		})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Greater(t, body["estimated_seconds"], 0.0)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, stubExtractor{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
