package animation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpxhelper/internal/track"
)

func testConfig(duration float64) Config {
	cfg := DefaultConfig()
	cfg.DurationSeconds = duration
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults with size and duration", mutate: func(c *Config) {}, ok: true},
		{name: "zero duration", mutate: func(c *Config) { c.DurationSeconds = 0 }},
		{name: "negative width", mutate: func(c *Config) { c.Width = -1 }},
		{name: "zero height", mutate: func(c *Config) { c.Height = 0 }},
		{name: "zero fps", mutate: func(c *Config) { c.FPS = 0 }},
		{name: "bad marker color", mutate: func(c *Config) { c.MarkerColor = "blue" }},
		{name: "opacity above one", mutate: func(c *Config) { c.RouteOpacity = 1.5 }},
		{name: "zero marker size", mutate: func(c *Config) { c.MarkerSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(5)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestFrameCount(t *testing.T) {
	assert.Equal(t, 60, testConfig(2).FrameCount())
	assert.Equal(t, 72, testConfig(2.4).FrameCount())
	// Very short durations still get a first and last frame.
	assert.Equal(t, 2, testConfig(0.01).FrameCount())
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input   string
		w, h    int
		wantErr bool
	}{
		{input: "1920x1080", w: 1920, h: 1080},
		{input: "1280, 720", w: 1280, h: 720},
		{input: "640X480", w: 640, h: 480},
		{input: "garbage", wantErr: true},
		{input: "axb", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			w, h, err := ParseResolution(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#0ea5e9")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x0e), c.R)
	assert.Equal(t, uint8(0xa5), c.G)
	assert.Equal(t, uint8(0xe9), c.B)
	assert.Equal(t, uint8(255), c.A)

	_, err = ParseHexColor("red")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProjectLatLon(t *testing.T) {
	t.Run("origin maps to origin", func(t *testing.T) {
		p := ProjectLatLon(0, 0)
		assert.InDelta(t, 0, p.X, 1e-9)
		assert.InDelta(t, 0, p.Y, 1e-9)
	})

	t.Run("known coordinate", func(t *testing.T) {
		// Munich, cross-checked against the EPSG:3857 forward transform.
		p := ProjectLatLon(48.137154, 11.576124)
		assert.InDelta(t, 1288648.3, p.X, 5.0)
		assert.InDelta(t, 6129702.8, p.Y, 5.0)
	})

	t.Run("latitude is clamped", func(t *testing.T) {
		pole := ProjectLatLon(90, 0)
		clamped := ProjectLatLon(MaxMercatorLat, 0)
		assert.Equal(t, clamped, pole)
		assert.False(t, math.IsInf(pole.Y, 1))
	})
}

func TestProject(t *testing.T) {
	trk := track.Track{Points: []track.Point{
		{Lat: 0, Lon: 0},
		{Lat: 0.001, Lon: 0.001},
		{Lat: 0.002, Lon: 0.002},
	}}

	pts := Project(trk)

	require.Len(t, pts, len(trk.Points))
	// Order preserved, distinct inputs stay distinct.
	for i := 1; i < len(pts); i++ {
		assert.Greater(t, pts[i].X, pts[i-1].X)
		assert.Greater(t, pts[i].Y, pts[i-1].Y)
	}
}

func TestBounds(t *testing.T) {
	pts := []Point2{{X: -10, Y: 5}, {X: 20, Y: -5}, {X: 0, Y: 0}}

	b := BoundsOf(pts)
	assert.Equal(t, Bounds{MinX: -10, MinY: -5, MaxX: 20, MaxY: 5}, b)

	m := b.WithMargin(0.05)
	assert.InDelta(t, -11.5, m.MinX, 1e-9)
	assert.InDelta(t, 21.5, m.MaxX, 1e-9)
	assert.InDelta(t, -5.5, m.MinY, 1e-9)
	assert.InDelta(t, 5.5, m.MaxY, 1e-9)

	// A stationary track still gets a drawable box.
	deg := BoundsOf([]Point2{{X: 1, Y: 1}}).WithMargin(0.05)
	assert.Greater(t, deg.Width(), 0.0)
	assert.Greater(t, deg.Height(), 0.0)
}

func TestBuildTimeline(t *testing.T) {
	route := []Point2{{X: 0}, {X: 1}, {X: 2}, {X: 3}}

	t.Run("frame count and inclusive progress", func(t *testing.T) {
		frames, err := BuildTimeline(route, testConfig(2))

		require.NoError(t, err)
		require.Len(t, frames, 60)
		assert.Equal(t, 0.0, frames[0].Progress)
		assert.Equal(t, 1.0, frames[59].Progress)
		for i := 1; i < len(frames); i++ {
			assert.Greater(t, frames[i].Progress, frames[i-1].Progress)
		}
	})

	t.Run("subpath is the prefix up to the frame's index", func(t *testing.T) {
		frames, err := BuildTimeline(route, testConfig(2))

		require.NoError(t, err)
		assert.Equal(t, route[:1], frames[0].Subpath)
		assert.Equal(t, route, frames[len(frames)-1].Subpath)
		assert.Equal(t, route[0], frames[0].Point)
		assert.Equal(t, route[3], frames[len(frames)-1].Point)
		for i := 1; i < len(frames); i++ {
			assert.GreaterOrEqual(t, len(frames[i].Subpath), len(frames[i-1].Subpath))
		}
	})

	t.Run("two point route still animates", func(t *testing.T) {
		frames, err := BuildTimeline([]Point2{{X: 0}, {X: 5}}, testConfig(1))

		require.NoError(t, err)
		require.Len(t, frames, 30)
		assert.Equal(t, Point2{X: 0}, frames[0].Point)
		assert.Equal(t, Point2{X: 5}, frames[29].Point)
	})

	t.Run("single point fails", func(t *testing.T) {
		_, err := BuildTimeline([]Point2{{X: 0}}, testConfig(1))

		assert.ErrorIs(t, err, ErrInsufficientTrackPoints)
	})

	t.Run("invalid config fails before scheduling", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.Width = 0

		_, err := BuildTimeline(route, cfg)

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
