// Package animation turns a geographic track into a per-frame drawing
// schedule: Web Mercator projection plus a linear frame timeline.
package animation

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidConfig reports a config rejected by eager validation.
	ErrInvalidConfig = errors.New("invalid animation config")
	// ErrInsufficientTrackPoints reports a track too short to animate.
	ErrInsufficientTrackPoints = errors.New("track needs at least 2 points to animate")
)

var validate = validator.New()

// DefaultFPS is the fixed frame rate used when a request does not override it.
const DefaultFPS = 30

// Config describes one animation job. Construct with DefaultConfig and
// validate with Validate before rendering; nothing is checked lazily later.
type Config struct {
	DurationSeconds float64 `validate:"gt=0"`
	Width           int     `validate:"gt=0"`
	Height          int     `validate:"gt=0"`
	FPS             int     `validate:"gt=0"`

	MarkerColor      string  `validate:"hexcolor"`
	TrailColor       string  `validate:"hexcolor"`
	RouteColor       string  `validate:"hexcolor"`
	RouteOpacity     float64 `validate:"gte=0,lte=1"`
	TrailOpacity     float64 `validate:"gte=0,lte=1"`
	LineWidth        float64 `validate:"gt=0"`
	MarkerSize       float64 `validate:"gt=0"`
}

// DefaultConfig returns a config with the documented defaults; duration,
// width and height still have to be filled in.
func DefaultConfig() Config {
	return Config{
		FPS:          DefaultFPS,
		MarkerColor:  "#0ea5e9",
		TrailColor:   "#0ea5e9",
		RouteColor:   "#111827",
		RouteOpacity: 0.8,
		TrailOpacity: 1.0,
		LineWidth:    2.5,
		MarkerSize:   6.0,
	}
}

// Validate checks every field eagerly.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// FrameCount is round(duration x fps), with a floor of 2 so even a very
// short request still produces a first and a last frame.
func (c Config) FrameCount() int {
	n := int(math.Round(c.DurationSeconds * float64(c.FPS)))
	if n < 2 {
		n = 2
	}
	return n
}

// ParseResolution parses "1920x1080" (or "1920,1080") into width and height.
func ParseResolution(s string) (int, int, error) {
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	for _, sep := range []string{"x", ","} {
		if !strings.Contains(s, sep) {
			continue
		}
		wStr, hStr, _ := strings.Cut(s, sep)
		w, err := strconv.Atoi(wStr)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad width %q", ErrInvalidConfig, wStr)
		}
		h, err := strconv.Atoi(hStr)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad height %q", ErrInvalidConfig, hStr)
		}
		return w, h, nil
	}
	return 0, 0, fmt.Errorf("%w: could not parse resolution %q", ErrInvalidConfig, s)
}

// ParseHexColor parses "#RRGGBB" into an opaque color.
func ParseHexColor(s string) (color.RGBA, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("%w: bad color %q", ErrInvalidConfig, s)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
