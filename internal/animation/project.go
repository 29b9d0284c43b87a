package animation

import (
	"math"

	"gpxhelper/internal/track"
)

const (
	// EarthRadiusMeters is the spherical radius used by EPSG:3857.
	EarthRadiusMeters = 6378137.0
	// MaxMercatorLat is where the projection blows up; latitudes are
	// clamped to this band so points still land on the tile grid.
	MaxMercatorLat = 85.05112878
)

// Point2 is a planar Web Mercator coordinate in meters.
type Point2 struct {
	X float64
	Y float64
}

// ProjectLatLon converts a WGS84 coordinate to Web Mercator.
func ProjectLatLon(lat, lon float64) Point2 {
	if lat > MaxMercatorLat {
		lat = MaxMercatorLat
	} else if lat < -MaxMercatorLat {
		lat = -MaxMercatorLat
	}
	lonRad := lon * math.Pi / 180
	latRad := lat * math.Pi / 180
	return Point2{
		X: EarthRadiusMeters * lonRad,
		Y: EarthRadiusMeters * math.Log(math.Tan(math.Pi/4+latRad/2)),
	}
}

// Project converts every track point to Web Mercator, preserving order and
// count. It never resamples.
func Project(t track.Track) []Point2 {
	out := make([]Point2, len(t.Points))
	for i, p := range t.Points {
		out[i] = ProjectLatLon(p.Lat, p.Lon)
	}
	return out
}

// Bounds is an axis-aligned box in Web Mercator meters.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoundsOf computes the bounding box of a projected route.
func BoundsOf(points []Point2) Bounds {
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, p := range points {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// WithMargin grows the box by the given fraction on every side. Degenerate
// boxes (a stationary track) get a small fixed pad instead so there is still
// something to draw.
func (b Bounds) WithMargin(frac float64) Bounds {
	padX := (b.MaxX - b.MinX) * frac
	padY := (b.MaxY - b.MinY) * frac
	if padX == 0 {
		padX = 10
	}
	if padY == 0 {
		padY = 10
	}
	return Bounds{
		MinX: b.MinX - padX,
		MinY: b.MinY - padY,
		MaxX: b.MaxX + padX,
		MaxY: b.MaxY + padY,
	}
}

// Width returns the horizontal extent in meters.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent in meters.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }
