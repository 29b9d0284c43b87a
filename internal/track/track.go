package track

import (
	"errors"
	"fmt"
	"time"

	"github.com/tkrajina/gpxgo/gpx"
)

var (
	// ErrMalformedGPX reports a document that could not be parsed at all.
	ErrMalformedGPX = errors.New("malformed gpx document")
	// ErrInsufficientTimestampedPoints reports a track with fewer than two
	// points carrying usable timestamps.
	ErrInsufficientTimestampedPoints = errors.New("gpx track has fewer than 2 timestamped points")
)

// Point is a single timestamped track point. Elevation is nil when the
// source document carried no <ele> element.
type Point struct {
	Lat       float64
	Lon       float64
	Elevation *float64
	Time      time.Time
}

// Track is an ordered sequence of timestamped points. Tracks are treated as
// immutable: cropping returns a new Track sharing the backing array.
type Track struct {
	Points []Point
}

// Parse extracts timestamped points from a GPX document in document order,
// flattening all tracks and segments. Points without a timestamp are skipped;
// the number of skipped points is returned so callers can warn about them.
func Parse(data []byte) (Track, int, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return Track{}, 0, fmt.Errorf("%w: %v", ErrMalformedGPX, err)
	}

	var points []Point
	skipped := 0
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				if p.Timestamp.IsZero() {
					skipped++
					continue
				}
				pt := Point{
					Lat:  p.Latitude,
					Lon:  p.Longitude,
					Time: p.Timestamp.UTC(),
				}
				if p.Elevation.NotNull() {
					ele := p.Elevation.Value()
					pt.Elevation = &ele
				}
				points = append(points, pt)
			}
		}
	}

	if len(points) < 2 {
		return Track{}, skipped, fmt.Errorf("%w: got %d", ErrInsufficientTimestampedPoints, len(points))
	}
	return Track{Points: points}, skipped, nil
}

// Serialize writes the track back out as a minimal GPX 1.1 document. Fields
// absent in the model stay absent in the output.
func (t Track) Serialize() ([]byte, error) {
	doc := &gpx.GPX{
		Version: "1.1",
		Creator: "gpxhelper",
	}

	pts := make([]gpx.GPXPoint, 0, len(t.Points))
	for _, p := range t.Points {
		gp := gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  p.Lat,
				Longitude: p.Lon,
			},
			Timestamp: p.Time,
		}
		if p.Elevation != nil {
			gp.Elevation = *gpx.NewNullableFloat64(*p.Elevation)
		}
		pts = append(pts, gp)
	}
	doc.Tracks = []gpx.GPXTrack{{
		Segments: []gpx.GPXTrackSegment{{Points: pts}},
	}}

	out, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("serialize gpx: %w", err)
	}
	return out, nil
}

// TimeRange returns the timestamps of the first and last points.
func (t Track) TimeRange() (time.Time, time.Time) {
	if len(t.Points) == 0 {
		return time.Time{}, time.Time{}
	}
	return t.Points[0].Time, t.Points[len(t.Points)-1].Time
}
