package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"

	"gpxhelper/internal/animation"
)

const (
	minZoom    = 1
	maxZoom    = 19
	marginFrac = 0.05

	attribution = "(c) OpenStreetMap contributors"
)

// worldMeters is the full Web Mercator extent, 2*pi*R.
const worldMeters = 2 * math.Pi * animation.EarthRadiusMeters

// Basemap is the raster shared read-only by every frame of a job, plus the
// mercator-to-pixel mapping the overlays need.
type Basemap struct {
	Image  *image.RGBA
	Zoom   int
	Missed int // tiles that could not be fetched

	bounds  animation.Bounds
	scale   float64 // pixels per meter
	offsetX float64
	offsetY float64
}

// ToPixel maps a projected point into basemap pixel coordinates.
func (b *Basemap) ToPixel(p animation.Point2) (float64, float64) {
	return b.offsetX + (p.X-b.bounds.MinX)*b.scale,
		b.offsetY + (b.bounds.MaxY-p.Y)*b.scale
}

// Coverage picks the tile zoom for a bounding box at the requested output
// size and lists the tiles that cover it. The zoom is the smallest one whose
// tiles resolve at or above the output resolution, so tiles are only ever
// drawn downscaled.
func Coverage(b animation.Bounds, width, height int) (int, []Tile) {
	scale := fitScale(b, width, height)

	zoom := int(math.Ceil(math.Log2(worldMeters * scale / tileSizePx)))
	if zoom < minZoom {
		zoom = minZoom
	} else if zoom > maxZoom {
		zoom = maxZoom
	}

	span := worldMeters / float64(int(1)<<zoom)
	half := worldMeters / 2
	n := int(1) << zoom

	txMin := clampTile(int(math.Floor((b.MinX+half)/span)), n)
	txMax := clampTile(int(math.Floor((b.MaxX+half)/span)), n)
	tyMin := clampTile(int(math.Floor((half-b.MaxY)/span)), n)
	tyMax := clampTile(int(math.Floor((half-b.MinY)/span)), n)

	var tiles []Tile
	for x := txMin; x <= txMax; x++ {
		for y := tyMin; y <= tyMax; y++ {
			tiles = append(tiles, Tile{Z: zoom, X: x, Y: y})
		}
	}
	return zoom, tiles
}

func clampTile(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n-1 {
		return n - 1
	}
	return v
}

// fitScale is the uniform pixels-per-meter scale that fits the box into the
// output, preserving aspect.
func fitScale(b animation.Bounds, width, height int) float64 {
	return math.Min(float64(width)/b.Width(), float64(height)/b.Height())
}

// BuildBasemap composes the shared background raster for one job: route
// bounds grown by the margin, tiles composited at the chosen zoom, and the
// attribution label in the corner. A tile that cannot be fetched leaves its
// cell blank and is counted; only a basemap with no tiles at all is an
// error. The result is computed once per job and never mutated afterwards.
func BuildBasemap(ctx context.Context, provider TileProvider, route []animation.Point2, width, height int, log zerolog.Logger) (*Basemap, error) {
	bounds := animation.BoundsOf(route).WithMargin(marginFrac)
	zoom, tiles := Coverage(bounds, width, height)

	Prefetch(ctx, provider, tiles, log)

	bm := &Basemap{
		Image:   image.NewRGBA(image.Rect(0, 0, width, height)),
		Zoom:    zoom,
		bounds:  bounds,
		scale:   fitScale(bounds, width, height),
		offsetX: (float64(width) - bounds.Width()*fitScale(bounds, width, height)) / 2,
		offsetY: (float64(height) - bounds.Height()*fitScale(bounds, width, height)) / 2,
	}

	// Neutral background behind missing tiles and letterbox bands.
	bg := color.RGBA{R: 0xe8, G: 0xe8, B: 0xe8, A: 0xff}
	xdraw.Draw(bm.Image, bm.Image.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	span := worldMeters / float64(int(1)<<zoom)
	half := worldMeters / 2

	fetched := 0
	for _, t := range tiles {
		img, err := provider.Fetch(ctx, t)
		if err != nil {
			bm.Missed++
			log.Warn().Int("z", t.Z).Int("x", t.X).Int("y", t.Y).Err(err).Msg("tile unavailable, leaving blank")
			continue
		}
		fetched++

		// Tile bounds in mercator meters, then in output pixels.
		west := float64(t.X)*span - half
		north := half - float64(t.Y)*span
		px0, py0 := bm.ToPixel(animation.Point2{X: west, Y: north})
		px1, py1 := bm.ToPixel(animation.Point2{X: west + span, Y: north - span})

		dst := image.Rect(int(math.Floor(px0)), int(math.Floor(py0)), int(math.Ceil(px1)), int(math.Ceil(py1)))
		xdraw.BiLinear.Scale(bm.Image, dst, img, img.Bounds(), xdraw.Src, nil)
	}

	if fetched == 0 {
		return nil, fmt.Errorf("%w: %d tiles failed at zoom %d", ErrBasemapUnavailable, bm.Missed, zoom)
	}
	if bm.Missed > 0 {
		log.Warn().Int("missed", bm.Missed).Int("fetched", fetched).Msg("basemap degraded, some tiles blank")
	}

	drawAttribution(bm.Image, width, height)
	return bm, nil
}

func drawAttribution(img *image.RGBA, width, height int) {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return
	}
	dc := gg.NewContextForRGBA(img)
	face := truetype.NewFace(font, &truetype.Options{Size: 11})
	dc.SetFontFace(face)
	dc.SetRGBA(0.25, 0.25, 0.25, 0.9)
	dc.DrawStringAnchored(attribution, float64(width)-6, float64(height)-6, 1, 0)
}
