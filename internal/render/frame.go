package render

import (
	"image"

	"github.com/fogleman/gg"

	"gpxhelper/internal/animation"
)

// RenderFrame draws one animation frame: the shared basemap, the full route
// as a static polyline, the trail up to the frame's progress, and the
// position marker. It is a pure function of its inputs; the basemap is only
// read, so frames can render concurrently.
func RenderFrame(bm *Basemap, fr animation.Frame, route []animation.Point2, cfg animation.Config) image.Image {
	dc := gg.NewContext(cfg.Width, cfg.Height)
	dc.DrawImage(bm.Image, 0, 0)

	routeColor, _ := animation.ParseHexColor(cfg.RouteColor)
	trailColor, _ := animation.ParseHexColor(cfg.TrailColor)
	markerColor, _ := animation.ParseHexColor(cfg.MarkerColor)

	// Static full route underneath the trail.
	dc.SetRGBA(float64(routeColor.R)/255, float64(routeColor.G)/255, float64(routeColor.B)/255, cfg.RouteOpacity)
	dc.SetLineWidth(cfg.LineWidth * 0.6)
	strokePolyline(dc, bm, route)

	// Animated trail up to the current position.
	dc.SetRGBA(float64(trailColor.R)/255, float64(trailColor.G)/255, float64(trailColor.B)/255, cfg.TrailOpacity)
	dc.SetLineWidth(cfg.LineWidth)
	strokePolyline(dc, bm, fr.Subpath)

	// Current position marker with a white rim.
	mx, my := bm.ToPixel(fr.Point)
	dc.SetColor(markerColor)
	dc.DrawPoint(mx, my, cfg.MarkerSize)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(1.5)
	dc.DrawPoint(mx, my, cfg.MarkerSize)
	dc.Stroke()

	return dc.Image()
}

func strokePolyline(dc *gg.Context, bm *Basemap, points []animation.Point2) {
	if len(points) < 2 {
		return
	}
	x, y := bm.ToPixel(points[0])
	dc.MoveTo(x, y)
	for _, p := range points[1:] {
		x, y = bm.ToPixel(p)
		dc.LineTo(x, y)
	}
	dc.Stroke()
}
