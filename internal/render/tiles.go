// Package render composes basemap rasters from map tiles and draws the
// per-frame route overlays.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // some tile servers answer with JPEG
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrBasemapUnavailable reports a render job for which not a single tile
// could be obtained.
var ErrBasemapUnavailable = errors.New("no basemap could be produced")

const (
	tileSizePx           = 256
	tileFetchConcurrency = 8
	tileFetchTimeout     = 5 * time.Second
)

// Tile addresses one slippy-map tile.
type Tile struct {
	Z, X, Y int
}

// Style names a tile server and its URL template.
type Style struct {
	Name    string
	URL     string
	Headers map[string]string
}

// Styles are the known tile servers, keyed by the name used in config.
var Styles = map[string]Style{
	"default":  {Name: "default", URL: "https://tile.openstreetmap.org/{z}/{x}/{y}.png"},
	"cyclosm":  {Name: "cyclosm", URL: "https://c.tile-cyclosm.openstreetmap.fr/cyclosm/{z}/{x}/{y}.png"},
	"positron": {Name: "positron", URL: "https://d.basemaps.cartocdn.com/light_all/{z}/{x}/{y}.png"},
}

// TileProvider fetches one tile image. Injected so rendering can be tested
// without a network.
type TileProvider interface {
	Fetch(ctx context.Context, t Tile) (image.Image, error)
}

// HTTPTileProvider downloads tiles over HTTP with an on-disk PNG cache and
// an in-memory cache on top of it.
type HTTPTileProvider struct {
	Style    Style
	CacheDir string
	Client   *http.Client
	Log      zerolog.Logger

	mem sync.Map // cache path -> image.Image
}

// NewHTTPTileProvider looks up the named style ("default" when empty).
func NewHTTPTileProvider(styleName, cacheDir string, log zerolog.Logger) (*HTTPTileProvider, error) {
	if styleName == "" {
		styleName = "default"
	}
	style, ok := Styles[styleName]
	if !ok {
		return nil, fmt.Errorf("unknown map style %q", styleName)
	}
	return &HTTPTileProvider{
		Style:    style,
		CacheDir: cacheDir,
		Client:   &http.Client{Timeout: tileFetchTimeout},
		Log:      log,
	}, nil
}

// Fetch returns the tile from memory, disk, or the tile server, in that
// order. Downloads are written back to the disk cache.
func (p *HTTPTileProvider) Fetch(ctx context.Context, t Tile) (image.Image, error) {
	cachePath := filepath.Join(p.CacheDir, p.Style.Name, strconv.Itoa(t.Z), strconv.Itoa(t.X), fmt.Sprintf("%d.png", t.Y))

	if img, ok := p.mem.Load(cachePath); ok {
		return img.(image.Image), nil
	}

	if p.CacheDir != "" {
		if file, err := os.Open(cachePath); err == nil {
			img, _, err := image.Decode(file)
			file.Close()
			if err == nil {
				p.mem.Store(cachePath, img)
				return img, nil
			}
			p.Log.Warn().Str("path", cachePath).Err(err).Msg("discarding unreadable cached tile")
		}
	}

	img, err := p.download(ctx, t)
	if err != nil {
		return nil, err
	}

	if p.CacheDir != "" {
		if err := p.writeCache(cachePath, img); err != nil {
			p.Log.Warn().Str("path", cachePath).Err(err).Msg("could not cache tile")
		}
	}
	p.mem.Store(cachePath, img)
	return img, nil
}

func (p *HTTPTileProvider) download(ctx context.Context, t Tile) (image.Image, error) {
	url := strings.Replace(p.Style.URL, "{z}", strconv.Itoa(t.Z), 1)
	url = strings.Replace(url, "{x}", strconv.Itoa(t.X), 1)
	url = strings.Replace(url, "{y}", strconv.Itoa(t.Y), 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "gpxhelper/1.0")
	for k, v := range p.Style.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download tile %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download tile %s: status %d", url, resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode tile %s: %w", url, err)
	}
	return img, nil
}

func (p *HTTPTileProvider) writeCache(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return png.Encode(out, img)
}

// Prefetch warms the provider's caches for a tile set with bounded
// concurrency. Individual failures are logged, not fatal; composition deals
// with the holes.
func Prefetch(ctx context.Context, provider TileProvider, tiles []Tile, log zerolog.Logger) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(tileFetchConcurrency)
	for _, t := range tiles {
		g.Go(func() error {
			if _, err := provider.Fetch(ctx, t); err != nil {
				log.Warn().Int("z", t.Z).Int("x", t.X).Int("y", t.Y).Err(err).Msg("tile prefetch failed")
			}
			return nil
		})
	}
	g.Wait()
}
