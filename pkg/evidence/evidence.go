// Package evidence renders PDF document crops into PNG previews, auto
// quadrants, and zoomed regions-of-interest, memoised through a render
// cache.
package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	fitz "github.com/gen2brain/go-fitz"

	"github.com/aizoomdoc/docpipeline/pkg/rendercache"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// Rendering defaults.
const (
	DefaultPreviewMaxSide      = 2000
	DefaultZoomPreviewMaxSide  = 2000
	DefaultAutoQuadrantsThresh = 2.5
	DefaultPreviewDPI          = 150
	DefaultROIDPI              = 300
	MinROIDPI                  = 72
	MaxROIDPI                  = 400
)

// ErrInvalidROI is returned when a requested ROI has zero area after
// clamping to [0,1]^4.
var ErrInvalidROI = errors.New("evidence: roi has zero area after clamping")

// quadrant windows: four overlapping crops covering the page.
var quadrantWindows = []types.BBoxNorm{
	{0, 0, 0.55, 0.55},
	{0.45, 0, 1, 0.55},
	{0, 0.45, 0.55, 1},
	{0.45, 0.45, 1, 1},
}

// Renderer renders PDF bytes into PNGs, memoised through cache.
type Renderer struct {
	cache               *rendercache.Cache
	previewMaxSide      int
	zoomPreviewMaxSide  int
	autoQuadrantsThresh float64
}

// Config configures a Renderer; zero values fall back to the defaults.
type Config struct {
	PreviewMaxSide      int
	ZoomPreviewMaxSide  int
	AutoQuadrantsThresh float64
}

// New constructs a Renderer backed by cache.
func New(cache *rendercache.Cache, cfg Config) *Renderer {
	r := &Renderer{cache: cache, previewMaxSide: cfg.PreviewMaxSide, zoomPreviewMaxSide: cfg.ZoomPreviewMaxSide, autoQuadrantsThresh: cfg.AutoQuadrantsThresh}
	if r.previewMaxSide == 0 {
		r.previewMaxSide = DefaultPreviewMaxSide
	}
	if r.zoomPreviewMaxSide == 0 {
		r.zoomPreviewMaxSide = DefaultZoomPreviewMaxSide
	}
	if r.autoQuadrantsThresh == 0 {
		r.autoQuadrantsThresh = DefaultAutoQuadrantsThresh
	}
	return r
}

// ContentHash returns the first 16 hex chars of SHA-256 of pdfBytes, used
// as the source version when the caller supplies none.
func ContentHash(pdfBytes []byte) string {
	sum := sha256.Sum256(pdfBytes)
	return hex.EncodeToString(sum[:])[:16]
}

// Rendered is one PNG render output.
type Rendered struct {
	PNG         []byte
	Width       int
	Height      int
	ScaleFactor float64
	BBoxNorm    *types.BBoxNorm
}

// renderPage renders page at the given dpi from pdfBytes, through the cache.
func (r *Renderer) renderPage(pdfBytes []byte, sourceID, sourceVersion string, page, dpi int) (image.Image, error) {
	key := rendercache.Key(sourceID, sourceVersion, page, dpi, nil)
	if cached, err := r.cache.Get(key); err == nil && cached != nil {
		img, decodeErr := imaging.Decode(bytes.NewReader(cached))
		if decodeErr == nil {
			return img, nil
		}
	}

	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("evidence: open pdf: %w", err)
	}
	defer doc.Close()

	img, err := doc.ImageDPI(page, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("evidence: render page %d at %d dpi: %w", page, dpi, err)
	}

	if pngBytes, encodeErr := encodePNG(img); encodeErr == nil {
		_ = r.cache.Put(key, sourceVersion, pngBytes)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scaleToMaxSide rescales img so its longer side is at most maxSide,
// returning the (possibly unchanged) image and the scale-down factor
// (>1 means the image was shrunk). Uses floor rounding and Lanczos
// resampling on downscale.
func scaleToMaxSide(img image.Image, maxSide int) (image.Image, float64) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	maxDim := w
	if h > maxDim {
		maxDim = h
	}
	if maxDim <= maxSide {
		return img, 1.0
	}
	scale := float64(maxDim) / float64(maxSide)
	newW := int(math.Floor(float64(w) / scale))
	newH := int(math.Floor(float64(h) / scale))
	return imaging.Resize(img, newW, newH, imaging.Lanczos), scale
}

// cropNorm crops img to the normalised bbox, clamped to [0,1]^4. Returns
// ErrInvalidROI if the clamped box has zero area.
func cropNorm(img image.Image, bbox types.BBoxNorm) (image.Image, types.BBoxNorm, error) {
	clamped := bbox.Clamp()
	if !clamped.Valid() {
		return nil, clamped, ErrInvalidROI
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	x1 := int(math.Floor(clamped[0] * float64(w)))
	y1 := int(math.Floor(clamped[1] * float64(h)))
	x2 := int(math.Floor(clamped[2] * float64(w)))
	y2 := int(math.Floor(clamped[3] * float64(h)))
	if x2 <= x1 || y2 <= y1 {
		return nil, clamped, ErrInvalidROI
	}
	rect := image.Rect(x1, y1, x2, y2)
	return imaging.Crop(img, rect), clamped, nil
}

// clampDPI clamps dpi into [MinROIDPI, MaxROIDPI], applying DefaultROIDPI
// when dpi is zero.
func clampDPI(dpi int) int {
	if dpi == 0 {
		dpi = DefaultROIDPI
	}
	if dpi < MinROIDPI {
		return MinROIDPI
	}
	if dpi > MaxROIDPI {
		return MaxROIDPI
	}
	return dpi
}

// BuildPreviewAndQuadrants renders the overview for (pdfBytes, page, dpi)
// plus, when the scale-down factor exceeds the auto-quadrants threshold,
// four overlapping quadrant crops.
func (r *Renderer) BuildPreviewAndQuadrants(pdfBytes []byte, sourceID, sourceVersion string, page, dpi int) ([]Rendered, error) {
	if sourceVersion == "" {
		sourceVersion = ContentHash(pdfBytes)
	}
	base, err := r.renderPage(pdfBytes, sourceID, sourceVersion, page, dpi)
	if err != nil {
		return nil, err
	}

	overviewImg, scale := scaleToMaxSide(base, r.previewMaxSide)
	overviewPNG, err := encodePNG(overviewImg)
	if err != nil {
		return nil, fmt.Errorf("evidence: encode overview: %w", err)
	}
	ob := overviewImg.Bounds()
	out := []Rendered{{PNG: overviewPNG, Width: ob.Dx(), Height: ob.Dy(), ScaleFactor: scale}}

	if scale <= r.autoQuadrantsThresh {
		return out, nil
	}

	for _, window := range quadrantWindows {
		cropped, clamped, err := cropNorm(base, window)
		if err != nil {
			continue
		}
		rescaled, qScale := scaleToMaxSide(cropped, r.zoomPreviewMaxSide)
		png, err := encodePNG(rescaled)
		if err != nil {
			continue
		}
		rb := rescaled.Bounds()
		bbox := clamped
		out = append(out, Rendered{PNG: png, Width: rb.Dx(), Height: rb.Dy(), ScaleFactor: qScale, BBoxNorm: &bbox})
	}
	return out, nil
}

// BuildROI renders a single normalised crop at the requested (clamped)
// dpi. Crop PDFs are single-page extracts, so the render always targets
// page 0; the original document's page number is never meaningful here.
func (r *Renderer) BuildROI(pdfBytes []byte, sourceID, sourceVersion string, dpi int, bbox types.BBoxNorm) (Rendered, error) {
	if sourceVersion == "" {
		sourceVersion = ContentHash(pdfBytes)
	}
	dpi = clampDPI(dpi)
	page := 0

	base, err := r.renderPage(pdfBytes, sourceID, sourceVersion, page, dpi)
	if err != nil {
		return Rendered{}, err
	}
	cropped, clamped, err := cropNorm(base, bbox)
	if err != nil {
		return Rendered{}, err
	}
	rescaled, scale := scaleToMaxSide(cropped, r.zoomPreviewMaxSide)
	png, err := encodePNG(rescaled)
	if err != nil {
		return Rendered{}, fmt.Errorf("evidence: encode roi: %w", err)
	}
	rb := rescaled.Bounds()
	return Rendered{PNG: png, Width: rb.Dx(), Height: rb.Dy(), ScaleFactor: scale, BBoxNorm: &clamped}, nil
}
