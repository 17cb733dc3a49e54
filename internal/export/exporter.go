// Package export turns the rendered resume page into a downloadable PDF.
//
// A Capturer rasterizes the page; the Exporter slices the raster into strips
// that match the printable area and assembles one PDF page per strip.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/sirmark/resume/internal/logger"
)

// ErrDisabled is returned when no capturer is configured.
var ErrDisabled = errors.New("export: disabled")

var disableConfigDir sync.Once

// CaptureRequest tells a Capturer how to rasterize.
type CaptureRequest struct {
	ViewportWidth int
	Scale         float64
	Quality       int
}

// Capturer rasterizes a full page as JPEG.
type Capturer interface {
	Capture(ctx context.Context, url string, req CaptureRequest) ([]byte, error)
}

// Exporter produces PDF documents.
type Exporter struct {
	capturer Capturer
	log      logger.Logger
}

// New creates an Exporter. A nil capturer makes every export fail with ErrDisabled.
func New(capturer Capturer, log logger.Logger) *Exporter {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Exporter{capturer: capturer, log: log}
}

// Enabled reports whether the exporter can capture pages.
func (e *Exporter) Enabled() bool {
	return e != nil && e.capturer != nil
}

// Export captures url and returns the PDF bytes.
func (e *Exporter) Export(ctx context.Context, url string, opts Options) ([]byte, error) {
	if !e.Enabled() {
		return nil, ErrDisabled
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	raster, err := e.capturer.Capture(ctx, url, CaptureRequest{
		ViewportWidth: opts.ViewportWidth,
		Scale:         opts.Scale,
		Quality:       opts.JPEGQuality(),
	})
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", url, err)
	}

	doc, pages, err := Assemble(raster, opts)
	if err != nil {
		return nil, err
	}

	e.log.Info("Exported document",
		logger.String("url", url),
		logger.Int("pages", pages),
		logger.Int("bytes", len(doc)),
		logger.Duration("duration", time.Since(start)),
	)
	return doc, nil
}

// Assemble converts a JPEG raster into a paginated PDF and returns the
// document with its page count.
func Assemble(raster []byte, opts Options) ([]byte, int, error) {
	strips, err := paginate(raster, opts)
	if err != nil {
		return nil, 0, err
	}

	imp, err := api.Import(importDescription(opts), types.INCHES)
	if err != nil {
		return nil, 0, fmt.Errorf("import settings: %w", err)
	}

	readers := make([]io.Reader, len(strips))
	for i, s := range strips {
		readers[i] = bytes.NewReader(s)
	}

	conf := model.NewDefaultConfiguration()
	var raw bytes.Buffer
	if err := api.ImportImages(nil, &raw, readers, imp, conf); err != nil {
		return nil, 0, fmt.Errorf("assemble pdf: %w", err)
	}

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(raw.Bytes()), &out, model.NewDefaultConfiguration()); err != nil {
		return nil, 0, fmt.Errorf("optimize pdf: %w", err)
	}
	return out.Bytes(), len(strips), nil
}

// importDescription centers each strip and scales it to the printable area.
// Strips share the printable aspect ratio, so the binding dimension leaves
// exactly the configured margin.
func importDescription(opts Options) string {
	pw, ph := opts.PageSize()
	w, h := opts.Printable()
	scale := math.Max(w/pw, h/ph)
	return fmt.Sprintf("form:%s, pos:c, sc:%.4f rel", opts.pageForm(), scale)
}

// paginate cuts the raster into page-sized JPEG strips. The last strip is
// padded with white so every strip has the same aspect ratio.
func paginate(raster []byte, opts Options) ([][]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(raster))
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("export: empty raster")
	}

	w, h := opts.Printable()
	stripHeight := int(math.Round(float64(b.Dx()) * h / w))
	if stripHeight < 1 {
		stripHeight = 1
	}

	var strips [][]byte
	for y := b.Min.Y; y < b.Max.Y; y += stripHeight {
		page := image.NewRGBA(image.Rect(0, 0, b.Dx(), stripHeight))
		draw.Draw(page, page.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
		src := image.Rect(b.Min.X, y, b.Max.X, min(y+stripHeight, b.Max.Y))
		draw.Draw(page, image.Rect(0, 0, src.Dx(), src.Dy()), img, src.Min, draw.Src)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, page, &jpeg.Options{Quality: opts.JPEGQuality()}); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", len(strips)+1, err)
		}
		strips = append(strips, buf.Bytes())
	}
	return strips, nil
}
