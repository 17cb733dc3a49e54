package export

import (
	"fmt"
	"math"
	"strings"
)

// paper sizes in inches, portrait.
var paperSizes = map[string]struct {
	width, height float64
	pdfcpu        string
}{
	"letter": {8.5, 11, "Letter"},
	"legal":  {8.5, 14, "Legal"},
	"a4":     {8.27, 11.69, "A4"},
}

// Options control the exported document.
type Options struct {
	// Margin on every side, in inches.
	Margin float64
	// ImageQuality is the JPEG quality of the page raster, in (0,1].
	ImageQuality float64
	// Scale is the device pixel ratio used when rasterizing.
	Scale float64
	// Format is the paper size: letter, legal or a4.
	Format string
	// Orientation is portrait or landscape.
	Orientation string
	Filename    string
	// ViewportWidth is the CSS width the page is laid out at.
	ViewportWidth int
}

// IsFormat reports whether format names a supported paper size.
func IsFormat(format string) bool {
	_, ok := paperSizes[strings.ToLower(format)]
	return ok
}

// DefaultOptions mirror the download button on the page.
func DefaultOptions() Options {
	return Options{
		Margin:        0.5,
		ImageQuality:  0.98,
		Scale:         2,
		Format:        "letter",
		Orientation:   "portrait",
		Filename:      "resume.pdf",
		ViewportWidth: 1280,
	}
}

func (o Options) Validate() error {
	if !IsFormat(o.Format) {
		return fmt.Errorf("export: unknown paper format %q", o.Format)
	}
	switch strings.ToLower(o.Orientation) {
	case "portrait", "landscape":
	default:
		return fmt.Errorf("export: unknown orientation %q", o.Orientation)
	}
	if o.ImageQuality <= 0 || o.ImageQuality > 1 {
		return fmt.Errorf("export: image quality %v outside (0,1]", o.ImageQuality)
	}
	if o.Scale <= 0 {
		return fmt.Errorf("export: scale must be positive, got %v", o.Scale)
	}
	if o.ViewportWidth <= 0 {
		return fmt.Errorf("export: viewport width must be positive, got %d", o.ViewportWidth)
	}
	w, h := o.PageSize()
	if o.Margin < 0 || 2*o.Margin >= w || 2*o.Margin >= h {
		return fmt.Errorf("export: margin %vin does not fit a %.2fx%.2fin page", o.Margin, w, h)
	}
	return nil
}

// PageSize returns the page width and height in inches after orientation.
func (o Options) PageSize() (width, height float64) {
	p := paperSizes[strings.ToLower(o.Format)]
	if strings.EqualFold(o.Orientation, "landscape") {
		return p.height, p.width
	}
	return p.width, p.height
}

// Printable returns the area inside the margins, in inches.
func (o Options) Printable() (width, height float64) {
	w, h := o.PageSize()
	return w - 2*o.Margin, h - 2*o.Margin
}

// JPEGQuality converts ImageQuality into the 1-100 JPEG scale.
func (o Options) JPEGQuality() int {
	q := int(math.Round(o.ImageQuality * 100))
	return max(1, min(100, q))
}

// pageForm is the pdfcpu paper form, with L appended for landscape.
func (o Options) pageForm() string {
	form := paperSizes[strings.ToLower(o.Format)].pdfcpu
	if strings.EqualFold(o.Orientation, "landscape") {
		return form + "L"
	}
	return form + "P"
}
