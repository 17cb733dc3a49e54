package reveal

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Rect is a box in page coordinates, in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns width times height, or zero for inverted rects.
func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Grow expands r by m on each side. Negative margins shrink it.
func (r Rect) Grow(m Margin) Rect {
	return Rect{
		X:      r.X - m.Left,
		Y:      r.Y - m.Top,
		Width:  r.Width + m.Left + m.Right,
		Height: r.Height + m.Top + m.Bottom,
	}
}

// Intersect returns the overlap of r and o and whether they touch at all.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.Width, o.X+o.Width)
	y1 := min(r.Y+r.Height, o.Y+o.Height)
	if x1 < x0 || y1 < y0 {
		return Rect{}, false
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, true
}

// Margin offsets each edge of the root box.
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// String formats m in CSS shorthand.
func (m Margin) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) + "px" }
	return strings.Join([]string{f(m.Top), f(m.Right), f(m.Bottom), f(m.Left)}, " ")
}

// ParseMargin parses CSS margin shorthand with one to four pixel values,
// e.g. "0px 0px -50px 0px".
func ParseMargin(s string) (Margin, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 4 {
		return Margin{}, fmt.Errorf("reveal: margin %q needs 1 to 4 values", s)
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		num := strings.TrimSuffix(f, "px")
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return Margin{}, fmt.Errorf("reveal: margin value %q: %w", f, err)
		}
		vals[i] = v
	}
	switch len(vals) {
	case 1:
		return Margin{vals[0], vals[0], vals[0], vals[0]}, nil
	case 2:
		return Margin{vals[0], vals[1], vals[0], vals[1]}, nil
	case 3:
		return Margin{vals[0], vals[1], vals[2], vals[1]}, nil
	default:
		return Margin{vals[0], vals[1], vals[2], vals[3]}, nil
	}
}

// Ratio returns the fraction of target inside root.
func Ratio(target, root Rect) float64 {
	overlap, ok := target.Intersect(root)
	if !ok {
		return 0
	}
	if target.Area() == 0 {
		return 1
	}
	return overlap.Area() / target.Area()
}

// Geometry computes intersections in-process from layout reports. It serves
// hosts that can report element positions but cannot observe them.
type Geometry struct {
	mu       sync.Mutex
	opts     Options
	notify   func([]Entry)
	viewport Rect
	haveView bool
	targets  map[string]Rect
	last     map[string]bool
	closed   bool
}

// NewGeometry returns an unbound Geometry. Use Capability to hand it to a Tracker.
func NewGeometry() *Geometry {
	return &Geometry{
		targets: make(map[string]Rect),
		last:    make(map[string]bool),
	}
}

// Capability binds g to the tracker that starts with it.
func (g *Geometry) Capability() Capability {
	return func(opts Options, notify func([]Entry)) (Observer, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.closed {
			return nil, ErrUnsupported
		}
		g.opts = opts
		g.notify = notify
		return g, nil
	}
}

// Observe adds a target. It is evaluated at the next Update. A target with
// zero bounds is skipped until an Update supplies its position.
func (g *Geometry) Observe(r Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrStopped
	}
	g.targets[r.ID] = r.Bounds
	delete(g.last, r.ID)
	return nil
}

// Disconnect drops all targets; later updates are ignored.
func (g *Geometry) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.targets = make(map[string]Rect)
	g.last = make(map[string]bool)
}

// Update records a new viewport and optionally new bounds for observed
// targets, then notifies entries whose intersecting state changed. Bounds for
// unobserved ids are ignored.
func (g *Geometry) Update(viewport Rect, bounds map[string]Rect) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrStopped
	}
	if g.notify == nil {
		g.mu.Unlock()
		return ErrNotObserving
	}
	for id, b := range bounds {
		if _, ok := g.targets[id]; ok {
			g.targets[id] = b
		}
	}
	g.viewport = viewport
	g.haveView = true
	entries := g.evaluate()
	notify := g.notify
	g.mu.Unlock()

	if len(entries) > 0 {
		notify(entries)
	}
	return nil
}

// evaluate is called with g.mu held.
func (g *Geometry) evaluate() []Entry {
	if !g.haveView {
		return nil
	}
	root := g.viewport.Grow(g.opts.RootMargin)
	var entries []Entry
	for id, target := range g.targets {
		if target == (Rect{}) {
			// not laid out yet
			continue
		}
		ratio := Ratio(target, root)
		var intersecting bool
		if g.opts.Threshold > 0 {
			intersecting = ratio >= g.opts.Threshold
		} else {
			_, intersecting = target.Intersect(root)
		}
		prev, seen := g.last[id]
		if seen && prev == intersecting {
			continue
		}
		g.last[id] = intersecting
		entries = append(entries, Entry{ID: id, Intersecting: intersecting, Ratio: ratio})
	}
	return entries
}
