// Package reveal tracks which named regions of a page have scrolled into the
// viewport.
//
// A Tracker is owned by exactly one page view. The host environment delivers
// intersection notifications through an Observer obtained from a Capability;
// every region that is reported intersecting at least once stays revealed for
// the lifetime of the tracker. When the host offers no observation capability
// the tracker fails open and treats every region as revealed.
package reveal

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnsupported is returned by a Capability when the host cannot observe regions.
	ErrUnsupported = errors.New("reveal: observation unsupported")
	// ErrStopped is returned when a stopped tracker is used again.
	ErrStopped = errors.New("reveal: tracker stopped")
	// ErrEmptyID is returned when registering a region without an identifier.
	ErrEmptyID = errors.New("reveal: empty region id")
)

// State is the lifecycle state of a Tracker.
type State int

const (
	Idle State = iota
	Observing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Observing:
		return "observing"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Region is a named observable area of the page.
type Region struct {
	ID     string `json:"id"`
	Bounds Rect   `json:"bounds"`
}

// Entry is one intersection notification.
type Entry struct {
	ID           string  `json:"id"`
	Intersecting bool    `json:"intersecting"`
	Ratio        float64 `json:"ratio"`
}

// Observer watches registered regions and reports intersections to the
// callback it was created with.
type Observer interface {
	Observe(r Region) error
	Disconnect()
}

// Capability creates an Observer for the given options. A nil Capability, or
// one that returns ErrUnsupported, means the host cannot observe regions.
type Capability func(opts Options, notify func([]Entry)) (Observer, error)

// Options tune when a region counts as intersecting.
type Options struct {
	// Threshold is the fraction of the region that must be inside the root.
	Threshold float64
	// RootMargin grows (positive) or shrinks (negative) the viewport.
	RootMargin Margin
}

// DefaultOptions triggers at 10% visibility, 50px before the bottom edge.
func DefaultOptions() Options {
	return Options{
		Threshold:  0.1,
		RootMargin: Margin{Bottom: -50},
	}
}

// Validate checks the threshold range.
func (o Options) Validate() error {
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("reveal: threshold %v outside [0,1]", o.Threshold)
	}
	return nil
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithOptions sets intersection options.
func WithOptions(opts Options) Option {
	return func(t *Tracker) { t.opts = opts }
}

// WithOnReveal sets a hook called once per newly revealed region. The hook
// runs without the tracker lock held.
func WithOnReveal(fn func(id string)) Option {
	return func(t *Tracker) { t.onReveal = fn }
}

// Tracker records which regions have been revealed.
type Tracker struct {
	mu         sync.Mutex
	capability Capability
	opts       Options
	onReveal   func(id string)

	state    State
	failOpen bool
	observer Observer
	order    []string
	regions  map[string]Region
	revealed map[string]struct{}
}

// New creates an idle Tracker that will observe through capability.
func New(capability Capability, options ...Option) *Tracker {
	t := &Tracker{
		capability: capability,
		opts:       DefaultOptions(),
		regions:    make(map[string]Region),
		revealed:   make(map[string]struct{}),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Register associates id with an observable area. Re-registering an id
// replaces its bounds.
func (t *Tracker) Register(id string, bounds Rect) error {
	if id == "" {
		return ErrEmptyID
	}
	region := Region{ID: id, Bounds: bounds}

	t.mu.Lock()
	switch t.state {
	case Stopped:
		t.mu.Unlock()
		return ErrStopped
	case Idle:
		t.put(region)
		t.mu.Unlock()
		return nil
	}

	t.put(region)
	if t.failOpen {
		newly := t.reveal([]string{id})
		t.mu.Unlock()
		t.emit(newly)
		return nil
	}
	observer := t.observer
	t.mu.Unlock()

	// Start picks up regions registered before its observer is installed.
	if observer == nil {
		return nil
	}
	t.observe(observer, []Region{region})
	return nil
}

// Start begins observing every registered region. If the host has no
// observation capability every region is revealed immediately, and a region
// the observer rejects is revealed on its own.
func (t *Tracker) Start() error {
	t.mu.Lock()
	switch t.state {
	case Observing:
		t.mu.Unlock()
		return nil
	case Stopped:
		t.mu.Unlock()
		return ErrStopped
	}
	if err := t.opts.Validate(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.state = Observing
	t.mu.Unlock()

	var (
		observer Observer
		err      error
	)
	if t.capability == nil {
		err = ErrUnsupported
	} else {
		observer, err = t.capability(t.opts, t.handle)
		if err == nil && observer == nil {
			err = ErrUnsupported
		}
	}
	if err != nil {
		t.openAll()
		return nil
	}

	t.mu.Lock()
	if t.state == Stopped {
		t.mu.Unlock()
		observer.Disconnect()
		return nil
	}
	t.observer = observer
	regions := t.snapshotRegions()
	t.mu.Unlock()

	t.observe(observer, regions)
	return nil
}

// Stop ceases observation and releases the observer. It is safe to call at
// any time; before Start it does nothing. Revealed regions stay revealed.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state != Observing {
		t.mu.Unlock()
		return
	}
	t.state = Stopped
	observer := t.observer
	t.observer = nil
	t.mu.Unlock()

	if observer != nil {
		observer.Disconnect()
	}
}

// IsRevealed reports whether id has been revealed.
func (t *Tracker) IsRevealed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.revealed[id]
	return ok
}

// Revealed returns revealed region ids in registration order.
func (t *Tracker) Revealed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.revealed))
	for _, id := range t.order {
		if _, ok := t.revealed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Regions returns the registered regions in registration order.
func (t *Tracker) Regions() []Region {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotRegions()
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// FailedOpen reports whether the tracker started without an observation capability.
func (t *Tracker) FailedOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failOpen
}

// handle is the notification callback handed to observers.
func (t *Tracker) handle(entries []Entry) {
	t.mu.Lock()
	if t.state != Observing {
		t.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Intersecting {
			continue
		}
		if _, ok := t.regions[e.ID]; !ok {
			continue
		}
		ids = append(ids, e.ID)
	}
	newly := t.reveal(ids)
	t.mu.Unlock()
	t.emit(newly)
}

// observe hands regions to observer. A region the observer rejects is
// revealed instead.
func (t *Tracker) observe(observer Observer, regions []Region) {
	var rejected []string
	for _, r := range regions {
		if err := observer.Observe(r); err != nil {
			rejected = append(rejected, r.ID)
		}
	}
	if len(rejected) == 0 {
		return
	}

	t.mu.Lock()
	if t.state != Observing {
		t.mu.Unlock()
		return
	}
	newly := t.reveal(rejected)
	t.mu.Unlock()
	t.emit(newly)
}

func (t *Tracker) openAll() {
	t.mu.Lock()
	if t.state != Observing {
		t.mu.Unlock()
		return
	}
	t.failOpen = true
	newly := t.reveal(t.order)
	t.mu.Unlock()
	t.emit(newly)
}

// reveal adds ids to the revealed set and returns the ones that were new.
// Callers hold t.mu.
func (t *Tracker) reveal(ids []string) []string {
	var newly []string
	for _, id := range ids {
		if _, ok := t.revealed[id]; ok {
			continue
		}
		t.revealed[id] = struct{}{}
		newly = append(newly, id)
	}
	return newly
}

func (t *Tracker) emit(ids []string) {
	if t.onReveal == nil {
		return
	}
	for _, id := range ids {
		t.onReveal(id)
	}
}

func (t *Tracker) put(r Region) {
	if _, ok := t.regions[r.ID]; !ok {
		t.order = append(t.order, r.ID)
	}
	t.regions[r.ID] = r
}

func (t *Tracker) snapshotRegions() []Region {
	out := make([]Region, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.regions[id])
	}
	return out
}
