// Package views scopes reveal tracking to individual page views.
//
// Every page load opens a View with its own Tracker. Views are torn down when
// the browser reports the page is going away, when they sit idle past the
// configured TTL, or when the registry is full and they are the least
// recently used.
package views

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/metrics"
	"github.com/sirmark/resume/internal/reveal"
)

// recordTimeout bounds recorder calls made outside a request context.
const recordTimeout = 5 * time.Second

var (
	// ErrNotFound is returned for unknown or expired view ids.
	ErrNotFound = errors.New("views: view not found")
	// ErrWrongCapability is returned when a notification does not match the
	// capability the view was started with.
	ErrWrongCapability = errors.New("views: notification does not match capability")
	// ErrUnknownCapability is returned for unrecognized capability kinds.
	ErrUnknownCapability = errors.New("views: unknown capability")
)

// Kind is the observation capability the browser reported.
type Kind string

const (
	// KindIntersection: the browser observes and posts intersection entries.
	KindIntersection Kind = "intersection"
	// KindLayout: the browser posts viewport and element rects; the server
	// computes intersections.
	KindLayout Kind = "layout"
	// KindNone: no capability; the view fails open.
	KindNone Kind = "none"
)

// ParseKind validates a capability name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindIntersection, KindLayout, KindNone:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, s)
	}
}

// Close reasons recorded for views.
const (
	ReasonStopped  = "stopped"
	ReasonEvicted  = "evicted"
	ReasonShutdown = "shutdown"
)

// Recorder persists view activity. analytics.Store implements it.
type Recorder interface {
	RecordView(ctx context.Context, id, hashedIP, userAgent string) error
	RecordStart(ctx context.Context, id, capability string, failOpen bool) error
	RecordReveal(ctx context.Context, id, region string) error
	CloseView(ctx context.Context, id, reason string) error
}

// Visit describes who opened a view.
type Visit struct {
	HashedIP  string
	UserAgent string
	// Track is false when the visitor opted out of tracking; the view still
	// works but nothing is recorded.
	Track bool
}

// View is one page view.
type View struct {
	ID     string
	Opened time.Time

	tracker  *reveal.Tracker
	remote   *reveal.Remote
	geometry *reveal.Geometry
	track    bool

	mu     sync.Mutex
	kind   Kind
	reason string
	closed bool
}

// Snapshot is the externally visible state of a view.
type Snapshot struct {
	ID         string   `json:"id"`
	State      string   `json:"state"`
	Capability Kind     `json:"capability,omitempty"`
	FailOpen   bool     `json:"fail_open"`
	Revealed   []string `json:"revealed"`
}

// Snapshot returns the view's current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	kind := v.kind
	v.mu.Unlock()
	return Snapshot{
		ID:         v.ID,
		State:      v.tracker.State().String(),
		Capability: kind,
		FailOpen:   v.tracker.FailedOpen(),
		Revealed:   v.tracker.Revealed(),
	}
}

// IsRevealed reports whether region has been revealed in this view.
func (v *View) IsRevealed(region string) bool {
	return v.tracker.IsRevealed(region)
}

// Config configures a Registry.
type Config struct {
	Regions  []string
	Options  reveal.Options
	TTL      time.Duration
	MaxViews int
}

// Registry owns live views.
type Registry struct {
	cfg      Config
	recorder Recorder
	metrics  *metrics.Metrics
	log      logger.Logger
	views    *expirable.LRU[string, *View]
}

// NewRegistry creates a Registry. recorder and m may be nil.
func NewRegistry(cfg Config, recorder Recorder, m *metrics.Metrics, log logger.Logger) *Registry {
	r := &Registry{cfg: cfg, recorder: recorder, metrics: m, log: log}
	r.views = expirable.NewLRU[string, *View](cfg.MaxViews, r.evicted, cfg.TTL)
	return r
}

// Open creates a view with every region registered and not yet started.
func (r *Registry) Open(ctx context.Context, visit Visit) (*View, error) {
	v := &View{
		ID:       uuid.NewString(),
		Opened:   time.Now(),
		remote:   reveal.NewRemote(),
		geometry: reveal.NewGeometry(),
		track:    visit.Track && r.recorder != nil,
	}
	v.tracker = reveal.New(v.capability,
		reveal.WithOptions(r.cfg.Options),
		reveal.WithOnReveal(func(region string) { r.revealed(v, region) }),
	)
	for _, region := range r.cfg.Regions {
		if err := v.tracker.Register(region, reveal.Rect{}); err != nil {
			return nil, fmt.Errorf("register region %s: %w", region, err)
		}
	}

	if v.track {
		if err := r.recorder.RecordView(ctx, v.ID, visit.HashedIP, visit.UserAgent); err != nil {
			r.log.Warn("Failed to record view", logger.String("view", v.ID), logger.Error(err))
		}
	}
	r.views.Add(v.ID, v)
	if r.metrics != nil {
		r.metrics.ViewsOpened.Inc()
		r.metrics.ViewsActive.Inc()
	}
	return v, nil
}

// capability picks the host capability the browser reported at start.
func (v *View) capability(opts reveal.Options, notify func([]reveal.Entry)) (reveal.Observer, error) {
	v.mu.Lock()
	kind := v.kind
	v.mu.Unlock()
	switch kind {
	case KindIntersection:
		return v.remote.Capability()(opts, notify)
	case KindLayout:
		return v.geometry.Capability()(opts, notify)
	default:
		return nil, reveal.ErrUnsupported
	}
}

// Get returns a live view and extends its lifetime.
func (r *Registry) Get(id string) (*View, error) {
	v, ok := r.views.Get(id)
	if !ok || v.isClosed() {
		return nil, ErrNotFound
	}
	r.views.Add(id, v)
	// a close that landed between Get and Add must not bring the view back
	if v.isClosed() {
		r.views.Remove(id)
		return nil, ErrNotFound
	}
	return v, nil
}

// Start begins observation with the capability the browser has.
func (r *Registry) Start(ctx context.Context, id string, kind Kind) (Snapshot, error) {
	v, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}

	v.mu.Lock()
	if v.kind == "" {
		v.kind = kind
	}
	v.mu.Unlock()

	if err := v.tracker.Start(); err != nil {
		return Snapshot{}, fmt.Errorf("start view %s: %w", id, err)
	}

	snap := v.Snapshot()
	if snap.FailOpen && r.metrics != nil {
		r.metrics.FailOpen.Inc()
	}
	if v.track {
		if err := r.recorder.RecordStart(ctx, id, string(snap.Capability), snap.FailOpen); err != nil {
			r.log.Warn("Failed to record view start", logger.String("view", id), logger.Error(err))
		}
	}
	return snap, nil
}

// Intersections delivers browser intersection entries.
func (r *Registry) Intersections(_ context.Context, id string, entries []reveal.Entry) (Snapshot, error) {
	v, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	if v.tracker.FailedOpen() {
		return v.Snapshot(), nil
	}
	if v.kindIs(KindLayout) {
		return Snapshot{}, ErrWrongCapability
	}
	if err := v.remote.Deliver(entries); err != nil {
		return Snapshot{}, fmt.Errorf("deliver to view %s: %w", id, err)
	}
	return v.Snapshot(), nil
}

// Layout delivers a viewport and element rects from a browser without an
// intersection capability.
func (r *Registry) Layout(_ context.Context, id string, viewport reveal.Rect, bounds map[string]reveal.Rect) (Snapshot, error) {
	v, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	if v.tracker.FailedOpen() {
		return v.Snapshot(), nil
	}
	if v.kindIs(KindIntersection) {
		return Snapshot{}, ErrWrongCapability
	}
	if err := v.geometry.Update(viewport, bounds); err != nil {
		return Snapshot{}, fmt.Errorf("layout for view %s: %w", id, err)
	}
	return v.Snapshot(), nil
}

// Snapshot returns a live view's state.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	v, ok := r.views.Peek(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return v.Snapshot(), nil
}

// Close stops a view's tracker and forgets it. Closing an unknown or already
// closed view is not an error.
func (r *Registry) Close(_ context.Context, id string) {
	if v, ok := r.views.Peek(id); ok {
		v.setReason(ReasonStopped)
	}
	r.views.Remove(id)
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	return r.views.Len()
}

// Shutdown closes every live view.
func (r *Registry) Shutdown() {
	for _, v := range r.views.Values() {
		v.setReason(ReasonShutdown)
	}
	r.views.Purge()
}

// evicted runs for every view leaving the registry, whatever the cause.
func (r *Registry) evicted(id string, v *View) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	reason := v.reason
	v.mu.Unlock()

	v.tracker.Stop()
	if reason == "" {
		reason = ReasonEvicted
	}

	if r.metrics != nil {
		r.metrics.ViewsClosed.WithLabelValues(reason).Inc()
		r.metrics.ViewsActive.Dec()
	}
	if v.track {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.recorder.CloseView(ctx, id, reason); err != nil {
			r.log.Warn("Failed to record view close", logger.String("view", id), logger.Error(err))
		}
	}
	r.log.Debug("View closed",
		logger.String("view", id),
		logger.String("reason", reason),
		logger.Strings("revealed", v.tracker.Revealed()),
	)
}

func (r *Registry) revealed(v *View, region string) {
	if r.metrics != nil {
		r.metrics.Reveals.WithLabelValues(region).Inc()
	}
	if !v.track {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.recorder.RecordReveal(ctx, v.ID, region); err != nil {
		r.log.Warn("Failed to record reveal",
			logger.String("view", v.ID),
			logger.String("region", region),
			logger.Error(err),
		)
	}
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *View) kindIs(k Kind) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.kind == k
}

func (v *View) setReason(reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.reason == "" {
		v.reason = reason
	}
}
