package views_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/metrics"
	"github.com/sirmark/resume/internal/reveal"
	"github.com/sirmark/resume/internal/views"
)

var regions = []string{"contact", "skills", "education", "header", "profile", "experience", "footer"}

type fakeRecorder struct {
	mu      sync.Mutex
	views   []string
	starts  map[string]string
	reveals map[string][]string
	closed  map[string]string
	closes  map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		starts:  make(map[string]string),
		reveals: make(map[string][]string),
		closed:  make(map[string]string),
		closes:  make(map[string]int),
	}
}

func (f *fakeRecorder) RecordView(_ context.Context, id, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, id)
	return nil
}

func (f *fakeRecorder) RecordStart(_ context.Context, id, capability string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts[id] = capability
	return nil
}

func (f *fakeRecorder) RecordReveal(_ context.Context, id, region string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reveals[id] = append(f.reveals[id], region)
	return nil
}

func (f *fakeRecorder) CloseView(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[id] = reason
	f.closes[id]++
	return nil
}

func (f *fakeRecorder) closeReason(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[id]
}

func newRegistry(t *testing.T, maxViews int, ttl time.Duration) (*views.Registry, *fakeRecorder, *metrics.Metrics) {
	t.Helper()
	rec := newFakeRecorder()
	m := metrics.New()
	reg := views.NewRegistry(views.Config{
		Regions:  regions,
		Options:  reveal.DefaultOptions(),
		TTL:      ttl,
		MaxViews: maxViews,
	}, rec, m, logger.NewNop())
	return reg, rec, m
}

func open(t *testing.T, reg *views.Registry, track bool) *views.View {
	t.Helper()
	v, err := reg.Open(context.Background(), views.Visit{HashedIP: "abcd", UserAgent: "test", Track: track})
	require.NoError(t, err)
	return v
}

func TestRegistry_IntersectionFlow(t *testing.T) {
	reg, rec, m := newRegistry(t, 10, time.Hour)
	ctx := context.Background()
	v := open(t, reg, true)

	snap, err := reg.Start(ctx, v.ID, views.KindIntersection)
	require.NoError(t, err)
	assert.Equal(t, "observing", snap.State)
	assert.False(t, snap.FailOpen)
	assert.Empty(t, snap.Revealed)

	snap, err = reg.Intersections(ctx, v.ID, []reveal.Entry{
		{ID: "contact", Intersecting: true, Ratio: 0.4},
		{ID: "footer", Intersecting: false},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"contact"}, snap.Revealed)

	snap, err = reg.Intersections(ctx, v.ID, []reveal.Entry{{ID: "contact", Intersecting: false}})
	require.NoError(t, err)
	assert.Equal(t, []string{"contact"}, snap.Revealed)

	assert.Equal(t, "intersection", rec.starts[v.ID])
	assert.Equal(t, []string{"contact"}, rec.reveals[v.ID])
	assert.InDelta(t, 1, testutil.ToFloat64(m.Reveals.WithLabelValues("contact")), 0)

	_, err = reg.Layout(ctx, v.ID, reveal.Rect{Width: 800, Height: 600}, nil)
	assert.ErrorIs(t, err, views.ErrWrongCapability)
}

func TestRegistry_LayoutFlow(t *testing.T) {
	reg, _, _ := newRegistry(t, 10, time.Hour)
	ctx := context.Background()
	v := open(t, reg, false)

	_, err := reg.Start(ctx, v.ID, views.KindLayout)
	require.NoError(t, err)

	snap, err := reg.Layout(ctx, v.ID, reveal.Rect{Width: 1280, Height: 800}, map[string]reveal.Rect{
		"contact":    {Y: 100, Width: 400, Height: 200},
		"experience": {Y: 2000, Width: 800, Height: 900},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"contact"}, snap.Revealed)
	assert.True(t, v.IsRevealed("contact"))
	assert.False(t, v.IsRevealed("experience"))

	_, err = reg.Intersections(ctx, v.ID, []reveal.Entry{{ID: "skills", Intersecting: true}})
	assert.ErrorIs(t, err, views.ErrWrongCapability)
}

func TestRegistry_NoCapabilityFailsOpen(t *testing.T) {
	reg, rec, m := newRegistry(t, 10, time.Hour)
	ctx := context.Background()
	v := open(t, reg, true)

	snap, err := reg.Start(ctx, v.ID, views.KindNone)
	require.NoError(t, err)

	assert.True(t, snap.FailOpen)
	assert.Equal(t, regions, snap.Revealed)
	assert.Len(t, rec.reveals[v.ID], len(regions))
	assert.InDelta(t, 1, testutil.ToFloat64(m.FailOpen), 0)

	snap, err = reg.Intersections(ctx, v.ID, []reveal.Entry{{ID: "contact", Intersecting: false}})
	require.NoError(t, err)
	assert.Equal(t, regions, snap.Revealed)
}

func TestRegistry_IntersectionsBeforeStart(t *testing.T) {
	reg, _, _ := newRegistry(t, 10, time.Hour)
	v := open(t, reg, false)

	_, err := reg.Intersections(context.Background(), v.ID, []reveal.Entry{{ID: "contact", Intersecting: true}})
	assert.ErrorIs(t, err, reveal.ErrNotObserving)
}

func TestRegistry_CloseStopsTrackerAndIsIdempotent(t *testing.T) {
	reg, rec, m := newRegistry(t, 10, time.Hour)
	ctx := context.Background()
	v := open(t, reg, true)
	_, err := reg.Start(ctx, v.ID, views.KindIntersection)
	require.NoError(t, err)
	_, err = reg.Intersections(ctx, v.ID, []reveal.Entry{{ID: "profile", Intersecting: true}})
	require.NoError(t, err)

	reg.Close(ctx, v.ID)
	reg.Close(ctx, v.ID)

	_, err = reg.Snapshot(v.ID)
	assert.ErrorIs(t, err, views.ErrNotFound)
	assert.Equal(t, "stopped", v.Snapshot().State)
	assert.True(t, v.IsRevealed("profile"))
	assert.Equal(t, views.ReasonStopped, rec.closeReason(v.ID))
	assert.InDelta(t, 1, testutil.ToFloat64(m.ViewsClosed.WithLabelValues("stopped")), 0)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_CloseRacingActivityClosesOnce(t *testing.T) {
	reg, rec, m := newRegistry(t, 1000, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 200)
	for i := range ids {
		v := open(t, reg, true)
		ids[i] = v.ID
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = reg.Get(v.ID)
			}
		}()
		go func() {
			defer wg.Done()
			reg.Close(ctx, v.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())
	assert.InDelta(t, 0, testutil.ToFloat64(m.ViewsActive), 0)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, id := range ids {
		assert.Equal(t, 1, rec.closes[id], id)
	}
}

func TestRegistry_CloseBeforeStart(t *testing.T) {
	reg, _, _ := newRegistry(t, 10, time.Hour)
	v := open(t, reg, false)

	reg.Close(context.Background(), v.ID)

	assert.Equal(t, "idle", v.Snapshot().State)
	_, err := reg.Start(context.Background(), v.ID, views.KindNone)
	assert.ErrorIs(t, err, views.ErrNotFound)
}

func TestRegistry_CapacityEvictsOldest(t *testing.T) {
	reg, rec, _ := newRegistry(t, 2, time.Hour)
	first := open(t, reg, true)
	open(t, reg, true)
	open(t, reg, true)

	assert.Equal(t, 2, reg.Len())
	_, err := reg.Get(first.ID)
	assert.ErrorIs(t, err, views.ErrNotFound)
	assert.Equal(t, views.ReasonEvicted, rec.closeReason(first.ID))
}

func TestRegistry_TTLExpires(t *testing.T) {
	reg, _, _ := newRegistry(t, 10, 20*time.Millisecond)
	v := open(t, reg, false)

	require.Eventually(t, func() bool {
		_, err := reg.Snapshot(v.ID)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistry_ShutdownClosesAll(t *testing.T) {
	reg, rec, _ := newRegistry(t, 10, time.Hour)
	a := open(t, reg, true)
	b := open(t, reg, true)

	reg.Shutdown()

	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, views.ReasonShutdown, rec.closeReason(a.ID))
	assert.Equal(t, views.ReasonShutdown, rec.closeReason(b.ID))
}

func TestRegistry_ViewsAreIndependent(t *testing.T) {
	reg, _, _ := newRegistry(t, 10, time.Hour)
	ctx := context.Background()
	a := open(t, reg, false)
	b := open(t, reg, false)
	_, err := reg.Start(ctx, a.ID, views.KindIntersection)
	require.NoError(t, err)
	_, err = reg.Start(ctx, b.ID, views.KindIntersection)
	require.NoError(t, err)

	_, err = reg.Intersections(ctx, a.ID, []reveal.Entry{{ID: "skills", Intersecting: true}})
	require.NoError(t, err)

	assert.True(t, a.IsRevealed("skills"))
	assert.False(t, b.IsRevealed("skills"))
}

func TestParseKind(t *testing.T) {
	for _, k := range []string{"intersection", "layout", "none"} {
		got, err := views.ParseKind(k)
		require.NoError(t, err)
		assert.Equal(t, views.Kind(k), got)
	}
	_, err := views.ParseKind("telepathy")
	assert.ErrorIs(t, err, views.ErrUnknownCapability)
}
