package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmark/resume/internal/analytics"
	"github.com/sirmark/resume/internal/config"
	"github.com/sirmark/resume/internal/export"
	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/metrics"
	"github.com/sirmark/resume/internal/resume"
	"github.com/sirmark/resume/internal/views"
	"github.com/sirmark/resume/internal/web"
)

var viewIDPattern = regexp.MustCompile(`data-view="([^"]+)"`)

type recordedAction struct {
	viewID, action, outcome string
}

type fakeStore struct {
	mu      sync.Mutex
	actions []recordedAction
}

func (f *fakeStore) RecordAction(_ context.Context, viewID, action, outcome string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, recordedAction{viewID, action, outcome})
	return nil
}

func (f *fakeStore) Stats(_ context.Context, regions []string) (*analytics.Stats, error) {
	stats := &analytics.Stats{TotalViews: 3, UniqueVisitors: 2}
	for _, r := range regions {
		stats.Regions = append(stats.Regions, analytics.RegionStat{Region: r, Views: 1, Rate: 1.0 / 3.0})
	}
	return stats, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) recorded() []recordedAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedAction(nil), f.actions...)
}

type fakeCapturer struct {
	url string
}

func (f *fakeCapturer) Capture(_ context.Context, url string, req export.CaptureRequest) ([]byte, error) {
	f.url = url
	img := image.NewRGBA(image.Rect(0, 0, req.ViewportWidth, 2400))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: req.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type testServer struct {
	handler  http.Handler
	registry *views.Registry
	store    *fakeStore
	metrics  *metrics.Metrics
}

type serverOption func(*config.Config, *web.Deps)

func withExporter(c export.Capturer) serverOption {
	return func(_ *config.Config, d *web.Deps) {
		d.Exporter = export.New(c, logger.NewNop())
	}
}

func withPublicURL(u string) serverOption {
	return func(cfg *config.Config, _ *web.Deps) { cfg.Service.PublicURL = u }
}

func testConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{Name: "resume", Port: 8080},
		Reveal: config.RevealConfig{
			Threshold:  0.1,
			RootMargin: "0px 0px -50px 0px",
			ViewTTL:    time.Minute,
			MaxViews:   16,
		},
		Export: config.ExportConfig{
			Margin:        0.5,
			ImageQuality:  0.98,
			Scale:         2,
			Format:        "letter",
			Orientation:   "portrait",
			ViewportWidth: 800,
		},
		Admin: config.AdminConfig{Username: "mark", Password: "hunter2"},
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	cfg := testConfig()
	res, err := resume.Default()
	require.NoError(t, err)
	hasher, err := analytics.NewHasher("pepper")
	require.NoError(t, err)
	m := metrics.New()
	store := &fakeStore{}

	revealOpts, err := cfg.Reveal.Options()
	require.NoError(t, err)
	registry := views.NewRegistry(views.Config{
		Regions:  resume.Sections(),
		Options:  revealOpts,
		TTL:      cfg.Reveal.ViewTTL,
		MaxViews: cfg.Reveal.MaxViews,
	}, nil, m, logger.NewNop())
	t.Cleanup(registry.Shutdown)

	deps := web.Deps{
		Config:  cfg,
		Resume:  res,
		Views:   registry,
		Store:   store,
		Hasher:  hasher,
		Metrics: m,
		Logger:  logger.NewNop(),
	}
	for _, o := range opts {
		o(cfg, &deps)
	}

	srv, err := web.New(deps)
	require.NoError(t, err)
	return &testServer{handler: srv.Handler(), registry: registry, store: store, metrics: m}
}

func (ts *testServer) do(t *testing.T, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range mutate {
		fn(req)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) openView(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	m := viewIDPattern.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2)
	require.NotEmpty(t, m[1])
	return m[1]
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) views.Snapshot {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap views.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestIndex_OpensViewWithHiddenSections(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Mark Jeffrey Morales")
	assert.Contains(t, body, `data-threshold="0.1"`)
	assert.Contains(t, body, `data-root-margin="0px 0px -50px 0px"`)
	assert.Contains(t, body, `id="experience" data-region="experience" class="reveal"`)
	assert.NotContains(t, body, "is-revealed")
	assert.Equal(t, 1, ts.registry.Len())
}

func TestIndex_ExportRendersEverythingRevealed(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/?export=1", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, len(resume.Sections()), strings.Count(body, "is-revealed"))
	assert.NotContains(t, body, `id="share"`)
	assert.Equal(t, 0, ts.registry.Len())
}

func TestViews_IntersectionFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openView(t)

	snap := decodeSnapshot(t, ts.do(t, http.MethodPost, "/views/"+id+"/start", `{"capability":"intersection"}`))
	assert.Equal(t, "observing", snap.State)
	assert.Empty(t, snap.Revealed)

	snap = decodeSnapshot(t, ts.do(t, http.MethodPost, "/views/"+id+"/intersections",
		`{"entries":[{"id":"contact","intersecting":true,"ratio":0.3},{"id":"footer","intersecting":false,"ratio":0}]}`))
	assert.Equal(t, []string{"contact"}, snap.Revealed)

	snap = decodeSnapshot(t, ts.do(t, http.MethodPost, "/views/"+id+"/intersections",
		`{"entries":[{"id":"contact","intersecting":false,"ratio":0}]}`))
	assert.Equal(t, []string{"contact"}, snap.Revealed)

	w := ts.do(t, http.MethodGet, "/sections/contact?view="+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reveal is-revealed")
	w = ts.do(t, http.MethodGet, "/sections/skills?view="+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "is-revealed")

	w = ts.do(t, http.MethodPost, "/views/"+id+"/layout", `{"viewport":{"width":800,"height":600}}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/views/"+id+"/stop", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodPost, "/views/"+id+"/stop", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/views/"+id, "").Code)
}

func TestViews_LayoutFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openView(t)

	decodeSnapshot(t, ts.do(t, http.MethodPost, "/views/"+id+"/start", `{"capability":"layout"}`))
	snap := decodeSnapshot(t, ts.do(t, http.MethodPost, "/views/"+id+"/layout", `{
		"viewport": {"x": 0, "y": 0, "width": 1280, "height": 800},
		"regions": {
			"header": {"x": 340, "y": 40, "width": 700, "height": 120},
			"experience": {"x": 340, "y": 1400, "width": 700, "height": 900}
		}
	}`))
	assert.Equal(t, []string{"header"}, snap.Revealed)
}

func TestViews_NoCapabilityFailsOpen(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openView(t)

	snap := decodeSnapshot(t, ts.do(t, http.MethodPost, "/views/"+id+"/start", `{"capability":"none"}`))

	assert.True(t, snap.FailOpen)
	assert.Equal(t, resume.Sections(), snap.Revealed)
}

func TestViews_Errors(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openView(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/views/"+id+"/start", `{"capability":"sonar"}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/views/"+id+"/start", `not json`).Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/views/"+id+"/intersections", `{"entries":[]}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/views/missing/start", `{"capability":"none"}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/sections/sidebar", "").Code)
}

func TestShare_Payload(t *testing.T) {
	ts := newTestServer(t, withPublicURL("https://mark.example.com/"))

	w := ts.do(t, http.MethodGet, "/share", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Payload struct {
			Title string `json:"title"`
			Text  string `json:"text"`
			URL   string `json:"url"`
		} `json:"payload"`
		CopiedMessage string `json:"copied_message"`
		ManualMessage string `json:"manual_message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Mark Jeffrey Morales' Resume", got.Payload.Title)
	assert.Equal(t, "https://mark.example.com/", got.Payload.URL)
	assert.Equal(t, "Link copied to clipboard!", got.CopiedMessage)
	assert.Equal(t, "Unable to share. Please copy the link manually: https://mark.example.com/", got.ManualMessage)
}

func TestShare_UsesRequestHost(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/share", "", func(r *http.Request) { r.Host = "resume.test" })

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"url":"http://resume.test/"`)
}

func TestDownload_Disabled(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/resume.pdf", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDownload_ExportsRevealedPage(t *testing.T) {
	capturer := &fakeCapturer{}
	ts := newTestServer(t, withExporter(capturer))

	w := ts.do(t, http.MethodGet, "/resume.pdf", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Mark_Jeffrey_Morales_Resume.pdf"`, w.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
	assert.Equal(t, "http://127.0.0.1:8080/?export=1", capturer.url)
}

func TestActions_Recorded(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openView(t)

	w := ts.do(t, http.MethodPost, "/views/"+id+"/actions", `{"action":"share","outcome":"clipboard"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPost, "/views/"+id+"/actions", `{"action":"print","outcome":"ok"}`,
		func(r *http.Request) { r.Header.Set("DNT", "1") })
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPost, "/views/"+id+"/actions", `{"action":"fax"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, []recordedAction{{id, "share", "clipboard"}}, ts.store.recorded())
}

func TestAdmin_RequiresLogin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/admin/dashboard", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))

	w = ts.do(t, http.MethodGet, "/admin/api/stats", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "admin_token", Value: "guess"})
	})
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestAdmin_LoginAndStats(t *testing.T) {
	ts := newTestServer(t)

	form := func(r *http.Request) {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	bad := url.Values{"username": {"mark"}, "password": {"wrong"}}.Encode()
	w := ts.do(t, http.MethodPost, "/admin/login", bad, form)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")

	good := url.Values{"username": {"mark"}, "password": {"hunter2"}}.Encode()
	w = ts.do(t, http.MethodPost, "/admin/login", good, form)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/dashboard", w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	withCookie := func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}

	w = ts.do(t, http.MethodGet, "/admin/api/stats", "", withCookie)
	require.Equal(t, http.StatusOK, w.Code)
	var stats analytics.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 3, stats.TotalViews)
	assert.Len(t, stats.Regions, len(resume.Sections()))

	w = ts.do(t, http.MethodGet, "/admin/dashboard", "", withCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "33%")

	w = ts.do(t, http.MethodGet, "/admin/export/stats", "", withCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=resume-stats.json", w.Header().Get("Content-Disposition"))
}

func TestPrivacyHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/privacy", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Do Not Track")

	w = ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	ts.openView(t)
	w = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "resume_views_opened_total 1")

	w = ts.do(t, http.MethodGet, "/static/reveal.js", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "IntersectionObserver")
}

func TestPhoto_FallsBackToPlaceholder(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/images/profile.jpg", "")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/static/profile.svg", w.Header().Get("Location"))
}
