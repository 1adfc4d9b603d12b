package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/report"
)

type fakeSource struct {
	counters crawler.Counters
	finished bool
	results  map[string]*crawler.Result
}

func (f *fakeSource) Host() string                               { return "http://h/" }
func (f *fakeSource) Counters() crawler.Counters                 { return f.counters }
func (f *fakeSource) Finished() bool                             { return f.finished }
func (f *fakeSource) VisitedResults() map[string]*crawler.Result { return f.results }

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

func newTestServer(t *testing.T, src *fakeSource) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	started := time.Unix(1000, 0).UTC()
	srv := NewServer(src, reg, reg, fakeClock{now: started.Add(1500 * time.Millisecond)}, Config{
		RunID:     "run-1",
		Start:     "http://h/",
		StartedAt: started,
	}, zap.NewNop())
	return srv, reg
}

func sampleSource() *fakeSource {
	ok := crawler.NewResult("http://h/", crawler.Referrer{}, time.Unix(1000, 0))
	ok.Status = http.StatusOK
	bad := crawler.NewResult("http://h/gone", crawler.Referrer{ReferrerURL: "http://h/", Href: "gone"}, time.Unix(1000, 0))
	bad.Status = http.StatusNotFound
	bad.Error = "404 Not Found"
	return &fakeSource{
		counters: crawler.Counters{Dispatched: 3, Retrieved: 2},
		results:  map[string]*crawler.Result{ok.URL: ok, bad.URL: bad},
	}
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, sampleSource())
	rec := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerStatus(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, sampleSource())
	rec := get(t, srv, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body.RunID)
	require.Equal(t, "http://h/", body.Host)
	require.Equal(t, 3, body.Dispatched)
	require.Equal(t, 2, body.Retrieved)
	require.Equal(t, 1, body.InFlight)
	require.Equal(t, int64(1500), body.UptimeMs)
	require.False(t, body.Finished)
}

type resultsBody struct {
	Count   int            `json:"count"`
	Results []report.Entry `json:"results"`
}

func TestServerResults(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, sampleSource())

	var all resultsBody
	rec := get(t, srv, "/v1/results")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Equal(t, 2, all.Count)
	require.Equal(t, "http://h/", all.Results[0].URL)

	var failed resultsBody
	rec = get(t, srv, "/v1/results?failed=true")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	require.Equal(t, 1, failed.Count)
	require.Equal(t, "http://h/gone", failed.Results[0].URL)

	var one resultsBody
	rec = get(t, srv, "/v1/results?url=http://h/gone%3Bjsessionid=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.Equal(t, 1, one.Count)
	require.Equal(t, []crawler.Referrer{{ReferrerURL: "http://h/", Href: "gone"}}, one.Results[0].Referrers)

	require.Equal(t, http.StatusNotFound, get(t, srv, "/v1/results?url=http://h/never").Code)
	require.Equal(t, http.StatusBadRequest, get(t, srv, "/v1/results?failed=maybe").Code)
}

func TestServerMetricsExposesRequestCounters(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, sampleSource())
	get(t, srv, "/v1/status")
	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `http_requests_total{code="200",method="GET",route="/v1/status"} 1`), rec.Body.String())
}

func TestServerRecoversPanics(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	srv := NewServer(&panickySource{}, nil, prometheus.NewRegistry(), fakeClock{}, Config{}, zap.New(core))
	rec := get(t, srv, "/v1/status")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

type panickySource struct {
	fakeSource
}

func (*panickySource) Counters() crawler.Counters { panic("boom") }
