package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/readai-labs/readai-go/internal/store"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *store.SQLiteStore, *prometheus.Registry) {
	t.Helper()
	s, db := newTestServer(t)
	reg := prometheus.NewRegistry()
	s.metrics = newServerMetrics(reg)
	return s, db, reg
}

// counterValue gathers reg and returns the value of the named counter with
// the given label pair, or -1 if absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, _, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

// Test_Metrics_AskOutcomes verifies the ask handler records one "ok" counter
// increment on success and one "error" increment on pipeline failure.
func Test_Metrics_AskOutcomes(t *testing.T) {
	t.Parallel()
	s, db, reg := newMetricsTestServer(t)
	seedBook(t, db, "b1")

	postAsk(s, `{"bookId":"b1","query":"why?"}`)
	if got := counterValue(t, reg, "readai_ask_requests_total", "outcome", "ok"); got != 1 {
		t.Errorf("ok counter = %v, want 1", got)
	}

	s.asker = &fakeAsker{err: fmt.Errorf("boom")}
	postAsk(s, `{"bookId":"b1","query":"why?"}`)
	if got := counterValue(t, reg, "readai_ask_requests_total", "outcome", "error"); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func Test_Metrics_ActiveStreamsGauge(t *testing.T) {
	t.Parallel()
	s, _, reg := newMetricsTestServer(t)

	s.metrics.askActiveStreams.Inc()
	s.metrics.askActiveStreams.Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() == "readai_ask_active_streams" {
			v := mf.GetMetric()[0].GetGauge().GetValue()
			if v != 2 {
				t.Errorf("want active_streams=2, got %v", v)
			}
			return
		}
	}
	t.Error("readai_ask_active_streams not found in gathered metrics")
}

func TestHandlerLabel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want string
	}{
		{"/api/ask", "/api/ask"},
		{"/api/books", "/api/books"},
		{"/api/books/abc-123", "/api/books/{id}"},
		{"/metrics", "/metrics"},
		{"/favicon.ico", "other"},
	}
	for _, tc := range cases {
		if got := handlerLabel(tc.path); got != tc.want {
			t.Errorf("handlerLabel(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
