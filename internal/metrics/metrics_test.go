package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestObserversRecord(t *testing.T) {
	m := New()
	m.ObserveCall("coingecko", "ok", 120*time.Millisecond)
	m.ObserveCall("coingecko", "rate_limited", time.Second)
	m.ObserveResolve("dexscreener", false, 4)
	m.ObserveResolution("scheduled", "WON", false)
	m.ObserveJob("parked")
	m.ObserveEvent("SignalCreated", "ok")
	m.SetQueueDepth(3)

	body := scrape(t, m)
	for _, want := range []string{
		`mfs_provider_calls_total{kind="rate_limited",provider="coingecko"} 1`,
		`mfs_signal_resolutions_total{outcome="WON",resolution_error="false",source="scheduled"} 1`,
		`mfs_scheduler_jobs_total{result="parked"} 1`,
		`mfs_ingest_events_total{kind="SignalCreated",result="ok"} 1`,
		`mfs_scheduler_queue_depth 3`,
		`mfs_market_resolves_total{resolution_error="false",source="dexscreener"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in scrape output", want)
		}
	}
}

func TestInstancesDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.ObserveJob("resolved")
	if strings.Contains(scrape(t, b), `mfs_scheduler_jobs_total{result="resolved"}`) {
		t.Fatalf("registries are shared")
	}
}
