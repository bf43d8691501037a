package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	m := NewMetrics()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/referrals", nil)
	res := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(res, req)

	if res.Code != http.StatusTeapot {
		t.Fatalf("middleware altered status: %d", res.Code)
	}

	metricsRes := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRes, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := metricsRes.Body.String()
	if !strings.Contains(body, "molarlink_http_requests_total") {
		t.Fatalf("expected request counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(body, `code="418"`) {
		t.Fatalf("expected status label 418 in exposition")
	}
}

func TestObserveAuthzDecision(t *testing.T) {
	m := NewMetrics()
	m.ObserveAuthzDecision("deny")
	m.ObserveAuthzDecision("deny")
	m.ObserveAuthzDecision("allow")

	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := res.Body.String()
	if !strings.Contains(body, `molarlink_authz_decisions_total{decision="deny"} 2`) {
		t.Fatalf("expected deny counter at 2, got:\n%s", body)
	}

	// Nil receiver must be a no-op, matching optional wiring.
	var nilMetrics *Metrics
	nilMetrics.ObserveAuthzDecision("allow")
}
