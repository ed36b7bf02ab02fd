package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/nurse-directory/internal/auth"
	"github.com/kjstillabower/nurse-directory/internal/models"
	"github.com/kjstillabower/nurse-directory/internal/observability"
	"github.com/kjstillabower/nurse-directory/internal/traffic"
)

func TestCorrelationIDMiddleware_Generates(t *testing.T) {
	var seen string
	h := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("correlation ID not stored in context")
	}
	if got := w.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("header = %q, context = %q", got, seen)
	}
}

func TestCorrelationIDMiddleware_Propagates(t *testing.T) {
	var seen string
	h := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen != "client-provided-id" {
		t.Errorf("context ID = %q", seen)
	}
	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
}

func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/nurses", "/nurses"},
		{"/nurses/Cairo", "/nurses/{city}"},
		{"/nurses/القاهرة", "/nurses/{city}"},
		{"/wp-admin", "unmatched"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://svc"+(&url.URL{Path: tt.path}).EscapedPath(), nil)
		if got := getRoute(r); got != tt.want {
			t.Errorf("getRoute(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddleware_RecordsStatusClass(t *testing.T) {
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/nurses/{city}", "4xx")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nurses/Nowhere", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("4xx counter delta = %v, want 1", got)
	}
}

func TestStatusRecorder_FirstWriteWins(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	rec.WriteHeader(http.StatusTeapot)
	rec.WriteHeader(http.StatusOK)
	if rec.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d, want 418", rec.statusCode)
	}
	if statusCodeString(rec.statusCode) != "4xx" {
		t.Errorf("statusCodeString = %q", statusCodeString(rec.statusCode))
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok {
		t.Fatal("no deadline on request context")
	}
	if time.Until(deadline) > time.Second {
		t.Errorf("deadline %v too far", deadline)
	}
}

func TestTimeoutMiddleware_ThroughRouter(t *testing.T) {
	finder := &mockFinder{nurses: []models.NurseRecord{{NurseID: 1}}}
	h := NewHandler(finder, defaultOptions(), HealthChecks{}, nil, nil, zap.NewNop())
	router := NewRouter(h, zap.NewNop(), RouterConfig{
		Gate:           auth.NewGate(testAPIKey),
		RequestTimeout: 2 * time.Second,
	})
	req := httptest.NewRequest(http.MethodGet, "/nurses/Cairo", nil)
	req.Header.Set("x-api-key", testAPIKey)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if finder.lastCtx == nil {
		t.Fatal("finder not called")
	}
	if _, ok := finder.lastCtx.Deadline(); !ok {
		t.Error("lookup context has no deadline")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	tracker := traffic.New(time.Minute)
	h := RateLimitMiddleware(limiter, tracker)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	before := testutil.ToFloat64(observability.RateLimitDeniedTotal)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nurses/Cairo", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nurses/Cairo", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if body := decodeError(t, w); body.Error.Code != "RATE_LIMITED" {
		t.Errorf("code = %q", body.Error.Code)
	}
	if got := tracker.Counts(time.Minute).Denied; got != 1 {
		t.Errorf("tracked denials = %d, want 1", got)
	}
	if got := testutil.ToFloat64(observability.RateLimitDeniedTotal) - before; got != 1 {
		t.Errorf("denied counter delta = %v, want 1", got)
	}
}

func TestRateLimitMiddleware_NilLimiter(t *testing.T) {
	called := false
	h := RateLimitMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("nil limiter blocked the request")
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	before := testutil.ToFloat64(observability.AuthRejectedTotal)
	h := APIKeyMiddleware(auth.NewGate("s3cret"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/nurses/Cairo", nil)
	req.Header.Set("X-Api-Key", "s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid key status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/nurses/Cairo", nil)
	req.Header.Set("x-api-key", "S3CRET")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", w.Code)
	}
	if got := testutil.ToFloat64(observability.AuthRejectedTotal) - before; got != 1 {
		t.Errorf("rejected counter delta = %v, want 1", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv := newTestServer(t, &mockFinder{}, defaultOptions(), HealthChecks{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/nurses/Cairo", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "x-api-key")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code >= 300 {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("Access-Control-Allow-Origin missing")
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	h := CORSMiddleware([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
