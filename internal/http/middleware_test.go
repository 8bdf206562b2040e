package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestCorrelationIDMiddlewareGenerates(t *testing.T) {
	var seenCtxID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Context().Value("correlation_id"); v != nil {
			seenCtxID = v.(string)
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := CorrelationIDMiddleware(zap.NewNop())(inner)

	req := httptest.NewRequest(http.MethodGet, "/air-quality", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	headerID := rec.Header().Get("X-Correlation-ID")
	if headerID == "" {
		t.Fatal("X-Correlation-ID header not set")
	}
	if seenCtxID != headerID {
		t.Errorf("context id %q != header id %q", seenCtxID, headerID)
	}
}

func TestCorrelationIDMiddlewarePreservesIncoming(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CorrelationIDMiddleware(zap.NewNop())(inner)

	req := httptest.NewRequest(http.MethodGet, "/air-quality", nil)
	req.Header.Set("X-Correlation-ID", "client-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "client-supplied-id" {
		t.Errorf("X-Correlation-ID = %q, want client-supplied-id", got)
	}
}

func TestCorrelationIDMiddlewareInjectsLogger(t *testing.T) {
	var gotLogger bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotLogger = r.Context().Value("logger").(*zap.Logger)
		w.WriteHeader(http.StatusOK)
	})
	handler := CorrelationIDMiddleware(zap.NewNop())(inner)

	req := httptest.NewRequest(http.MethodGet, "/air-quality", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !gotLogger {
		t.Error("logger not found in request context")
	}
}

func TestRateLimitMiddlewareNilPassthrough(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(nil)(inner)

	req := httptest.NewRequest(http.MethodGet, "/air-quality", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("inner handler not called with nil limiter")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddlewareDenies(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(limiter)(inner)

	// First request consumes the single burst token.
	req := httptest.NewRequest(http.MethodGet, "/air-quality", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Code != "RATE_LIMITED" {
		t.Errorf("error code = %q, want RATE_LIMITED", body.Error.Code)
	}
}

func TestMetricsMiddlewareRecordsStatus(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := MetricsMiddleware(inner)

	req := httptest.NewRequest(http.MethodGet, "/air-quality", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
	}
	for _, tc := range tests {
		if got := statusCodeString(tc.code); got != tc.want {
			t.Errorf("statusCodeString(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestTimeoutMiddlewareSetsDeadline(t *testing.T) {
	var hadDeadline bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusOK)
	})
	handler := TimeoutMiddleware(time.Second)(inner)

	req := httptest.NewRequest(http.MethodGet, "/air-quality", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !hadDeadline {
		t.Error("request context has no deadline")
	}
}
