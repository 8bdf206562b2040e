package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kmorand/air-quality-service/internal/observability"
)

// TestFetchCurrent_Success verifies query construction and the mapping of the
// origin schema (us_aqi/pm10/pm2_5) into the internal shape (usAqi/pm10/pm25).
func TestFetchCurrent_Success(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"latitude":  r.URL.Query().Get("latitude"),
			"longitude": r.URL.Query().Get("longitude"),
			"current":   r.URL.Query().Get("current"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"latitude": 40.75,
			"longitude": -74.0,
			"current": {"time": "2024-05-01T12:00", "us_aqi": 42, "pm10": 18.4, "pm2_5": 9.1}
		}`))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	got, err := c.FetchCurrent(context.Background(), 40.7128, -74.0060)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}

	// Request coordinates are the raw inputs, not the quantized cache key.
	if gotQuery["latitude"] != "40.7128" {
		t.Errorf("latitude param = %q, want %q", gotQuery["latitude"], "40.7128")
	}
	if gotQuery["longitude"] != "-74.006" {
		t.Errorf("longitude param = %q, want %q", gotQuery["longitude"], "-74.006")
	}
	if gotQuery["current"] != "us_aqi,pm10,pm2_5" {
		t.Errorf("current param = %q, want %q", gotQuery["current"], "us_aqi,pm10,pm2_5")
	}

	// Coordinates are echoed from the response body, not the request.
	if got.Latitude != 40.75 || got.Longitude != -74.0 {
		t.Errorf("coordinates = %v,%v, want 40.75,-74 (from body)", got.Latitude, got.Longitude)
	}
	if got.Current == nil {
		t.Fatal("Current = nil, want populated block")
	}
	if got.Current.Time != "2024-05-01T12:00" {
		t.Errorf("Current.Time = %q, want %q", got.Current.Time, "2024-05-01T12:00")
	}
	if got.Current.USAQI == nil || *got.Current.USAQI != 42 {
		t.Errorf("Current.USAQI = %v, want 42", got.Current.USAQI)
	}
	if got.Current.PM10 == nil || *got.Current.PM10 != 18.4 {
		t.Errorf("Current.PM10 = %v, want 18.4", got.Current.PM10)
	}
	if got.Current.PM25 == nil || *got.Current.PM25 != 9.1 {
		t.Errorf("Current.PM25 = %v, want 9.1", got.Current.PM25)
	}
}

// TestFetchCurrent_NoCurrentBlock verifies that an origin response without a
// current block maps to an entirely absent Current, not a block of zeros.
func TestFetchCurrent_NoCurrentBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"latitude": 40.75, "longitude": -74.0}`))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	got, err := c.FetchCurrent(context.Background(), 40.7128, -74.0060)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if got.Current != nil {
		t.Errorf("Current = %+v, want nil", got.Current)
	}
}

// TestFetchCurrent_PartialCurrentFields verifies that a field missing inside
// current is passed through as absence, not defaulted to zero.
func TestFetchCurrent_PartialCurrentFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"latitude": 40.75,
			"longitude": -74.0,
			"current": {"time": "2024-05-01T12:00", "us_aqi": 42}
		}`))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	got, err := c.FetchCurrent(context.Background(), 40.7128, -74.0060)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if got.Current == nil {
		t.Fatal("Current = nil, want populated block")
	}
	if got.Current.USAQI == nil || *got.Current.USAQI != 42 {
		t.Errorf("Current.USAQI = %v, want 42", got.Current.USAQI)
	}
	if got.Current.PM10 != nil {
		t.Errorf("Current.PM10 = %v, want nil for absent field", *got.Current.PM10)
	}
	if got.Current.PM25 != nil {
		t.Errorf("Current.PM25 = %v, want nil for absent field", *got.Current.PM25)
	}
}

// TestFetchCurrent_HTTPError verifies the exact error message for a non-2xx
// origin response: numeric status code plus status text.
func TestFetchCurrent_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	_, err := c.FetchCurrent(context.Background(), 40.7128, -74.0060)
	if err == nil {
		t.Fatal("FetchCurrent() error = nil, want error")
	}

	want := "Open-Meteo API error: 500 Internal Server Error"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error type = %T, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", statusErr.StatusCode)
	}
}

// TestFetchCurrent_DecodeError verifies that an unparsable body surfaces as a
// DecodeError.
func TestFetchCurrent_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	_, err := c.FetchCurrent(context.Background(), 40.7128, -74.0060)
	if err == nil {
		t.Fatal("FetchCurrent() error = nil, want error")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("error type = %T, want *DecodeError", err)
	}
}

// TestFetchCurrent_TransportError verifies that a network-level failure
// surfaces as a TransportError.
func TestFetchCurrent_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	_, err := c.FetchCurrent(context.Background(), 40.7128, -74.0060)
	if err == nil {
		t.Fatal("FetchCurrent() error = nil, want error")
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("error type = %T, want *TransportError", err)
	}
}

// TestFetchCurrent_SingleAttempt verifies exactly one origin call per
// invocation, even on failure.
func TestFetchCurrent_SingleAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	if _, err := c.FetchCurrent(context.Background(), 1, 2); err == nil {
		t.Fatal("FetchCurrent() error = nil, want error")
	}
	if calls != 1 {
		t.Errorf("origin called %d times, want exactly 1", calls)
	}
}

// TestFetchCurrent_ErrorCategoryCounter verifies failures increment
// originApiErrorsTotal under their category label.
func TestFetchCurrent_ErrorCategoryCounter(t *testing.T) {
	upstreamBefore := testutil.ToFloat64(observability.OriginErrorsTotal.WithLabelValues(string(ErrorCategoryUpstreamHTTP)))
	parsingBefore := testutil.ToFloat64(observability.OriginErrorsTotal.WithLabelValues(string(ErrorCategoryParsing)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	if _, err := c.FetchCurrent(context.Background(), 1, 2); err == nil {
		t.Fatal("FetchCurrent() error = nil, want error")
	}
	got := testutil.ToFloat64(observability.OriginErrorsTotal.WithLabelValues(string(ErrorCategoryUpstreamHTTP)))
	if got-upstreamBefore != 1 {
		t.Errorf("upstream_http delta = %v, want 1", got-upstreamBefore)
	}

	badBody := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer badBody.Close()

	c = NewOpenMeteoClient(badBody.URL, 2*time.Second)
	if _, err := c.FetchCurrent(context.Background(), 1, 2); err == nil {
		t.Fatal("FetchCurrent() error = nil, want error")
	}
	got = testutil.ToFloat64(observability.OriginErrorsTotal.WithLabelValues(string(ErrorCategoryParsing)))
	if got-parsingBefore != 1 {
		t.Errorf("parsing delta = %v, want 1", got-parsingBefore)
	}
}
