package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kmorand/air-quality-service/internal/models"
	"github.com/kmorand/air-quality-service/internal/observability"
)

// AirQualityClient fetches current air quality from the upstream service.
type AirQualityClient interface {
	FetchCurrent(ctx context.Context, latitude, longitude float64) (models.AirQualityReading, error)
}

// currentFields is the ordered list of requested origin fields. Order is part
// of the request contract.
const currentFields = "us_aqi,pm10,pm2_5"

// StatusError reports a non-2xx origin response. Status carries the numeric
// code and reason phrase as received, e.g. "500 Internal Server Error".
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "Open-Meteo API error: " + e.Status
}

// TransportError reports a network-level failure reaching the origin. The
// underlying message is surfaced unmodified.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports an origin response body that could not be parsed as
// the expected schema. The underlying message is surfaced unmodified.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// OpenMeteoClient implements AirQualityClient against the Open-Meteo air
// quality API. Exactly one attempt per call: no retries, no circuit breaking.
type OpenMeteoClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

// NewOpenMeteoClient creates a client for the given endpoint. timeout bounds
// each request via the underlying http.Client.
func NewOpenMeteoClient(apiURL string, timeout time.Duration) *OpenMeteoClient {
	return &OpenMeteoClient{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type openMeteoResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Current   *struct {
		Time  string   `json:"time"`
		USAQI *float64 `json:"us_aqi"`
		PM10  *float64 `json:"pm10"`
		PM25  *float64 `json:"pm2_5"`
	} `json:"current"`
}

// FetchCurrent fetches current air quality for the exact (unrounded)
// coordinates and maps the origin schema to the internal shape.
func (c *OpenMeteoClient) FetchCurrent(ctx context.Context, latitude, longitude float64) (models.AirQualityReading, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, latitude, longitude)
	if err != nil {
		observability.OriginCallsTotal.WithLabelValues("error").Inc()
		return models.AirQualityReading{}, failOrigin(&TransportError{Err: err})
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.OriginCallsTotal.WithLabelValues("error").Inc()
		observability.OriginDuration.WithLabelValues("error").Observe(duration)
		return models.AirQualityReading{}, failOrigin(&TransportError{Err: err})
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.OriginCallsTotal.WithLabelValues(status).Inc()
	observability.OriginDuration.WithLabelValues(status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.AirQualityReading{}, failOrigin(&StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AirQualityReading{}, failOrigin(&TransportError{Err: err})
	}

	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.AirQualityReading{}, failOrigin(&DecodeError{Err: err})
	}

	return mapResponse(apiResp), nil
}

// failOrigin records the failure category and passes the error through.
func failOrigin(err error) error {
	observability.OriginErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	return err
}

// buildRequest assembles the origin GET. Coordinates go out in decimal string
// form of the input, not rounded; quantization is a cache concern only.
func (c *OpenMeteoClient) buildRequest(ctx context.Context, latitude, longitude float64) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	params.Set("current", currentFields)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// mapResponse translates the origin schema into the canonical reading.
// Coordinates come from the response body. An absent current block stays
// absent; absent fields inside it stay nil.
func mapResponse(apiResp openMeteoResponse) models.AirQualityReading {
	reading := models.AirQualityReading{
		Latitude:  apiResp.Latitude,
		Longitude: apiResp.Longitude,
	}
	if apiResp.Current != nil {
		reading.Current = &models.CurrentAirQuality{
			Time:  apiResp.Current.Time,
			USAQI: apiResp.Current.USAQI,
			PM10:  apiResp.Current.PM10,
			PM25:  apiResp.Current.PM25,
		}
	}
	return reading
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
