package models

// CurrentAirQuality holds the most recent pollutant readings reported by the
// origin. Pointer fields distinguish "origin omitted the value" from zero;
// absent values are passed through as absent, never defaulted.
type CurrentAirQuality struct {
	Time  string   `json:"time"`
	USAQI *float64 `json:"usAqi,omitempty"`
	PM10  *float64 `json:"pm10,omitempty"`
	PM25  *float64 `json:"pm25,omitempty"`
}

// AirQualityReading is the canonical result shape. Latitude and longitude are
// echoed from the origin response body, not from the request. Current is nil
// when the origin response carries no current block at all.
type AirQualityReading struct {
	Latitude  float64            `json:"latitude"`
	Longitude float64            `json:"longitude"`
	Current   *CurrentAirQuality `json:"current,omitempty"`
}
