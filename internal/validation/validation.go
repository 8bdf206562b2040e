package validation

import (
	"errors"
	"strconv"
	"strings"
)

// ErrLatitudeRequired is returned when the latitude parameter is empty or whitespace-only.
var ErrLatitudeRequired = errors.New("latitude is required")

// ErrLongitudeRequired is returned when the longitude parameter is empty or whitespace-only.
var ErrLongitudeRequired = errors.New("longitude is required")

// ErrLatitudeInvalid is returned when the latitude parameter is not a decimal number.
var ErrLatitudeInvalid = errors.New("latitude must be a decimal number")

// ErrLongitudeInvalid is returned when the longitude parameter is not a decimal number.
var ErrLongitudeInvalid = errors.New("longitude must be a decimal number")

// ParseCoordinates trims and parses the two query parameters as float64
// degrees. Range bounds are deliberately not enforced; out-of-range values
// pass through to the origin unchanged. Errors are suitable for 400
// INVALID_COORDINATES responses.
func ParseCoordinates(latParam, lonParam string) (latitude, longitude float64, err error) {
	latStr := strings.TrimSpace(latParam)
	if latStr == "" {
		return 0, 0, ErrLatitudeRequired
	}
	lonStr := strings.TrimSpace(lonParam)
	if lonStr == "" {
		return 0, 0, ErrLongitudeRequired
	}

	latitude, err = strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, ErrLatitudeInvalid
	}
	longitude, err = strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, ErrLongitudeInvalid
	}
	return latitude, longitude, nil
}
