package environment

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnsupported is returned when the environment has no way to obtain a
	// device position. It is fatal: retrying will not help.
	ErrUnsupported = errors.New("geolocation unsupported by this environment")

	// ErrPermissionOrTimeout is returned when a position fix was refused or did
	// not arrive in time. Callers may retry.
	ErrPermissionOrTimeout = errors.New("location permission denied or timed out")

	// ErrLLMNotConfigured is returned when AI narrative is requested without a model key.
	ErrLLMNotConfigured = errors.New("Groq API key not configured")

	// ErrMissingCoordinates is returned before any network call when a fetch has no location.
	ErrMissingCoordinates = &ValidationError{Field: "location", Message: "missing coordinates"}
)

// ValidationError is a client-side input failure detected before any upstream call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// HTTPError is a non-success status returned by a gateway or upstream API.
type HTTPError struct {
	Status     int
	StatusText string
	// Message is the error text the server put in the body, if any.
	Message string
}

func (e *HTTPError) Error() string {
	text := e.StatusText
	if text == "" {
		text = http.StatusText(e.Status)
	}
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, text, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s", e.Status, text)
}

// ParseError is returned when a payload could not be decoded. Raw holds the
// offending text for diagnosis.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidateCoordinates checks that lat/lon are within WGS84 bounds.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "latitude", Message: fmt.Sprintf("%v out of range [-90, 90]", lat)}
	}
	if lon < -180 || lon > 180 {
		return &ValidationError{Field: "longitude", Message: fmt.Sprintf("%v out of range [-180, 180]", lon)}
	}
	return nil
}
