package providers

import (
	"context"
	"errors"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/observability"
)

// GoogleGeocoderProvider implements environment.ReverseGeocoder with the Google
// Geocoding API through kelvins/geocoder. It is used instead of Nominatim when
// a Google key is configured.
type GoogleGeocoderProvider struct {
	name    string
	metrics *observability.Metrics
	circuit *gobreaker.CircuitBreaker
}

// NewGoogleGeocoderProvider sets the library-wide API key and returns the provider.
func NewGoogleGeocoderProvider(apiKey string, metrics *observability.Metrics) *GoogleGeocoderProvider {
	// The library reads its key from a package variable.
	geocoder.ApiKey = apiKey
	return &GoogleGeocoderProvider{
		name:    "google-geocoding",
		metrics: metrics,
		circuit: newCircuitBreaker("google-geocoding", metrics),
	}
}

func (p *GoogleGeocoderProvider) Name() string {
	return p.name
}

type googleResult struct {
	addresses []geocoder.Address
	err       error
}

// ReverseGeocode resolves lat/lon to a place. The library call is not
// context-aware, so cancellation only abandons the wait.
func (p *GoogleGeocoderProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (environment.Place, error) {
	started := time.Now()
	done := make(chan googleResult, 1)

	go func() {
		out, err := p.circuit.Execute(func() (interface{}, error) {
			return geocoder.GeocodingReverse(geocoder.Location{Latitude: lat, Longitude: lon})
		})
		addrs, _ := out.([]geocoder.Address)
		done <- googleResult{addresses: addrs, err: err}
	}()

	var res googleResult
	select {
	case <-ctx.Done():
		p.metrics.ObserveUpstream(p.name, "error", time.Since(started))
		return environment.Place{}, ctx.Err()
	case res = <-done:
	}

	if res.err != nil {
		outcome := "error"
		if errors.Is(res.err, gobreaker.ErrOpenState) {
			outcome = "circuit_open"
		}
		p.metrics.ObserveUpstream(p.name, outcome, time.Since(started))
		return environment.Place{}, res.err
	}
	p.metrics.ObserveUpstream(p.name, "success", time.Since(started))

	if len(res.addresses) == 0 {
		return environment.Place{}, errors.New("no address found for coordinates")
	}

	a := res.addresses[0]
	return environment.Place{
		City:        a.City,
		State:       a.State,
		Country:     a.Country,
		FullName:    a.FormattedAddress,
		DisplayName: firstNonEmpty(a.City, a.County, a.FormattedAddress),
		Address: map[string]string{
			"street":       a.Street,
			"neighborhood": a.Neighborhood,
			"district":     a.District,
			"county":       a.County,
			"postcode":     a.PostalCode,
		},
	}, nil
}
