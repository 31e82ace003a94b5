package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/karwanua/internal/environment"
)

// DefaultNominatimUserAgent identifies us to Nominatim, as its usage policy requires.
const DefaultNominatimUserAgent = "Karwanua/1.0"

// NominatimProvider implements environment.ReverseGeocoder using OpenStreetMap Nominatim.
type NominatimProvider struct {
	name      string
	baseURL   string
	userAgent string
	httpCfg   HTTPClientConfig
	circuit   *gobreaker.CircuitBreaker

	// Nominatim allows at most one request per second.
	minInterval time.Duration
	mu          sync.Mutex
	lastCall    time.Time
}

// NewNominatimProvider creates a reverse geocoder.
func NewNominatimProvider(cfg HTTPClientConfig, userAgent string) *NominatimProvider {
	if userAgent == "" {
		userAgent = DefaultNominatimUserAgent
	}
	return &NominatimProvider{
		name:        "nominatim",
		baseURL:     "https://nominatim.openstreetmap.org/reverse",
		userAgent:   userAgent,
		httpCfg:     cfg,
		circuit:     newCircuitBreaker("nominatim", cfg.Metrics),
		minInterval: time.Second,
	}
}

func (p *NominatimProvider) Name() string {
	return p.name
}

type nominatimReverse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// ReverseGeocode resolves lat/lon to a place.
func (p *NominatimProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (environment.Place, error) {
	if err := p.throttle(ctx); err != nil {
		return environment.Place{}, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("format", "jsonv2")
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))
		values.Set("zoom", "10")
		values.Set("addressdetails", "1")

		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", p.userAgent)
		req.Header.Set("Accept-Language", "en")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return environment.Place{}, err
	}
	defer resp.Body.Close()

	var payload nominatimReverse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return environment.Place{}, &environment.ParseError{Err: err}
	}
	if payload.Error != "" {
		return environment.Place{}, errors.New(payload.Error)
	}

	return placeFromNominatim(payload), nil
}

// throttle blocks until the minimum interval since the previous call has passed.
func (p *NominatimProvider) throttle(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastCall.IsZero() {
		if wait := p.minInterval - time.Since(p.lastCall); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	p.lastCall = time.Now()
	return nil
}

func placeFromNominatim(r nominatimReverse) environment.Place {
	a := r.Address
	city := firstNonEmpty(a["city"], a["town"], a["village"], a["municipality"], a["county"])
	state := firstNonEmpty(a["state"], a["region"], a["province"])
	country := a["country"]

	parts := make([]string, 0, 3)
	for _, s := range []string{city, state, country} {
		if s != "" {
			parts = append(parts, s)
		}
	}

	return environment.Place{
		City:        city,
		State:       state,
		Country:     country,
		FullName:    strings.Join(parts, ", "),
		DisplayName: firstNonEmpty(city, r.DisplayName),
		Address:     a,
	}
}
