package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/i474232898/karwanua/internal/environment"
)

const (
	DefaultDetectTimeout = 10 * time.Second
	UnknownLocationName  = "Unknown location"
)

// PositionOptions mirror what a device position request can ask for.
type PositionOptions struct {
	Timeout            time.Duration
	MaximumAge         time.Duration
	EnableHighAccuracy bool
}

// Position is a raw coordinate fix.
type Position struct {
	Latitude  float64
	Longitude float64
	// Accuracy in meters, 0 when unknown.
	Accuracy float64
}

// PositionSource obtains the device position.
type PositionSource interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// PlaceResolver turns a coordinate into a place. *Client implements it.
type PlaceResolver interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (environment.Place, error)
}

// LocationState is a copy of the resolver's state.
type LocationState struct {
	Location    *environment.Location
	IsDetecting bool
	Error       string
}

// Resolver detects the user's location and names it.
type Resolver struct {
	source  PositionSource
	places  PlaceResolver
	bus     *Bus
	logger  *slog.Logger
	timeout time.Duration

	mu          sync.Mutex
	seq         uint64
	location    *environment.Location
	isDetecting bool
	err         string
	lastCity    string
}

// NewResolver creates a Resolver. A nil source makes every detection fail
// with ErrUnsupported. places and bus may be nil. A timeout <= 0 uses
// DefaultDetectTimeout.
func NewResolver(source PositionSource, places PlaceResolver, bus *Bus, logger *slog.Logger, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultDetectTimeout
	}
	return &Resolver{
		source:  source,
		places:  places,
		bus:     bus,
		logger:  logger,
		timeout: timeout,
	}
}

// State returns the current resolver state.
func (r *Resolver) State() LocationState {
	r.mu.Lock()
	defer r.mu.Unlock()

	var loc *environment.Location
	if r.location != nil {
		copied := *r.location
		loc = &copied
	}
	return LocationState{Location: loc, IsDetecting: r.isDetecting, Error: r.err}
}

// DetectLocation asks the position source for a fresh fix and names it.
// A failed detection leaves any previous location in place and sets Error.
func (r *Resolver) DetectLocation(ctx context.Context) error {
	r.mu.Lock()
	if r.source == nil {
		r.isDetecting = false
		r.err = environment.ErrUnsupported.Error()
		r.mu.Unlock()
		return environment.ErrUnsupported
	}
	r.seq++
	token := r.seq
	r.isDetecting = true
	r.err = ""
	r.mu.Unlock()

	loc, err := r.detect(ctx)

	r.mu.Lock()
	if token != r.seq {
		r.mu.Unlock()
		return err
	}
	r.isDetecting = false
	if err != nil {
		r.err = err.Error()
		r.mu.Unlock()
		r.logger.Warn("location detection failed", "error", err)
		return err
	}
	r.location = &loc
	r.mu.Unlock()

	r.publish(loc)
	return nil
}

func (r *Resolver) detect(ctx context.Context) (environment.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pos, err := r.source.CurrentPosition(ctx, PositionOptions{
		Timeout:            r.timeout,
		MaximumAge:         0,
		EnableHighAccuracy: true,
	})
	if err != nil {
		if errors.Is(err, environment.ErrUnsupported) || errors.Is(err, environment.ErrPermissionOrTimeout) {
			return environment.Location{}, err
		}
		return environment.Location{}, fmt.Errorf("%w: %v", environment.ErrPermissionOrTimeout, err)
	}
	if err := environment.ValidateCoordinates(pos.Latitude, pos.Longitude); err != nil {
		return environment.Location{}, err
	}

	return environment.Location{
		Latitude:    pos.Latitude,
		Longitude:   pos.Longitude,
		DisplayName: r.name(ctx, pos),
	}, nil
}

// name reverse-geocodes pos. Failures fall back to the last known city.
func (r *Resolver) name(ctx context.Context, pos Position) string {
	r.mu.Lock()
	fallback := r.lastCity
	r.mu.Unlock()
	if fallback == "" {
		fallback = UnknownLocationName
	}

	if r.places == nil {
		return fallback
	}

	place, err := r.places.ReverseGeocode(ctx, pos.Latitude, pos.Longitude)
	if err != nil {
		r.logger.Warn("reverse geocode failed", "lat", pos.Latitude, "lon", pos.Longitude, "error", err)
		return fallback
	}

	city := place.City
	if city == "" {
		city = place.DisplayName
	}
	if city == "" {
		return fallback
	}

	r.mu.Lock()
	r.lastCity = city
	r.mu.Unlock()
	return city
}

// Recenter re-runs detection.
func (r *Resolver) Recenter(ctx context.Context) error {
	return r.DetectLocation(ctx)
}

// SetLocation replaces the location with a user selection.
func (r *Resolver) SetLocation(loc environment.Location) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.seq++
	r.location = &loc
	r.isDetecting = false
	r.err = ""
	if loc.DisplayName != "" {
		r.lastCity = loc.DisplayName
	}
	r.mu.Unlock()

	r.publish(loc)
	return nil
}

func (r *Resolver) publish(loc environment.Location) {
	r.bus.Publish(Event{Kind: EventLocationDetected, Location: &loc})
}

// StaticPositionSource always reports the same fix.
type StaticPositionSource struct {
	Position Position
}

func (s StaticPositionSource) CurrentPosition(ctx context.Context, _ PositionOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, fmt.Errorf("%w: %v", environment.ErrPermissionOrTimeout, err)
	}
	return s.Position, nil
}

// DefaultIPLocateURL is an ip-api.com compatible endpoint.
const DefaultIPLocateURL = "http://ip-api.com/json"

// IPPositionSource approximates the position from the caller's public IP.
type IPPositionSource struct {
	url        string
	httpClient *http.Client
}

// NewIPPositionSource creates an IP geolocation source. An empty url uses
// DefaultIPLocateURL; a nil client uses http.DefaultClient.
func NewIPPositionSource(url string, httpClient *http.Client) *IPPositionSource {
	if url == "" {
		url = DefaultIPLocateURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IPPositionSource{url: url, httpClient: httpClient}
}

type ipLocateResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (s *IPPositionSource) CurrentPosition(ctx context.Context, _ PositionOptions) (Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Position{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", environment.ErrPermissionOrTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Position{}, &environment.HTTPError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	var body ipLocateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Position{}, &environment.ParseError{Err: err}
	}
	if body.Status != "success" {
		return Position{}, fmt.Errorf("%w: ip lookup %s: %s", environment.ErrPermissionOrTimeout, body.Status, body.Message)
	}
	return Position{Latitude: body.Lat, Longitude: body.Lon}, nil
}
