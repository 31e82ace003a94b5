package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/observability"
)

type fakePlaces struct {
	place environment.Place
	err   error
	calls int
}

func (f *fakePlaces) ReverseGeocode(context.Context, float64, float64) (environment.Place, error) {
	f.calls++
	return f.place, f.err
}

type blockingSource struct{}

func (blockingSource) CurrentPosition(ctx context.Context, _ PositionOptions) (Position, error) {
	<-ctx.Done()
	return Position{}, ctx.Err()
}

type deniedSource struct{}

func (deniedSource) CurrentPosition(context.Context, PositionOptions) (Position, error) {
	return Position{}, errors.New("user denied geolocation")
}

var jakartaFix = StaticPositionSource{Position: Position{Latitude: -6.2088, Longitude: 106.8456}}

// assertSettled checks that a settled resolver has a location or an error.
func assertSettled(t *testing.T, s LocationState) {
	t.Helper()
	assert.False(t, s.IsDetecting)
	assert.False(t, s.Location == nil && s.Error == "", "settled with neither location nor error")
}

func TestResolver_DetectNamesLocation(t *testing.T) {
	places := &fakePlaces{place: environment.Place{City: "Jakarta", Country: "Indonesia"}}
	bus := NewBus(observability.Discard())
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	r := NewResolver(jakartaFix, places, bus, observability.Discard(), 0)
	require.NoError(t, r.DetectLocation(context.Background()))

	s := r.State()
	assertSettled(t, s)
	require.NotNil(t, s.Location)
	assert.Equal(t, jakarta, *s.Location)
	assert.Empty(t, s.Error)

	e := <-ch
	assert.Equal(t, EventLocationDetected, e.Kind)
	require.NotNil(t, e.Location)
	assert.Equal(t, "Jakarta", e.Location.DisplayName)
}

func TestResolver_NoSourceIsUnsupported(t *testing.T) {
	r := NewResolver(nil, nil, nil, observability.Discard(), 0)

	err := r.DetectLocation(context.Background())
	require.ErrorIs(t, err, environment.ErrUnsupported)

	s := r.State()
	assertSettled(t, s)
	assert.Nil(t, s.Location)
	assert.Equal(t, environment.ErrUnsupported.Error(), s.Error)
}

func TestResolver_TimeoutIsRetryable(t *testing.T) {
	r := NewResolver(blockingSource{}, nil, nil, observability.Discard(), 20*time.Millisecond)

	err := r.DetectLocation(context.Background())
	require.ErrorIs(t, err, environment.ErrPermissionOrTimeout)
	assertSettled(t, r.State())
}

func TestResolver_PermissionDenied(t *testing.T) {
	r := NewResolver(deniedSource{}, nil, nil, observability.Discard(), 0)

	err := r.DetectLocation(context.Background())
	require.ErrorIs(t, err, environment.ErrPermissionOrTimeout)

	s := r.State()
	assertSettled(t, s)
	assert.Contains(t, s.Error, "user denied geolocation")
}

func TestResolver_GeocodeFailureFallsBack(t *testing.T) {
	places := &fakePlaces{err: errors.New("geocoder down")}
	r := NewResolver(jakartaFix, places, nil, observability.Discard(), 0)

	require.NoError(t, r.DetectLocation(context.Background()))
	assert.Equal(t, UnknownLocationName, r.State().Location.DisplayName)
	assert.Empty(t, r.State().Error)

	places.err = nil
	places.place = environment.Place{City: "Jakarta"}
	require.NoError(t, r.Recenter(context.Background()))
	assert.Equal(t, "Jakarta", r.State().Location.DisplayName)

	places.err = errors.New("geocoder down")
	require.NoError(t, r.Recenter(context.Background()))
	assert.Equal(t, "Jakarta", r.State().Location.DisplayName)
	assert.Equal(t, 3, places.calls)
}

func TestResolver_FailureKeepsPreviousLocation(t *testing.T) {
	r := NewResolver(deniedSource{}, nil, nil, observability.Discard(), 0)
	require.NoError(t, r.SetLocation(jakarta))

	require.Error(t, r.DetectLocation(context.Background()))

	s := r.State()
	require.NotNil(t, s.Location)
	assert.Equal(t, jakarta, *s.Location)
	assert.NotEmpty(t, s.Error)
}

func TestResolver_SetLocationValidates(t *testing.T) {
	r := NewResolver(nil, nil, nil, observability.Discard(), 0)

	err := r.SetLocation(environment.Location{Latitude: 91, Longitude: 0})
	var verr *environment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Nil(t, r.State().Location)
}

func TestIPPositionSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","lat":-6.2088,"lon":106.8456,"city":"Jakarta"}`))
	}))
	defer srv.Close()

	pos, err := NewIPPositionSource(srv.URL, srv.Client()).CurrentPosition(context.Background(), PositionOptions{})
	require.NoError(t, err)
	assert.Equal(t, Position{Latitude: -6.2088, Longitude: 106.8456}, pos)
}

func TestIPPositionSource_FailedLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer srv.Close()

	_, err := NewIPPositionSource(srv.URL, srv.Client()).CurrentPosition(context.Background(), PositionOptions{})
	require.ErrorIs(t, err, environment.ErrPermissionOrTimeout)
	assert.Contains(t, err.Error(), "private range")
}
