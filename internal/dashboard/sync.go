package dashboard

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/i474232898/karwanua/internal/environment"
)

// EnvironmentSource serves the per-kind readings the synchronizer keeps.
// *Client implements it.
type EnvironmentSource interface {
	AirQuality(ctx context.Context, loc environment.Location, date string) (*environment.AirQualityReport, error)
	NDVI(ctx context.Context, loc environment.Location, date string) (*environment.NDVIReport, error)
}

// TemperatureSource serves yearly temperature anomalies. *Client implements it.
type TemperatureSource interface {
	TemperatureAnomaly(ctx context.Context, region string) (*environment.TemperatureSeries, error)
}

// Synchronizer keeps air-quality and NDVI readings in step with a location
// and a selected date. The two kinds fetch independently and may finish in
// any order or fail separately.
type Synchronizer struct {
	source    EnvironmentSource
	logger    *slog.Logger
	autoFetch bool

	mu       sync.Mutex
	location *environment.Location
	date     string

	airQuality *Fetcher[environment.AirQualityReport]
	ndvi       *Fetcher[environment.NDVIReport]

	// updates holds at most one pending signal; batches settling while one
	// is pending coalesce into it.
	updates chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	closed bool // guarded by mu
	wg     sync.WaitGroup
}

// NewSynchronizer creates a synchronizer. With autoFetch, every change of
// location or date triggers both fetches.
func NewSynchronizer(source EnvironmentSource, autoFetch bool, logger *slog.Logger) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		source:    source,
		logger:    logger,
		autoFetch: autoFetch,
		updates:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.airQuality = NewFetcher("air_quality", s.fetchAirQuality, logger)
	s.ndvi = NewFetcher("ndvi", s.fetchNDVI, logger)
	return s
}

func (s *Synchronizer) key() (*environment.Location, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, s.date
}

func (s *Synchronizer) fetchAirQuality(ctx context.Context) (*environment.AirQualityReport, error) {
	loc, date := s.key()
	if loc == nil {
		return nil, environment.ErrMissingCoordinates
	}
	return s.source.AirQuality(ctx, *loc, date)
}

func (s *Synchronizer) fetchNDVI(ctx context.Context) (*environment.NDVIReport, error) {
	loc, date := s.key()
	if loc == nil {
		return nil, environment.ErrMissingCoordinates
	}
	return s.source.NDVI(ctx, *loc, date)
}

// SetLocation replaces the location. A nil location clears it. An unchanged
// location does not refetch.
func (s *Synchronizer) SetLocation(loc *environment.Location) {
	s.mu.Lock()
	if sameLocation(s.location, loc) {
		s.mu.Unlock()
		return
	}
	if loc != nil {
		copied := *loc
		loc = &copied
	}
	s.location = loc
	s.mu.Unlock()

	s.maybeAutoFetch()
}

// SetDate replaces the selected date (YYYY-MM-DD, empty for latest).
func (s *Synchronizer) SetDate(date string) {
	s.mu.Lock()
	if s.date == date {
		s.mu.Unlock()
		return
	}
	s.date = date
	s.mu.Unlock()

	s.maybeAutoFetch()
}

func (s *Synchronizer) maybeAutoFetch() {
	if !s.autoFetch {
		return
	}
	if loc, _ := s.key(); loc == nil {
		return
	}
	s.fetchAllAsync()
}

func (s *Synchronizer) fetchAllAsync() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	ctx := s.ctx
	go func() {
		defer s.wg.Done()
		// Errors are recorded in each reading; neither kind cancels the other.
		var g errgroup.Group
		g.Go(func() error { _ = s.airQuality.Fetch(ctx); return nil })
		g.Go(func() error { _ = s.ndvi.Fetch(ctx); return nil })
		_ = g.Wait()

		select {
		case s.updates <- struct{}{}:
		default:
		}
	}()
}

// Updates signals after each automatic fetch batch has settled, so both
// readings reflect the location and date that triggered it (or a newer
// batch still loading). Signals coalesce when not drained.
func (s *Synchronizer) Updates() <-chan struct{} {
	return s.updates
}

// FetchAirQuality fetches air quality now and waits for it.
func (s *Synchronizer) FetchAirQuality(ctx context.Context) error {
	return s.airQuality.Fetch(ctx)
}

// FetchNDVI fetches NDVI now and waits for it.
func (s *Synchronizer) FetchNDVI(ctx context.Context) error {
	return s.ndvi.Fetch(ctx)
}

// Refetch re-runs both fetches concurrently regardless of auto-fetch and
// waits for both. The first error, if any, is returned.
func (s *Synchronizer) Refetch(ctx context.Context) error {
	// No shared context: one kind failing must not cancel the other.
	var g errgroup.Group
	g.Go(func() error { return s.airQuality.Refetch(ctx) })
	g.Go(func() error { return s.ndvi.Refetch(ctx) })
	return g.Wait()
}

// AirQuality returns the current air-quality reading.
func (s *Synchronizer) AirQuality() Reading[environment.AirQualityReport] {
	return s.airQuality.Snapshot()
}

// NDVI returns the current NDVI reading.
func (s *Synchronizer) NDVI() Reading[environment.NDVIReport] {
	return s.ndvi.Snapshot()
}

// Follow applies DateChanged and LocationDetected events from bus until the
// returned stop function is called. Other events are ignored.
func (s *Synchronizer) Follow(bus *Bus) (stop func()) {
	ch := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			switch e.Kind {
			case EventDateChanged:
				s.SetDate(e.Date)
			case EventLocationDetected:
				s.SetLocation(e.Location)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			bus.Unsubscribe(ch)
			<-done
		})
	}
}

// Wait blocks until automatic fetches already started have finished. It
// must not run concurrently with SetLocation or SetDate; watch Updates when
// changes arrive from another goroutine.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight automatic fetches and waits for them. Later
// changes no longer fetch.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func sameLocation(a, b *environment.Location) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Latitude == b.Latitude && a.Longitude == b.Longitude && a.DisplayName == b.DisplayName
}

// NewTemperatureFetcher returns a fetcher that keeps only the most recent
// yearly anomaly for region. It never fetches on its own; call Fetch.
// An empty series yields no data and no error.
func NewTemperatureFetcher(source TemperatureSource, region string, logger *slog.Logger) *Fetcher[environment.TemperaturePoint] {
	return NewFetcher("temperature_anomaly", func(ctx context.Context) (*environment.TemperaturePoint, error) {
		series, err := source.TemperatureAnomaly(ctx, region)
		if err != nil {
			return nil, err
		}
		if len(series.Data) == 0 {
			return nil, nil
		}
		latest := series.Data[len(series.Data)-1]
		return &latest, nil
	}, logger)
}
