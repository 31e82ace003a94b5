package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// DefaultRegion is used when a temperature request names no region.
const DefaultRegion = "globe"

// DefaultModel is the chat model used when a request does not pick one.
const DefaultModel = "llama-3.1-8b-instant"

// Providers bundles the upstream sources the service orchestrates.
// Any of them may be nil; the matching operation then reports it unconfigured.
type Providers struct {
	AirQuality  AirQualityProvider
	NDVI        NDVIProvider
	Temperature TemperatureProvider
	Geocoder    ReverseGeocoder
	LLM         ChatCompleter
}

// Service orchestrates upstream providers and persists tracked-location snapshots.
type Service struct {
	store     Store
	providers Providers
	model     string
	logger    *slog.Logger
	clock     clockwork.Clock
}

// Option customises a Service.
type Option func(*Service)

// WithClock swaps the time source, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithDefaultModel sets the chat model used when a request names none.
func WithDefaultModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// NewService creates a new Service.
func NewService(store Store, providers Providers, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		providers: providers,
		model:     DefaultModel,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AirQuality fetches the current (or date-specific) pollutant reading for loc.
func (s *Service) AirQuality(ctx context.Context, loc Location, date string) (AirQualityReport, error) {
	if err := loc.Validate(); err != nil {
		return AirQualityReport{}, err
	}
	if _, err := ParseDate(date); err != nil {
		return AirQualityReport{}, err
	}
	p := s.providers.AirQuality
	if p == nil {
		return AirQualityReport{}, errors.New("no air-quality provider configured")
	}

	data, err := p.AirQuality(ctx, loc, date)
	if err != nil {
		return AirQualityReport{}, fmt.Errorf("%s: %w", p.Name(), err)
	}

	return AirQualityReport{
		Success:  true,
		Data:     data,
		Location: loc,
		Metadata: AirQualityMetadata{
			Source:    p.Name(),
			Date:      date,
			Category:  AQICategory(data.Current.USAQI),
			FetchedAt: s.clock.Now().UTC(),
		},
	}, nil
}

// NDVI fetches the vegetation series ending at date and classifies the latest value.
func (s *Service) NDVI(ctx context.Context, loc Location, date string) (NDVIReport, error) {
	if err := loc.Validate(); err != nil {
		return NDVIReport{}, err
	}
	if _, err := ParseDate(date); err != nil {
		return NDVIReport{}, err
	}
	p := s.providers.NDVI
	if p == nil {
		return NDVIReport{}, errors.New("no NDVI provider configured")
	}

	trend, err := p.NDVISeries(ctx, loc, date)
	if err != nil {
		return NDVIReport{}, fmt.Errorf("%s: %w", p.Name(), err)
	}

	report := NDVIReport{
		Location: loc,
		Trend:    trend,
		Source:   p.Name(),
	}
	latest, ok := LatestValidNDVI(trend)
	if !ok {
		class := ClassifyNDVI(nanNDVI)
		report.NDVIStatus = class.Status
		report.VegetationHealth = class.VegetationHealth
		report.ColorCode = class.ColorCode
		return report, nil
	}

	class := ClassifyNDVI(latest.NDVI)
	report.CurrentNDVI = latest.NDVI
	report.NDVIStatus = class.Status
	report.VegetationHealth = class.VegetationHealth
	report.ColorCode = class.ColorCode
	report.LastUpdate = latest.Date
	return report, nil
}

// TemperatureAnomaly returns the yearly anomaly series for region.
func (s *Service) TemperatureAnomaly(ctx context.Context, region string) (TemperatureSeries, error) {
	if region == "" {
		region = DefaultRegion
	}
	p := s.providers.Temperature
	if p == nil {
		return TemperatureSeries{}, errors.New("no temperature provider configured")
	}

	points, err := p.Anomalies(ctx, region)
	if err != nil {
		return TemperatureSeries{}, fmt.Errorf("%s: %w", p.Name(), err)
	}
	if points == nil {
		points = []TemperaturePoint{}
	}
	return TemperatureSeries{Success: true, Region: region, Data: points}, nil
}

// ReverseGeocode validates the coordinates before delegating to the geocoder.
func (s *Service) ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return Place{}, err
	}
	g := s.providers.Geocoder
	if g == nil {
		return Place{}, errors.New("no geocoder configured")
	}

	place, err := g.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return Place{}, fmt.Errorf("%s: %w", g.Name(), err)
	}
	return place, nil
}

// Insights asks the model for a narrative reading of the aggregated values.
// No outbound call is made when the model is unconfigured.
func (s *Service) Insights(ctx context.Context, req InsightRequest) (InsightResponse, error) {
	llm := s.providers.LLM
	if llm == nil {
		return InsightResponse{}, ErrLLMNotConfigured
	}

	resp, err := llm.Complete(ctx, ChatRequest{
		Model:       s.pickModel(req.Model),
		System:      insightSystemPrompt,
		Prompt:      InsightPrompt(req),
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if err != nil {
		return InsightResponse{}, fmt.Errorf("%s: %w", llm.Name(), err)
	}

	insights, err := ParseInsights(resp.Content)
	if err != nil {
		s.logger.Warn("model reply was not a JSON array", "provider", llm.Name(), "error", err)
		return InsightResponse{}, err
	}
	return InsightResponse{Insights: insights, Usage: resp.Usage}, nil
}

// Recommendations turns insights into prioritised actions.
func (s *Service) Recommendations(ctx context.Context, req RecommendationRequest) (RecommendationResponse, error) {
	llm := s.providers.LLM
	if llm == nil {
		return RecommendationResponse{}, ErrLLMNotConfigured
	}

	prompt, err := RecommendationPrompt(req.Insights)
	if err != nil {
		return RecommendationResponse{}, err
	}

	resp, err := llm.Complete(ctx, ChatRequest{
		Model:       s.pickModel(req.Model),
		System:      insightSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.5,
		MaxTokens:   1024,
	})
	if err != nil {
		return RecommendationResponse{}, fmt.Errorf("%s: %w", llm.Name(), err)
	}

	recs, err := ParseRecommendations(resp.Content)
	if err != nil {
		s.logger.Warn("model reply was not a JSON array", "provider", llm.Name(), "error", err)
		return RecommendationResponse{}, err
	}
	return RecommendationResponse{Recommendations: recs}, nil
}

// FetchAndStore fetches air quality and NDVI concurrently for the given location
// and stores a snapshot. A partial result is stored; if both sources fail the
// last good snapshot is kept.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	var (
		mu       sync.Mutex
		snapshot = Snapshot{Location: loc}
		failures []string
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		aq, err := s.AirQuality(gCtx, loc, "")
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			// Log and continue; we want partial success when possible.
			s.logger.Warn("air-quality fetch failed", "location", loc.Key(), "error", err)
			failures = append(failures, err.Error())
			return nil
		}
		snapshot.AirQuality = &aq
		snapshot.Sources = append(snapshot.Sources, SourceContribution{Source: aq.Metadata.Source, Timestamp: aq.Metadata.FetchedAt})
		return nil
	})

	g.Go(func() error {
		ndvi, err := s.NDVI(gCtx, loc, "")
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Warn("ndvi fetch failed", "location", loc.Key(), "error", err)
			failures = append(failures, err.Error())
			return nil
		}
		snapshot.NDVI = &ndvi
		snapshot.Sources = append(snapshot.Sources, SourceContribution{Source: ndvi.Source, Timestamp: s.clock.Now().UTC()})
		return nil
	})

	_ = g.Wait()

	if snapshot.AirQuality == nil && snapshot.NDVI == nil {
		s.logger.Warn("no successful readings; keeping last good snapshot if any", "location", loc.Key())
		return fmt.Errorf("all sources failed for %s: %s", loc.Key(), strings.Join(failures, "; "))
	}

	snapshot.Timestamp = s.clock.Now().UTC()
	if err := s.store.SaveSnapshot(loc, snapshot); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", loc.Key(), err)
	}
	return nil
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (Snapshot, error) {
	return s.store.GetLatest(loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]Snapshot, error) {
	return s.store.GetRange(loc, from, to)
}

func (s *Service) pickModel(requested string) string {
	if requested != "" {
		return requested
	}
	return s.model
}
