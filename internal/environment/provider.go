package environment

import (
	"context"
	"time"
)

// AirQualityProvider abstracts an air-quality source (e.g. Open-Meteo).
// An empty date means the latest available reading.
type AirQualityProvider interface {
	Name() string
	AirQuality(ctx context.Context, loc Location, date string) (AirQualityData, error)
}

// NDVIProvider abstracts a vegetation-index source (e.g. the MODIS subset service).
// It returns the composite series ending at date, oldest first.
type NDVIProvider interface {
	Name() string
	NDVISeries(ctx context.Context, loc Location, date string) ([]NDVIPoint, error)
}

// TemperatureProvider abstracts a yearly temperature-anomaly source.
type TemperatureProvider interface {
	Name() string
	Anomalies(ctx context.Context, region string) ([]TemperaturePoint, error)
}

// ReverseGeocoder resolves coordinates to place details.
type ReverseGeocoder interface {
	Name() string
	ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error)
}

// ChatRequest is a single-turn prompt for a chat-completion model.
type ChatRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the model's reply text plus token usage.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// ChatCompleter abstracts a large-language-model chat endpoint (e.g. Groq).
type ChatCompleter interface {
	Name() string
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Store persists snapshots per location. Implementations live in internal/store.
type Store interface {
	SaveSnapshot(loc Location, snapshot Snapshot) error
	GetLatest(loc Location) (Snapshot, error)
	GetRange(loc Location, from, to time.Time) ([]Snapshot, error)
}
