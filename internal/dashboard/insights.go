package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/i474232898/karwanua/internal/environment"
)

// InsightSource requests AI narrative. *Client implements it.
type InsightSource interface {
	Insights(ctx context.Context, req environment.InsightRequest) (environment.InsightResponse, error)
	Recommendations(ctx context.Context, req environment.RecommendationRequest) (environment.RecommendationResponse, error)
}

// Readings is the set of dashboard readings combined for narration.
type Readings struct {
	AirQuality  Reading[environment.AirQualityReport]
	NDVI        Reading[environment.NDVIReport]
	Temperature Reading[environment.TemperaturePoint]
	Location    *environment.Location
	Region      string
}

// BuildInsightRequest combines the readings into an insight request. At
// least one reading must carry data. Missing readings contribute zero.
func BuildInsightRequest(r Readings) (environment.InsightRequest, error) {
	if r.AirQuality.Data == nil && r.NDVI.Data == nil && r.Temperature.Data == nil {
		return environment.InsightRequest{}, &environment.ValidationError{Field: "readings", Message: "no readings available to narrate"}
	}

	req := environment.InsightRequest{
		Region:   r.Region,
		Location: locationLabel(r),
	}
	if req.Region == "" {
		req.Region = environment.DefaultRegion
	}
	if aq := r.AirQuality.Data; aq != nil {
		req.CO2Level = aq.Data.Current.CarbonDioxide
	}
	if ndvi := r.NDVI.Data; ndvi != nil && ndvi.CurrentNDVI == ndvi.CurrentNDVI {
		req.NDVI = ndvi.CurrentNDVI
	}
	if t := r.Temperature.Data; t != nil {
		req.Temperature = t.Value
	}
	return req, nil
}

func locationLabel(r Readings) string {
	if r.Location != nil {
		if r.Location.DisplayName != "" {
			return r.Location.DisplayName
		}
		return fmt.Sprintf("%.4f, %.4f", r.Location.Latitude, r.Location.Longitude)
	}
	if r.NDVI.Data != nil && r.NDVI.Data.Location.DisplayName != "" {
		return r.NDVI.Data.Location.DisplayName
	}
	if r.AirQuality.Data != nil {
		l := r.AirQuality.Data.Location
		return fmt.Sprintf("%.4f, %.4f", l.Latitude, l.Longitude)
	}
	return UnknownLocationName
}

// Narration is the combined AI output for one set of readings.
type Narration struct {
	Model           string
	Insights        []environment.Insight
	Recommendations []environment.Recommendation
	Usage           environment.Usage
}

// Narrator asks the gateway for insights and then for recommendations, using
// the preferred model.
type Narrator struct {
	source InsightSource
	model  *ModelPreference
	logger *slog.Logger
}

func NewNarrator(source InsightSource, model *ModelPreference, logger *slog.Logger) *Narrator {
	return &Narrator{source: source, model: model, logger: logger}
}

// Narrate builds the request from r and fetches insights and recommendations.
// Recommendations are skipped when no insights come back.
func (n *Narrator) Narrate(ctx context.Context, r Readings) (Narration, error) {
	req, err := BuildInsightRequest(r)
	if err != nil {
		return Narration{}, err
	}

	var model string
	if n.model != nil {
		model = n.model.Get()
	}
	req.Model = model

	insights, err := n.source.Insights(ctx, req)
	if err != nil {
		return Narration{}, fmt.Errorf("insights: %w", err)
	}

	out := Narration{Model: model, Insights: insights.Insights, Usage: insights.Usage}
	if len(insights.Insights) == 0 {
		n.logger.Info("no insights returned, skipping recommendations", "model", model)
		return out, nil
	}

	recs, err := n.source.Recommendations(ctx, environment.RecommendationRequest{
		Insights: insights.Insights,
		Model:    model,
	})
	if err != nil {
		return out, fmt.Errorf("recommendations: %w", err)
	}
	out.Recommendations = recs.Recommendations
	return out, nil
}
