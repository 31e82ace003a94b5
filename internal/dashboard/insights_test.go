package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/observability"
)

func TestBuildInsightRequest_NoReadings(t *testing.T) {
	_, err := BuildInsightRequest(Readings{Location: &jakarta})
	var verr *environment.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestBuildInsightRequest_CombinesReadings(t *testing.T) {
	r := Readings{
		AirQuality: Reading[environment.AirQualityReport]{Data: &environment.AirQualityReport{
			Data: environment.AirQualityData{Current: environment.AirQualityCurrent{CarbonDioxide: 420.5}},
		}},
		NDVI:        Reading[environment.NDVIReport]{Data: &environment.NDVIReport{CurrentNDVI: 0.45}},
		Temperature: Reading[environment.TemperaturePoint]{Data: &environment.TemperaturePoint{Year: 2023, Value: 1.3}},
		Location:    &jakarta,
	}

	req, err := BuildInsightRequest(r)
	require.NoError(t, err)
	assert.Equal(t, environment.InsightRequest{
		CO2Level:    420.5,
		NDVI:        0.45,
		Temperature: 1.3,
		Location:    "Jakarta",
		Region:      environment.DefaultRegion,
	}, req)
}

func TestBuildInsightRequest_PartialReadings(t *testing.T) {
	req, err := BuildInsightRequest(Readings{
		Temperature: Reading[environment.TemperaturePoint]{Data: &environment.TemperaturePoint{Year: 2023, Value: 1.3}},
		Region:      "asia",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.3, req.Temperature)
	assert.Zero(t, req.CO2Level)
	assert.Equal(t, "asia", req.Region)
	assert.Equal(t, UnknownLocationName, req.Location)
}

type fakeInsights struct {
	insights   []environment.Insight
	err        error
	gotInsight environment.InsightRequest
	gotRecs    *environment.RecommendationRequest
}

func (f *fakeInsights) Insights(_ context.Context, req environment.InsightRequest) (environment.InsightResponse, error) {
	f.gotInsight = req
	if f.err != nil {
		return environment.InsightResponse{}, f.err
	}
	return environment.InsightResponse{Insights: f.insights, Usage: environment.Usage{TotalTokens: 120}}, nil
}

func (f *fakeInsights) Recommendations(_ context.Context, req environment.RecommendationRequest) (environment.RecommendationResponse, error) {
	f.gotRecs = &req
	return environment.RecommendationResponse{Recommendations: []environment.Recommendation{
		{Icon: "🌳", Title: "Plant trees", Priority: "high"},
	}}, nil
}

func temperatureOnly() Readings {
	return Readings{
		Temperature: Reading[environment.TemperaturePoint]{Data: &environment.TemperaturePoint{Year: 2023, Value: 1.3}},
		Location:    &jakarta,
	}
}

func TestNarrator_UsesPreferredModel(t *testing.T) {
	src := &fakeInsights{insights: []environment.Insight{{Title: "Warming trend", Severity: "high"}}}
	pref := NewModelPreference(&memoryPreferences{values: map[string]string{ModelPreferenceKey: "gemma2-9b-it"}}, environment.DefaultModel, observability.Discard())

	out, err := NewNarrator(src, pref, observability.Discard()).Narrate(context.Background(), temperatureOnly())
	require.NoError(t, err)

	assert.Equal(t, "gemma2-9b-it", src.gotInsight.Model)
	require.NotNil(t, src.gotRecs)
	assert.Equal(t, "gemma2-9b-it", src.gotRecs.Model)
	assert.Equal(t, src.insights, src.gotRecs.Insights)

	assert.Equal(t, "gemma2-9b-it", out.Model)
	assert.Len(t, out.Insights, 1)
	assert.Len(t, out.Recommendations, 1)
	assert.Equal(t, 120, out.Usage.TotalTokens)
}

func TestNarrator_SkipsRecommendationsWithoutInsights(t *testing.T) {
	src := &fakeInsights{}

	out, err := NewNarrator(src, nil, observability.Discard()).Narrate(context.Background(), temperatureOnly())
	require.NoError(t, err)
	assert.Nil(t, src.gotRecs)
	assert.Empty(t, out.Recommendations)
}

func TestNarrator_SurfacesNotConfigured(t *testing.T) {
	src := &fakeInsights{err: &environment.HTTPError{Status: 500, Message: environment.ErrLLMNotConfigured.Error()}}

	_, err := NewNarrator(src, nil, observability.Discard()).Narrate(context.Background(), temperatureOnly())
	var httpErr *environment.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "Groq API key not configured", httpErr.Message)
}
