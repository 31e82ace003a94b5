package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/observability"
	"github.com/i474232898/karwanua/internal/store"
)

type fakeAirQuality struct {
	gotLoc  environment.Location
	gotDate string
}

func (f *fakeAirQuality) Name() string { return "fake-aq" }

func (f *fakeAirQuality) AirQuality(_ context.Context, loc environment.Location, date string) (environment.AirQualityData, error) {
	f.gotLoc, f.gotDate = loc, date
	return environment.AirQualityData{
		Current:      environment.AirQualityCurrent{CarbonDioxide: 420.5, PM25: 12, USAQI: 42},
		CurrentUnits: map[string]string{"carbon_dioxide": "ppm"},
	}, nil
}

type fakeGeocoder struct {
	calls int
	err   error
}

func (f *fakeGeocoder) Name() string { return "fake-geo" }

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (environment.Place, error) {
	f.calls++
	if f.err != nil {
		return environment.Place{}, f.err
	}
	return environment.Place{City: "Jakarta", Country: "Indonesia", DisplayName: "Jakarta"}, nil
}

type fakeTemperature struct{}

func (fakeTemperature) Name() string { return "fake-temp" }

func (fakeTemperature) Anomalies(_ context.Context, _ string) ([]environment.TemperaturePoint, error) {
	return []environment.TemperaturePoint{{Year: 2022, Value: 1.1}, {Year: 2023, Value: 1.3}}, nil
}

type fakeLLM struct {
	reply string
	calls int
}

func (f *fakeLLM) Name() string { return "fake-llm" }

func (f *fakeLLM) Complete(_ context.Context, _ environment.ChatRequest) (environment.ChatResponse, error) {
	f.calls++
	return environment.ChatResponse{Content: f.reply, Usage: environment.Usage{TotalTokens: 99}}, nil
}

func newTestApp(p environment.Providers) *fiber.App {
	svc := environment.NewService(store.NewMemoryStore(10, time.Hour), p, observability.Discard())
	return NewApp(svc, observability.Discard(), false)
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func TestAirQuality_PassesCoordinatesAndDate(t *testing.T) {
	aq := &fakeAirQuality{}
	app := newTestApp(environment.Providers{AirQuality: aq})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/air-quality?latitude=-6.2088&longitude=106.8456&date=2024-06-01", nil)
	resp, body := doRequest(t, app, req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	current := data["current"].(map[string]any)
	assert.Equal(t, 420.5, current["carbon_dioxide"])
	assert.Equal(t, "2024-06-01", aq.gotDate)
	assert.InDelta(t, -6.2088, aq.gotLoc.Latitude, 1e-9)
	assert.Equal(t, "Good", body["metadata"].(map[string]any)["category"])
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestAirQuality_RejectsBadDate(t *testing.T) {
	app := newTestApp(environment.Providers{AirQuality: &fakeAirQuality{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/air-quality?latitude=1&longitude=2&date=June", nil)
	resp, _ := doRequest(t, app, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGeocode_RejectsOutOfRangeBeforeUpstream(t *testing.T) {
	geo := &fakeGeocoder{}
	app := newTestApp(environment.Providers{Geocoder: geo})

	for _, query := range []string{"lat=91&lon=0", "lat=0&lon=-200", "lat=10", ""} {
		t.Run(query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/geocode?"+query, nil)
			resp, body := doRequest(t, app, req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Zero(t, geo.calls)
}

func TestGeocode_Success(t *testing.T) {
	app := newTestApp(environment.Providers{Geocoder: &fakeGeocoder{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/geocode?lat=-6.2088&lon=106.8456", nil)
	resp, body := doRequest(t, app, req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Jakarta", body["data"].(map[string]any)["city"])
}

func TestGeocode_UpstreamFailureIs500(t *testing.T) {
	app := newTestApp(environment.Providers{Geocoder: &fakeGeocoder{err: errors.New("boom")}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/geocode?lat=1&lon=1", nil)
	resp, _ := doRequest(t, app, req)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestTemperature_ReturnsSeries(t *testing.T) {
	app := newTestApp(environment.Providers{Temperature: fakeTemperature{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/temperature", nil)
	resp, body := doRequest(t, app, req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "globe", body["region"])
	assert.Len(t, body["data"], 2)
}

func TestInsights_WithoutKey(t *testing.T) {
	app := newTestApp(environment.Providers{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai-insights",
		strings.NewReader(`{"co2Level":420.5,"ndvi":0.5,"temperature":1.3,"location":"Jakarta","region":"Asia"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, body := doRequest(t, app, req)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Groq API key not configured", body["error"])
}

func TestInsights_ParsesFencedReply(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n[{\"title\":\"High CO2\",\"summary\":\"Above baseline\",\"severity\":\"medium\",\"confidence\":0.8,\"tags\":[\"air\"]}]\n```"}
	app := newTestApp(environment.Providers{LLM: llm})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai-insights",
		strings.NewReader(`{"co2Level":420.5,"ndvi":0.5,"temperature":1.3,"location":"Jakarta"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, body := doRequest(t, app, req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	insights := body["insights"].([]any)
	require.Len(t, insights, 1)
	assert.Equal(t, "High CO2", insights[0].(map[string]any)["title"])
	assert.Equal(t, float64(99), body["usage"].(map[string]any)["total_tokens"])
	assert.Equal(t, 1, llm.calls)
}

func TestInsights_UnparseableReplyCarriesRaw(t *testing.T) {
	app := newTestApp(environment.Providers{LLM: &fakeLLM{reply: "I cannot help with that."}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai-insights", strings.NewReader(`{"co2Level":400}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, body := doRequest(t, app, req)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "I cannot help with that.", body["raw"])
}

func TestRecommendations_RequiresInsights(t *testing.T) {
	llm := &fakeLLM{reply: `[]`}
	app := newTestApp(environment.Providers{LLM: llm})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai-recommendations", strings.NewReader(`{"insights":[]}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ := doRequest(t, app, req)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, llm.calls)
}

func TestRecommendations_Success(t *testing.T) {
	llm := &fakeLLM{reply: `[{"icon":"🌳","title":"Plant trees","description":"Increase cover","priority":"high"}]`}
	app := newTestApp(environment.Providers{LLM: llm})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai-recommendations",
		strings.NewReader(`{"insights":[{"title":"Low NDVI","summary":"Sparse","severity":"high","confidence":0.7,"tags":[]}]}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, body := doRequest(t, app, req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	recs := body["recommendations"].([]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "Plant trees", recs[0].(map[string]any)["title"])
}

func TestTiles_RedirectsToGIBS(t *testing.T) {
	app := newTestApp(environment.Providers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tiles/ndvi/2/3/1?date=2024-06-01", nil)
	resp, _ := doRequest(t, app, req)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t,
		"https://gibs.earthdata.nasa.gov/wmts/epsg3857/best/MODIS_Terra_NDVI_8Day/default/2024-06-01/GoogleMapsCompatible_Level9/2/1/3.png",
		resp.Header.Get(fiber.HeaderLocation))
}

func TestTiles_UnknownLayer(t *testing.T) {
	app := newTestApp(environment.Providers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tiles/radar/2/3/1?date=2024-06-01", nil)
	resp, _ := doRequest(t, app, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTiles_Locate(t *testing.T) {
	app := newTestApp(environment.Providers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tiles/truecolor/locate?lat=-6.2088&lon=106.8456&zoom=5&date=2024-06-01", nil)
	resp, body := doRequest(t, app, req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(25), body["x"])
	assert.Equal(t, float64(16), body["y"])
}

func TestSnapshots_LatestNotFound(t *testing.T) {
	app := newTestApp(environment.Providers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/latest?latitude=1&longitude=2", nil)
	resp, _ := doRequest(t, app, req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSnapshots_HistoryValidation(t *testing.T) {
	app := newTestApp(environment.Providers{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/snapshots/history?latitude=1&longitude=2&from=2024-06-02T00:00:00Z&to=2024-06-01T00:00:00Z", nil)
	resp, _ := doRequest(t, app, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app := newTestApp(environment.Providers{})

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
