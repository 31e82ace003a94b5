package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/i474232898/karwanua/internal/environment"
)

// Client talks to the Karwanua gateway. It sets no timeout of its own: a hung
// request stays loading until its context is cancelled.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// AirQuality fetches the air-quality report for loc on date (empty for latest).
func (c *Client) AirQuality(ctx context.Context, loc environment.Location, date string) (*environment.AirQualityReport, error) {
	params := coordinateParams(loc)
	if date != "" {
		params.Set("date", date)
	}

	var out environment.AirQualityReport
	if err := c.getJSON(ctx, "/api/v1/air-quality", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NDVI fetches the vegetation report for loc on date (empty for latest).
func (c *Client) NDVI(ctx context.Context, loc environment.Location, date string) (*environment.NDVIReport, error) {
	params := coordinateParams(loc)
	if loc.DisplayName != "" {
		params.Set("name", loc.DisplayName)
	}
	if date != "" {
		params.Set("date", date)
	}

	var out environment.NDVIReport
	if err := c.getJSON(ctx, "/api/v1/ndvi", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TemperatureAnomaly fetches the yearly anomaly series for region.
func (c *Client) TemperatureAnomaly(ctx context.Context, region string) (*environment.TemperatureSeries, error) {
	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}

	var out environment.TemperatureSeries
	if err := c.getJSON(ctx, "/api/v1/temperature", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReverseGeocode resolves a coordinate to a place through the gateway.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (environment.Place, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))

	var out environment.GeocodeResponse
	if err := c.getJSON(ctx, "/api/v1/geocode", params, &out); err != nil {
		return environment.Place{}, err
	}
	return out.Data, nil
}

// Insights requests AI insights for the aggregated readings.
func (c *Client) Insights(ctx context.Context, req environment.InsightRequest) (environment.InsightResponse, error) {
	var out environment.InsightResponse
	err := c.postJSON(ctx, "/api/v1/ai-insights", req, &out)
	return out, err
}

// Recommendations requests actions for a set of insights.
func (c *Client) Recommendations(ctx context.Context, req environment.RecommendationRequest) (environment.RecommendationResponse, error) {
	var out environment.RecommendationResponse
	err := c.postJSON(ctx, "/api/v1/ai-recommendations", req, &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.logger.Debug("gateway request", "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &environment.HTTPError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
		}
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &body) == nil {
			httpErr.Message = body.Error
		}
		return httpErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &environment.ParseError{Raw: string(raw), Err: err}
	}
	return nil
}

func coordinateParams(loc environment.Location) url.Values {
	params := url.Values{}
	params.Set("latitude", formatCoord(loc.Latitude))
	params.Set("longitude", formatCoord(loc.Longitude))
	return params
}

// formatCoord renders a coordinate with the shortest exact representation.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
