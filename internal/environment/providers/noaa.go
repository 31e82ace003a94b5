package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/i474232898/karwanua/internal/environment"
)

// noaaRegions lists the Climate at a Glance global regions we expose.
var noaaRegions = map[string]bool{
	"globe":        true,
	"nhem":         true,
	"shem":         true,
	"africa":       true,
	"asia":         true,
	"europe":       true,
	"northAmerica": true,
	"southAmerica": true,
	"oceania":      true,
	"arctic":       true,
	"antarctic":    true,
}

// NOAAProvider implements environment.TemperatureProvider using NOAA NCEI
// "Climate at a Glance" annual land+ocean anomaly series.
type NOAAProvider struct {
	name      string
	baseURL   string
	firstYear int
	httpCfg   HTTPClientConfig
	circuit   *gobreaker.CircuitBreaker
	clock     clockwork.Clock
}

// NewNOAAProvider creates a temperature-anomaly provider.
func NewNOAAProvider(cfg HTTPClientConfig, clock clockwork.Clock) *NOAAProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NOAAProvider{
		name:      "noaa-ncei",
		baseURL:   "https://www.ncei.noaa.gov/access/monitoring/climate-at-a-glance/global/time-series",
		firstYear: 1850,
		httpCfg:   cfg,
		circuit:   newCircuitBreaker("noaa-ncei", cfg.Metrics),
		clock:     clock,
	}
}

func (p *NOAAProvider) Name() string {
	return p.name
}

// Anomalies returns yearly anomalies for region, oldest first.
func (p *NOAAProvider) Anomalies(ctx context.Context, region string) ([]environment.TemperaturePoint, error) {
	if !noaaRegions[region] {
		return nil, &environment.ValidationError{Field: "region", Message: fmt.Sprintf("unknown region %q", region)}
	}
	lastYear := p.clock.Now().UTC().Year() - 1

	buildRequest := func() (*http.Request, error) {
		// 12-month timescale ending in December gives one annual value per year.
		u := fmt.Sprintf("%s/%s/land_ocean/12/12/%d-%d/data.json", p.baseURL, region, p.firstYear, lastYear)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &environment.ParseError{Err: err}
	}

	points := make([]environment.TemperaturePoint, 0, len(payload.Data))
	for key, raw := range payload.Data {
		if len(key) < 4 {
			continue
		}
		year, err := strconv.Atoi(key[:4])
		if err != nil {
			continue
		}
		value, err := parseAnomaly(raw)
		if err != nil {
			return nil, &environment.ParseError{Raw: string(raw), Err: fmt.Errorf("year %d: %w", year, err)}
		}
		points = append(points, environment.TemperaturePoint{Year: year, Value: value})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Year < points[j].Year })
	return points, nil
}

// parseAnomaly accepts both the current {"anomaly": n} shape and the older
// bare string or number values.
func parseAnomaly(raw json.RawMessage) (float64, error) {
	var obj struct {
		Anomaly *float64 `json:"anomaly"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Anomaly != nil {
		return *obj.Anomaly, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
