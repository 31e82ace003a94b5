package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/karwanua/internal/environment"
)

var openMeteoPollutants = []string{
	"carbon_dioxide",
	"carbon_monoxide",
	"nitrogen_dioxide",
	"sulphur_dioxide",
	"ozone",
	"pm10",
	"pm2_5",
	"us_aqi",
}

// OpenMeteoProvider implements environment.AirQualityProvider for the Open-Meteo air-quality API.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOpenMeteoProvider creates an air-quality provider. Open-Meteo needs no API key.
func NewOpenMeteoProvider(cfg HTTPClientConfig) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "open-meteo",
		baseURL: "https://air-quality-api.open-meteo.com/v1/air-quality",
		httpCfg: cfg,
		circuit: newCircuitBreaker("open-meteo", cfg.Metrics),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// AirQuality returns the current reading, or the midday reading of date when
// date is set (Open-Meteo only serves hourly series for past days).
func (p *OpenMeteoProvider) AirQuality(ctx context.Context, loc environment.Location, date string) (environment.AirQualityData, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		if date == "" {
			values.Set("current", strings.Join(openMeteoPollutants, ","))
		} else {
			values.Set("hourly", strings.Join(openMeteoPollutants, ","))
			values.Set("start_date", date)
			values.Set("end_date", date)
		}
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return environment.AirQualityData{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		CurrentUnits map[string]string             `json:"current_units"`
		Current      *environment.AirQualityCurrent `json:"current"`
		HourlyUnits  map[string]string             `json:"hourly_units"`
		Hourly       map[string]json.RawMessage    `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return environment.AirQualityData{}, &environment.ParseError{Err: err}
	}

	if date == "" {
		if payload.Current == nil {
			return environment.AirQualityData{}, &environment.ParseError{Err: fmt.Errorf("response has no current block")}
		}
		return environment.AirQualityData{
			Current:      *payload.Current,
			CurrentUnits: payload.CurrentUnits,
		}, nil
	}

	current, err := pickHourly(payload.Hourly)
	if err != nil {
		return environment.AirQualityData{}, err
	}
	return environment.AirQualityData{
		Current:      current,
		CurrentUnits: payload.HourlyUnits,
	}, nil
}

// pickHourly collapses an hourly series to one reading: 12:00 UTC if present,
// otherwise the last hour that has a PM2.5 value.
func pickHourly(hourly map[string]json.RawMessage) (environment.AirQualityCurrent, error) {
	var times []string
	if err := json.Unmarshal(hourly["time"], &times); err != nil || len(times) == 0 {
		return environment.AirQualityCurrent{}, &environment.ParseError{Err: fmt.Errorf("hourly series has no timestamps")}
	}

	series := make(map[string][]*float64, len(openMeteoPollutants))
	for _, name := range openMeteoPollutants {
		raw, ok := hourly[name]
		if !ok {
			continue
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return environment.AirQualityCurrent{}, &environment.ParseError{Err: fmt.Errorf("hourly %s: %w", name, err)}
		}
		series[name] = values
	}

	idx := -1
	for i, ts := range times {
		if strings.HasSuffix(ts, "T12:00") {
			idx = i
			break
		}
	}
	if idx < 0 || valueAt(series["pm2_5"], idx) == nil {
		for i := len(times) - 1; i >= 0; i-- {
			if valueAt(series["pm2_5"], i) != nil {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		idx = len(times) - 1
	}

	get := func(name string) float64 {
		if v := valueAt(series[name], idx); v != nil {
			return *v
		}
		return 0
	}

	return environment.AirQualityCurrent{
		Time:            times[idx],
		CarbonDioxide:   get("carbon_dioxide"),
		CarbonMonoxide:  get("carbon_monoxide"),
		NitrogenDioxide: get("nitrogen_dioxide"),
		SulphurDioxide:  get("sulphur_dioxide"),
		Ozone:           get("ozone"),
		PM10:            get("pm10"),
		PM25:            get("pm2_5"),
		USAQI:           get("us_aqi"),
	}, nil
}

func valueAt(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}
