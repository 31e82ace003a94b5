package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/i474232898/karwanua/internal/environment"
)

const (
	modisProduct   = "MOD13Q1"
	modisNDVIBand  = "250m_16_days_NDVI"
	modisNDVIScale = 0.0001
	modisFillValue = -3000

	// ndviWindow covers six 16-day composites ending at the requested date.
	ndviWindow = 96 * 24 * time.Hour
)

// MODISProvider implements environment.NDVIProvider using the ORNL DAAC MODIS
// subset web service for NASA MOD13Q1 vegetation indices.
type MODISProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	clock   clockwork.Clock
}

// NewMODISProvider creates an NDVI provider. clock decides "today" when no date is given.
func NewMODISProvider(cfg HTTPClientConfig, clock clockwork.Clock) *MODISProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MODISProvider{
		name:    "nasa-modis",
		baseURL: "https://modis.ornl.gov/rst/api/v1",
		httpCfg: cfg,
		circuit: newCircuitBreaker("nasa-modis", cfg.Metrics),
		clock:   clock,
	}
}

func (p *MODISProvider) Name() string {
	return p.name
}

// NDVISeries returns the composites in the window ending at date, oldest first.
func (p *MODISProvider) NDVISeries(ctx context.Context, loc environment.Location, date string) ([]environment.NDVIPoint, error) {
	end := p.clock.Now().UTC()
	if date != "" {
		t, err := environment.ParseDate(date)
		if err != nil {
			return nil, err
		}
		end = t
	}
	start := end.Add(-ndviWindow)

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("band", modisNDVIBand)
		values.Set("startDate", modisDate(start))
		values.Set("endDate", modisDate(end))
		values.Set("kmAboveBelow", "0")
		values.Set("kmLeftRight", "0")

		u := fmt.Sprintf("%s/%s/subset?%s", p.baseURL, modisProduct, values.Encode())
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
		Subset []struct {
			CalendarDate string    `json:"calendar_date"`
			Band         string    `json:"band"`
			Data         []float64 `json:"data"`
		} `json:"subset"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &environment.ParseError{Err: err}
	}

	points := make([]environment.NDVIPoint, 0, len(payload.Subset))
	for _, s := range payload.Subset {
		if s.Band != "" && s.Band != modisNDVIBand {
			continue
		}
		if len(s.Data) == 0 {
			continue
		}
		points = append(points, scaleNDVI(s.CalendarDate, s.Data[0]))
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

// scaleNDVI converts a raw MOD13Q1 integer to an NDVI value with a quality label.
func scaleNDVI(date string, raw float64) environment.NDVIPoint {
	if raw <= modisFillValue {
		return environment.NDVIPoint{Date: date, Quality: environment.QualityFill}
	}
	v := raw * modisNDVIScale
	quality := environment.QualityGood
	if v < -0.2 || v > 1 {
		quality = environment.QualityMarginal
	}
	return environment.NDVIPoint{Date: date, NDVI: v, Quality: quality}
}

// modisDate formats t as the service's "AYYYYDDD" day-of-year form.
func modisDate(t time.Time) string {
	return fmt.Sprintf("A%04d%03d", t.Year(), t.YearDay())
}
