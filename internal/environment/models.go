package environment

import (
	"fmt"
	"time"
)

// DateLayout is the ISO date format used for selected dates and upstream queries.
const DateLayout = "2006-01-02"

// Location is a coordinate pair with an optional human-readable name.
// It is replaced wholesale whenever the position changes.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"displayName,omitempty"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f:%.4f", l.Latitude, l.Longitude)
}

// Validate reports whether the coordinates are within range.
func (l Location) Validate() error {
	return ValidateCoordinates(l.Latitude, l.Longitude)
}

// ParseDate validates an ISO date string. Empty input is allowed and means "latest".
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Message: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
	}
	return t, nil
}

// AirQualityCurrent holds pollutant concentrations for one instant.
type AirQualityCurrent struct {
	Time            string  `json:"time"`
	CarbonDioxide   float64 `json:"carbon_dioxide"`
	CarbonMonoxide  float64 `json:"carbon_monoxide"`
	NitrogenDioxide float64 `json:"nitrogen_dioxide"`
	SulphurDioxide  float64 `json:"sulphur_dioxide"`
	Ozone           float64 `json:"ozone"`
	PM10            float64 `json:"pm10"`
	PM25            float64 `json:"pm2_5"`
	USAQI           float64 `json:"us_aqi"`
}

// AirQualityData mirrors the upstream current/current_units pair.
type AirQualityData struct {
	Current      AirQualityCurrent `json:"current"`
	CurrentUnits map[string]string `json:"current_units,omitempty"`
}

// AirQualityMetadata describes where and when a reading came from.
type AirQualityMetadata struct {
	Source    string    `json:"source"`
	Date      string    `json:"date,omitempty"`
	Category  string    `json:"category"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// AirQualityReport is the gateway response for the air-quality endpoint.
type AirQualityReport struct {
	Success  bool               `json:"success"`
	Data     AirQualityData     `json:"data"`
	Location Location           `json:"location"`
	Metadata AirQualityMetadata `json:"metadata"`
}

// NDVIPoint is one composite observation in an NDVI time series.
type NDVIPoint struct {
	Date    string  `json:"date"`
	NDVI    float64 `json:"ndvi"`
	Quality string  `json:"quality"`
}

// NDVIReport is the gateway response for the NDVI endpoint.
type NDVIReport struct {
	Location         Location    `json:"location"`
	CurrentNDVI      float64     `json:"currentNDVI"`
	NDVIStatus       string      `json:"ndviStatus"`
	VegetationHealth string      `json:"vegetationHealth"`
	ColorCode        string      `json:"colorCode"`
	Trend            []NDVIPoint `json:"trend"`
	LastUpdate       string      `json:"lastUpdate"`
	Source           string      `json:"source"`
}

// TemperaturePoint is a yearly temperature anomaly in degrees Celsius.
type TemperaturePoint struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// TemperatureSeries is the gateway response for the temperature endpoint.
type TemperatureSeries struct {
	Success bool               `json:"success"`
	Region  string             `json:"region,omitempty"`
	Data    []TemperaturePoint `json:"data"`
}

// Place is the result of reverse geocoding a coordinate.
type Place struct {
	City        string            `json:"city"`
	State       string            `json:"state"`
	Country     string            `json:"country"`
	FullName    string            `json:"fullName"`
	DisplayName string            `json:"displayName"`
	Address     map[string]string `json:"address,omitempty"`
}

// GeocodeResponse is the gateway response for the geocode endpoint.
type GeocodeResponse struct {
	Success bool  `json:"success"`
	Data    Place `json:"data"`
}

// Insight is one AI-generated observation about the current readings.
type Insight struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Severity   string   `json:"severity"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

// Usage reports LLM token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// InsightRequest is the aggregated set of readings sent for narration.
type InsightRequest struct {
	CO2Level    float64 `json:"co2Level" validate:"gte=0"`
	NDVI        float64 `json:"ndvi" validate:"gte=-1,lte=1"`
	Temperature float64 `json:"temperature"`
	Location    string  `json:"location"`
	Region      string  `json:"region"`
	Model       string  `json:"model,omitempty"`
}

// InsightResponse is the gateway response for the AI insight endpoint.
type InsightResponse struct {
	Insights []Insight `json:"insights"`
	Usage    Usage     `json:"usage"`
}

// Recommendation is one suggested action derived from insights.
type Recommendation struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// RecommendationRequest carries the insights to turn into actions.
type RecommendationRequest struct {
	Insights []Insight `json:"insights" validate:"required,min=1"`
	Model    string    `json:"model,omitempty"`
}

// RecommendationResponse is the gateway response for the AI recommendation endpoint.
type RecommendationResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
}

// Snapshot is a stored reading set for a tracked location at a point in time.
// Either reading may be nil when that source failed.
type Snapshot struct {
	Location   Location          `json:"location"`
	Timestamp  time.Time         `json:"timestamp"` // always UTC
	AirQuality *AirQualityReport `json:"airQuality,omitempty"`
	NDVI       *NDVIReport       `json:"ndvi,omitempty"`

	// Sources contributing to this snapshot.
	Sources []SourceContribution `json:"sources,omitempty"`
}

// SourceContribution describes data coming from a single upstream used in a snapshot.
type SourceContribution struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}
