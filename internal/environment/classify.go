package environment

import "math"

// NDVIClass is the human-facing interpretation of an NDVI value.
type NDVIClass struct {
	Status           string
	VegetationHealth string
	ColorCode        string
}

// ClassifyNDVI maps an NDVI value in [-1, 1] to a status, health label and
// display colour. Thresholds follow the usual MODIS vegetation bands.
func ClassifyNDVI(ndvi float64) NDVIClass {
	switch {
	case math.IsNaN(ndvi):
		return NDVIClass{Status: "No data", VegetationHealth: "Unknown", ColorCode: "#9e9e9e"}
	case ndvi < 0:
		return NDVIClass{Status: "Water or bare surface", VegetationHealth: "None", ColorCode: "#4575b4"}
	case ndvi < 0.1:
		return NDVIClass{Status: "Barren", VegetationHealth: "Very poor", ColorCode: "#d73027"}
	case ndvi < 0.2:
		return NDVIClass{Status: "Sparse vegetation", VegetationHealth: "Poor", ColorCode: "#fc8d59"}
	case ndvi < 0.4:
		return NDVIClass{Status: "Moderate vegetation", VegetationHealth: "Fair", ColorCode: "#fee08b"}
	case ndvi < 0.6:
		return NDVIClass{Status: "Healthy vegetation", VegetationHealth: "Good", ColorCode: "#91cf60"}
	default:
		return NDVIClass{Status: "Dense vegetation", VegetationHealth: "Excellent", ColorCode: "#1a9850"}
	}
}

// AQICategory maps a US AQI value to its EPA category name.
func AQICategory(aqi float64) string {
	switch {
	case aqi <= 0:
		return "Unknown"
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

// LatestValidNDVI returns the most recent point whose quality is usable.
// ok is false when the series has no usable point.
func LatestValidNDVI(trend []NDVIPoint) (NDVIPoint, bool) {
	for i := len(trend) - 1; i >= 0; i-- {
		if trend[i].Quality != QualityFill {
			return trend[i], true
		}
	}
	return NDVIPoint{}, false
}

var nanNDVI = math.NaN()

// NDVI point quality labels.
const (
	QualityGood     = "good"
	QualityMarginal = "marginal"
	QualityFill     = "fill"
)
