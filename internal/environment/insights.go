package environment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const insightSystemPrompt = `You are an environmental analyst. You reply with a JSON array only, no prose.`

// InsightPrompt renders the readings into the prompt sent to the model.
func InsightPrompt(req InsightRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s\n", orDefault(req.Location, "unknown"))
	fmt.Fprintf(&b, "Region: %s\n", orDefault(req.Region, "global"))
	fmt.Fprintf(&b, "CO2 concentration: %.1f ppm\n", req.CO2Level)
	fmt.Fprintf(&b, "NDVI: %.3f (%s)\n", req.NDVI, ClassifyNDVI(req.NDVI).Status)
	fmt.Fprintf(&b, "Temperature anomaly: %+.2f °C\n\n", req.Temperature)
	b.WriteString(`Produce 3 to 5 insights as a JSON array of objects with keys ` +
		`"title", "summary", "severity" (one of "low","medium","high","critical"), ` +
		`"confidence" (0-1) and "tags" (array of strings).`)
	return b.String()
}

// RecommendationPrompt renders insights into the prompt for actionable recommendations.
func RecommendationPrompt(insights []Insight) (string, error) {
	raw, err := json.Marshal(insights)
	if err != nil {
		return "", fmt.Errorf("marshal insights: %w", err)
	}
	return "Given these environmental insights:\n" + string(raw) + "\n\n" +
		`Produce 3 to 5 recommendations as a JSON array of objects with keys ` +
		`"icon" (a single emoji), "title", "description" and "priority" (one of "low","medium","high").`, nil
}

// ParseInsights extracts the insight array from a model reply.
func ParseInsights(content string) ([]Insight, error) {
	return decodeJSONArray[Insight](content)
}

// ParseRecommendations extracts the recommendation array from a model reply.
func ParseRecommendations(content string) ([]Recommendation, error) {
	return decodeJSONArray[Recommendation](content)
}

// decodeJSONArray tolerates code fences and surrounding prose: it decodes the
// text between the first '[' and the last ']'.
func decodeJSONArray[T any](content string) ([]T, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, &ParseError{Raw: content, Err: errors.New("no JSON array in model reply")}
	}

	var out []T
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, &ParseError{Raw: content, Err: err}
	}
	return out, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
