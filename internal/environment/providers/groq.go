package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/i474232898/karwanua/internal/environment"
)

// GroqProvider implements environment.ChatCompleter against Groq's
// OpenAI-compatible chat-completions endpoint.
type GroqProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewGroqProvider creates a chat provider. Callers should not construct one
// without a key; the service treats a nil provider as unconfigured.
func NewGroqProvider(cfg HTTPClientConfig, apiKey string) *GroqProvider {
	// Model calls are expensive; do not multiply them on transient failures.
	cfg.Backoff.MaxRetries = 1
	return &GroqProvider{
		name:    "groq",
		apiKey:  apiKey,
		baseURL: "https://api.groq.com/openai/v1/chat/completions",
		httpCfg: cfg,
		circuit: newCircuitBreaker("groq", cfg.Metrics),
	}
}

func (p *GroqProvider) Name() string {
	return p.name
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
	Usage environment.Usage `json:"usage"`
}

// Complete sends a single-turn prompt and returns the first choice.
func (p *GroqProvider) Complete(ctx context.Context, req environment.ChatRequest) (environment.ChatResponse, error) {
	if p.apiKey == "" {
		return environment.ChatResponse{}, environment.ErrLLMNotConfigured
	}

	messages := make([]groqMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, groqMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, groqMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(groqRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return environment.ChatResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	buildRequest := func() (*http.Request, error) {
		httpReq, err := http.NewRequest(http.MethodPost, p.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return environment.ChatResponse{}, err
	}
	defer resp.Body.Close()

	var payload groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return environment.ChatResponse{}, &environment.ParseError{Err: err}
	}
	if len(payload.Choices) == 0 {
		return environment.ChatResponse{}, &environment.ParseError{Err: errors.New("model returned no choices")}
	}

	return environment.ChatResponse{
		Content: payload.Choices[0].Message.Content,
		Usage:   payload.Usage,
	}, nil
}
