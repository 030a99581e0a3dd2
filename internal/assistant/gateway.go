// Package assistant answers free-form questions about the user's spending
// through the Gemini generative language API.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"monee/internal/core"
	applog "monee/internal/log"
)

const (
	DefaultEndpoint        = "https://generativelanguage.googleapis.com/"
	DefaultModel           = "models/gemini-1.5-flash-latest"
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 500
	DefaultTimeout         = 30 * time.Second
)

var (
	ErrMissingAPIKey = errors.New("assistant API key is not configured")
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrNoAnswer      = errors.New("assistant returned no answer")
)

type Config struct {
	Model           string
	Endpoint        string // empty uses DefaultEndpoint
	Temperature     float64
	MaxOutputTokens int64
	Timeout         time.Duration
}

func DefaultConfig() Config {
	return Config{
		Model:           DefaultModel,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Timeout:         DefaultTimeout,
	}
}

type Gateway struct {
	cfg    Config
	logger *applog.Logger
}

// NewGateway fills unset config fields with defaults.
func NewGateway(cfg Config, logger *applog.Logger) *Gateway {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = def.Model
	}
	if !strings.HasPrefix(cfg.Model, "models/") {
		cfg.Model = "models/" + cfg.Model
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Gateway{cfg: cfg, logger: logger.WithComponent(applog.ComponentAssistant)}
}

// Ask sends one question with the expense context and returns the model's text.
// Input problems are reported before any request is made. There is no retry.
func (g *Gateway) Ask(ctx context.Context, apiKey string, records []core.Expense, question string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	client, _, err := htransport.NewClient(ctx, goption.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("generative language client: %w", err)
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: Prompt(records, question)}}}},
		GenerationConfig: generationConfig{
			Temperature:     g.cfg.Temperature,
			MaxOutputTokens: g.cfg.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	resp, err := g.generate(ctx, client, body)
	if err != nil {
		g.logger.WarnContext(ctx, "Assistant request failed",
			applog.FieldOperation, applog.OpAsk,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldError, err)
		return "", fmt.Errorf("generate content: %w", err)
	}

	answer := firstText(resp)
	if answer == "" {
		return "", ErrNoAnswer
	}
	g.logger.InfoContext(ctx, "Assistant answered",
		applog.FieldOperation, applog.OpAsk,
		applog.FieldDuration, time.Since(start).Milliseconds(),
		applog.FieldRecordCount, len(records))
	return answer, nil
}

func (g *Gateway) generate(ctx context.Context, client *http.Client, body []byte) (*generateResponse, error) {
	endpoint := g.cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	url := strings.TrimSuffix(endpoint, "/") + "/v1beta/" + g.cfg.Model + ":generateContent"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer googleapi.CloseBody(res)
	if err := googleapi.CheckResponse(res); err != nil {
		return nil, err
	}

	var out generateResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func firstText(resp *generateResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}
