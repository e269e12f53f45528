package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/sentradar/internal/logging"
)

const systemPrompt = "You are a senior market analyst. Respond only with your analysis report in well-structured markdown."

// ErrNoAPIKey is returned when report generation is attempted without credentials.
var ErrNoAPIKey = errors.New("report: no api key configured")

// Generator writes narrative reports with an LLM.
type Generator struct {
	client    *http.Client
	provider  string // "openai" or "anthropic"
	model     string
	apiKey    string
	baseURL   string
	maxTokens int
	log       logging.Logger
}

// GeneratorConfig carries the provider settings.
type GeneratorConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// NewGenerator creates a Generator. Provider defaults to anthropic.
func NewGenerator(cfg GeneratorConfig, log logging.Logger) *Generator {
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.Model == "" {
		switch cfg.Provider {
		case "anthropic":
			cfg.Model = "claude-sonnet-4-5"
		default:
			cfg.Model = "gpt-4o-mini"
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Generator{
		client:    &http.Client{Timeout: cfg.Timeout},
		provider:  cfg.Provider,
		model:     cfg.Model,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens: cfg.MaxTokens,
		log:       log,
	}
}

// Configured reports whether an API key is present.
func (g *Generator) Configured() bool { return g != nil && g.apiKey != "" }

// Generate sends the prompt and returns the markdown report.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if !g.Configured() {
		return "", ErrNoAPIKey
	}
	start := time.Now()

	var (
		text string
		err  error
	)
	switch g.provider {
	case "anthropic":
		text, err = g.callAnthropic(ctx, prompt)
	default:
		text, err = g.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return "", err
	}

	g.log.WithFields(logging.Fields{
		"provider": g.provider,
		"model":    g.model,
		"chars":    len(text),
		"elapsed":  time.Since(start).Round(time.Millisecond),
	}).Info("report generated")
	return stripFence(text), nil
}

// stripFence removes a markdown code fence wrapping the whole reply.
func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
		raw = raw[3+idx+1:]
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func (g *Generator) callOpenAI(ctx context.Context, prompt string) (string, error) {
	baseURL := g.baseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	payload := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  g.maxTokens,
		"temperature": 0.3,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (g *Generator) callAnthropic(ctx context.Context, prompt string) (string, error) {
	baseURL := g.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      g.model,
		"max_tokens": g.maxTokens,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var parts []string
	for _, c := range result.Content {
		if c.Type == "" || c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return strings.Join(parts, ""), nil
}
