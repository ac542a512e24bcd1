package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"modelhub_go_backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SentinelAPIKey switches the gateway into offline simulation.
const SentinelAPIKey = "sk-or-v1-provisional-demo-key-for-testing"

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultCompletionTimeout = 60 * time.Second
	defaultVerifyTimeout     = 10 * time.Second
)

// FallbackCost is charged when a model has no catalog pricing.
var FallbackCost = decimal.RequireFromString("0.0001")

var tokensPerMillion = decimal.NewFromInt(1_000_000)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type CompletionResult struct {
	Content      string
	ProviderID   string
	Model        string
	Usage        TokenUsage
	ResponseTime time.Duration
}

// ProviderError is the only error type Complete returns.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return e.Message
}

type CostBreakdown struct {
	PromptCost     decimal.Decimal
	CompletionCost decimal.Decimal
	Total          decimal.Decimal
	// Fallback is set when the model had no catalog entry.
	Fallback bool
}

// PricingLookup supplies per-million token prices.
type PricingLookup interface {
	GetModelByModelID(ctx context.Context, modelID string) (*models.AIModel, error)
}

type OpenRouterConfig struct {
	APIKey        string
	BaseURL       string
	Referer       string
	Title         string
	Timeout       time.Duration
	VerifyTimeout time.Duration
}

type OpenRouterService struct {
	cfg        OpenRouterConfig
	httpClient *http.Client
	pricing    PricingLookup

	// overridable in tests
	sleep   func(ctx context.Context, d time.Duration) error
	randF   func() float64
	randN   func(n int) int
	nowFunc func() time.Time
}

func NewOpenRouterService(cfg OpenRouterConfig, pricing PricingLookup) *OpenRouterService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCompletionTimeout
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = defaultVerifyTimeout
	}
	return &OpenRouterService{
		cfg:        cfg,
		httpClient: &http.Client{},
		pricing:    pricing,
		sleep:      sleepContext,
		randF:      rand.Float64,
		randN:      rand.Intn,
		nowFunc:    time.Now,
	}
}

// WithSimulationClock replaces the randomness and delay used by the offline mode.
func (s *OpenRouterService) WithSimulationClock(sleep func(context.Context, time.Duration) error, randF func() float64, randN func(int) int) *OpenRouterService {
	s.sleep = sleep
	s.randF = randF
	s.randN = randN
	return s
}

func (s *OpenRouterService) OfflineMode() bool {
	return s.cfg.APIKey == SentinelAPIKey
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int         `json:"index"`
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string      `json:"message"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// Complete sends one non-streaming completion. On failure the returned error
// is always a *ProviderError; nothing is retried.
func (s *OpenRouterService) Complete(ctx context.Context, modelID string, messages []ChatMessage, temperature float64, maxTokens int) (*CompletionResult, error) {
	log := zerolog.Ctx(ctx).With().Str("model", modelID).Logger()

	if s.OfflineMode() {
		log.Debug().Msg("Simulating completion with demo key")
		return s.simulate(ctx, modelID, messages)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("OpenRouter API error: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := s.newRequest(ctx, http.MethodPost, "/chat/completions", s.cfg.APIKey, body)
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("OpenRouter API error: %v", err)}
	}

	start := s.nowFunc()
	resp, err := s.httpClient.Do(req)
	elapsed := s.nowFunc().Sub(start)
	if err != nil {
		log.Warn().Err(err).Msg("Completion request failed")
		return nil, &ProviderError{Message: fmt.Sprintf("OpenRouter API error: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := s.handleError(resp)
		log.Warn().Int("status", resp.StatusCode).Str("error", perr.Message).Msg("Provider returned an error")
		return nil, perr
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("OpenRouter API error: malformed response: %v", err)}
	}
	if len(out.Choices) == 0 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "OpenRouter API error: response contained no choices"}
	}

	result := &CompletionResult{
		Content:      out.Choices[0].Message.Content,
		ProviderID:   out.ID,
		Model:        out.Model,
		Usage:        out.Usage,
		ResponseTime: elapsed,
	}
	if result.Model == "" {
		result.Model = modelID
	}
	log.Info().
		Int("prompt_tokens", result.Usage.PromptTokens).
		Int("completion_tokens", result.Usage.CompletionTokens).
		Dur("latency", elapsed).
		Msg("Completion succeeded")
	return result, nil
}

// EstimateCost prices a request from the catalog. A lookup miss yields
// FallbackCost and never an error.
func (s *OpenRouterService) EstimateCost(ctx context.Context, modelID string, promptTokens, completionTokens int) decimal.Decimal {
	return s.PriceBreakdown(ctx, modelID, promptTokens, completionTokens).Total
}

func (s *OpenRouterService) PriceBreakdown(ctx context.Context, modelID string, promptTokens, completionTokens int) CostBreakdown {
	var model *models.AIModel
	var err error
	if s.pricing != nil {
		model, err = s.pricing.GetModelByModelID(ctx, modelID)
	}
	if s.pricing == nil || err != nil || model == nil {
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("model", modelID).Msg("No catalog pricing, using fallback cost")
		}
		return CostBreakdown{
			PromptCost:     decimal.Zero,
			CompletionCost: decimal.Zero,
			Total:          FallbackCost,
			Fallback:       true,
		}
	}
	return PriceTokens(model, promptTokens, completionTokens)
}

// PriceTokens applies per-million pricing.
func PriceTokens(model *models.AIModel, promptTokens, completionTokens int) CostBreakdown {
	p := decimal.NewFromInt(int64(promptTokens)).Div(tokensPerMillion).Mul(model.PromptCost)
	c := decimal.NewFromInt(int64(completionTokens)).Div(tokensPerMillion).Mul(model.CompletionCost)
	return CostBreakdown{PromptCost: p, CompletionCost: c, Total: p.Add(c)}
}

// VerifyKey never returns an error; failures are reported as (false, reason).
func (s *OpenRouterService) VerifyKey(ctx context.Context, key string) (bool, string) {
	if key == SentinelAPIKey {
		return true, "Demo key verified"
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.VerifyTimeout)
	defer cancel()

	req, err := s.newRequest(ctx, http.MethodGet, "/models", key, nil)
	if err != nil {
		return false, fmt.Sprintf("Verification error: %v", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Sprintf("Verification error: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK {
		return true, "API key verified"
	}
	return false, fmt.Sprintf("API key verification failed: %d", resp.StatusCode)
}

type ProviderModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ContextLength int    `json:"context_length"`
	Pricing       struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
	TopProvider struct {
		MaxCompletionTokens int `json:"max_completion_tokens"`
	} `json:"top_provider"`
	Architecture struct {
		InputModalities []string `json:"input_modalities"`
	} `json:"architecture"`
	SupportedParameters []string `json:"supported_parameters"`
}

// ListModels fetches the provider's model list.
func (s *OpenRouterService) ListModels(ctx context.Context) ([]ProviderModel, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := s.newRequest(ctx, http.MethodGet, "/models", s.cfg.APIKey, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleError(resp)
	}

	var out struct {
		Data []ProviderModel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}
	return out.Data, nil
}

// CountTokens is a rough four-characters-per-token estimate.
func (s *OpenRouterService) CountTokens(text string) int {
	return len(text) / 4
}

func (s *OpenRouterService) newRequest(ctx context.Context, method, path, key string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", s.cfg.Referer)
	}
	if s.cfg.Title != "" {
		req.Header.Set("X-Title", s.cfg.Title)
	}
	return req, nil
}

func (s *OpenRouterService) handleError(resp *http.Response) *ProviderError {
	perr := &ProviderError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("OpenRouter API error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		return perr
	}
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
		perr.Message = er.Error.Message
		if er.Error.Code != nil {
			perr.Code = fmt.Sprint(er.Error.Code)
		}
	}
	return perr
}

func (s *OpenRouterService) simulate(ctx context.Context, modelID string, messages []ChatMessage) (*CompletionResult, error) {
	start := s.nowFunc()
	delay := time.Duration((0.5 + s.randF()*1.5) * float64(time.Second))
	if err := s.sleep(ctx, delay); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("OpenRouter API error: %v", err)}
	}

	userMessage := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			userMessage = messages[i].Content
			break
		}
	}

	templates := []string{
		fmt.Sprintf("I understand you're asking about: '%s...'. This is a demo response from %s.", truncateRunes(userMessage, 50), modelID),
		fmt.Sprintf("Thank you for your question. As %s, I can help you with that. This is a demonstration of the OpenRouter integration.", modelID),
		fmt.Sprintf("Based on your query about '%s...', here's a sample response showing the chat functionality works.", truncateRunes(userMessage, 30)),
		fmt.Sprintf("Hello! I'm responding as %s. This demonstrates the real-time chat integration with the backend API.", modelID),
	}
	content := templates[s.randN(len(templates))]

	promptWords := 0
	for _, m := range messages {
		promptWords += len(strings.Fields(m.Content))
	}
	prompt := float64(promptWords) * 1.3
	completion := float64(len(strings.Fields(content))) * 1.3

	now := s.nowFunc()
	return &CompletionResult{
		Content:    content,
		ProviderID: fmt.Sprintf("chatcmpl-demo-%d", now.Unix()),
		Model:      modelID,
		Usage: TokenUsage{
			PromptTokens:     int(prompt),
			CompletionTokens: int(completion),
			TotalTokens:      int(prompt + completion),
		},
		ResponseTime: now.Sub(start),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
