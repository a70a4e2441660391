package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"dropship-rest-api/internal/marketplace"
	"dropship-rest-api/internal/model"
	"dropship-rest-api/internal/resilience"
	"dropship-rest-api/pkg/logger"
)

// LLMConfig configures an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Retries int
}

// LLMAnalyzer asks a language model to score products.
type LLMAnalyzer struct {
	config LLMConfig
	client *openai.Client
	retry  resilience.RetryConfig
	log    zerolog.Logger
}

const systemPrompt = `You are an e-commerce analyst evaluating products for dropshipping.
Reply with a single JSON object with these fields:
"score" (number 0-100, likelihood of being a winning product),
"summary" (one sentence),
"strengths" (array of short strings),
"risks" (array of short strings),
"suggested_price" (number, recommended retail price in USD).`

// NewLLMAnalyzer creates an analyzer. httpClient may be nil.
func NewLLMAnalyzer(config LLMConfig, httpClient *http.Client) *LLMAnalyzer {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL
	clientConfig.HTTPClient = httpClient

	log := logger.Component("llm")
	return &LLMAnalyzer{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
		retry: resilience.RetryConfig{
			Retries:   config.Retries,
			BaseDelay: time.Second,
			MaxDelay:  5 * time.Second,
			Retryable: retryableCompletion,
			Logger:    &log,
		},
		log: log,
	}
}

func (a *LLMAnalyzer) Name() string { return "llm:" + a.config.Model }

func (a *LLMAnalyzer) Analyze(ctx context.Context, p *model.Product) (*Result, error) {
	req := openai.ChatCompletionRequest{
		Model: a.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: describe(p)},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var resp openai.ChatCompletionResponse
	err := a.retry.Do(ctx, "chat completion", func(ctx context.Context) error {
		var err error
		resp, err = a.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	var out Result
	content := stripFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	out.Score = clampScore(out.Score)
	out.Verdict = Verdict(out.Score)
	out.Analyzer = a.Name()

	a.log.Debug().Int64("product_id", p.ID).Float64("score", out.Score).Msg("product analyzed")
	return &out, nil
}

// retryableCompletion retries rate limits, 5xx and network errors.
func retryableCompletion(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return marketplace.IsRetryable(err)
}

func describe(p *model.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Marketplace: %s\n", p.Source)
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Price: $%.2f\n", p.Price)
	if p.OriginalPrice > 0 {
		fmt.Fprintf(&b, "Original price: $%.2f\n", p.OriginalPrice)
	}
	fmt.Fprintf(&b, "Rating: %.1f/5 from %d reviews\n", p.Rating, p.ReviewsCount)
	if p.SalesCount > 0 {
		fmt.Fprintf(&b, "Units sold: %d\n", p.SalesCount)
	}
	if p.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", p.Category)
	}
	return b.String()
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
