package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/sabio/superset-autodash/pkg/schema"
)

// ChartSuggestion is one advisory chart plan produced by the model. Field
// names match the JSON shape the instruction template demands.
type ChartSuggestion struct {
	Title   string `json:"title"`
	VizType string `json:"viz_type"`
	Metric  string `json:"metric"`
	GroupBy string `json:"group_by,omitempty"`
	AggFunc string `json:"agg_func"`
}

// Request is the input to a suggestion call: a free-text prompt, a schema
// summary, or both. TableName is used when no summary is available.
type Request struct {
	TableName string
	Prompt    string
	Summary   *schema.TableSummary
}

// Advisor asks an OpenAI-compatible endpoint for chart suggestions and
// parses the response. It does not retry; a failed call is surfaced as a
// typed Error and the caller decides whether to resubmit.
type Advisor struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	cache   *cache.Cache
}

// Config configures an Advisor.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

const (
	maxResponseTokens = 800
	suggestionTTL     = time.Hour

	// Pacing between model calls; LLM endpoints throttle bursts hard.
	requestsPerSecond = 2
	requestBurst      = 2
)

// New creates an Advisor. BaseURL may point at any OpenAI-compatible server;
// empty means the OpenAI default.
func New(cfg Config) (*Advisor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("LLM API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4
	}

	return &Advisor{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		cache:   cache.New(suggestionTTL, 2*suggestionTTL),
	}, nil
}

// SuggestCharts asks the model for 4-6 chart suggestions for the request.
// Results are cached per prompt+schema so repeat submissions of the same
// upload do not burn model calls.
func (a *Advisor) SuggestCharts(ctx context.Context, req Request) ([]ChartSuggestion, error) {
	key := cacheKey(req)
	if cached, ok := a.cache.Get(key); ok {
		return cached.([]ChartSuggestion), nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindRequestFailed, Detail: "rate limiter interrupted", Err: err}
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: maxResponseTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildSuggestionPrompt(req),
			},
		},
	})
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Detail: "chat completion failed", Err: err}
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindParseFailed, Detail: "model returned no choices"}
	}

	suggestions, err := parseSuggestions(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	suggestions = validateSuggestions(suggestions, req.Summary)
	a.cache.SetDefault(key, suggestions)
	return suggestions, nil
}

// ValidateSuggestions sanitizes caller-supplied suggestions the same way
// model output is sanitized, so the from-table operation gets identical
// coercion rules.
func ValidateSuggestions(suggestions []ChartSuggestion, summary *schema.TableSummary) []ChartSuggestion {
	return validateSuggestions(suggestions, summary)
}

func cacheKey(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", req.TableName, req.Prompt)
	if req.Summary != nil {
		enc, _ := json.Marshal(req.Summary)
		h.Write(enc)
	}
	return hex.EncodeToString(h.Sum(nil))
}
