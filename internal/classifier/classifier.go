package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"watchtower/internal/metrics"
	"watchtower/internal/template"
	"watchtower/internal/textutil"
)

const (
	reviewMaxTokens       = 100
	reviewTemperature     = 0.5
	generativeTemperature = 0.7
	DefaultInterval       = time.Second
)

type Option func(*Classifier)

func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Classifier) {
		c.limiter = limiter
	}
}

// WithTemperature overrides the per-operation sampling temperatures.
func WithTemperature(t float64) Option {
	return func(c *Classifier) {
		if t > 0 {
			c.temperature = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// Classifier runs review, sentiment and summary prompts against a Provider.
// On failure each method returns its conservative default together with an
// error wrapping ErrTransport or ErrParse.
type Classifier struct {
	provider    Provider
	prompts     *template.Prompts
	limiter     *rate.Limiter
	temperature float64
	logger      *slog.Logger
}

func New(provider Provider, prompts *template.Prompts, opts ...Option) *Classifier {
	c := &Classifier{
		provider: provider,
		prompts:  prompts,
		limiter:  rate.NewLimiter(rate.Every(DefaultInterval), 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) Review(ctx context.Context, text string) (Review, error) {
	raw, err := c.call(ctx, "review", template.ReviewPrompt, template.PromptData{Content: text}, Request{
		MaxTokens:   reviewMaxTokens,
		Temperature: c.temp(reviewTemperature),
		Schema:      reviewSchema,
	})
	if err != nil {
		return DefaultReview(), err
	}

	var out struct {
		IsSignificant *bool  `json:"is_significant"`
		Explanation   string `json:"explanation"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		return DefaultReview(), c.parseFailure("review", raw, err)
	}
	if out.IsSignificant == nil {
		return DefaultReview(), c.parseFailure("review", raw, fmt.Errorf("missing is_significant"))
	}

	metrics.ClassifierCalls.WithLabelValues("review", "ok").Inc()
	return Review{IsSignificant: *out.IsSignificant, Explanation: out.Explanation}, nil
}

func (c *Classifier) Sentiment(ctx context.Context, text string, charLimit int) (Sentiment, error) {
	data := template.PromptData{Content: text, CharLimit: charLimit}
	raw, err := c.call(ctx, "sentiment", template.SentimentPrompt, data, Request{
		MaxTokens:   charLimit,
		Temperature: c.temp(generativeTemperature),
		Schema:      sentimentSchema,
	})
	if err != nil {
		return DefaultSentiment(), err
	}

	var out struct {
		Sentiment *float64 `json:"sentiment"`
		Direction string   `json:"direction"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		return DefaultSentiment(), c.parseFailure("sentiment", raw, err)
	}
	if out.Sentiment == nil {
		return DefaultSentiment(), c.parseFailure("sentiment", raw, fmt.Errorf("missing sentiment"))
	}

	score := math.Round(*out.Sentiment)
	if score < 0 || score > 100 {
		return DefaultSentiment(), c.parseFailure("sentiment", raw, fmt.Errorf("sentiment %v out of range", *out.Sentiment))
	}

	direction, err := parseDirection(out.Direction)
	if err != nil {
		return DefaultSentiment(), c.parseFailure("sentiment", raw, err)
	}

	metrics.ClassifierCalls.WithLabelValues("sentiment", "ok").Inc()
	return Sentiment{Score: int(score), Direction: direction}, nil
}

func (c *Classifier) Summarize(ctx context.Context, text string, charLimit int) (string, error) {
	data := template.PromptData{Content: text, CharLimit: charLimit}
	raw, err := c.call(ctx, "summary", template.SummaryPrompt, data, Request{
		MaxTokens:   charLimit,
		Temperature: c.temp(generativeTemperature),
	})
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", c.parseFailure("summary", raw, fmt.Errorf("empty summary"))
	}

	metrics.ClassifierCalls.WithLabelValues("summary", "ok").Inc()
	return textutil.Truncate(summary, charLimit), nil
}

func (c *Classifier) call(ctx context.Context, op string, prompt template.Prompt, data template.PromptData, req Request) (string, error) {
	rendered, err := c.prompts.Render(prompt, data)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues(op, "error").Inc()
		c.logger.Error("Failed to render prompt", "operation", op, "error", err)
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Prompt = rendered

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.ClassifierCalls.WithLabelValues(op, "error").Inc()
		return "", fmt.Errorf("%w: rate limiter: %v", ErrTransport, err)
	}

	start := time.Now()
	raw, err := c.provider.Complete(ctx, req)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues(op, "error").Inc()
		c.logger.Error("Classifier call failed",
			"operation", op,
			"provider", c.provider.Name(),
			"error", err,
		)
		return "", fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
	}

	c.logger.Debug("Classifier call finished",
		"operation", op,
		"provider", c.provider.Name(),
		"duration", time.Since(start),
	)
	return raw, nil
}

func (c *Classifier) parseFailure(op, raw string, err error) error {
	metrics.ClassifierCalls.WithLabelValues(op, "parse_error").Inc()
	c.logger.Error("Classifier returned malformed response",
		"operation", op,
		"response", textutil.Truncate(raw, 200),
		"error", err,
	)
	return fmt.Errorf("%w: %s: %v", ErrParse, op, err)
}

func (c *Classifier) temp(def float64) float64 {
	if c.temperature > 0 {
		return c.temperature
	}
	return def
}

func parseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Bullish, Bearish, Neutral:
		return d, nil
	default:
		return Unknown, fmt.Errorf("unknown direction %q", s)
	}
}

// decodeJSON accepts a bare object or one wrapped in a markdown code fence.
func decodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return json.Unmarshal([]byte(s), v)
}
