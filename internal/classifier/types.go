package classifier

import (
	"context"
	"errors"
)

var (
	// ErrTransport wraps every provider failure.
	ErrTransport = errors.New("classifier: transport failure")
	// ErrParse marks a response that did not have the expected structure.
	ErrParse = errors.New("classifier: malformed response")
)

type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
	Unknown Direction = "unknown"
)

type Review struct {
	IsSignificant bool   `json:"is_significant"`
	Explanation   string `json:"explanation"`
}

type Sentiment struct {
	Score     int
	Direction Direction
}

// Known reports whether the sentiment came from a successful classification.
func (s Sentiment) Known() bool {
	return s.Score >= 0 && s.Direction != Unknown
}

func DefaultReview() Review {
	return Review{IsSignificant: false}
}

func DefaultSentiment() Sentiment {
	return Sentiment{Score: -1, Direction: Unknown}
}

// Schema describes a forced structured result as a JSON schema object.
type Schema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Schema is nil for free-form text.
	Schema *Schema
}

// Provider is a language model endpoint. For structured requests it returns
// the raw JSON arguments.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

var reviewSchema = &Schema{
	Name:        "review_post",
	Description: "Return whether the post is significant along with an explanation.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_significant": map[string]any{
				"type":        "boolean",
				"description": "True if the post is market-moving, false otherwise.",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "A brief explanation of the decision.",
			},
		},
		"required": []string{"is_significant", "explanation"},
	},
}

var sentimentSchema = &Schema{
	Name:        "analyze_sentiment",
	Description: "Return a sentiment rating between 0 and 100 and the market direction.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sentiment": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"maximum":     100,
				"description": "Sentiment rating from 0 (no significant sentiment) to 100 (extremely strong sentiment).",
			},
			"direction": map[string]any{
				"type":        "string",
				"enum":        []string{string(Bullish), string(Bearish), string(Neutral)},
				"description": "bullish (positive opportunity), bearish (negative outlook), or neutral (not significant).",
			},
		},
		"required": []string{"sentiment", "direction"},
	},
}
