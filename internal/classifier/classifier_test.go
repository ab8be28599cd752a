package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"watchtower/internal/template"
)

type fakeProvider struct {
	responses []string
	err       error
	requests  []Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

func newTestClassifier(t *testing.T, p Provider) *Classifier {
	t.Helper()

	prompts, err := template.LoadPrompts(nil)
	require.NoError(t, err)
	return New(p, prompts, WithLimiter(rate.NewLimiter(rate.Inf, 1)))
}

func TestReview(t *testing.T) {
	p := &fakeProvider{responses: []string{`{"is_significant": true, "explanation": "earnings beat"}`}}
	c := newTestClassifier(t, p)

	r, err := c.Review(context.Background(), "ACME beats estimates")
	require.NoError(t, err)
	assert.True(t, r.IsSignificant)
	assert.Equal(t, "earnings beat", r.Explanation)

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Contains(t, req.Prompt, "ACME beats estimates")
	require.NotNil(t, req.Schema)
	assert.Equal(t, "review_post", req.Schema.Name)
	assert.Equal(t, reviewMaxTokens, req.MaxTokens)
	assert.InDelta(t, 0.5, req.Temperature, 1e-9)
}

func TestReviewTransportFailureIsNotSignificant(t *testing.T) {
	c := newTestClassifier(t, &fakeProvider{err: errors.New("connection reset")})

	r, err := c.Review(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrTransport)
	assert.False(t, r.IsSignificant)
}

func TestReviewParseFailures(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":      "ERROR",
		"missing field": `{"explanation": "?"}`,
		"wrong type":    `{"is_significant": "yes"}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClassifier(t, &fakeProvider{responses: []string{raw}})
			r, err := c.Review(context.Background(), "text")
			assert.ErrorIs(t, err, ErrParse)
			assert.Equal(t, DefaultReview(), r)
		})
	}
}

func TestSentiment(t *testing.T) {
	p := &fakeProvider{responses: []string{"```json\n{\"sentiment\": 72, \"direction\": \"Bullish\"}\n```"}}
	c := newTestClassifier(t, p)

	s, err := c.Sentiment(context.Background(), "calls are printing", 80)
	require.NoError(t, err)
	assert.Equal(t, Sentiment{Score: 72, Direction: Bullish}, s)
	assert.True(t, s.Known())

	require.Len(t, p.requests, 1)
	assert.Equal(t, 80, p.requests[0].MaxTokens)
	assert.Equal(t, "analyze_sentiment", p.requests[0].Schema.Name)
	assert.Contains(t, p.requests[0].Prompt, "80 characters")
}

func TestSentimentFailuresUseDefault(t *testing.T) {
	cases := map[string]string{
		"above range":       `{"sentiment": 140, "direction": "bullish"}`,
		"below range":       `{"sentiment": -5, "direction": "bearish"}`,
		"unknown direction": `{"sentiment": 50, "direction": "sideways"}`,
		"missing score":     `{"direction": "bearish"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClassifier(t, &fakeProvider{responses: []string{raw}})
			s, err := c.Sentiment(context.Background(), "text", 100)
			assert.ErrorIs(t, err, ErrParse)
			assert.Equal(t, Sentiment{Score: -1, Direction: Unknown}, s)
			assert.False(t, s.Known())
		})
	}

	c := newTestClassifier(t, &fakeProvider{err: errors.New("timeout")})
	s, err := c.Sentiment(context.Background(), "text", 100)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, DefaultSentiment(), s)
}

func TestSummarize(t *testing.T) {
	p := &fakeProvider{responses: []string{"  ACME guides higher on strong cloud demand and raises buyback.  "}}
	c := newTestClassifier(t, p)

	out, err := c.Summarize(context.Background(), "long post", 30)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(out)), 30)
	assert.Contains(t, out, "ACME guides")
	assert.Nil(t, p.requests[0].Schema)

	c = newTestClassifier(t, &fakeProvider{responses: []string{"   "}})
	out, err = c.Summarize(context.Background(), "long post", 30)
	assert.ErrorIs(t, err, ErrParse)
	assert.Empty(t, out)
}

func TestCanceledContextIsTransportFailure(t *testing.T) {
	p := &fakeProvider{responses: []string{`{"is_significant": true}`}}
	prompts, err := template.LoadPrompts(nil)
	require.NoError(t, err)

	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	require.True(t, limiter.Allow())
	c := New(p, prompts, WithLimiter(limiter))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := c.Review(ctx, "text")
	assert.ErrorIs(t, err, ErrTransport)
	assert.False(t, r.IsSignificant)
	assert.Empty(t, p.requests)
}

func TestTemperatureOverride(t *testing.T) {
	p := &fakeProvider{responses: []string{"summary"}}
	prompts, err := template.LoadPrompts(nil)
	require.NoError(t, err)

	c := New(p, prompts, WithLimiter(rate.NewLimiter(rate.Inf, 1)), WithTemperature(0.2))
	_, err = c.Summarize(context.Background(), "x", 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p.requests[0].Temperature, 1e-9)
}
