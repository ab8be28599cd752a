// Package gating decides whether a fresh item is forwarded and when its id
// is recorded as seen.
package gating

import (
	"context"
	"fmt"

	"golang.org/x/text/cases"

	"watchtower/internal/classifier"
	"watchtower/internal/config"
	"watchtower/internal/types"
)

type Kind int

const (
	Unconditional Kind = iota
	SignificanceGated
	ThresholdGated
)

func (k Kind) String() string {
	switch k {
	case Unconditional:
		return config.KindUnconditional
	case SignificanceGated:
		return config.KindSignificance
	case ThresholdGated:
		return config.KindThreshold
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CacheTiming says at which point of the pipeline an item id is recorded.
type CacheTiming int

const (
	// CacheOnSight records the id right after the dedup check, before gating.
	CacheOnSight CacheTiming = iota
	// CacheOnAccept records the id only once the gate accepts the item, so a
	// rejected item is offered again on the next cycle.
	CacheOnAccept
)

func (c CacheTiming) String() string {
	if c == CacheOnAccept {
		return config.CacheOnAccept
	}
	return config.CacheOnSight
}

// Rejection and acceptance reasons.
const (
	ReasonAccepted         = "accepted"
	ReasonNotSignificant   = "not_significant"
	ReasonFlairMismatch    = "flair_mismatch"
	ReasonScoreBelowMin    = "score_below_min"
	ReasonSentimentTooWeak = "sentiment_below_threshold"
)

type Policy struct {
	Kind  Kind
	Cache CacheTiming

	// ThresholdGated only.
	TargetFlair        string
	MinScore           int64
	SentimentThreshold int
	SentimentCharLimit int
}

func NewUnconditional() Policy {
	return Policy{Kind: Unconditional, Cache: CacheOnSight}
}

func NewSignificanceGated() Policy {
	return Policy{Kind: SignificanceGated, Cache: CacheOnSight}
}

func NewThresholdGated(flair string, minScore int64, sentimentThreshold, charLimit int) Policy {
	return Policy{
		Kind:               ThresholdGated,
		Cache:              CacheOnAccept,
		TargetFlair:        flair,
		MinScore:           minScore,
		SentimentThreshold: sentimentThreshold,
		SentimentCharLimit: charLimit,
	}
}

// FromConfig expects a group that already went through config validation.
func FromConfig(g config.GroupConfig) (Policy, error) {
	var p Policy
	switch g.Kind {
	case config.KindUnconditional:
		p = NewUnconditional()
	case config.KindSignificance:
		p = NewSignificanceGated()
	case config.KindThreshold:
		var minScore int64
		if g.MinScore != nil {
			minScore = *g.MinScore
		}
		var threshold int
		if g.SentimentThreshold != nil {
			threshold = *g.SentimentThreshold
		}
		p = NewThresholdGated(g.TargetFlair, minScore, threshold, g.GateCharLimit)
	default:
		return Policy{}, fmt.Errorf("group %s: unsupported kind %q", g.Name, g.Kind)
	}

	switch g.CacheOn {
	case "":
	case config.CacheOnSight:
		p.Cache = CacheOnSight
	case config.CacheOnAccept:
		p.Cache = CacheOnAccept
	default:
		return Policy{}, fmt.Errorf("group %s: unsupported cache_on %q", g.Name, g.CacheOn)
	}

	return p, nil
}

// Classifier is the subset of the classifier the gates call.
type Classifier interface {
	Review(ctx context.Context, text string) (classifier.Review, error)
	Sentiment(ctx context.Context, text string, charLimit int) (classifier.Sentiment, error)
}

type Decision struct {
	Accepted bool
	Reason   string

	// Set when the gate classified the item.
	Review    *classifier.Review
	Sentiment *classifier.Sentiment
}

func accept() Decision {
	return Decision{Accepted: true, Reason: ReasonAccepted}
}

func reject(reason string) Decision {
	return Decision{Reason: reason}
}

// Evaluate runs the gate for item. Classifier failures are already folded
// into conservative results and end in a rejection for the gated kinds.
func (p Policy) Evaluate(ctx context.Context, c Classifier, item *types.ContentItem) Decision {
	switch p.Kind {
	case SignificanceGated:
		review, _ := c.Review(ctx, item.Text())
		d := accept()
		if !review.IsSignificant {
			d = reject(ReasonNotSignificant)
		}
		d.Review = &review
		return d

	case ThresholdGated:
		if !p.flairMatches(item.Flair) {
			return reject(ReasonFlairMismatch)
		}
		if item.Score() < p.MinScore {
			return reject(ReasonScoreBelowMin)
		}

		sentiment, _ := c.Sentiment(ctx, item.Text(), p.SentimentCharLimit)
		d := accept()
		if sentiment.Score < p.SentimentThreshold || !sentiment.Known() {
			d = reject(ReasonSentimentTooWeak)
		}
		d.Sentiment = &sentiment
		return d

	default:
		return accept()
	}
}

func (p Policy) flairMatches(flair string) bool {
	if p.TargetFlair == "" {
		return true
	}
	fold := cases.Fold()
	return fold.String(flair) == fold.String(p.TargetFlair)
}
