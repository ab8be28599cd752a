package sources

import (
	"context"
	"time"

	"watchtower/internal/types"
)

type SearchQuery struct {
	Community  string
	Flair      string
	Sort       string
	TimeFilter string
	Limit      int
}

// Platform is one content network. Fetch errors are *types.SourceError so
// callers can tell an unknown author from a transient failure.
type Platform interface {
	Name() string
	FetchRecentByAuthor(ctx context.Context, author string, limit int) ([]types.ContentItem, error)
	Search(ctx context.Context, query SearchQuery) ([]types.ContentItem, error)
	BuildPermalink(item *types.ContentItem) string
}

// TimeFilterWindow maps reddit style time filters to a duration. "all" and
// unknown values return zero.
func TimeFilterWindow(filter string) time.Duration {
	switch filter {
	case "hour":
		return time.Hour
	case "day":
		return 24 * time.Hour
	case "week":
		return 7 * 24 * time.Hour
	case "month":
		return 30 * 24 * time.Hour
	case "year":
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
