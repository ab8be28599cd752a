package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/cases"

	"watchtower/internal/textutil"
	"watchtower/internal/types"
)

const rssMaxLimit = 200

// RSS treats every configured feed as an author or a community, looked up by
// name. Feeds have no notion of author reputation.
type RSS struct {
	feeds  map[string]string
	parser *gofeed.Parser
	logger *slog.Logger
}

func NewRSS(feeds map[string]string, logger *slog.Logger) *RSS {
	if logger == nil {
		logger = slog.Default()
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 30 * time.Second}
	parser.UserAgent = defaultUserAgent

	return &RSS{
		feeds:  feeds,
		parser: parser,
		logger: logger,
	}
}

func (r *RSS) Name() string {
	return "rss"
}

func (r *RSS) BuildPermalink(item *types.ContentItem) string {
	return item.Permalink
}

func (r *RSS) FetchRecentByAuthor(ctx context.Context, author string, limit int) ([]types.ContentItem, error) {
	feed, err := r.fetch(ctx, author)
	if err != nil {
		return nil, err
	}

	items := make([]types.ContentItem, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if len(items) >= clampLimit(limit, rssMaxLimit) {
			break
		}
		items = append(items, r.convert(author, feed, fi))
	}
	return items, nil
}

// Search reads the community feed and keeps the items carrying the flair as
// a category.
func (r *RSS) Search(ctx context.Context, q SearchQuery) ([]types.ContentItem, error) {
	feed, err := r.fetch(ctx, q.Community)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	want := fold.String(q.Flair)

	var items []types.ContentItem
	for _, fi := range feed.Items {
		if len(items) >= clampLimit(q.Limit, rssMaxLimit) {
			break
		}

		if q.Flair != "" && !hasCategory(fi, want, fold) {
			continue
		}

		item := r.convert(q.Community, feed, fi)
		if q.Flair != "" {
			item.Flair = q.Flair
		}
		items = append(items, item)
	}
	return items, nil
}

func hasCategory(fi *gofeed.Item, want string, fold cases.Caser) bool {
	for _, c := range fi.Categories {
		if fold.String(strings.TrimSpace(c)) == want {
			return true
		}
	}
	return false
}

func (r *RSS) fetch(ctx context.Context, name string) (*gofeed.Feed, error) {
	url, ok := r.feeds[name]
	if !ok {
		return nil, types.NewNotFoundError(r.Name(), name)
	}

	r.logger.Debug("RSS source fetching feed", "feed", name, "url", url)
	feed, err := r.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusGone) {
			return nil, types.NewNotFoundError(r.Name(), name)
		}
		return nil, types.NewTransientError(r.Name(), name, fmt.Errorf("failed to parse feed: %w", err))
	}

	return feed, nil
}

func (r *RSS) convert(name string, feed *gofeed.Feed, fi *gofeed.Item) types.ContentItem {
	created := time.Now()
	if fi.PublishedParsed != nil {
		created = *fi.PublishedParsed
	} else if fi.UpdatedParsed != nil {
		created = *fi.UpdatedParsed
	}

	id := fi.GUID
	if id == "" {
		id = textutil.Hash(fi.Link)
	}

	author := name
	if fi.Author != nil && fi.Author.Name != "" {
		author = fi.Author.Name
	} else if feed.Title != "" {
		author = feed.Title
	}

	body := fi.Content
	if body == "" {
		body = fi.Description
	}

	item := types.ContentItem{
		ID:        id,
		Platform:  r.Name(),
		Author:    author,
		CreatedAt: created.UTC(),
		Title:     textutil.StripHTML(fi.Title),
		Body:      textutil.HTMLToText(body),
		Permalink: fi.Link,
	}
	if len(fi.Categories) > 0 {
		item.Flair = strings.TrimSpace(fi.Categories[0])
	}
	return item
}
