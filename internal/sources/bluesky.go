package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/bluesky-social/indigo/xrpc"
	"golang.org/x/text/cases"

	"watchtower/internal/cache"
	"watchtower/internal/types"
)

const (
	blueskyWebHost  = "https://bsky.app"
	blueskyMaxLimit = 100
)

// Bluesky reads posts through the AppView lexicons. Responses are decoded
// into local structs instead of the generated lexicon types.
type Bluesky struct {
	client    *xrpc.Client
	followers *cache.Cache[string, int64]
	now       func() time.Time
	logger    *slog.Logger
}

func NewBluesky(client *xrpc.Client, logger *slog.Logger) *Bluesky {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bluesky{
		client:    client,
		followers: cache.NewCache[string, int64](cache.CacheConfig{Name: "bluesky_followers", TTL: cache.DefaultTTL}, strings.ToLower),
		now:       time.Now,
		logger:    logger,
	}
}

func (b *Bluesky) Name() string {
	return "bluesky"
}

type bskyPostView struct {
	URI    string `json:"uri"`
	Author struct {
		DID         string `json:"did"`
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Record struct {
		Text      string   `json:"text"`
		CreatedAt string   `json:"createdAt"`
		Tags      []string `json:"tags"`
		Facets    []struct {
			Features []struct {
				Type string `json:"$type"`
				Tag  string `json:"tag"`
			} `json:"features"`
		} `json:"facets"`
	} `json:"record"`
	IndexedAt string `json:"indexedAt"`
}

type bskyAuthorFeed struct {
	Feed []struct {
		Post   bskyPostView    `json:"post"`
		Reason *map[string]any `json:"reason"`
	} `json:"feed"`
}

type bskySearchResult struct {
	Posts []bskyPostView `json:"posts"`
}

type bskyProfile struct {
	Handle         string `json:"handle"`
	FollowersCount int64  `json:"followersCount"`
}

func (b *Bluesky) FetchRecentByAuthor(ctx context.Context, author string, limit int) ([]types.ContentItem, error) {
	params := map[string]interface{}{
		"actor":  author,
		"limit":  clampLimit(limit, blueskyMaxLimit),
		"filter": "posts_no_replies",
	}

	var out bskyAuthorFeed
	if err := b.client.Do(ctx, xrpc.Query, "", "app.bsky.feed.getAuthorFeed", params, nil, &out); err != nil {
		return nil, b.sourceError(author, err)
	}

	items := make([]types.ContentItem, 0, len(out.Feed))
	for _, entry := range out.Feed {
		// reposts carry someone else's post
		if entry.Reason != nil {
			continue
		}
		if item, ok := b.convert(ctx, entry.Post, ""); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (b *Bluesky) Search(ctx context.Context, q SearchQuery) ([]types.ContentItem, error) {
	sort := "latest"
	if q.Sort == "top" {
		sort = "top"
	}

	params := map[string]interface{}{
		"q":     q.Community,
		"sort":  sort,
		"limit": clampLimit(q.Limit, blueskyMaxLimit),
	}
	tag := strings.TrimPrefix(q.Flair, "#")
	if tag != "" {
		params["tag"] = []string{tag}
	}
	if window := TimeFilterWindow(q.TimeFilter); window > 0 {
		params["since"] = b.now().Add(-window).UTC().Format(time.RFC3339)
	}

	var out bskySearchResult
	if err := b.client.Do(ctx, xrpc.Query, "", "app.bsky.feed.searchPosts", params, nil, &out); err != nil {
		return nil, b.sourceError(q.Community, err)
	}

	items := make([]types.ContentItem, 0, len(out.Posts))
	for _, post := range out.Posts {
		if item, ok := b.convert(ctx, post, tag); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// BuildPermalink maps at://{authority}/{collection}/{rkey} to the web URL,
// preferring the handle over the DID.
func (b *Bluesky) BuildPermalink(item *types.ContentItem) string {
	uri, err := syntax.ParseATURI(item.ID)
	if err != nil {
		return item.Permalink
	}

	// at: "" authority collection rkey
	parts := strings.SplitN(string(uri), "/", 6)
	if len(parts) < 5 || parts[4] == "" {
		return item.Permalink
	}
	rkey := parts[4]

	actor := item.Author
	if actor == "" {
		actor = parts[2]
	}
	return fmt.Sprintf("%s/profile/%s/post/%s", blueskyWebHost, actor, rkey)
}

// AuthorScore returns the follower count, memoized for ten minutes.
func (b *Bluesky) AuthorScore(ctx context.Context, actor string) (int64, error) {
	return b.followers.GetOrLoad(actor, func() (int64, error) {
		var profile bskyProfile
		params := map[string]interface{}{"actor": actor}
		if err := b.client.Do(ctx, xrpc.Query, "", "app.bsky.actor.getProfile", params, nil, &profile); err != nil {
			return 0, b.sourceError(actor, err)
		}
		return profile.FollowersCount, nil
	})
}

// convert builds an item from a post view. When wantTag is set and the post
// carries it, the flair is that tag.
func (b *Bluesky) convert(ctx context.Context, post bskyPostView, wantTag string) (types.ContentItem, bool) {
	if post.URI == "" {
		return types.ContentItem{}, false
	}

	created, err := syntax.ParseDatetimeTime(post.Record.CreatedAt)
	if err != nil {
		created, _ = time.Parse(time.RFC3339, post.IndexedAt)
	}

	item := types.ContentItem{
		ID:        post.URI,
		Platform:  b.Name(),
		Author:    post.Author.Handle,
		CreatedAt: created.UTC(),
		Body:      post.Record.Text,
		ScoreUnit: "followers",
	}
	item.Flair = postFlair(post, wantTag)
	item.Permalink = b.BuildPermalink(&item)

	actor := post.Author.DID
	if actor == "" {
		actor = post.Author.Handle
	}
	if score, err := b.AuthorScore(ctx, actor); err != nil {
		b.logger.Warn("Failed to fetch follower count", "author", post.Author.Handle, "error", err)
	} else {
		item.AuthorScore = &score
	}

	return item, true
}

// postFlair returns the post tag matching want, looking at record tags and
// in-text hashtag facets, else the first record tag.
func postFlair(post bskyPostView, want string) string {
	if want != "" {
		fold := cases.Fold()
		want = fold.String(want)
		for _, tag := range post.Record.Tags {
			if fold.String(tag) == want {
				return tag
			}
		}
		for _, facet := range post.Record.Facets {
			for _, feature := range facet.Features {
				if feature.Type == "app.bsky.richtext.facet#tag" && fold.String(feature.Tag) == want {
					return feature.Tag
				}
			}
		}
	}

	if len(post.Record.Tags) > 0 {
		return post.Record.Tags[0]
	}
	return ""
}

func (b *Bluesky) sourceError(subject string, err error) error {
	var xe *xrpc.Error
	if errors.As(err, &xe) {
		switch xe.StatusCode {
		case http.StatusBadRequest, http.StatusNotFound:
			return types.NewNotFoundError(b.Name(), subject)
		}
	}
	return types.NewTransientError(b.Name(), subject, err)
}
