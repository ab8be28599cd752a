package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"watchtower/internal/cache"
	"watchtower/internal/textutil"
	"watchtower/internal/types"
)

const (
	RedditPublicHost = "https://www.reddit.com"
	RedditOAuthHost  = "https://oauth.reddit.com"
	redditWebHost    = "https://www.reddit.com"
	redditMaxLimit   = 100
	defaultUserAgent = "watchtower/1.0"
)

type RedditConfig struct {
	// Host overrides both the API and token host.
	Host      string
	ClientID  string
	Secret    string
	Username  string
	Password  string
	UserAgent string
}

func (c RedditConfig) hasCredentials() bool {
	return c.ClientID != "" && c.Secret != ""
}

type Reddit struct {
	cfg      RedditConfig
	apiHost  string
	tokenURL string
	client   *retryablehttp.Client
	scores   *cache.Cache[string, int64]
	logger   *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewReddit(cfg RedditConfig, logger *slog.Logger) *Reddit {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	apiHost := RedditPublicHost
	tokenURL := RedditPublicHost + "/api/v1/access_token"
	if cfg.hasCredentials() {
		apiHost = RedditOAuthHost
	}
	if cfg.Host != "" {
		apiHost = strings.TrimRight(cfg.Host, "/")
		tokenURL = apiHost + "/api/v1/access_token"
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = logger.With("platform", "reddit")

	return &Reddit{
		cfg:      cfg,
		apiHost:  apiHost,
		tokenURL: tokenURL,
		client:   client,
		scores:   cache.NewCache[string, int64](cache.CacheConfig{Name: "reddit_karma", TTL: cache.DefaultTTL}, strings.ToLower),
		logger:   logger,
	}
}

// WithRetry adjusts the retry policy of the underlying HTTP client.
func (r *Reddit) WithRetry(max int, waitMin time.Duration) *Reddit {
	r.client.RetryMax = max
	r.client.RetryWaitMin = waitMin
	r.client.RetryWaitMax = waitMin
	return r
}

func (r *Reddit) Name() string {
	return "reddit"
}

func (r *Reddit) BuildPermalink(item *types.ContentItem) string {
	if strings.HasPrefix(item.Permalink, "http") {
		return item.Permalink
	}
	return redditWebHost + item.Permalink
}

func (r *Reddit) FetchRecentByAuthor(ctx context.Context, author string, limit int) ([]types.ContentItem, error) {
	params := url.Values{}
	params.Set("sort", "new")
	params.Set("limit", strconv.Itoa(clampLimit(limit, redditMaxLimit)))

	var listing redditListing
	if err := r.get(ctx, "/user/"+url.PathEscape(author)+"/submitted", params, &listing); err != nil {
		return nil, r.sourceError("u/"+author, err)
	}

	return r.convert(ctx, listing), nil
}

func (r *Reddit) Search(ctx context.Context, q SearchQuery) ([]types.ContentItem, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("flair:%q", q.Flair))
	params.Set("restrict_sr", "1")
	params.Set("sort", q.Sort)
	params.Set("t", q.TimeFilter)
	params.Set("limit", strconv.Itoa(clampLimit(q.Limit, redditMaxLimit)))

	var listing redditListing
	if err := r.get(ctx, "/r/"+url.PathEscape(q.Community)+"/search", params, &listing); err != nil {
		return nil, r.sourceError("r/"+q.Community, err)
	}

	return r.convert(ctx, listing), nil
}

// AuthorScore returns the author's link karma, memoized for ten minutes.
func (r *Reddit) AuthorScore(ctx context.Context, author string) (int64, error) {
	return r.scores.GetOrLoad(author, func() (int64, error) {
		var about struct {
			Data struct {
				LinkKarma int64 `json:"link_karma"`
			} `json:"data"`
		}
		if err := r.get(ctx, "/user/"+url.PathEscape(author)+"/about", nil, &about); err != nil {
			return 0, r.sourceError("u/"+author, err)
		}
		return about.Data.LinkKarma, nil
	})
}

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Author       string  `json:"author"`
	CreatedUTC   float64 `json:"created_utc"`
	Title        string  `json:"title"`
	Selftext     string  `json:"selftext"`
	SelftextHTML string  `json:"selftext_html"`
	URL          string  `json:"url"`
	IsSelf       bool    `json:"is_self"`
	Permalink    string  `json:"permalink"`
	Flair        string  `json:"link_flair_text"`
}

func (r *Reddit) convert(ctx context.Context, listing redditListing) []types.ContentItem {
	items := make([]types.ContentItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}

		id := p.Name
		if id == "" {
			id = "t3_" + p.ID
		}

		body := strings.TrimSpace(p.Selftext)
		if body == "" && p.SelftextHTML != "" {
			body = textutil.HTMLToText(p.SelftextHTML)
		}
		if body == "" && !p.IsSelf {
			body = p.URL
		}

		item := types.ContentItem{
			ID:        id,
			Platform:  r.Name(),
			Author:    p.Author,
			CreatedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
			Title:     p.Title,
			Body:      body,
			Permalink: p.Permalink,
			Flair:     p.Flair,
			ScoreUnit: "karma",
		}
		item.Permalink = r.BuildPermalink(&item)

		if score, err := r.AuthorScore(ctx, p.Author); err != nil {
			r.logger.Warn("Failed to fetch author karma", "author", p.Author, "error", err)
		} else {
			item.AuthorScore = &score
		}

		items = append(items, item)
	}
	return items
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func (r *Reddit) sourceError(subject string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusNotFound, http.StatusForbidden:
			return types.NewNotFoundError(r.Name(), subject)
		}
	}
	var sourceErr *types.SourceError
	if errors.As(err, &sourceErr) {
		return err
	}
	return types.NewTransientError(r.Name(), subject, err)
}

func (r *Reddit) get(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("raw_json", "1")

	authed := r.cfg.hasCredentials()
	if !authed {
		path += ".json"
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.apiHost+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	if authed {
		token, err := r.accessToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && authed {
		r.mu.Lock()
		r.token = ""
		r.mu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// accessToken performs the password grant and caches the token until shortly
// before it expires.
func (r *Reddit) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return r.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", r.cfg.Username)
	form.Set("password", r.cfg.Password)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(r.cfg.ClientID, r.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit token request failed: %w", err)
	}
	defer resp.Body.Close()

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode reddit token: %w", err)
	}
	if resp.StatusCode != http.StatusOK || tok.AccessToken == "" {
		return "", fmt.Errorf("reddit token request rejected: status %d %s", resp.StatusCode, tok.Error)
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}

	r.token = tok.AccessToken
	r.tokenExpiry = time.Now().Add(expiresIn - time.Minute)
	r.logger.Debug("Obtained reddit access token", "expires_in", expiresIn)
	return r.token, nil
}
