package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchtower/internal/classifier"
	"watchtower/internal/dedup"
	"watchtower/internal/gating"
	"watchtower/internal/notify"
	"watchtower/internal/sources"
	"watchtower/internal/types"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	entries map[string]float64
	saveErr error
}

func (m *memStore) Load(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (m *memStore) Save(ctx context.Context, entries map[string]float64) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries = map[string]float64{}
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

func (m *memStore) Delete(ctx context.Context) error { return nil }

func (m *memStore) Close() error { return nil }

type fakePlatform struct {
	name       string
	byAuthor   map[string][]types.ContentItem
	authorErrs map[string]error
	search     []types.ContentItem
	searchErr  error
	fetches    []string
	searches   []sources.SearchQuery
}

func (f *fakePlatform) Name() string { return f.name }

func (f *fakePlatform) FetchRecentByAuthor(ctx context.Context, author string, limit int) ([]types.ContentItem, error) {
	f.fetches = append(f.fetches, author)
	if err := f.authorErrs[author]; err != nil {
		return nil, err
	}
	return append([]types.ContentItem(nil), f.byAuthor[author]...), nil
}

func (f *fakePlatform) Search(ctx context.Context, q sources.SearchQuery) ([]types.ContentItem, error) {
	f.searches = append(f.searches, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]types.ContentItem(nil), f.search...), nil
}

func (f *fakePlatform) BuildPermalink(item *types.ContentItem) string {
	return "https://example.com/" + item.ID
}

type fakeClassifier struct {
	review         classifier.Review
	reviewErr      error
	sentiment      classifier.Sentiment
	summary        string
	reviewCalls    int
	sentimentCalls []int
	summaryCalls   []int
}

func (f *fakeClassifier) Review(ctx context.Context, text string) (classifier.Review, error) {
	f.reviewCalls++
	if f.reviewErr != nil {
		return classifier.DefaultReview(), f.reviewErr
	}
	return f.review, nil
}

func (f *fakeClassifier) Sentiment(ctx context.Context, text string, charLimit int) (classifier.Sentiment, error) {
	f.sentimentCalls = append(f.sentimentCalls, charLimit)
	return f.sentiment, nil
}

func (f *fakeClassifier) Summarize(ctx context.Context, text string, charLimit int) (string, error) {
	f.summaryCalls = append(f.summaryCalls, charLimit)
	return f.summary, nil
}

func (f *fakeClassifier) calls() int {
	return f.reviewCalls + len(f.sentimentCalls) + len(f.summaryCalls)
}

type recordingNotifier struct {
	alerts []notify.Alert
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, alert notify.Alert) error {
	r.alerts = append(r.alerts, alert)
	return r.err
}

type harness struct {
	platform   *fakePlatform
	classifier *fakeClassifier
	store      *memStore
	cache      *dedup.Cache
	notifier   *recordingNotifier
	orch       *Orchestrator
}

func newHarness(t *testing.T, platform *fakePlatform, groups ...Group) *harness {
	t.Helper()

	h := &harness{
		platform: platform,
		classifier: &fakeClassifier{
			review:    classifier.Review{IsSignificant: true},
			sentiment: classifier.Sentiment{Score: 70, Direction: classifier.Bullish},
			summary:   "summary text",
		},
		notifier: &recordingNotifier{},
	}
	h.store = &memStore{}
	h.cache = dedup.New(context.Background(), h.store, 0, dedup.WithClock(func() time.Time { return testNow }))
	h.orch = NewOrchestrator(OrchestratorConfig{
		Platforms:          []PlatformGroups{{Platform: platform, Groups: groups}},
		Classifier:         h.classifier,
		Cache:              h.cache,
		Notifier:           h.notifier,
		SentimentCharLimit: 100,
		SummaryCharLimit:   200,
		Now:                func() time.Time { return testNow },
	})
	return h
}

func post(id, author string, age time.Duration) types.ContentItem {
	return types.ContentItem{
		ID:        id,
		Platform:  "fake",
		Author:    author,
		CreatedAt: testNow.Add(-age),
		Title:     "title " + id,
		Body:      "body " + id,
	}
}

func withScore(item types.ContentItem, flair string, score int64) types.ContentItem {
	item.Flair = flair
	item.AuthorScore = &score
	return item
}

func authorGroup(name string, policy gating.Policy, authors ...string) Group {
	return Group{Name: name, Label: name, Authors: authors, Limit: 10, Window: 7 * 24 * time.Hour, Policy: policy}
}

func searchGroup(policy gating.Policy) Group {
	return Group{
		Name:   "dd",
		Label:  "DD",
		Search: &sources.SearchQuery{Community: "stocks", Flair: "DD", Sort: "new", TimeFilter: "week", Limit: 25},
		Policy: policy,
	}
}

func TestCachedItemIsSkippedWithoutClassification(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"alice": {post("a1", "alice", time.Hour)}}}
	h := newHarness(t, p, authorGroup("general", gating.NewSignificanceGated(), "alice"))
	require.NoError(t, h.cache.Add(context.Background(), "a1"))

	h.orch.RunCycle(context.Background())

	assert.Equal(t, 0, h.classifier.calls())
	assert.Empty(t, h.notifier.alerts)
}

func TestUnconditionalGroupNotifiesOnce(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"desk": {post("r1", "desk", time.Hour)}}}
	h := newHarness(t, p, authorGroup("reports", gating.NewUnconditional(), "desk"))

	h.orch.RunCycle(context.Background())
	h.orch.RunCycle(context.Background())

	require.Len(t, h.notifier.alerts, 1)
	assert.True(t, h.cache.IsCached("r1"))
	assert.Equal(t, 0, h.classifier.reviewCalls)

	alert := h.notifier.alerts[0]
	assert.Equal(t, "reports", alert.Label)
	assert.Equal(t, "desk", alert.User)
	assert.Equal(t, "https://example.com/r1", alert.Permalink)
	assert.Equal(t, "summary text", alert.Summary)
	assert.Equal(t, 70, alert.Sentiment.Score)

	assert.Equal(t, []int{100}, h.classifier.sentimentCalls)
	assert.Equal(t, []int{200}, h.classifier.summaryCalls)
}

func TestSignificanceGatedRejectedIsCachedAndNotRetried(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"bob": {post("g1", "bob", time.Hour)}}}
	h := newHarness(t, p, authorGroup("general", gating.NewSignificanceGated(), "bob"))
	h.classifier.review = classifier.Review{IsSignificant: false}

	h.orch.RunCycle(context.Background())
	h.orch.RunCycle(context.Background())

	assert.Empty(t, h.notifier.alerts)
	assert.True(t, h.cache.IsCached("g1"))
	assert.Equal(t, 1, h.classifier.reviewCalls)
}

func TestSignificanceGatedAcceptedNotifiesOnce(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"bob": {post("g2", "bob", time.Hour)}}}
	h := newHarness(t, p, authorGroup("general", gating.NewSignificanceGated(), "bob"))

	h.orch.RunCycle(context.Background())
	h.orch.RunCycle(context.Background())

	assert.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, 1, h.classifier.reviewCalls)
}

func TestReviewTransportFailureIsTreatedAsNotSignificant(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"bob": {post("g3", "bob", time.Hour)}}}
	h := newHarness(t, p, authorGroup("general", gating.NewSignificanceGated(), "bob"))
	h.classifier.reviewErr = classifier.ErrTransport

	assert.NotPanics(t, func() { h.orch.RunCycle(context.Background()) })
	assert.Empty(t, h.notifier.alerts)
	assert.True(t, h.cache.IsCached("g3"))
}

func TestThresholdLowScoreIsRetriedNextCycle(t *testing.T) {
	item := withScore(post("t1", "carol", time.Hour), "DD", 500)
	p := &fakePlatform{name: "fake", search: []types.ContentItem{item}}
	h := newHarness(t, p, searchGroup(gating.NewThresholdGated("DD", 1000, 50, 80)))

	h.orch.RunCycle(context.Background())
	assert.False(t, h.cache.IsCached("t1"))
	assert.Empty(t, h.notifier.alerts)

	h.orch.RunCycle(context.Background())
	assert.Len(t, p.searches, 2, "item is fetched again on the next cycle")
	assert.False(t, h.cache.IsCached("t1"))
	assert.Empty(t, h.notifier.alerts)
	assert.Empty(t, h.classifier.sentimentCalls, "score gate fails before sentiment is computed")
}

func TestThresholdFlairMismatchIsRetriedNextCycle(t *testing.T) {
	item := withScore(post("t4", "carol", time.Hour), "Meme", 5000)
	p := &fakePlatform{name: "fake", search: []types.ContentItem{item}}
	h := newHarness(t, p, searchGroup(gating.NewThresholdGated("DD", 1000, 50, 80)))

	h.orch.RunCycle(context.Background())
	assert.False(t, h.cache.IsCached("t4"))

	h.orch.RunCycle(context.Background())
	assert.Len(t, p.searches, 2)
	assert.False(t, h.cache.IsCached("t4"), "a flair mismatch is not cached")
	assert.Empty(t, h.notifier.alerts)
	assert.Empty(t, h.classifier.sentimentCalls)
	assert.Equal(t, 0, h.classifier.reviewCalls)
}

func TestPersistFailureStillDedupsInMemory(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"desk": {post("r2", "desk", time.Hour)}}}
	h := newHarness(t, p, authorGroup("reports", gating.NewUnconditional(), "desk"))
	h.store.saveErr = errors.New("read-only file system")

	h.orch.RunCycle(context.Background())
	h.orch.RunCycle(context.Background())

	require.Len(t, h.notifier.alerts, 1)
	assert.True(t, h.cache.IsCached("r2"))
	assert.Nil(t, h.store.entries)
}

func TestThresholdWeakSentimentIsRetried(t *testing.T) {
	item := withScore(post("t2", "carol", time.Hour), "dd", 5000)
	p := &fakePlatform{name: "fake", search: []types.ContentItem{item}}
	h := newHarness(t, p, searchGroup(gating.NewThresholdGated("DD", 1000, 50, 80)))
	h.classifier.sentiment = classifier.Sentiment{Score: 20, Direction: classifier.Bearish}

	h.orch.RunCycle(context.Background())
	h.orch.RunCycle(context.Background())

	assert.False(t, h.cache.IsCached("t2"))
	assert.Empty(t, h.notifier.alerts)
	assert.Equal(t, []int{80, 80}, h.classifier.sentimentCalls)
}

func TestThresholdPassingIsCachedAndForwardedOnce(t *testing.T) {
	item := withScore(post("t3", "carol", time.Hour), "DD", 1000)
	p := &fakePlatform{name: "fake", search: []types.ContentItem{item}}
	h := newHarness(t, p, searchGroup(gating.NewThresholdGated("DD", 1000, 50, 80)))

	h.orch.RunCycle(context.Background())
	h.orch.RunCycle(context.Background())

	assert.True(t, h.cache.IsCached("t3"))
	require.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, "DD", h.notifier.alerts[0].Label)
	require.NotNil(t, h.notifier.alerts[0].SocialScore)

	// the gate's sentiment is reused for the notification
	assert.Equal(t, []int{80}, h.classifier.sentimentCalls)
	assert.Equal(t, []int{200}, h.classifier.summaryCalls)
}

func TestCacheOnAcceptForAuthorGroup(t *testing.T) {
	policy := gating.NewSignificanceGated()
	policy.Cache = gating.CacheOnAccept

	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"bob": {post("g4", "bob", time.Hour)}}}
	h := newHarness(t, p, authorGroup("general", policy, "bob"))
	h.classifier.review = classifier.Review{IsSignificant: false}

	h.orch.RunCycle(context.Background())
	h.orch.RunCycle(context.Background())

	assert.False(t, h.cache.IsCached("g4"))
	assert.Equal(t, 2, h.classifier.reviewCalls)
}

func TestFetchErrorsDoNotAbortCycle(t *testing.T) {
	p := &fakePlatform{
		name: "fake",
		byAuthor: map[string][]types.ContentItem{
			"bob": {post("ok1", "bob", time.Hour)},
		},
		authorErrs: map[string]error{
			"ghost": types.NewNotFoundError("fake", "ghost"),
			"flaky": types.NewTransientError("fake", "flaky", errors.New("timeout")),
		},
		searchErr: types.NewTransientError("fake", "stocks", errors.New("503")),
	}
	h := newHarness(t, p,
		searchGroup(gating.NewThresholdGated("DD", 0, 0, 80)),
		authorGroup("reports", gating.NewUnconditional(), "ghost", "flaky", "bob"),
	)

	h.orch.RunCycle(context.Background())

	assert.Equal(t, []string{"ghost", "flaky", "bob"}, p.fetches)
	assert.Len(t, h.notifier.alerts, 1)
}

func TestAuthorWindowDropsOldItems(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{
		"desk": {post("new", "desk", time.Hour), post("old", "desk", 8*24*time.Hour)},
	}}
	h := newHarness(t, p, authorGroup("reports", gating.NewUnconditional(), "desk"))

	h.orch.RunCycle(context.Background())

	require.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, "https://example.com/new", h.notifier.alerts[0].Permalink)
	assert.False(t, h.cache.IsCached("old"))
}

func TestNotificationFailureKeepsCachedItem(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"desk": {post("r9", "desk", time.Hour)}}}
	h := newHarness(t, p, authorGroup("reports", gating.NewUnconditional(), "desk"))
	h.notifier.err = errors.New("telegram down")

	h.orch.RunCycle(context.Background())
	h.orch.RunCycle(context.Background())

	assert.Len(t, h.notifier.alerts, 1, "delivery is not retried")
	assert.True(t, h.cache.IsCached("r9"))
}

func TestCancelledContextStopsCycle(t *testing.T) {
	p := &fakePlatform{name: "fake", byAuthor: map[string][]types.ContentItem{"desk": {post("c1", "desk", time.Hour)}}}
	h := newHarness(t, p, authorGroup("reports", gating.NewUnconditional(), "desk"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.orch.RunCycle(ctx)

	assert.Empty(t, p.fetches)
	assert.Empty(t, h.notifier.alerts)
}

func TestPlatformsRunInNameOrder(t *testing.T) {
	var order []string
	mk := func(name string) *fakePlatform {
		return &fakePlatform{name: name}
	}
	b, a := mk("bluesky"), mk("adhoc")

	orch := NewOrchestrator(OrchestratorConfig{
		Platforms: []PlatformGroups{
			{Platform: b, Groups: []Group{authorGroup("g", gating.NewUnconditional(), "x")}},
			{Platform: a, Groups: []Group{authorGroup("g", gating.NewUnconditional(), "y")}},
		},
		Classifier: &fakeClassifier{},
		Cache:      dedup.New(context.Background(), &memStore{}, 0),
		Notifier:   &recordingNotifier{},
	})
	for _, pg := range orch.platforms {
		order = append(order, pg.Platform.Name())
	}
	assert.Equal(t, []string{"adhoc", "bluesky"}, order)
}
