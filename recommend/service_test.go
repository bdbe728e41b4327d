package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/feature"
	"github.com/rushteam/reckit/history"
	"github.com/rushteam/reckit/rank"
	"github.com/rushteam/reckit/recall"
	"github.com/rushteam/reckit/resolver"
	"github.com/rushteam/reckit/store"
)

const (
	testDim   = 16
	testGroup = "64b7f0c2a1d3e4f5a6b7c8d9"
)

func unit(i int) []float64 {
	v := make([]float64, testDim)
	v[i%testDim] = 1
	return v
}

// 14 个物品，ID "1".."14"，流行度与评分随 ID 递增
func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	records := make([]corpus.Record, 14)
	for i := range records {
		score := float64(i+1) / 14
		lang := "en"
		if i%3 == 0 {
			lang = "fr"
		}
		records[i] = corpus.Record{
			ID:     fmt.Sprint(i + 1),
			Vector: unit(i),
			Meta:   corpus.Metadata{Popularity: score, WR: score, Language: lang, Decade: 1950 + 10*(i%7)},
		}
	}
	c, err := corpus.New(records)
	require.NoError(t, err)
	return c
}

type fakeFetcher struct {
	movies map[string]*feature.RawFeatures
	calls  atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) (*feature.RawFeatures, error) {
	f.calls.Add(1)
	raw, ok := f.movies[id]
	if !ok {
		return nil, core.NewDomainError(core.ModuleFetcher, core.ErrorCodeUnavailable, "content api down")
	}
	cp := *raw
	return &cp, nil
}

// spyRanker 记录每次排序收到的查询
type spyRanker struct {
	inner   Ranker
	mu      sync.Mutex
	queries []*core.Query
}

func (r *spyRanker) Rank(ctx context.Context, rctx *core.RecommendContext) ([]string, error) {
	r.mu.Lock()
	r.queries = append(r.queries, rctx.Query)
	r.mu.Unlock()
	return r.inner.Rank(ctx, rctx)
}

func (r *spyRanker) last() *core.Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queries) == 0 {
		return nil
	}
	return r.queries[len(r.queries)-1]
}

type fixture struct {
	corpus   *corpus.Corpus
	fetcher  *fakeFetcher
	cache    *resolver.StoreCache
	ranker   *spyRanker
	fallback *recall.Fallback
	history  *history.MemorySource
}

func newFixture(t *testing.T, movies map[string]*feature.RawFeatures) *fixture {
	t.Helper()
	c := testCorpus(t)
	fx := &fixture{
		corpus:   c,
		fetcher:  &fakeFetcher{movies: movies},
		cache:    resolver.NewStoreCache(store.NewMemoryStore(), "", 0),
		ranker:   &spyRanker{inner: rank.NewEngine(rank.DefaultPipeline(c, rank.DefaultWeights, rank.DefaultTopN))},
		fallback: recall.NewFallback(c, store.NewMemoryStore(), "", 0),
		history:  history.NewMemorySource(),
	}
	return fx
}

func (fx *fixture) service(opts ...Option) *Service {
	res := resolver.New(fx.corpus, fx.cache, fx.fetcher, feature.NewHashEncoder(testDim), resolver.Config{})
	opts = append([]Option{WithHistory(fx.history)}, opts...)
	return New(res, fx.ranker, fx.fallback, opts...)
}

func TestEmptyHistoryServesFallback(t *testing.T) {
	fx := newFixture(t, nil)
	svc := fx.service()
	want, err := fx.fallback.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, want, 12)
	assert.Equal(t, "14", want[0])

	res, err := svc.ForGroup(context.Background(), testGroup)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, want, res.IDs)

	res, err = svc.ForHistory(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, want, res.IDs)
	assert.Nil(t, fx.ranker.last(), "ranker is not consulted")
}

func TestCorpusOnlyHistory(t *testing.T) {
	fx := newFixture(t, nil)
	fx.history.Append(testGroup, "5")
	svc := fx.service()

	res, err := svc.ForGroup(context.Background(), testGroup)
	require.NoError(t, err)
	assert.Equal(t, SourceRanked, res.Source)
	assert.NotContains(t, res.IDs, "5")
	assert.LessOrEqual(t, len(res.IDs), 12)
	assert.Equal(t, []resolver.Resolved{{ID: "5", Tier: resolver.TierCorpus}}, res.Resolved)

	idx, ok := fx.corpus.Lookup("5")
	require.True(t, ok)
	q := fx.ranker.last()
	require.NotNil(t, q)
	assert.Equal(t, fx.corpus.Vector(idx), q.Vector, "single corpus item is its own query vector")
	assert.Equal(t, fx.corpus.Meta(idx).Decade, res.RefDecade)
	assert.Equal(t, fx.corpus.Meta(idx).Language, res.RefLanguage)
	assert.Zero(t, fx.fetcher.calls.Load())
}

func TestColdItemIsFetchedOnceThenCached(t *testing.T) {
	fx := newFixture(t, map[string]*feature.RawFeatures{
		"9001": {ID: "9001", Genres: "Action", Language: "fr", ReleaseDate: "1995-03-02"},
	})
	svc := fx.service()
	ctx := context.Background()

	first, err := svc.ForHistory(ctx, []string{"9001"})
	require.NoError(t, err)
	assert.Equal(t, SourceRanked, first.Source)
	assert.Equal(t, 1990, first.RefDecade)
	assert.Equal(t, "fr", first.RefLanguage)
	assert.Equal(t, resolver.TierFetch, first.Resolved[0].Tier)
	firstVector := fx.ranker.last().Vector

	entry, err := fx.cache.Get(ctx, "9001")
	require.NoError(t, err)
	assert.Equal(t, 1990, entry.Decade)
	assert.Equal(t, "fr", entry.Language)

	second, err := svc.ForHistory(ctx, []string{"9001"})
	require.NoError(t, err)
	assert.Equal(t, resolver.TierCache, second.Resolved[0].Tier)
	assert.InDeltaSlice(t, firstVector, fx.ranker.last().Vector, 1e-12)
	assert.Equal(t, first.IDs, second.IDs)
	assert.EqualValues(t, 1, fx.fetcher.calls.Load(), "second request served from cache")
}

func TestUnresolvableHistory(t *testing.T) {
	t.Run("fallback by default", func(t *testing.T) {
		fx := newFixture(t, nil)
		res, err := fx.service().ForHistory(context.Background(), []string{"8001", "8002"})
		require.NoError(t, err)
		assert.Equal(t, SourceFallback, res.Source)
		want, _ := fx.fallback.Get(context.Background())
		assert.Equal(t, want, res.IDs)
		assert.Nil(t, fx.ranker.last(), "no ranking from zero vectors")
	})

	t.Run("error when configured", func(t *testing.T) {
		fx := newFixture(t, nil)
		res, err := fx.service(WithNoDataError(true)).ForHistory(context.Background(), []string{"8001", "8002"})
		require.Error(t, err)
		assert.True(t, core.IsNoData(err))
		assert.Nil(t, res)
		assert.Nil(t, fx.ranker.last())
	})
}

func TestMixedHistoryExcludesAllWatched(t *testing.T) {
	fx := newFixture(t, map[string]*feature.RawFeatures{
		"9001": {ID: "9001", Genres: "Drama", Overview: "a quiet story", Language: "en", ReleaseDate: "2004-01-01"},
	})
	svc := fx.service()

	res, err := svc.ForHistory(context.Background(), []string{"3", "9001", "3", "7", "404"})
	require.NoError(t, err)
	assert.Equal(t, SourceRanked, res.Source)
	for _, id := range []string{"3", "7", "9001"} {
		assert.NotContains(t, res.IDs, id)
	}
	assert.Equal(t, []resolver.Resolved{
		{ID: "3", Tier: resolver.TierCorpus},
		{ID: "9001", Tier: resolver.TierFetch},
		{ID: "7", Tier: resolver.TierCorpus},
	}, res.Resolved)
	assert.Len(t, res.IDs, 12, "14 items minus 2 watched corpus items")
}

func TestInvalidGroup(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.service().ForGroup(context.Background(), "not-a-group")
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))
}

type failingHistory struct{}

func (failingHistory) Recent(context.Context, string, int) ([]string, error) {
	return nil, core.WrapDomainError(core.ModuleHistory, core.ErrorCodeUnavailable, "history: query failed", errors.New("db down"))
}

func TestHistoryErrors(t *testing.T) {
	fx := newFixture(t, nil)

	_, err := fx.service(WithHistory(failingHistory{})).ForGroup(context.Background(), testGroup)
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))

	svc := New(nil, fx.ranker, fx.fallback)
	_, err = svc.ForGroup(context.Background(), testGroup)
	require.Error(t, err)
	assert.True(t, core.IsNotSupported(err))
}

func TestWindowLimitsHistory(t *testing.T) {
	fx := newFixture(t, nil)
	for i := 14; i >= 1; i-- {
		fx.history.Append(testGroup, fmt.Sprint(i))
	}
	res, err := fx.service(WithWindow(3)).ForGroup(context.Background(), testGroup)
	require.NoError(t, err)
	require.Len(t, res.Resolved, 3)
	for _, r := range res.Resolved {
		assert.NotContains(t, res.IDs, r.ID)
	}
}
