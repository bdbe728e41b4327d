package rank

import (
	"context"
	"fmt"
	"testing"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecadeScore(t *testing.T) {
	w := DefaultWeights
	tests := []struct {
		decade, ref int
		want        float64
	}{
		{2000, 2000, 1},
		{1990, 2000, 0.8},
		{2020, 2000, 0.6},
		{1950, 2000, 0},
		{1900, 2000, 0},
		{0, 2000, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, w.DecadeScore(tt.decade, tt.ref), 1e-12, "%d vs %d", tt.decade, tt.ref)
	}
	assert.InDelta(t, 0.8, (Weights{}).DecadeScore(1990, 2000), 1e-12, "zero span uses default")
}

func TestScoreFormula(t *testing.T) {
	got := DefaultWeights.Score(0.5, 0.4, 0.2, 1, 0.8)
	assert.InDelta(t, 0.45*0.5+0.20*0.4+0.10*0.2+0.30*1+0.03*0.8, got, 1e-12)
}

// scenarioCorpus 构建 n 个物品的语料；向量在二维平面上，元数据可定制
func scenarioCorpus(t *testing.T, n int, meta func(i int) corpus.Metadata, vec func(i int) []float64) *corpus.Corpus {
	t.Helper()
	records := make([]corpus.Record, n)
	for i := range records {
		records[i] = corpus.Record{ID: fmt.Sprint(i + 1), Vector: vec(i), Meta: meta(i)}
	}
	c, err := corpus.New(records)
	require.NoError(t, err)
	return c
}

func queryCtx(vec []float64, exclude []string, decade int, lang string) *core.RecommendContext {
	return &core.RecommendContext{
		History: exclude,
		Query: &core.Query{
			Vector:      vec,
			Exclude:     core.ExcludeSet(exclude),
			RefDecade:   decade,
			RefLanguage: lang,
		},
	}
}

func TestEngineRank_ExcludesHistoryAndCaps(t *testing.T) {
	c := scenarioCorpus(t, 40,
		func(i int) corpus.Metadata {
			return corpus.Metadata{Popularity: float64(i) / 40, WR: 0.5, Language: "en", Decade: 2000}
		},
		func(i int) []float64 { return []float64{1, float64(i) / 10} },
	)
	e := NewEngine(DefaultPipeline(c, DefaultWeights, 0))

	history := []string{"40", "39", "1"}
	ids, err := e.Rank(context.Background(), queryCtx([]float64{1, 0}, history, 2000, "en"))
	require.NoError(t, err)
	assert.Len(t, ids, DefaultTopN)
	for _, h := range history {
		assert.NotContains(t, ids, h)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestEngineRank_FewerCandidatesThanTopN(t *testing.T) {
	c := scenarioCorpus(t, 5,
		func(int) corpus.Metadata { return corpus.Metadata{Language: "en"} },
		func(i int) []float64 { return []float64{1, float64(i)} },
	)
	ids, err := NewEngine(DefaultPipeline(c, DefaultWeights, 12)).
		Rank(context.Background(), queryCtx([]float64{1, 0}, []string{"2"}, 2000, "en"))
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	ids, err = NewEngine(DefaultPipeline(c, DefaultWeights, 12)).
		Rank(context.Background(), queryCtx([]float64{1, 0}, []string{"1", "2", "3", "4", "5"}, 2000, "en"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngineRank_TiesKeepCorpusOrder(t *testing.T) {
	c := scenarioCorpus(t, 6,
		func(int) corpus.Metadata { return corpus.Metadata{Popularity: 0.3, WR: 0.3, Language: "en", Decade: 1990} },
		func(int) []float64 { return []float64{1, 1} },
	)
	ids, err := NewEngine(DefaultPipeline(c, DefaultWeights, 12)).
		Rank(context.Background(), queryCtx([]float64{1, 1}, nil, 1990, "en"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, ids)
}

func TestEngineRank_LanguageAndDecadeSignals(t *testing.T) {
	// 三个物品向量相同，只在语言和年代上不同
	metas := []corpus.Metadata{
		{Language: "fr", Decade: 2000},
		{Language: "en", Decade: 1950},
		{Language: "en", Decade: 2000},
	}
	c := scenarioCorpus(t, len(metas),
		func(i int) corpus.Metadata { return metas[i] },
		func(int) []float64 { return []float64{0, 1} },
	)
	items, err := NewEngine(DefaultPipeline(c, DefaultWeights, 12)).
		RankItems(context.Background(), queryCtx([]float64{0, 1}, nil, 2000, "en"))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "3", items[0].ID)
	assert.Equal(t, "2", items[1].ID)
	assert.Equal(t, "1", items[2].ID)
	assert.InDelta(t, 0.45+0.30+0.03, items[0].Score, 1e-12)
	assert.InDelta(t, 0.45+0.30, items[1].Score, 1e-12)
	assert.InDelta(t, 0.45+0.03, items[2].Score, 1e-12)
	assert.Equal(t, 1.0, items[0].Features[FeatureLangBonus])
	assert.Equal(t, 0.0, items[1].Features[FeatureDecadeScore])
}

func TestEngineRank_ExtraFilters(t *testing.T) {
	c := scenarioCorpus(t, 4,
		func(i int) corpus.Metadata { return corpus.Metadata{Language: "en", Decade: 1970 + 10*i} },
		func(int) []float64 { return []float64{1, 0} },
	)
	expr, err := filter.NewExprFilter(`item.decade >= 1990`)
	require.NoError(t, err)

	ids, err := NewEngine(DefaultPipeline(c, DefaultWeights, 12, expr, filter.NewBlacklistFilter([]string{"4"}))).
		Rank(context.Background(), queryCtx([]float64{1, 0}, nil, 2000, "en"))
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids)
}

func TestEngineRank_RequiresQuery(t *testing.T) {
	c := scenarioCorpus(t, 1,
		func(int) corpus.Metadata { return corpus.Metadata{} },
		func(int) []float64 { return []float64{1} },
	)
	_, err := NewEngine(DefaultPipeline(c, DefaultWeights, 12)).Rank(context.Background(), &core.RecommendContext{})
	assert.True(t, core.IsInvalidInput(err))
}

func TestCompositeNodeExplain(t *testing.T) {
	it := core.NewItem("1", 0)
	it.Features["similarity"] = 1
	n := &CompositeNode{Weights: DefaultWeights, Explain: true}

	out, err := n.Process(context.Background(), queryCtx(nil, nil, 2000, "en"), []*core.Item{it, nil})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "composite", out[0].Labels["rank_model"].Value)
	assert.Equal(t, "0.4500", out[0].Labels["score"].Value)
	assert.Nil(t, out[1])
}
