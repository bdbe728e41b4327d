package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/rank"
	"github.com/rushteam/reckit/rerank"
)

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.New([]corpus.Record{
		{ID: "1", Vector: []float64{1, 0}, Meta: corpus.Metadata{Popularity: 0.9, WR: 0.9, Language: "en", Decade: 1990}},
		{ID: "2", Vector: []float64{0.9, 0.1}, Meta: corpus.Metadata{Popularity: 0.5, WR: 0.5, Language: "en", Decade: 2000}},
		{ID: "3", Vector: []float64{0, 1}, Meta: corpus.Metadata{Popularity: 0.1, WR: 0.2, Language: "fr", Decade: 1970}},
		{ID: "4", Vector: []float64{0.7, 0.7}, Meta: corpus.Metadata{Popularity: 0.3, WR: 0.6, Language: "en", Decade: 2010}},
	})
	require.NoError(t, err)
	return c
}

func TestDefaultFactoryTypes(t *testing.T) {
	f := DefaultFactory(Deps{})
	assert.Equal(t, []string{
		"filter",
		"filter.blacklist",
		"filter.expr",
		"filter.seen",
		"rank.composite",
		"recall.corpus",
		"rerank.diversity",
		"rerank.topn",
	}, f.Types())

	_, err := f.Build("recall.corpus", nil)
	assert.Error(t, err, "corpus is required")
}

func TestLoadPipelineFromYAML(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", `
pipeline:
  name: movies
  nodes:
    - type: recall.corpus
    - type: filter
      config:
        filters:
          - type: seen
          - type: blacklist
            item_ids: [4]
    - type: filter.expr
      config:
        expr: "item.decade >= 1980"
    - type: rank.composite
      config:
        language: 1
    - type: rerank.topn
      config:
        n: 5
`)
	p, err := LoadPipeline(path, Deps{Corpus: testCorpus(t)})
	require.NoError(t, err)
	assert.Equal(t, []string{"recall.corpus", "filter.node", "filter.node", "rank.composite", "rerank.topn"}, p.Names())

	composite, ok := p.Nodes[3].(*rank.CompositeNode)
	require.True(t, ok)
	assert.InDelta(t, 1.0, composite.Weights.Language, 1e-12)
	assert.InDelta(t, 0.45, composite.Weights.Similarity, 1e-12)

	rctx := &core.RecommendContext{
		History: []string{"1"},
		Query: &core.Query{
			Vector:      []float64{1, 0},
			Exclude:     core.ExcludeSet([]string{"1"}),
			RefDecade:   2000,
			RefLanguage: "en",
		},
	}
	items, err := p.Run(context.Background(), rctx, nil)
	require.NoError(t, err)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	// 1 已看过，4 在黑名单，3 不满足年代表达式
	assert.Equal(t, []string{"2"}, ids)
}

func TestDiversityNode(t *testing.T) {
	node, err := DefaultFactory(Deps{}).Build("rerank.diversity", map[string]any{"max_per_value": 3})
	require.NoError(t, err)
	d := node.(*rerank.Diversity)
	assert.Equal(t, 3, d.MaxPerValue)
	assert.Empty(t, d.LabelKey)
}

func TestTopNFromDeps(t *testing.T) {
	f := DefaultFactory(Deps{TopN: 3})
	node, err := f.Build("rerank.topn", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, node.(*rerank.TopNNode).N)

	_, err = f.Build("rerank.topn", map[string]any{"n": 0})
	assert.Error(t, err)
}

func TestFilterBuildErrors(t *testing.T) {
	f := DefaultFactory(Deps{})

	_, err := f.Build("filter", map[string]any{})
	assert.Error(t, err, "filters missing")

	_, err = f.Build("filter", map[string]any{"filters": []any{map[string]any{"type": "bogus"}}})
	assert.Error(t, err)

	_, err = f.Build("filter.expr", map[string]any{})
	assert.Error(t, err, "expr missing")

	_, err = f.Build("filter.expr", map[string]any{"expr": "item.decade +"})
	assert.Error(t, err, "syntax error")
}

func TestValidatePipelineConfig(t *testing.T) {
	f := DefaultFactory(Deps{})

	cfg := &pipeline.Config{}
	assert.Error(t, ValidatePipelineConfig(cfg, f), "no nodes")

	cfg.Pipeline.Nodes = []pipeline.NodeConfig{{Type: "recall.corpus"}, {Type: "rank.lr"}}
	err := ValidatePipelineConfig(cfg, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"rank.lr"`)

	cfg.Pipeline.Nodes = cfg.Pipeline.Nodes[:1]
	assert.NoError(t, ValidatePipelineConfig(cfg, f))
	assert.NoError(t, ValidatePipelineConfig(nil, f))
}
