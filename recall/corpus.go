// Package recall 提供候选生成节点。
package recall

import (
	"context"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/pkg/utils"
)

// 召回阶段写入 Item 的特征/标签名
const (
	FeatureSimilarity = "similarity"
	FeatureWR         = "wr"
	FeaturePopularity = "popularity"
	FeatureDecade     = "decade"
	LabelLanguage     = "language"
	LabelRecallSource = "recall_source"
)

// CorpusRecall 把整个语料作为候选，按语料顺序输出，
// 并用一次批量余弦计算写入 similarity 特征。查询向量为空时出错。
//
// 同时实现了 Source 和 pipeline.Node。
type CorpusRecall struct {
	Corpus *corpus.Corpus
}

func (r *CorpusRecall) Name() string        { return "recall.corpus" }
func (r *CorpusRecall) Kind() pipeline.Kind { return pipeline.KindRecall }

func (r *CorpusRecall) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

func (r *CorpusRecall) Recall(
	_ context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if rctx == nil || rctx.Query == nil || len(rctx.Query.Vector) == 0 {
		return nil, core.NewDomainError(core.ModuleRank, core.ErrorCodeInvalidInput, "recall.corpus: missing query vector")
	}
	sims, err := r.Corpus.Similarities(rctx.Query.Vector)
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, r.Corpus.Len())
	for i := range out {
		meta := r.Corpus.Meta(i)
		it := core.NewItem(r.Corpus.ID(i), i)
		it.Features[FeatureSimilarity] = sims[i]
		it.Features[FeatureWR] = meta.WR
		it.Features[FeaturePopularity] = meta.Popularity
		it.Features[FeatureDecade] = float64(meta.Decade)
		it.Labels[LabelLanguage] = utils.Label{Value: meta.Language, Source: "corpus"}
		it.Labels[LabelRecallSource] = utils.Label{Value: "corpus", Source: "recall"}
		out[i] = it
	}
	return out, nil
}
