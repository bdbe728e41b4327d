package rank

import (
	"context"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/filter"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/recall"
	"github.com/rushteam/reckit/rerank"
)

// DefaultTopN 返回的推荐数量
const DefaultTopN = 12

// Engine 对查询执行排序 Pipeline，返回排好序的物品。
// Engine 只读共享的语料，可被并发请求使用。
type Engine struct {
	pipeline *pipeline.Pipeline
}

// NewEngine 使用给定 Pipeline 创建引擎
func NewEngine(p *pipeline.Pipeline) *Engine {
	return &Engine{pipeline: p}
}

// DefaultPipeline 构建默认排序链：
//
//	recall.corpus → filter(seen + extra) → rank.composite → rerank.topn
func DefaultPipeline(c *corpus.Corpus, weights Weights, topN int, extra ...filter.Filter) *pipeline.Pipeline {
	if topN <= 0 {
		topN = DefaultTopN
	}
	filters := append([]filter.Filter{filter.NewSeenFilter()}, extra...)
	return pipeline.New(
		&recall.CorpusRecall{Corpus: c},
		filter.NewFilterNode(filters...),
		&CompositeNode{Weights: weights},
		&rerank.TopNNode{N: topN},
	)
}

// RankItems 执行 Pipeline 并返回物品（含分数和标签）。
func (e *Engine) RankItems(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if rctx == nil || rctx.Query == nil {
		return nil, core.NewDomainError(core.ModuleRank, core.ErrorCodeInvalidInput, "rank: missing query")
	}
	return e.pipeline.Run(ctx, rctx, nil)
}

// Rank 执行 Pipeline 并只返回物品 ID。
func (e *Engine) Rank(ctx context.Context, rctx *core.RecommendContext) ([]string, error) {
	items, err := e.RankItems(ctx, rctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it != nil {
			ids = append(ids, it.ID)
		}
	}
	return ids, nil
}
