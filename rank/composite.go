// Package rank 提供打分排序节点和排序引擎。
package rank

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/pkg/utils"
	"github.com/rushteam/reckit/recall"
)

// 排序阶段写入 Item 的特征名
const (
	FeatureLangBonus   = "lang_bonus"
	FeatureDecadeScore = "decade_score"
)

// Weights 是组合打分的权重：
//
//	score = Similarity·sim + WR·wr + Popularity·pop + Language·langBonus + Decade·decadeScore
//	decadeScore = 1 - min(|decade - refDecade| / DecadeSpan, 1)
type Weights struct {
	Similarity float64 `koanf:"similarity"`
	WR         float64 `koanf:"wr"`
	Popularity float64 `koanf:"popularity"`
	Language   float64 `koanf:"language"`
	Decade     float64 `koanf:"decade"`
	DecadeSpan float64 `koanf:"decade_span"`
}

// DefaultWeights 线上默认权重
var DefaultWeights = Weights{
	Similarity: 0.45,
	WR:         0.20,
	Popularity: 0.10,
	Language:   0.30,
	Decade:     0.03,
	DecadeSpan: 50,
}

// DecadeScore 返回年代接近度，取值 [0,1]
func (w Weights) DecadeScore(decade, ref int) float64 {
	span := w.DecadeSpan
	if span <= 0 {
		span = DefaultWeights.DecadeSpan
	}
	penalty := math.Abs(float64(decade-ref)) / span
	return 1 - math.Min(penalty, 1)
}

// Score 计算单个物品的组合分
func (w Weights) Score(sim, wr, pop, langBonus, decadeScore float64) float64 {
	return w.Similarity*sim +
		w.WR*wr +
		w.Popularity*pop +
		w.Language*langBonus +
		w.Decade*decadeScore
}

// CompositeNode 按 Weights 打分并降序稳定排序，同分物品保持输入顺序。
//   - 读取 features：similarity / wr / popularity / decade，label：language
//   - 写入 features：lang_bonus / decade_score，label：rank_model
type CompositeNode struct {
	Weights Weights

	// Explain 为 true 时把各分量写成 label，便于调试输出
	Explain bool
}

// NewCompositeNode 使用默认权重创建节点
func NewCompositeNode() *CompositeNode {
	return &CompositeNode{Weights: DefaultWeights}
}

func (n *CompositeNode) Name() string        { return "rank.composite" }
func (n *CompositeNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *CompositeNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	if rctx == nil || rctx.Query == nil {
		return nil, core.NewDomainError(core.ModuleRank, core.ErrorCodeInvalidInput, "rank.composite: missing query")
	}
	q := rctx.Query

	for _, it := range items {
		if it == nil {
			continue
		}
		langBonus := 0.0
		if it.Labels[recall.LabelLanguage].Value == q.RefLanguage {
			langBonus = 1.0
		}
		decadeScore := n.Weights.DecadeScore(int(it.Features[recall.FeatureDecade]), q.RefDecade)

		it.Features[FeatureLangBonus] = langBonus
		it.Features[FeatureDecadeScore] = decadeScore
		it.Score = n.Weights.Score(
			it.Features[recall.FeatureSimilarity],
			it.Features[recall.FeatureWR],
			it.Features[recall.FeaturePopularity],
			langBonus,
			decadeScore,
		)
		it.PutLabel("rank_model", utils.Label{Value: "composite", Source: "rank"})
		if n.Explain {
			it.PutLabel("score", utils.FloatLabel(it.Score, "rank"))
			it.PutLabel(FeatureLangBonus, utils.FloatLabel(langBonus, "rank"))
			it.PutLabel(FeatureDecadeScore, utils.FloatLabel(decadeScore, "rank"))
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i] == nil {
			return false
		}
		if items[j] == nil {
			return true
		}
		return items[i].Score > items[j].Score
	})
	return items, nil
}
