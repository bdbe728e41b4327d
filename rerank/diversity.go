package rerank

import (
	"context"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/recall"
)

// Diversity 是按标签打散的 ReRank：同一标签值最多保留 MaxPerValue 个在前面，
// 超出的物品按原顺序移到列表末尾（不丢弃），放在 TopN 之前使用。
// 没有该标签的物品不受限制。
//
//	p := pipeline.New(..., rank.NewCompositeNode(), &rerank.Diversity{MaxPerValue: 4}, &rerank.TopNNode{N: 12})
type Diversity struct {
	LabelKey    string // 默认 recall.LabelLanguage
	MaxPerValue int    // 默认 1
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	key := n.LabelKey
	if key == "" {
		key = recall.LabelLanguage
	}
	limit := n.MaxPerValue
	if limit <= 0 {
		limit = 1
	}

	counts := make(map[string]int, 32)
	out := make([]*core.Item, 0, len(items))
	var overflow []*core.Item

	for _, it := range items {
		if it == nil {
			continue
		}
		value := ""
		if lbl, ok := it.Labels[key]; ok {
			value = lbl.Value
		}
		if value == "" {
			out = append(out, it)
			continue
		}
		if counts[value] >= limit {
			overflow = append(overflow, it)
			continue
		}
		counts[value]++
		out = append(out, it)
	}

	return append(out, overflow...), nil
}
