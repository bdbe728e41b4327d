package filter

import (
	"context"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/pkg/logging"
)

// Filter 判断单个物品是否需要剔除，返回 true 表示剔除。
type Filter interface {
	Name() string
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该物品就会被过滤掉；过滤器出错时保留物品。
// 输出保持输入顺序。
type FilterNode struct {
	Filters []Filter
}

// NewFilterNode 创建过滤 Node
func NewFilterNode(filters ...Filter) *FilterNode {
	return &FilterNode{Filters: filters}
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	removed := make(map[string]int, len(n.Filters))
	errCount := 0

	for _, item := range items {
		if item == nil {
			continue
		}

		reason := ""
		for _, f := range n.Filters {
			ok, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				errCount++
				continue
			}
			if ok {
				reason = f.Name()
				break
			}
		}

		if reason != "" {
			removed[reason]++
			continue
		}
		out = append(out, item)
	}

	if errCount > 0 {
		logging.Ctx(ctx).Warn().Int("errors", errCount).Msg("filter errors, items kept")
	}
	ev := logging.Ctx(ctx).Debug().Int("in", len(items)).Int("out", len(out))
	for name, c := range removed {
		ev = ev.Int(name, c)
	}
	ev.Msg("filtered")
	return out, nil
}
