package filter

import (
	"context"

	"github.com/rushteam/reckit/core"
)

// SeenFilter 过滤掉已经看过的物品。
// 排除集合来自 rctx.Query.Exclude；没有查询时退回到 rctx.History。
type SeenFilter struct{}

func NewSeenFilter() *SeenFilter { return &SeenFilter{} }

func (f *SeenFilter) Name() string {
	return "filter.seen"
}

func (f *SeenFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx == nil {
		return false, nil
	}
	if rctx.Query != nil && rctx.Query.Exclude != nil {
		return rctx.Query.Excluded(item.ID), nil
	}
	for _, id := range rctx.History {
		if id == item.ID {
			return true, nil
		}
	}
	return false, nil
}
