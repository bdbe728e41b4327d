package filter

import (
	"context"

	"github.com/rushteam/reckit/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉运营配置的下架物品。
type BlacklistFilter struct {
	ids map[string]struct{}
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []string) *BlacklistFilter {
	return &BlacklistFilter{ids: core.ExcludeSet(itemIDs)}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

// Len 返回黑名单大小
func (f *BlacklistFilter) Len() int { return len(f.ids) }

func (f *BlacklistFilter) ShouldFilter(
	_ context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	_, ok := f.ids[item.ID]
	return ok, nil
}
