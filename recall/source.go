package recall

import (
	"context"

	"github.com/rushteam/reckit/core"
)

// Source 表示一个可复用的召回源（语料全量 / 兜底列表 / ...）。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

var (
	_ Source = (*CorpusRecall)(nil)
	_ Source = (*Fallback)(nil)
)
