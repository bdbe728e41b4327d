// Package pipeline 把排序逻辑拆成可组合的 Node 链：
// recall（生成候选）→ filter（剔除）→ rank（打分排序）→ rerank（截断/重排）。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/pkg/logging"
)

// Kind 标记 Node 所处的阶段，用于日志和按阶段打点。
type Kind string

const (
	KindRecall Kind = "recall" // 生成候选
	KindFilter Kind = "filter" // 剔除已看过/屏蔽的候选
	KindRank   Kind = "rank"   // 打分并排序
	KindReRank Kind = "rerank" // 打散、截断
)

// Node 是 Pipeline 的最小单元：输入 items，输出 items。
// recall 节点通常忽略输入并生成新的候选。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}

// Pipeline 是 Node 的有序链，每个 Node 的输出是下一个 Node 的输入。
type Pipeline struct {
	Nodes []Node
}

// New 创建 Pipeline
func New(nodes ...Node) *Pipeline {
	return &Pipeline{Nodes: nodes}
}

// Run 依次执行所有 Node，任一 Node 出错即中止。
func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		logging.Ctx(ctx).Debug().
			Str("node", node.Name()).
			Str("kind", string(node.Kind())).
			Int("in", len(cur)).
			Int("out", len(next)).
			Dur("took", time.Since(start)).
			Msg("pipeline node done")
		cur = next
	}
	return cur, nil
}

// Names 返回各 Node 名称（用于日志和调试）
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		names[i] = n.Name()
	}
	return names
}
