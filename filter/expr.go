package filter

import (
	"context"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/pkg/dsl"
)

// ExprFilter 用 CEL 表达式筛选物品：表达式为 true 的物品保留，为 false 的被过滤。
//
//	f, err := filter.NewExprFilter(`item.decade >= 1980 && item.language != "xx"`)
//
// 求值出错（例如访问不存在的特征）时返回错误，FilterNode 会保留该物品。
type ExprFilter struct {
	prg *dsl.Program
}

// NewExprFilter 编译表达式
func NewExprFilter(expr string) (*ExprFilter, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &ExprFilter{prg: prg}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

// Expr 返回原始表达式
func (f *ExprFilter) Expr() string { return f.prg.String() }

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	keep, err := f.prg.Eval(item, rctx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
