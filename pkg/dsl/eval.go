// Package dsl 提供基于 CEL (Common Expression Language) 的物品表达式。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：item.decade >= 1980 / item.similarity > 0.3 / item.features.wr >= 0.5
//   - 字符串：item.language == "en" / label.recall_source == "corpus"
//   - 逻辑：item.language in ["en", "fr"] && item.popularity > 0.1
//   - 上下文：item.decade == rctx.ref_decade / item.language == rctx.ref_language
//
// 表达式编译一次，之后可被并发求值。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/reckit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
			cel.CrossTypeNumericComparisons(true),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的布尔表达式
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，表达式必须返回 bool。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsAssignableType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (p *Program) String() string { return p.expr }

// Eval 对单个物品求值。访问不存在的 key 会返回错误。
func (p *Program) Eval(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// Eval 编译并执行一次表达式（便捷方法，热路径请使用 Compile）。
func Eval(expr string, item *core.Item, rctx *core.RecommendContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Eval(item, rctx)
}

func buildInput(item *core.Item, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any, len(item.Labels))
	for k, v := range item.Labels {
		labels[k] = v.Value
	}
	features := make(map[string]any, len(item.Features))
	for k, v := range item.Features {
		features[k] = v
	}

	it := map[string]any{
		"id":       item.ID,
		"index":    int64(item.Index),
		"score":    item.Score,
		"features": features,
		"labels":   labels,
	}
	// 常用字段提升到顶层
	for _, k := range []string{"similarity", "wr", "popularity"} {
		if v, ok := item.Features[k]; ok {
			it[k] = v
		}
	}
	if v, ok := item.Features["decade"]; ok {
		it["decade"] = int64(v)
	}
	if v, ok := item.Labels["language"]; ok {
		it["language"] = v.Value
	}

	rc := map[string]any{
		"group_id":     "",
		"history":      []string{},
		"params":       map[string]any{},
		"ref_decade":   int64(0),
		"ref_language": "",
	}
	if rctx != nil {
		rc["group_id"] = rctx.GroupID
		if rctx.History != nil {
			rc["history"] = rctx.History
		}
		if rctx.Params != nil {
			rc["params"] = rctx.Params
		}
		if rctx.Query != nil {
			rc["ref_decade"] = int64(rctx.Query.RefDecade)
			rc["ref_language"] = rctx.Query.RefLanguage
		}
	}

	return map[string]any{
		"item":  it,
		"label": labels,
		"rctx":  rc,
	}
}
