package config

import (
	"fmt"

	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/filter"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/pkg/conv"
	"github.com/rushteam/reckit/rank"
	"github.com/rushteam/reckit/recall"
	"github.com/rushteam/reckit/rerank"
)

// Deps 是配置驱动构建 Node 时需要的共享依赖
type Deps struct {
	Corpus  *corpus.Corpus
	Weights rank.Weights // 零值时使用 rank.DefaultWeights
	TopN    int          // <= 0 时使用 rank.DefaultTopN
}

// DefaultFactory 返回注册了内置 Node 的 NodeFactory：
//
//	recall.corpus / filter / filter.seen / filter.blacklist / filter.expr / rank.composite / rerank.diversity / rerank.topn
//
// 节点配置中的数值会覆盖 deps 中的默认值。
func DefaultFactory(deps Deps) *pipeline.NodeFactory {
	if deps.Weights == (rank.Weights{}) {
		deps.Weights = rank.DefaultWeights
	}
	if deps.TopN <= 0 {
		deps.TopN = rank.DefaultTopN
	}

	f := pipeline.NewNodeFactory()
	f.Register("recall.corpus", func(map[string]any) (pipeline.Node, error) {
		if deps.Corpus == nil {
			return nil, fmt.Errorf("recall.corpus: corpus not configured")
		}
		return &recall.CorpusRecall{Corpus: deps.Corpus}, nil
	})
	f.Register("filter", buildFilterNode)
	f.Register("filter.seen", func(map[string]any) (pipeline.Node, error) {
		return filter.NewFilterNode(filter.NewSeenFilter()), nil
	})
	f.Register("filter.blacklist", func(cfg map[string]any) (pipeline.Node, error) {
		flt, err := buildFilter("blacklist", cfg)
		if err != nil {
			return nil, err
		}
		return filter.NewFilterNode(flt), nil
	})
	f.Register("filter.expr", func(cfg map[string]any) (pipeline.Node, error) {
		flt, err := buildFilter("expr", cfg)
		if err != nil {
			return nil, err
		}
		return filter.NewFilterNode(flt), nil
	})
	f.Register("rank.composite", func(cfg map[string]any) (pipeline.Node, error) {
		return buildCompositeNode(deps.Weights, cfg), nil
	})
	f.Register("rerank.diversity", func(cfg map[string]any) (pipeline.Node, error) {
		return &rerank.Diversity{
			LabelKey:    conv.ConfigGet(cfg, "label", ""),
			MaxPerValue: int(conv.ConfigGetInt64(cfg, "max_per_value", 1)),
		}, nil
	})
	f.Register("rerank.topn", func(cfg map[string]any) (pipeline.Node, error) {
		n := conv.ConfigGetInt64(cfg, "n", int64(deps.TopN))
		if n <= 0 {
			return nil, fmt.Errorf("rerank.topn: n must be positive, got %d", n)
		}
		return &rerank.TopNNode{N: int(n)}, nil
	})
	return f
}

// ValidatePipelineConfig 校验 pipeline 配置中所有 node 类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidatePipelineConfig(cfg *pipeline.Config, factory *pipeline.NodeFactory) error {
	if cfg == nil {
		return nil
	}
	if len(cfg.Pipeline.Nodes) == 0 {
		return fmt.Errorf("pipeline %q has no nodes", cfg.Pipeline.Name)
	}
	supported := factory.Types()
	known := make(map[string]struct{}, len(supported))
	for _, t := range supported {
		known[t] = struct{}{}
	}
	for _, nc := range cfg.Pipeline.Nodes {
		if _, ok := known[nc.Type]; !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	return nil
}

// LoadPipeline 从文件加载、校验并构建 Pipeline
func LoadPipeline(path string, deps Deps) (*pipeline.Pipeline, error) {
	cfg, err := pipeline.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load pipeline %s: %w", path, err)
	}
	factory := DefaultFactory(deps)
	if err := ValidatePipelineConfig(cfg, factory); err != nil {
		return nil, err
	}
	return cfg.BuildPipeline(factory)
}

func buildFilterNode(cfg map[string]any) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]any)
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}
	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		flt, err := buildFilter(conv.ConfigGet(filterMap, "type", ""), filterMap)
		if err != nil {
			return nil, err
		}
		filters = append(filters, flt)
	}
	return filter.NewFilterNode(filters...), nil
}

func buildFilter(filterType string, cfg map[string]any) (filter.Filter, error) {
	switch filterType {
	case "seen":
		return filter.NewSeenFilter(), nil
	case "blacklist":
		ids := conv.SliceAnyToString(cfg["item_ids"])
		if ids == nil {
			ids = []string{}
		}
		return filter.NewBlacklistFilter(ids), nil
	case "expr":
		expr := conv.ConfigGet(cfg, "expr", "")
		if expr == "" {
			return nil, fmt.Errorf("expr filter: expr is required")
		}
		return filter.NewExprFilter(expr)
	default:
		return nil, fmt.Errorf("unknown filter type: %q", filterType)
	}
}

func buildCompositeNode(base rank.Weights, cfg map[string]any) *rank.CompositeNode {
	w := base
	w.Similarity = configFloat(cfg, "similarity", w.Similarity)
	w.WR = configFloat(cfg, "wr", w.WR)
	w.Popularity = configFloat(cfg, "popularity", w.Popularity)
	w.Language = configFloat(cfg, "language", w.Language)
	w.Decade = configFloat(cfg, "decade", w.Decade)
	w.DecadeSpan = configFloat(cfg, "decade_span", w.DecadeSpan)
	return &rank.CompositeNode{
		Weights: w,
		Explain: conv.ConfigGet(cfg, "explain", false),
	}
}

// YAML 中 1 与 1.0 解析出的类型不同，统一转 float64
func configFloat(cfg map[string]any, key string, defaultVal float64) float64 {
	v, ok := cfg[key]
	if !ok {
		return defaultVal
	}
	if f, ok := conv.ToFloat64(v); ok {
		return f
	}
	return defaultVal
}
