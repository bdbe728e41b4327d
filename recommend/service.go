// Package recommend 串联历史读取、向量解析、排序和兜底，是请求入口使用的服务层。
package recommend

import (
	"context"
	"time"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/history"
	"github.com/rushteam/reckit/pkg/logging"
	"github.com/rushteam/reckit/pkg/metrics"
	"github.com/rushteam/reckit/resolver"
)

// 结果来源
const (
	SourceRanked   = metrics.SourceRanked
	SourceFallback = metrics.SourceFallback
)

// Resolver 把历史解析为查询向量（resolver.Resolver 实现）
type Resolver interface {
	Resolve(ctx context.Context, ids []string) (*resolver.Resolution, error)
}

// Ranker 对查询排序并返回物品 ID（rank.Engine 实现）
type Ranker interface {
	Rank(ctx context.Context, rctx *core.RecommendContext) ([]string, error)
}

// FallbackSource 提供兜底列表（recall.Fallback 实现）
type FallbackSource interface {
	Get(ctx context.Context) ([]string, error)
}

// Result 是一次推荐的结果
type Result struct {
	IDs         []string            `json:"ids"`
	Source      string              `json:"source"`
	RefDecade   int                 `json:"ref_decade,omitempty"`
	RefLanguage string              `json:"ref_language,omitempty"`
	Resolved    []resolver.Resolved `json:"resolved,omitempty"`
}

// Service 推荐服务，可并发使用
type Service struct {
	resolver Resolver
	ranker   Ranker
	fallback FallbackSource
	history  history.Source

	window      int
	noDataError bool
}

// Option 配置 Service
type Option func(*Service)

// WithHistory 设置小组历史来源，未设置时 ForGroup 返回 NOT_SUPPORTED
func WithHistory(src history.Source) Option {
	return func(s *Service) { s.history = src }
}

// WithWindow 设置历史窗口大小，默认 history.DefaultWindow
func WithWindow(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.window = k
		}
	}
}

// WithNoDataError 为 true 时，历史非空但无法解析任何物品返回错误而不是兜底列表
func WithNoDataError(enabled bool) Option {
	return func(s *Service) { s.noDataError = enabled }
}

// New 创建推荐服务
func New(res Resolver, ranker Ranker, fallback FallbackSource, opts ...Option) *Service {
	s := &Service{
		resolver: res,
		ranker:   ranker,
		fallback: fallback,
		window:   history.DefaultWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForGroup 按小组最近的观看历史推荐。
// 小组 ID 非法返回 history 模块的 INVALID_INPUT 错误。
func (s *Service) ForGroup(ctx context.Context, groupID string) (*Result, error) {
	start := time.Now()
	res, err := s.forGroup(ctx, groupID)
	s.record(res, err, start)
	return res, err
}

func (s *Service) forGroup(ctx context.Context, groupID string) (*Result, error) {
	if err := history.ValidateGroupID(groupID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, core.NewDomainError(core.ModuleHistory, core.ErrorCodeNotSupported, "recommend: no history source configured")
	}
	ids, err := s.history.Recent(ctx, groupID, s.window)
	if err != nil {
		return nil, err
	}
	rctx := &core.RecommendContext{GroupID: groupID, History: history.Window(ids, s.window)}
	return s.recommend(ctx, rctx)
}

// ForHistory 按调用方给出的观看历史推荐（最近的在前）。
func (s *Service) ForHistory(ctx context.Context, ids []string) (*Result, error) {
	start := time.Now()
	res, err := s.recommend(ctx, &core.RecommendContext{History: history.Window(ids, s.window)})
	s.record(res, err, start)
	return res, err
}

func (s *Service) recommend(ctx context.Context, rctx *core.RecommendContext) (*Result, error) {
	log := logging.Ctx(ctx)
	if len(rctx.History) == 0 {
		log.Debug().Str("group", rctx.GroupID).Msg("empty history, serving fallback")
		return s.fallbackResult(ctx)
	}

	resolution, err := s.resolver.Resolve(ctx, rctx.History)
	if err != nil {
		if core.IsNoData(err) && !s.noDataError {
			log.Warn().Str("group", rctx.GroupID).Int("history", len(rctx.History)).Msg("no resolvable history, serving fallback")
			return s.fallbackResult(ctx)
		}
		return nil, err
	}

	rctx.Query = resolution.Query(rctx.History)
	ids, err := s.ranker.Rank(ctx, rctx)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("group", rctx.GroupID).
		Int("history", len(rctx.History)).
		Int("resolved", len(resolution.Items)).
		Int("ref_decade", rctx.Query.RefDecade).
		Str("ref_language", rctx.Query.RefLanguage).
		Msg("ranked recommendations")
	return &Result{
		IDs:         ids,
		Source:      SourceRanked,
		RefDecade:   rctx.Query.RefDecade,
		RefLanguage: rctx.Query.RefLanguage,
		Resolved:    resolution.Items,
	}, nil
}

func (s *Service) fallbackResult(ctx context.Context) (*Result, error) {
	ids, err := s.fallback.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{IDs: ids, Source: SourceFallback}, nil
}

func (s *Service) record(res *Result, err error, start time.Time) {
	source := metrics.SourceError
	if err == nil && res != nil {
		source = res.Source
	}
	metrics.RecordRecommend(source, time.Since(start))
}
