package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rushteam/reckit/config"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/feature"
	"github.com/rushteam/reckit/filter"
	"github.com/rushteam/reckit/history"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/pkg/logging"
	"github.com/rushteam/reckit/rank"
	"github.com/rushteam/reckit/recall"
	"github.com/rushteam/reckit/recommend"
	"github.com/rushteam/reckit/resolver"
	"github.com/rushteam/reckit/store"
)

// app 持有服务运行期的全部组件
type app struct {
	corpus   *corpus.Corpus
	fallback *recall.Fallback
	service  *recommend.Service

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("close resource failed")
		}
	}
}

func loadCorpus(cfg *config.Config) (*corpus.Corpus, error) {
	c, err := corpus.Load(cfg.Corpus.Dir)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", cfg.Corpus.Dir, err)
	}
	logging.Info().Str("dir", cfg.Corpus.Dir).Int("items", c.Len()).Int("dim", c.Dim()).Msg("corpus loaded")
	return c, nil
}

func openFallback(ctx context.Context, cfg *config.Config, c *corpus.Corpus) (*recall.Fallback, func() error, error) {
	s, err := store.Open(ctx, cfg.Fallback.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open fallback store: %w", err)
	}
	return recall.NewFallback(c, s, cfg.Fallback.Key, cfg.Fallback.N), s.Close, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	c, err := loadCorpus(cfg)
	if err != nil {
		return nil, err
	}
	a.corpus = c

	fb, closeFallback, err := openFallback(ctx, cfg, a.corpus)
	if err != nil {
		return nil, err
	}
	a.fallback = fb
	a.closers = append(a.closers, closeFallback)

	cache, err := a.openCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	encoder, err := newEncoder(cfg, a.corpus.Dim())
	if err != nil {
		return nil, err
	}
	var fetcher feature.Fetcher
	if cfg.TMDB.Enabled() {
		fetcher = feature.NewTMDBFetcher(cfg.TMDB.Fetcher())
	} else {
		logging.Warn().Msg("tmdb api key not set, items outside corpus and cache will be skipped")
	}
	res := resolver.New(a.corpus, cache, fetcher, encoder, cfg.Resolver.Resolver())

	p, err := buildPipeline(cfg, a.corpus)
	if err != nil {
		return nil, err
	}
	logging.Info().Strs("nodes", p.Names()).Msg("ranking pipeline ready")

	opts := []recommend.Option{
		recommend.WithWindow(cfg.History.Window),
		recommend.WithNoDataError(cfg.Recommend.OnNoData == config.OnNoDataError),
	}
	src, err := a.openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, recommend.WithHistory(src))

	a.service = recommend.New(res, rank.NewEngine(p), a.fallback, opts...)
	ready = true
	return a, nil
}

// openCache 返回 nil 表示不启用缓存层
func (a *app) openCache(ctx context.Context, cfg *config.Config) (resolver.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheStore:
		s, err := store.Open(ctx, cfg.Cache.Store)
		if err != nil {
			return nil, fmt.Errorf("open cache store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return resolver.NewStoreCache(s, cfg.Cache.Prefix, cfg.Cache.TTL), nil
	case config.CachePGVector:
		db, err := sql.Open("postgres", cfg.Cache.DSN)
		if err != nil {
			return nil, fmt.Errorf("open pgvector cache: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		pg, err := resolver.NewPGCache(db, cfg.Cache.Table, a.corpus.Dim())
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, nil
	}
}

func (a *app) openHistory(ctx context.Context, cfg *config.Config) (history.Source, error) {
	if cfg.History.Source == config.HistoryMemory {
		return history.NewMemorySource(), nil
	}
	db, err := sql.Open(cfg.History.Driver, cfg.History.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if cfg.History.Driver == history.DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	src, err := history.NewSQLSource(db, cfg.History.Driver, cfg.History.Table)
	if err != nil {
		return nil, err
	}
	if err := src.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return src, nil
}

func newEncoder(cfg *config.Config, corpusDim int) (feature.Encoder, error) {
	dim := cfg.Encoder.Dimension
	if dim == 0 {
		dim = corpusDim
	}
	if dim != corpusDim {
		return nil, fmt.Errorf("encoder dimension %d does not match corpus dimension %d", dim, corpusDim)
	}
	switch cfg.Encoder.Kind {
	case config.EncoderOpenAI:
		enc, err := feature.NewOpenAIEncoder(feature.OpenAIConfig{
			BaseURL:    cfg.Encoder.OpenAI.BaseURL,
			APIKey:     cfg.Encoder.OpenAI.APIKey,
			Model:      cfg.Encoder.OpenAI.Model,
			Dimensions: dim,
			SendDims:   cfg.Encoder.OpenAI.SendDims,
		})
		if err != nil {
			return nil, err
		}
		return enc, nil
	case config.EncoderHash:
		return feature.NewHashEncoder(dim), nil
	default:
		return nil, errors.New("unknown encoder " + cfg.Encoder.Kind)
	}
}

func buildPipeline(cfg *config.Config, c *corpus.Corpus) (*pipeline.Pipeline, error) {
	if cfg.Recommend.PipelineFile != "" {
		return config.LoadPipeline(cfg.Recommend.PipelineFile, config.Deps{
			Corpus:  c,
			Weights: cfg.Recommend.Weights,
			TopN:    cfg.Recommend.TopN,
		})
	}
	var extra []filter.Filter
	if len(cfg.Recommend.BlockedIDs) > 0 {
		extra = append(extra, filter.NewBlacklistFilter(cfg.Recommend.BlockedIDs))
	}
	if cfg.Recommend.FilterExpr != "" {
		f, err := filter.NewExprFilter(cfg.Recommend.FilterExpr)
		if err != nil {
			return nil, fmt.Errorf("recommend.filter_expr: %w", err)
		}
		extra = append(extra, f)
	}
	return rank.DefaultPipeline(c, cfg.Recommend.Weights, cfg.Recommend.TopN, extra...), nil
}
