// Package resolver 把观看历史解析成查询向量。
//
// 每个历史物品按层级解析：
//
//	corpus（预计算语料）→ cache（持久缓存）→ fetch（内容 API 取文本、编码并回填缓存）
//
// 任意一层失败只会跳过该物品，不会让整个请求失败。
package resolver

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/feature"
	"github.com/rushteam/reckit/pkg/logging"
	"github.com/rushteam/reckit/pkg/metrics"
)

// DefaultRefDecade 是没有任何可用年代时的参考年代
const DefaultRefDecade = 2000

// ErrNoData 表示历史中没有任何物品能解析出向量
var ErrNoData = core.NewDomainError(core.ModuleResolver, core.ErrorCodeNoData, "resolver: no resolvable history")

// Tier 表示物品由哪一层解析得到
type Tier string

const (
	TierCorpus Tier = metrics.TierCorpus
	TierCache  Tier = metrics.TierCache
	TierFetch  Tier = metrics.TierFetch
)

// Config 解析器配置
type Config struct {
	// Concurrency 同时进行的缓存/内容 API 解析数，默认 8
	Concurrency int

	// CacheTimeout 单次缓存读写超时，默认 2s
	CacheTimeout time.Duration

	// FetchTimeout 单次内容 API 获取超时，默认 5s
	FetchTimeout time.Duration

	// EncodeTimeout 单次编码超时，默认 10s
	EncodeTimeout time.Duration

	// Weights 在线编码字段权重，零值时使用 feature.OnlineFieldWeights
	Weights feature.FieldWeights
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.CacheTimeout <= 0 {
		c.CacheTimeout = 2 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.EncodeTimeout <= 0 {
		c.EncodeTimeout = 10 * time.Second
	}
	if c.Weights == (feature.FieldWeights{}) {
		c.Weights = feature.OnlineFieldWeights
	}
	return c
}

// Resolver 是三层向量解析器，可被多个请求并发使用。
// cache / fetcher / encoder 可以为 nil，对应的层级会被跳过。
type Resolver struct {
	corpus  *corpus.Corpus
	cache   Cache
	fetcher feature.Fetcher
	encoder feature.Encoder
	cfg     Config
}

// New 创建解析器
func New(c *corpus.Corpus, cache Cache, fetcher feature.Fetcher, encoder feature.Encoder, cfg Config) *Resolver {
	return &Resolver{
		corpus:  c,
		cache:   cache,
		fetcher: fetcher,
		encoder: encoder,
		cfg:     cfg.withDefaults(),
	}
}

// Resolved 记录一个成功解析的历史物品
type Resolved struct {
	ID   string `json:"id"`
	Tier Tier   `json:"tier"`
}

// Resolution 是一次解析的结果，所有切片都按输入顺序排列（跳过的物品不出现）。
type Resolution struct {
	Vector    []float64
	Decades   []int
	Languages []string
	Items     []Resolved
}

// RefDecade 返回年代均值四舍五入，没有年代时为 DefaultRefDecade。
func (r *Resolution) RefDecade() int {
	if len(r.Decades) == 0 {
		return DefaultRefDecade
	}
	var sum float64
	for _, d := range r.Decades {
		sum += float64(d)
	}
	return int(math.Round(sum / float64(len(r.Decades))))
}

// RefLanguage 返回出现次数最多的语言，次数相同取最先出现的，没有时为 "Unknown"。
func (r *Resolution) RefLanguage() string {
	best, bestCount := corpus.UnknownLanguage, 0
	counts := make(map[string]int, len(r.Languages))
	for _, lang := range r.Languages {
		counts[lang]++
	}
	for _, lang := range r.Languages {
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}

// Query 由解析结果构建排序查询，exclude 为需要剔除的物品。
func (r *Resolution) Query(exclude []string) *core.Query {
	return &core.Query{
		Vector:      r.Vector,
		Exclude:     core.ExcludeSet(exclude),
		RefDecade:   r.RefDecade(),
		RefLanguage: r.RefLanguage(),
	}
}

type slot struct {
	vector   []float64
	decade   int
	language string
	tier     Tier
}

// Resolve 解析 ids 中的每个物品并返回平均向量；没有任何物品可解析时返回 ErrNoData。
// 语料命中直接在当前 goroutine 完成，其余物品以 Config.Concurrency 为上限并发解析。
func (r *Resolver) Resolve(ctx context.Context, ids []string) (*Resolution, error) {
	slots := make([]*slot, len(ids))

	var eg errgroup.Group
	eg.SetLimit(r.cfg.Concurrency)

	for i, id := range ids {
		if idx, ok := r.corpus.Lookup(id); ok {
			meta := r.corpus.Meta(idx)
			slots[i] = &slot{vector: r.corpus.Vector(idx), decade: meta.Decade, language: meta.Language, tier: TierCorpus}
			metrics.RecordResolve(metrics.TierCorpus)
			continue
		}
		eg.Go(func() error {
			s, err := r.resolveRemote(ctx, id)
			if err != nil {
				metrics.RecordResolve(metrics.TierMiss)
				logging.Ctx(ctx).Warn().Err(err).Str("id", id).Msg("history item skipped")
				return nil
			}
			metrics.RecordResolve(string(s.tier))
			slots[i] = s
			return nil
		})
	}
	_ = eg.Wait()

	res := &Resolution{}
	vectors := make([][]float64, 0, len(ids))
	for i, s := range slots {
		if s == nil {
			continue
		}
		vectors = append(vectors, s.vector)
		res.Decades = append(res.Decades, s.decade)
		res.Languages = append(res.Languages, s.language)
		res.Items = append(res.Items, Resolved{ID: ids[i], Tier: s.tier})
	}
	if len(vectors) == 0 {
		return nil, ErrNoData
	}
	res.Vector = corpus.Mean(vectors)
	return res, nil
}

// resolveRemote 走 cache → fetch 两层。
func (r *Resolver) resolveRemote(ctx context.Context, id string) (*slot, error) {
	if s := r.fromCache(ctx, id); s != nil {
		return s, nil
	}
	if r.fetcher == nil || r.encoder == nil {
		return nil, core.NewDomainError(core.ModuleResolver, core.ErrorCodeNotFound, "resolver: not in corpus or cache")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	raw, err := r.fetcher.Fetch(fetchCtx, id)
	cancel()
	if err != nil {
		return nil, err
	}

	encodeCtx, cancel := context.WithTimeout(ctx, r.cfg.EncodeTimeout)
	vec, err := feature.EncodeMovie(encodeCtx, r.encoder, r.cfg.Weights, raw)
	cancel()
	if err != nil {
		return nil, err
	}
	if len(vec) != r.corpus.Dim() {
		metrics.RecordEncodeFailure()
		return nil, core.NewDomainError(core.ModuleEncoder, core.ErrorCodeUnavailable,
			fmt.Sprintf("encoder: dimension %d, corpus has %d", len(vec), r.corpus.Dim()))
	}

	s := &slot{vector: vec, decade: raw.Decade(), language: raw.Language, tier: TierFetch}
	r.backfill(ctx, &CacheEntry{ID: id, Embedding: vec, Language: s.language, Decade: s.decade})
	return s, nil
}

// fromCache 命中返回 slot；未命中、缓存错误或维度不符都返回 nil。
func (r *Resolver) fromCache(ctx context.Context, id string) *slot {
	if r.cache == nil {
		return nil
	}
	cacheCtx, cancel := context.WithTimeout(ctx, r.cfg.CacheTimeout)
	entry, err := r.cache.Get(cacheCtx, id)
	cancel()
	if err != nil {
		if !core.IsStoreNotFound(err) {
			metrics.RecordCacheError("get")
			logging.Ctx(ctx).Warn().Err(err).Str("id", id).Str("cache", r.cache.Name()).Msg("cache read failed, treating as miss")
		}
		return nil
	}
	if len(entry.Embedding) != r.corpus.Dim() {
		logging.Ctx(ctx).Warn().Str("id", id).Int("dim", len(entry.Embedding)).Int("want", r.corpus.Dim()).Msg("cached embedding has wrong dimension, treating as miss")
		return nil
	}
	lang := entry.Language
	if lang == "" {
		lang = corpus.UnknownLanguage
	}
	return &slot{vector: entry.Embedding, decade: entry.Decade, language: lang, tier: TierCache}
}

func (r *Resolver) backfill(ctx context.Context, entry *CacheEntry) {
	if r.cache == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, r.cfg.CacheTimeout)
	defer cancel()
	if err := r.cache.Put(cacheCtx, entry); err != nil {
		metrics.RecordCacheError("put")
		logging.Ctx(ctx).Warn().Err(err).Str("id", entry.ID).Str("cache", r.cache.Name()).Msg("cache backfill failed")
	}
}
