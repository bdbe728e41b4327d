package recall

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/pipeline"
	"github.com/rushteam/reckit/pkg/logging"
	"github.com/rushteam/reckit/pkg/utils"
)

// 兜底列表默认配置
const (
	DefaultFallbackKey = "cached_fallback"
	DefaultFallbackN   = 12
)

// Fallback 是非个性化兜底列表：score = 0.5·popularity + 0.5·wr，降序稳定排序取前 N。
//
//   - 结果以 JSON 数组持久化到 Store 的 Key 下，进程重启后直接复用
//   - 已持久化的值无条件复用，不随语料变化自动失效；需要刷新时调用 Recompute
//   - 首次并发调用 Get 只会计算一次
//
// 同时实现了 Source 和 pipeline.Node。
type Fallback struct {
	Corpus *corpus.Corpus
	Store  core.Store // 可以为 nil，此时只保存在内存
	Key    string
	N      int

	mu  sync.Mutex
	ids []string
}

// NewFallback 创建兜底召回源
func NewFallback(c *corpus.Corpus, s core.Store, key string, n int) *Fallback {
	if key == "" {
		key = DefaultFallbackKey
	}
	if n <= 0 {
		n = DefaultFallbackN
	}
	return &Fallback{Corpus: c, Store: s, Key: key, N: n}
}

func (f *Fallback) Name() string        { return "recall.fallback" }
func (f *Fallback) Kind() pipeline.Kind { return pipeline.KindRecall }

// Get 返回兜底列表：内存 → Store → 现场计算（并写回 Store）。
func (f *Fallback) Get(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ids == nil {
		f.ids = f.load(ctx)
	}
	if f.ids == nil {
		f.ids = f.Compute()
		f.persist(ctx, f.ids)
	}
	return clone(f.ids), nil
}

// Warm 在启动时预先加载或计算兜底列表
func (f *Fallback) Warm(ctx context.Context) error {
	ids, err := f.Get(ctx)
	if err != nil {
		return err
	}
	logging.Info().Int("items", len(ids)).Str("key", f.Key).Msg("fallback ready")
	return nil
}

// Recompute 忽略已持久化的值，重新计算并覆盖。
func (f *Fallback) Recompute(ctx context.Context) ([]string, error) {
	ids := f.Compute()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = ids
	if f.Store != nil {
		data, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		if err := f.Store.Set(ctx, f.Key, data); err != nil {
			return nil, err
		}
	}
	return clone(ids), nil
}

// Compute 基于语料元数据计算兜底列表（纯函数，不读写 Store）。
func (f *Fallback) Compute() []string {
	type scored struct {
		id    string
		score float64
	}
	all := make([]scored, f.Corpus.Len())
	for i := range all {
		meta := f.Corpus.Meta(i)
		all[i] = scored{id: f.Corpus.ID(i), score: 0.5*meta.Popularity + 0.5*meta.WR}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].score > all[j].score
	})

	n := min(f.N, len(all))
	out := make([]string, n)
	for i := range out {
		out[i] = all[i].id
	}
	return out
}

func (f *Fallback) load(ctx context.Context) []string {
	if f.Store == nil {
		return nil
	}
	data, err := f.Store.Get(ctx, f.Key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			logging.Warn().Err(err).Str("key", f.Key).Msg("fallback read failed, recomputing")
		}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		logging.Warn().Err(err).Str("key", f.Key).Msg("fallback artifact corrupt, recomputing")
		return nil
	}
	return ids
}

func (f *Fallback) persist(ctx context.Context, ids []string) {
	if f.Store == nil {
		return
	}
	data, err := json.Marshal(ids)
	if err == nil {
		err = f.Store.Set(ctx, f.Key, data)
	}
	if err != nil {
		logging.Warn().Err(err).Str("key", f.Key).Msg("fallback persist failed")
	}
}

func (f *Fallback) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return f.Recall(ctx, rctx)
}

func (f *Fallback) Recall(ctx context.Context, _ *core.RecommendContext) ([]*core.Item, error) {
	ids, err := f.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Item, 0, len(ids))
	for _, id := range ids {
		idx, ok := f.Corpus.Lookup(id)
		if !ok {
			idx = -1
		}
		it := core.NewItem(id, idx)
		it.Labels[LabelRecallSource] = utils.Label{Value: "fallback", Source: "recall"}
		out = append(out, it)
	}
	return out, nil
}

func clone(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
