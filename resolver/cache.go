package resolver

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/rushteam/reckit/core"
)

// CacheEntry 是冷启动物品在持久缓存中的记录。
// 写入后在物品生命周期内不再变化，重复写入同一 ID 是幂等的。
type CacheEntry struct {
	ID        string    `json:"_id"`
	Embedding []float64 `json:"embedding"`
	Language  string    `json:"language"`
	Decade    int       `json:"decade"`
}

// Cache 是冷启动物品向量的持久缓存。
//
//   - Get：未命中返回 core.ErrStoreNotFound，其他错误视为缓存不可用
//   - Put：按 ID upsert
type Cache interface {
	Name() string
	Get(ctx context.Context, id string) (*CacheEntry, error)
	Put(ctx context.Context, entry *CacheEntry) error
}

// DefaultCachePrefix 是 StoreCache 的默认 key 前缀
const DefaultCachePrefix = "movie_features:"

// StoreCache 基于任意 core.Store（Redis / Badger / 内存）实现 Cache，value 为 JSON。
type StoreCache struct {
	store  core.Store
	prefix string
	ttl    int // 秒，0 表示永不过期
}

// NewStoreCache 创建缓存；prefix 为空时使用 DefaultCachePrefix。
func NewStoreCache(store core.Store, prefix string, ttlSeconds int) *StoreCache {
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return &StoreCache{store: store, prefix: prefix, ttl: ttlSeconds}
}

func (c *StoreCache) Name() string { return "store:" + c.store.Name() }

func (c *StoreCache) Get(ctx context.Context, id string) (*CacheEntry, error) {
	data, err := c.store.Get(ctx, c.prefix+id)
	if err != nil {
		return nil, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "cache: decode entry "+id, err)
	}
	if entry.ID == "" {
		entry.ID = id
	}
	return &entry, nil
}

func (c *StoreCache) Put(ctx context.Context, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeInternalError, "cache: encode entry "+entry.ID, err)
	}
	if c.ttl > 0 {
		return c.store.Set(ctx, c.prefix+entry.ID, data, c.ttl)
	}
	return c.store.Set(ctx, c.prefix+entry.ID, data)
}

var _ Cache = (*StoreCache)(nil)
