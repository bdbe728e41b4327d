// Package store 提供 core.Store 的基础设施实现：内存、Redis、Badger。
//
// 接口定义在 core 包，此包只包含实现。
//
// 示例：
//
//	var s core.Store = store.NewMemoryStore()
//	s, err := store.Open(ctx, store.Config{Backend: "badger", Path: "./data/fallback"})
package store

import (
	"context"
	"fmt"

	"github.com/rushteam/reckit/core"
)

// 后端类型
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// Config 选择并配置一个 Store 后端
type Config struct {
	Backend string      `koanf:"backend" validate:"oneof=memory redis badger"`
	Path    string      `koanf:"path"` // badger 数据目录
	Redis   RedisConfig `koanf:"redis"`
}

// Open 按配置打开 Store
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case BackendBadger:
		return OpenBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", core.ErrStoreNotSupported, cfg.Backend)
	}
}

func unavailable(msg string, err error) error {
	return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, msg, err)
}
