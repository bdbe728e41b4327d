// Package config 负责服务配置加载和配置驱动的 Pipeline 构建。
//
// 配置优先级：环境变量 > 配置文件 > 默认值。
//
//	RECKIT_SERVER__ADDR=:9090        -> server.addr
//	RECKIT_TMDB__API_KEY=xxx         -> tmdb.api_key
//	TMDB_API_KEY=xxx                 -> tmdb.api_key（兼容写法，优先级低于 RECKIT_ 前缀）
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/reckit/feature"
	"github.com/rushteam/reckit/history"
	"github.com/rushteam/reckit/pkg/logging"
	"github.com/rushteam/reckit/rank"
	"github.com/rushteam/reckit/recall"
	"github.com/rushteam/reckit/resolver"
	"github.com/rushteam/reckit/store"
)

// EnvPrefix 环境变量前缀，双下划线分隔层级
const EnvPrefix = "RECKIT_"

// TMDBKeyEnvVar 是 TMDB API key 的兼容环境变量
const TMDBKeyEnvVar = "TMDB_API_KEY"

// 缓存后端
const (
	CacheStore    = "store"
	CachePGVector = "pgvector"
	CacheNone     = "none"
)

// 编码器
const (
	EncoderHash   = "hash"
	EncoderOpenAI = "openai"
)

// 历史来源
const (
	HistorySQL    = "sql"
	HistoryMemory = "memory"
)

// 没有任何可解析历史时的行为
const (
	OnNoDataFallback = "fallback"
	OnNoDataError    = "error"
)

// 逗号分隔、需要从环境变量字符串拆成切片的字段
var sliceConfigPaths = []string{
	"server.cors_origins",
	"recommend.blocked_ids",
}

// Config 是服务的完整配置
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Corpus    CorpusConfig    `koanf:"corpus"`
	Cache     CacheConfig     `koanf:"cache"`
	Fallback  FallbackConfig  `koanf:"fallback"`
	History   HistoryConfig   `koanf:"history"`
	TMDB      TMDBConfig      `koanf:"tmdb"`
	Encoder   EncoderConfig   `koanf:"encoder"`
	Resolver  ResolverConfig  `koanf:"resolver"`
	Recommend RecommendConfig `koanf:"recommend"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"` // 每 IP 每 rate_window 请求数，0 不限流
	RateWindow      time.Duration `koanf:"rate_window" validate:"gt=0"`
}

type CorpusConfig struct {
	// Dir 包含 embeddings.json / movie_ids.json / metadata.json
	Dir string `koanf:"dir" validate:"required"`
}

// CacheConfig 冷启动物品向量缓存
type CacheConfig struct {
	Backend string       `koanf:"backend" validate:"oneof=store pgvector none"`
	Prefix  string       `koanf:"prefix"`
	TTL     int          `koanf:"ttl" validate:"gte=0"` // 秒，0 表示不过期
	Store   store.Config `koanf:"store"`
	DSN     string       `koanf:"dsn"` // pgvector 使用的 Postgres 连接串
	Table   string       `koanf:"table"`
}

// FallbackConfig 兜底推荐列表
type FallbackConfig struct {
	Key   string       `koanf:"key" validate:"required"`
	N     int          `koanf:"n" validate:"gte=1"`
	Store store.Config `koanf:"store"`
}

type HistoryConfig struct {
	Source string `koanf:"source" validate:"oneof=sql memory"`
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn"`
	Table  string `koanf:"table"`
	Window int    `koanf:"window" validate:"gte=1"`
}

type TMDBConfig struct {
	BaseURL         string        `koanf:"base_url" validate:"required,url"`
	APIKey          string        `koanf:"api_key"`
	Language        string        `koanf:"language"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	RPS             float64       `koanf:"rps" validate:"gte=0"`
	Burst           int           `koanf:"burst" validate:"gte=0"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// Enabled 没有 API key 时不启用内容 API 层
func (c TMDBConfig) Enabled() bool { return c.APIKey != "" }

// Fetcher 转换成 feature.TMDBConfig
func (c TMDBConfig) Fetcher() feature.TMDBConfig {
	return feature.TMDBConfig{
		BaseURL:         c.BaseURL,
		APIKey:          c.APIKey,
		Language:        c.Language,
		Timeout:         c.Timeout,
		RPS:             c.RPS,
		Burst:           c.Burst,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}

type EncoderConfig struct {
	Kind      string       `koanf:"kind" validate:"oneof=hash openai"`
	Dimension int          `koanf:"dimension" validate:"gte=0"` // 0 表示与语料维度一致
	OpenAI    OpenAIConfig `koanf:"openai"`
}

type OpenAIConfig struct {
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	Model    string `koanf:"model"`
	SendDims bool   `koanf:"send_dims"`
}

type ResolverConfig struct {
	Concurrency   int                  `koanf:"concurrency" validate:"gte=1"`
	CacheTimeout  time.Duration        `koanf:"cache_timeout" validate:"gt=0"`
	FetchTimeout  time.Duration        `koanf:"fetch_timeout" validate:"gt=0"`
	EncodeTimeout time.Duration        `koanf:"encode_timeout" validate:"gt=0"`
	Weights       feature.FieldWeights `koanf:"weights"`
}

// Resolver 转换成 resolver.Config
func (c ResolverConfig) Resolver() resolver.Config {
	return resolver.Config{
		Concurrency:   c.Concurrency,
		CacheTimeout:  c.CacheTimeout,
		FetchTimeout:  c.FetchTimeout,
		EncodeTimeout: c.EncodeTimeout,
		Weights:       c.Weights,
	}
}

type RecommendConfig struct {
	TopN     int          `koanf:"top_n" validate:"gte=1"`
	OnNoData string       `koanf:"on_no_data" validate:"oneof=fallback error"`
	Weights  rank.Weights `koanf:"weights"`

	// PipelineFile 非空时从 YAML/JSON 构建排序 Pipeline，替代内置链
	PipelineFile string `koanf:"pipeline_file"`

	// BlockedIDs 永不推荐的物品
	BlockedIDs []string `koanf:"blocked_ids"`

	// FilterExpr CEL 表达式，为 true 的物品保留，如 "item.decade >= 1980"
	FilterExpr string `koanf:"filter_expr"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateWindow:      time.Minute,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Corpus:  CorpusConfig{Dir: "./data/corpus"},
		Cache: CacheConfig{
			Backend: CacheStore,
			Prefix:  resolver.DefaultCachePrefix,
			Store:   store.Config{Backend: store.BackendBadger, Path: "./data/cache"},
			Table:   resolver.DefaultPGTable,
		},
		Fallback: FallbackConfig{
			Key:   recall.DefaultFallbackKey,
			N:     recall.DefaultFallbackN,
			Store: store.Config{Backend: store.BackendBadger, Path: "./data/fallback"},
		},
		History: HistoryConfig{
			Source: HistorySQL,
			Driver: history.DriverSQLite,
			DSN:    "file:./data/history.db",
			Table:  history.DefaultTable,
			Window: history.DefaultWindow,
		},
		TMDB: TMDBConfig{
			BaseURL:         feature.DefaultTMDBBaseURL,
			Language:        "en-US",
			Timeout:         5 * time.Second,
			RPS:             20,
			Burst:           40,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Encoder: EncoderConfig{
			Kind: EncoderHash,
			OpenAI: OpenAIConfig{
				Model: "all-MiniLM-L6-v2",
			},
		},
		Resolver: ResolverConfig{
			Concurrency:   8,
			CacheTimeout:  2 * time.Second,
			FetchTimeout:  5 * time.Second,
			EncodeTimeout: 10 * time.Second,
			Weights:       feature.OnlineFieldWeights,
		},
		Recommend: RecommendConfig{
			TopN:     rank.DefaultTopN,
			OnNoData: OnNoDataFallback,
			Weights:  rank.DefaultWeights,
		},
	}
}

// Load 加载配置：默认值 → 配置文件（path 为空则跳过）→ 环境变量，最后校验。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if key := os.Getenv(TMDBKeyEnvVar); key != "" {
		if err := k.Set("tmdb.api_key", key); err != nil {
			return nil, fmt.Errorf("failed to set tmdb.api_key: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// RECKIT_RESOLVER__FETCH_TIMEOUT -> resolver.fetch_timeout
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(key, "__", "."))
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var validate = validator.New()

// Validate 校验字段取值以及跨字段约束
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Cache.Backend == CachePGVector && c.Cache.DSN == "" {
		return errors.New("cache.dsn is required for the pgvector backend")
	}
	if c.History.Source == HistorySQL && c.History.DSN == "" {
		return errors.New("history.dsn is required for the sql source")
	}
	if c.Encoder.Kind == EncoderOpenAI && c.Encoder.OpenAI.Model == "" {
		return errors.New("encoder.openai.model is required for the openai encoder")
	}
	if c.Recommend.Weights.DecadeSpan <= 0 {
		return errors.New("recommend.weights.decade_span must be positive")
	}
	return nil
}
