package feature

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/corpus"
	"github.com/rushteam/reckit/pkg/logging"
	"github.com/rushteam/reckit/pkg/metrics"
)

// Fetcher 从外部内容源获取物品的原始文本特征。
//
// 错误约定：
//   - core.IsNotFound：内容源没有该物品
//   - core.IsUnavailable：请求失败、超时、响应非法、被限流或熔断
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*RawFeatures, error)
}

// DefaultTMDBBaseURL TMDB v3 API 地址
const DefaultTMDBBaseURL = "https://api.themoviedb.org/3"

// TMDBConfig TMDB 客户端配置
type TMDBConfig struct {
	BaseURL  string
	APIKey   string
	Language string        // 默认 en-US
	Timeout  time.Duration // 单次请求超时，默认 5s

	// 客户端限流，RPS <= 0 表示不限流
	RPS   float64
	Burst int

	// 熔断：连续失败 BreakerFailures 次后打开，BreakerTimeout 后进入半开
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	HTTPClient *http.Client
}

// TMDBFetcher 是 TMDB 内容 API 客户端。
type TMDBFetcher struct {
	cfg     TMDBConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*tmdbMovie]
}

// NewTMDBFetcher 创建 TMDB 客户端
//
// 用法：
//
//	fetcher := feature.NewTMDBFetcher(feature.TMDBConfig{APIKey: key, RPS: 20, Burst: 40})
//	raw, err := fetcher.Fetch(ctx, "550")
func NewTMDBFetcher(cfg TMDBConfig) *TMDBFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTMDBBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	f := &TMDBFetcher{cfg: cfg, client: client}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	failures := cfg.BreakerFailures
	f.breaker = gobreaker.NewCircuitBreaker[*tmdbMovie](gobreaker.Settings{
		Name:        "tmdb",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 404 是正常的"无内容"，不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || core.IsNotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, float64(to))
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	metrics.SetBreakerState("tmdb", float64(gobreaker.StateClosed))
	return f
}

type tmdbName struct {
	Name string `json:"name"`
}

type tmdbMovie struct {
	Genres           []tmdbName `json:"genres"`
	Overview         string     `json:"overview"`
	Tagline          string     `json:"tagline"`
	OriginalLanguage string     `json:"original_language"`
	ReleaseDate      string     `json:"release_date"`
}

type tmdbKeywords struct {
	Keywords []tmdbName `json:"keywords"`
}

// Fetch 获取物品详情与关键词。关键词请求失败时关键词为空，不影响整体结果。
func (f *TMDBFetcher) Fetch(ctx context.Context, id string) (*RawFeatures, error) {
	movie, err := f.breaker.Execute(func() (*tmdbMovie, error) {
		var m tmdbMovie
		if err := f.get(ctx, "/movie/"+url.PathEscape(id), url.Values{"language": {f.cfg.Language}}, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordFetchFailure("breaker")
			return nil, core.WrapDomainError(core.ModuleFetcher, core.ErrorCodeUnavailable, "tmdb: circuit open", err)
		}
		return nil, err
	}

	raw := &RawFeatures{
		ID:          id,
		Genres:      joinNames(movie.Genres),
		Overview:    movie.Overview,
		Tagline:     movie.Tagline,
		Language:    movie.OriginalLanguage,
		ReleaseDate: movie.ReleaseDate,
	}
	if raw.Language == "" {
		raw.Language = corpus.UnknownLanguage
	}

	var kw tmdbKeywords
	if err := f.get(ctx, "/movie/"+url.PathEscape(id)+"/keywords", nil, &kw); err != nil {
		metrics.RecordFetchFailure("keywords")
		logging.Ctx(ctx).Warn().Err(err).Str("id", id).Msg("tmdb keywords unavailable")
	} else {
		raw.Keywords = joinNames(kw.Keywords)
	}
	return raw, nil
}

func (f *TMDBFetcher) get(ctx context.Context, path string, query url.Values, out any) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			metrics.RecordFetchFailure("rate")
			return unavailable("tmdb: rate limit wait", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", f.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return unavailable("tmdb: build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.RecordFetchFailure("transport")
		return unavailable("tmdb: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.RecordFetchFailure("not_found")
		return core.NewDomainError(core.ModuleFetcher, core.ErrorCodeNotFound, "tmdb: no content for "+path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.RecordFetchFailure("status")
		return unavailable(fmt.Sprintf("tmdb: status=%d", resp.StatusCode), errors.New(strings.TrimSpace(string(body))))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordFetchFailure("transport")
		return unavailable("tmdb: read body", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		metrics.RecordFetchFailure("decode")
		return unavailable("tmdb: decode body", err)
	}
	return nil
}

func unavailable(msg string, err error) error {
	return core.WrapDomainError(core.ModuleFetcher, core.ErrorCodeUnavailable, msg, err)
}

func joinNames(names []tmdbName) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if n.Name != "" {
			parts = append(parts, n.Name)
		}
	}
	return strings.Join(parts, ", ")
}
