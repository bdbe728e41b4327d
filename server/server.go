// Package server 提供推荐服务的 HTTP 接口。
//
//	GET  /recommend/group/{groupID}  小组最近历史的推荐
//	POST /recommend                  {"watchedIds": [...]} 按给定历史推荐
//	GET  /healthz                    存活检查
//	GET  /metrics                    Prometheus 指标
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rushteam/reckit/pkg/logging"
	"github.com/rushteam/reckit/recommend"
)

// Recommender 由 recommend.Service 实现
type Recommender interface {
	ForGroup(ctx context.Context, groupID string) (*recommend.Result, error)
	ForHistory(ctx context.Context, ids []string) (*recommend.Result, error)
}

// Config HTTP 服务配置
type Config struct {
	Addr            string
	RequestTimeout  time.Duration // 单个请求的处理时限，默认 30s
	ShutdownTimeout time.Duration // 优雅退出等待时间，默认 15s
	CORSOrigins     []string      // 为空时允许所有来源

	// 每个客户端 IP 在 RateWindow 内最多 RateLimit 个推荐请求，RateLimit <= 0 不限流
	RateLimit  int
	RateWindow time.Duration
}

// Server 是推荐 HTTP 服务
type Server struct {
	cfg        Config
	rec        Recommender
	corpusSize int
	handler    http.Handler
}

// New 创建服务；corpusSize 用于健康检查输出
func New(rec Recommender, corpusSize int, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	s := &Server{cfg: cfg, rec: rec, corpusSize: corpusSize}
	s.handler = s.routes()
	return s
}

// Handler 返回路由，便于测试或嵌入其它服务
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestLogging)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", chimiddleware.RequestIDHeader},
		ExposedHeaders: []string{chimiddleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, s.cfg.RateWindow))
		}
		r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
		r.Get("/recommend/group/{groupID}", s.recommendGroup)
		r.Post("/recommend", s.recommendHistory)
	})
	return r
}

// Run 监听并服务，ctx 取消后优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Dur("timeout", s.cfg.ShutdownTimeout).Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
