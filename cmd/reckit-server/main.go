// Command reckit-server 运行电影推荐 HTTP 服务。
//
//	reckit-server serve --config reckit.yaml
//	reckit-server fallback --recompute
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/reckit/config"
	"github.com/rushteam/reckit/pkg/logging"
	"github.com/rushteam/reckit/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "reckit-server",
		Short:        "Movie recommendation server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("RECKIT_CONFIG"), "path to YAML config file")

	root.AddCommand(newServeCmd(&configPath), newFallbackCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Logging)
	return cfg, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.fallback.Warm(ctx); err != nil {
				return fmt.Errorf("warm fallback: %w", err)
			}

			srv := server.New(a.service, a.corpus.Len(), server.Config{
				Addr:            cfg.Server.Addr,
				RequestTimeout:  cfg.Server.RequestTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				CORSOrigins:     cfg.Server.CORSOrigins,
				RateLimit:       cfg.Server.RateLimit,
				RateWindow:      cfg.Server.RateWindow,
			})
			return srv.Run(ctx)
		},
	}
}

func newFallbackCmd(configPath *string) *cobra.Command {
	var recompute bool
	cmd := &cobra.Command{
		Use:   "fallback",
		Short: "Print the fallback recommendation list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			c, err := loadCorpus(cfg)
			if err != nil {
				return err
			}
			fb, closeStore, err := openFallback(ctx, cfg, c)
			if err != nil {
				return err
			}
			defer closeStore()

			var ids []string
			if recompute {
				ids, err = fb.Recompute(ctx)
			} else {
				ids, err = fb.Get(ctx)
			}
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(ids)
		},
	}
	cmd.Flags().BoolVar(&recompute, "recompute", false, "recompute and overwrite the persisted list")
	return cmd
}
