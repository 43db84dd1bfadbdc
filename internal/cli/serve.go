package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/nikola/internal/chat"
	"github.com/mistakeknot/nikola/internal/config"
	"github.com/mistakeknot/nikola/internal/llm"
	"github.com/mistakeknot/nikola/internal/memory"
	"github.com/mistakeknot/nikola/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Nikola HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))

			store, err := memory.Open(cfg.StorePath)
			if err != nil {
				return err
			}
			defer store.Close()

			matcher := chat.NewMatcher()
			if cfg.ChatRulesPath != "" {
				if err := matcher.LoadFile(cfg.ChatRulesPath); err != nil {
					logger.Warn("chat rules load failed, keeping embedded defaults",
						"path", cfg.ChatRulesPath, "error", err)
				} else if stop, err := matcher.Watch(cfg.ChatRulesPath, logger); err != nil {
					logger.Warn("chat rules watch failed", "error", err)
				} else {
					defer func() { _ = stop() }()
				}
			}

			srv := server.New(cfg, logger, matcher, store, llm.NewClient(cfg.OpenRouterKey))

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP bind address (overrides config)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.toml")
	return cmd
}
