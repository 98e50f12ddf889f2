package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/app"
	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/bobmcallan/vire-gateway/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		port  int
		host  string
		stdio bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP endpoint, or MCP over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			config.ApplyFlagOverrides(cfg, port, host)
			return serve(cmd.Context(), cfg, stdio)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "Server host (overrides config)")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve MCP over stdin/stdout instead of HTTP")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, stdio bool) error {
	logger := setupLogger(cfg)

	logger.Info().
		Int("port", cfg.Server.Port).
		Str("host", cfg.Server.Host).
		Str("peer", cfg.Peer.URL).
		Str("environment", cfg.Environment).
		Bool("stdio", stdio).
		Msg("configuration loaded")

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Str("error", err.Error()).Msg("failed to initialize application")
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error().Str("error", err.Error()).Msg("application shutdown failed")
		}
	}()

	if stdio {
		return application.MCPHandler.ServeStdio()
	}

	srv := server.New(application)
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Msg("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		logger.Info().Msg("context cancelled")
	case err := <-errChan:
		if err != nil {
			logger.Error().Str("error", err.Error()).Msg("server failed to start")
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Str("error", err.Error()).Msg("server shutdown failed")
	}

	logger.Info().Msg("server stopped")
	return nil
}
