package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/cache"
	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/bobmcallan/vire-gateway/internal/gateway"
	"github.com/bobmcallan/vire-gateway/internal/mcp"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	Quotes     cache.Store
	Gateway    *gateway.Gateway
	MCPHandler *mcp.Handler
}

// New initializes the application: quote cache, gateway and MCP surface.
// The peer is contacted once here; an unreachable peer leaves the gateway
// degraded rather than failing startup.
func New(ctx context.Context, cfg *config.Config, logger *common.Logger, opts ...gateway.Option) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	env := strings.ToLower(strings.TrimSpace(cfg.Environment))
	if env != "prod" && env != "dev" && env != "" {
		logger.Warn().
			Str("environment", cfg.Environment).
			Msg("unrecognized environment value, defaulting to prod behavior")
	}

	if err := a.initCache(ctx); err != nil {
		return nil, err
	}

	if a.Quotes != nil {
		opts = append([]gateway.Option{gateway.WithQuoteCache(a.Quotes)}, opts...)
	}
	a.Gateway = gateway.New(cfg, logger, opts...)

	status := a.Gateway.Load(ctx)
	logger.Info().
		Str("peer", status.PeerURL).
		Str("session_state", string(status.SessionState)).
		Bool("degraded", status.Degraded).
		Int("operations", status.Operations).
		Msg("gateway loaded")

	a.MCPHandler = mcp.NewHandler(a.Gateway, logger)

	logger.Info().Msg("application initialization complete")
	return a, nil
}

// initCache opens the quote cache. An unreachable redis is logged and kept:
// the store treats failures as misses.
func (a *App) initCache(ctx context.Context) error {
	store, err := cache.NewFromConfig(a.Config.Cache, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create quote cache: %w", err)
	}
	a.Quotes = store

	if rs, ok := store.(*cache.RedisStore); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			a.Logger.Warn().
				Str("addr", a.Config.Cache.Redis.Addr).
				Str("error", err.Error()).
				Msg("redis quote cache unreachable, continuing without cached quotes")
		}
	}

	backend := a.Config.Cache.Backend
	if backend == "" {
		backend = "memory"
	}
	a.Logger.Debug().Str("backend", backend).Msg("quote cache initialized")
	return nil
}

// Reload refreshes the peer catalog and re-publishes the MCP tools.
func (a *App) Reload(ctx context.Context) gateway.Status {
	status := a.Gateway.Reload(ctx)
	tools := a.MCPHandler.Refresh()
	a.Logger.Info().
		Bool("degraded", status.Degraded).
		Int("operations", status.Operations).
		Int("tools", tools).
		Msg("catalog reloaded")
	return status
}

// Close closes all application resources.
func (a *App) Close() error {
	if c, ok := a.Quotes.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
