package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aretw0/parley"
	parleyhttp "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/adapters/mcp"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServeOptions configures Serve.
type ServeOptions struct {
	RunOptions
	// Port overrides the configured HTTP port when positive.
	Port int
	// MCPPort additionally serves MCP over SSE when positive.
	MCPPort int
}

// Serve runs the bot behind the HTTP provider until ctx ends. Metrics are
// exported on /metrics and lifecycle events streamed on /events.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg, logger, err := Setup(opts.RunOptions)
	if err != nil {
		return err
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	bot, err := LoadBot(ctx, cfg.Bot)
	if err != nil {
		return err
	}
	p, err := OpenPersistence(cfg.Store)
	if err != nil {
		return err
	}
	defer p.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	srv := parleyhttp.New(
		parleyhttp.WithPort(cfg.Server.Port),
		parleyhttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		parleyhttp.WithLogger(logger),
		parleyhttp.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	extra := []parley.Option{
		parley.WithProvider(srv),
		parley.WithHooks(metrics.Hooks()),
		parley.WithHooks(srv.Streams.Hooks()),
		parley.WithHooks(observability.LogHooks(logger)),
	}
	if opts.MCPPort > 0 {
		extra = append(extra, parley.WithProvider(mcp.NewServer(parley.Version, mcp.WithSSE(opts.MCPPort), mcp.WithLogger(logger))))
	}

	rt, err := NewRuntime(bot, cfg, p, logger, extra...)
	if err != nil {
		return err
	}
	srv.RegisterWebhookProvider(parleyhttp.NewEventWebhook(rt, logger))
	if err := srv.RegisterRestEndpoint("/sessions", func(ctx context.Context, _ http.Header, _ url.Values, _ json.RawMessage) (any, error) {
		return rt.Sessions().List(ctx)
	}); err != nil {
		return err
	}

	if err := rt.Start(ctx); err != nil {
		return err
	}
	logger.Info("Serving bot", "bot", bot.Name, "port", cfg.Server.Port, "store", cfg.Store.Kind)
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
	defer cancel()
	if err := rt.Stop(stopCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ServeMCP runs the bot as an MCP server over stdio until the client disconnects
// or ctx ends.
func ServeMCP(ctx context.Context, opts RunOptions) error {
	cfg, logger, err := Setup(opts)
	if err != nil {
		return err
	}
	bot, err := LoadBot(ctx, cfg.Bot)
	if err != nil {
		return err
	}
	p, err := OpenPersistence(cfg.Store)
	if err != nil {
		return err
	}
	defer p.Close()

	rt, err := NewRuntime(bot, cfg, p, logger)
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Stop(context.Background())

	in, out := opts.streams()
	srv := mcp.NewServer(parley.Version, mcp.WithStdio(in, out), mcp.WithLogger(logger))
	return handleExecutionError(srv.Run(ctx, rt))
}
