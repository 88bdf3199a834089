package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Rheron1848/mcprt/internal/demo"
	"github.com/Rheron1848/mcprt/pkg/auth"
	"github.com/Rheron1848/mcprt/pkg/config"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/observability"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/server"
)

var (
	serveTransport string
	serveAddr      string
	serveMetrics   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sample handlers over stdio or streamable HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("transport") {
			cfg.Server.Transport = serveTransport
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		if cmd.Flags().Changed("metrics") {
			cfg.Metrics.Enabled = serveMetrics
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveTransport, "transport", "t", "stdio", "Transport to serve on (stdio or http)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address for the http transport")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", false, "Expose Prometheus metrics (http transport only)")
}

// runtime bundles what serve wires together
type runtime struct {
	server  *server.Server
	metrics *observability.PrometheusMetrics
	tracing *observability.TracingProvider
}

func buildRuntime(cfg *config.Config, logger logging.Logger) (*runtime, error) {
	rt := &runtime{}

	var metrics observability.Metrics = observability.NoopMetrics{}
	if cfg.Metrics.Enabled {
		m, err := observability.NewPrometheusMetrics(cfg.MetricsProviderConfig())
		if err != nil {
			return nil, fmt.Errorf("error creating metrics: %w", err)
		}
		rt.metrics = m
		metrics = m
	}

	tp, err := observability.NewTracingProvider(cfg.TracingProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("error creating tracer: %w", err)
	}
	rt.tracing = tp

	rt.server = server.New(protocol.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version},
		server.WithProtocolVersions(cfg.Server.ProtocolVersions...),
		server.WithCapability("progress", true),
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithTracer(tp.Tracer()),
		server.WithMaxConcurrentHandlers(cfg.Server.MaxHandlers),
		server.WithHandshakeTimeout(cfg.Server.HandshakeTimeout),
	)
	if err := demo.Register(rt.server); err != nil {
		return nil, err
	}
	return rt, nil
}

// httpRouter mounts the session endpoint and, when enabled, the metrics
// endpoint.
func (rt *runtime) httpRouter(cfg *config.Config, logger logging.Logger) (http.Handler, *server.HTTPHandler) {
	opts := []server.HTTPOption{
		server.WithPath(cfg.Server.Path),
		server.WithIdleTimeout(cfg.Server.IdleTimeout),
		server.WithSweepInterval(cfg.Server.SweepInterval),
		server.WithReplayBuffer(cfg.Server.ReplayBuffer),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithHTTPLogger(logger),
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		opts = append(opts, server.WithAllowedOrigins(cfg.Server.AllowedOrigins...))
	}
	handler := server.NewHTTPHandler(rt.server, opts...)

	r := chi.NewRouter()
	if tokens := auth.NewTokenSet(cfg.Server.AuthTokens...); tokens.Len() > 0 {
		r.With(auth.Middleware(tokens, logger)).Handle(cfg.Server.Path, handler)
	} else {
		r.Handle(cfg.Server.Path, handler)
	}
	if rt.metrics != nil {
		r.Handle(cfg.Metrics.Path, rt.metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	return r, handler
}

func serve(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.tracing.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Tracer shutdown failed")
		}
	}()

	if cfg.Server.Transport == "stdio" {
		logger.Info("Serving on stdio")
		return rt.server.ServeStdio(ctx, os.Stdin, os.Stdout)
	}

	router, handler := rt.httpRouter(cfg, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Serving streamable HTTP",
			logging.String("addr", cfg.Server.Addr),
			logging.String("path", cfg.Server.Path))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// close sessions first so open event streams end
		closeErr := handler.Close(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return closeErr
	})
	return g.Wait()
}
