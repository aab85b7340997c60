package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	growthhandler "growthsheet/internal/growth/handler"
	"growthsheet/internal/growth/metrics"
	"growthsheet/internal/growth/providers/adapters"
	"growthsheet/internal/growth/service"
	"growthsheet/internal/growth/tracer"
	"growthsheet/internal/platform/config"
	"growthsheet/internal/platform/health"
	"growthsheet/internal/platform/logger"
	httptransport "growthsheet/internal/transport/http"
	"growthsheet/pkg/platform/middleware/metadata"
	"growthsheet/pkg/platform/middleware/request"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Calculation logic lives in internal/growth.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	log.Info("initializing growthsheet",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"growth_api", baseURLOrDefault(cfg.Growth.BaseURL),
		"upstream_timeout", cfg.Growth.Timeout.String(),
		"batch_concurrency", cfg.BatchConcurrency,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	adapter := adapters.New(adapters.HTTPAdapterConfig{
		BaseURL: cfg.Growth.BaseURL,
		Timeout: cfg.Growth.Timeout,
		Logger:  log,
	})
	svc := service.New(adapter,
		service.WithLogger(log),
		service.WithTracer(tracer.NewOTel()),
		service.WithMetrics(metrics.New(reg)),
	)

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("growth_api", adapter.Check)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Growth:   growthhandler.New(svc, log, growthhandler.WithBatchConcurrency(cfg.BatchConcurrency)),
		Health:   healthHandler,
		Metadata: metadata.NewMiddleware(&metadata.Config{TrustedProxies: parseProxies(cfg.TrustedProxies, log)}),
		Metrics:  request.NewMetrics(reg),
		Gatherer: reg,
		Logger:   log,
		Timeout:  cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func parseProxies(cidrs []string, log *slog.Logger) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, cidr := range cidrs {
		if prefix, err := netip.ParsePrefix(cidr); err == nil {
			prefixes = append(prefixes, prefix)
			continue
		}
		// A bare address trusts that host only.
		addr, err := netip.ParseAddr(cidr)
		if err != nil {
			log.Warn("ignoring invalid trusted proxy", "cidr", cidr, "error", err)
			continue
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes
}

func baseURLOrDefault(u string) string {
	if u == "" {
		return adapters.DefaultBaseURL
	}
	return u
}
