package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"gatekeeper/internal/admin"
	compliancehandler "gatekeeper/internal/compliance/handler"
	"gatekeeper/internal/jwttoken"
	"gatekeeper/internal/ledger"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/health"
	"gatekeeper/internal/platform/logger"
	statemetrics "gatekeeper/internal/platform/metrics"
	httptransport "gatekeeper/internal/transport/http"
	request "gatekeeper/pkg/platform/middleware/request"
)

const (
	shutdownTimeout      = 10 * time.Second
	statsRefreshInterval = 15 * time.Second
	readHeaderTimeout    = 5 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing gatekeeper",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"store_backend", cfg.StoreBackend,
		"audit_relay", len(cfg.Kafka.Brokers) > 0,
	)

	reg := prometheus.DefaultRegisterer
	hc := health.New(cfg.Environment, cfg.StoreBackend)

	in, err := newInfra(ctx, cfg, reg, hc, log)
	if err != nil {
		return fmt.Errorf("infrastructure: %w", err)
	}
	defer in.close(log)

	a, err := newApp(in, reg, log)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	if err := a.bootstrap(ctx, cfg.PolicyFile, cfg.SeedDemo, log); err != nil {
		return fmt.Errorf("apply policy %s: %w", cfg.PolicyFile, err)
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	jwtService.SetEnv(cfg.Environment)
	guards := admin.NewGuardHandler(a.guards, log)
	operator := admin.New(admin.NewService(a.state(), in.events, in.outbox), log)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Validator:      jwttoken.NewAdapter(jwtService),
		Metrics:        request.NewMetrics(reg),
		MetricsHandler: promhttp.Handler(),
		AdminToken:     cfg.Auth.AdminAPIToken,
		AdminTokenHash: cfg.Auth.AdminTokenHash,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Public: []httptransport.Registrar{
			hc,
			a.identityHandler(log),
			compliancehandler.New(a.orchestrator, a.complianceModules(), log),
			ledger.NewHandler(a.ledger, log),
			guards,
		},
		Operator: []httptransport.Registrar{
			operator,
			guards.Operator(),
		},
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
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
	g.Go(func() error {
		return statemetrics.New(reg).Run(gctx, a.state(), statsRefreshInterval, log)
	})
	if in.relay != nil {
		g.Go(func() error { return in.relay.Run(gctx) })
		g.Go(func() error {
			ticker := time.NewTicker(statsRefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := in.relay.UpdateMetrics(gctx); err != nil {
						log.Warn("failed to refresh outbox depth", "error", err)
					}
				}
			}
		})
	}
	if in.materializer != nil {
		g.Go(func() error { return in.materializer.Run(gctx) })
	}

	return g.Wait()
}
