package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bondmint/config"
	"bondmint/core/events"
	"bondmint/crypto"
	"bondmint/gateway/middleware"
	"bondmint/gateway/routes"
	"bondmint/native/bond"
	"bondmint/native/cdp"
	"bondmint/native/identity"
	"bondmint/native/oracle"
	"bondmint/observability/logging"
)

// moduleAccountSeed derives the deterministic custody account vault collateral
// is held under.
const moduleAccountSeed = "bondmint/cdp/custody"

func moduleAccount() crypto.Address {
	raw := []byte(moduleAccountSeed)
	padded := make([]byte, 20)
	copy(padded, raw)
	return crypto.MustNewAddress(crypto.BMTPrefix, padded)
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.toml", "path to bondmintd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(logging.Options{
		Service: "bondmintd",
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
		File:    logging.FileOptions{Path: cfg.LogFile},
	})

	ids := identity.NewRegistry()
	admin, err := cfg.Admin()
	if err != nil {
		log.Fatalf("invalid admin address: %v", err)
	}
	// The operator account can hold bond units before any gateway approvals.
	if err := ids.Approve(admin); err != nil {
		log.Fatalf("bootstrap admin identity: %v", err)
	}
	bonds := bond.NewLedger(ids)
	custody, err := bond.NewCustody(bonds, moduleAccount())
	if err != nil {
		log.Fatalf("configure custody: %v", err)
	}

	registry := oracle.NewRegistry()
	for _, raw := range cfg.OraclePublishers {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
		if err != nil {
			log.Fatalf("invalid oracle publisher %q: %v", raw, err)
		}
		registry.AuthorizePublisher(addr)
	}

	engine := cdp.NewEngine(
		cdp.NewCollateralVault(),
		cdp.NewSupplyLedger(),
		cdp.NewAccountant(cdp.NewOracleClient(registry)),
		custody,
	)
	recorder := events.NewRecorder(0)
	engine.SetEmitter(recorder)
	bonds.SetEmitter(recorder)
	registry.SetEmitter(recorder)
	if sink := strings.TrimSpace(cfg.PenaltySinkAddress); sink != "" {
		addr, err := crypto.DecodeAddress(sink)
		if err != nil {
			log.Fatalf("invalid penalty sink address: %v", err)
		}
		engine.SetPenaltySink(addr)
	}

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: cfg.AuthSecret,
	}, logger)
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"cdp":    {PerSecond: cfg.RateLimitPerSecond, Burst: cfg.RateLimitBurst},
		"oracle": {PerSecond: cfg.RateLimitPerSecond, Burst: cfg.RateLimitBurst},
		"bond":   {PerSecond: cfg.RateLimitPerSecond, Burst: cfg.RateLimitBurst},
	})
	observability := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "bondmintd",
		LogRequests: true,
	}, logger)

	platform := routes.NewPlatform(engine, registry, bonds, ids, logger)
	platform.SetEventFeed(recorder)
	handler := routes.New(routes.Config{
		Platform:      platform,
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: observability,
		MetricsPath:   cfg.MetricsPath,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
