package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bondmint/observability/logging"
	"bondmint/services/pricefeed"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "pricefeed.yaml", "path to pricefeedd config")
	flag.Parse()

	cfg, err := pricefeed.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(logging.Options{
		Service: "pricefeedd",
		Level:   cfg.LogLevel,
		File:    logging.FileOptions{Path: cfg.LogFile},
	})

	keyHex, err := cfg.ResolveKey()
	if err != nil {
		log.Fatalf("resolve signing key: %v", err)
	}
	nonces, err := pricefeed.NewNonceManager(cfg.NonceFile)
	if err != nil {
		log.Fatalf("open nonce file: %v", err)
	}
	signer, err := pricefeed.NewSigner(keyHex, nonces)
	if err != nil {
		log.Fatalf("configure signer: %v", err)
	}
	logger.Info("publisher key loaded", "address", signer.Address().String())

	store, err := pricefeed.OpenStore(cfg.HistoryDB)
	if err != nil {
		log.Fatalf("open history store: %v", err)
	}

	publisher := pricefeed.NewPublisher(
		cfg,
		pricefeed.NewMoexClient(cfg.ISSBaseURL, nil),
		signer,
		store,
		nil,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("pricefeed running", "bonds", len(cfg.Bonds), "interval", cfg.Interval.String())
	if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("publisher stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("pricefeed stopped")
}
