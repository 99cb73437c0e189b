package pricefeed

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"bondmint/native/cdp"
)

// Publisher polls the exchange for tracked bonds and pushes signed price
// proofs to the gateway when the price moved beyond the deviation threshold or
// the refresh interval elapsed.
type Publisher struct {
	cfg    *Config
	moex   *MoexClient
	cache  *QuoteCache
	signer *Signer
	store  *Store
	client HTTPDoer
	logger *slog.Logger
	now    func() time.Time

	lastPublished map[string]*big.Int
	lastPublishAt map[string]time.Time
}

func NewPublisher(cfg *Config, moex *MoexClient, signer *Signer, store *Store, client HTTPDoer, logger *slog.Logger) *Publisher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:           cfg,
		moex:          moex,
		cache:         NewQuoteCache(cfg.CacheTTL),
		signer:        signer,
		store:         store,
		client:        client,
		logger:        logger,
		now:           time.Now,
		lastPublished: make(map[string]*big.Int),
		lastPublishAt: make(map[string]time.Time),
	}
}

// Run polls until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one refresh pass over every tracked bond.
func (p *Publisher) Tick(ctx context.Context) {
	for _, secID := range p.cfg.Bonds {
		if err := p.refresh(ctx, secID); err != nil {
			p.logger.Warn("refresh failed", "secId", secID, "error", err)
		}
	}
}

func (p *Publisher) refresh(ctx context.Context, secID string) error {
	quote, ok := p.cache.Get(secID)
	if !ok {
		fetched, err := p.moex.MarketQuote(ctx, secID)
		if err != nil {
			return err
		}
		p.cache.Put(fetched)
		quote = fetched
	}

	detail, err := p.moex.BondDetails(ctx, secID)
	if err != nil {
		return err
	}
	unitPrice, err := ScaleUnitPrice(quote.Percentage, detail.FaceValue)
	if err != nil {
		return err
	}
	if !p.shouldPublish(secID, unitPrice) {
		return nil
	}

	timestamp := p.now().Unix()
	proof, err := p.signer.SignPrice(cdp.AssetID(secID), unitPrice, timestamp)
	if err != nil {
		return err
	}
	if err := p.post(ctx, secID, proof.UnitPrice, proof.Timestamp, proof.Nonce, proof.Signature); err != nil {
		return err
	}

	p.lastPublished[secID] = new(big.Int).Set(unitPrice)
	p.lastPublishAt[secID] = p.now()
	if p.store != nil {
		if err := p.store.Record(secID, unitPrice, quote.Source, proof.Nonce, p.now()); err != nil {
			p.logger.Warn("history write failed", "secId", secID, "error", err)
		}
	}
	p.logger.Info("published price",
		"secId", secID,
		"unitPrice", unitPrice.String(),
		"source", quote.Source,
		"nonce", proof.Nonce,
	)
	return nil
}

// shouldPublish applies the deviation-or-heartbeat rule against the last
// published value. The heartbeat uses RepublishInterval, not the poll
// interval, so flat prices are not re-pushed on every poll.
func (p *Publisher) shouldPublish(secID string, unitPrice *big.Int) bool {
	last, ok := p.lastPublished[secID]
	if !ok || last.Sign() == 0 {
		return true
	}
	if p.now().Sub(p.lastPublishAt[secID]) >= p.cfg.RepublishInterval {
		return true
	}
	diff := new(big.Int).Sub(unitPrice, last)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10_000))
	diff.Quo(diff, last)
	return diff.Cmp(big.NewInt(p.cfg.DeviationBips)) >= 0
}

type publishPayload struct {
	Asset     string `json:"asset"`
	UnitPrice string `json:"unitPrice"`
	Timestamp int64  `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

func (p *Publisher) post(ctx context.Context, secID string, unitPrice *big.Int, timestamp int64, nonce uint64, signature []byte) error {
	payload, err := json.Marshal(publishPayload{
		Asset:     secID,
		UnitPrice: unitPrice.String(),
		Timestamp: timestamp,
		Nonce:     nonce,
		Signature: hex.EncodeToString(signature),
	})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(p.cfg.GatewayURL, "/") + "/v1/oracle/prices"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pricefeed: publish request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pricefeed: gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
