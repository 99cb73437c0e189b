package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"bondmint/core/events"
	"bondmint/native/bond"
	"bondmint/native/cdp"
	"bondmint/native/identity"
	"bondmint/native/oracle"
)

// Platform bundles the state machines the gateway fronts. All engine access
// runs under a single state lock: mutating operations take the write side so
// concurrent HTTP requests cannot interleave inside an operation, and read
// handlers take the read side so they never observe a half-applied mutation.
type Platform struct {
	mu       sync.RWMutex
	engine   *cdp.Engine
	oracle   *oracle.Registry
	bonds    *bond.Ledger
	identity *identity.Registry
	feed     *events.Recorder
	logger   *slog.Logger
}

func NewPlatform(engine *cdp.Engine, registry *oracle.Registry, bonds *bond.Ledger, ids *identity.Registry, logger *slog.Logger) *Platform {
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{
		engine:   engine,
		oracle:   registry,
		bonds:    bonds,
		identity: ids,
		logger:   logger,
	}
}

// SetEventFeed exposes a recorder wired to the state machines behind
// GET /v1/events.
func (p *Platform) SetEventFeed(feed *events.Recorder) {
	p.feed = feed
}

// statusFor maps domain sentinel errors onto HTTP statuses; anything
// unrecognized is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cdp.ErrCollateralNotFound),
		errors.Is(err, oracle.ErrUnknownBond),
		errors.Is(err, bond.ErrUnknownSeries):
		return http.StatusNotFound
	case errors.Is(err, cdp.ErrInvalidCollateral),
		errors.Is(err, cdp.ErrInvalidAmount),
		errors.Is(err, oracle.ErrInvalidProof),
		errors.Is(err, bond.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, cdp.ErrTooManyCollateralTokens),
		errors.Is(err, cdp.ErrInsufficientCollateral),
		errors.Is(err, cdp.ErrInsufficientBalance),
		errors.Is(err, cdp.ErrPositionNotLiquidatable),
		errors.Is(err, bond.ErrInsufficientUnits),
		errors.Is(err, oracle.ErrStaleProof),
		errors.Is(err, oracle.ErrBondExists),
		errors.Is(err, bond.ErrSeriesExists):
		return http.StatusConflict
	case errors.Is(err, cdp.ErrTransferRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrNotAuthorized),
		errors.Is(err, bond.ErrNotIssuer),
		errors.Is(err, bond.ErrNotWhitelisted):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (p *Platform) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		p.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (p *Platform) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	p.mu.Lock()
	minted, err := p.engine.Deposit(caller, cdp.AssetID(req.Asset), amount)
	p.mu.Unlock()
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mintResult{Minted: minted.String()})
}

func (p *Platform) handleDecrease(w http.ResponseWriter, r *http.Request) {
	var req decreaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	p.mu.Lock()
	burned, err := p.engine.Decrease(caller, cdp.AssetID(req.Asset), amount)
	p.mu.Unlock()
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, burnResult{Burned: burned.String()})
}

func (p *Platform) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	liquidator, err := parseAddress("liquidator", req.Liquidator)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	p.mu.Lock()
	reward, covered, err := p.engine.Liquidate(liquidator, user, cdp.AssetID(req.Asset))
	p.mu.Unlock()
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidateResult{
		Reward:      reward.String(),
		DebtCovered: covered.String(),
	})
}

func (p *Platform) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	p.mu.RLock()
	preview, err := p.engine.PreviewDecrease(user, cdp.AssetID(req.Asset), amount)
	p.mu.RUnlock()
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, previewView{
		Eligible:      preview.Eligible,
		BurnAmount:    preview.BurnAmount.String(),
		RemovedValue:  preview.RemovedValue.String(),
		RemainingDebt: preview.RemainingDebt.String(),
	})
}

func (p *Platform) handlePosition(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	p.mu.RLock()
	position := p.engine.Position(user)
	health := p.engine.PositionHealth(user)
	total := p.engine.TotalCollateralValue(user)
	p.mu.RUnlock()
	writeJSON(w, http.StatusOK, positionView{
		Owner:        user.String(),
		Debt:         position.Debt.String(),
		HealthFactor: health.String(),
		TotalValue:   total.String(),
		Holdings:     formatHoldings(position.Holdings),
	})
}

func (p *Platform) handleSupply(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	supply := p.engine.Ledger().TotalSupply()
	p.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"totalSupply": supply.String(),
	})
}

func (p *Platform) handleEvents(w http.ResponseWriter, r *http.Request) {
	if p.feed == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "event feed disabled"})
		return
	}
	recorded := p.feed.Events()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		if limit < len(recorded) {
			recorded = recorded[len(recorded)-limit:]
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": recorded})
}

func (p *Platform) handlePublishPrice(w http.ResponseWriter, r *http.Request) {
	var req publishPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	unitPrice, err := parseAmount("unitPrice", req.UnitPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	signature, err := parseSignature(req.Signature)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	proof, err := oracle.NewPriceProof(oracle.PriceProofDomainV1, cdp.AssetID(req.Asset), unitPrice, req.Timestamp, req.Nonce, signature)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := p.oracle.PublishPrice(proof); err != nil {
		p.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleRegisterBond(w http.ResponseWriter, r *http.Request) {
	var req registerBondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	redemption, err := parseAmount("redemptionValue", req.RedemptionValue)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := p.oracle.RegisterBond(cdp.AssetID(req.Asset), req.Symbol, redemption, req.MaturityAt); err != nil {
		p.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (p *Platform) handleAuthorizePublisher(w http.ResponseWriter, r *http.Request) {
	var req publisherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	p.oracle.AuthorizePublisher(addr)
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleFeed(w http.ResponseWriter, r *http.Request) {
	asset := cdp.AssetID(chi.URLParam(r, "asset"))
	feed, ok := p.oracle.GetPriceFeed(asset)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: oracle.ErrUnknownBond.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":       string(cdp.NormalizeAssetID(asset)),
		"unitPrice":   feed.UnitPrice.String(),
		"lastUpdated": feed.LastUpdated,
		"maturityAt":  feed.MaturityAt,
	})
}

func (p *Platform) handleRegisterSeries(w http.ResponseWriter, r *http.Request) {
	var req registerSeriesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	issuer, err := parseAddress("issuer", req.Issuer)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	faceValue, err := parseAmount("faceValue", req.FaceValue)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := p.bonds.RegisterSeries(issuer, cdp.AssetID(req.Asset), req.Symbol, faceValue, req.MaturityAt); err != nil {
		p.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (p *Platform) handleBondMint(w http.ResponseWriter, r *http.Request) {
	var req bondMintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := p.bonds.Mint(caller, to, cdp.AssetID(req.Asset), amount); err != nil {
		p.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleBondBurn(w http.ResponseWriter, r *http.Request) {
	var req bondBurnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := p.bonds.Burn(caller, from, cdp.AssetID(req.Asset), amount); err != nil {
		p.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleBondTransfer(w http.ResponseWriter, r *http.Request) {
	var req bondTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := p.bonds.Transfer(from, to, cdp.AssetID(req.Asset), amount); err != nil {
		p.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleBondBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	asset := cdp.AssetID(chi.URLParam(r, "asset"))
	writeJSON(w, http.StatusOK, map[string]string{
		"balance": p.bonds.BalanceOf(holder, asset).String(),
	})
}

func (p *Platform) handleIdentityApprove(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := p.identity.Approve(addr); err != nil {
		p.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleIdentityRevoke(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := p.identity.Revoke(addr); err != nil {
		p.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Platform) handleIdentityStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"approved": p.identity.IsApproved(addr),
	})
}
