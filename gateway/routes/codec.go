package routes

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"bondmint/crypto"
	"bondmint/native/cdp"
)

type depositRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type decreaseRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
	User       string `json:"user"`
	Asset      string `json:"asset"`
}

type previewRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type publishPriceRequest struct {
	Asset     string `json:"asset"`
	UnitPrice string `json:"unitPrice"`
	Timestamp int64  `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type registerBondRequest struct {
	Asset           string `json:"asset"`
	Symbol          string `json:"symbol"`
	RedemptionValue string `json:"redemptionValue"`
	MaturityAt      int64  `json:"maturityAt"`
}

type publisherRequest struct {
	Address string `json:"address"`
}

type registerSeriesRequest struct {
	Issuer     string `json:"issuer"`
	Asset      string `json:"asset"`
	Symbol     string `json:"symbol"`
	FaceValue  string `json:"faceValue"`
	MaturityAt int64  `json:"maturityAt"`
}

type bondMintRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type bondBurnRequest struct {
	Caller string `json:"caller"`
	From   string `json:"from"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type bondTransferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type identityRequest struct {
	Address string `json:"address"`
}

type holdingView struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type positionView struct {
	Owner        string        `json:"owner"`
	Debt         string        `json:"debt"`
	HealthFactor string        `json:"healthFactor"`
	TotalValue   string        `json:"totalValue"`
	Holdings     []holdingView `json:"holdings"`
}

type previewView struct {
	Eligible      bool   `json:"eligible"`
	BurnAmount    string `json:"burnAmount"`
	RemovedValue  string `json:"removedValue"`
	RemainingDebt string `json:"remainingDebt"`
}

type mintResult struct {
	Minted string `json:"minted"`
}

type burnResult struct {
	Burned string `json:"burned"`
}

type liquidateResult struct {
	Reward      string `json:"reward"`
	DebtCovered string `json:"debtCovered"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseAddress(field, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	return amount, nil
}

func parseSignature(value string) ([]byte, error) {
	signature, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	return signature, nil
}

func formatHoldings(holdings []cdp.CollateralHolding) []holdingView {
	views := make([]holdingView, 0, len(holdings))
	for _, holding := range holdings {
		views = append(views, holdingView{
			Asset:  string(holding.Asset),
			Amount: holding.Amount.String(),
		})
	}
	return views
}
