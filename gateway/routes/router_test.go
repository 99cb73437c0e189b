package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bondmint/core/events"
	"bondmint/crypto"
	"bondmint/gateway/middleware"
	"bondmint/native/bond"
	"bondmint/native/cdp"
	"bondmint/native/identity"
	"bondmint/native/oracle"
)

type gatewayFixture struct {
	handler  http.Handler
	ids      *identity.Registry
	bonds    *bond.Ledger
	registry *oracle.Registry
	issuer   crypto.Address
	feedKey  *crypto.PrivateKey
}

func makeAddress(seed byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = seed
	return crypto.MustNewAddress(crypto.BMTPrefix, raw)
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	ids := identity.NewRegistry()
	bonds := bond.NewLedger(ids)
	custody, err := bond.NewCustody(bonds, makeAddress(0xCD))
	if err != nil {
		t.Fatalf("new custody: %v", err)
	}

	registry := oracle.NewRegistry()
	registry.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	feedKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	registry.AuthorizePublisher(feedKey.PubKey().Address())

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

	platform := NewPlatform(engine, registry, bonds, ids, nil)
	platform.SetEventFeed(recorder)
	return &gatewayFixture{
		handler:  New(Config{Platform: platform}),
		ids:      ids,
		bonds:    bonds,
		registry: registry,
		issuer:   makeAddress(0xEE),
		feedKey:  feedKey,
	}
}

func (f *gatewayFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, req)
	return recorder
}

// seedBond registers the series in both the bond ledger and the oracle,
// publishes a unit price of 1e18 (one currency unit per bond unit), and mints
// holder inventory.
func (f *gatewayFixture) seedBond(t *testing.T, holder crypto.Address, amount int64) {
	t.Helper()
	if err := f.ids.Approve(holder); err != nil {
		t.Fatalf("approve holder: %v", err)
	}
	if err := f.bonds.RegisterSeries(f.issuer, "SU26240", "OFZ 26240", big.NewInt(1_000), 1_800_000_000); err != nil {
		t.Fatalf("register series: %v", err)
	}
	if err := f.registry.RegisterBond("SU26240", "OFZ 26240", cdp.PriceScale, 1_800_000_000); err != nil {
		t.Fatalf("register bond: %v", err)
	}
	proof, err := oracle.NewPriceProof(oracle.PriceProofDomainV1, "SU26240", cdp.PriceScale, 1_699_999_000, 1, nil)
	if err != nil {
		t.Fatalf("new proof: %v", err)
	}
	if err := proof.Sign(f.feedKey); err != nil {
		t.Fatalf("sign proof: %v", err)
	}
	if err := f.registry.PublishPrice(proof); err != nil {
		t.Fatalf("publish price: %v", err)
	}
	if err := f.bonds.Mint(f.issuer, holder, "SU26240", big.NewInt(amount)); err != nil {
		t.Fatalf("mint bonds: %v", err)
	}
}

func TestDepositOverHTTP(t *testing.T) {
	fix := newGatewayFixture(t)
	alice := makeAddress(0x01)
	fix.seedBond(t, alice, 10_000)

	recorder := fix.do(t, http.MethodPost, "/v1/cdp/deposit", depositRequest{
		Caller: alice.String(),
		Asset:  "SU26240",
		Amount: "10000",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("deposit status %d: %s", recorder.Code, recorder.Body.String())
	}
	var result mintResult
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Minted != "8000" {
		t.Fatalf("unexpected minted amount: %s", result.Minted)
	}

	recorder = fix.do(t, http.MethodGet, "/v1/cdp/positions/"+alice.String(), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("position status %d", recorder.Code)
	}
	var position positionView
	if err := json.Unmarshal(recorder.Body.Bytes(), &position); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if position.Debt != "8000" || position.TotalValue != "10000" {
		t.Fatalf("unexpected position: %+v", position)
	}
	if len(position.Holdings) != 1 || position.Holdings[0].Amount != "10000" {
		t.Fatalf("unexpected holdings: %+v", position.Holdings)
	}

	recorder = fix.do(t, http.MethodGet, "/v1/cdp/supply", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("supply status %d", recorder.Code)
	}
}

func TestDecreaseAndPreviewOverHTTP(t *testing.T) {
	fix := newGatewayFixture(t)
	alice := makeAddress(0x01)
	fix.seedBond(t, alice, 10_000)
	if code := fix.do(t, http.MethodPost, "/v1/cdp/deposit", depositRequest{
		Caller: alice.String(), Asset: "SU26240", Amount: "10000",
	}).Code; code != http.StatusOK {
		t.Fatalf("deposit status %d", code)
	}

	recorder := fix.do(t, http.MethodPost, "/v1/cdp/preview", previewRequest{
		User: alice.String(), Asset: "SU26240", Amount: "2500",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("preview status %d: %s", recorder.Code, recorder.Body.String())
	}
	var preview previewView
	if err := json.Unmarshal(recorder.Body.Bytes(), &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if !preview.Eligible || preview.BurnAmount != "2000" {
		t.Fatalf("unexpected preview: %+v", preview)
	}

	recorder = fix.do(t, http.MethodPost, "/v1/cdp/decrease", decreaseRequest{
		Caller: alice.String(), Asset: "SU26240", Amount: "2500",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("decrease status %d: %s", recorder.Code, recorder.Body.String())
	}
	var result burnResult
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Burned != "2000" {
		t.Fatalf("unexpected burned amount: %s", result.Burned)
	}
}

func TestErrorMappingOverHTTP(t *testing.T) {
	fix := newGatewayFixture(t)
	alice := makeAddress(0x01)
	bob := makeAddress(0x02)
	fix.seedBond(t, alice, 10_000)

	// Unknown collateral asset maps to 400.
	recorder := fix.do(t, http.MethodPost, "/v1/cdp/deposit", depositRequest{
		Caller: alice.String(), Asset: "SU99999", Amount: "100",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unknown asset status %d", recorder.Code)
	}

	// Depositor without inventory maps to 422 (custody rejected).
	recorder = fix.do(t, http.MethodPost, "/v1/cdp/deposit", depositRequest{
		Caller: bob.String(), Asset: "SU26240", Amount: "100",
	})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rejected transfer status %d: %s", recorder.Code, recorder.Body.String())
	}

	// Healthy position maps liquidation to 409.
	if code := fix.do(t, http.MethodPost, "/v1/cdp/deposit", depositRequest{
		Caller: alice.String(), Asset: "SU26240", Amount: "10000",
	}).Code; code != http.StatusOK {
		t.Fatalf("deposit status %d", code)
	}
	recorder = fix.do(t, http.MethodPost, "/v1/cdp/liquidate", liquidateRequest{
		Liquidator: bob.String(), User: alice.String(), Asset: "SU26240",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("healthy liquidation status %d: %s", recorder.Code, recorder.Body.String())
	}

	// Unknown feed maps to 404.
	recorder = fix.do(t, http.MethodGet, "/v1/oracle/feeds/SU99999", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown feed status %d", recorder.Code)
	}

	// Malformed address maps to 400.
	recorder = fix.do(t, http.MethodGet, "/v1/cdp/positions/not-an-address", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("bad address status %d", recorder.Code)
	}
}

func TestPublishPriceOverHTTP(t *testing.T) {
	fix := newGatewayFixture(t)
	alice := makeAddress(0x01)
	fix.seedBond(t, alice, 1)

	price := new(big.Int).Mul(big.NewInt(2), cdp.PriceScale)
	proof, err := oracle.NewPriceProof(oracle.PriceProofDomainV1, "SU26240", price, 1_699_999_500, 2, nil)
	if err != nil {
		t.Fatalf("new proof: %v", err)
	}
	if err := proof.Sign(fix.feedKey); err != nil {
		t.Fatalf("sign proof: %v", err)
	}

	recorder := fix.do(t, http.MethodPost, "/v1/oracle/prices", publishPriceRequest{
		Asset:     "SU26240",
		UnitPrice: price.String(),
		Timestamp: 1_699_999_500,
		Nonce:     2,
		Signature: fmt.Sprintf("%x", proof.Signature),
	})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("publish status %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = fix.do(t, http.MethodGet, "/v1/oracle/feeds/SU26240", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("feed status %d", recorder.Code)
	}
	var feed struct {
		UnitPrice string `json:"unitPrice"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if feed.UnitPrice != price.String() {
		t.Fatalf("unexpected unit price: %s", feed.UnitPrice)
	}
}

func TestIdentityAdminOverHTTP(t *testing.T) {
	fix := newGatewayFixture(t)
	alice := makeAddress(0x01)

	recorder := fix.do(t, http.MethodPost, "/v1/identity/approve", identityRequest{Address: alice.String()})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("approve status %d", recorder.Code)
	}
	recorder = fix.do(t, http.MethodGet, "/v1/identity/"+alice.String(), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d", recorder.Code)
	}
	var status struct {
		Approved bool `json:"approved"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Approved {
		t.Fatal("expected approved")
	}
	recorder = fix.do(t, http.MethodPost, "/v1/identity/revoke", identityRequest{Address: alice.String()})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("revoke status %d", recorder.Code)
	}
}

func TestConcurrentReadsDuringDeposits(t *testing.T) {
	fix := newGatewayFixture(t)
	alice := makeAddress(0x01)
	fix.seedBond(t, alice, 100_000)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if code := fix.do(t, http.MethodGet, "/v1/cdp/positions/"+alice.String(), nil).Code; code != http.StatusOK {
					t.Errorf("position status %d", code)
					return
				}
				if code := fix.do(t, http.MethodGet, "/v1/cdp/supply", nil).Code; code != http.StatusOK {
					t.Errorf("supply status %d", code)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if code := fix.do(t, http.MethodPost, "/v1/cdp/deposit", depositRequest{
			Caller: alice.String(), Asset: "SU26240", Amount: "10",
		}).Code; code != http.StatusOK {
			t.Fatalf("deposit %d status %d", i, code)
		}
	}
	close(done)
	wg.Wait()

	recorder := fix.do(t, http.MethodGet, "/v1/cdp/positions/"+alice.String(), nil)
	var position positionView
	if err := json.Unmarshal(recorder.Body.Bytes(), &position); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if position.TotalValue != "500" {
		t.Fatalf("unexpected total value after deposits: %s", position.TotalValue)
	}
}

func TestEventFeedOverHTTP(t *testing.T) {
	fix := newGatewayFixture(t)
	alice := makeAddress(0x01)
	fix.seedBond(t, alice, 10_000)
	if code := fix.do(t, http.MethodPost, "/v1/cdp/deposit", depositRequest{
		Caller: alice.String(), Asset: "SU26240", Amount: "10000",
	}).Code; code != http.StatusOK {
		t.Fatalf("deposit status %d", code)
	}

	recorder := fix.do(t, http.MethodGet, "/v1/events", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("events status %d", recorder.Code)
	}
	var feed struct {
		Events []events.Event `json:"events"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	seen := make(map[string]bool)
	for _, ev := range feed.Events {
		seen[ev.Type] = true
	}
	for _, want := range []string{events.TypeBondMinted, events.TypePriceUpdated, events.TypeCollateralDeposited, events.TypePositionIncreased} {
		if !seen[want] {
			t.Fatalf("event feed missing %s: %+v", want, seen)
		}
	}

	recorder = fix.do(t, http.MethodGet, "/v1/events?limit=1", nil)
	if err := json.Unmarshal(recorder.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decode limited events: %v", err)
	}
	if len(feed.Events) != 1 || feed.Events[0].Type != events.TypePositionIncreased {
		t.Fatalf("unexpected limited feed: %+v", feed.Events)
	}

	if code := fix.do(t, http.MethodGet, "/v1/events?limit=bogus", nil).Code; code != http.StatusBadRequest {
		t.Fatalf("bogus limit status %d", code)
	}
}

func TestMetricsPathConfigurable(t *testing.T) {
	fix := newGatewayFixture(t)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "test"}, nil)
	handler := New(Config{
		Platform:      NewPlatform(nil, fix.registry, fix.bonds, fix.ids, nil),
		Observability: obs,
		MetricsPath:   "/internal/metrics",
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/internal/metrics", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("metrics status %d", recorder.Code)
	}
	if !bytes.Contains(recorder.Body.Bytes(), []byte("gateway_requests_total")) {
		t.Fatalf("metrics exposition missing request counter: %s", recorder.Body.String())
	}
}
