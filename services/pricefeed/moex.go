package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultISSBaseURL is the Moscow Exchange ISS market-data endpoint for the
// government-bond board.
const DefaultISSBaseURL = "https://iss.moex.com/iss"

const issUserAgent = "bondmint-pricefeed/1.0"

// priceFieldPriority is the order market-data fields are consulted for a
// usable quote.
var priceFieldPriority = []string{
	"MARKETPRICE", "LAST", "LCLOSEPRICE", "WAPRICE", "PREVWAPRICE", "CLOSEPRICE",
}

// ErrNoQuote is returned when none of the market-data fields carry a price.
var ErrNoQuote = errors.New("pricefeed: no market quote available")

// HTTPDoer abstracts the HTTP client for tests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Quote is one resolved bond price: a percentage of nominal plus the field it
// was taken from.
type Quote struct {
	SecID      string
	Percentage float64
	Source     string
	FetchedAt  time.Time
}

// BondDetail carries the static series attributes needed to register a bond.
type BondDetail struct {
	SecID      string
	ShortName  string
	ISIN       string
	FaceValue  float64
	MaturityAt time.Time
}

// MoexClient reads bond quotes and series metadata from the ISS API.
type MoexClient struct {
	baseURL string
	client  HTTPDoer
	now     func() time.Time
}

func NewMoexClient(baseURL string, client HTTPDoer) *MoexClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultISSBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &MoexClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     time.Now,
	}
}

// issTable is the ISS JSON block layout: parallel column and row arrays.
type issTable struct {
	Columns []string        `json:"columns"`
	Data    [][]interface{} `json:"data"`
}

func (t *issTable) cell(row []interface{}, column string) (interface{}, bool) {
	for i, name := range t.Columns {
		if name == column && i < len(row) {
			return row[i], true
		}
	}
	return nil, false
}

func (c *MoexClient) getJSON(ctx context.Context, rawURL string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", issUserAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pricefeed: iss request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pricefeed: iss status %d for %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("pricefeed: iss decode: %w", err)
	}
	return nil
}

// MarketQuote fetches the current quote for one security, consulting the
// market-data fields in priority order.
func (c *MoexClient) MarketQuote(ctx context.Context, secID string) (Quote, error) {
	var payload struct {
		MarketData issTable `json:"marketdata"`
	}
	rawURL := fmt.Sprintf("%s/engines/stock/markets/bonds/securities/%s.json?iss.only=marketdata&iss.meta=off",
		c.baseURL, url.PathEscape(secID))
	if err := c.getJSON(ctx, rawURL, &payload); err != nil {
		return Quote{}, err
	}
	if len(payload.MarketData.Data) == 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, secID)
	}
	row := payload.MarketData.Data[0]
	for _, field := range priceFieldPriority {
		value, ok := payload.MarketData.cell(row, field)
		if !ok || value == nil {
			continue
		}
		pct, ok := value.(float64)
		if !ok || pct <= 0 {
			continue
		}
		return Quote{
			SecID:      secID,
			Percentage: pct,
			Source:     field,
			FetchedAt:  c.now(),
		}, nil
	}
	return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, secID)
}

// BondDetails fetches face value and maturity for one security from the
// securities description block.
func (c *MoexClient) BondDetails(ctx context.Context, secID string) (BondDetail, error) {
	var payload struct {
		Description issTable `json:"description"`
	}
	rawURL := fmt.Sprintf("%s/securities/%s.json?iss.only=description&iss.meta=off",
		c.baseURL, url.PathEscape(secID))
	if err := c.getJSON(ctx, rawURL, &payload); err != nil {
		return BondDetail{}, err
	}

	detail := BondDetail{SecID: secID}
	for _, row := range payload.Description.Data {
		name, _ := payload.Description.cell(row, "name")
		value, _ := payload.Description.cell(row, "value")
		key, _ := name.(string)
		text, _ := value.(string)
		switch key {
		case "FACEVALUE":
			fmt.Sscanf(text, "%f", &detail.FaceValue)
		case "MATDATE":
			if ts, err := time.Parse("2006-01-02", text); err == nil {
				detail.MaturityAt = ts
			}
		case "ISIN":
			detail.ISIN = text
		case "SHORTNAME", "SECNAME":
			if detail.ShortName == "" {
				detail.ShortName = text
			}
		}
	}
	if detail.FaceValue <= 0 {
		return BondDetail{}, fmt.Errorf("pricefeed: no face value for %s", secID)
	}
	if detail.MaturityAt.IsZero() {
		return BondDetail{}, fmt.Errorf("pricefeed: no maturity date for %s", secID)
	}
	return detail, nil
}

// ListBonds returns the active securities on the TQOB government-bond board.
func (c *MoexClient) ListBonds(ctx context.Context) ([]BondDetail, error) {
	var payload struct {
		Securities issTable `json:"securities"`
	}
	rawURL := fmt.Sprintf("%s/engines/stock/markets/bonds/boards/TQOB/securities.json?iss.meta=off", c.baseURL)
	if err := c.getJSON(ctx, rawURL, &payload); err != nil {
		return nil, err
	}
	bonds := make([]BondDetail, 0, len(payload.Securities.Data))
	for _, row := range payload.Securities.Data {
		status, _ := payload.Securities.cell(row, "STATUS")
		if text, ok := status.(string); ok && text != "A" {
			continue
		}
		secID, _ := payload.Securities.cell(row, "SECID")
		shortName, _ := payload.Securities.cell(row, "SHORTNAME")
		id, ok := secID.(string)
		if !ok || id == "" {
			continue
		}
		name, _ := shortName.(string)
		bonds = append(bonds, BondDetail{SecID: id, ShortName: name})
	}
	return bonds, nil
}
