package execution

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// TradingPrice is one oracle price inside a signed batch. RawPrice is the
// fixed-point value the program consumes; Value applies the exponent for
// display.
type TradingPrice struct {
	Symbol    string
	FeedID    uint8
	RawPrice  uint64
	Exponent  int32
	Timestamp int64
}

// Value returns the human-readable price.
func (p TradingPrice) Value() decimal.Decimal {
	return decimal.New(int64(p.RawPrice), p.Exponent)
}

// PriceBatch is the signed trading-price set attached to distribute_fees.
type PriceBatch struct {
	Prices     []TradingPrice
	Signature  [64]byte
	RecoveryID uint8
}

type priceResponse struct {
	Success bool `json:"success"`
	Data    struct {
		LatestDate      string `json:"latest_date"`
		LatestTimestamp int64  `json:"latest_timestamp"`
		Prices          []struct {
			Symbol    string `json:"symbol"`
			FeedID    uint8  `json:"feed_id"`
			Price     uint64 `json:"price"`
			Timestamp int64  `json:"timestamp"`
			Exponent  int8   `json:"exponent"`
		} `json:"prices"`
		Signature  string `json:"signature"`
		RecoveryID uint8  `json:"recovery_id"`
	} `json:"data"`
}

// PriceFetcher pulls the latest signed trading-price batch from the protocol
// data API.
type PriceFetcher struct {
	url    string
	client *http.Client
}

func NewPriceFetcher(url string) *PriceFetcher {
	return &PriceFetcher{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch retrieves and parses the latest batch. A malformed or unsigned
// response is an error; distribute_fees cannot run without a valid batch.
func (f *PriceFetcher) Fetch(ctx context.Context) (*PriceBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch trading prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch trading prices: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trading prices: %w", err)
	}
	return ParsePriceBatch(body)
}

// ParsePriceBatch decodes the data API response body.
func ParsePriceBatch(body []byte) (*PriceBatch, error) {
	var parsed priceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse trading prices: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("trading price API reported failure")
	}
	sig, err := hex.DecodeString(parsed.Data.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode price batch signature: %w", err)
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("price batch signature is %d bytes, want 64", len(sig))
	}

	batch := &PriceBatch{RecoveryID: parsed.Data.RecoveryID}
	copy(batch.Signature[:], sig)
	for _, p := range parsed.Data.Prices {
		batch.Prices = append(batch.Prices, TradingPrice{
			Symbol:    p.Symbol,
			FeedID:    p.FeedID,
			RawPrice:  p.Price,
			Exponent:  int32(p.Exponent),
			Timestamp: p.Timestamp,
		})
	}
	return batch, nil
}
