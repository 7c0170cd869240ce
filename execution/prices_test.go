package execution

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPriceBody() string {
	sig := hex.EncodeToString(make([]byte, 64))
	return fmt.Sprintf(`{
		"success": true,
		"data": {
			"latest_date": "2026-08-26",
			"latest_timestamp": 1787000000,
			"prices": [
				{"symbol": "GOV", "feed_id": 1, "price": 251000000, "timestamp": 1787000000, "exponent": -8},
				{"symbol": "LIQ", "feed_id": 2, "price": 10450000, "timestamp": 1787000000, "exponent": -7}
			],
			"signature": "%s",
			"recovery_id": 1
		}
	}`, sig)
}

func TestParsePriceBatch(t *testing.T) {
	batch, err := ParsePriceBatch([]byte(validPriceBody()))
	require.NoError(t, err)
	require.Len(t, batch.Prices, 2)

	gov := batch.Prices[0]
	assert.Equal(t, "GOV", gov.Symbol)
	assert.Equal(t, uint8(1), gov.FeedID)
	assert.Equal(t, "2.51", gov.Value().String())
	assert.Equal(t, "1.045", batch.Prices[1].Value().String())
	assert.Equal(t, uint8(1), batch.RecoveryID)
}

func TestParsePriceBatchRejectsFailure(t *testing.T) {
	_, err := ParsePriceBatch([]byte(`{"success": false, "data": {}}`))
	require.Error(t, err)
}

func TestParsePriceBatchRejectsBadSignature(t *testing.T) {
	body := fmt.Sprintf(`{"success": true, "data": {"prices": [], "signature": "%s", "recovery_id": 0}}`,
		hex.EncodeToString(make([]byte, 10)))
	_, err := ParsePriceBatch([]byte(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature")
}

func TestPriceFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, validPriceBody())
	}))
	defer server.Close()

	batch, err := NewPriceFetcher(server.URL).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.Prices, 2)
}

func TestPriceFetcherRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewPriceFetcher(server.URL).Fetch(context.Background())
	require.Error(t, err)
}

func TestEncodePriceBatchLayout(t *testing.T) {
	batch := &PriceBatch{
		Prices: []TradingPrice{
			{FeedID: 7, RawPrice: 123, Timestamp: 456},
		},
		RecoveryID: 3,
	}
	batch.Signature[0] = 0xAA

	data := encodePriceBatch(batch)
	require.Len(t, data, 4+17+65)

	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, byte(7), data[4])
	assert.Equal(t, uint64(123), binary.LittleEndian.Uint64(data[5:13]))
	assert.Equal(t, uint64(456), binary.LittleEndian.Uint64(data[13:21]))
	assert.Equal(t, byte(0xAA), data[21])
	assert.Equal(t, byte(3), data[len(data)-1])
}
