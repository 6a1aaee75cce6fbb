package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/config"
)

func newTestTicker(t *testing.T, prices map[string]string) (*Ticker, *int) {
	t.Helper()
	hits := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		symbol := strings.TrimPrefix(r.URL.Path, "/price/")
		p, ok := prices[symbol]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"price":"` + p + `"}`))
	}))
	t.Cleanup(srv.Close)

	ticker, err := NewTicker(config.PriceConfig{URL: srv.URL + "/price/%s", CacheTTL: time.Minute, Timeout: time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTicker failed: %v", err)
	}
	return ticker, hits
}

func TestPriceIsCached(t *testing.T) {
	ticker, hits := newTestTicker(t, map[string]string{"ETH": "2000.5"})

	for i := 0; i < 3; i++ {
		p, err := ticker.Price(context.Background(), "eth")
		if err != nil {
			t.Fatalf("Price failed: %v", err)
		}
		if !p.Equal(decimal.RequireFromString("2000.5")) {
			t.Errorf("Unexpected price %s", p)
		}
	}
	if *hits != 1 {
		t.Errorf("Expected one fetch, got %d", *hits)
	}

	// expire the cached quote
	ticker.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := ticker.Price(context.Background(), "ETH"); err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if *hits != 2 {
		t.Errorf("Expected a refetch after ttl, got %d fetches", *hits)
	}
}

func TestRate(t *testing.T) {
	ticker, _ := newTestTicker(t, map[string]string{"ETH": "2000", "EVER": "0.05"})

	rate, err := ticker.Rate(context.Background(), "EVER", "ETH")
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.000025")) {
		t.Errorf("Unexpected rate %s", rate)
	}

	same, err := ticker.Rate(context.Background(), "ETH", "eth")
	if err != nil || !same.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected rate 1 for the same symbol, got %s (%v)", same, err)
	}
}

func TestPriceErrors(t *testing.T) {
	ticker, _ := newTestTicker(t, map[string]string{"ZERO": "0"})

	if _, err := ticker.Price(context.Background(), "MISSING"); err == nil {
		t.Error("Expected error for unknown symbol")
	}
	if _, err := ticker.Price(context.Background(), "ZERO"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("Expected ErrNoPrice, got %v", err)
	}
	if _, err := ticker.Rate(context.Background(), "MISSING", "ZERO"); err == nil {
		t.Error("Expected Rate to fail when a price is missing")
	}
}
