// Package price reads native currency prices for the gas estimator.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/config"
)

const cacheSize = 256

// ErrNoPrice is returned when the price source has no positive price for a symbol.
var ErrNoPrice = errors.New("no price for symbol")

type quote struct {
	price decimal.Decimal
	at    time.Time
}

// Ticker fetches USD prices by currency symbol. Prices are best effort and cached for CacheTTL.
type Ticker struct {
	cfg    config.PriceConfig
	client *http.Client
	cache  *lru.Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewTicker creates a ticker reading cfg.URL, a template with one %s for the symbol.
func NewTicker(cfg config.PriceConfig, logger *zap.Logger) (*Ticker, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create price cache: %w", err)
	}
	return &Ticker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Price returns the USD price of symbol.
func (t *Ticker) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)

	if cached, ok := t.cache.Get(symbol); ok {
		q := cached.(quote)
		if t.now().Sub(q.at) < t.cfg.CacheTTL {
			return q.price, nil
		}
	}

	p, err := t.fetch(ctx, symbol)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("price", "fetch").Inc()
		return decimal.Zero, err
	}
	t.cache.Add(symbol, quote{price: p, at: t.now()})
	return p, nil
}

// Rate returns how many units of to one unit of from is worth.
func (t *Ticker) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return decimal.NewFromInt(1), nil
	}
	fromPrice, err := t.Price(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	toPrice, err := t.Price(ctx, to)
	if err != nil {
		return decimal.Zero, err
	}
	return fromPrice.Div(toPrice), nil
}

func (t *Ticker) fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(t.cfg.URL, symbol), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create price request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price of %s: %w", symbol, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("failed to fetch price of %s: status %d", symbol, resp.StatusCode)
	}

	var body struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price of %s: %w", symbol, err)
	}
	if !body.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}

	t.logger.Debug("Price fetched", zap.String("symbol", symbol), zap.String("price", body.Price.String()))
	return body.Price, nil
}
