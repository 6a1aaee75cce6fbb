// Package gas estimates the destination-side gas of a pipeline, in the destination chain's
// smallest unit and as the amount a user prepays in the source currency, and locks
// submission while no trustworthy estimate exists.
package gas

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
)

const defaultInterval = 10 * time.Second

// safetyMargin is applied to every hop cost.
var safetyMargin = decimal.RequireFromString("1.2")

// ErrNoPricer is returned for a hop on a chain without a gas price source.
var ErrNoPricer = errors.New("no gas price source for chain")

// Pricer reads the gas price of one chain in its smallest native unit.
type Pricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Ticker converts between native currencies.
type Ticker interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Networks resolves currency symbols and decimals.
type Networks interface {
	Get(ref network.ChainRef) (network.Network, bool)
}

// Estimate is the gas of one pipeline. Cost, Surcharge and Total are in the smallest unit
// of the destination currency; SourceTotal is the same figure in the smallest unit of the
// source currency, the amount prepaid with the deposit.
type Estimate struct {
	Route       string    `json:"route"`
	Cost        *big.Int  `json:"cost"`
	Surcharge   *big.Int  `json:"surcharge"`
	Total       *big.Int  `json:"total"`
	SourceTotal *big.Int  `json:"sourceTotal"`
	Locked      bool      `json:"locked"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type entry struct {
	estimate Estimate
	running  bool
}

// Estimator keeps a periodically refreshed estimate per watched pipeline.
type Estimator struct {
	networks Networks
	pricers  map[network.ChainRef]Pricer
	ticker   Ticker
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEstimator creates an estimator. Call Stop to end the refresh loops.
func NewEstimator(networks Networks, pricers map[network.ChainRef]Pricer, ticker Ticker, interval time.Duration, logger *zap.Logger) *Estimator {
	if interval <= 0 {
		interval = defaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Estimator{
		networks: networks,
		pricers:  pricers,
		ticker:   ticker,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Key identifies the estimate of a pipeline.
func Key(p *pipeline.Pipeline) string {
	return p.Route() + "/" + p.Source.String() + "/" + p.Destination.String() + "/" + p.SourceToken
}

// Compute runs one estimation of p.
func (e *Estimator) Compute(ctx context.Context, p *pipeline.Pipeline) (Estimate, error) {
	src, ok := e.networks.Get(p.Source)
	if !ok {
		return Estimate{}, fmt.Errorf("%w: %s", network.ErrUnknownNetwork, p.Source)
	}
	dst, ok := e.networks.Get(p.Destination)
	if !ok {
		return Estimate{}, fmt.Errorf("%w: %s", network.ErrUnknownNetwork, p.Destination)
	}

	cost, prepaid := new(big.Int), new(big.Int)
	for _, hop := range p.Hops {
		c, err := e.hopCost(ctx, hop.Chain, hop.GasUsage, dst, src)
		if err != nil {
			return Estimate{}, fmt.Errorf("hop %s: %w", hop.Chain, err)
		}
		cost.Add(cost, c[0])
		prepaid.Add(prepaid, c[1])
	}

	surcharge := new(big.Int)
	if !p.DestinationDeployed() {
		oneCoin := decimal.New(1, int32(dst.CurrencyDecimals))
		v, err := e.convert(ctx, oneCoin, dst, src)
		if err != nil {
			return Estimate{}, fmt.Errorf("token deploy surcharge: %w", err)
		}
		surcharge = oneCoin.BigInt()
		prepaid.Add(prepaid, v.Floor().BigInt())
	}

	return Estimate{
		Route:       p.Route(),
		Cost:        cost,
		Surcharge:   surcharge,
		Total:       new(big.Int).Add(cost, surcharge),
		SourceTotal: prepaid,
		UpdatedAt:   e.now(),
	}, nil
}

// hopCost is floor(gasPrice * gasUsage * rate * 1.2) in the smallest unit of each of the
// given networks, in order.
func (e *Estimator) hopCost(ctx context.Context, ref network.ChainRef, gasUsage uint64, in ...network.Network) ([]*big.Int, error) {
	hopNet, ok := e.networks.Get(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", network.ErrUnknownNetwork, ref)
	}
	pricer, ok := e.pricers[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPricer, ref)
	}
	price, err := pricer.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	native := decimal.NewFromBigInt(price, 0).Mul(decimal.NewFromInt(int64(gasUsage)))
	out := make([]*big.Int, 0, len(in))
	for _, to := range in {
		v, err := e.convert(ctx, native, hopNet, to)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Mul(safetyMargin).Floor().BigInt())
	}
	return out, nil
}

// convert turns an amount of from's smallest unit into to's smallest unit.
func (e *Estimator) convert(ctx context.Context, amount decimal.Decimal, from, to network.Network) (decimal.Decimal, error) {
	if from.CurrencySymbol == to.CurrencySymbol {
		return amount.Shift(int32(to.CurrencyDecimals) - int32(from.CurrencyDecimals)), nil
	}
	rate, err := e.ticker.Rate(ctx, from.CurrencySymbol, to.CurrencySymbol)
	if err != nil {
		return decimal.Zero, err
	}
	shift := int32(to.CurrencyDecimals) - int32(from.CurrencyDecimals)
	return amount.Mul(rate).Shift(shift), nil
}

// Watch returns the estimate of p, computing it synchronously the first time and refreshing
// it every interval afterwards.
func (e *Estimator) Watch(ctx context.Context, p *pipeline.Pipeline) Estimate {
	key := Key(p)

	e.mu.Lock()
	ent, ok := e.entries[key]
	if !ok {
		ent = &entry{estimate: Estimate{Route: p.Route(), Locked: true}}
		e.entries[key] = ent
	}
	start := !ent.running
	ent.running = true
	e.mu.Unlock()

	if start {
		e.refresh(ctx, key, p)
		e.wg.Add(1)
		go e.loop(key, p)
	}

	est, _ := e.Current(p)
	return est
}

func (e *Estimator) loop(key string, p *pipeline.Pipeline) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.refresh(e.ctx, key, p)
		}
	}
}

func (e *Estimator) refresh(ctx context.Context, key string, p *pipeline.Pipeline) {
	est, err := e.Compute(ctx, p)

	e.mu.Lock()
	defer e.mu.Unlock()
	ent := e.entries[key]
	if err != nil {
		if !ent.estimate.Locked {
			e.logger.Warn("Gas estimate locked", zap.String("pipeline", key), zap.Error(err))
		}
		ent.estimate.Locked = true
		metrics.ErrorsTotal.WithLabelValues("gas", "estimate").Inc()
		metrics.GasEstimateLocked.WithLabelValues(p.Route()).Set(1)
		return
	}
	if ent.estimate.Locked {
		e.logger.Info("Gas estimate unlocked", zap.String("pipeline", key), zap.String("total", est.Total.String()))
	}
	ent.estimate = est
	metrics.GasEstimateLocked.WithLabelValues(p.Route()).Set(0)
}

// Current returns the latest estimate of p.
func (e *Estimator) Current(p *pipeline.Pipeline) (Estimate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.entries[Key(p)]
	if !ok {
		return Estimate{}, false
	}
	return ent.estimate, true
}

// Locked reports whether submission of p must wait for a successful estimate.
func (e *Estimator) Locked(p *pipeline.Pipeline) bool {
	est, ok := e.Current(p)
	return !ok || est.Locked
}

// Stop ends every refresh loop.
func (e *Estimator) Stop() {
	e.cancel()
	e.wg.Wait()
}
