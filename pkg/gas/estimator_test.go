package gas

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/assets"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
)

var (
	ethereumRef = network.NewChainRef(network.KindEVM, "1")
	everscale   = network.NewChainRef(network.KindTVM, "42")
)

type pricerFunc func(ctx context.Context) (*big.Int, error)

func (f pricerFunc) SuggestGasPrice(ctx context.Context) (*big.Int, error) { return f(ctx) }

func fixedPrice(v int64) Pricer {
	return pricerFunc(func(context.Context) (*big.Int, error) { return big.NewInt(v), nil })
}

type fakeTicker struct {
	rates map[string]string
	err   error
}

func (f *fakeTicker) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	r, ok := f.rates[from+"/"+to]
	if !ok {
		return decimal.Zero, errors.New("no rate")
	}
	return decimal.RequireFromString(r), nil
}

func testRegistry(t *testing.T) *network.Registry {
	t.Helper()
	reg, err := network.NewRegistry(
		network.Network{Kind: network.KindEVM, ChainID: "1", Name: "Ethereum", CurrencySymbol: "ETH", CurrencyDecimals: 18},
		network.Network{Kind: network.KindTVM, ChainID: "42", Name: "Everscale", CurrencySymbol: "EVER", CurrencyDecimals: 9},
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return reg
}

func creditPipeline(destinationToken string) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Source:           ethereumRef,
		Destination:      everscale,
		SourceToken:      "0x1111111111111111111111111111111111111111",
		DestinationToken: destinationToken,
		Hops:             []assets.Hop{{Chain: everscale, GasUsage: 1_000_000}},
		Variant:          pipeline.EvmToTvmCredit{CreditFactory: "0:ff", GasUsage: 1_000_000},
	}
}

func newTestEstimator(t *testing.T, pricer Pricer, ticker Ticker) *Estimator {
	t.Helper()
	e := NewEstimator(testRegistry(t), map[network.ChainRef]Pricer{everscale: pricer}, ticker, time.Hour, zap.NewNop())
	t.Cleanup(e.Stop)
	return e
}

func TestComputeConvertsHopCost(t *testing.T) {
	e := newTestEstimator(t, fixedPrice(1000), &fakeTicker{rates: map[string]string{"EVER/ETH": "0.0001"}})

	est, err := e.Compute(context.Background(), creditPipeline("0:dd"))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	// 1e9 nano-EVER * 1.2, on the destination chain
	want := big.NewInt(1_200_000_000)
	if est.Cost.Cmp(want) != 0 {
		t.Errorf("Expected cost %s, got %s", want, est.Cost)
	}
	if est.Surcharge.Sign() != 0 {
		t.Errorf("Expected no surcharge for a deployed token, got %s", est.Surcharge)
	}
	if est.Total.Cmp(want) != 0 || est.Locked {
		t.Errorf("Unexpected estimate %+v", est)
	}
	// 1e9 nano-EVER * 0.0001 ETH/EVER * 1e9 wei per nano-EVER * 1.2
	if prepaid := big.NewInt(120_000_000_000_000); est.SourceTotal.Cmp(prepaid) != 0 {
		t.Errorf("Expected source total %s, got %s", prepaid, est.SourceTotal)
	}
}

func TestComputeAddsDeploySurcharge(t *testing.T) {
	e := newTestEstimator(t, fixedPrice(1000), &fakeTicker{rates: map[string]string{"EVER/ETH": "0.0001"}})

	est, err := e.Compute(context.Background(), creditPipeline(""))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if surcharge := big.NewInt(1_000_000_000); est.Surcharge.Cmp(surcharge) != 0 {
		t.Errorf("Expected surcharge of one whole coin %s, got %s", surcharge, est.Surcharge)
	}
	if want := big.NewInt(2_200_000_000); est.Total.Cmp(want) != 0 {
		t.Errorf("Expected total %s, got %s", want, est.Total)
	}
	if prepaid := big.NewInt(220_000_000_000_000); est.SourceTotal.Cmp(prepaid) != 0 {
		t.Errorf("Expected source total %s, got %s", prepaid, est.SourceTotal)
	}
}

func TestComputeFloorsFractions(t *testing.T) {
	e := newTestEstimator(t, fixedPrice(1), &fakeTicker{rates: map[string]string{"EVER/ETH": "0.0000000000003"}})

	p := creditPipeline("0:dd")
	p.Hops = []assets.Hop{{Chain: everscale, GasUsage: 1}}
	est, err := e.Compute(context.Background(), p)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	// 1 * 1.2 nano-EVER
	if est.Cost.Int64() != 1 {
		t.Errorf("Expected the cost to floor to 1, got %s", est.Cost)
	}
	// 1 * 3e-13 * 1e9 * 1.2 = 0.00036 wei
	if est.SourceTotal.Sign() != 0 {
		t.Errorf("Expected the source total to floor to zero, got %s", est.SourceTotal)
	}
}

func TestComputeSumsTransitHops(t *testing.T) {
	bsc := network.NewChainRef(network.KindEVM, "56")
	reg, err := network.NewRegistry(
		network.Network{Kind: network.KindEVM, ChainID: "1", Name: "Ethereum", CurrencySymbol: "ETH", CurrencyDecimals: 18},
		network.Network{Kind: network.KindTVM, ChainID: "42", Name: "Everscale", CurrencySymbol: "EVER", CurrencyDecimals: 9},
		network.Network{Kind: network.KindEVM, ChainID: "56", Name: "BNB Chain", CurrencySymbol: "BNB", CurrencyDecimals: 18},
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	ticker := &fakeTicker{rates: map[string]string{
		"EVER/BNB": "0.0002",
		"EVER/ETH": "0.0001",
		"BNB/ETH":  "0.1",
	}}
	e := NewEstimator(reg, map[network.ChainRef]Pricer{
		everscale: fixedPrice(1000),
		bsc:       fixedPrice(5_000_000_000),
	}, ticker, time.Hour, zap.NewNop())
	t.Cleanup(e.Stop)

	p := &pipeline.Pipeline{
		Source:           ethereumRef,
		Destination:      bsc,
		SourceToken:      "0x1111111111111111111111111111111111111111",
		DestinationToken: "0x2222222222222222222222222222222222222222",
		Hops: []assets.Hop{
			{Chain: everscale, GasUsage: 1_000_000},
			{Chain: bsc, GasUsage: 100_000},
		},
		Variant: pipeline.EvmToEvm{Transit: everscale},
	}
	est, err := e.Compute(context.Background(), p)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	// transit: 1e9 nano-EVER * 0.0002 * 1e9 * 1.2 = 2.4e14; release: 5e14 wei * 1.2 = 6e14
	if want := big.NewInt(840_000_000_000_000); est.Cost.Cmp(want) != 0 {
		t.Errorf("Expected cost %s, got %s", want, est.Cost)
	}
	// transit: 1e9 * 0.0001 * 1e9 * 1.2 = 1.2e14; release: 5e14 * 0.1 * 1.2 = 6e13
	if want := big.NewInt(180_000_000_000_000); est.SourceTotal.Cmp(want) != 0 {
		t.Errorf("Expected source total %s, got %s", want, est.SourceTotal)
	}
}

func TestWatchLocksOnFailure(t *testing.T) {
	var fail atomic.Bool
	pricer := pricerFunc(func(context.Context) (*big.Int, error) {
		if fail.Load() {
			return nil, errors.New("rpc down")
		}
		return big.NewInt(1000), nil
	})
	e := newTestEstimator(t, pricer, &fakeTicker{rates: map[string]string{"EVER/ETH": "0.0001"}})
	p := creditPipeline("0:dd")

	if !e.Locked(p) {
		t.Error("Expected an unwatched pipeline to be locked")
	}
	est := e.Watch(context.Background(), p)
	if est.Locked || e.Locked(p) {
		t.Fatalf("Expected an unlocked estimate, got %+v", est)
	}

	fail.Store(true)
	e.refresh(context.Background(), Key(p), p)
	if !e.Locked(p) {
		t.Fatal("Expected the estimate to lock after a failed refresh")
	}
	if cur, _ := e.Current(p); cur.Total == nil || cur.Total.Sign() == 0 {
		t.Error("Expected the last figures to be kept while locked")
	}

	fail.Store(false)
	e.refresh(context.Background(), Key(p), p)
	if e.Locked(p) {
		t.Error("Expected the estimate to unlock after a successful refresh")
	}
}

func TestWatchLocksWithoutRate(t *testing.T) {
	e := newTestEstimator(t, fixedPrice(1000), &fakeTicker{err: errors.New("ticker down")})
	p := creditPipeline("0:dd")

	if est := e.Watch(context.Background(), p); !est.Locked {
		t.Errorf("Expected a locked estimate, got %+v", est)
	}
}

func TestComputeNeedsPricer(t *testing.T) {
	e := NewEstimator(testRegistry(t), nil, &fakeTicker{}, time.Hour, zap.NewNop())
	t.Cleanup(e.Stop)

	_, err := e.Compute(context.Background(), creditPipeline("0:dd"))
	if !errors.Is(err, ErrNoPricer) {
		t.Errorf("Expected ErrNoPricer, got %v", err)
	}
}
