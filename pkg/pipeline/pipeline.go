// Package pipeline resolves the directed route a transfer travels and classifies the
// release-side vault capacity.
package pipeline

import (
	"fmt"
	"math/big"

	"github.com/chainsafe/bridge-tracker/pkg/assets"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// feePrecision is the denominator of vault fees, which are expressed in basis points.
const feePrecision = 10_000

// Base names the side of a route that mints the token.
type Base string

const (
	BaseSource      Base = assets.BaseSource
	BaseDestination Base = assets.BaseDestination
)

// Liquidity is the outcome of a vault capacity check.
type Liquidity int

const (
	// LiquidityUnknown means a figure is missing and capacity cannot be confirmed.
	LiquidityUnknown Liquidity = iota
	LiquiditySufficient
	LiquidityInsufficient
)

func (l Liquidity) String() string {
	switch l {
	case LiquiditySufficient:
		return "sufficient"
	case LiquidityInsufficient:
		return "insufficient"
	}
	return "unknown"
}

// Pipeline is one resolved route. It is never mutated after construction; use WithFigures
// to obtain a copy with new vault figures.
type Pipeline struct {
	Source      network.ChainRef
	Destination network.ChainRef
	TokenBase   Base
	// IsNative is true when the token is native to the EVM or Solana side of the route.
	IsNative         bool
	IsMerged         bool
	SourceToken      string
	DestinationToken string
	// VaultAddress is the EVM vault releasing to the destination when the destination is
	// EVM, and the deposit vault otherwise.
	VaultAddress string
	// DepositVault is the EVM vault receiving the deposit on EVM to EVM routes.
	DepositVault string
	// DepositFee and WithdrawFee are in basis points of the amount. VaultBalance and
	// VaultLimit are in token base units. nil means unknown.
	DepositFee   *big.Int
	WithdrawFee  *big.Int
	VaultBalance *big.Int
	VaultLimit   *big.Int
	Hops         []assets.Hop
	Variant      Variant
}

// Route returns the route kind of the pipeline.
func (p *Pipeline) Route() string { return p.Variant.Kind() }

// ReleasesFromVault reports whether the destination payout is made by an EVM vault.
func (p *Pipeline) ReleasesFromVault() bool {
	return p.Destination.Kind() == network.KindEVM
}

// DestinationDeployed reports whether the token already exists on the destination chain.
func (p *Pipeline) DestinationDeployed() bool { return p.DestinationToken != "" }

// WithdrawFeeAmount returns the withdraw fee charged on amount, or nil when unknown.
func (p *Pipeline) WithdrawFeeAmount(amount *big.Int) *big.Int {
	if p.WithdrawFee == nil || amount == nil {
		return nil
	}
	fee := new(big.Int).Mul(amount, p.WithdrawFee)
	return fee.Quo(fee, big.NewInt(feePrecision))
}

// Liquidity classifies whether the release vault can pay amount instantly. Pipelines that
// do not release from a vault are always sufficient. A missing figure yields Unknown, which
// callers treat as "cannot confirm capacity".
func (p *Pipeline) Liquidity(amount *big.Int) Liquidity {
	if !p.ReleasesFromVault() {
		return LiquiditySufficient
	}
	fee := p.WithdrawFeeAmount(amount)
	if fee == nil || p.VaultBalance == nil {
		return LiquidityUnknown
	}

	need := new(big.Int).Add(amount, fee)
	if need.Cmp(p.VaultBalance) > 0 {
		return LiquidityInsufficient
	}
	if p.VaultLimit != nil && need.Cmp(p.VaultLimit) > 0 {
		return LiquidityInsufficient
	}
	return LiquiditySufficient
}

// WithFigures returns a copy of p carrying the figures of the release vault and of the
// deposit vault. A nil argument clears the figures it would provide.
func (p *Pipeline) WithFigures(release, deposit *ethereum.VaultFigures) *Pipeline {
	cp := *p
	cp.Hops = append([]assets.Hop(nil), p.Hops...)
	cp.VaultBalance, cp.VaultLimit, cp.WithdrawFee, cp.DepositFee = nil, nil, nil, nil
	if release != nil {
		cp.VaultBalance = copyInt(release.Balance)
		cp.VaultLimit = copyInt(release.Limit)
		cp.WithdrawFee = copyInt(release.WithdrawFee)
	}
	if deposit != nil {
		cp.DepositFee = copyInt(deposit.DepositFee)
	}
	return &cp
}

// Validate checks the native flag against the token base.
func (p *Pipeline) Validate() error {
	if p.Variant == nil {
		return fmt.Errorf("pipeline %s -> %s without variant", p.Source, p.Destination)
	}
	if p.TokenBase != BaseSource && p.TokenBase != BaseDestination {
		return fmt.Errorf("pipeline %s: invalid token base %q", p.Route(), p.TokenBase)
	}
	if p.IsNative != nativeBase(p.Source, p.Destination, p.TokenBase) {
		return fmt.Errorf("pipeline %s: native flag contradicts token base %s", p.Route(), p.TokenBase)
	}
	return nil
}

// nativeBase reports whether base names the EVM or Solana side of the route.
func nativeBase(source, destination network.ChainRef, base Base) bool {
	side := source
	if base == BaseDestination {
		side = destination
	}
	return side.Kind() != network.KindTVM
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
