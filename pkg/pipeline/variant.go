package pipeline

import (
	"fmt"

	"github.com/chainsafe/bridge-tracker/pkg/assets"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// Variant carries the contracts one pipeline kind needs. The concrete types are EvmToTvm,
// EvmToTvmCredit, TvmToEvm, EvmToEvm, TvmToSolana and SolanaToTvm.
type Variant interface {
	Kind() string
	variant()
}

// EvmToTvm is a direct vault deposit relayed to a TVM proxy.
type EvmToTvm struct {
	Configuration string
	Proxy         string
}

// EvmToTvmCredit is a vault deposit whose TVM side is executed by a credit processor that
// prepays destination gas through a swap.
type EvmToTvmCredit struct {
	CreditFactory     string
	Configuration     string
	FallbackAvailable bool
	GasUsage          uint64
}

// TvmToEvm is a TVM proxy burn or lock released by an EVM vault.
type TvmToEvm struct {
	Proxy         string
	Configuration string
	EventEmitter  string
}

// EvmToEvm is relayed through a TVM transit chain: Incoming lands on the transit chain,
// Outgoing leaves it.
type EvmToEvm struct {
	Transit  network.ChainRef
	Incoming EvmToTvm
	Outgoing TvmToEvm
}

// TvmToSolana is a TVM proxy transfer released by a Solana program.
type TvmToSolana struct {
	Proxy    string
	Program  string
	Settings string
}

// SolanaToTvm is a Solana program deposit relayed to a TVM configuration and paid out by a
// TVM proxy.
type SolanaToTvm struct {
	Program       string
	Configuration string
	Proxy         string
}

func (EvmToTvm) Kind() string       { return assets.RouteEvmToTvm }
func (EvmToTvmCredit) Kind() string { return assets.RouteEvmToTvmCredit }
func (TvmToEvm) Kind() string       { return assets.RouteTvmToEvm }
func (EvmToEvm) Kind() string       { return assets.RouteEvmToEvm }
func (TvmToSolana) Kind() string    { return assets.RouteTvmToSolana }
func (SolanaToTvm) Kind() string    { return assets.RouteSolanaToTvm }

func (EvmToTvm) variant()       {}
func (EvmToTvmCredit) variant() {}
func (TvmToEvm) variant()       {}
func (EvmToEvm) variant()       {}
func (TvmToSolana) variant()    {}
func (SolanaToTvm) variant()    {}

// variantOf builds the variant of a manifest route and checks the route's chain kinds.
func variantOf(r assets.Route) (Variant, error) {
	src, dst := r.Source.Kind(), r.Destination.Kind()
	c := r.Contracts

	expect := func(s, d network.Kind) error {
		if src != s || dst != d {
			return fmt.Errorf("route %s cannot run from %s to %s", r.Kind, src, dst)
		}
		return nil
	}

	switch r.Kind {
	case assets.RouteEvmToTvm:
		return EvmToTvm{Configuration: c.Configuration, Proxy: c.Proxy}, expect(network.KindEVM, network.KindTVM)
	case assets.RouteEvmToTvmCredit:
		var gas uint64
		if len(r.Hops) > 0 {
			gas = r.Hops[0].GasUsage
		}
		return EvmToTvmCredit{
			CreditFactory:     c.CreditFactory,
			Configuration:     c.Configuration,
			FallbackAvailable: r.FallbackAvailable,
			GasUsage:          gas,
		}, expect(network.KindEVM, network.KindTVM)
	case assets.RouteTvmToEvm:
		return TvmToEvm{Proxy: c.Proxy, Configuration: c.Configuration, EventEmitter: c.EventEmitter}, expect(network.KindTVM, network.KindEVM)
	case assets.RouteEvmToEvm:
		if r.Incoming == nil || r.Outgoing == nil || r.Transit.Kind() != network.KindTVM {
			return nil, fmt.Errorf("route %s needs a TVM transit with incoming and outgoing contracts", r.Kind)
		}
		return EvmToEvm{
			Transit:  r.Transit,
			Incoming: EvmToTvm{Configuration: r.Incoming.Configuration, Proxy: r.Incoming.Proxy},
			Outgoing: TvmToEvm{Proxy: r.Outgoing.Proxy, Configuration: r.Outgoing.Configuration, EventEmitter: r.Outgoing.EventEmitter},
		}, expect(network.KindEVM, network.KindEVM)
	case assets.RouteTvmToSolana:
		return TvmToSolana{Proxy: c.Proxy, Program: c.Program, Settings: c.Settings}, expect(network.KindTVM, network.KindSolana)
	case assets.RouteSolanaToTvm:
		return SolanaToTvm{Program: c.Program, Configuration: c.Configuration, Proxy: c.Proxy}, expect(network.KindSolana, network.KindTVM)
	}
	return nil, fmt.Errorf("unknown route kind %q", r.Kind)
}
