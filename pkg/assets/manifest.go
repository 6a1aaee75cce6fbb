// Package assets holds the token and route manifest the pipeline resolver reads.
package assets

import (
	"strings"

	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// Route kinds, one per pipeline variant.
const (
	RouteEvmToTvm       = "evm_tvm"
	RouteEvmToTvmCredit = "evm_tvm_credit"
	RouteTvmToEvm       = "tvm_evm"
	RouteEvmToEvm       = "evm_evm"
	RouteTvmToSolana    = "tvm_solana"
	RouteSolanaToTvm    = "solana_tvm"
)

// Token base values.
const (
	BaseSource      = "source"
	BaseDestination = "destination"
)

// Token is one asset on one chain.
type Token struct {
	Chain    network.ChainRef `json:"chain"`
	Address  string           `json:"address"`
	Symbol   string           `json:"symbol"`
	Name     string           `json:"name"`
	Decimals uint8            `json:"decimals"`
	Icon     string           `json:"icon,omitempty"`
	// Native is true on the chain that mints the token.
	Native bool `json:"native"`
	// Merged marks the migrated identity of a token that also has a legacy address.
	Merged bool `json:"merged,omitempty"`
}

// Contracts are the bridge contracts one hop of a route goes through.
type Contracts struct {
	Proxy         string `json:"proxy,omitempty"`
	Configuration string `json:"configuration,omitempty"`
	EventEmitter  string `json:"eventEmitter,omitempty"`
	CreditFactory string `json:"creditFactory,omitempty"`
	Program       string `json:"program,omitempty"`
	Settings      string `json:"settings,omitempty"`
}

// Hop is one destination-side execution the user prepays gas for.
type Hop struct {
	Chain    network.ChainRef `json:"chain"`
	GasUsage uint64           `json:"gasUsage"`
}

// Route is one directed token route between two chains.
type Route struct {
	Kind             string           `json:"kind"`
	Source           network.ChainRef `json:"source"`
	Destination      network.ChainRef `json:"destination"`
	SourceToken      string           `json:"sourceToken"`
	DestinationToken string           `json:"destinationToken"`
	TokenBase        string           `json:"tokenBase"`
	Merged           bool             `json:"merged,omitempty"`
	// Vault is the EVM vault on whichever side of the route is EVM.
	Vault string `json:"vault,omitempty"`
	// DestinationVault is the releasing vault of EVM to EVM routes, where Vault takes the deposit.
	DestinationVault string    `json:"destinationVault,omitempty"`
	Contracts        Contracts `json:"contracts"`
	// Transit, Incoming and Outgoing are set on EVM to EVM routes relayed through a TVM chain.
	Transit           network.ChainRef `json:"transit,omitempty"`
	Incoming          *Contracts       `json:"incoming,omitempty"`
	Outgoing          *Contracts       `json:"outgoing,omitempty"`
	FallbackAvailable bool             `json:"fallbackAvailable,omitempty"`
	Hops              []Hop            `json:"hops,omitempty"`
}

// Manifest is the full asset index.
type Manifest struct {
	Tokens []Token `json:"tokens"`
	Routes []Route `json:"routes"`
}

func tokenKey(kind network.Kind, chainID, address string) string {
	return string(kind) + "/" + chainID + "/" + strings.ToLower(address)
}

func routeKey(token string, source, destination network.ChainRef) string {
	return source.String() + "/" + destination.String() + "/" + strings.ToLower(token)
}
