// Package network holds the static catalogue of chains the tracker knows about.
package network

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chainsafe/bridge-tracker/pkg/config"
)

// Kind is the family of a chain.
type Kind string

const (
	KindEVM    Kind = "evm"
	KindTVM    Kind = "tvm"
	KindSolana Kind = "solana"
)

var (
	ErrUnknownNetwork  = errors.New("unknown network")
	ErrInvalidChainRef = errors.New("invalid chain reference")
)

// Valid reports whether k is one of the supported chain families.
func (k Kind) Valid() bool {
	switch k {
	case KindEVM, KindTVM, KindSolana:
		return true
	}
	return false
}

// ChainRef is the URL-safe reference of a network, "<kind>-<chainId>".
type ChainRef string

// NewChainRef builds the reference for kind and chainID.
func NewChainRef(kind Kind, chainID string) ChainRef {
	return ChainRef(string(kind) + "-" + chainID)
}

// ParseChainRef validates s and returns it as a ChainRef.
func ParseChainRef(s string) (ChainRef, error) {
	kind, chainID, ok := strings.Cut(s, "-")
	if !ok || chainID == "" || !Kind(kind).Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChainRef, s)
	}
	return ChainRef(s), nil
}

// Kind returns the chain family part of the reference.
func (r ChainRef) Kind() Kind {
	kind, _, _ := strings.Cut(string(r), "-")
	return Kind(kind)
}

// ChainID returns the chain id part of the reference.
func (r ChainRef) ChainID() string {
	_, id, _ := strings.Cut(string(r), "-")
	return id
}

func (r ChainRef) String() string { return string(r) }

// Network describes one chain. Values are immutable after the registry is built.
type Network struct {
	Kind               Kind
	ChainID            string
	Name               string
	RPCURL             string
	WSURL              string
	CurrencySymbol     string
	CurrencyDecimals   uint8
	ExplorerBaseURL    string
	ConfirmationBlocks uint64
	BlockTime          time.Duration
	PollingInterval    time.Duration
	GasLimit           uint64
	MaxGasPrice        string
}

// Ref returns the chain reference of n.
func (n Network) Ref() ChainRef { return NewChainRef(n.Kind, n.ChainID) }

// ExplorerTxURL returns a link to the transaction on the block explorer, or "" if none is configured.
func (n Network) ExplorerTxURL(id string) string {
	if n.ExplorerBaseURL == "" {
		return ""
	}
	base := strings.TrimRight(n.ExplorerBaseURL, "/")
	switch n.Kind {
	case KindTVM:
		return base + "/transactions/" + id
	default:
		return base + "/tx/" + id
	}
}

// FromConfig converts the configured network list.
func FromConfig(cfgs []config.NetworkConfig) []Network {
	out := make([]Network, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Network{
			Kind:               Kind(c.Kind),
			ChainID:            c.ChainID,
			Name:               c.Name,
			RPCURL:             c.RPCURL,
			WSURL:              c.WSURL,
			CurrencySymbol:     c.CurrencySymbol,
			CurrencyDecimals:   c.CurrencyDecimals,
			ExplorerBaseURL:    c.ExplorerBaseURL,
			ConfirmationBlocks: c.ConfirmationBlocks,
			BlockTime:          c.BlockTime,
			PollingInterval:    c.PollingInterval,
			GasLimit:           c.GasLimit,
			MaxGasPrice:        c.MaxGasPrice,
		})
	}
	return out
}

// Registry is the read-only catalogue of networks. It is safe for concurrent use.
type Registry struct {
	byRef map[ChainRef]Network
	order []ChainRef
}

// NewRegistry builds a registry, rejecting duplicate or malformed entries.
func NewRegistry(networks ...Network) (*Registry, error) {
	r := &Registry{byRef: make(map[ChainRef]Network, len(networks))}
	for _, n := range networks {
		if !n.Kind.Valid() {
			return nil, fmt.Errorf("network %q: unsupported kind %q", n.Name, n.Kind)
		}
		if n.ChainID == "" {
			return nil, fmt.Errorf("network %q: empty chain id", n.Name)
		}
		ref := n.Ref()
		if _, ok := r.byRef[ref]; ok {
			return nil, fmt.Errorf("duplicate network %s", ref)
		}
		r.byRef[ref] = n
		r.order = append(r.order, ref)
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	return r, nil
}

// Get returns the network for ref.
func (r *Registry) Get(ref ChainRef) (Network, bool) {
	n, ok := r.byRef[ref]
	return n, ok
}

// Lookup is Get returning ErrUnknownNetwork for a missing entry.
func (r *Registry) Lookup(ref ChainRef) (Network, error) {
	n, ok := r.byRef[ref]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, ref)
	}
	return n, nil
}

// ByKind returns the networks of one family ordered by reference.
func (r *Registry) ByKind(kind Kind) []Network {
	var out []Network
	for _, ref := range r.order {
		if n := r.byRef[ref]; n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// All returns every network ordered by reference.
func (r *Registry) All() []Network {
	out := make([]Network, 0, len(r.order))
	for _, ref := range r.order {
		out = append(out, r.byRef[ref])
	}
	return out
}
