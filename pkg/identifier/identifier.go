// Package identifier validates the URL tuple a transfer is addressed by:
// (sourceChainRef, destinationChainRef, identifier).
package identifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// ErrInvalid is returned for any tuple that cannot name a transfer.
var ErrInvalid = errors.New("invalid transfer identifier")

// Type tells which on-chain object an identifier points at.
type Type string

const (
	// EVMTransaction is a source-side EVM transaction hash.
	EVMTransaction Type = "evm_tx"
	// SolanaSignature is a source-side Solana transaction signature.
	SolanaSignature Type = "solana_signature"
	// TVMTransaction is a source-side TVM transaction hash.
	TVMTransaction Type = "tvm_tx"
	// TVMAddress is a contract on the TVM side (event or credit processor contract).
	TVMAddress Type = "tvm_address"
)

const solanaSignatureLen = 64

var (
	evmHashRe    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	tvmAddressRe = regexp.MustCompile(`^(0|-1):[0-9a-fA-F]{64}$`)
	tvmHashRe    = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// Tuple is a validated transfer address.
type Tuple struct {
	Source      network.ChainRef
	Destination network.ChainRef
	ID          string
	Type        Type
}

// Key returns the canonical string form used to index open transfers.
func (t Tuple) Key() string {
	return t.Source.String() + "/" + t.Destination.String() + "/" + t.ID
}

// Parse validates the three URL segments. Any failure wraps ErrInvalid.
func Parse(source, destination, id string) (Tuple, error) {
	src, err := network.ParseChainRef(source)
	if err != nil {
		return Tuple{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	dst, err := network.ParseChainRef(destination)
	if err != nil {
		return Tuple{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if src == dst {
		return Tuple{}, fmt.Errorf("%w: source and destination are the same chain", ErrInvalid)
	}

	typ, normalized, ok := classify(src.Kind(), dst.Kind(), strings.TrimSpace(id))
	if !ok {
		return Tuple{}, fmt.Errorf("%w: %q for %s -> %s", ErrInvalid, id, src, dst)
	}

	return Tuple{Source: src, Destination: dst, ID: normalized, Type: typ}, nil
}

func classify(src, dst network.Kind, id string) (Type, string, bool) {
	switch {
	case src == network.KindEVM && IsEVMHash(id):
		return EVMTransaction, strings.ToLower(id), true
	case src == network.KindSolana && IsSolanaSignature(id):
		return SolanaSignature, id, true
	case src == network.KindTVM && tvmHashRe.MatchString(id):
		return TVMTransaction, strings.ToLower(id), true
	case (src == network.KindTVM || dst == network.KindTVM) && IsTVMAddress(id):
		return TVMAddress, strings.ToLower(id), true
	}
	return "", "", false
}

// IsEVMHash reports whether s is 0x followed by 64 hex characters.
func IsEVMHash(s string) bool {
	return evmHashRe.MatchString(s)
}

// IsTVMAddress reports whether s is a raw TVM address "<workchain>:<64 hex>".
func IsTVMAddress(s string) bool {
	return tvmAddressRe.MatchString(s)
}

// IsSolanaSignature reports whether s decodes from base58 into a 64 byte signature.
func IsSolanaSignature(s string) bool {
	if s == "" {
		return false
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(raw) == solanaSignatureLen
}
