package identifier

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
)

const (
	evmHash    = "0x5F1C7D3E0A9B8C6D4E2F1A0B9C8D7E6F5A4B3C2D1E0F9A8B7C6D5E4F3A2B1C0D"
	tvmHash    = "5f1c7d3e0a9b8c6d4e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d"
	tvmAddress = "0:EEEE7D3E0A9B8C6D4E2F1A0B9C8D7E6F5A4B3C2D1E0F9A8B7C6D5E4F3A2B1C0D"
)

func TestParse(t *testing.T) {
	signature := base58.Encode(bytes.Repeat([]byte{7}, 64))

	tests := []struct {
		name        string
		source      string
		destination string
		id          string
		typ         Type
		normalized  string
	}{
		{"evm deposit", "evm-1", "tvm-42", evmHash, EVMTransaction, strings.ToLower(evmHash)},
		{"evm through transit", "evm-1", "evm-56", evmHash, EVMTransaction, strings.ToLower(evmHash)},
		{"tvm transaction", "tvm-42", "evm-1", tvmHash, TVMTransaction, tvmHash},
		{"tvm contract on destination", "evm-1", "tvm-42", tvmAddress, TVMAddress, strings.ToLower(tvmAddress)},
		{"tvm contract on source", "tvm-42", "solana-101", tvmAddress, TVMAddress, strings.ToLower(tvmAddress)},
		{"solana signature", "solana-101", "tvm-42", signature, SolanaSignature, signature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tuple, err := Parse(tt.source, tt.destination, "  "+tt.id+" ")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if tuple.Type != tt.typ {
				t.Errorf("expected type %s, got %s", tt.typ, tuple.Type)
			}
			if tuple.ID != tt.normalized {
				t.Errorf("expected id %q, got %q", tt.normalized, tuple.ID)
			}
			if want := tt.source + "/" + tt.destination + "/" + tt.normalized; tuple.Key() != want {
				t.Errorf("expected key %q, got %q", want, tuple.Key())
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		destination string
		id          string
	}{
		{"not an address", "evm-1", "tvm-42", "not-an-address"},
		{"same chain", "evm-1", "evm-1", evmHash},
		{"unknown source", "btc-1", "tvm-42", evmHash},
		{"bad destination", "evm-1", "tvm", evmHash},
		{"short hash", "evm-1", "tvm-42", "0x1234"},
		{"tvm hash from evm", "evm-1", "tvm-42", tvmHash},
		{"tvm address without tvm side", "evm-1", "solana-101", tvmAddress},
		{"short solana signature", "solana-101", "tvm-42", base58.Encode([]byte{1, 2, 3})},
		{"empty", "evm-1", "tvm-42", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.source, tt.destination, tt.id); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
