package solana

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/chainsafe/bridge-tracker/pkg/chain"
)

const (
	// createIdempotent is the associated token program instruction that creates an account
	// unless it already exists.
	createIdempotent byte = 1
	// withdrawRequest is the bridge program instruction releasing a confirmed TVM event.
	withdrawRequest byte = 2
)

// TokenAccount returns the associated token account of owner for mint.
func TokenAccount(owner, mint string) (string, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return "", fmt.Errorf("invalid owner %q: %w", owner, err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return "", fmt.Errorf("failed to derive token account: %w", err)
	}
	return ata.String(), nil
}

// CreateTokenAccountCall builds the instruction creating the associated token account of
// owner for mint, paid by payer.
func CreateTokenAccountCall(payer, owner, mint string) (chain.Call, error) {
	ata, err := TokenAccount(owner, mint)
	if err != nil {
		return chain.Call{}, err
	}
	return chain.Call{
		To:   solana.SPLAssociatedTokenAccountProgramID.String(),
		Data: []byte{createIdempotent},
		Accounts: []chain.AccountMeta{
			{Address: payer, Signer: true, Writable: true},
			{Address: ata, Writable: true},
			{Address: owner},
			{Address: mint},
			{Address: solana.SystemProgramID.String()},
			{Address: solana.TokenProgramID.String()},
		},
	}, nil
}

// WithdrawCall builds the instruction that releases the confirmed TVM event eventAddress to
// the recipient token account.
func WithdrawCall(program, settings, payer, recipientAccount, eventAddress string) (chain.Call, error) {
	_, raw, ok := strings.Cut(eventAddress, ":")
	if !ok {
		return chain.Call{}, fmt.Errorf("invalid event address %q", eventAddress)
	}
	id, err := hex.DecodeString(raw)
	if err != nil || len(id) != 32 {
		return chain.Call{}, fmt.Errorf("invalid event address %q", eventAddress)
	}
	return chain.Call{
		To:   program,
		Data: append([]byte{withdrawRequest}, id...),
		Accounts: []chain.AccountMeta{
			{Address: payer, Signer: true, Writable: true},
			{Address: settings},
			{Address: recipientAccount, Writable: true},
		},
	}, nil
}
