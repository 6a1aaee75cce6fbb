package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DepositEvent is the vault Deposit event emitted by a source transaction.
type DepositEvent struct {
	Vault         common.Address
	Token         common.Address
	Sender        common.Address
	RecipientWid  int8
	RecipientAddr *big.Int
	Amount        *big.Int
	ExpectedGas   *big.Int
	Payload       []byte
	BlockNumber   uint64
	TxHash        common.Hash
	LogIndex      uint
}

// VaultEvent is any vault event the release stage or the withdrawal negotiator waits for.
// Fields not carried by the event are left zero.
type VaultEvent struct {
	Name        string
	Vault       common.Address
	PayloadID   common.Hash
	Recipient   common.Address
	Token       common.Address
	Amount      *big.Int
	Fee         *big.Int
	Bounty      *big.Int
	PendingID   *big.Int
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// VaultFigures are the liquidity figures of one token in one vault.
// A nil field means the value could not be read.
type VaultFigures struct {
	Balance     *big.Int
	Limit       *big.Int
	DepositFee  *big.Int
	WithdrawFee *big.Int
}

// PendingWithdrawal is the on-chain record of a pending withdrawal.
type PendingWithdrawal struct {
	ID        *big.Int
	Recipient common.Address
	Token     common.Address
	Amount    *big.Int
	Bounty    *big.Int
	// Closed is true once the record was paid out or force-closed (amount reset to zero).
	Closed bool
}
