// Package contracts holds the minimal bindings of the bridge vault and ERC-20 contracts.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// VaultMetaData contains the subset of the vault ABI the tracker reads and calls.
var VaultMetaData = &bind.MetaData{
	ABI: `[
{"type":"event","name":"Deposit","anonymous":false,"inputs":[
 {"indexed":true,"name":"token","type":"address"},
 {"indexed":true,"name":"sender","type":"address"},
 {"indexed":false,"name":"recipientWid","type":"int8"},
 {"indexed":false,"name":"recipientAddr","type":"uint256"},
 {"indexed":false,"name":"amount","type":"uint256"},
 {"indexed":false,"name":"expectedGas","type":"uint256"},
 {"indexed":false,"name":"payload","type":"bytes"}]},
{"type":"event","name":"Withdraw","anonymous":false,"inputs":[
 {"indexed":true,"name":"payloadId","type":"bytes32"},
 {"indexed":true,"name":"token","type":"address"},
 {"indexed":true,"name":"recipient","type":"address"},
 {"indexed":false,"name":"amount","type":"uint256"},
 {"indexed":false,"name":"fee","type":"uint256"}]},
{"type":"event","name":"PendingWithdrawalCreated","anonymous":false,"inputs":[
 {"indexed":true,"name":"recipient","type":"address"},
 {"indexed":false,"name":"id","type":"uint256"},
 {"indexed":false,"name":"token","type":"address"},
 {"indexed":false,"name":"amount","type":"uint256"},
 {"indexed":false,"name":"payloadId","type":"bytes32"}]},
{"type":"event","name":"PendingWithdrawalUpdateBounty","anonymous":false,"inputs":[
 {"indexed":true,"name":"recipient","type":"address"},
 {"indexed":false,"name":"id","type":"uint256"},
 {"indexed":false,"name":"bounty","type":"uint256"}]},
{"type":"event","name":"PendingWithdrawalForce","anonymous":false,"inputs":[
 {"indexed":true,"name":"recipient","type":"address"},
 {"indexed":false,"name":"id","type":"uint256"}]},
{"type":"function","name":"pendingWithdrawals","stateMutability":"view","inputs":[
 {"name":"user","type":"address"},{"name":"id","type":"uint256"}],"outputs":[
 {"name":"token","type":"address"},{"name":"amount","type":"uint256"},
 {"name":"bounty","type":"uint256"},{"name":"timestamp","type":"uint256"},
 {"name":"approveStatus","type":"uint8"}]},
{"type":"function","name":"withdrawalIds","stateMutability":"view","inputs":[
 {"name":"payloadId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"tokens","stateMutability":"view","inputs":[
 {"name":"token","type":"address"}],"outputs":[
 {"name":"activation","type":"uint256"},{"name":"blacklisted","type":"bool"},
 {"name":"depositFee","type":"uint256"},{"name":"withdrawFee","type":"uint256"},
 {"name":"isNative","type":"bool"},{"name":"custom","type":"address"}]},
{"type":"function","name":"withdrawalLimits","stateMutability":"view","inputs":[
 {"name":"token","type":"address"}],"outputs":[
 {"name":"undeclared","type":"uint256"},{"name":"daily","type":"uint256"},
 {"name":"enabled","type":"bool"}]},
{"type":"function","name":"saveWithdraw","stateMutability":"nonpayable","inputs":[
 {"name":"payload","type":"bytes"},{"name":"signatures","type":"bytes[]"}],"outputs":[]},
{"type":"function","name":"saveWithdrawWithBounty","stateMutability":"nonpayable","inputs":[
 {"name":"payload","type":"bytes"},{"name":"signatures","type":"bytes[]"},
 {"name":"bounty","type":"uint256"}],"outputs":[]},
{"type":"function","name":"setPendingWithdrawalBounty","stateMutability":"nonpayable","inputs":[
 {"name":"id","type":"uint256"},{"name":"bounty","type":"uint256"}],"outputs":[]},
{"type":"function","name":"forceWithdraw","stateMutability":"nonpayable","inputs":[
 {"name":"pendingWithdrawalIds","type":"tuple[]","components":[
  {"name":"recipient","type":"address"},{"name":"id","type":"uint256"}]}],"outputs":[]}
]`,
}

// ERC20MetaData contains the balance read used for vault liquidity.
var ERC20MetaData = &bind.MetaData{
	ABI: `[{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
 {"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`,
}

// Vault event names.
const (
	EventDeposit                  = "Deposit"
	EventWithdraw                 = "Withdraw"
	EventPendingWithdrawalCreated = "PendingWithdrawalCreated"
	EventPendingWithdrawalBounty  = "PendingWithdrawalUpdateBounty"
	EventPendingWithdrawalForce   = "PendingWithdrawalForce"
)

// PendingWithdrawalRef is the tuple forceWithdraw takes.
type PendingWithdrawalRef struct {
	Recipient common.Address
	Id        *big.Int //nolint:revive // field name must match the ABI component
}

// PendingWithdrawal is the on-chain pending withdrawal record.
type PendingWithdrawal struct {
	Token         common.Address
	Amount        *big.Int
	Bounty        *big.Int
	Timestamp     *big.Int
	ApproveStatus uint8
}

// TokenSettings is the per-token vault configuration.
type TokenSettings struct {
	Activation  *big.Int
	Blacklisted bool
	DepositFee  *big.Int
	WithdrawFee *big.Int
	IsNative    bool
	Custom      common.Address
}

// WithdrawalLimits is the per-token withdrawal limit configuration.
type WithdrawalLimits struct {
	Undeclared *big.Int
	Daily      *big.Int
	Enabled    bool
}

// DepositLog is a decoded Deposit event.
type DepositLog struct {
	Token         common.Address
	Sender        common.Address
	RecipientWid  int8
	RecipientAddr *big.Int
	Amount        *big.Int
	ExpectedGas   *big.Int
	Payload       []byte
	Raw           types.Log
}

// WithdrawLog is a decoded Withdraw event.
type WithdrawLog struct {
	PayloadId [32]byte //nolint:revive // field name must match the ABI input
	Token     common.Address
	Recipient common.Address
	Amount    *big.Int
	Fee       *big.Int
	Raw       types.Log
}

// PendingWithdrawalCreatedLog is a decoded PendingWithdrawalCreated event.
type PendingWithdrawalCreatedLog struct {
	Recipient common.Address
	Id        *big.Int //nolint:revive // field name must match the ABI input
	Token     common.Address
	Amount    *big.Int
	PayloadId [32]byte //nolint:revive // field name must match the ABI input
	Raw       types.Log
}

// Vault is a thin wrapper around the bound vault contract.
type Vault struct {
	address  common.Address
	abi      *abi.ABI
	contract *bind.BoundContract
}

// NewVault binds the vault at address.
func NewVault(address common.Address, backend bind.ContractBackend) (*Vault, error) {
	parsed, err := VaultMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	return &Vault{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, *parsed, backend, backend, backend),
	}, nil
}

// Address returns the vault address.
func (v *Vault) Address() common.Address { return v.address }

// ABI returns the parsed vault ABI.
func (v *Vault) ABI() *abi.ABI { return v.abi }

// PendingWithdrawals reads the pending withdrawal (user, id).
func (v *Vault) PendingWithdrawals(opts *bind.CallOpts, user common.Address, id *big.Int) (PendingWithdrawal, error) {
	var out []any
	if err := v.contract.Call(opts, &out, "pendingWithdrawals", user, id); err != nil {
		return PendingWithdrawal{}, err
	}
	return PendingWithdrawal{
		Token:         *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		Amount:        *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Bounty:        *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		Timestamp:     *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		ApproveStatus: *abi.ConvertType(out[4], new(uint8)).(*uint8),
	}, nil
}

// WithdrawalIDs reports whether the payload was already withdrawn.
func (v *Vault) WithdrawalIDs(opts *bind.CallOpts, payloadID [32]byte) (bool, error) {
	var out []any
	if err := v.contract.Call(opts, &out, "withdrawalIds", payloadID); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Tokens reads the vault settings of token.
func (v *Vault) Tokens(opts *bind.CallOpts, token common.Address) (TokenSettings, error) {
	var out []any
	if err := v.contract.Call(opts, &out, "tokens", token); err != nil {
		return TokenSettings{}, err
	}
	return TokenSettings{
		Activation:  *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Blacklisted: *abi.ConvertType(out[1], new(bool)).(*bool),
		DepositFee:  *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		WithdrawFee: *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		IsNative:    *abi.ConvertType(out[4], new(bool)).(*bool),
		Custom:      *abi.ConvertType(out[5], new(common.Address)).(*common.Address),
	}, nil
}

// WithdrawalLimits reads the withdrawal limits of token.
func (v *Vault) WithdrawalLimits(opts *bind.CallOpts, token common.Address) (WithdrawalLimits, error) {
	var out []any
	if err := v.contract.Call(opts, &out, "withdrawalLimits", token); err != nil {
		return WithdrawalLimits{}, err
	}
	return WithdrawalLimits{
		Undeclared: *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Daily:      *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Enabled:    *abi.ConvertType(out[2], new(bool)).(*bool),
	}, nil
}

// ParseDeposit decodes a Deposit log.
func (v *Vault) ParseDeposit(log types.Log) (*DepositLog, error) {
	event := new(DepositLog)
	if err := v.contract.UnpackLog(event, EventDeposit, log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParseWithdraw decodes a Withdraw log.
func (v *Vault) ParseWithdraw(log types.Log) (*WithdrawLog, error) {
	event := new(WithdrawLog)
	if err := v.contract.UnpackLog(event, EventWithdraw, log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParsePendingWithdrawalCreated decodes a PendingWithdrawalCreated log.
func (v *Vault) ParsePendingWithdrawalCreated(log types.Log) (*PendingWithdrawalCreatedLog, error) {
	event := new(PendingWithdrawalCreatedLog)
	if err := v.contract.UnpackLog(event, EventPendingWithdrawalCreated, log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// PendingWithdrawalBountyLog is a decoded PendingWithdrawalUpdateBounty event.
type PendingWithdrawalBountyLog struct {
	Recipient common.Address
	Id        *big.Int //nolint:revive // field name must match the ABI input
	Bounty    *big.Int
	Raw       types.Log
}

// ParsePendingWithdrawalBounty decodes a PendingWithdrawalUpdateBounty log.
func (v *Vault) ParsePendingWithdrawalBounty(log types.Log) (*PendingWithdrawalBountyLog, error) {
	event := new(PendingWithdrawalBountyLog)
	if err := v.contract.UnpackLog(event, EventPendingWithdrawalBounty, log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// PendingWithdrawalForceLog is a decoded PendingWithdrawalForce event.
type PendingWithdrawalForceLog struct {
	Recipient common.Address
	Id        *big.Int //nolint:revive // field name must match the ABI input
	Raw       types.Log
}

// ParsePendingWithdrawalForce decodes a PendingWithdrawalForce log.
func (v *Vault) ParsePendingWithdrawalForce(log types.Log) (*PendingWithdrawalForceLog, error) {
	event := new(PendingWithdrawalForceLog)
	if err := v.contract.UnpackLog(event, EventPendingWithdrawalForce, log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// EventName returns the vault event a log belongs to, or "" when it is not a vault event.
func (v *Vault) EventName(log types.Log) string {
	if len(log.Topics) == 0 {
		return ""
	}
	ev, err := v.abi.EventByID(log.Topics[0])
	if err != nil {
		return ""
	}
	return ev.Name
}

// EventTopic returns the topic hash of a vault event.
func (v *Vault) EventTopic(name string) common.Hash {
	return v.abi.Events[name].ID
}

// PackSaveWithdraw builds calldata for a release, with a bounty when bounty > 0.
func PackSaveWithdraw(payload []byte, signatures [][]byte, bounty *big.Int) ([]byte, error) {
	parsed, err := VaultMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	if bounty == nil || bounty.Sign() == 0 {
		return parsed.Pack("saveWithdraw", payload, signatures)
	}
	return parsed.Pack("saveWithdrawWithBounty", payload, signatures, bounty)
}

// PackSetPendingWithdrawalBounty builds calldata for a bounty change.
func PackSetPendingWithdrawalBounty(id, bounty *big.Int) ([]byte, error) {
	parsed, err := VaultMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("setPendingWithdrawalBounty", id, bounty)
}

// PackForceWithdraw builds calldata closing the given pending withdrawals.
func PackForceWithdraw(refs ...PendingWithdrawalRef) ([]byte, error) {
	parsed, err := VaultMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("forceWithdraw", refs)
}

// ERC20 wraps the balanceOf read.
type ERC20 struct {
	contract *bind.BoundContract
}

// NewERC20 binds the token at address.
func NewERC20(address common.Address, backend bind.ContractCaller) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20MetaData.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20{contract: bind.NewBoundContract(address, parsed, backend, nil, nil)}, nil
}

// BalanceOf returns the token balance of account.
func (t *ERC20) BalanceOf(opts *bind.CallOpts, account common.Address) (*big.Int, error) {
	var out []any
	if err := t.contract.Call(opts, &out, "balanceOf", account); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
