// Package withdrawal negotiates pending withdrawals: vault releases that could not be paid
// instantly and wait for liquidity, a bounty-paid liquidity provider, or a forced close.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum/contracts"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
)

const defaultPollInterval = 10 * time.Second

// Status is the lifecycle of a pending withdrawal.
type Status string

const (
	StatusOpen  Status = "open"
	StatusClose Status = "close"
	// StatusSuperseded is an open withdrawal whose negotiation moved to a newer transfer to
	// the same recipient.
	StatusSuperseded Status = "superseded"
)

// PendingWithdrawal is the view of one pending withdrawal. Bounty only reflects what the
// vault reports; PendingBounty is a submitted change not yet seen on chain.
type PendingWithdrawal struct {
	ID            *big.Int `json:"id,omitempty"`
	Owner         string   `json:"owner"`
	Recipient     string   `json:"recipient"`
	Status        Status   `json:"status"`
	Amount        *big.Int `json:"amount"`
	Bounty        *big.Int `json:"bounty"`
	PendingBounty *big.Int `json:"pendingBounty,omitempty"`
}

func (p PendingWithdrawal) clone() PendingWithdrawal {
	p.ID = copyInt(p.ID)
	p.Amount = copyInt(p.Amount)
	p.Bounty = copyInt(p.Bounty)
	p.PendingBounty = copyInt(p.PendingBounty)
	return p
}

// Vault is the EVM vault surface the negotiator reads.
type Vault interface {
	PendingWithdrawal(ctx context.Context, vault, recipient common.Address, id *big.Int) (ethereum.PendingWithdrawal, error)
	FindVaultEvents(ctx context.Context, vault common.Address, lookback uint64) ([]ethereum.VaultEvent, error)
	SubscribeVaultEvents(ctx context.Context, vault common.Address) (subscription.Subscription[ethereum.VaultEvent], error)
}

// LiquidityCheck re-reads vault figures and classifies capacity for the withdrawal amount.
type LiquidityCheck func(ctx context.Context) pipeline.Liquidity

// ShouldActivate reports whether a transfer needs the pending-withdrawal path.
func ShouldActivate(eventConfirmed bool, pendingID *big.Int, liquidity pipeline.Liquidity) bool {
	return eventConfirmed && (pendingID != nil || liquidity != pipeline.LiquiditySufficient)
}

// Config identifies the withdrawal.
type Config struct {
	Chain            network.ChainRef
	Vault            string
	Recipient        string
	Amount           *big.Int
	PayloadID        common.Hash
	PollInterval     time.Duration
	ResubscribeDelay time.Duration
}

// Negotiator tracks one pending withdrawal and performs the bounty actions on it.
type Negotiator struct {
	cfg       Config
	key       string
	vault     Vault
	liquidity LiquidityCheck
	registry  *Registry
	logger    *zap.Logger

	mu         sync.Mutex
	pw         *PendingWithdrawal
	idSeen     chan struct{}
	superseded chan struct{}
}

// NewNegotiator creates an inactive negotiator for the transfer key.
func NewNegotiator(cfg Config, key string, vault Vault, liquidity LiquidityCheck, registry *Registry, logger *zap.Logger) *Negotiator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Negotiator{
		cfg:        cfg,
		key:        key,
		vault:      vault,
		liquidity:  liquidity,
		registry:   registry,
		logger:     logger.With(zap.String("transfer", key), zap.String("vault", cfg.Vault)),
		idSeen:     make(chan struct{}),
		superseded: make(chan struct{}),
	}
}

// Activate exposes the pending withdrawal, owned by the recipient with no bounty. An older
// transfer negotiating a withdrawal for the same vault and recipient is superseded.
func (n *Negotiator) Activate(id *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pw != nil {
		return
	}
	if n.registry != nil {
		if prev, ok := n.registry.Open(n.cfg.Vault, n.cfg.Recipient, n.key, n.supersede); ok {
			n.logger.Info("Superseded older pending withdrawal", zap.String("previous", prev))
		}
	}
	n.pw = &PendingWithdrawal{
		Owner:     n.cfg.Recipient,
		Recipient: n.cfg.Recipient,
		Status:    StatusOpen,
		Amount:    copyInt(n.cfg.Amount),
		Bounty:    new(big.Int),
	}
	metrics.PendingWithdrawals.WithLabelValues(string(StatusOpen)).Inc()
	n.logger.Info("Pending withdrawal activated")
	n.setIDLocked(id)
}

func (n *Negotiator) supersede() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pw == nil || n.pw.Status != StatusOpen {
		return
	}
	n.pw.Status = StatusSuperseded
	n.pw.PendingBounty = nil
	metrics.PendingWithdrawals.WithLabelValues(string(StatusOpen)).Dec()
	metrics.PendingWithdrawals.WithLabelValues(string(StatusSuperseded)).Inc()
	close(n.superseded)
	n.logger.Info("Pending withdrawal superseded by a newer transfer")
}

// Abandon gives up the registry claim of a negotiator that will never Run.
func (n *Negotiator) Abandon() {
	n.release()
}

// Active reports whether Activate succeeded.
func (n *Negotiator) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pw != nil
}

// SetID records the on-chain id once known.
func (n *Negotiator) SetID(id *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setIDLocked(id)
}

func (n *Negotiator) setIDLocked(id *big.Int) {
	if id == nil || n.pw == nil || n.pw.ID != nil {
		return
	}
	n.pw.ID = copyInt(id)
	close(n.idSeen)
	n.logger.Info("Pending withdrawal id learnt", zap.String("id", id.String()))
}

// Snapshot returns a copy of the current view, or nil while inactive.
func (n *Negotiator) Snapshot() *PendingWithdrawal {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pw == nil {
		return nil
	}
	cp := n.pw.clone()
	return &cp
}

// Run learns the withdrawal id and polls the on-chain record until the withdrawal closes, is
// superseded, or ctx is done. onChange receives every new view.
func (n *Negotiator) Run(ctx context.Context, onChange func(PendingWithdrawal)) {
	if !n.Active() {
		return
	}
	defer n.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-n.superseded:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer func() {
		if pw := n.Snapshot(); pw != nil && pw.Status == StatusSuperseded {
			onChange(*pw)
		}
	}()

	if err := n.awaitID(ctx); err != nil {
		return
	}
	if pw := n.Snapshot(); pw != nil {
		onChange(*pw)
	}

	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()
	for {
		closed, changed, err := n.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.ErrorsTotal.WithLabelValues("withdrawal", "poll").Inc()
			n.logger.Debug("Failed to read pending withdrawal", zap.Error(err))
		} else if changed {
			if pw := n.Snapshot(); pw != nil {
				onChange(*pw)
			}
		}
		if closed {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (n *Negotiator) awaitID(ctx context.Context) error {
	select {
	case <-n.idSeen:
		return nil
	default:
	}

	vault := common.HexToAddress(n.cfg.Vault)
	matches := func(ev ethereum.VaultEvent) bool {
		return ev.Name == contracts.EventPendingWithdrawalCreated && ev.PayloadID == n.cfg.PayloadID && ev.PendingID != nil
	}
	f := subscription.AwaitFirst(ctx,
		func(ctx context.Context) (subscription.Subscription[ethereum.VaultEvent], error) {
			return n.vault.SubscribeVaultEvents(ctx, vault)
		},
		matches,
		subscription.Options[ethereum.VaultEvent]{
			Lookup: func(ctx context.Context) (ethereum.VaultEvent, bool, error) {
				events, err := n.vault.FindVaultEvents(ctx, vault, ethereum.DefaultLookbackBlocks)
				if err != nil {
					return ethereum.VaultEvent{}, false, err
				}
				for _, ev := range events {
					if matches(ev) {
						return ev, true, nil
					}
				}
				return ethereum.VaultEvent{}, false, nil
			},
			LookupInterval:   n.cfg.PollInterval,
			ResubscribeDelay: n.cfg.ResubscribeDelay,
			Logger:           n.logger,
			Name:             "pending_withdrawal_created",
		})
	defer f.Cancel()

	select {
	case <-n.idSeen:
		return nil
	case <-f.Done():
		ev, err := f.Result()
		if err != nil {
			return err
		}
		n.SetID(ev.PendingID)
		return nil
	}
}

func (n *Negotiator) poll(ctx context.Context) (closed, changed bool, err error) {
	pw := n.Snapshot()
	if pw == nil || pw.ID == nil {
		return false, false, errors.New("pending withdrawal id unknown")
	}

	rec, err := n.vault.PendingWithdrawal(ctx, common.HexToAddress(n.cfg.Vault), common.HexToAddress(n.cfg.Recipient), pw.ID)
	if err != nil {
		return false, false, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pw.Status == StatusSuperseded {
		return true, false, nil
	}
	if rec.Bounty != nil && rec.Bounty.Cmp(n.pw.Bounty) != 0 {
		n.pw.Bounty = copyInt(rec.Bounty)
		changed = true
	}
	if n.pw.PendingBounty != nil && rec.Bounty != nil && n.pw.PendingBounty.Cmp(rec.Bounty) == 0 {
		n.pw.PendingBounty = nil
		changed = true
	}
	if rec.Closed && n.pw.Status != StatusClose {
		n.pw.Status = StatusClose
		n.pw.PendingBounty = nil
		metrics.PendingWithdrawals.WithLabelValues(string(StatusOpen)).Dec()
		metrics.PendingWithdrawals.WithLabelValues(string(StatusClose)).Inc()
		n.logger.Info("Pending withdrawal closed")
		changed = true
	}
	return n.pw.Status == StatusClose, changed, nil
}

func (n *Negotiator) release() {
	if n.registry == nil {
		return
	}
	n.registry.Close(n.cfg.Vault, n.cfg.Recipient, n.key)
}

// SubmitBounty asks the vault to pay amount to whoever fills the withdrawal. Only the owner
// may set it, never above the withdrawal amount and never on a closed withdrawal. The local
// bounty changes once the vault reports it.
func (n *Negotiator) SubmitBounty(ctx context.Context, w chain.Wallet, amount *big.Int) bool {
	n.mu.Lock()
	pw := n.pw
	ok := pw != nil &&
		pw.Status == StatusOpen &&
		pw.ID != nil &&
		amount != nil && amount.Sign() >= 0 && amount.Cmp(pw.Amount) <= 0 &&
		w != nil && strings.EqualFold(w.Address(), pw.Owner) &&
		chain.OnChain(w, n.cfg.Chain)
	var id *big.Int
	if ok {
		id = copyInt(pw.ID)
	}
	n.mu.Unlock()

	if !ok {
		n.logger.Debug("Bounty refused")
		metrics.ActionsTotal.WithLabelValues("bounty", "ignored").Inc()
		return false
	}

	data, err := contracts.PackSetPendingWithdrawalBounty(id, amount)
	if err != nil {
		n.logger.Error("Failed to pack bounty call", zap.Error(err))
		metrics.ActionsTotal.WithLabelValues("bounty", "failed").Inc()
		return false
	}
	tx, err := w.SendTransaction(ctx, chain.Call{To: n.cfg.Vault, Data: data})
	if err != nil {
		n.logger.Warn("Failed to send bounty", zap.Error(err))
		metrics.ActionsTotal.WithLabelValues("bounty", "failed").Inc()
		return false
	}

	n.mu.Lock()
	n.pw.PendingBounty = copyInt(amount)
	n.mu.Unlock()

	n.logger.Info("Bounty submitted", zap.String("bounty", amount.String()), zap.String("tx", tx))
	metrics.ActionsTotal.WithLabelValues("bounty", "accepted").Inc()
	return true
}

// ForceClose pays the withdrawal out of the vault. Anyone may call it while the withdrawal
// is open and a fresh capacity check is sufficient. The status changes once the vault
// reports the record closed.
func (n *Negotiator) ForceClose(ctx context.Context, w chain.Wallet) bool {
	pw := n.Snapshot()
	if pw == nil || pw.Status != StatusOpen || pw.ID == nil || !chain.OnChain(w, n.cfg.Chain) {
		n.logger.Debug("Force close refused")
		metrics.ActionsTotal.WithLabelValues("force_close", "ignored").Inc()
		return false
	}
	if l := n.liquidity(ctx); l != pipeline.LiquiditySufficient {
		n.logger.Debug("Force close refused, vault cannot pay", zap.Stringer("liquidity", l))
		metrics.ActionsTotal.WithLabelValues("force_close", "ignored").Inc()
		return false
	}

	data, err := contracts.PackForceWithdraw(contracts.PendingWithdrawalRef{
		Recipient: common.HexToAddress(pw.Recipient),
		Id:        pw.ID,
	})
	if err != nil {
		n.logger.Error("Failed to pack force withdraw", zap.Error(err))
		metrics.ActionsTotal.WithLabelValues("force_close", "failed").Inc()
		return false
	}
	tx, err := w.SendTransaction(ctx, chain.Call{To: n.cfg.Vault, Data: data})
	if err != nil {
		n.logger.Warn("Failed to send force withdraw", zap.Error(err))
		metrics.ActionsTotal.WithLabelValues("force_close", "failed").Inc()
		return false
	}

	n.logger.Info("Force withdraw submitted", zap.String("tx", tx))
	metrics.ActionsTotal.WithLabelValues("force_close", "accepted").Inc()
	return true
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// String is used in log fields.
func (p PendingWithdrawal) String() string {
	return fmt.Sprintf("%s/%v %s amount=%s bounty=%s", p.Recipient, p.ID, p.Status, p.Amount, p.Bounty)
}
