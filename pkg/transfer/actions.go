package transfer

import (
	"context"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum/contracts"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	sol "github.com/chainsafe/bridge-tracker/pkg/solana"
)

// Prepare creates the recipient token account of a transfer into Solana.
func (c *Context) Prepare(ctx context.Context, w chain.Wallet) bool {
	p := c.Pipeline()
	if _, ok := p.Variant.(pipeline.TvmToSolana); !ok {
		return c.refuse("prepare", "route has no prepare action")
	}
	st := c.stageState(StagePrepare)
	if st.Status != StatusPending || st.IsDeployed == nil || *st.IsDeployed || st.IsDeploying {
		return c.refuse("prepare", "token account not missing")
	}
	if !chain.OnChain(w, p.Destination) || p.DestinationToken == "" {
		return c.refuse("prepare", "wallet not on destination network")
	}
	recipient := c.detailsCopy().Recipient
	if recipient == "" {
		return c.refuse("prepare", "recipient unknown")
	}

	call, err := sol.CreateTokenAccountCall(w.Address(), recipient, p.DestinationToken)
	if err != nil {
		return c.fail("prepare", err)
	}
	if !c.send(ctx, w, "prepare", call) {
		return false
	}
	c.emitter(StagePrepare)(Observation{Status: StatusPending, IsDeploying: boolPtr(true)})
	return true
}

// Release submits the destination-side release. Vault releases go through the pending
// withdrawal path whenever the vault cannot pay instantly, and only the recipient may attach
// a non-zero bounty. Credit transfers send the processor fallback release.
func (c *Context) Release(ctx context.Context, w chain.Wallet, bounty *big.Int) bool {
	p := c.Pipeline()
	if c.credit != nil {
		if c.stageState(StageEvent).Status != StatusConfirmed {
			return c.refuse("release", "event not confirmed")
		}
		return c.credit.Release(ctx, w)
	}

	st := c.stageState(StageRelease)
	if st.Status != StatusPending || st.IsDeploying {
		return c.refuse("release", "release stage not pending")
	}
	if !chain.OnChain(w, p.Destination) {
		return c.refuse("release", "wallet not on destination network")
	}

	switch v := p.Variant.(type) {
	case pipeline.TvmToEvm, pipeline.EvmToEvm:
		return c.vaultWithdraw(ctx, w, bounty)
	case pipeline.TvmToSolana:
		d := c.detailsCopy()
		account, err := c.recipientAccount()
		if err != nil || d.EventAddress == "" {
			return c.refuse("release", "recipient or event unknown")
		}
		call, err := sol.WithdrawCall(v.Program, v.Settings, w.Address(), account, d.EventAddress)
		if err != nil {
			return c.fail("release", err)
		}
		return c.sendRelease(ctx, w, call)
	}
	return c.refuse("release", "route releases automatically")
}

func (c *Context) vaultWithdraw(ctx context.Context, w chain.Wallet, bounty *big.Int) bool {
	c.mu.Lock()
	payload, sigs := c.details.payload, c.details.signatures
	recipient := c.details.Recipient
	vault := c.pipeline.VaultAddress
	c.mu.Unlock()
	if payload == nil {
		return c.refuse("release", "event payload unknown")
	}
	if bounty == nil {
		bounty = new(big.Int)
	}
	if bounty.Sign() < 0 {
		return c.refuse("release", "negative bounty")
	}

	liquidity := c.liquidity(ctx)
	if liquidity == pipeline.LiquiditySufficient {
		bounty = new(big.Int)
	} else if bounty.Sign() > 0 && !strings.EqualFold(w.Address(), recipient) {
		return c.refuse("release", "only the recipient may set a bounty")
	}

	data, err := contracts.PackSaveWithdraw(payload, sigs, bounty)
	if err != nil {
		return c.fail("release", err)
	}
	if !c.sendRelease(ctx, w, chain.Call{To: vault, Data: data}) {
		return false
	}
	if liquidity != pipeline.LiquiditySufficient {
		c.startNegotiator(c.detailsCopy().PendingID)
	}
	return true
}

func (c *Context) sendRelease(ctx context.Context, w chain.Wallet, call chain.Call) bool {
	if !c.send(ctx, w, "release", call) {
		return false
	}
	c.emitter(StageRelease)(Observation{Status: StatusPending, IsDeploying: boolPtr(true)})
	return true
}

// SubmitBounty changes the bounty of the pending withdrawal.
func (c *Context) SubmitBounty(ctx context.Context, w chain.Wallet, amount *big.Int) bool {
	n := c.currentNegotiator()
	if n == nil {
		return c.refuse("bounty", "no pending withdrawal")
	}
	return n.SubmitBounty(ctx, w, amount)
}

// ForceClose pays the pending withdrawal out once the vault has the liquidity.
func (c *Context) ForceClose(ctx context.Context, w chain.Wallet) bool {
	n := c.currentNegotiator()
	if n == nil {
		return c.refuse("force_close", "no pending withdrawal")
	}
	return n.ForceClose(ctx, w)
}

// Broadcast asks the credit factory to deploy the processor of an outdated transfer.
func (c *Context) Broadcast(ctx context.Context, w chain.Wallet) bool {
	if c.credit == nil {
		return c.refuse("broadcast", "not a credit transfer")
	}
	return c.credit.Broadcast(ctx, w)
}

// Cancel stops an expired or failed credit processor.
func (c *Context) Cancel(ctx context.Context, w chain.Wallet) bool {
	if c.credit == nil {
		return c.refuse("cancel", "not a credit transfer")
	}
	return c.credit.Cancel(ctx, w)
}

func (c *Context) currentNegotiator() interface {
	SubmitBounty(ctx context.Context, w chain.Wallet, amount *big.Int) bool
	ForceClose(ctx context.Context, w chain.Wallet) bool
} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.negotiator == nil {
		return nil
	}
	return c.negotiator
}

func (c *Context) send(ctx context.Context, w chain.Wallet, action string, call chain.Call) bool {
	if c.Disposed() {
		return c.refuse(action, "transfer disposed")
	}
	tx, err := w.SendTransaction(ctx, call)
	if err != nil {
		return c.fail(action, err)
	}
	c.logger.Info("Action sent", zap.String("action", action), zap.String("tx", tx))
	metrics.ActionsTotal.WithLabelValues(action, "accepted").Inc()
	return true
}

func (c *Context) refuse(action, reason string) bool {
	c.logger.Debug("Action refused", zap.String("action", action), zap.String("reason", reason))
	metrics.ActionsTotal.WithLabelValues(action, "ignored").Inc()
	return false
}

func (c *Context) fail(action string, err error) bool {
	c.logger.Warn("Action failed", zap.String("action", action), zap.Error(err))
	metrics.ActionsTotal.WithLabelValues(action, "failed").Inc()
	return false
}
