package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/assets"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// ErrNotFound is returned when no route connects the token between the two chains.
var ErrNotFound = errors.New("pipeline not found")

const defaultRefreshTimeout = 10 * time.Second

// AssetSource is the manifest lookup the resolver reads routes from.
type AssetSource interface {
	Routes(token string, source, destination network.ChainRef) ([]assets.Route, error)
	Pair(source, destination network.ChainRef) []assets.Route
}

// VaultReader reads EVM vault figures.
type VaultReader interface {
	VaultFigures(ctx context.Context, ref network.ChainRef, vault, token string) (ethereum.VaultFigures, error)
}

// Hints narrow the candidate routes when a transfer is reconstructed from its identifier.
type Hints struct {
	// Token is either side's token address, when known.
	Token string
	// Credit selects the credit route over the direct one.
	Credit bool
}

// Resolver maps (token, source, destination) to a Pipeline.
type Resolver struct {
	assets         AssetSource
	vaults         VaultReader
	refreshTimeout time.Duration
	logger         *zap.Logger
}

// NewResolver creates a resolver. vaults may be nil, in which case figures stay unknown.
func NewResolver(source AssetSource, vaults VaultReader, refreshTimeout time.Duration, logger *zap.Logger) *Resolver {
	if refreshTimeout <= 0 {
		refreshTimeout = defaultRefreshTimeout
	}
	return &Resolver{
		assets:         source,
		vaults:         vaults,
		refreshTimeout: refreshTimeout,
		logger:         logger,
	}
}

// Resolve returns the pipeline moving token from source to destination, with fresh vault
// figures when they could be read.
func (r *Resolver) Resolve(ctx context.Context, token string, source, destination network.ChainRef) (*Pipeline, error) {
	return r.ResolveByIdentity(ctx, source, destination, Hints{Token: token})
}

// ResolveByIdentity resolves from whatever the source transaction revealed. Without a token
// the pair must have exactly one candidate route.
func (r *Resolver) ResolveByIdentity(ctx context.Context, source, destination network.ChainRef, hints Hints) (*Pipeline, error) {
	var candidates []assets.Route
	if hints.Token != "" {
		routes, err := r.assets.Routes(hints.Token, source, destination)
		if err != nil {
			if errors.Is(err, assets.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s from %s to %s", ErrNotFound, hints.Token, source, destination)
			}
			return nil, err
		}
		candidates = routes
	} else {
		candidates = r.assets.Pair(source, destination)
	}

	route, ok := pick(candidates, hints)
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrNotFound, source, destination)
	}

	p, err := FromRoute(route)
	if err != nil {
		return nil, err
	}
	return r.Refresh(ctx, p), nil
}

// pick prefers merged routes and honours the credit hint. Without a token, several
// remaining candidates are ambiguous.
func pick(routes []assets.Route, hints Hints) (assets.Route, bool) {
	var matching []assets.Route
	for _, rt := range routes {
		if (rt.Kind == assets.RouteEvmToTvmCredit) == hints.Credit {
			matching = append(matching, rt)
		}
	}
	if len(matching) == 0 {
		return assets.Route{}, false
	}
	for _, rt := range matching {
		if rt.Merged {
			return rt, true
		}
	}
	if hints.Token == "" && len(matching) > 1 {
		return assets.Route{}, false
	}
	return matching[0], true
}

// FromRoute builds a pipeline without vault figures.
func FromRoute(rt assets.Route) (*Pipeline, error) {
	v, err := variantOf(rt)
	if err != nil {
		return nil, err
	}

	base := Base(rt.TokenBase)
	p := &Pipeline{
		Source:           rt.Source,
		Destination:      rt.Destination,
		TokenBase:        base,
		IsNative:         nativeBase(rt.Source, rt.Destination, base),
		IsMerged:         rt.Merged,
		SourceToken:      rt.SourceToken,
		DestinationToken: rt.DestinationToken,
		VaultAddress:     rt.Vault,
		Hops:             append([]assets.Hop(nil), rt.Hops...),
		Variant:          v,
	}
	if rt.Kind == assets.RouteEvmToEvm {
		p.DepositVault = rt.Vault
		p.VaultAddress = rt.DestinationVault
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Refresh re-reads vault figures into a new pipeline. A figure that cannot be read within the
// refresh timeout is left unknown.
func (r *Resolver) Refresh(ctx context.Context, p *Pipeline) *Pipeline {
	if r.vaults == nil {
		return p.WithFigures(nil, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, r.refreshTimeout)
	defer cancel()

	var (
		g                errgroup.Group
		release, deposit *ethereum.VaultFigures
	)
	if p.ReleasesFromVault() && p.VaultAddress != "" {
		g.Go(func() error {
			release = r.figures(ctx, p.Destination, p.VaultAddress, p.DestinationToken)
			return nil
		})
	}
	if p.Source.Kind() == network.KindEVM {
		vault := p.VaultAddress
		if p.DepositVault != "" {
			vault = p.DepositVault
		}
		if vault != "" {
			g.Go(func() error {
				deposit = r.figures(ctx, p.Source, vault, p.SourceToken)
				return nil
			})
		}
	}
	_ = g.Wait()

	return p.WithFigures(release, deposit)
}

func (r *Resolver) figures(ctx context.Context, ref network.ChainRef, vault, token string) *ethereum.VaultFigures {
	f, err := r.vaults.VaultFigures(ctx, ref, vault, token)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("pipeline", "vault_figures").Inc()
		r.logger.Warn("Failed to read vault figures",
			zap.String("network", ref.String()),
			zap.String("vault", vault),
			zap.Error(err))
		return nil
	}
	return &f
}
