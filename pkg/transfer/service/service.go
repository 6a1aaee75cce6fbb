// Package service exposes the transfer engine to HTTP clients.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/bridge-tracker/pkg/app/errors"
	"github.com/chainsafe/bridge-tracker/pkg/auth"
	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/gas"
	"github.com/chainsafe/bridge-tracker/pkg/identifier"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	"github.com/chainsafe/bridge-tracker/pkg/store"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// watchBuffer is how many snapshots a slow watcher may lag behind before older ones are dropped.
const watchBuffer = 16

// Action names a user action on a transfer.
type Action string

const (
	ActionPrepare    Action = "prepare"
	ActionRelease    Action = "release"
	ActionBounty     Action = "bounty"
	ActionForceClose Action = "force-close"
	ActionBroadcast  Action = "broadcast"
	ActionCancel     Action = "cancel"
)

// Ref addresses one transfer.
type Ref struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ID          string `json:"id"`
}

// ActionRequest asks for one action. Amount is the bounty in token units for release and
// bounty actions.
type ActionRequest struct {
	Ref
	Action Action `json:"action"`
	Amount string `json:"amount,omitempty"`
}

// ActionResponse reports whether the action was sent.
type ActionResponse struct {
	Accepted bool               `json:"accepted"`
	Transfer *transfer.Snapshot `json:"transfer,omitempty"`
}

// SubmitRequest registers a transfer the caller just sent.
type SubmitRequest struct {
	Ref
	Token string `json:"token"`
}

// EstimateRequest selects the route to estimate.
type EstimateRequest struct {
	Token       string
	Source      string
	Destination string
}

// HistoryRequest selects one page of persisted transfers.
type HistoryRequest struct {
	Offset int
	Limit  int
	Route  string
}

// HistoryResponse is one page of persisted transfers.
type HistoryResponse struct {
	Transfers []transfer.Snapshot `json:"transfers"`
	Total     int                 `json:"total"`
	Offset    int                 `json:"offset"`
	Limit     int                 `json:"limit"`
}

// Engine is the transfer manager surface the service drives.
type Engine interface {
	Open(ctx context.Context, source, destination, id string) (*transfer.Context, error)
	Submit(ctx context.Context, token, source, destination, id string) (*transfer.Context, error)
	Get(key string) (*transfer.Context, bool)
	Dispose(key string) bool
}

// History lists persisted transfers.
type History interface {
	List(ctx context.Context, page store.Page) ([]transfer.Snapshot, int, error)
}

// Assets reloads the token manifest.
type Assets interface {
	Refresh(ctx context.Context) error
}

// Resolver resolves the pipeline of a route.
type Resolver interface {
	Resolve(ctx context.Context, token string, source, destination network.ChainRef) (*pipeline.Pipeline, error)
}

// Estimator keeps route gas estimates fresh.
type Estimator interface {
	Watch(ctx context.Context, p *pipeline.Pipeline) gas.Estimate
}

// Networks lists the configured networks.
type Networks interface {
	All() []network.Network
}

// Service defines the interface for the tracker business logic
//
//go:generate mockery --name Service --output mocks --outpkg mocks --filename mock_service.go --with-expecter
type Service interface {
	Networks(ctx context.Context) []network.Network
	Transfer(ctx context.Context, ref Ref) (*transfer.Snapshot, error)
	History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error)
	Act(ctx context.Context, req *ActionRequest) (*ActionResponse, error)
	Dispose(ctx context.Context, ref Ref) error
	Submit(ctx context.Context, req *SubmitRequest) (*transfer.Snapshot, error)
	Estimate(ctx context.Context, req EstimateRequest) (*gas.Estimate, error)
	RefreshAssets(ctx context.Context) error
	// Watch streams the snapshots of a transfer until stop is called. The channel is never
	// closed; a snapshot with Disposed set is the last one.
	Watch(ctx context.Context, ref Ref) (updates <-chan transfer.Snapshot, stop func(), err error)
}

// Deps wires the tracker service.
type Deps struct {
	Engine    Engine
	History   History
	Assets    Assets
	Resolver  Resolver
	Estimator Estimator
	Networks  Networks
	Wallets   chain.Wallets
}

type trackerService struct {
	deps   Deps
	logger *zap.Logger
}

// NewService creates the tracker service.
func NewService(deps Deps, logger *zap.Logger) Service {
	return &trackerService{deps: deps, logger: logger}
}

func (s *trackerService) Networks(context.Context) []network.Network {
	return s.deps.Networks.All()
}

func (s *trackerService) Transfer(ctx context.Context, ref Ref) (*transfer.Snapshot, error) {
	c, err := s.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	snap := c.SnapshotFor(s.callerWallet(ctx, c))
	return &snap, nil
}

func (s *trackerService) History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	if s.deps.History == nil {
		return nil, apperrors.NotSupportedError(nil, "transfer history is not enabled")
	}
	if req.Offset < 0 || req.Limit < 0 {
		return nil, apperrors.BadRequestError(nil, "offset and limit must not be negative")
	}
	items, total, err := s.deps.History.List(ctx, store.Page{Offset: req.Offset, Limit: req.Limit, Route: req.Route})
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return &HistoryResponse{Transfers: items, Total: total, Offset: req.Offset, Limit: req.Limit}, nil
}

func (s *trackerService) Act(ctx context.Context, req *ActionRequest) (*ActionResponse, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return nil, apperrors.UnAuthorizedError(nil, "authentication required")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid amount")
	}
	if req.Action == ActionBounty && amount == nil {
		return nil, apperrors.BadRequestError(nil, "amount required")
	}

	c, err := s.open(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	w, ok := s.deps.Wallets.Wallet(c.Pipeline().Destination)
	if !ok {
		return nil, apperrors.NotSupportedError(nil, "no wallet configured for the destination network")
	}
	if !strings.EqualFold(w.Address(), caller) {
		return nil, apperrors.ForbiddenError(nil, "caller does not control the destination wallet")
	}

	var accepted bool
	switch req.Action {
	case ActionPrepare:
		accepted = c.Prepare(ctx, w)
	case ActionRelease:
		accepted = c.Release(ctx, w, amount)
	case ActionBounty:
		accepted = c.SubmitBounty(ctx, w, amount)
	case ActionForceClose:
		accepted = c.ForceClose(ctx, w)
	case ActionBroadcast:
		accepted = c.Broadcast(ctx, w)
	case ActionCancel:
		accepted = c.Cancel(ctx, w)
	default:
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown action %q", req.Action))
	}

	snap := c.SnapshotFor(w)
	return &ActionResponse{Accepted: accepted, Transfer: &snap}, nil
}

func (s *trackerService) Dispose(ctx context.Context, ref Ref) error {
	tuple, err := identifier.Parse(ref.Source, ref.Destination, ref.ID)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid transfer identifier")
	}
	if !s.deps.Engine.Dispose(tuple.Key()) {
		return apperrors.ResourceNotFoundError(nil, "transfer not tracked")
	}
	return nil
}

func (s *trackerService) Submit(ctx context.Context, req *SubmitRequest) (*transfer.Snapshot, error) {
	if req.Token == "" {
		return nil, apperrors.BadRequestError(nil, "token required")
	}
	c, err := s.deps.Engine.Submit(ctx, req.Token, req.Source, req.Destination, req.ID)
	if err != nil {
		return nil, mapEngineError(err)
	}
	snap := c.Snapshot()
	return &snap, nil
}

func (s *trackerService) Estimate(ctx context.Context, req EstimateRequest) (*gas.Estimate, error) {
	if req.Token == "" {
		return nil, apperrors.BadRequestError(nil, "token required")
	}
	src, err := network.ParseChainRef(req.Source)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid source network")
	}
	dst, err := network.ParseChainRef(req.Destination)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid destination network")
	}
	p, err := s.deps.Resolver.Resolve(ctx, req.Token, src, dst)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "route not found")
		}
		return nil, apperrors.DependencyError(err, "failed to resolve route")
	}
	est := s.deps.Estimator.Watch(ctx, p)
	return &est, nil
}

func (s *trackerService) RefreshAssets(ctx context.Context) error {
	if err := s.deps.Assets.Refresh(ctx); err != nil {
		return apperrors.DependencyError(err, "failed to refresh asset manifest")
	}
	return nil
}

func (s *trackerService) Watch(ctx context.Context, ref Ref) (<-chan transfer.Snapshot, func(), error) {
	c, err := s.open(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	updates := make(chan transfer.Snapshot, watchBuffer)
	done := make(chan struct{})
	push := func(snap transfer.Snapshot) {
		for {
			select {
			case <-done:
				return
			case updates <- snap:
				return
			default:
			}
			// drop the oldest so the latest view always gets through
			select {
			case <-updates:
			default:
			}
		}
	}

	unlisten := c.Listen(push)
	push(c.Snapshot())

	var once sync.Once
	stop := func() {
		once.Do(func() {
			unlisten()
			close(done)
		})
	}
	return updates, stop, nil
}

func (s *trackerService) open(ctx context.Context, ref Ref) (*transfer.Context, error) {
	c, err := s.deps.Engine.Open(ctx, ref.Source, ref.Destination, ref.ID)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return c, nil
}

// callerWallet returns the configured destination wallet when the authenticated caller
// controls it.
func (s *trackerService) callerWallet(ctx context.Context, c *transfer.Context) chain.Wallet {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok || s.deps.Wallets == nil {
		return nil
	}
	w, ok := s.deps.Wallets.Wallet(c.Pipeline().Destination)
	if !ok || !strings.EqualFold(w.Address(), caller) {
		return nil
	}
	return w
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, transfer.ErrSubmissionLocked):
		return apperrors.LockedError(err, "gas estimate unavailable, submission locked")
	case errors.Is(err, transfer.ErrNotFound):
		return apperrors.ResourceNotFoundError(err, "transfer not found")
	case errors.Is(err, identifier.ErrInvalid):
		return apperrors.BadRequestError(err, "invalid transfer identifier")
	}
	return apperrors.GeneralError(err)
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%q is not a non-negative integer", s)
	}
	return v, nil
}
