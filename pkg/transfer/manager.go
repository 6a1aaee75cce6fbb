package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/assets"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/gas"
	"github.com/chainsafe/bridge-tracker/pkg/identifier"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	"github.com/chainsafe/bridge-tracker/pkg/tvm"
	"github.com/chainsafe/bridge-tracker/pkg/withdrawal"
)

const (
	saveTimeout = 5 * time.Second

	originOpen    = "open"
	originSubmit  = "submit"
	originRestore = "restore"
)

var (
	// ErrNotFound is returned for identifiers that do not name a trackable transfer.
	ErrNotFound = errors.New("transfer not found")
	// ErrSubmissionLocked is returned while the gas estimate of the route is unavailable.
	ErrSubmissionLocked = errors.New("submission locked until the gas estimate is available")
)

// Store persists transfer snapshots.
type Store interface {
	Save(ctx context.Context, s Snapshot) error
	ListOpen(ctx context.Context, limit int) ([]Snapshot, error)
}

// Estimator keeps route gas estimates fresh.
type Estimator interface {
	Watch(ctx context.Context, p *pipeline.Pipeline) gas.Estimate
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Clients   Clients
	Networks  Networks
	Resolver  Resolver
	Registry  *withdrawal.Registry
	Store     Store
	Estimator Estimator

	PollInterval       time.Duration
	ResubscribeDelay   time.Duration
	TerminalDisposeTTL time.Duration
	RestoreLimit       int

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewManagerConfig fills the engine tunables from configuration.
func NewManagerConfig(cfg config.EngineConfig) ManagerConfig {
	return ManagerConfig{
		ResubscribeDelay:   cfg.ResubscribeDelay,
		TerminalDisposeTTL: cfg.TerminalDisposeTTL,
		RestoreLimit:       cfg.RestoreLimit,
	}
}

// Manager owns the tracked transfers, one Context per transfer key.
type Manager struct {
	cfg    ManagerConfig
	env    *env
	logger *zap.Logger
	group  singleflight.Group

	mu       sync.Mutex
	contexts map[string]*Context
	timers   map[string]*time.Timer
	closed   bool
}

// NewManager creates a manager.
func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Registry == nil {
		cfg.Registry = withdrawal.NewRegistry()
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		contexts: make(map[string]*Context),
		timers:   make(map[string]*time.Timer),
	}
	m.env = &env{
		clients:          cfg.Clients,
		networks:         cfg.Networks,
		resolver:         cfg.Resolver,
		registry:         cfg.Registry,
		pollInterval:     cfg.PollInterval,
		resubscribeDelay: cfg.ResubscribeDelay,
		now:              cfg.Now,
		onChange:         m.onChange,
		logger:           logger,
	}
	return m
}

// Open returns the context tracking the transfer, creating it on first use. The pipeline is
// resolved from whatever the source transaction reveals.
func (m *Manager) Open(ctx context.Context, source, destination, id string) (*Context, error) {
	tuple, err := identifier.Parse(source, destination, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return m.getOrTrack(tuple, originOpen, func() (*pipeline.Pipeline, error) {
		if err := m.checkNetworks(tuple); err != nil {
			return nil, err
		}
		return m.resolve(ctx, tuple.Source, tuple.Destination, m.inspect(ctx, tuple))
	})
}

// Submit starts tracking a transfer the caller just sent for token. It is refused while the
// route's gas estimate is locked.
func (m *Manager) Submit(ctx context.Context, token, source, destination, id string) (*Context, error) {
	tuple, err := identifier.Parse(source, destination, id)
	if err != nil {
		return nil, err
	}
	if err := m.checkNetworks(tuple); err != nil {
		return nil, err
	}
	p, err := m.resolve(ctx, tuple.Source, tuple.Destination, pipeline.Hints{Token: token})
	if err != nil {
		return nil, err
	}
	if m.cfg.Estimator != nil && m.cfg.Estimator.Watch(ctx, p).Locked {
		return nil, ErrSubmissionLocked
	}
	return m.getOrTrack(tuple, originSubmit, func() (*pipeline.Pipeline, error) { return p, nil })
}

// Get returns a tracked transfer by key.
func (m *Manager) Get(key string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[key]
	return c, ok
}

// List returns the snapshots of every tracked transfer, ordered by key.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	contexts := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		contexts = append(contexts, c)
	}
	m.mu.Unlock()

	sort.Slice(contexts, func(i, j int) bool { return contexts[i].Key() < contexts[j].Key() })
	out := make([]Snapshot, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, c.Snapshot())
	}
	return out
}

// Dispose stops tracking the transfer. It reports whether the key was tracked.
func (m *Manager) Dispose(key string) bool {
	m.mu.Lock()
	c, ok := m.contexts[key]
	delete(m.contexts, key)
	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	c.Dispose()
	metrics.ActiveTransfers.Dec()
	return true
}

// Restore reopens the persisted transfers that had not finished. Transfers that cannot be
// resolved anymore are logged and skipped.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.cfg.Store == nil {
		return 0, nil
	}
	snaps, err := m.cfg.Store.ListOpen(ctx, m.cfg.RestoreLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list open transfers: %w", err)
	}

	restored := 0
	for _, s := range snaps {
		tuple, err := identifier.Parse(string(s.Source), string(s.Destination), s.ID)
		if err != nil {
			m.logger.Warn("Skipping unparsable persisted transfer", zap.String("id", s.ID), zap.Error(err))
			continue
		}
		snap := s
		_, err = m.getOrTrack(tuple, originRestore, func() (*pipeline.Pipeline, error) {
			return m.resolve(ctx, tuple.Source, tuple.Destination, pipeline.Hints{
				Token:  s.Details.Token,
				Credit: s.Route == assets.RouteEvmToTvmCredit,
			})
		}, &snap)
		if err != nil {
			m.logger.Warn("Failed to restore transfer", zap.String("transfer", tuple.Key()), zap.Error(err))
			continue
		}
		restored++
	}
	m.logger.Info("Transfers restored", zap.Int("count", restored), zap.Int("persisted", len(snaps)))
	return restored, nil
}

// Close disposes every transfer. Later calls to Open fail.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	keys := make([]string, 0, len(m.contexts))
	for key := range m.contexts {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, key := range keys {
		g.Go(func() error {
			m.Dispose(key)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) getOrTrack(tuple identifier.Tuple, origin string, resolve func() (*pipeline.Pipeline, error), restored ...*Snapshot) (*Context, error) {
	key := tuple.Key()
	if c, ok := m.Get(key); ok {
		return c, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if c, ok := m.Get(key); ok {
			return c, nil
		}
		p, err := resolve()
		if err != nil {
			return nil, err
		}
		return m.track(tuple, p, origin, restored...)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

func (m *Manager) track(tuple identifier.Tuple, p *pipeline.Pipeline, origin string, restored ...*Snapshot) (*Context, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, errors.New("transfer manager closed")
	}

	c := newContext(tuple, p, m.env)
	if len(restored) > 0 && restored[0] != nil {
		s := restored[0]
		c.restore(map[Stage]StageState{
			StagePrepare:  s.Prepare,
			StageTransfer: s.Transfer,
			StageEvent:    s.Event,
			StageRelease:  s.Release,
		}, s.Details)
	}

	m.mu.Lock()
	m.contexts[c.Key()] = c
	m.mu.Unlock()

	if err := c.start(); err != nil {
		m.mu.Lock()
		delete(m.contexts, c.Key())
		m.mu.Unlock()
		c.Dispose()
		return nil, err
	}

	metrics.ActiveTransfers.Inc()
	metrics.TransfersOpened.WithLabelValues(p.Route(), origin).Inc()
	m.logger.Info("Tracking transfer",
		zap.String("transfer", c.Key()),
		zap.String("route", p.Route()),
		zap.String("origin", origin))
	return c, nil
}

func (m *Manager) checkNetworks(tuple identifier.Tuple) error {
	for _, ref := range []network.ChainRef{tuple.Source, tuple.Destination} {
		if _, ok := m.cfg.Networks.Get(ref); !ok {
			return fmt.Errorf("%w: %w %s", ErrNotFound, network.ErrUnknownNetwork, ref)
		}
	}
	return nil
}

func (m *Manager) resolve(ctx context.Context, source, destination network.ChainRef, hints pipeline.Hints) (*pipeline.Pipeline, error) {
	p, err := m.cfg.Resolver.ResolveByIdentity(ctx, source, destination, hints)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	return p, nil
}

// inspect reads the source transaction for the token and route hints. Failures leave the
// hints empty; the resolver then needs a pair with a single route.
func (m *Manager) inspect(ctx context.Context, tuple identifier.Tuple) pipeline.Hints {
	var hints pipeline.Hints
	switch tuple.Type {
	case identifier.EVMTransaction:
		client, err := m.cfg.Clients.evm(tuple.Source)
		if err != nil {
			return hints
		}
		dep, _, err := client.Deposit(ctx, common.HexToHash(tuple.ID))
		if err != nil || dep == nil {
			m.logger.Debug("No deposit found for hints", zap.String("transfer", tuple.Key()), zap.Error(err))
			return hints
		}
		hints.Token = dep.Token.Hex()
		hints.Credit = dep.ExpectedGas != nil && dep.ExpectedGas.Sign() > 0

	case identifier.TVMTransaction:
		client, err := m.cfg.Clients.tvm(tuple.Source)
		if err != nil {
			return hints
		}
		tx, err := client.Transaction(ctx, tuple.ID)
		if err != nil || tx == nil {
			m.logger.Debug("No source transaction found for hints", zap.String("transfer", tuple.Key()), zap.Error(err))
			return hints
		}
		if ev, ok := tx.Event(tvm.EventOutgoingTransfer); ok {
			hints.Token = ev.String("token")
		}
	}
	return hints
}

// onChange persists every change and schedules the disposal of finished transfers.
func (m *Manager) onChange(c *Context) {
	c.persistMu.Lock()
	s := c.Snapshot()
	if m.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := m.cfg.Store.Save(ctx, s); err != nil {
			metrics.ErrorsTotal.WithLabelValues("store", "save").Inc()
			m.logger.Warn("Failed to persist transfer", zap.String("transfer", c.Key()), zap.Error(err))
		}
		cancel()
	}
	c.persistMu.Unlock()

	if !s.Terminal() || m.cfg.TerminalDisposeTTL <= 0 {
		return
	}
	key := c.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contexts[key] != c {
		return
	}
	if _, ok := m.timers[key]; ok {
		return
	}
	m.timers[key] = time.AfterFunc(m.cfg.TerminalDisposeTTL, func() {
		m.logger.Debug("Disposing finished transfer", zap.String("transfer", key))
		m.Dispose(key)
	})
}
