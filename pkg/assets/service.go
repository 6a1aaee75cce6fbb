package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

const manifestCacheKey = "bridge-tracker:manifest"

var (
	// ErrNotFound is returned for unknown tokens and routes.
	ErrNotFound = errors.New("asset not found")
	// ErrNotLoaded is returned before the first successful refresh.
	ErrNotLoaded = errors.New("asset manifest not loaded")
)

// RemoteCache is a shared cache tier in front of the manifest URL.
type RemoteCache interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string, expiration time.Duration) error
}

// Service serves the asset manifest. It is eventually consistent: readers see the manifest
// of the last successful refresh.
type Service struct {
	cfg    config.AssetsConfig
	client *http.Client
	remote RemoteCache
	logger *zap.Logger

	mu       sync.RWMutex
	tokens   map[string]Token
	routes   map[string][]Route
	pairs    map[string][]Route
	loadedAt time.Time
}

// NewService creates the service. remote may be nil.
func NewService(cfg config.AssetsConfig, remote RemoteCache, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		remote: remote,
		logger: logger,
	}
}

// Start loads the manifest from the shared cache when it holds one, and from the
// manifest URL otherwise.
func (s *Service) Start(ctx context.Context) error {
	if s.remote != nil {
		raw, err := s.remote.GetString(ctx, manifestCacheKey)
		if err == nil {
			err = s.load([]byte(raw))
		}
		if err == nil {
			s.logger.Info("Asset manifest loaded from cache")
			return nil
		}
		s.logger.Debug("Asset manifest not in cache", zap.Error(err))
	}
	return s.Refresh(ctx)
}

// Refresh fetches the manifest from its URL and replaces the in-memory index.
func (s *Service) Refresh(ctx context.Context) error {
	raw, err := s.fetch(ctx)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("assets", "fetch").Inc()
		return err
	}
	if err := s.load(raw); err != nil {
		metrics.ErrorsTotal.WithLabelValues("assets", "decode").Inc()
		return err
	}

	if s.remote != nil {
		if err := s.remote.SetString(ctx, manifestCacheKey, string(raw), s.cfg.CacheTTL); err != nil {
			s.logger.Warn("Failed to store asset manifest in cache", zap.Error(err))
		}
	}

	tokens, routes := s.counts()
	s.logger.Info("Asset manifest refreshed", zap.Int("tokens", tokens), zap.Int("routes", routes))
	return nil
}

func (s *Service) fetch(ctx context.Context) ([]byte, error) {
	url := s.cfg.ManifestURL
	if path, ok := strings.CutPrefix(url, "file://"); ok {
		return os.ReadFile(path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch manifest: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *Service) load(raw []byte) error {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to decode manifest: %w", err)
	}

	tokens := make(map[string]Token, len(m.Tokens))
	for _, t := range m.Tokens {
		tokens[tokenKey(t.Chain.Kind(), t.Chain.ChainID(), t.Address)] = t
	}

	routes := make(map[string][]Route)
	pairs := make(map[string][]Route)
	for _, r := range m.Routes {
		if r.Source == "" || r.Destination == "" {
			return fmt.Errorf("route %s without source or destination", r.Kind)
		}
		// a route is found by the token of either side
		key := routeKey(r.SourceToken, r.Source, r.Destination)
		routes[key] = append(routes[key], r)
		if r.DestinationToken != "" && !strings.EqualFold(r.DestinationToken, r.SourceToken) {
			key = routeKey(r.DestinationToken, r.Source, r.Destination)
			routes[key] = append(routes[key], r)
		}
		pair := r.Source.String() + "/" + r.Destination.String()
		pairs[pair] = append(pairs[pair], r)
	}

	s.mu.Lock()
	s.tokens = tokens
	s.routes = routes
	s.pairs = pairs
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Service) counts() (tokens, routes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rs := range s.pairs {
		routes += len(rs)
	}
	return len(s.tokens), routes
}

// Get returns the token at address on (kind, chainID).
func (s *Service) Get(kind network.Kind, chainID, address string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tokens == nil {
		return Token{}, ErrNotLoaded
	}
	t, ok := s.tokens[tokenKey(kind, chainID, address)]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s on %s-%s", ErrNotFound, address, kind, chainID)
	}
	return t, nil
}

// Routes returns the routes carrying token from source to destination. token may be the
// address on either side.
func (s *Service) Routes(token string, source, destination network.ChainRef) ([]Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.routes == nil {
		return nil, ErrNotLoaded
	}
	rs := s.routes[routeKey(token, source, destination)]
	if len(rs) == 0 {
		return nil, fmt.Errorf("%w: route for %s from %s to %s", ErrNotFound, token, source, destination)
	}
	return append([]Route(nil), rs...), nil
}

// Pair returns every route from source to destination.
func (s *Service) Pair(source, destination network.ChainRef) []Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Route(nil), s.pairs[source.String()+"/"+destination.String()]...)
}

// LoadedAt returns the time of the last successful load.
func (s *Service) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
