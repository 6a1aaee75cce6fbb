// Package tracker implements app.Runner for the transfer tracker process.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/bridge-tracker/pkg/app/http"
	"github.com/chainsafe/bridge-tracker/pkg/assets"
	"github.com/chainsafe/bridge-tracker/pkg/auth"
	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/gas"
	"github.com/chainsafe/bridge-tracker/pkg/keys"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pgutil"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	"github.com/chainsafe/bridge-tracker/pkg/price"
	sol "github.com/chainsafe/bridge-tracker/pkg/solana"
	"github.com/chainsafe/bridge-tracker/pkg/store"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
	"github.com/chainsafe/bridge-tracker/pkg/transfer/service"
	"github.com/chainsafe/bridge-tracker/pkg/tvm"
)

// Server holds cfg to init the tracker.
type Server struct {
	cfg   *config.Config
	ready atomic.Bool
}

// NewServer initializes a new tracker server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// chains are the connected clients of every configured network.
type chains struct {
	evm    ethereum.Pool
	tvm    map[network.ChainRef]*tvm.Client
	solana map[network.ChainRef]*sol.Client
	stream *tvm.Stream
}

func (c *chains) close() {
	c.evm.Close()
	for _, cl := range c.tvm {
		cl.Close()
	}
	for _, cl := range c.solana {
		cl.Close()
	}
	if c.stream != nil {
		c.stream.Close()
	}
}

func (c *chains) clients() transfer.Clients {
	out := transfer.Clients{
		EVM:    make(map[network.ChainRef]transfer.EVMChain, len(c.evm)),
		TVM:    make(map[network.ChainRef]transfer.TVMChain, len(c.tvm)),
		Solana: make(map[network.ChainRef]transfer.SolanaChain, len(c.solana)),
	}
	for ref, cl := range c.evm {
		out.EVM[ref] = cl
	}
	for ref, cl := range c.tvm {
		out.TVM[ref] = cl
	}
	for ref, cl := range c.solana {
		out.Solana[ref] = cl
	}
	return out
}

func (c *chains) pricers() map[network.ChainRef]gas.Pricer {
	out := make(map[network.ChainRef]gas.Pricer, len(c.evm)+len(c.tvm)+len(c.solana))
	for ref, cl := range c.evm {
		out[ref] = cl
	}
	for ref, cl := range c.tvm {
		out[ref] = cl
	}
	for ref, cl := range c.solana {
		out[ref] = cl
	}
	return out
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("tracker config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bridge tracker",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("networks", len(cfg.Networks)),
	)

	registry, err := network.NewRegistry(network.FromConfig(cfg.Networks)...)
	if err != nil {
		return fmt.Errorf("network registry: %w", err)
	}

	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)
	transfers := store.NewStore(db)

	assetService, closeCache, err := s.openAssets(ctx, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	conns, err := s.openChains(ctx, registry, logger)
	if err != nil {
		return err
	}
	defer conns.close()

	wallets, err := s.openWallets(ctx, conns, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, w := range wallets {
			w.Disconnect()
		}
	}()

	ticker, err := price.NewTicker(cfg.Price, logger)
	if err != nil {
		return fmt.Errorf("price ticker: %w", err)
	}
	estimator := gas.NewEstimator(registry, conns.pricers(), ticker, cfg.Engine.EstimateInterval, logger)
	defer estimator.Stop()

	resolver := pipeline.NewResolver(assetService, conns.evm, cfg.Engine.RefreshTimeout, logger)

	mcfg := transfer.NewManagerConfig(cfg.Engine)
	mcfg.Clients = conns.clients()
	mcfg.Networks = registry
	mcfg.Resolver = resolver
	mcfg.Store = transfers
	mcfg.Estimator = estimator
	manager := transfer.NewManager(mcfg, logger)
	defer manager.Close()

	restored, err := manager.Restore(ctx)
	if err != nil {
		logger.Warn("Failed to restore open transfers", zap.Error(err))
	} else {
		logger.Info("Open transfers restored", zap.Int("count", restored))
	}
	s.ready.Store(true)

	svc := service.NewLog(service.NewService(service.Deps{
		Engine:    manager,
		History:   transfers,
		Assets:    assetService,
		Resolver:  resolver,
		Estimator: estimator,
		Networks:  registry,
		Wallets:   wallets,
	}, logger), logger)

	authn := auth.NewAuthenticator(auth.NewJWTValidator(cfg.Auth.JWKSURL, cfg.Auth.Issuer), logger)
	router := s.setupRouter(svc, authn, logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server, cfg.Shutdown.Timeout)
}

func (s *Server) openAssets(ctx context.Context, logger *zap.Logger) (*assets.Service, func(), error) {
	var (
		remote assets.RemoteCache
		closer = func() {}
	)
	if s.cfg.Redis.Enabled {
		cache, err := assets.NewRedisCache(ctx, s.cfg.Redis.Address)
		if err != nil {
			return nil, nil, err
		}
		remote = cache
		closer = func() { _ = cache.Close() }
		logger.Info("Using redis manifest cache", zap.String("address", s.cfg.Redis.Address))
	}

	svc := assets.NewService(s.cfg.Assets, remote, logger)
	if err := svc.Start(ctx); err != nil {
		closer()
		return nil, nil, fmt.Errorf("load asset manifest: %w", err)
	}
	return svc, closer, nil
}

func (s *Server) openChains(ctx context.Context, registry *network.Registry, logger *zap.Logger) (*chains, error) {
	c := &chains{
		evm:    make(ethereum.Pool),
		tvm:    make(map[network.ChainRef]*tvm.Client),
		solana: make(map[network.ChainRef]*sol.Client),
	}

	if len(registry.ByKind(network.KindTVM)) > 0 {
		stream, err := tvm.NewStream(s.cfg.NATS, logger)
		if err != nil {
			return nil, fmt.Errorf("tvm event stream: %w", err)
		}
		c.stream = stream
	}

	for _, n := range registry.All() {
		var err error
		switch n.Kind {
		case network.KindEVM:
			var cl *ethereum.Client
			if cl, err = ethereum.NewClient(ctx, n, logger); err == nil {
				c.evm[n.Ref()] = cl
			}
		case network.KindTVM:
			var cl *tvm.Client
			if cl, err = tvm.NewClient(ctx, n, s.cfg.TVM, c.stream, logger); err == nil {
				c.tvm[n.Ref()] = cl
			}
		case network.KindSolana:
			var cl *sol.Client
			if cl, err = sol.NewClient(ctx, n, logger); err == nil {
				c.solana[n.Ref()] = cl
			}
		}
		if err != nil {
			c.close()
			return nil, fmt.Errorf("connect %s: %w", n.Ref(), err)
		}
		logger.Info("Connected to network", zap.String("network", n.Ref().String()), zap.String("rpc_url", n.RPCURL))
	}
	return c, nil
}

func (s *Server) openWallets(ctx context.Context, c *chains, logger *zap.Logger) (chain.WalletSet, error) {
	set := make(chain.WalletSet, len(s.cfg.Wallets.Accounts))
	for _, wc := range s.cfg.Wallets.Accounts {
		w, err := s.openWallet(c, wc, logger)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", wc.Network, err)
		}
		if err := w.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect wallet %s: %w", wc.Network, err)
		}
		set[w.Chain()] = w
		logger.Info("Wallet ready", zap.String("network", wc.Network), zap.String("address", w.Address()))
	}
	return set, nil
}

func (s *Server) openWallet(c *chains, wc config.WalletConfig, logger *zap.Logger) (chain.Wallet, error) {
	ref, err := network.ParseChainRef(wc.Network)
	if err != nil {
		return nil, err
	}
	raw, err := keys.Load(wc, s.cfg.Wallets)
	if err != nil {
		return nil, err
	}

	switch ref.Kind() {
	case network.KindEVM:
		cl, err := c.evm.Client(ref)
		if err != nil {
			return nil, err
		}
		key, err := keys.ECDSA(raw)
		if err != nil {
			return nil, err
		}
		return ethereum.NewKeyedWallet(cl, key, logger), nil
	case network.KindTVM:
		cl, ok := c.tvm[ref]
		if !ok {
			return nil, network.ErrUnknownNetwork
		}
		key, err := keys.Ed25519(raw)
		if err != nil {
			return nil, err
		}
		return tvm.NewGatewayWallet(cl, wc.Address, key, logger), nil
	case network.KindSolana:
		cl, ok := c.solana[ref]
		if !ok {
			return nil, network.ErrUnknownNetwork
		}
		key, err := keys.Ed25519(raw)
		if err != nil {
			return nil, err
		}
		return sol.NewKeyedWallet(cl, key, logger), nil
	}
	return nil, errors.New("unsupported network kind")
}

func (s *Server) setupRouter(svc service.Service, authn *auth.Authenticator, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// 503 until open transfers were restored
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// websocket watchers are long lived, so only plain requests get the timeout
		r.Use(skipUpgrades(middleware.Timeout(s.cfg.Server.MiddlewareTimeout)))
		service.RegisterRoutes(r, svc, authn.Middleware, authn.Optional, logger)
	})

	return r
}

func skipUpgrades(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
