package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

const testManifest = `{
  "tokens": [
    {"chain": "evm-1", "address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "symbol": "USDC", "decimals": 6},
    {"chain": "tvm-42", "address": "0:c37b3fafca5bf7d3704b081fde7df54f298736ee059bf6d32fac25f5e6085bf6", "symbol": "USDC", "decimals": 6, "native": false}
  ],
  "routes": [
    {
      "kind": "evm_tvm",
      "source": "evm-1",
      "destination": "tvm-42",
      "sourceToken": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
      "destinationToken": "0:c37b3fafca5bf7d3704b081fde7df54f298736ee059bf6d32fac25f5e6085bf6",
      "tokenBase": "source",
      "vault": "0x1111111111111111111111111111111111111111",
      "contracts": {"proxy": "0:01", "configuration": "0:02"}
    }
  ]
}`

type fakeRemoteCache struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func (f *fakeRemoteCache) GetString(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (f *fakeRemoteCache) SetString(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func manifestServer(t *testing.T, body string, hits *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshAndLookup(t *testing.T) {
	var hits int
	srv := manifestServer(t, testManifest, &hits)
	remote := &fakeRemoteCache{values: map[string]string{}}

	svc := NewService(config.AssetsConfig{ManifestURL: srv.URL, FetchTimeout: time.Second}, remote, zap.NewNop())

	if _, err := svc.Get(network.KindEVM, "1", "0xa0b8"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Expected ErrNotLoaded before refresh, got %v", err)
	}

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// lookups are case-insensitive on the address
	tok, err := svc.Get(network.KindEVM, "1", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if tok.Symbol != "USDC" || tok.Decimals != 6 {
		t.Errorf("Unexpected token %+v", tok)
	}

	if _, err := svc.Get(network.KindEVM, "1", "0xdead"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	src := network.NewChainRef(network.KindEVM, "1")
	dst := network.NewChainRef(network.KindTVM, "42")

	// routes are indexed by the token of either side
	for _, token := range []string{
		"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"0:c37b3fafca5bf7d3704b081fde7df54f298736ee059bf6d32fac25f5e6085bf6",
	} {
		rs, err := svc.Routes(token, src, dst)
		if err != nil {
			t.Fatalf("Routes(%s) failed: %v", token, err)
		}
		if len(rs) != 1 || rs[0].Kind != RouteEvmToTvm {
			t.Errorf("Unexpected routes %+v", rs)
		}
	}

	if _, err := svc.Routes("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", dst, src); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for reversed pair, got %v", err)
	}

	if len(svc.Pair(src, dst)) != 1 {
		t.Error("Expected one route for the pair")
	}
	if _, ok := remote.values[manifestCacheKey]; !ok {
		t.Error("Expected manifest to be stored in the remote cache")
	}
}

func TestStartPrefersRemoteCache(t *testing.T) {
	var hits int
	srv := manifestServer(t, `{"tokens": [], "routes": []}`, &hits)
	remote := &fakeRemoteCache{values: map[string]string{manifestCacheKey: testManifest}}

	svc := NewService(config.AssetsConfig{ManifestURL: srv.URL, FetchTimeout: time.Second}, remote, zap.NewNop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if hits != 0 {
		t.Errorf("Expected no manifest fetch, got %d", hits)
	}
	if _, err := svc.Get(network.KindEVM, "1", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"); err != nil {
		t.Errorf("Expected token from cached manifest: %v", err)
	}
}

func TestStartFallsBackToURL(t *testing.T) {
	var hits int
	srv := manifestServer(t, testManifest, &hits)
	remote := &fakeRemoteCache{values: map[string]string{}, getErr: errors.New("redis down")}

	svc := NewService(config.AssetsConfig{ManifestURL: srv.URL, FetchTimeout: time.Second}, remote, zap.NewNop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if hits != 1 {
		t.Errorf("Expected one manifest fetch, got %d", hits)
	}
}

func TestRefreshKeepsPreviousManifestOnFailure(t *testing.T) {
	body := testManifest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	svc := NewService(config.AssetsConfig{ManifestURL: srv.URL, FetchTimeout: time.Second}, nil, zap.NewNop())
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	body = "not json"
	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("Expected error for malformed manifest")
	}

	if _, err := svc.Get(network.KindEVM, "1", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"); err != nil {
		t.Errorf("Expected previous manifest to stay loaded: %v", err)
	}
}
