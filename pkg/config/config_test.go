package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
networks:
  - kind: evm
    chain_id: "1"
    rpc_url: https://eth.example.org
    currency_symbol: ETH
  - kind: tvm
    chain_id: "42"
    rpc_url: https://gateway.example.org
    currency_symbol: EVER
    confirmation_blocks: 1
assets:
  manifest_url: https://assets.example.org/manifest.json
price:
  url: https://prices.example.org/%s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Database.Database != "bridge_tracker" {
		t.Errorf("top level defaults not applied: %+v %+v", cfg.Server, cfg.Database)
	}
	if cfg.Engine.TerminalDisposeTTL != 5*time.Minute || cfg.Engine.RestoreLimit != 500 {
		t.Errorf("engine defaults not applied: %+v", cfg.Engine)
	}

	evm, tvm := cfg.Networks[0], cfg.Networks[1]
	if evm.ConfirmationBlocks != 12 || evm.PollingInterval != 10*time.Second || evm.CurrencyDecimals != 18 {
		t.Errorf("network defaults not applied: %+v", evm)
	}
	if tvm.ConfirmationBlocks != 1 {
		t.Errorf("explicit value overridden by default: %d", tvm.ConfirmationBlocks)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRACKER_SERVER_PORT", "9090")
	t.Setenv("TRACKER_DATABASE_PASSWORD", "s3cret")
	t.Setenv("TRACKER_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Database.Password != "s3cret" || cfg.Logging.Level != "debug" {
		t.Errorf("environment not applied: port=%d level=%s", cfg.Server.Port, cfg.Logging.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{
			name:   "no networks",
			body:   "assets:\n  manifest_url: x\nprice:\n  url: y\n",
			errMsg: "Networks",
		},
		{
			name:   "duplicate network",
			body:   strings.Replace(minimalConfig, "kind: tvm\n    chain_id: \"42\"", "kind: evm\n    chain_id: \"1\"", 1),
			errMsg: "duplicate network",
		},
		{
			name:   "wallet on unknown network",
			body:   minimalConfig + "wallets:\n  accounts:\n    - network: solana-101\n      encrypted_key: abc\n",
			errMsg: "unknown network solana-101",
		},
		{
			name:   "derived wallet without seed",
			body:   minimalConfig + "wallets:\n  accounts:\n    - network: evm-1\n      derive: true\n",
			errMsg: "wallets.seed is empty",
		},
		{
			name:   "bad log format",
			body:   minimalConfig + "logging:\n  format: xml\n",
			errMsg: "Format",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Fatalf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "info", Format: "console"}); err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if _, err := NewLogger(LoggingConfig{Level: "loud", Format: "json"}); err == nil {
		t.Fatal("expected an invalid level error")
	}
}
