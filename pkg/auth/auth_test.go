package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func signMessage(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	sig, err := crypto.Sign(crypto.Keccak256([]byte(prefixed)), key)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func TestVerifySignedMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)
	now := time.Unix(1_700_000_000, 0)
	fresh := SignedMessagePrefix + strconv.FormatInt(now.Unix(), 10)
	stale := SignedMessagePrefix + strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)

	got, err := VerifySignedMessage(fresh, signMessage(t, key, fresh), now, time.Minute)
	if err != nil {
		t.Fatalf("VerifySignedMessage failed: %v", err)
	}
	if got != want {
		t.Fatalf("expected %s, got %s", want.Hex(), got.Hex())
	}

	if _, err := VerifySignedMessage(stale, signMessage(t, key, stale), now, time.Minute); err == nil {
		t.Fatal("expected a stale message to be refused")
	}
	if _, err := VerifySignedMessage("hello", signMessage(t, key, "hello"), now, time.Minute); err == nil {
		t.Fatal("expected a message without prefix to be refused")
	}
	if _, err := VerifySignedMessage(fresh, "0x1234", now, time.Minute); err == nil {
		t.Fatal("expected a short signature to be refused")
	}
}

func TestVerifySignedMessage_OtherSigner(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	now := time.Now()
	msg := SignedMessagePrefix + strconv.FormatInt(now.Unix(), 10)

	got, err := VerifySignedMessage(msg, signMessage(t, other, msg), now, time.Minute)
	if err != nil {
		t.Fatalf("VerifySignedMessage failed: %v", err)
	}
	if got == crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatal("recovered the wrong signer")
	}
}

func TestValidateEVMAddress(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{"0x2222222222222222222222222222222222222222", true},
		{"2222222222222222222222222222222222222222", false},
		{"0x22", false},
		{"0xzz22222222222222222222222222222222222222", false},
	}
	for _, tt := range tests {
		if got := ValidateEVMAddress(tt.address); got != tt.valid {
			t.Errorf("ValidateEVMAddress(%q) = %v, want %v", tt.address, got, tt.valid)
		}
	}
}

type jwksServer struct {
	*httptest.Server
	key *rsa.PrivateKey
	kid string
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	s := &jwksServer{key: key, kid: "test-key"}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{{
			Kid: s.kid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestJWTValidator_Caller(t *testing.T) {
	srv := newJWKSServer(t)
	v := NewJWTValidator(srv.URL, "https://issuer.test")
	exp := time.Now().Add(time.Hour).Unix()

	caller, err := v.Caller(context.Background(), srv.token(t, jwt.MapClaims{
		"iss": "https://issuer.test", "sub": "user-1", "address": "0xabc", "exp": exp,
	}))
	if err != nil {
		t.Fatalf("Caller failed: %v", err)
	}
	if caller != "0xabc" {
		t.Fatalf("expected address claim, got %q", caller)
	}

	caller, err = v.Caller(context.Background(), srv.token(t, jwt.MapClaims{
		"iss": "https://issuer.test", "sub": "0xdef", "exp": exp,
	}))
	if err != nil || caller != "0xdef" {
		t.Fatalf("expected subject fallback, got %q (%v)", caller, err)
	}

	if _, err := v.Caller(context.Background(), srv.token(t, jwt.MapClaims{
		"iss": "https://elsewhere.test", "sub": "0xdef", "exp": exp,
	})); err == nil {
		t.Fatal("expected a foreign issuer to be refused")
	}
	if _, err := v.Caller(context.Background(), srv.token(t, jwt.MapClaims{
		"iss": "https://issuer.test", "exp": exp,
	})); err != ErrNoCaller {
		t.Fatalf("expected ErrNoCaller, got %v", err)
	}
}

func TestJWTValidator_UnknownKey(t *testing.T) {
	srv := newJWKSServer(t)
	v := NewJWTValidator(srv.URL, "")
	srv.kid = "rotated"
	tok := srv.token(t, jwt.MapClaims{"sub": "0xdef", "exp": time.Now().Add(time.Hour).Unix()})
	srv.kid = "test-key"

	if _, err := v.Caller(context.Background(), tok); err == nil || !strings.Contains(err.Error(), "key not found") {
		t.Fatalf("expected key not found, got %v", err)
	}
}

type staticTokens struct {
	caller string
	err    error
}

func (s staticTokens) IsConfigured() bool { return true }

func (s staticTokens) Caller(context.Context, string) (string, error) { return s.caller, s.err }

func callerHandler(t *testing.T, seen *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, _ = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticator_Middleware(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	msg := SignedMessagePrefix + strconv.FormatInt(time.Now().Unix(), 10)

	tests := []struct {
		name   string
		tokens TokenValidator
		header map[string]string
		status int
		caller string
	}{
		{
			name:   "no credentials",
			status: http.StatusUnauthorized,
		},
		{
			name:   "signed message",
			header: map[string]string{"X-Signature": signMessage(t, key, msg), "X-Message": msg},
			status: http.StatusNoContent,
			caller: addr,
		},
		{
			name:   "bad signature",
			header: map[string]string{"X-Signature": "0x00", "X-Message": msg},
			status: http.StatusUnauthorized,
		},
		{
			name:   "bearer without validator",
			header: map[string]string{"Authorization": "Bearer abc"},
			status: http.StatusUnauthorized,
		},
		{
			name:   "bearer token",
			tokens: staticTokens{caller: "0xabc"},
			header: map[string]string{"Authorization": "Bearer abc"},
			status: http.StatusNoContent,
			caller: "0xabc",
		},
		{
			name:   "rejected token",
			tokens: staticTokens{err: fmt.Errorf("expired")},
			header: map[string]string{"Authorization": "Bearer abc"},
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := NewAuthenticator(tt.tokens, zap.NewNop()).Middleware(callerHandler(t, &seen))
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if seen != tt.caller {
				t.Fatalf("expected caller %q, got %q", tt.caller, seen)
			}
		})
	}
}

func TestAuthenticator_Optional(t *testing.T) {
	a := NewAuthenticator(staticTokens{caller: "0xabc"}, zap.NewNop())

	var seen string
	rec := httptest.NewRecorder()
	a.Optional(callerHandler(t, &seen)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent || seen != "" {
		t.Fatalf("expected anonymous pass-through, got %d with caller %q", rec.Code, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec = httptest.NewRecorder()
	a.Optional(callerHandler(t, &seen)).ServeHTTP(rec, req)
	if seen != "0xabc" {
		t.Fatalf("expected caller from token, got %q", seen)
	}
}
