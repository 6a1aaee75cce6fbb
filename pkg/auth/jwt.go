package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const jwksTimeout = 10 * time.Second

// ErrNoCaller is returned for a valid token that names no caller address.
var ErrNoCaller = errors.New("token carries no caller address")

// JWKS is the document served by the identity provider.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is one RSA signing key of a JWKS.
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWTValidator checks RS256/384/512 tokens against the keys published at a JWKS URL. Keys are
// cached by kid and the set is refetched when a token names an unknown kid.
type JWTValidator struct {
	jwksURL string
	issuer  string
	client  *http.Client
	fetch   singleflight.Group

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

func NewJWTValidator(jwksURL, issuer string) *JWTValidator {
	return &JWTValidator{
		jwksURL: jwksURL,
		issuer:  issuer,
		client:  &http.Client{Timeout: jwksTimeout},
		keys:    make(map[string]*rsa.PublicKey),
	}
}

// IsConfigured reports whether bearer tokens can be checked at all.
func (v *JWTValidator) IsConfigured() bool {
	return v != nil && v.jwksURL != ""
}

// Caller returns the wallet address a token was issued to, taken from the "address" claim
// or else the subject.
func (v *JWTValidator) Caller(ctx context.Context, raw string) (string, error) {
	claims, err := v.ValidateToken(ctx, raw)
	if err != nil {
		return "", err
	}
	if addr, _ := claims["address"].(string); addr != "" {
		return addr, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", ErrNoCaller
}

func (v *JWTValidator) ValidateToken(ctx context.Context, raw string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return v.key(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

func (v *JWTValidator) cached(kid string) (*rsa.PublicKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	k, ok := v.keys[kid]
	return k, ok
}

func (v *JWTValidator) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := v.cached(kid); ok {
		return k, nil
	}
	// concurrent misses share one fetch
	if _, err, _ := v.fetch.Do("jwks", func() (any, error) { return nil, v.refresh(ctx) }); err != nil {
		return nil, err
	}
	if k, ok := v.cached(kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

func (v *JWTValidator) refresh(ctx context.Context) error {
	if v.jwksURL == "" {
		return errors.New("no JWKS URL configured")
	}
	ctx, cancel := context.WithTimeout(ctx, jwksTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: status %d", resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if pub, err := k.rsaKey(); err == nil {
			v.keys[k.Kid] = pub
		}
	}
	return nil
}

func (k JWK) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}
