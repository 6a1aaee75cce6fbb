package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/bridge-tracker/pkg/app/errors"
	apphttp "github.com/chainsafe/bridge-tracker/pkg/app/http"
)

const defaultMaxSkew = 5 * time.Minute

// TokenValidator resolves a bearer token to its caller address.
type TokenValidator interface {
	IsConfigured() bool
	Caller(ctx context.Context, token string) (string, error)
}

// Authenticator identifies the caller of an action, either from a bearer token or from an
// EIP-191 signature over a timestamped message in the X-Signature and X-Message headers.
type Authenticator struct {
	tokens  TokenValidator
	maxSkew time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewAuthenticator creates an Authenticator. tokens may be nil when only signed messages
// are accepted.
func NewAuthenticator(tokens TokenValidator, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		tokens:  tokens,
		maxSkew: defaultMaxSkew,
		now:     time.Now,
		logger:  logger,
	}
}

// Middleware rejects unauthenticated requests and stores the caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.authenticate(r)
		if err != nil {
			a.logger.Debug("Request not authenticated", zap.String("path", r.URL.Path), zap.Error(err))
			apphttp.DefaultErrorHandler(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (string, error) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if a.tokens == nil || !a.tokens.IsConfigured() {
			return "", apperrors.UnAuthorizedError(nil, "bearer tokens not accepted")
		}
		caller, err := a.tokens.Caller(r.Context(), strings.TrimSpace(token))
		if err != nil {
			return "", apperrors.UnAuthorizedError(err, "invalid token")
		}
		return caller, nil
	}

	signature, message := r.Header.Get("X-Signature"), r.Header.Get("X-Message")
	if signature == "" || message == "" {
		return "", apperrors.UnAuthorizedError(nil, "authentication required")
	}
	addr, err := VerifySignedMessage(message, signature, a.now(), a.maxSkew)
	if err != nil {
		return "", apperrors.UnAuthorizedError(err, "invalid signature")
	}
	return addr.Hex(), nil
}

// Optional stores the caller when the request carries valid credentials and passes every
// request through.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller, err := a.authenticate(r); err == nil {
			r = r.WithContext(WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}
