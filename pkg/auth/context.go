package auth

import (
	"context"
)

type contextKey string

// ContextKeyCaller is the context key for the authenticated caller address.
const ContextKeyCaller contextKey = "caller"

// WithCaller adds the authenticated caller address to the context.
func WithCaller(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, address)
}

// CallerFromContext retrieves the authenticated caller address from the context.
func CallerFromContext(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(ContextKeyCaller).(string)
	return addr, ok && addr != ""
}
