// Package middleware provides request context helpers shared by the HTTP
// layer and anything embedding the market server.
package middleware

import (
	"context"

	"github.com/agentoven/agentmarket/internal/ledger"
)

type contextKey string

const callerKey contextKey = "caller"

// SetCaller stores the calling account in the context.
func SetCaller(ctx context.Context, caller ledger.Address) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCaller returns the calling account, if the request named one.
func GetCaller(ctx context.Context) (ledger.Address, bool) {
	v, ok := ctx.Value(callerKey).(ledger.Address)
	return v, ok
}
