// Package requestcontext carries request-scoped values (actor, request id,
// client ip, request time) so services can read them without net/http.
// Middleware writes them; tests inject them with the With* helpers.
package requestcontext

import (
	"context"
	"time"

	id "refroute/pkg/domain"
)

type key int

const (
	userIDKey key = iota
	roleKey
	requestIDKey
	clientIPKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

// UserID is the authenticated actor, or the nil id when anonymous.
func UserID(ctx context.Context) id.UserID { return value[id.UserID](ctx, userIDKey) }

// Role is the authenticated actor's role, or "" when anonymous.
func Role(ctx context.Context) string { return value[string](ctx, roleKey) }

func WithUserID(ctx context.Context, user id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, user)
}

// WithActor sets both the user id and the role.
func WithActor(ctx context.Context, user id.UserID, role string) context.Context {
	return context.WithValue(WithUserID(ctx, user), roleKey, role)
}

func RequestID(ctx context.Context) string { return value[string](ctx, requestIDKey) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func ClientIP(ctx context.Context) string { return value[string](ctx, clientIPKey) }

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// Now is the time the request started. Outside a request (CLI, workers) it
// falls back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time, mostly for tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
