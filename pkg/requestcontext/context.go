// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and stores read them without
// importing net/http or the OCPI request package.
//
// Usage in services (read values):
//
//	requestID := requestcontext.RequestID(ctx)
//	caller, ok := requestcontext.Caller(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey     struct{}
	correlationIDKey struct{}
	requestTimeKey   struct{}
	clientIPKey      struct{}
	callerKey        struct{}
	versionKey       struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID     = requestIDKey{}
	ContextKeyCorrelationID = correlationIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
	ContextKeyClientIP      = clientIPKey{}
	ContextKeyCaller        = callerKey{}
	ContextKeyVersion       = versionKey{}
)

// -----------------------------------------------------------------------------
// Correlation
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// CorrelationID retrieves the correlation ID, which spans every request of
// one logical exchange between two platforms.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID injects a correlation ID into the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// -----------------------------------------------------------------------------
// Caller
// -----------------------------------------------------------------------------

// Caller returns the key of the remote party that authenticated the request.
func Caller(ctx context.Context) (domain.PartyKey, bool) {
	key, ok := ctx.Value(ContextKeyCaller).(domain.PartyKey)
	return key, ok
}

// WithCaller injects the authenticated remote party key.
func WithCaller(ctx context.Context, key domain.PartyKey) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, key)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the client IP address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// Version returns the protocol version selected by the request URL.
func Version(ctx context.Context) (domain.Version, bool) {
	v, ok := ctx.Value(ContextKeyVersion).(domain.Version)
	return v, ok
}

// WithVersion injects the protocol version into a context.
func WithVersion(ctx context.Context, v domain.Version) context.Context {
	return context.WithValue(ctx, ContextKeyVersion, v)
}
