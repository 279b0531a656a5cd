package jsonrpc

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/mnehpets/ledgerrpc/middleware"
)

// Call is the per-call metadata handed to a handler through its context.
type Call struct {
	Request *Request
	// HTTPRequest is the transport request carrying the call. Batch items
	// share it.
	HTTPRequest *http.Request
	// Logger is tagged with the method and id of the call.
	Logger *zap.Logger
}

// RequestID returns the id of the HTTP request carrying the call: the one
// assigned by middleware.RequestLogger, else the caller's X-Request-Id.
func (c *Call) RequestID() string {
	if c == nil || c.HTTPRequest == nil {
		return ""
	}
	return middleware.RequestIDFromContext(c.HTTPRequest.Context())
}

type callKey struct{}

// WithCall returns a context carrying c.
func WithCall(ctx context.Context, c *Call) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

// CallFromContext returns the call a handler is serving.
func CallFromContext(ctx context.Context) (*Call, bool) {
	c, ok := ctx.Value(callKey{}).(*Call)
	return c, ok && c != nil
}

// LoggerFromContext returns the call's logger, or a no-op logger outside a
// call.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if c, ok := CallFromContext(ctx); ok && c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
