package logging

import "context"

type ctxKey struct{}

// RequestContext carries per-request correlation data.
type RequestContext struct {
	RequestID  string `json:"request_id"`
	UserID     string `json:"user_id"`
	RemoteAddr string `json:"remote_addr"`
}

// ContextWithRequest stores rc in ctx. Empty fields are stored as "-".
func ContextWithRequest(ctx context.Context, rc RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, normalize(rc))
}

// RequestFromContext returns the request context stored in ctx, or a context
// with every field set to "-" when none is present.
func RequestFromContext(ctx context.Context) RequestContext {
	if ctx != nil {
		if rc, ok := ctx.Value(ctxKey{}).(RequestContext); ok {
			return rc
		}
	}
	return normalize(RequestContext{})
}

// RequestIDFromContext extracts the request ID from context, or "-".
func RequestIDFromContext(ctx context.Context) string {
	return RequestFromContext(ctx).RequestID
}

func normalize(rc RequestContext) RequestContext {
	if rc.RequestID == "" {
		rc.RequestID = "-"
	}
	if rc.UserID == "" {
		rc.UserID = "-"
	}
	if rc.RemoteAddr == "" {
		rc.RemoteAddr = "-"
	}
	return rc
}
