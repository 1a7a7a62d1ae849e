// Package correlation carries the correlation id of the request being handled through a context.
package correlation

import (
	"context"
	"log/slog"
)

// Unknown is reported when a request carried no usable correlation id.
const Unknown = "unknown"

type ctxKey struct{}

func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func Get(ctx context.Context) string {
	v := ctx.Value(ctxKey{})
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return Unknown
}

// Attr is the log attribute for the correlation id in ctx.
func Attr(ctx context.Context) slog.Attr {
	return slog.String("correlation_id", Get(ctx))
}
