package correlation

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Header carries the correlation id across system boundaries.
const Header = "X-Correlation-ID"

// New returns a fresh correlation id.
func New() string {
	return uuid.NewString()
}

// WithID attaches a correlation id to the context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation id, or empty when none was attached.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}
