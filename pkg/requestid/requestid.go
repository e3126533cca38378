package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ctxKey is unexported so only this package places the ID in a context.
type ctxKey struct{}

// Generate returns a fresh request ID.
func Generate() string {
	return uuid.New().String()
}

// ToContext stores the request ID.
func ToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the stored request ID, or "" when there is none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromRequest returns the request ID carried by the request's context.
func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}
