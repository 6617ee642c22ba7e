package port

import (
	"context"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
)

// Resolver turns a post URL into direct media URLs.
// A nil result with a nil error is allowed and means nothing was found.
type Resolver interface {
	Resolve(ctx context.Context, postURL string) (*domain.ResolverResult, error)
}

// ResolverFunc adapts a plain function to the Resolver interface
type ResolverFunc func(ctx context.Context, postURL string) (*domain.ResolverResult, error)

// Resolve calls f(ctx, postURL)
func (f ResolverFunc) Resolve(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
	return f(ctx, postURL)
}
