package ports

import (
	"context"

	"cachecore/domain/key"
)

// Loader resolves the source-of-truth value for a key. Loader failures are
// caught by the engine and converted to a cache-miss with a loader-error
// cause tag; they are never propagated to the caller as-is.
type Loader interface {
	Resolve(ctx context.Context, k key.Key) (interface{}, error)
}

// LoaderFunc adapts a plain function to the Loader interface.
type LoaderFunc func(ctx context.Context, k key.Key) (interface{}, error)

// Resolve calls f.
func (f LoaderFunc) Resolve(ctx context.Context, k key.Key) (interface{}, error) {
	return f(ctx, k)
}
