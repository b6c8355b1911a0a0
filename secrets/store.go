package secrets

import "context"

// Store is a flat key/value secret capability. Get reports a missing key via
// ok=false rather than an error; Delete of a missing key is a no-op.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
