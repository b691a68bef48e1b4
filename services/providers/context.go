package providers

import "context"

type keyOverrideCtxKey struct{}

// WithKeyOverride carries a caller-supplied upstream credential for the
// duration of a single request. Adapters send it in place of their
// configured key; the override is never logged or persisted.
func WithKeyOverride(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, keyOverrideCtxKey{}, key)
}

// KeyOverride returns the per-request credential, if one was set.
func KeyOverride(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(keyOverrideCtxKey{}).(string)
	return key, ok && key != ""
}
