package device

import "context"

type contextKeyDeviceName struct{}

// GetDeviceName retrieves the parsed device display name from the context.
func GetDeviceName(ctx context.Context) string {
	if name, ok := ctx.Value(contextKeyDeviceName{}).(string); ok {
		return name
	}
	return ""
}

// WithDeviceName injects a device display name into a context. Useful for
// service unit tests that don't run the full HTTP middleware chain.
func WithDeviceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, contextKeyDeviceName{}, name)
}
