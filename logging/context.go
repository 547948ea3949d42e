package logging

import (
	"context"

	"go.viam.com/utils"
)

type traceKey struct{}

// EnableDebugMode marks ctx so that CDebugw logs through it regardless of the logger's level. Each
// call tags the context with a fresh trace id.
func EnableDebugMode(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceKey{}, utils.RandomAlphaString(6))
}

// IsDebugMode reports whether ctx was marked by EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return TraceID(ctx) != ""
}

// TraceID returns the id EnableDebugMode attached to ctx, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
