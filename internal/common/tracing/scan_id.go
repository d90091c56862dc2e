package tracing

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

var scanIDCtxKey ctxKey

// WithScanID tags the context with a fresh scan ID unless it already has
// one. Every log record emitted during the pass carries it.
func WithScanID(ctx context.Context) context.Context {
	if _, ok := ctx.Value(scanIDCtxKey).(string); ok {
		return ctx
	}

	return context.WithValue(ctx, scanIDCtxKey, generateScanID())
}

func GetScanID(ctx context.Context) string {
	scanID, ok := ctx.Value(scanIDCtxKey).(string)
	if !ok {
		return ""
	}

	return scanID
}

func generateScanID() string {
	v, _ := uuid.NewV7()
	return v.String()
}
