package logging

import (
	"context"
	"log/slog"

	"github.com/lanls/lanls/internal/common/tracing"
)

var _ slog.Handler = (*ScanHandler)(nil)

// ScanHandler decorates every record with the scan ID carried in the
// context, so log lines from both probers of one pass correlate.
type ScanHandler struct {
	w slog.Handler
}

func NewScanHandler(handler slog.Handler) *ScanHandler {
	return &ScanHandler{w: handler}
}

func (h *ScanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.w.Enabled(ctx, level)
}

func (h *ScanHandler) Handle(ctx context.Context, r slog.Record) error {
	if scanID := tracing.GetScanID(ctx); scanID != "" {
		r.Add(slog.String("scan_id", scanID))
	}

	return h.w.Handle(ctx, r)
}

func (h *ScanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.clone(h.w.WithAttrs(attrs))
}

func (h *ScanHandler) WithGroup(name string) slog.Handler {
	return h.clone(h.w.WithGroup(name))
}

func (h *ScanHandler) clone(handler slog.Handler) *ScanHandler {
	return &ScanHandler{w: handler}
}
