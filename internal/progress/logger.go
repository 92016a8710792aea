package progress

import (
	"log/slog"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/workflow"
)

// Logger emits events as structured debug logs.
type Logger struct {
	L *slog.Logger
}

func (l Logger) Observe(e workflow.Event) {
	if e.Kind == workflow.EventPhase {
		return
	}
	attrs := []any{"run_id", e.RunID, "phase", e.Phase, "kind", e.Kind}
	if e.Row > 0 {
		attrs = append(attrs, "row", e.Row)
	}
	if e.Protocol != 0 {
		attrs = append(attrs, "protocol", e.Protocol)
	}
	if e.ShipmentID != 0 {
		attrs = append(attrs, "shipment_id", e.ShipmentID)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	l.L.Debug("progress.event", attrs...)
}
