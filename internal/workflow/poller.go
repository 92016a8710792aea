package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/entity"
)

// Poller resolves shipment ids for records that already hold a protocol. Each row is
// asked once; failures are collected, never retried within the run.
type Poller struct {
	api    ShipmentAPI
	logger *slog.Logger
}

func NewPoller(api ShipmentAPI, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{api: api, logger: logger}
}

// Resolution is the outcome of one polling pass.
type Resolution struct {
	Resolved   []*entity.Record
	Unresolved []*common.ResolutionError
}

// Resolve polls each record in order. onRow, when set, is called after every row with
// the failure for that row or nil. A cancelled context marks the remaining rows
// unresolved without calling the TMS.
func (p *Poller) Resolve(ctx context.Context, token string, records []*entity.Record, onRow func(*entity.Record, error)) Resolution {
	start := time.Now()
	var res Resolution

	for _, rec := range records {
		if !rec.EligibleForResolution() {
			continue
		}
		protocol := *rec.Protocol

		var err error
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		} else {
			var oid int64
			oid, err = p.api.RecoverShipment(ctx, token, protocol)
			if err == nil {
				rec.SetShipmentID(oid)
			}
		}

		if err != nil {
			rec.ShipmentID = nil
			rerr := &common.ResolutionError{Row: rec.Row, Protocol: protocol, Cause: err}
			res.Unresolved = append(res.Unresolved, rerr)
			p.logger.Warn("workflow.poll.unresolved", "row", rec.Row, "protocol", protocol, "error", err)
		} else {
			res.Resolved = append(res.Resolved, rec)
			p.logger.Info("workflow.poll.resolved", "row", rec.Row, "protocol", protocol, "shipment_id", *rec.ShipmentID)
		}
		if onRow != nil {
			onRow(rec, err)
		}
	}

	p.logger.Info("workflow.poll.done",
		"resolved", len(res.Resolved),
		"unresolved", len(res.Unresolved),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}
