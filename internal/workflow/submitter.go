package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/entity"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/tms"
)

// ShipmentAPI is the slice of the TMS the workflow depends on.
type ShipmentAPI interface {
	CreateShipments(ctx context.Context, token string, shipments []tms.Shipment) ([]int64, error)
	RecoverShipment(ctx context.Context, token string, protocol int64) (int64, error)
}

// BatchItem pairs a record with its built payload. Batch order is the request order.
type BatchItem struct {
	Record  *entity.Record
	Payload tms.Shipment
}

// Submitter sends a whole batch in one request and assigns protocols by position.
type Submitter struct {
	api    ShipmentAPI
	logger *slog.Logger
}

func NewSubmitter(api ShipmentAPI, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{api: api, logger: logger}
}

// Submit returns the protocols written to the batch records, in batch order. An empty
// batch makes no call. On any error no record is modified.
func (s *Submitter) Submit(ctx context.Context, token string, batch []BatchItem) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	start := time.Now()

	payloads := make([]tms.Shipment, len(batch))
	for i, item := range batch {
		payloads[i] = item.Payload
	}

	protocols, err := s.api.CreateShipments(ctx, token, payloads)
	if err != nil {
		se := &common.SubmissionError{Expected: len(batch), Cause: err}
		var status *tms.StatusError
		if errors.As(err, &status) {
			se.StatusCode = status.StatusCode
			se.Body = status.Body
		}
		s.logger.Error("workflow.submit.failed", "count", len(batch), "status", se.StatusCode, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, se
	}
	if len(protocols) != len(batch) {
		s.logger.Error("workflow.submit.length_mismatch", "expected", len(batch), "got", len(protocols))
		return nil, &common.SubmissionError{Expected: len(batch), Got: len(protocols)}
	}

	for i, item := range batch {
		item.Record.SetProtocol(protocols[i])
	}
	s.logger.Info("workflow.submit.ok", "count", len(batch), "elapsed_ms", time.Since(start).Milliseconds())
	return protocols, nil
}
