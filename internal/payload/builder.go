// Package payload turns spreadsheet records into TMS shipment payloads.
package payload

import (
	"strings"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/entity"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/store"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/tms"
)

// Build produces the criarAsync element for one record. Domain validity (CNPJ check
// digits, real postal codes) is left to the TMS; only integer coercion can fail here.
func Build(rec *entity.Record) (tms.Shipment, error) {
	b := builder{rec: rec}

	originCEP := b.integer(constants.ColOriginCEP)
	destinationCEP := b.integer(constants.ColDestinationCEP)
	issuer := b.integer(constants.ColIssuerCNPJ)
	number := b.integer(constants.ColInvoiceNumber)
	series := b.integer(constants.ColInvoiceSeries)
	driverDocType := b.integerOr(constants.ColDriverDocType, constants.DefaultDriverDocType)
	if b.err != nil {
		return tms.Shipment{}, b.err
	}

	return tms.Shipment{
		UnitCNPJ:       rec.Text(constants.ColUnitCNPJ),
		ComputeLoad:    false,
		GroupDocuments: true,
		Sender:         party(rec.Text(constants.ColSenderCNPJ)),
		Recipient:      party(rec.Text(constants.ColRecipientCNPJ)),
		Carrier:        party(rec.Text(constants.ColCarrierCNPJ)),
		OriginCEP:      originCEP,
		DestinationCEP: destinationCEP,
		Documents: []tms.Document{{
			DocType:      constants.DocumentTypeInvoice,
			IssuerCNPJ:   issuer,
			Number:       number,
			Series:       series,
			AccessKey:    AccessKey(rec.Fields[constants.ColAccessKey]),
			VoucherType:  constants.VoucherTypeReturn,
			VehicleGroup: constants.VehicleGroup,
		}},
		Labels:       labels(),
		VehicleGroup: constants.VehicleGroup,
		Note:         rec.Text(constants.ColNote),
		ExternalID:   rec.Text(constants.ColExternalID),
		Drivers: []tms.Driver{{
			Document: rec.Text(constants.ColDriverDocument),
			Name:     rec.Text(constants.ColDriverName),
			DocType:  int(driverDocType),
		}},
	}, nil
}

// AccessKey normalizes the access-key cell: blank or "nan" means no key.
func AccessKey(raw string) *string {
	if entity.IsBlank(raw) {
		return nil
	}
	key := strings.TrimSpace(raw)
	return &key
}

func party(cnpj string) tms.Party {
	return tms.Party{CNPJ: cnpj, Labels: labels()}
}

func labels() []string {
	return []string{constants.ReturnLabel}
}

// builder keeps the first coercion failure so Build reads top to bottom.
type builder struct {
	rec *entity.Record
	err error
}

func (b *builder) integer(col constants.Column) int64 {
	if b.err != nil {
		return 0
	}
	raw := b.rec.Fields[col]
	n, err := store.ParseInt(raw)
	if err != nil {
		b.err = &common.MalformedRecordError{Row: b.rec.Row, Column: string(col), Value: raw, Reason: err.Error()}
		return 0
	}
	return n
}

// integerOr falls back to def when the column is missing or blank.
func (b *builder) integerOr(col constants.Column, def int64) int64 {
	if raw, ok := b.rec.Get(col); !ok || entity.IsBlank(raw) {
		return def
	}
	return b.integer(col)
}
