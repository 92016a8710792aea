package entity

import (
	"strings"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
)

// Record is one spreadsheet row: a candidate shipment return.
type Record struct {
	Row         int                         `json:"row"` // 1-based sheet row; the header is row 1
	Fields      map[constants.Column]string `json:"fields"`
	Protocol    *int64                      `json:"protocol,omitempty"`
	ShipmentID  *int64                      `json:"shipment_id,omitempty"`
	FreightSpot *string                     `json:"freight_spot,omitempty"`
}

// NewRecord returns an empty record for the given sheet row.
func NewRecord(row int) *Record {
	return &Record{Row: row, Fields: make(map[constants.Column]string)}
}

// Get returns the raw cell text for col and whether the column exists for this row.
func (r *Record) Get(col constants.Column) (string, bool) {
	v, ok := r.Fields[col]
	return v, ok
}

// Text returns the trimmed cell text, empty when the column is missing.
func (r *Record) Text(col constants.Column) string {
	return strings.TrimSpace(r.Fields[col])
}

// EligibleForSubmission holds while neither control identifier has been assigned.
func (r *Record) EligibleForSubmission() bool {
	return r.Protocol == nil && r.ShipmentID == nil
}

// EligibleForResolution holds once a protocol exists but no shipment id was resolved yet.
func (r *Record) EligibleForResolution() bool {
	return r.Protocol != nil && r.ShipmentID == nil
}

// SetProtocol assigns the submission protocol.
func (r *Record) SetProtocol(p int64) {
	r.Protocol = &p
}

// SetShipmentID assigns the resolved shipment id.
func (r *Record) SetShipmentID(id int64) {
	r.ShipmentID = &id
}

// IsBlank reports whether a cell holds nothing usable: empty or the "nan" placeholder
// spreadsheet tools write for missing numbers.
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan")
}
