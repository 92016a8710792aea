package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
)

func TestRecordEligibility(t *testing.T) {
	tests := []struct {
		name       string
		protocol   *int64
		shipment   *int64
		submit     bool
		resolution bool
	}{
		{name: "fresh row", submit: true},
		{name: "protocol only", protocol: ptr(111), resolution: true},
		{name: "both assigned", protocol: ptr(111), shipment: ptr(555)},
		{name: "shipment only", shipment: ptr(555)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Record{Row: 2, Protocol: tt.protocol, ShipmentID: tt.shipment}
			assert.Equal(t, tt.submit, r.EligibleForSubmission())
			assert.Equal(t, tt.resolution, r.EligibleForResolution())
		})
	}
}

func TestRecordText(t *testing.T) {
	r := NewRecord(3)
	r.Fields[constants.ColNote] = "  fragile  "

	assert.Equal(t, "fragile", r.Text(constants.ColNote))
	assert.Equal(t, "", r.Text(constants.ColExternalID))

	_, ok := r.Get(constants.ColExternalID)
	assert.False(t, ok)
}

func TestIsBlank(t *testing.T) {
	for _, s := range []string{"", "  ", "nan", "NaN", " NAN "} {
		assert.True(t, IsBlank(s), "%q", s)
	}
	for _, s := range []string{"0", "n/a", "35200000000000000000000000000000000000000000"} {
		assert.False(t, IsBlank(s), "%q", s)
	}
}

func ptr(v int64) *int64 { return &v }
