package payload

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/entity"
)

func record(overrides map[constants.Column]string) *entity.Record {
	rec := entity.NewRecord(7)
	base := map[constants.Column]string{
		constants.ColUnitCNPJ:       " 11222333000144 ",
		constants.ColSenderCNPJ:     "22333444000155",
		constants.ColRecipientCNPJ:  "33444555000166",
		constants.ColCarrierCNPJ:    "44555666000177",
		constants.ColOriginCEP:      "1310100",
		constants.ColDestinationCEP: "20040002.0",
		constants.ColIssuerCNPJ:     "55666777000188",
		constants.ColInvoiceNumber:  "98765",
		constants.ColInvoiceSeries:  "1",
		constants.ColNote:           "  caixa avariada ",
		constants.ColExternalID:     "DEV-01",
		constants.ColDriverDocument: "12345678900",
		constants.ColDriverName:     " Joao Silva ",
	}
	for k, v := range base {
		rec.Fields[k] = v
	}
	for k, v := range overrides {
		rec.Fields[k] = v
	}
	return rec
}

func TestBuild_FixedStructure(t *testing.T) {
	s, err := Build(record(nil))
	require.NoError(t, err)

	assert.Equal(t, "11222333000144", s.UnitCNPJ)
	assert.False(t, s.ComputeLoad)
	assert.True(t, s.GroupDocuments)
	assert.Equal(t, []string{"DEVOLUCAO"}, s.Sender.Labels)
	assert.Equal(t, "33444555000166", s.Recipient.CNPJ)
	assert.Equal(t, "44555666000177", s.Carrier.CNPJ)
	assert.Equal(t, int64(1310100), s.OriginCEP)
	assert.Equal(t, int64(20040002), s.DestinationCEP)
	assert.Equal(t, []string{"DEVOLUCAO"}, s.Labels)
	assert.Equal(t, "3517", s.VehicleGroup)
	assert.Equal(t, "caixa avariada", s.Note)
	assert.Equal(t, "DEV-01", s.ExternalID)

	require.Len(t, s.Documents, 1)
	doc := s.Documents[0]
	assert.Equal(t, 0, doc.DocType)
	assert.Equal(t, int64(55666777000188), doc.IssuerCNPJ)
	assert.Equal(t, int64(98765), doc.Number)
	assert.Equal(t, int64(1), doc.Series)
	assert.Equal(t, 3, doc.VoucherType)
	assert.Equal(t, "3517", doc.VehicleGroup)
	assert.Nil(t, doc.AccessKey)

	require.Len(t, s.Drivers, 1)
	assert.Equal(t, "Joao Silva", s.Drivers[0].Name)
	assert.Equal(t, 1, s.Drivers[0].DocType)
}

func TestBuild_WireNames(t *testing.T) {
	s, err := Build(record(nil))
	require.NoError(t, err)
	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, key := range []string{
		"cnpjUnidade", "calcularcarga", "agruparConhecimentos", "remetente", "destinatario",
		"transportadora", "cepOrigem", "cepDestino", "documentos", "marcadores",
		"grupoVeiculo", "observacao", "identificador", "motoristas",
	} {
		assert.Contains(t, m, key)
	}
	doc := m["documentos"].([]any)[0].(map[string]any)
	assert.Contains(t, doc, "chaveAcesso")
	assert.Nil(t, doc["chaveAcesso"])
}

func TestAccessKeyNormalization(t *testing.T) {
	for _, raw := range []string{"", "   ", "nan", "NaN", "NAN"} {
		assert.Nil(t, AccessKey(raw), "%q", raw)
	}

	rec := record(nil)
	delete(rec.Fields, constants.ColAccessKey)
	s, err := Build(rec)
	require.NoError(t, err)
	assert.Nil(t, s.Documents[0].AccessKey)

	s, err = Build(record(map[constants.Column]string{constants.ColAccessKey: " 35240811222333000144550010000987651000098765 "}))
	require.NoError(t, err)
	require.NotNil(t, s.Documents[0].AccessKey)
	assert.Equal(t, "35240811222333000144550010000987651000098765", *s.Documents[0].AccessKey)
}

func TestBuild_DriverDocType(t *testing.T) {
	s, err := Build(record(map[constants.Column]string{constants.ColDriverDocType: "2"}))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Drivers[0].DocType)

	s, err = Build(record(map[constants.Column]string{constants.ColDriverDocType: "nan"}))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Drivers[0].DocType)
}

func TestBuild_Malformed(t *testing.T) {
	for _, col := range []constants.Column{
		constants.ColOriginCEP,
		constants.ColDestinationCEP,
		constants.ColIssuerCNPJ,
		constants.ColInvoiceNumber,
		constants.ColInvoiceSeries,
		constants.ColDriverDocType,
	} {
		t.Run(string(col), func(t *testing.T) {
			_, err := Build(record(map[constants.Column]string{col: "12-A"}))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrMalformedRecord))

			var me *common.MalformedRecordError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, 7, me.Row)
			assert.Equal(t, string(col), me.Column)
			assert.Equal(t, "12-A", me.Value)
		})
	}

	_, err := Build(record(map[constants.Column]string{constants.ColInvoiceNumber: ""}))
	assert.True(t, errors.Is(err, common.ErrMalformedRecord))
}
