package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
)

var sourceHeader = []string{
	"CNPJ Unidade", "Remetente CNPJ", "Destinatário CNPJ", "Transportadora CNPJ",
	"CEP Origem", "CEP Destino", "CNPJ Emissor", "Nota Fiscal", "Série NF",
	"Documento Chave Acesso", "Observação", "Identificador",
}

func sampleRow(nf string) []any {
	return []any{
		"11222333000144", "22333444000155", "33444555000166", "44555666000177",
		"01310100", "20040002", "55666777000188", nf, "1",
		"", "devolucao parcial", "ID-" + nf,
	}
}

func writeWorkbook(t *testing.T, header []string, rows ...[]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i, r := range rows {
		row := r
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "embarques.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestOpen_NormalizesHeadersAndAddsControlColumns(t *testing.T) {
	path := writeWorkbook(t, sourceHeader, sampleRow("1001"), sampleRow("1002"))

	s, err := Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()

	recs := s.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].Row)
	assert.Equal(t, 3, recs[1].Row)
	assert.Equal(t, "33444555000166", recs[0].Text(constants.ColRecipientCNPJ))
	assert.Equal(t, "devolucao parcial", recs[0].Text(constants.ColNote))
	assert.Equal(t, "1002", recs[1].Text(constants.ColInvoiceNumber))
	for _, r := range recs {
		assert.True(t, r.EligibleForSubmission())
	}

	require.NoError(t, s.Save())
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Protocolo", "Embarque", "FreteSPOT"}, header[0][len(sourceHeader):])
}

func TestOpen_ParsesExistingControlValues(t *testing.T) {
	header := append(append([]string{}, sourceHeader...), "Protocolo", "Embarque", "FreteSPOT")
	done := append(sampleRow("1001"), 111, 555, "")
	pending := append(sampleRow("1002"), "222.0", "nan", "")
	fresh := append(sampleRow("1003"), "", "", "")
	path := writeWorkbook(t, header, done, pending, fresh)

	s, err := Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()

	recs := s.Records()
	require.Len(t, recs, 3)

	require.NotNil(t, recs[0].Protocol)
	require.NotNil(t, recs[0].ShipmentID)
	assert.Equal(t, int64(111), *recs[0].Protocol)
	assert.Equal(t, int64(555), *recs[0].ShipmentID)

	require.NotNil(t, recs[1].Protocol)
	assert.Equal(t, int64(222), *recs[1].Protocol)
	assert.Nil(t, recs[1].ShipmentID)
	assert.True(t, recs[1].EligibleForResolution())

	assert.True(t, recs[2].EligibleForSubmission())
}

func TestOpen_MissingRequiredColumns(t *testing.T) {
	header := []string{"CNPJ Unidade", "Remetente CNPJ"}
	path := writeWorkbook(t, header, []any{"1", "2"})

	_, err := Open(path, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrPersistence))
	assert.Contains(t, err.Error(), "cep origem")
	assert.Contains(t, err.Error(), "serie nf")
}

func TestOpen_InvalidControlCell(t *testing.T) {
	header := append(append([]string{}, sourceHeader...), "Protocolo")
	path := writeWorkbook(t, header, append(sampleRow("1001"), "abc"))

	_, err := Open(path, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrPersistence))
	assert.True(t, errors.Is(err, common.ErrMalformedRecord))
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.xlsx"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrPersistence))
}

func TestSave_WritesOnlyAssignedControlCells(t *testing.T) {
	path := writeWorkbook(t, sourceHeader, sampleRow("1001"), sampleRow("1002"))

	s, err := Open(path, Options{})
	require.NoError(t, err)
	recs := s.Records()
	recs[0].SetProtocol(111)
	recs[0].SetShipmentID(555)
	recs[1].SetProtocol(222)
	require.NoError(t, s.Save())
	require.NoError(t, s.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	got := reopened.Records()
	require.Len(t, got, 2)
	assert.Equal(t, int64(111), *got[0].Protocol)
	assert.Equal(t, int64(555), *got[0].ShipmentID)
	assert.Equal(t, int64(222), *got[1].Protocol)
	assert.Nil(t, got[1].ShipmentID)
	assert.Equal(t, "ID-1002", got[1].Text(constants.ColExternalID))
}

func TestOpen_SkipsBlankRows(t *testing.T) {
	blank := make([]any, len(sourceHeader))
	for i := range blank {
		blank[i] = ""
	}
	path := writeWorkbook(t, sourceHeader, sampleRow("1001"), blank, sampleRow("1003"))

	s, err := Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()

	recs := s.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].Row)
	assert.Equal(t, 4, recs[1].Row)
}

func TestProfile_AliasesAndRequired(t *testing.T) {
	profile, err := ParseProfile([]byte(`
sheet: Sheet1
required: [CNPJ Unidade, Nota Fiscal]
aliases:
  nota fiscal: ["NF-e"]
`))
	require.NoError(t, err)
	assert.Equal(t, []constants.Column{constants.ColUnitCNPJ, constants.ColInvoiceNumber}, profile.Required)

	path := writeWorkbook(t, []string{"CNPJ Unidade", "NF-e"}, []any{"11222333000144", "42"})
	s, err := Open(path, Options{Profile: profile})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "42", s.Records()[0].Text(constants.ColInvoiceNumber))
}

func TestOpen_UnknownSheet(t *testing.T) {
	path := writeWorkbook(t, sourceHeader, sampleRow("1001"))
	_, err := Open(path, Options{Sheet: "Devolucoes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Devolucoes")
}

func TestParseInt(t *testing.T) {
	ok := map[string]int64{
		"123":            123,
		" 01310100 ":     1310100,
		"111.0":          111,
		"1.11E+2":        111,
		"55666777000188": 55666777000188,
	}
	for in, want := range ok {
		got, err := ParseInt(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"abc", "12.5", "NaN", "", "1e400"} {
		_, err := ParseInt(in)
		assert.Error(t, err, in)
	}
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embarques.xlsx")

	release, err := Lock(path)
	require.NoError(t, err)

	_, err = Lock(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, release())
	release, err = Lock(path)
	require.NoError(t, err)
	require.NoError(t, release())
}
