package constants

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column is the canonical (normalized) name of a spreadsheet column.
type Column string

const (
	ColUnitCNPJ       Column = "cnpj unidade"
	ColSenderCNPJ     Column = "remetente cnpj"
	ColRecipientCNPJ  Column = "destinatario cnpj"
	ColCarrierCNPJ    Column = "transportadora cnpj"
	ColOriginCEP      Column = "cep origem"
	ColDestinationCEP Column = "cep destino"
	ColIssuerCNPJ     Column = "cnpj emissor"
	ColInvoiceNumber  Column = "nota fiscal"
	ColInvoiceSeries  Column = "serie nf"
	ColAccessKey      Column = "documento chave acesso"
	ColNote           Column = "observacao"
	ColExternalID     Column = "identificador"
	ColDriverDocument Column = "motorista documento"
	ColDriverName     Column = "motorista nome"
	ColDriverDocType  Column = "motorista tipo documento"

	// control columns, filled by the workflow
	ColProtocol    Column = "protocolo"
	ColShipmentID  Column = "embarque"
	ColFreightSpot Column = "fretespot"
)

// ControlColumns are created on load when absent, in this order.
var ControlColumns = []Column{ColProtocol, ColShipmentID, ColFreightSpot}

// ControlHeaders are the header captions written for control columns the workbook lacked.
var ControlHeaders = map[Column]string{
	ColProtocol:    "Protocolo",
	ColShipmentID:  "Embarque",
	ColFreightSpot: "FreteSPOT",
}

// RequiredColumns are the data columns every row must be able to address.
var RequiredColumns = []Column{
	ColUnitCNPJ,
	ColSenderCNPJ,
	ColRecipientCNPJ,
	ColCarrierCNPJ,
	ColOriginCEP,
	ColDestinationCEP,
	ColIssuerCNPJ,
	ColInvoiceNumber,
	ColInvoiceSeries,
}

var allColumns = []Column{
	ColUnitCNPJ, ColSenderCNPJ, ColRecipientCNPJ, ColCarrierCNPJ,
	ColOriginCEP, ColDestinationCEP, ColIssuerCNPJ, ColInvoiceNumber, ColInvoiceSeries,
	ColAccessKey, ColNote, ColExternalID,
	ColDriverDocument, ColDriverName, ColDriverDocType,
	ColProtocol, ColShipmentID, ColFreightSpot,
}

// builtinAliases covers header spellings seen across the source workbooks.
var builtinAliases = map[string]Column{
	"serie":             ColInvoiceSeries,
	"serie nota fiscal": ColInvoiceSeries,
	"nf":                ColInvoiceNumber,
	"chave acesso":      ColAccessKey,
	"chave de acesso":   ColAccessKey,
	"obs":               ColNote,
	"oid embarque":      ColShipmentID,
	"frete spot":        ColFreightSpot,
}

// AllColumns returns every known canonical column.
func AllColumns() []Column {
	out := make([]Column, len(allColumns))
	copy(out, allColumns)
	return out
}

// NormalizeHeader lowercases, strips accents and collapses whitespace.
func NormalizeHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, h)
	if err != nil {
		folded = h
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Canonicalize maps a raw header caption to its canonical column.
func Canonicalize(header string) (Column, bool) {
	normalized := NormalizeHeader(header)
	if normalized == "" {
		return "", false
	}
	if col, ok := builtinAliases[normalized]; ok {
		return col, true
	}
	for _, col := range allColumns {
		if normalized == string(col) {
			return col, true
		}
	}
	return Column(normalized), false
}
