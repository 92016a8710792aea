package tms

// Party is a sender, recipient or carrier reference.
type Party struct {
	CNPJ   string   `json:"cnpj"`
	Labels []string `json:"marcadores"`
}

// Document is an invoice attached to the shipment.
type Document struct {
	DocType      int     `json:"tipoDocumento"`
	IssuerCNPJ   int64   `json:"cnpjEmissor"`
	Number       int64   `json:"numeroDocumento"`
	Series       int64   `json:"serie"`
	AccessKey    *string `json:"chaveAcesso"` // null when the row has no key
	VoucherType  int     `json:"tipoConhecimento"`
	VehicleGroup string  `json:"grupoVeiculo"`
}

// Driver identifies who carries the return.
type Driver struct {
	Document string `json:"documento"`
	Name     string `json:"nome"`
	DocType  int    `json:"tipoDocumento"`
}

// Shipment is one element of the criarAsync batch.
type Shipment struct {
	UnitCNPJ       string     `json:"cnpjUnidade"`
	ComputeLoad    bool       `json:"calcularcarga"`
	GroupDocuments bool       `json:"agruparConhecimentos"`
	Sender         Party      `json:"remetente"`
	Recipient      Party      `json:"destinatario"`
	Carrier        Party      `json:"transportadora"`
	OriginCEP      int64      `json:"cepOrigem"`
	DestinationCEP int64      `json:"cepDestino"`
	Documents      []Document `json:"documentos"`
	Labels         []string   `json:"marcadores"`
	VehicleGroup   string     `json:"grupoVeiculo"`
	Note           string     `json:"observacao"`
	ExternalID     string     `json:"identificador"`
	Drivers        []Driver   `json:"motoristas"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"senha"`
}

type createRequest struct {
	Shipments []Shipment `json:"embarques"`
}

type createResponse struct {
	Protocols []int64 `json:"protocolo"`
}

type recoverRequest struct {
	Protocol int64 `json:"protocolo"`
}

type recoverResponse struct {
	Shipment struct {
		OID int64 `json:"oidEmbarque"`
	} `json:"embarque"`
}
