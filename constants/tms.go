package constants

// Fixed literals of the shipment-return payload accepted by the TMS.
const (
	ReturnLabel          = "DEVOLUCAO"
	VehicleGroup         = "3517"
	DocumentTypeInvoice  = 0
	VoucherTypeReturn    = 3
	DefaultDriverDocType = 1
)

// Endpoint paths relative to the TMS base URL.
const (
	DefaultTMSBaseURL   = "https://ws-tms.lincros.com/api"
	PathLogin           = "/auth/login"
	PathCreateShipments = "/embarque/criarAsync"
	PathRecoverShipment = "/embarque/recuperarDados"
)
