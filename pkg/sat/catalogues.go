// Package sat contiene catálogos y validaciones de formato alineados al Anexo 20
// del CFDI 4.0 (SAT, México). Los catálogos grandes (productos, unidades) se
// consultan vía CatalogLookup; aquí solo viven los conjuntos cerrados pequeños.
package sat

// Versión del comprobante que emite este módulo.
const CFDIVersion = "4.0"

// =============================================================================
// c_TipoDeComprobante
// =============================================================================

const (
	DocumentKindIncome   = "I" // Ingreso
	DocumentKindEgress   = "E" // Egreso (nota de crédito)
	DocumentKindTransfer = "T" // Traslado
	DocumentKindPayroll  = "N" // Nómina
	DocumentKindPayment  = "P" // Recepción de pagos
)

// ValidDocumentKinds tipos de comprobante válidos.
var ValidDocumentKinds = map[string]bool{
	DocumentKindIncome:  true, DocumentKindEgress: true, DocumentKindTransfer: true,
	DocumentKindPayroll: true, DocumentKindPayment: true,
}

// =============================================================================
// c_MetodoPago
// =============================================================================

const (
	PaymentMethodSingle      = "PUE" // Pago en una sola exhibición
	PaymentMethodInstallment = "PPD" // Pago en parcialidades o diferido
)

var ValidPaymentMethods = map[string]bool{
	PaymentMethodSingle:      true,
	PaymentMethodInstallment: true,
}

// =============================================================================
// c_FormaPago
// =============================================================================

const (
	PaymentFormCash        = "01" // Efectivo
	PaymentFormCheck       = "02" // Cheque nominativo
	PaymentFormTransfer    = "03" // Transferencia electrónica de fondos
	PaymentFormCreditCard  = "04" // Tarjeta de crédito
	PaymentFormDebitCard   = "28" // Tarjeta de débito
	PaymentFormToBeDefined = "99" // Por definir (obligatoria con PPD)
)

// ValidPaymentForms catálogo c_FormaPago completo.
var ValidPaymentForms = map[string]bool{
	"01": true, "02": true, "03": true, "04": true, "05": true, "06": true,
	"08": true, "12": true, "13": true, "14": true, "15": true, "17": true,
	"23": true, "24": true, "25": true, "26": true, "27": true, "28": true,
	"29": true, "30": true, "31": true, "99": true,
}

// =============================================================================
// c_Impuesto y c_TipoFactor
// =============================================================================

const (
	TaxCodeISR  = "001"
	TaxCodeIVA  = "002"
	TaxCodeIEPS = "003"
)

var ValidTaxCodes = map[string]bool{
	TaxCodeISR: true, TaxCodeIVA: true, TaxCodeIEPS: true,
}

const (
	FactorRate   = "Tasa"
	FactorQuota  = "Cuota"
	FactorExempt = "Exento"
)

var ValidFactorTypes = map[string]bool{
	FactorRate: true, FactorQuota: true, FactorExempt: true,
}

// =============================================================================
// c_ObjetoImp
// =============================================================================

const (
	TaxObjectNo       = "01" // No objeto de impuesto
	TaxObjectYes      = "02" // Sí objeto de impuesto
	TaxObjectNoDetail = "03" // Sí objeto, no obligado al desglose
	TaxObjectYesNoTax = "04" // Sí objeto, no causa impuesto
)

var ValidTaxObjects = map[string]bool{
	TaxObjectNo: true, TaxObjectYes: true, TaxObjectNoDetail: true, TaxObjectYesNoTax: true,
}

// =============================================================================
// Motivos de cancelación (Anexo 20, cancelación 2022)
// =============================================================================

const (
	MotiveErrorsWithRelation    = "01" // Emitido con errores con relación (requiere folio sustituto)
	MotiveErrorsWithoutRelation = "02" // Emitido con errores sin relación
	MotiveOperationNotPerformed = "03" // No se llevó a cabo la operación
	MotiveGlobalInvoice         = "04" // Operación nominativa relacionada en factura global
)

var ValidCancellationMotives = map[string]bool{
	MotiveErrorsWithRelation:    true, MotiveErrorsWithoutRelation: true,
	MotiveOperationNotPerformed: true, MotiveGlobalInvoice: true,
}

// MotiveRequiresRelatedFolio indica si el motivo exige el folio fiscal del comprobante que sustituye.
func MotiveRequiresRelatedFolio(motive string) bool {
	return motive == MotiveErrorsWithRelation
}

// =============================================================================
// Receptores genéricos y moneda
// =============================================================================

const (
	RFCGenericNational = "XAXX010101000" // Público en general
	RFCGenericForeign  = "XEXX010101000" // Residente en el extranjero

	CurrencyMXN      = "MXN"
	ExportNotApplies = "01"

	UsageNoFiscalEffects      = "S01" // Sin efectos fiscales
	RegimeNoFiscalObligations = "616" // Sin obligaciones fiscales
)

// =============================================================================
// c_RegimenFiscal y c_UsoCFDI (conjunto por defecto del catálogo estático)
// =============================================================================

var defaultFiscalRegimes = []string{
	"601", "603", "605", "606", "607", "608", "610", "611", "612", "614",
	"615", "616", "620", "621", "622", "623", "624", "625", "626",
}

var defaultUsages = []string{
	"G01", "G02", "G03", "I01", "I02", "I03", "I04", "I05", "I06", "I07", "I08",
	"D01", "D02", "D03", "D04", "D05", "D06", "D07", "D08", "D09", "D10",
	"S01", "CP01", "CN01",
}
