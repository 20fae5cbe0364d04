package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de un CFDI.
const (
	StatusDraft                 = "DRAFT"                  // Editable; aún sin enviar al PAC
	StatusPending               = "PENDING"                // Enviado al PAC, respuesta pendiente
	StatusStamped               = "STAMPED"                // Timbrado; partes, conceptos y totales inmutables
	StatusError                 = "ERROR"                  // Falló validación o timbrado; editable y reintentable
	StatusCancellationRequested = "CANCELLATION_REQUESTED" // Solicitud de cancelación en curso
	StatusCancelled             = "CANCELLED"              // Cancelado ante el SAT
)

// Sub-estados de la cancelación (aceptación del receptor).
const (
	CancellationAwaitingReceiver   = "PENDING_ACCEPTANCE"
	CancellationAcceptedByReceiver = "ACCEPTED"
	CancellationRejectedByReceiver = "REJECTED"
	CancellationImplicitAcceptance = "IMPLICIT_ACCEPTANCE"
	CancellationRejectedByPAC      = "REJECTED_BY_AUTHORITY"
)

// Tipos de impuesto por concepto.
const (
	TaxTransferred = "TRASLADO"
	TaxWithheld    = "RETENCION"
)

// Clasificación del último error de timbrado.
const (
	ErrorKindValidation = "VALIDATION" // violaciones; nunca llegó al PAC
	ErrorKindTransient  = "TRANSIENT"  // el PAC pudo haber timbrado; consultar antes de reenviar
	ErrorKindDefinitive = "DEFINITIVE" // rechazo del PAC o falla de sellado
)

// Tipos de violación de validación.
const (
	ViolationStructural = "STRUCTURAL"
	ViolationCatalog    = "CATALOG"
	ViolationArithmetic = "ARITHMETIC"
)

// transitions máquina de estados de timbrado y cancelación.
// ERROR→STAMPED y PENDING→STAMPED cubren la conciliación con el PAC (respuesta perdida).
var transitions = map[string]map[string]bool{
	StatusDraft:                 {StatusPending: true, StatusError: true},
	StatusPending:               {StatusStamped: true, StatusError: true},
	StatusError:                 {StatusPending: true, StatusStamped: true, StatusError: true},
	StatusStamped:               {StatusCancellationRequested: true},
	StatusCancellationRequested: {StatusCancelled: true, StatusStamped: true},
}

// Party emisor o receptor del comprobante.
type Party struct {
	RFC          string `json:"rfc"`
	Name         string `json:"name"`
	FiscalRegime string `json:"fiscal_regime"`
	PostalCode   string `json:"postal_code,omitempty"` // domicilio fiscal (solo receptor)
	Usage        string `json:"usage,omitempty"`       // uso CFDI (solo receptor)
}

// Tax impuesto trasladado o retenido de un concepto.
type Tax struct {
	Kind        string          `json:"kind"`        // TRASLADO | RETENCION
	Code        string          `json:"code"`        // 001 ISR, 002 IVA, 003 IEPS
	FactorType  string          `json:"factor_type"` // Tasa | Cuota | Exento
	RateOrQuota decimal.Decimal `json:"rate_or_quota"`
	Base        decimal.Decimal `json:"base"`
	Amount      decimal.Decimal `json:"amount"`
}

// Concept línea del comprobante.
type Concept struct {
	ProductCode    string          `json:"product_code"` // c_ClaveProdServ (8 dígitos)
	Identification string          `json:"identification,omitempty"`
	UnitCode       string          `json:"unit_code"` // c_ClaveUnidad
	Unit           string          `json:"unit,omitempty"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitValue      decimal.Decimal `json:"unit_value"`
	Discount       decimal.Decimal `json:"discount"`
	Amount         decimal.Decimal `json:"amount"` // round2(cantidad × valor unitario) − descuento
	TaxObject      string          `json:"tax_object"`
	Taxes          []Tax           `json:"taxes,omitempty"`
}

// Gross importe antes de descuento.
func (c Concept) Gross() decimal.Decimal {
	return c.Amount.Add(c.Discount)
}

// Totals montos derivados del comprobante; nunca los fija el llamador.
type Totals struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	TotalTransferred decimal.Decimal `json:"total_transferred"`
	TotalWithheld    decimal.Decimal `json:"total_withheld"`
	Total            decimal.Decimal `json:"total"`
}

// Stamp artefactos del timbrado; se escriben junto con el cambio a STAMPED.
type Stamp struct {
	Folio                      string    `json:"folio"` // UUID fiscal asignado por el PAC
	StampedAt                  time.Time `json:"stamped_at"`
	IssuerSeal                 string    `json:"issuer_seal"`
	AuthorityCertificateNumber string    `json:"authority_certificate_number"`
	AuthoritySeal              string    `json:"authority_seal"`
	AuthorityChain             string    `json:"authority_chain"` // cadena original del complemento de timbrado
	OriginalChain              string    `json:"original_chain"`  // cadena original sellada por el emisor
}

// StampingState bitácora de intentos de timbrado.
type StampingState struct {
	Attempts    int        `json:"attempts"` // contador monotónico; deriva el token de idempotencia
	Token       string     `json:"token,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Retryable   bool       `json:"retryable"`
	RawResponse string     `json:"raw_response,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// Cancellation metadatos de cancelación.
type Cancellation struct {
	Motive             string     `json:"motive"`
	RelatedFolio       string     `json:"related_folio,omitempty"`
	RequestedAt        time.Time  `json:"requested_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	SubStatus          string     `json:"sub_status,omitempty"`
	AcceptanceDeadline *time.Time `json:"acceptance_deadline,omitempty"`
	Message            string     `json:"message,omitempty"`
}

// Violation hallazgo del validador de documentos.
type Violation struct {
	Kind    string `json:"kind"`  // STRUCTURAL | CATALOG | ARITHMETIC
	Field   string `json:"field"` // ruta del campo, ej. conceptos[0].cantidad
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FiscalDocument CFDI; raíz del agregado. Su dueño es el tenant/sucursal.
type FiscalDocument struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	LocationID string `json:"location_id"`
	OrderRef   string `json:"order_ref,omitempty"`

	Kind                 string    `json:"kind"`           // c_TipoDeComprobante
	PaymentMethod        string    `json:"payment_method"` // PUE | PPD
	PaymentForm          string    `json:"payment_form"`   // c_FormaPago
	Currency             string    `json:"currency"`
	Export               string    `json:"export"`
	ExpeditionPostalCode string    `json:"expedition_postal_code"`
	Series               string    `json:"series,omitempty"`
	Number               string    `json:"number,omitempty"`
	IssuedAt             time.Time `json:"issued_at"`          // se fija al pasar a PENDING
	CertificateNumber    string    `json:"certificate_number"` // No. de certificado del emisor; se fija al sellar

	Issuer   Party     `json:"issuer"`
	Receiver Party     `json:"receiver"`
	Concepts []Concept `json:"concepts"`
	Totals   Totals    `json:"totals"`

	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Violations   []Violation   `json:"violations,omitempty"`
	Stamp        *Stamp        `json:"stamp,omitempty"`
	Stamping     StampingState `json:"stamping"`
	Cancellation *Cancellation `json:"cancellation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMutable indica si partes, conceptos y totales pueden modificarse.
func (d *FiscalDocument) IsMutable() bool {
	return d.Status == StatusDraft || d.Status == StatusError
}

// IsEditable indica si el llamador puede reemplazar partes y conceptos. Un ERROR
// transitorio no es editable: el PAC pudo haber timbrado el contenido enviado.
func (d *FiscalDocument) IsEditable() bool {
	if d.Status == StatusError && d.Stamping.ErrorKind == ErrorKindTransient {
		return false
	}
	return d.IsMutable()
}

// IsStamped indica si el documento ya cuenta con folio fiscal.
func (d *FiscalDocument) IsStamped() bool {
	return d.Stamp != nil && d.Stamp.Folio != ""
}

// CanTransition valida un cambio de estado contra la máquina de estados.
func (d *FiscalDocument) CanTransition(to string) bool {
	return transitions[d.Status][to]
}

// Clone copia profunda; el store nunca comparte estado mutable con el llamador.
func (d *FiscalDocument) Clone() *FiscalDocument {
	if d == nil {
		return nil
	}
	c := *d
	c.Concepts = make([]Concept, len(d.Concepts))
	for i, concept := range d.Concepts {
		concept.Taxes = append([]Tax(nil), concept.Taxes...)
		c.Concepts[i] = concept
	}
	c.Violations = append([]Violation(nil), d.Violations...)
	if d.Stamp != nil {
		s := *d.Stamp
		c.Stamp = &s
	}
	if d.Stamping.NextRetryAt != nil {
		t := *d.Stamping.NextRetryAt
		c.Stamping.NextRetryAt = &t
	}
	if d.Cancellation != nil {
		cc := *d.Cancellation
		if d.Cancellation.CancelledAt != nil {
			t := *d.Cancellation.CancelledAt
			cc.CancelledAt = &t
		}
		if d.Cancellation.AcceptanceDeadline != nil {
			t := *d.Cancellation.AcceptanceDeadline
			cc.AcceptanceDeadline = &t
		}
		c.Cancellation = &cc
	}
	return &c
}
