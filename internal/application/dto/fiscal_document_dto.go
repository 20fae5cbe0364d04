package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateFiscalDocumentRequest body para POST /api/fiscal-documents.
// Los conceptos vienen en el cuerpo o se toman de la orden (order_id). El receptor
// viene de customer_id, del objeto receiver o, si falta, es público en general.
type CreateFiscalDocumentRequest struct {
	LocationID    string           `json:"location_id,omitempty"`
	OrderID       string           `json:"order_id,omitempty"`
	CustomerID    string           `json:"customer_id,omitempty"`
	Receiver      *PartyRequest    `json:"receiver,omitempty"`
	Kind          string           `json:"kind,omitempty" validate:"omitempty,oneof=I E T N P"`
	PaymentMethod string           `json:"payment_method,omitempty" validate:"omitempty,oneof=PUE PPD"`
	PaymentForm   string           `json:"payment_form,omitempty" validate:"omitempty,len=2,numeric"`
	Currency      string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	Series        string           `json:"series,omitempty" validate:"omitempty,max=25"`
	Concepts      []ConceptRequest `json:"concepts,omitempty" validate:"omitempty,dive"`
}

// PartyRequest receptor explícito.
type PartyRequest struct {
	RFC          string `json:"rfc" validate:"required,min=12,max=13"`
	Name         string `json:"name" validate:"required,max=300"`
	PostalCode   string `json:"postal_code" validate:"required,len=5,numeric"`
	FiscalRegime string `json:"fiscal_regime" validate:"required,len=3,numeric"`
	Usage        string `json:"usage" validate:"required,min=3,max=4"`
}

// ConceptRequest línea del comprobante. Los importes los calcula el servidor.
type ConceptRequest struct {
	ProductCode    string          `json:"product_code" validate:"required,len=8,numeric"`
	Identification string          `json:"identification,omitempty" validate:"omitempty,max=100"`
	UnitCode       string          `json:"unit_code" validate:"required,max=3"`
	Unit           string          `json:"unit,omitempty" validate:"omitempty,max=20"`
	Description    string          `json:"description" validate:"required,max=1000"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitValue      decimal.Decimal `json:"unit_value"`
	Discount       decimal.Decimal `json:"discount"`
	TaxObject      string          `json:"tax_object,omitempty" validate:"omitempty,oneof=01 02 03 04"`
	Taxes          []TaxRequest    `json:"taxes,omitempty" validate:"omitempty,dive"`
}

// TaxRequest impuesto de un concepto (sin importe).
type TaxRequest struct {
	Kind        string          `json:"kind" validate:"required,oneof=TRASLADO RETENCION"`
	Code        string          `json:"code" validate:"required,oneof=001 002 003"`
	FactorType  string          `json:"factor_type" validate:"required,oneof=Tasa Cuota Exento"`
	RateOrQuota decimal.Decimal `json:"rate_or_quota"`
}

// CancelFiscalDocumentRequest body para POST /api/fiscal-documents/:id/cancel.
type CancelFiscalDocumentRequest struct {
	Motive       string `json:"motive" validate:"required,oneof=01 02 03 04"`
	RelatedFolio string `json:"related_folio,omitempty" validate:"omitempty,len=36"`
}

// ReceiverResponseRequest body para POST /api/fiscal-documents/:id/receiver-response.
type ReceiverResponseRequest struct {
	Accepted *bool `json:"accepted" validate:"required"`
}

// FiscalDocumentResponse documento con sus montos, timbre y cancelación.
type FiscalDocumentResponse struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	LocationID    string            `json:"location_id,omitempty"`
	OrderRef      string            `json:"order_ref,omitempty"`
	Kind          string            `json:"kind"`
	PaymentMethod string            `json:"payment_method"`
	PaymentForm   string            `json:"payment_form"`
	Currency      string            `json:"currency"`
	Series        string            `json:"series,omitempty"`
	Number        string            `json:"number,omitempty"`
	IssuedAt      *time.Time        `json:"issued_at,omitempty"`
	Issuer        PartyResponse     `json:"issuer"`
	Receiver      PartyResponse     `json:"receiver"`
	Concepts      []ConceptResponse `json:"concepts"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Discount      decimal.Decimal   `json:"discount"`
	Transferred   decimal.Decimal   `json:"total_transferred"`
	Withheld      decimal.Decimal   `json:"total_withheld"`
	Total         decimal.Decimal   `json:"total"`
	Status        string            `json:"status"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	Violations    []ViolationDTO    `json:"violations,omitempty"`
	Attempts      int               `json:"attempts"`
	Folio         string            `json:"folio,omitempty"`
	StampedAt     *time.Time        `json:"stamped_at,omitempty"`
	QRData        string            `json:"qr_data,omitempty"`
	Cancellation  *CancellationDTO  `json:"cancellation,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// PartyResponse emisor o receptor.
type PartyResponse struct {
	RFC          string `json:"rfc"`
	Name         string `json:"name"`
	FiscalRegime string `json:"fiscal_regime"`
	PostalCode   string `json:"postal_code,omitempty"`
	Usage        string `json:"usage,omitempty"`
}

// ConceptResponse concepto con montos calculados.
type ConceptResponse struct {
	ProductCode string          `json:"product_code"`
	UnitCode    string          `json:"unit_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	Discount    decimal.Decimal `json:"discount"`
	Amount      decimal.Decimal `json:"amount"`
	TaxObject   string          `json:"tax_object"`
	Taxes       []TaxResponse   `json:"taxes,omitempty"`
}

// TaxResponse impuesto con base e importe.
type TaxResponse struct {
	Kind        string          `json:"kind"`
	Code        string          `json:"code"`
	FactorType  string          `json:"factor_type"`
	RateOrQuota decimal.Decimal `json:"rate_or_quota"`
	Base        decimal.Decimal `json:"base"`
	Amount      decimal.Decimal `json:"amount"`
}

// ViolationDTO violación de validación tal como la reporta el validador.
type ViolationDTO struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CancellationDTO metadatos de cancelación.
type CancellationDTO struct {
	Motive             string     `json:"motive"`
	RelatedFolio       string     `json:"related_folio,omitempty"`
	RequestedAt        time.Time  `json:"requested_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	SubStatus          string     `json:"sub_status,omitempty"`
	AcceptanceDeadline *time.Time `json:"acceptance_deadline,omitempty"`
	Message            string     `json:"message,omitempty"`
}

// FiscalDocumentStatusDTO respuesta ligera para polling
// GET /api/fiscal-documents/:id/status.
type FiscalDocumentStatusDTO struct {
	ID        string `json:"id"`
	Status    string `json:"status"` // DRAFT|PENDING|STAMPED|ERROR|CANCELLATION_REQUESTED|CANCELLED
	SubStatus string `json:"sub_status,omitempty"`
	Folio     string `json:"folio,omitempty"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

// FiscalDocumentListResponse lista paginada.
type FiscalDocumentListResponse struct {
	Items []FiscalDocumentResponse `json:"items"`
	Page  PageResponse             `json:"page"`
}
