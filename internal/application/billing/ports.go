package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// =============================================================================
// PAC (proveedor autorizado de certificación)
// =============================================================================

// StampRequest solicitud de timbrado. Token es el token de idempotencia del intento:
// el PAC debe reconocer un reenvío con el mismo token como duplicado.
type StampRequest struct {
	Token             string
	OriginalChain     string
	IssuerSeal        string
	CertificateNumber string
	Document          *entity.FiscalDocument // copia de solo lectura para renderizar el XML
}

// StampResult timbre devuelto por el PAC.
type StampResult struct {
	Folio                      string
	StampedAt                  time.Time
	IssuerSeal                 string
	AuthoritySeal              string
	AuthorityCertificateNumber string
	AuthorityChain             string
	Raw                        string
}

// CancelOutcome resultado lógico de una solicitud de cancelación.
type CancelOutcome string

const (
	CancelAccepted          CancelOutcome = "accepted"
	CancelAlreadyCancelled  CancelOutcome = "already_cancelled"
	CancelPendingAcceptance CancelOutcome = "pending_acceptance" // el receptor puede aceptar o rechazar
	CancelRejected          CancelOutcome = "rejected"
)

// AuthorityCancelRequest solicitud de cancelación hacia el PAC.
type AuthorityCancelRequest struct {
	IssuerRFC    string
	ReceiverRFC  string
	Folio        string
	Motive       string
	RelatedFolio string
	Total        decimal.Decimal
}

// CancelResult respuesta del PAC a una cancelación.
type CancelResult struct {
	Outcome     CancelOutcome
	Reason      string
	CancelledAt time.Time
	Raw         string
}

// CertificationAuthority puerto de salida hacia el PAC. Las fallas se reportan como
// *domain.AuthorityError (transitoria o definitiva).
type CertificationAuthority interface {
	Stamp(ctx context.Context, req StampRequest) (*StampResult, error)
	// QueryStatus consulta por token de idempotencia. found=false si el PAC no
	// conoce el token (nunca timbró ese intento).
	QueryStatus(ctx context.Context, token string) (result *StampResult, found bool, err error)
	Cancel(ctx context.Context, req AuthorityCancelRequest) (*CancelResult, error)
}

// Sealer sella la cadena original con el CSD del emisor. La gestión de llaves vive
// en infraestructura; el motor solo invoca la capacidad.
type Sealer interface {
	CertificateNumber() string
	Seal(originalChain string) (string, error)
}

// =============================================================================
// Concurrencia
// =============================================================================

// Leaser concede un arrendamiento exclusivo por clave (un documento).
// Acquire bloquea hasta obtenerlo o hasta que ctx expire; release es idempotente.
type Leaser interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// =============================================================================
// Datos comerciales
// =============================================================================

// Order orden de venta (POS / restaurante) que origina el comprobante.
type Order struct {
	ID          string
	TenantID    string
	LocationID  string
	CustomerID  string
	PaymentForm string
	Lines       []OrderLine
}

// OrderLine línea de la orden. TaxRate es la tasa de IVA trasladado (0 = tasa cero);
// Exempt marca la línea como exenta de IVA.
type OrderLine struct {
	SKU         string
	Description string
	ProductCode string
	UnitCode    string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	TaxRate     decimal.Decimal
	Exempt      bool
}

// OrderSource puerto de solo lectura hacia el módulo de órdenes.
type OrderSource interface {
	GetOrder(ctx context.Context, tenantID, orderID string) (*Order, error)
}

// NumberSequence asigna el folio interno consecutivo por serie.
type NumberSequence interface {
	Next(ctx context.Context, tenantID, series string) (int64, error)
}

// PDFGenerator renderiza la representación impresa de un CFDI timbrado.
type PDFGenerator interface {
	GenerateFiscalDocumentPDF(ctx context.Context, doc *entity.FiscalDocument, company *entity.Company, qrData string) ([]byte, error)
}
