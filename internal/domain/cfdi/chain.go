package cfdi

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

const (
	chainDelimiter = "|"
	chainBoundary  = "||"
	// IssuedAtLayout formato de fecha de emisión (hora local del lugar de expedición, sin zona).
	IssuedAtLayout = "2006-01-02T15:04:05"
	// VerificationURL servicio público de verificación de comprobantes del SAT.
	VerificationURL = "https://verificacfdi.facturaelectronica.sat.gob.mx/default.aspx"
)

var (
	// ErrChainMismatch la cadena recalculada no coincide con la sellada.
	ErrChainMismatch = errors.New("cfdi: la cadena original no coincide con el documento")
	// ErrReservedDelimiter un campo de texto contiene el separador '|'.
	ErrReservedDelimiter = errors.New("cfdi: campo contiene el separador reservado '|'")

	whitespaceRun = regexp.MustCompile(`\s+`)

	// tokenNamespace espacio de nombres para los tokens de idempotencia (UUIDv5).
	tokenNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:cfdi:timbrado"))
)

// chainBuilder acumula segmentos de la cadena original.
type chainBuilder struct {
	segments []string
	err      error
}

// text normaliza espacios (secuencias a un solo espacio, sin extremos).
// Los segmentos vacíos se conservan.
func (b *chainBuilder) text(field, v string) {
	v = strings.TrimSpace(whitespaceRun.ReplaceAllString(v, " "))
	if strings.Contains(v, chainDelimiter) && b.err == nil {
		b.err = fmt.Errorf("%w: %s", ErrReservedDelimiter, field)
	}
	b.segments = append(b.segments, v)
}

func (b *chainBuilder) amount(d decimal.Decimal) {
	b.segments = append(b.segments, d.StringFixed(2))
}

func (b *chainBuilder) rate(d decimal.Decimal) {
	b.segments = append(b.segments, d.StringFixed(6))
}

// exact cantidades y valores unitarios con su precisión original.
func (b *chainBuilder) exact(d decimal.Decimal) {
	b.segments = append(b.segments, d.String())
}

func (b *chainBuilder) String() string {
	return chainBoundary + strings.Join(b.segments, chainDelimiter) + chainBoundary
}

// OriginalChain serializa el documento en la cadena original: segmentos separados
// por '|', delimitada por '||' al inicio y al final. Orden: versión, encabezado,
// emisor, receptor, conceptos con sus impuestos (trasladados antes que retenidos),
// totales y atributos de pago. El mismo documento produce siempre la misma cadena.
func OriginalChain(doc *entity.FiscalDocument) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("cfdi: documento nulo")
	}
	b := &chainBuilder{}

	b.text("version", sat.CFDIVersion)
	b.text("serie", doc.Series)
	b.text("folio", doc.Number)
	if doc.IssuedAt.IsZero() {
		b.text("fecha", "")
	} else {
		b.text("fecha", doc.IssuedAt.Format(IssuedAtLayout))
	}
	b.text("no_certificado", doc.CertificateNumber)
	b.text("tipo_comprobante", doc.Kind)
	b.text("moneda", doc.Currency)
	b.text("exportacion", doc.Export)
	b.text("lugar_expedicion", doc.ExpeditionPostalCode)

	b.text("emisor.rfc", sat.NormalizeRFC(doc.Issuer.RFC))
	b.text("emisor.nombre", doc.Issuer.Name)
	b.text("emisor.regimen_fiscal", doc.Issuer.FiscalRegime)

	b.text("receptor.rfc", sat.NormalizeRFC(doc.Receiver.RFC))
	b.text("receptor.nombre", doc.Receiver.Name)
	b.text("receptor.domicilio_fiscal", doc.Receiver.PostalCode)
	b.text("receptor.regimen_fiscal", doc.Receiver.FiscalRegime)
	b.text("receptor.uso_cfdi", doc.Receiver.Usage)

	for i, c := range doc.Concepts {
		p := fmt.Sprintf("conceptos[%d]", i)
		b.text(p+".clave_prod_serv", c.ProductCode)
		b.text(p+".no_identificacion", c.Identification)
		b.exact(c.Quantity)
		b.text(p+".clave_unidad", c.UnitCode)
		b.text(p+".unidad", c.Unit)
		b.text(p+".descripcion", c.Description)
		b.exact(c.UnitValue)
		b.amount(c.Amount)
		b.amount(c.Discount)
		b.text(p+".objeto_imp", c.TaxObject)
		for _, kind := range []string{entity.TaxTransferred, entity.TaxWithheld} {
			for _, t := range c.Taxes {
				if t.Kind != kind {
					continue
				}
				b.text(p+".impuesto.tipo", t.Kind)
				b.amount(t.Base)
				b.text(p+".impuesto", t.Code)
				b.text(p+".tipo_factor", t.FactorType)
				if t.FactorType == sat.FactorExempt {
					// Exento: sin tasa ni importe
					b.text(p+".tasa_o_cuota", "")
					b.text(p+".importe", "")
					continue
				}
				b.rate(t.RateOrQuota)
				b.amount(t.Amount)
			}
		}
	}

	b.amount(doc.Totals.Subtotal)
	b.amount(doc.Totals.Discount)
	b.amount(doc.Totals.TotalTransferred)
	b.amount(doc.Totals.TotalWithheld)
	b.amount(doc.Totals.Total)

	b.text("metodo_pago", doc.PaymentMethod)
	b.text("forma_pago", doc.PaymentForm)

	if b.err != nil {
		return "", b.err
	}
	return b.String(), nil
}

// VerifyChain recalcula la cadena de un documento timbrado y la compara con la sellada.
func VerifyChain(doc *entity.FiscalDocument) error {
	if doc == nil || doc.Stamp == nil || doc.Stamp.OriginalChain == "" {
		return fmt.Errorf("%w: el documento no tiene cadena sellada", ErrChainMismatch)
	}
	chain, err := OriginalChain(doc)
	if err != nil {
		return err
	}
	if chain != doc.Stamp.OriginalChain {
		return ErrChainMismatch
	}
	return nil
}

// ChainDigest SHA-256 en hexadecimal de la cadena original.
func ChainDigest(chain string) string {
	sum := sha256.Sum256([]byte(chain))
	return hex.EncodeToString(sum[:])
}

// IdempotencyToken token determinístico por (documento, intento). Reintentar el
// mismo intento reutiliza el token; el PAC lo usa para no timbrar dos veces.
func IdempotencyToken(documentID string, attempt int) string {
	return uuid.NewSHA1(tokenNamespace, []byte(fmt.Sprintf("%s:%d", documentID, attempt))).String()
}

// VerificationQR datos del código QR de la representación impresa:
// folio fiscal, RFC emisor, RFC receptor, total y los últimos 8 caracteres del sello.
func VerificationQR(doc *entity.FiscalDocument) (string, error) {
	if doc == nil || !doc.IsStamped() {
		return "", fmt.Errorf("cfdi: el documento no está timbrado")
	}
	seal := doc.Stamp.IssuerSeal
	if len(seal) > 8 {
		seal = seal[len(seal)-8:]
	}
	q := url.Values{}
	q.Set("id", doc.Stamp.Folio)
	q.Set("re", sat.NormalizeRFC(doc.Issuer.RFC))
	q.Set("rr", sat.NormalizeRFC(doc.Receiver.RFC))
	q.Set("tt", doc.Totals.Total.StringFixed(6))
	q.Set("fe", seal)
	return VerificationURL + "?" + q.Encode(), nil
}
