// Package pdf implementa la representación impresa del CFDI 4.0.
//
// Layout de la página carta:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón social + RFC + régimen │ Serie-Folio + Fecha │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RECEPTOR: Nombre + RFC + Uso CFDI + Domicilio fiscal       │
//	│  COMPROBANTE: Tipo / Método / Forma de pago / Moneda         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Clave | Descripción | V.Unit | Importe        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Subtotal / Descuento / Traslados / Retenidos / TOTAL│
//	│  ─────────────────────────────────────────────────────────  │
//	│  TIMBRE: Folio fiscal + sellos + cadena original + QR SAT    │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
	colorDanger  = &props.Color{Red: 180, Green: 30, Blue: 30}
)

// ── Generator ─────────────────────────────────────────────────────────────────

var _ billing.PDFGenerator = (*MarotoPDFGenerator)(nil)

// MarotoPDFGenerator implementa billing.PDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateFiscalDocumentPDF genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateFiscalDocumentPDF(
	ctx context.Context,
	doc *entity.FiscalDocument,
	company *entity.Company,
	qrData string,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc.Stamp == nil {
		return nil, fmt.Errorf("pdf: el documento %s no tiene timbre", doc.ID)
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.Letter).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("CFDI "+doc.Stamp.Folio, true).
		WithAuthor(company.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(doc, company))
	if doc.Status == entity.StatusCancelled {
		m.AddRows(cancelledRow(doc))
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(receiverRow(doc))
	m.AddRows(voucherRow(doc))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(conceptRows(doc.Concepts)...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(doc))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(stampRows(doc, qrData)...)

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return out.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: emisor (izq) y serie-folio + fecha de emisión (der).
func headerRow(doc *entity.FiscalDocument, company *entity.Company) core.Row {
	number := doc.Series + doc.Number
	if doc.Series != "" && doc.Number != "" {
		number = doc.Series + "-" + doc.Number
	}
	return row.New(22).Add(
		col.New(7).Add(
			text.New(doc.Issuer.Name, props.Text{
				Style: fontstyle.Bold, Size: 12, Color: colorPrimary, Top: 1,
			}),
			text.New("RFC: "+doc.Issuer.RFC, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
			text.New(fmt.Sprintf("Régimen fiscal: %s   |   Lugar de expedición: %s",
				doc.Issuer.FiscalRegime, doc.ExpeditionPostalCode,
			), props.Text{Size: 8, Top: 14, Color: colorGray}),
			text.New(nonEmpty(company.Email, ""), props.Text{Size: 8, Top: 18, Color: colorGray}),
		),
		col.New(5).Add(
			text.New("FACTURA ELECTRÓNICA CFDI 4.0", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(number, "S/N"), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+doc.IssuedAt.Format("2006-01-02 15:04:05"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// cancelledRow: leyenda visible en comprobantes cancelados.
func cancelledRow(doc *entity.FiscalDocument) core.Row {
	msg := "COMPROBANTE CANCELADO"
	if doc.Cancellation != nil && doc.Cancellation.CancelledAt != nil {
		msg += " EL " + doc.Cancellation.CancelledAt.Format("2006-01-02")
	}
	return row.New(8).Add(col.New(12).Add(
		text.New(msg, props.Text{
			Style: fontstyle.Bold, Size: 11, Align: align.Center, Color: colorDanger, Top: 1,
		}),
	))
}

// receiverRow: datos del receptor.
func receiverRow(doc *entity.FiscalDocument) core.Row {
	r := doc.Receiver
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(r.Name, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("RFC: %s   |   Uso CFDI: %s   |   Régimen: %s   |   C.P.: %s",
				r.RFC, r.Usage, r.FiscalRegime, r.PostalCode,
			), props.Text{Size: 8, Top: 11, Color: colorGray}),
		),
	)
}

// voucherRow: atributos del comprobante.
func voucherRow(doc *entity.FiscalDocument) core.Row {
	return row.New(8).Add(col.New(12).Add(
		text.New(fmt.Sprintf("Tipo: %s   |   Método de pago: %s   |   Forma de pago: %s   |   Moneda: %s   |   Exportación: %s",
			doc.Kind, doc.PaymentMethod, doc.PaymentForm, doc.Currency, doc.Export,
		), props.Text{Size: 8, Top: 2, Color: colorGray}),
	))
}

// tableHeaderRow: cabecera de la tabla de conceptos.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).WithStyle(&props.Cell{BackgroundColor: colorPrimary}).Add(
		h("Cant.", 1, align.Center),
		h("Clave", 2, align.Left),
		h("Descripción", 5, align.Left),
		h("V. Unitario", 2, align.Right),
		h("Importe", 2, align.Right),
	)
}

// conceptRows: una fila por concepto.
func conceptRows(concepts []entity.Concept) []core.Row {
	result := make([]core.Row, 0, len(concepts))
	for _, c := range concepts {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				c.Quantity.String(),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(2).Add(text.New(
				c.ProductCode+" / "+c.UnitCode,
				props.Text{Size: 7, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(5).Add(text.New(
				c.Description,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				"$"+formatMoney(c.UnitValue),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(2).Add(text.New(
				"$"+formatMoney(c.Amount),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(doc *entity.FiscalDocument) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(d decimal.Decimal) core.Component {
		return text.New("$"+formatMoney(d), props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grand := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 1,
		})
	}

	t := doc.Totals
	return row.New(30).Add(
		col.New(6),
		col.New(3).Add(
			label("Subtotal:"),
			label("Descuento:"),
			label("Impuestos trasladados:"),
			label("Impuestos retenidos:"),
			grand("TOTAL:"),
		),
		col.New(3).Add(
			value(t.Subtotal),
			value(t.Discount),
			value(t.TotalTransferred),
			value(t.TotalWithheld),
			grand("$"+formatMoney(t.Total)+" "+doc.Currency),
		),
	)
}

// stampRows: folio fiscal, sellos partidos, cadena original del timbre y QR.
func stampRows(doc *entity.FiscalDocument, qrData string) []core.Row {
	s := doc.Stamp
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("TIMBRE FISCAL DIGITAL", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
		row.New(5).Add(col.New(12).Add(
			text.New(fmt.Sprintf("Folio fiscal: %s   |   Certificado SAT: %s   |   Certificado emisor: %s",
				s.Folio, s.AuthorityCertificateNumber, doc.CertificateNumber,
			), props.Text{Size: 7, Top: 1}),
		)),
		row.New(5).Add(col.New(12).Add(
			text.New("Fecha de certificación: "+s.StampedAt.Format("2006-01-02 15:04:05"), props.Text{Size: 7, Top: 1}),
		)),
	}

	rows = append(rows, chunkRows("Sello digital del CFDI:", s.IssuerSeal)...)
	rows = append(rows, chunkRows("Sello del SAT:", s.AuthoritySeal)...)
	rows = append(rows, chunkRows("Cadena original del complemento de certificación digital del SAT:", s.AuthorityChain)...)
	rows = append(rows, row.New(3))

	if qrData != "" {
		rows = append(rows, row.New(45).Add(
			col.New(3).Add(code.NewQr(qrData, props.Rect{
				Percent: 95,
				Center:  true,
			})),
			col.New(9).Add(
				text.New("Escanea el código QR para verificar\neste comprobante en el portal del SAT.", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New("Este documento es una representación impresa de un CFDI", props.Text{
					Style: fontstyle.Bold, Size: 9, Top: 22,
					Left: 3, Color: colorPrimary,
				}),
			),
		))
	}
	return rows
}

// chunkRows título más el valor partido en fragmentos de 110 caracteres.
func chunkRows(title, value string) []core.Row {
	if value == "" {
		return nil
	}
	rows := []core.Row{row.New(5).Add(col.New(12).Add(
		text.New(title, props.Text{Style: fontstyle.Bold, Size: 7, Top: 1}),
	))}
	for _, chunk := range splitEvery(value, 110) {
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(chunk, props.Text{Size: 6, Color: colorGray, Top: 0.5, Left: 2}),
		)))
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatMoney dos decimales con comas de miles.
// Ej: 25000 → "25,000.00", 1234567.5 → "1,234,567.50"
func formatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	n := len(intPart)
	buf := make([]byte, 0, n+n/3+len(frac)+1)
	if d.IsNegative() {
		buf = append(buf, '-')
	}
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, c)
	}
	return string(append(buf, frac...))
}

// splitEvery divide s en trozos de max n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
