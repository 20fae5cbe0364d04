// Package cfdi contiene el cálculo de impuestos y totales, la validación y la
// cadena original del CFDI 4.0.
package cfdi

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// Tolerance diferencia máxima aceptada entre totales almacenados y recalculados.
var Tolerance = decimal.New(1, -2)

// round2 redondea a 2 decimales, mitad hacia arriba (los montos son no negativos).
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ConceptAmount importe de un concepto: round2(cantidad × valor unitario) − descuento.
func ConceptAmount(c entity.Concept) decimal.Decimal {
	return round2(c.Quantity.Mul(c.UnitValue)).Sub(c.Discount)
}

// TaxAmount importe de un impuesto sobre la base dada.
// Tasa: round2(base × tasa). Cuota: la cuota tal cual. Exento: cero.
func TaxAmount(t entity.Tax, base decimal.Decimal) decimal.Decimal {
	switch t.FactorType {
	case sat.FactorRate:
		return round2(base.Mul(t.RateOrQuota))
	case sat.FactorQuota:
		return t.RateOrQuota
	default:
		return decimal.Zero
	}
}

// Calculate llena todos los montos derivados del documento: importe por concepto,
// base e importe por impuesto y totales. El redondeo se aplica por línea antes de
// sumar, igual que el recálculo independiente del PAC.
func Calculate(doc *entity.FiscalDocument) error {
	if doc == nil {
		return fmt.Errorf("cfdi: documento nulo")
	}
	if !doc.IsMutable() {
		return fmt.Errorf("%w: documento en estado %s no admite recálculo", domain.ErrConflict, doc.Status)
	}
	doc.Totals = computeTotals(doc.Concepts, true)
	return nil
}

// computeTotals agrega los montos. Con write=true escribe los montos derivados en los conceptos.
func computeTotals(concepts []entity.Concept, write bool) entity.Totals {
	var tot entity.Totals
	for i := range concepts {
		c := &concepts[i]
		gross := round2(c.Quantity.Mul(c.UnitValue))
		amount := gross.Sub(c.Discount)
		if write {
			c.Amount = amount
		}
		// SubTotal del CFDI es antes de descuentos; el descuento se resta una sola vez en Total.
		tot.Subtotal = tot.Subtotal.Add(gross)
		tot.Discount = tot.Discount.Add(c.Discount)

		for j := range c.Taxes {
			t := &c.Taxes[j]
			taxAmount := TaxAmount(*t, amount)
			if write {
				t.Base = amount
				t.Amount = taxAmount
			}
			switch t.Kind {
			case entity.TaxTransferred:
				tot.TotalTransferred = tot.TotalTransferred.Add(taxAmount)
			case entity.TaxWithheld:
				tot.TotalWithheld = tot.TotalWithheld.Add(taxAmount)
			}
		}
	}
	tot.Total = round2(tot.Subtotal.Sub(tot.Discount).Add(tot.TotalTransferred).Sub(tot.TotalWithheld))
	return tot
}

// Recompute devuelve los totales que corresponden a los datos de entrada de los
// conceptos, sin modificar el documento.
func Recompute(doc *entity.FiscalDocument) entity.Totals {
	concepts := make([]entity.Concept, len(doc.Concepts))
	for i, c := range doc.Concepts {
		c.Taxes = append([]entity.Tax(nil), c.Taxes...)
		concepts[i] = c
	}
	return computeTotals(concepts, false)
}

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
