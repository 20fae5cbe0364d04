package cfdi_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func iva16() entity.Tax {
	return entity.Tax{Kind: entity.TaxTransferred, Code: sat.TaxCodeIVA, FactorType: sat.FactorRate, RateOrQuota: dec("0.160000")}
}

// ──────────────────────────────────────────────────────────────────────────────
// Vector de referencia: {cant: 2, valor unitario: 45.005} → importe 90.01
// (mitad hacia arriba), IVA 16% → 14.40, subtotal 90.01, total 104.41.
// ──────────────────────────────────────────────────────────────────────────────

func TestCalculate_VectorReferencia(t *testing.T) {
	doc := &entity.FiscalDocument{
		Status: entity.StatusDraft,
		Concepts: []entity.Concept{{
			Quantity:  dec("2"),
			UnitValue: dec("45.005"),
			Taxes:     []entity.Tax{iva16()},
		}},
	}
	require.NoError(t, cfdi.Calculate(doc))

	c := doc.Concepts[0]
	assert.True(t, dec("90.01").Equal(c.Amount), "importe: %s", c.Amount)
	assert.True(t, dec("90.01").Equal(c.Taxes[0].Base), "base: %s", c.Taxes[0].Base)
	assert.True(t, dec("14.40").Equal(c.Taxes[0].Amount), "IVA: %s", c.Taxes[0].Amount)
	assert.True(t, dec("90.01").Equal(doc.Totals.Subtotal))
	assert.True(t, dec("14.40").Equal(doc.Totals.TotalTransferred))
	assert.True(t, decimal.Zero.Equal(doc.Totals.TotalWithheld))
	assert.True(t, dec("104.41").Equal(doc.Totals.Total), "total: %s", doc.Totals.Total)
}

func TestCalculate_DescuentoYRetenciones(t *testing.T) {
	doc := &entity.FiscalDocument{
		Status: entity.StatusDraft,
		Concepts: []entity.Concept{{
			Quantity:  dec("1"),
			UnitValue: dec("1000"),
			Discount:  dec("100"),
			Taxes: []entity.Tax{
				iva16(),
				{Kind: entity.TaxWithheld, Code: sat.TaxCodeISR, FactorType: sat.FactorRate, RateOrQuota: dec("0.100000")},
				{Kind: entity.TaxWithheld, Code: sat.TaxCodeIVA, FactorType: sat.FactorRate, RateOrQuota: dec("0.106667")},
			},
		}},
	}
	require.NoError(t, cfdi.Calculate(doc))

	c := doc.Concepts[0]
	assert.True(t, dec("900").Equal(c.Amount), "el importe descuenta el descuento")
	assert.True(t, dec("144.00").Equal(c.Taxes[0].Amount))
	assert.True(t, dec("90.00").Equal(c.Taxes[1].Amount))
	assert.True(t, dec("96.00").Equal(c.Taxes[2].Amount), "900 × 0.106667 = 96.0003 → 96.00")

	assert.True(t, dec("1000").Equal(doc.Totals.Subtotal), "subtotal antes de descuento")
	assert.True(t, dec("100").Equal(doc.Totals.Discount))
	assert.True(t, dec("186.00").Equal(doc.Totals.TotalWithheld))
	// 1000 − 100 + 144 − 186 = 858
	assert.True(t, dec("858.00").Equal(doc.Totals.Total), "total: %s", doc.Totals.Total)
}

func TestCalculate_CuotaYExento(t *testing.T) {
	doc := &entity.FiscalDocument{
		Status: entity.StatusDraft,
		Concepts: []entity.Concept{
			{
				Quantity: dec("3"), UnitValue: dec("10"),
				Taxes:    []entity.Tax{{Kind: entity.TaxTransferred, Code: sat.TaxCodeIEPS, FactorType: sat.FactorQuota, RateOrQuota: dec("0.5")}},
			},
			{
				Quantity: dec("1"), UnitValue: dec("50"),
				Taxes:    []entity.Tax{{Kind: entity.TaxTransferred, Code: sat.TaxCodeIVA, FactorType: sat.FactorExempt}},
			},
		},
	}
	require.NoError(t, cfdi.Calculate(doc))

	assert.True(t, dec("0.5").Equal(doc.Concepts[0].Taxes[0].Amount), "la cuota se toma tal cual")
	assert.True(t, decimal.Zero.Equal(doc.Concepts[1].Taxes[0].Amount), "exento no causa impuesto")
	assert.True(t, dec("80.50").Equal(doc.Totals.Total))
}

// TestCalculate_RedondeoPorLinea verifica que se suma lo ya redondeado por línea.
func TestCalculate_RedondeoPorLinea(t *testing.T) {
	doc := &entity.FiscalDocument{Status: entity.StatusDraft}
	for i := 0; i < 3; i++ {
		doc.Concepts = append(doc.Concepts, entity.Concept{
			Quantity: dec("1"), UnitValue: dec("0.333"),
			Taxes:    []entity.Tax{iva16()},
		})
	}
	require.NoError(t, cfdi.Calculate(doc))
	// cada línea: 0.33, IVA 0.05; sin redondeo por línea serían 0.999 y 0.15984
	assert.True(t, dec("0.99").Equal(doc.Totals.Subtotal))
	assert.True(t, dec("0.15").Equal(doc.Totals.TotalTransferred))
	assert.True(t, dec("1.14").Equal(doc.Totals.Total))
}

func TestCalculate_RecalculoIdempotente(t *testing.T) {
	doc := sampleDocument()
	require.NoError(t, cfdi.Calculate(doc))
	first := doc.Totals
	require.NoError(t, cfdi.Calculate(doc))
	assert.True(t, first.Total.Equal(doc.Totals.Total))
	assert.True(t, first.TotalTransferred.Equal(doc.Totals.TotalTransferred))

	rec := cfdi.Recompute(doc)
	assert.True(t, rec.Total.Equal(doc.Totals.Total))
	assert.True(t, rec.Subtotal.Equal(doc.Totals.Subtotal))
}

func TestCalculate_DocumentoTimbradoEsInmutable(t *testing.T) {
	doc := sampleDocument()
	doc.Status = entity.StatusStamped
	err := cfdi.Calculate(doc)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCalculate_Nil(t *testing.T) {
	assert.Error(t, cfdi.Calculate(nil))
}
