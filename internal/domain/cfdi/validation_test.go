package cfdi_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// sampleDocument documento de ingreso válido, ya calculado.
func sampleDocument() *entity.FiscalDocument {
	doc := &entity.FiscalDocument{
		ID:                   "doc-1",
		TenantID:             "tenant-1",
		Kind:                 sat.DocumentKindIncome,
		PaymentMethod:        sat.PaymentMethodSingle,
		PaymentForm:          sat.PaymentFormTransfer,
		Currency:             sat.CurrencyMXN,
		Export:               sat.ExportNotApplies,
		ExpeditionPostalCode: "64000",
		Series:               "A",
		Number:               "100",
		Issuer:               entity.Party{RFC: "EKU9003173C9", Name: "ESCUELA KEMPER URGATE", FiscalRegime: "601"},
		Receiver:             entity.Party{RFC: "CACX7605101P8", Name: "XOCHILT CASAS CHAVEZ", FiscalRegime: "612", PostalCode: "36257", Usage: "G03"},
		Concepts: []entity.Concept{{
			ProductCode: "01010101",
			UnitCode:    "H87",
			Unit:        "Pieza",
			Description: "Producto de prueba",
			Quantity:    dec("2"),
			UnitValue:   dec("45.005"),
			TaxObject:   sat.TaxObjectYes,
			Taxes:       []entity.Tax{iva16()},
		}},
		Status: entity.StatusDraft,
	}
	if err := cfdi.Calculate(doc); err != nil {
		panic(err)
	}
	return doc
}

func codes(vs []entity.Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Field+":"+v.Code)
	}
	return out
}

func TestValidate_DocumentoValido(t *testing.T) {
	v := cfdi.NewValidator(nil)
	violations, err := v.Validate(context.Background(), sampleDocument())
	require.NoError(t, err)
	assert.Empty(t, violations, "violaciones: %v", codes(violations))
}

func TestValidate_ReportaTodasLasViolaciones(t *testing.T) {
	doc := sampleDocument()
	doc.Receiver.RFC = "NO-ES-RFC"
	doc.Receiver.Usage = ""
	doc.Concepts[0].Quantity = dec("0")
	doc.Concepts[0].Description = "uno | dos"

	violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
	require.NoError(t, err)

	got := codes(violations)
	assert.Contains(t, got, "receptor.uso_cfdi:"+cfdi.CodeRequired)
	assert.Contains(t, got, "receptor.rfc:"+sat.ReasonPattern)
	assert.Contains(t, got, "conceptos[0].cantidad:"+cfdi.CodeInvalidValue)
	assert.Contains(t, got, "conceptos[0].descripcion:"+cfdi.CodeReservedDelimiter)

	// el orden es estructural → catálogo → aritmético
	assert.Equal(t, entity.ViolationStructural, violations[0].Kind)
}

func TestValidate_SinConceptos(t *testing.T) {
	doc := sampleDocument()
	doc.Concepts = nil
	doc.Totals = entity.Totals{}
	violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, codes(violations), "conceptos:"+cfdi.CodeNoConcepts)
}

func TestValidate_ImporteAlterado(t *testing.T) {
	doc := sampleDocument()
	doc.Concepts[0].Amount = dec("90.00") // debería ser 90.01

	violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
	require.NoError(t, err)
	got := codes(violations)
	assert.Contains(t, got, "conceptos[0].importe:"+cfdi.CodeMismatch)
}

func TestValidate_TotalFueraDeTolerancia(t *testing.T) {
	doc := sampleDocument()
	doc.Totals.Total = dec("104.43")
	violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, codes(violations), "total:"+cfdi.CodeMismatch)

	doc.Totals.Total = dec("104.42") // dentro de la tolerancia de 0.01
	violations, err = cfdi.NewValidator(nil).Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.NotContains(t, codes(violations), "total:"+cfdi.CodeMismatch)
}

func TestValidate_MetodoYFormaDePago(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		form    string
		wantErr bool
	}{
		{"PUE con transferencia", sat.PaymentMethodSingle, sat.PaymentFormTransfer, false},
		{"PUE con por definir", sat.PaymentMethodSingle, sat.PaymentFormToBeDefined, true},
		{"PPD con por definir", sat.PaymentMethodInstallment, sat.PaymentFormToBeDefined, false},
		{"PPD con efectivo", sat.PaymentMethodInstallment, sat.PaymentFormCash, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument()
			doc.PaymentMethod = tt.method
			doc.PaymentForm = tt.form
			violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
			require.NoError(t, err)
			if tt.wantErr {
				assert.Contains(t, codes(violations), "forma_pago:"+cfdi.CodeInvalidCombo)
			} else {
				assert.Empty(t, violations)
			}
		})
	}
}

func TestValidate_PublicoEnGeneral(t *testing.T) {
	doc := sampleDocument()
	doc.Receiver.RFC = sat.RFCGenericNational
	doc.Receiver.Usage = "G03"
	violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
	require.NoError(t, err)
	got := codes(violations)
	assert.Contains(t, got, "receptor.uso_cfdi:"+cfdi.CodeInvalidCombo)
	assert.Contains(t, got, "receptor.regimen_fiscal:"+cfdi.CodeInvalidCombo)
}

func TestValidate_CatalogoCerrado(t *testing.T) {
	catalog := sat.NewStaticCatalog()
	catalog.Add(sat.CatalogProductCode, "50202306")

	violations, err := cfdi.NewValidator(catalog).Validate(context.Background(), sampleDocument())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, entity.ViolationCatalog, violations[0].Kind)
	assert.Equal(t, "conceptos[0].clave_prod_serv", violations[0].Field)
	assert.Equal(t, sat.ReasonNotInCatalog, violations[0].Code)
}

type failingCatalog struct{}

func (failingCatalog) Exists(context.Context, sat.Catalog, string) (bool, error) {
	return false, errors.New("conexión rechazada")
}

func TestValidate_ErrorDeCatalogo(t *testing.T) {
	_, err := cfdi.NewValidator(failingCatalog{}).Validate(context.Background(), sampleDocument())
	assert.Error(t, err)
}

func TestValidate_ObjetoDeImpuesto(t *testing.T) {
	doc := sampleDocument()
	doc.Concepts[0].TaxObject = sat.TaxObjectNo
	violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, codes(violations), "conceptos[0].impuestos:"+cfdi.CodeInvalidCombo)
}

func TestValidate_RangoDeTasaOCuota(t *testing.T) {
	cases := []struct {
		name   string
		factor string
		value  string
		valid  bool
	}{
		{name: "tasa fraccional", factor: sat.FactorRate, value: "0.160000", valid: true},
		{name: "tasa mayor a uno", factor: sat.FactorRate, value: "16", valid: false},
		{name: "tasa negativa", factor: sat.FactorRate, value: "-0.16", valid: false},
		// Las cuotas de IEPS son pesos por unidad (p. ej. 6.4555 por litro).
		{name: "cuota IEPS mayor a uno", factor: sat.FactorQuota, value: "6.4555", valid: true},
		{name: "cuota negativa", factor: sat.FactorQuota, value: "-1", valid: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := sampleDocument()
			doc.Concepts[0].Taxes = []entity.Tax{{
				Kind:        entity.TaxTransferred,
				Code:        sat.TaxCodeIEPS,
				FactorType:  tc.factor,
				RateOrQuota: dec(tc.value),
			}}
			require.NoError(t, cfdi.Calculate(doc))

			violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
			require.NoError(t, err)
			field := "conceptos[0].impuestos[0].tasa_o_cuota:" + cfdi.CodeInvalidValue
			if tc.valid {
				assert.NotContains(t, codes(violations), field)
			} else {
				assert.Contains(t, codes(violations), field)
			}
		})
	}
}

func TestValidate_PagoObligatorioSegunTipo(t *testing.T) {
	tests := []struct {
		kind     string
		required bool
	}{
		{sat.DocumentKindIncome, true},
		{sat.DocumentKindEgress, true},
		{sat.DocumentKindTransfer, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			doc := sampleDocument()
			doc.Kind = tt.kind
			doc.PaymentMethod = ""
			doc.PaymentForm = ""
			violations, err := cfdi.NewValidator(nil).Validate(context.Background(), doc)
			require.NoError(t, err)
			if tt.required {
				assert.Contains(t, codes(violations), "metodo_pago:"+cfdi.CodeRequired)
				assert.Contains(t, codes(violations), "forma_pago:"+cfdi.CodeRequired)
			} else {
				assert.NotContains(t, codes(violations), "metodo_pago:"+cfdi.CodeRequired)
			}
		})
	}
}
