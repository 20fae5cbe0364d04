package sat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

func TestIsValidRFC(t *testing.T) {
	cases := map[string]bool{
		"EKU9003173C9":  true,  // persona moral
		"CACX7605101P8": true,  // persona física
		"XAXX010101000": true,  // público en general
		"xaxx010101000": true,  // se normaliza a mayúsculas
		"EKU-900317-3C9": true, // guiones se ignoran
		"EKU9013173C9":  false, // mes 13
		"EK9003173C9":   false, // solo dos letras
		"":              false,
	}
	for rfc, want := range cases {
		assert.Equal(t, want, sat.IsValidRFC(rfc), "RFC %q", rfc)
	}
}

func TestValidateField_FormatosCerrados(t *testing.T) {
	assert.True(t, sat.ValidateField(sat.FieldProductCode, "50202306").OK)
	assert.Equal(t, sat.ReasonPattern, sat.ValidateField(sat.FieldProductCode, "5020230").Reason,
		"la clave de producto debe tener exactamente 8 dígitos")

	assert.True(t, sat.ValidateField(sat.FieldTaxCode, "002").OK)
	assert.Equal(t, sat.ReasonPattern, sat.ValidateField(sat.FieldTaxCode, "02").Reason)
	assert.Equal(t, sat.ReasonNotInCatalog, sat.ValidateField(sat.FieldTaxCode, "009").Reason)

	assert.True(t, sat.ValidateField(sat.FieldPostalCode, "06600").OK)
	assert.False(t, sat.ValidateField(sat.FieldPostalCode, "6600").OK)

	assert.True(t, sat.ValidateField(sat.FieldPaymentForm, "99").OK)
	assert.Equal(t, sat.ReasonNotInCatalog, sat.ValidateField(sat.FieldPaymentForm, "07").Reason)

	assert.True(t, sat.ValidateField(sat.FieldFactorType, "Tasa").OK)
	assert.False(t, sat.ValidateField(sat.FieldFactorType, "tasa").OK)

	assert.True(t, sat.ValidateField(sat.FieldFolio, "5FB2822E-396D-4725-8521-CDC4BDD20CCF").OK)
	assert.False(t, sat.ValidateField(sat.FieldFolio, "no-es-uuid").OK)
}

func TestValidateField_Requerido(t *testing.T) {
	res := sat.ValidateField(sat.FieldUsage, "   ")
	assert.False(t, res.OK)
	assert.Equal(t, sat.ReasonRequired, res.Reason)
}

func TestValidateField_CampoDesconocido(t *testing.T) {
	assert.Equal(t, sat.ReasonUnknownField, sat.ValidateField(sat.Field("otro"), "x").Reason)
}

func TestMotiveRequiresRelatedFolio(t *testing.T) {
	assert.True(t, sat.MotiveRequiresRelatedFolio(sat.MotiveErrorsWithRelation))
	assert.False(t, sat.MotiveRequiresRelatedFolio(sat.MotiveErrorsWithoutRelation))
	assert.False(t, sat.MotiveRequiresRelatedFolio(sat.MotiveGlobalInvoice))
}

func TestStaticCatalog(t *testing.T) {
	ctx := context.Background()
	c := sat.NewStaticCatalog()

	ok, err := c.Exists(ctx, sat.CatalogFiscalRegime, "601")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, sat.CatalogFiscalRegime, "999")
	require.NoError(t, err)
	assert.False(t, ok, "régimen fuera del catálogo")

	ok, err = c.Exists(ctx, sat.CatalogProductCode, "01010101")
	require.NoError(t, err)
	assert.True(t, ok, "catálogo de productos sin cargar se considera abierto")

	c.Add(sat.CatalogProductCode, "50202306")
	ok, _ = c.Exists(ctx, sat.CatalogProductCode, "01010101")
	assert.False(t, ok, "al cargar códigos el catálogo queda cerrado")
}
