package cfdi

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// Códigos de violación estructural y aritmética.
const (
	CodeRequired          = sat.ReasonRequired
	CodeInvalidValue      = "VALOR_INVALIDO"
	CodeReservedDelimiter = "DELIMITADOR_RESERVADO"
	CodeNoConcepts        = "SIN_CONCEPTOS"
	CodeInvalidCombo      = "COMBINACION_INVALIDA"
	CodeMismatch          = "NO_COINCIDE"
)

// Validator aplica reglas estructurales, de catálogo y aritméticas sobre un documento
// calculado. Reporta todas las violaciones, no solo la primera.
type Validator struct {
	catalogs sat.CatalogLookup
}

// NewValidator crea el validador. Si catalogs es nil se usa el catálogo estático.
func NewValidator(catalogs sat.CatalogLookup) *Validator {
	if catalogs == nil {
		catalogs = sat.NewStaticCatalog()
	}
	return &Validator{catalogs: catalogs}
}

type report struct {
	violations []entity.Violation
}

func (r *report) add(kind, field, code, format string, args ...interface{}) {
	r.violations = append(r.violations, entity.Violation{
		Kind:    kind,
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// Validate devuelve la lista ordenada de violaciones (estructurales, de catálogo y
// aritméticas). Una lista vacía significa que el documento puede enviarse al PAC.
// El error solo se devuelve si la consulta de catálogos falla.
func (v *Validator) Validate(ctx context.Context, doc *entity.FiscalDocument) ([]entity.Violation, error) {
	r := &report{}
	if doc == nil {
		r.add(entity.ViolationStructural, "documento", CodeRequired, "documento nulo")
		return r.violations, nil
	}
	validateStructure(r, doc)
	if err := v.validateCatalogs(ctx, r, doc); err != nil {
		return nil, err
	}
	validateArithmetic(r, doc)
	return r.violations, nil
}

// =============================================================================
// Reglas estructurales
// =============================================================================

type requiredField struct {
	field string
	value string
}

func validateStructure(r *report, doc *entity.FiscalDocument) {
	required := []requiredField{
		{"tenant_id", doc.TenantID},
		{"tipo_comprobante", doc.Kind},
		{"moneda", doc.Currency},
		{"lugar_expedicion", doc.ExpeditionPostalCode},
		{"emisor.rfc", doc.Issuer.RFC},
		{"emisor.nombre", doc.Issuer.Name},
		{"emisor.regimen_fiscal", doc.Issuer.FiscalRegime},
		{"receptor.rfc", doc.Receiver.RFC},
		{"receptor.nombre", doc.Receiver.Name},
		{"receptor.domicilio_fiscal", doc.Receiver.PostalCode},
		{"receptor.regimen_fiscal", doc.Receiver.FiscalRegime},
		{"receptor.uso_cfdi", doc.Receiver.Usage},
	}
	if doc.Kind == sat.DocumentKindIncome || doc.Kind == sat.DocumentKindEgress {
		required = append(required,
			requiredField{"metodo_pago", doc.PaymentMethod},
			requiredField{"forma_pago", doc.PaymentForm},
		)
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			r.add(entity.ViolationStructural, f.field, CodeRequired, "%s es obligatorio", f.field)
		}
	}

	freeText := map[string]string{
		"serie":           doc.Series,
		"folio":           doc.Number,
		"emisor.nombre":   doc.Issuer.Name,
		"receptor.nombre": doc.Receiver.Name,
	}
	for _, field := range []string{"serie", "folio", "emisor.nombre", "receptor.nombre"} {
		checkDelimiter(r, field, freeText[field])
	}

	if len(doc.Concepts) == 0 {
		r.add(entity.ViolationStructural, "conceptos", CodeNoConcepts, "el comprobante debe tener al menos un concepto")
		return
	}
	for i, c := range doc.Concepts {
		p := fmt.Sprintf("conceptos[%d]", i)
		if strings.TrimSpace(c.Description) == "" {
			r.add(entity.ViolationStructural, p+".descripcion", CodeRequired, "la descripción es obligatoria")
		}
		checkDelimiter(r, p+".descripcion", c.Description)
		checkDelimiter(r, p+".no_identificacion", c.Identification)
		checkDelimiter(r, p+".unidad", c.Unit)

		if !c.Quantity.IsPositive() {
			r.add(entity.ViolationStructural, p+".cantidad", CodeInvalidValue, "la cantidad debe ser mayor que cero (%s)", c.Quantity)
		}
		if c.UnitValue.IsNegative() {
			r.add(entity.ViolationStructural, p+".valor_unitario", CodeInvalidValue, "el valor unitario no puede ser negativo (%s)", c.UnitValue)
		}
		if c.Discount.IsNegative() {
			r.add(entity.ViolationStructural, p+".descuento", CodeInvalidValue, "el descuento no puede ser negativo (%s)", c.Discount)
		} else if c.Discount.GreaterThan(round2(c.Quantity.Mul(c.UnitValue))) {
			r.add(entity.ViolationStructural, p+".descuento", CodeInvalidValue, "el descuento (%s) excede el importe bruto", c.Discount)
		}

		switch c.TaxObject {
		case sat.TaxObjectYes:
			if len(c.Taxes) == 0 {
				r.add(entity.ViolationStructural, p+".impuestos", CodeRequired, "objeto de impuesto %s requiere al menos un impuesto", c.TaxObject)
			}
		case sat.TaxObjectNo, sat.TaxObjectYesNoTax:
			if len(c.Taxes) > 0 {
				r.add(entity.ViolationStructural, p+".impuestos", CodeInvalidCombo, "objeto de impuesto %s no admite impuestos", c.TaxObject)
			}
		}

		for j, t := range c.Taxes {
			tp := fmt.Sprintf("%s.impuestos[%d]", p, j)
			if t.Kind != entity.TaxTransferred && t.Kind != entity.TaxWithheld {
				r.add(entity.ViolationStructural, tp+".tipo", CodeInvalidValue, "tipo de impuesto %q inválido", t.Kind)
			}
			if t.RateOrQuota.IsNegative() {
				r.add(entity.ViolationStructural, tp+".tasa_o_cuota", CodeInvalidValue, "la tasa o cuota no puede ser negativa")
			}
			// Solo la tasa es fracción; la cuota de IEPS es un monto por unidad y puede ser mayor a 1.
			if t.FactorType == sat.FactorRate && t.RateOrQuota.GreaterThan(decimal.NewFromInt(1)) {
				r.add(entity.ViolationStructural, tp+".tasa_o_cuota", CodeInvalidValue, "la tasa debe expresarse como fracción (%s)", t.RateOrQuota)
			}
			if t.Kind == entity.TaxWithheld && t.FactorType == sat.FactorExempt {
				r.add(entity.ViolationStructural, tp+".tipo_factor", CodeInvalidCombo, "una retención no puede ser exenta")
			}
		}
	}
}

// checkDelimiter el carácter '|' es el separador de la cadena original.
func checkDelimiter(r *report, field, value string) {
	if strings.Contains(value, chainDelimiter) {
		r.add(entity.ViolationStructural, field, CodeReservedDelimiter, "%s contiene el carácter reservado '|'", field)
	}
}

// =============================================================================
// Reglas de catálogo
// =============================================================================

func (v *Validator) validateCatalogs(ctx context.Context, r *report, doc *entity.FiscalDocument) error {
	check := func(path string, field sat.Field, value string) bool {
		if strings.TrimSpace(value) == "" {
			return false // ya reportado como estructural
		}
		if res := sat.ValidateField(field, value); !res.OK {
			r.add(entity.ViolationCatalog, path, res.Reason, "%s: valor %q no válido para %s", path, value, field)
			return false
		}
		return true
	}
	lookup := func(path string, catalog sat.Catalog, code string) error {
		ok, err := v.catalogs.Exists(ctx, catalog, code)
		if err != nil {
			return fmt.Errorf("cfdi: consultar catálogo %s: %w", catalog, err)
		}
		if !ok {
			r.add(entity.ViolationCatalog, path, sat.ReasonNotInCatalog, "%s: %q no existe en %s", path, code, catalog)
		}
		return nil
	}

	check("tipo_comprobante", sat.FieldDocumentKind, doc.Kind)
	check("moneda", sat.FieldCurrency, doc.Currency)
	check("lugar_expedicion", sat.FieldPostalCode, doc.ExpeditionPostalCode)
	check("emisor.rfc", sat.FieldRFC, doc.Issuer.RFC)
	check("receptor.rfc", sat.FieldRFC, doc.Receiver.RFC)
	check("receptor.domicilio_fiscal", sat.FieldPostalCode, doc.Receiver.PostalCode)

	methodOK := check("metodo_pago", sat.FieldPaymentMethod, doc.PaymentMethod)
	formOK := check("forma_pago", sat.FieldPaymentForm, doc.PaymentForm)
	if methodOK && formOK {
		switch {
		case doc.PaymentMethod == sat.PaymentMethodInstallment && doc.PaymentForm != sat.PaymentFormToBeDefined:
			r.add(entity.ViolationCatalog, "forma_pago", CodeInvalidCombo, "método PPD requiere forma de pago %s", sat.PaymentFormToBeDefined)
		case doc.PaymentMethod == sat.PaymentMethodSingle && doc.PaymentForm == sat.PaymentFormToBeDefined:
			r.add(entity.ViolationCatalog, "forma_pago", CodeInvalidCombo, "método PUE no admite forma de pago %s", sat.PaymentFormToBeDefined)
		}
	}

	if check("emisor.regimen_fiscal", sat.FieldFiscalRegime, doc.Issuer.FiscalRegime) {
		if err := lookup("emisor.regimen_fiscal", sat.CatalogFiscalRegime, doc.Issuer.FiscalRegime); err != nil {
			return err
		}
	}
	if check("receptor.regimen_fiscal", sat.FieldFiscalRegime, doc.Receiver.FiscalRegime) {
		if err := lookup("receptor.regimen_fiscal", sat.CatalogFiscalRegime, doc.Receiver.FiscalRegime); err != nil {
			return err
		}
	}
	if check("receptor.uso_cfdi", sat.FieldUsage, doc.Receiver.Usage) {
		if err := lookup("receptor.uso_cfdi", sat.CatalogUsage, doc.Receiver.Usage); err != nil {
			return err
		}
	}
	// Público en general: uso S01 y régimen 616.
	if sat.NormalizeRFC(doc.Receiver.RFC) == sat.RFCGenericNational {
		if doc.Receiver.Usage != sat.UsageNoFiscalEffects {
			r.add(entity.ViolationCatalog, "receptor.uso_cfdi", CodeInvalidCombo, "RFC genérico requiere uso %s", sat.UsageNoFiscalEffects)
		}
		if doc.Receiver.FiscalRegime != sat.RegimeNoFiscalObligations {
			r.add(entity.ViolationCatalog, "receptor.regimen_fiscal", CodeInvalidCombo, "RFC genérico requiere régimen %s", sat.RegimeNoFiscalObligations)
		}
	}

	for i, c := range doc.Concepts {
		p := fmt.Sprintf("conceptos[%d]", i)
		if check(p+".clave_prod_serv", sat.FieldProductCode, c.ProductCode) {
			if err := lookup(p+".clave_prod_serv", sat.CatalogProductCode, c.ProductCode); err != nil {
				return err
			}
		}
		if check(p+".clave_unidad", sat.FieldUnitCode, c.UnitCode) {
			if err := lookup(p+".clave_unidad", sat.CatalogUnitCode, c.UnitCode); err != nil {
				return err
			}
		}
		if strings.TrimSpace(c.TaxObject) == "" {
			r.add(entity.ViolationStructural, p+".objeto_imp", CodeRequired, "objeto de impuesto es obligatorio")
		} else {
			check(p+".objeto_imp", sat.FieldTaxObject, c.TaxObject)
		}
		for j, t := range c.Taxes {
			tp := fmt.Sprintf("%s.impuestos[%d]", p, j)
			if strings.TrimSpace(t.Code) == "" {
				r.add(entity.ViolationStructural, tp+".impuesto", CodeRequired, "clave de impuesto obligatoria")
			} else {
				check(tp+".impuesto", sat.FieldTaxCode, t.Code)
			}
			if strings.TrimSpace(t.FactorType) == "" {
				r.add(entity.ViolationStructural, tp+".tipo_factor", CodeRequired, "tipo de factor obligatorio")
			} else {
				check(tp+".tipo_factor", sat.FieldFactorType, t.FactorType)
			}
		}
	}
	return nil
}

// =============================================================================
// Reglas aritméticas
// =============================================================================

// validateArithmetic recalcula desde los datos de entrada y compara contra lo
// almacenado. Importes por línea deben coincidir exactamente; totales dentro de Tolerance.
func validateArithmetic(r *report, doc *entity.FiscalDocument) {
	for i, c := range doc.Concepts {
		p := fmt.Sprintf("conceptos[%d]", i)
		expected := ConceptAmount(c)
		if !c.Amount.Equal(expected) {
			r.add(entity.ViolationArithmetic, p+".importe", CodeMismatch, "importe %s no coincide con round(cantidad × valor unitario) − descuento = %s", c.Amount.StringFixed(2), expected.StringFixed(2))
		}
		for j, t := range c.Taxes {
			tp := fmt.Sprintf("%s.impuestos[%d]", p, j)
			if !t.Base.Equal(expected) {
				r.add(entity.ViolationArithmetic, tp+".base", CodeMismatch, "base %s no coincide con el importe del concepto %s", t.Base.StringFixed(2), expected.StringFixed(2))
			}
			want := TaxAmount(t, expected)
			if !t.Amount.Equal(want) {
				r.add(entity.ViolationArithmetic, tp+".importe", CodeMismatch, "importe de impuesto %s no coincide con %s", t.Amount.StringFixed(2), want.StringFixed(2))
			}
		}
	}

	rec := Recompute(doc)
	totals := []struct {
		field  string
		stored decimal.Decimal
		want   decimal.Decimal
	}{
		{"subtotal", doc.Totals.Subtotal, rec.Subtotal},
		{"descuento", doc.Totals.Discount, rec.Discount},
		{"total_impuestos_trasladados", doc.Totals.TotalTransferred, rec.TotalTransferred},
		{"total_impuestos_retenidos", doc.Totals.TotalWithheld, rec.TotalWithheld},
		{"total", doc.Totals.Total, rec.Total},
	}
	for _, t := range totals {
		if !withinTolerance(t.stored, t.want) {
			r.add(entity.ViolationArithmetic, t.field, CodeMismatch, "%s %s no coincide con el recálculo %s", t.field, t.stored.StringFixed(2), t.want.StringFixed(2))
		}
	}
}
