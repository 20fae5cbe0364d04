package sat

import (
	"context"
	"regexp"
	"strings"
)

// Field identifica un campo codificado del comprobante.
type Field string

const (
	FieldRFC                Field = "rfc"
	FieldPostalCode         Field = "codigo_postal"
	FieldProductCode        Field = "clave_prod_serv"
	FieldUnitCode           Field = "clave_unidad"
	FieldTaxCode            Field = "impuesto"
	FieldFactorType         Field = "tipo_factor"
	FieldPaymentForm        Field = "forma_pago"
	FieldPaymentMethod      Field = "metodo_pago"
	FieldDocumentKind       Field = "tipo_comprobante"
	FieldFiscalRegime       Field = "regimen_fiscal"
	FieldUsage              Field = "uso_cfdi"
	FieldTaxObject          Field = "objeto_imp"
	FieldCancellationMotive Field = "motivo_cancelacion"
	FieldCurrency           Field = "moneda"
	FieldFolio              Field = "folio_fiscal"
)

// Códigos de razón del validador de catálogo.
const (
	ReasonRequired     = "REQUERIDO"
	ReasonPattern      = "FORMATO_INVALIDO"
	ReasonNotInCatalog = "NO_EXISTE_EN_CATALOGO"
	ReasonUnknownField = "CAMPO_DESCONOCIDO"
)

// FieldResult resultado de validar un campo. Un fallo nunca es reintentable.
type FieldResult struct {
	OK     bool
	Reason string
}

func pass() FieldResult               { return FieldResult{OK: true} }
func fail(reason string) FieldResult { return FieldResult{Reason: reason} }

var (
	postalCodePattern  = regexp.MustCompile(`^[0-9]{5}$`)
	productCodePattern = regexp.MustCompile(`^[0-9]{8}$`)
	unitCodePattern    = regexp.MustCompile(`^[A-Z0-9]{1,3}$`)
	taxCodePattern     = regexp.MustCompile(`^[0-9]{3}$`)
	regimePattern      = regexp.MustCompile(`^[0-9]{3}$`)
	usagePattern       = regexp.MustCompile(`^[A-Z]{1,2}[0-9]{2}$`)
	currencyPattern    = regexp.MustCompile(`^[A-Z]{3}$`)
	folioPattern       = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`)
)

// ValidateField valida formato y, para catálogos cerrados pequeños, pertenencia.
// Es pura: sin estado ni E/S. La pertenencia a catálogos grandes se resuelve con CatalogLookup.
func ValidateField(field Field, value string) FieldResult {
	v := strings.TrimSpace(value)
	if v == "" {
		return fail(ReasonRequired)
	}
	switch field {
	case FieldRFC:
		return matchResult(IsValidRFC(v))
	case FieldPostalCode:
		return matchResult(postalCodePattern.MatchString(v))
	case FieldProductCode:
		return matchResult(productCodePattern.MatchString(v))
	case FieldUnitCode:
		return matchResult(unitCodePattern.MatchString(v))
	case FieldTaxCode:
		if !taxCodePattern.MatchString(v) {
			return fail(ReasonPattern)
		}
		return inCatalog(ValidTaxCodes, v)
	case FieldFactorType:
		return inCatalog(ValidFactorTypes, v)
	case FieldPaymentForm:
		return inCatalog(ValidPaymentForms, v)
	case FieldPaymentMethod:
		return inCatalog(ValidPaymentMethods, v)
	case FieldDocumentKind:
		return inCatalog(ValidDocumentKinds, v)
	case FieldFiscalRegime:
		return matchResult(regimePattern.MatchString(v))
	case FieldUsage:
		return matchResult(usagePattern.MatchString(v))
	case FieldTaxObject:
		return inCatalog(ValidTaxObjects, v)
	case FieldCancellationMotive:
		return inCatalog(ValidCancellationMotives, v)
	case FieldCurrency:
		return matchResult(currencyPattern.MatchString(v))
	case FieldFolio:
		return matchResult(folioPattern.MatchString(v))
	default:
		return fail(ReasonUnknownField)
	}
}

func matchResult(ok bool) FieldResult {
	if ok {
		return pass()
	}
	return fail(ReasonPattern)
}

func inCatalog(set map[string]bool, v string) FieldResult {
	if set[v] {
		return pass()
	}
	return fail(ReasonNotInCatalog)
}

// =============================================================================
// Consulta de catálogos externos
// =============================================================================

// Catalog nombre de un catálogo externo mantenido por el SAT.
type Catalog string

const (
	CatalogProductCode  Catalog = "c_ClaveProdServ"
	CatalogUnitCode     Catalog = "c_ClaveUnidad"
	CatalogFiscalRegime Catalog = "c_RegimenFiscal"
	CatalogUsage        Catalog = "c_UsoCFDI"
)

// CatalogLookup consulta la pertenencia de un código a un catálogo grande.
// La implementación puede ser estática (memoria) o respaldada por base de datos.
type CatalogLookup interface {
	Exists(ctx context.Context, catalog Catalog, code string) (bool, error)
}

// StaticCatalog implementación en memoria. Un catálogo sin códigos cargados se
// considera abierto: solo se valida el formato.
type StaticCatalog struct {
	codes map[Catalog]map[string]bool
}

// NewStaticCatalog crea el catálogo con regímenes y usos por defecto;
// productos y unidades quedan abiertos.
func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{codes: make(map[Catalog]map[string]bool)}
	c.Add(CatalogFiscalRegime, defaultFiscalRegimes...)
	c.Add(CatalogUsage, defaultUsages...)
	return c
}

// Add registra códigos en un catálogo (cierra el catálogo a esos códigos).
func (c *StaticCatalog) Add(catalog Catalog, codes ...string) {
	set, ok := c.codes[catalog]
	if !ok {
		set = make(map[string]bool, len(codes))
		c.codes[catalog] = set
	}
	for _, code := range codes {
		set[code] = true
	}
}

// Exists implementa CatalogLookup.
func (c *StaticCatalog) Exists(_ context.Context, catalog Catalog, code string) (bool, error) {
	set, ok := c.codes[catalog]
	if !ok {
		return true, nil
	}
	return set[code], nil
}

var _ CatalogLookup = (*StaticCatalog)(nil)
