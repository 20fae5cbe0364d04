package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/dto"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// Valores por defecto para conceptos que vienen de una orden sin clave SAT.
const (
	defaultProductCode = "01010101" // No existe en el catálogo
	defaultUnitCode    = "H87"      // Pieza
	defaultUnit        = "Pieza"
	defaultUsage       = "G03" // Gastos en general
	genericName        = "PUBLICO EN GENERAL"
)

// DocumentUseCase alta, edición y consulta de borradores de CFDI.
// El timbrado y la cancelación viven en sus coordinadores.
type DocumentUseCase struct {
	store        repository.DocumentStore
	companyRepo  repository.CompanyRepository
	customerRepo repository.CustomerRepository
	orders       OrderSource
	numbers      NumberSequence
	validator    *cfdi.Validator
	log          zerolog.Logger
	now          func() time.Time
}

// NewDocumentUseCase construye el caso de uso. orders y numbers pueden ser nil:
// sin orders no se aceptan order_id, sin numbers el documento queda sin folio interno.
func NewDocumentUseCase(
	store repository.DocumentStore,
	companyRepo repository.CompanyRepository,
	customerRepo repository.CustomerRepository,
	orders OrderSource,
	numbers NumberSequence,
	validator *cfdi.Validator,
	log zerolog.Logger,
) *DocumentUseCase {
	if validator == nil {
		validator = cfdi.NewValidator(nil)
	}
	return &DocumentUseCase{
		store:        store,
		companyRepo:  companyRepo,
		customerRepo: customerRepo,
		orders:       orders,
		numbers:      numbers,
		validator:    validator,
		log:          log,
		now:          time.Now,
	}
}

// Create arma el borrador a partir de la empresa, la sucursal, el receptor y los
// conceptos (del cuerpo o de la orden), calcula montos y lo guarda en DRAFT.
// Las violaciones detectadas se devuelven como vista previa; no bloquean el alta.
func (uc *DocumentUseCase) Create(ctx context.Context, tenantID string, in dto.CreateFiscalDocumentRequest) (*dto.FiscalDocumentResponse, error) {
	company, err := uc.companyRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("obtener empresa: %w", err)
	}
	if company == nil {
		return nil, domain.ErrNotFound
	}

	expeditionCP, series := company.PostalCode, company.Series
	if in.LocationID != "" {
		loc, err := uc.companyRepo.GetLocation(ctx, tenantID, in.LocationID)
		if err != nil {
			return nil, fmt.Errorf("obtener sucursal: %w", err)
		}
		if loc == nil {
			return nil, domain.ErrNotFound
		}
		if loc.PostalCode != "" {
			expeditionCP = loc.PostalCode
		}
		if loc.Series != "" {
			series = loc.Series
		}
	}
	if in.Series != "" {
		series = in.Series
	}

	var order *Order
	if in.OrderID != "" {
		if uc.orders == nil {
			return nil, fmt.Errorf("%w: órdenes no disponibles", domain.ErrInvalidInput)
		}
		order, err = uc.orders.GetOrder(ctx, tenantID, in.OrderID)
		if err != nil {
			return nil, fmt.Errorf("obtener orden: %w", err)
		}
		if order == nil {
			return nil, domain.ErrNotFound
		}
		if order.TenantID != tenantID {
			return nil, domain.ErrForbidden
		}
	}

	receiver, err := uc.resolveReceiver(ctx, tenantID, in, order, expeditionCP)
	if err != nil {
		return nil, err
	}

	var concepts []entity.Concept
	switch {
	case len(in.Concepts) > 0:
		concepts = conceptsFromRequest(in.Concepts)
	case order != nil:
		concepts = conceptsFromOrder(order.Lines)
	default:
		return nil, fmt.Errorf("%w: el comprobante requiere conceptos u orden", domain.ErrInvalidInput)
	}

	paymentForm := in.PaymentForm
	if paymentForm == "" && order != nil {
		paymentForm = order.PaymentForm
	}
	locationID := in.LocationID
	if locationID == "" && order != nil {
		locationID = order.LocationID
	}

	now := uc.now().UTC()
	doc := &entity.FiscalDocument{
		ID:                   uuid.New().String(),
		TenantID:             tenantID,
		LocationID:           locationID,
		OrderRef:             in.OrderID,
		Kind:                 orDefault(in.Kind, sat.DocumentKindIncome),
		PaymentMethod:        orDefault(in.PaymentMethod, sat.PaymentMethodSingle),
		PaymentForm:          orDefault(paymentForm, sat.PaymentFormCash),
		Currency:             orDefault(in.Currency, sat.CurrencyMXN),
		Export:               sat.ExportNotApplies,
		ExpeditionPostalCode: expeditionCP,
		Series:               series,
		Issuer: entity.Party{
			RFC:          sat.NormalizeRFC(company.RFC),
			Name:         company.Name,
			FiscalRegime: company.FiscalRegime,
		},
		Receiver:  receiver,
		Concepts:  concepts,
		Status:    entity.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyPaymentRules(doc)

	if uc.numbers != nil {
		n, err := uc.numbers.Next(ctx, tenantID, series)
		if err != nil {
			return nil, fmt.Errorf("asignar folio interno: %w", err)
		}
		doc.Number = strconv.FormatInt(n, 10)
	}

	if err := uc.prepare(ctx, doc); err != nil {
		return nil, err
	}
	if _, err := uc.store.Save(ctx, doc, 0); err != nil {
		return nil, fmt.Errorf("guardar comprobante: %w", err)
	}
	uc.log.Info().
		Str("document_id", doc.ID).
		Str("tenant_id", tenantID).
		Int("violations", len(doc.Violations)).
		Msg("borrador de CFDI creado")
	return toFiscalDocumentResponse(doc), nil
}

// Update reemplaza receptor, conceptos y datos de pago de un documento editable.
// Un documento PENDING, timbrado o en ERROR transitorio no se puede editar.
func (uc *DocumentUseCase) Update(ctx context.Context, tenantID, id string, in dto.CreateFiscalDocumentRequest) (*dto.FiscalDocumentResponse, error) {
	doc, ver, err := uc.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsEditable() {
		return nil, fmt.Errorf("%w: el documento en estado %s no es editable", domain.ErrConflict, doc.Status)
	}

	if in.Receiver != nil || in.CustomerID != "" {
		receiver, err := uc.resolveReceiver(ctx, tenantID, in, nil, doc.ExpeditionPostalCode)
		if err != nil {
			return nil, err
		}
		doc.Receiver = receiver
	}
	if len(in.Concepts) > 0 {
		doc.Concepts = conceptsFromRequest(in.Concepts)
	}
	if in.Kind != "" {
		doc.Kind = in.Kind
	}
	if in.PaymentMethod != "" {
		doc.PaymentMethod = in.PaymentMethod
	}
	if in.PaymentForm != "" {
		doc.PaymentForm = in.PaymentForm
	}
	if in.Currency != "" {
		doc.Currency = in.Currency
	}
	applyPaymentRules(doc)
	doc.UpdatedAt = uc.now().UTC()

	if err := uc.prepare(ctx, doc); err != nil {
		return nil, err
	}
	if _, err := uc.store.Save(ctx, doc, ver); err != nil {
		return nil, fmt.Errorf("guardar comprobante: %w", err)
	}
	return toFiscalDocumentResponse(doc), nil
}

// Get devuelve el documento completo.
func (uc *DocumentUseCase) Get(ctx context.Context, tenantID, id string) (*dto.FiscalDocumentResponse, error) {
	doc, _, err := uc.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return toFiscalDocumentResponse(doc), nil
}

// GetStatus respuesta ligera para polling.
func (uc *DocumentUseCase) GetStatus(ctx context.Context, tenantID, id string) (*dto.FiscalDocumentStatusDTO, error) {
	doc, _, err := uc.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return toStatusDTO(doc), nil
}

// List lista documentos del tenant, del más reciente al más antiguo.
func (uc *DocumentUseCase) List(ctx context.Context, tenantID string, page dto.PageRequest) (*dto.FiscalDocumentListResponse, error) {
	page = page.Normalize()
	docs, err := uc.store.ListByTenant(ctx, tenantID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := &dto.FiscalDocumentListResponse{
		Items: make([]dto.FiscalDocumentResponse, 0, len(docs)),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, HasMore: len(docs) == page.Limit},
	}
	for _, d := range docs {
		out.Items = append(out.Items, *toFiscalDocumentResponse(d))
	}
	return out, nil
}

func (uc *DocumentUseCase) load(ctx context.Context, tenantID, id string) (*entity.FiscalDocument, int64, error) {
	doc, ver, err := uc.store.Load(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if doc.TenantID != tenantID {
		return nil, 0, domain.ErrForbidden
	}
	return doc, ver, nil
}

// prepare calcula montos y adjunta las violaciones como vista previa.
func (uc *DocumentUseCase) prepare(ctx context.Context, doc *entity.FiscalDocument) error {
	if err := cfdi.Calculate(doc); err != nil {
		return err
	}
	violations, err := uc.validator.Validate(ctx, doc)
	if err != nil {
		return fmt.Errorf("validar comprobante: %w", err)
	}
	doc.Violations = violations
	return nil
}

// resolveReceiver: receptor explícito, cliente registrado (del cuerpo o de la
// orden) o público en general con el código postal de expedición.
func (uc *DocumentUseCase) resolveReceiver(
	ctx context.Context,
	tenantID string,
	in dto.CreateFiscalDocumentRequest,
	order *Order,
	expeditionCP string,
) (entity.Party, error) {
	if in.Receiver != nil {
		return entity.Party{
			RFC:          sat.NormalizeRFC(in.Receiver.RFC),
			Name:         strings.TrimSpace(in.Receiver.Name),
			FiscalRegime: in.Receiver.FiscalRegime,
			PostalCode:   in.Receiver.PostalCode,
			Usage:        in.Receiver.Usage,
		}, nil
	}

	customerID := in.CustomerID
	if customerID == "" && order != nil {
		customerID = order.CustomerID
	}
	if customerID == "" {
		return entity.Party{
			RFC:          sat.RFCGenericNational,
			Name:         genericName,
			FiscalRegime: sat.RegimeNoFiscalObligations,
			PostalCode:   expeditionCP,
			Usage:        sat.UsageNoFiscalEffects,
		}, nil
	}

	customer, err := uc.customerRepo.GetByID(ctx, customerID)
	if err != nil {
		return entity.Party{}, fmt.Errorf("obtener cliente: %w", err)
	}
	if customer == nil {
		return entity.Party{}, domain.ErrNotFound
	}
	if customer.CompanyID != tenantID {
		return entity.Party{}, domain.ErrForbidden
	}
	return entity.Party{
		RFC:          sat.NormalizeRFC(customer.RFC),
		Name:         customer.Name,
		FiscalRegime: customer.FiscalRegime,
		PostalCode:   customer.PostalCode,
		Usage:        orDefault(customer.Usage, defaultUsage),
	}, nil
}

// applyPaymentRules pago diferido (PPD) siempre lleva forma 99 "por definir".
func applyPaymentRules(doc *entity.FiscalDocument) {
	if doc.PaymentMethod == sat.PaymentMethodInstallment {
		doc.PaymentForm = sat.PaymentFormToBeDefined
	}
}

func conceptsFromRequest(in []dto.ConceptRequest) []entity.Concept {
	out := make([]entity.Concept, 0, len(in))
	for _, c := range in {
		taxes := make([]entity.Tax, 0, len(c.Taxes))
		for _, t := range c.Taxes {
			taxes = append(taxes, entity.Tax{
				Kind:        t.Kind,
				Code:        t.Code,
				FactorType:  t.FactorType,
				RateOrQuota: t.RateOrQuota,
			})
		}
		taxObject := c.TaxObject
		if taxObject == "" {
			taxObject = sat.TaxObjectNo
			if len(taxes) > 0 {
				taxObject = sat.TaxObjectYes
			}
		}
		out = append(out, entity.Concept{
			ProductCode:    c.ProductCode,
			Identification: c.Identification,
			UnitCode:       c.UnitCode,
			Unit:           c.Unit,
			Description:    c.Description,
			Quantity:       c.Quantity,
			UnitValue:      c.UnitValue,
			Discount:       c.Discount,
			TaxObject:      taxObject,
			Taxes:          taxes,
		})
	}
	return out
}

// conceptsFromOrder cada línea lleva IVA trasladado a su tasa, o exento.
func conceptsFromOrder(lines []OrderLine) []entity.Concept {
	out := make([]entity.Concept, 0, len(lines))
	for _, l := range lines {
		tax := entity.Tax{
			Kind:        entity.TaxTransferred,
			Code:        sat.TaxCodeIVA,
			FactorType:  sat.FactorRate,
			RateOrQuota: l.TaxRate,
		}
		if l.Exempt {
			tax.FactorType = sat.FactorExempt
			tax.RateOrQuota = decimal.Zero
		}
		out = append(out, entity.Concept{
			ProductCode:    orDefault(l.ProductCode, defaultProductCode),
			Identification: l.SKU,
			UnitCode:       orDefault(l.UnitCode, defaultUnitCode),
			Unit:           orDefault(l.Unit, defaultUnit),
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitValue:      l.UnitPrice,
			Discount:       l.Discount,
			TaxObject:      sat.TaxObjectYes,
			Taxes:          []entity.Tax{tax},
		})
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
