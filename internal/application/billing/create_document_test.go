package billing_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/application/dto"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/memory"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

type fakeOrders map[string]*billing.Order

func (f fakeOrders) GetOrder(_ context.Context, _, orderID string) (*billing.Order, error) {
	return f[orderID], nil
}

type documentFixture struct {
	uc        *billing.DocumentUseCase
	store     *memory.DocumentStore
	customers *memory.CustomerRepo
}

func newDocumentFixture(t *testing.T, orders fakeOrders) documentFixture {
	t.Helper()
	companies := memory.NewCompanyRepo(entity.Company{
		ID:           testTenant,
		Name:         "ESCUELA KEMPER URGATE",
		RFC:          "eku9003173c9",
		FiscalRegime: "601",
		PostalCode:   "64000",
		Series:       "A",
	})
	companies.AddLocation(entity.Location{ID: "loc-centro", CompanyID: testTenant, PostalCode: "06000", Series: "R"})
	customers := memory.NewCustomerRepo()
	store := memory.NewDocumentStore()
	var src billing.OrderSource
	if orders != nil {
		src = orders
	}
	uc := billing.NewDocumentUseCase(store, companies, customers, src, memory.NewNumberSequence(), nil, zerolog.Nop())
	return documentFixture{uc: uc, store: store, customers: customers}
}

func conceptRequest() dto.ConceptRequest {
	return dto.ConceptRequest{
		ProductCode: "90101501",
		UnitCode:    "E48",
		Description: "Consumo de alimentos",
		Quantity:    dec("2"),
		UnitValue:   dec("45.005"),
		Taxes: []dto.TaxRequest{{
			Kind:        entity.TaxTransferred,
			Code:        sat.TaxCodeIVA,
			FactorType:  sat.FactorRate,
			RateOrQuota: dec("0.16"),
		}},
	}
}

func TestCreateDocument_PublicoEnGeneral(t *testing.T) {
	f := newDocumentFixture(t, nil)

	resp, err := f.uc.Create(context.Background(), testTenant, dto.CreateFiscalDocumentRequest{
		Concepts: []dto.ConceptRequest{conceptRequest()},
	})
	require.NoError(t, err)

	assert.Equal(t, entity.StatusDraft, resp.Status)
	assert.Equal(t, "EKU9003173C9", resp.Issuer.RFC)
	assert.Equal(t, sat.RFCGenericNational, resp.Receiver.RFC)
	assert.Equal(t, sat.UsageNoFiscalEffects, resp.Receiver.Usage)
	assert.Equal(t, sat.RegimeNoFiscalObligations, resp.Receiver.FiscalRegime)
	assert.Equal(t, "64000", resp.Receiver.PostalCode)
	assert.Equal(t, sat.DocumentKindIncome, resp.Kind)
	assert.Equal(t, sat.PaymentMethodSingle, resp.PaymentMethod)
	assert.Equal(t, "A", resp.Series)
	assert.Equal(t, "1", resp.Number)
	assert.Equal(t, sat.TaxObjectYes, resp.Concepts[0].TaxObject)
	assert.True(t, resp.Subtotal.Equal(dec("90.01")))
	assert.True(t, resp.Transferred.Equal(dec("14.40")))
	assert.True(t, resp.Total.Equal(dec("104.41")))
	assert.Empty(t, resp.Violations)

	stored, ver, err := f.store.Load(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
	assert.Equal(t, testTenant, stored.TenantID)
}

func TestCreateDocument_SucursalYFolioConsecutivo(t *testing.T) {
	f := newDocumentFixture(t, nil)
	req := dto.CreateFiscalDocumentRequest{LocationID: "loc-centro", Concepts: []dto.ConceptRequest{conceptRequest()}}

	first, err := f.uc.Create(context.Background(), testTenant, req)
	require.NoError(t, err)
	second, err := f.uc.Create(context.Background(), testTenant, req)
	require.NoError(t, err)

	assert.Equal(t, "R", first.Series)
	assert.Equal(t, "1", first.Number)
	assert.Equal(t, "2", second.Number)
	assert.Equal(t, "06000", first.Receiver.PostalCode, "público en general usa el CP de expedición")
}

func TestCreateDocument_ClienteRegistrado(t *testing.T) {
	f := newDocumentFixture(t, nil)
	require.NoError(t, f.customers.Create(context.Background(), &entity.Customer{
		ID:           "cust-1",
		CompanyID:    testTenant,
		Name:         "XOCHILT CASAS CHAVEZ",
		RFC:          "CACX7605101P8",
		PostalCode:   "36257",
		FiscalRegime: "612",
	}))

	resp, err := f.uc.Create(context.Background(), testTenant, dto.CreateFiscalDocumentRequest{
		CustomerID:    "cust-1",
		PaymentMethod: sat.PaymentMethodInstallment,
		PaymentForm:   sat.PaymentFormCash,
		Concepts:      []dto.ConceptRequest{conceptRequest()},
	})
	require.NoError(t, err)
	assert.Equal(t, "CACX7605101P8", resp.Receiver.RFC)
	assert.Equal(t, "G03", resp.Receiver.Usage, "uso por defecto")
	assert.Equal(t, sat.PaymentFormToBeDefined, resp.PaymentForm, "PPD siempre lleva forma 99")
}

func TestCreateDocument_ClienteDeOtraEmpresa(t *testing.T) {
	f := newDocumentFixture(t, nil)
	require.NoError(t, f.customers.Create(context.Background(), &entity.Customer{ID: "cust-x", CompanyID: "otra", RFC: "CACX7605101P8"}))

	_, err := f.uc.Create(context.Background(), testTenant, dto.CreateFiscalDocumentRequest{
		CustomerID: "cust-x",
		Concepts:   []dto.ConceptRequest{conceptRequest()},
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateDocument_DesdeOrden(t *testing.T) {
	orders := fakeOrders{"ord-1": {
		ID:          "ord-1",
		TenantID:    testTenant,
		PaymentForm: sat.PaymentFormCreditCard,
		Lines: []billing.OrderLine{
			{SKU: "TACO-01", Description: "Orden de tacos", Quantity: dec("3"), UnitPrice: dec("35.50"), TaxRate: dec("0.16")},
			{SKU: "LIB-01", Description: "Libro", Quantity: dec("1"), UnitPrice: dec("200"), Exempt: true},
		},
	}}
	f := newDocumentFixture(t, orders)

	resp, err := f.uc.Create(context.Background(), testTenant, dto.CreateFiscalDocumentRequest{OrderID: "ord-1"})
	require.NoError(t, err)

	assert.Equal(t, "ord-1", resp.OrderRef)
	assert.Equal(t, sat.PaymentFormCreditCard, resp.PaymentForm)
	require.Len(t, resp.Concepts, 2)
	assert.Equal(t, "01010101", resp.Concepts[0].ProductCode)
	assert.Equal(t, sat.FactorExempt, resp.Concepts[1].Taxes[0].FactorType)
	// 106.50 + 200 de subtotal; IVA solo sobre la primera línea: 17.04
	assert.True(t, resp.Subtotal.Equal(dec("306.50")), "subtotal: %s", resp.Subtotal)
	assert.True(t, resp.Transferred.Equal(dec("17.04")), "traslados: %s", resp.Transferred)
	assert.True(t, resp.Total.Equal(dec("323.54")), "total: %s", resp.Total)
}

func TestCreateDocument_SinConceptos(t *testing.T) {
	f := newDocumentFixture(t, nil)
	_, err := f.uc.Create(context.Background(), testTenant, dto.CreateFiscalDocumentRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateDocument_ViolacionesComoVistaPrevia(t *testing.T) {
	f := newDocumentFixture(t, nil)
	c := conceptRequest()
	c.Quantity = dec("0")

	resp, err := f.uc.Create(context.Background(), testTenant, dto.CreateFiscalDocumentRequest{Concepts: []dto.ConceptRequest{c}})
	require.NoError(t, err, "un borrador inválido se guarda; el timbrado lo bloquea")
	assert.Equal(t, entity.StatusDraft, resp.Status)
	assert.NotEmpty(t, resp.Violations)
}

func TestUpdateDocument(t *testing.T) {
	f := newDocumentFixture(t, nil)
	created, err := f.uc.Create(context.Background(), testTenant, dto.CreateFiscalDocumentRequest{
		Concepts: []dto.ConceptRequest{conceptRequest()},
	})
	require.NoError(t, err)

	c := conceptRequest()
	c.Quantity = dec("1")
	updated, err := f.uc.Update(context.Background(), testTenant, created.ID, dto.CreateFiscalDocumentRequest{
		Concepts: []dto.ConceptRequest{c},
	})
	require.NoError(t, err)
	assert.True(t, updated.Subtotal.Equal(dec("45.01")), "subtotal: %s", updated.Subtotal)

	// Un documento PENDING no es editable.
	doc, ver, err := f.store.Load(context.Background(), created.ID)
	require.NoError(t, err)
	doc.Status = entity.StatusPending
	_, err = f.store.Save(context.Background(), doc, ver)
	require.NoError(t, err)

	_, err = f.uc.Update(context.Background(), testTenant, created.ID, dto.CreateFiscalDocumentRequest{Concepts: []dto.ConceptRequest{c}})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestListAndStatus(t *testing.T) {
	f := newDocumentFixture(t, nil)
	for i := 0; i < 3; i++ {
		_, err := f.uc.Create(context.Background(), testTenant, dto.CreateFiscalDocumentRequest{Concepts: []dto.ConceptRequest{conceptRequest()}})
		require.NoError(t, err)
	}

	list, err := f.uc.List(context.Background(), testTenant, dto.PageRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list.Items, 2)

	st, err := f.uc.GetStatus(context.Background(), testTenant, list.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, st.Status)

	_, err = f.uc.Get(context.Background(), "otro", list.Items[0].ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
