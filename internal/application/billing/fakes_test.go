package billing_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
	"github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/memory"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// ──────────────────────────────────────────────────────────────────────────────
// PAC falso
// ──────────────────────────────────────────────────────────────────────────────

// fakeAuthority PAC en memoria que cuenta llamadas. Reconoce tokens repetidos
// como duplicados y devuelve el mismo timbre.
type fakeAuthority struct {
	mu          sync.Mutex
	stamped     map[string]*billing.StampResult
	stampErrs   []error // se consumen en orden, uno por llamada a Stamp
	loseNext    bool    // timbra pero responde con falla transitoria
	delay       time.Duration
	// commitAfterTimeout la primera solicitud vence en el cliente y el PAC la
	// registra después de este lapso.
	commitAfterTimeout time.Duration
	tokens             []string
	chains             map[string]bool
	stampCalls  int
	queryCalls  int
	cancelCalls int
	cancelErrs  []error
	cancelRes   billing.CancelResult
	cancelReqs  []billing.AuthorityCancelRequest
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		stamped:   make(map[string]*billing.StampResult),
		cancelRes: billing.CancelResult{Outcome: billing.CancelAccepted},
	}
}

func (f *fakeAuthority) Stamp(ctx context.Context, req billing.StampRequest) (*billing.StampResult, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, req.Token)
	if f.chains == nil {
		f.chains = make(map[string]bool)
	}
	f.chains[req.OriginalChain] = true
	late := f.commitAfterTimeout
	f.commitAfterTimeout = 0
	f.mu.Unlock()
	if late > 0 {
		<-ctx.Done()
		go func() {
			time.Sleep(late)
			f.mu.Lock()
			defer f.mu.Unlock()
			f.stampCalls++
			f.issue(req)
		}()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stampCalls++
	if len(f.stampErrs) > 0 {
		err := f.stampErrs[0]
		f.stampErrs = f.stampErrs[1:]
		return nil, err
	}
	res := f.issue(req)
	if f.loseNext {
		f.loseNext = false
		return nil, &domain.AuthorityError{Transient: true, Message: "tiempo de espera agotado leyendo la respuesta"}
	}
	return res, nil
}

// issue asigna folio al token; un token repetido recibe el mismo timbre.
func (f *fakeAuthority) issue(req billing.StampRequest) *billing.StampResult {
	if res, ok := f.stamped[req.Token]; ok {
		return res
	}
	res := &billing.StampResult{
		Folio:                      strings.ToUpper(uuid.NewString()),
		StampedAt:                  time.Now().UTC(),
		IssuerSeal:                 req.IssuerSeal,
		AuthoritySeal:              "sello-del-sat",
		AuthorityCertificateNumber: "00001000000509846663",
		AuthorityChain:             "||1.1|" + req.Token + "||",
	}
	f.stamped[req.Token] = res
	return res
}

func (f *fakeAuthority) QueryStatus(_ context.Context, token string) (*billing.StampResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	res, ok := f.stamped[token]
	return res, ok, nil
}

func (f *fakeAuthority) Cancel(_ context.Context, req billing.AuthorityCancelRequest) (*billing.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	f.cancelReqs = append(f.cancelReqs, req)
	if len(f.cancelErrs) > 0 {
		err := f.cancelErrs[0]
		f.cancelErrs = f.cancelErrs[1:]
		return nil, err
	}
	res := f.cancelRes
	return &res, nil
}

func (f *fakeAuthority) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fakeAuthority) folioCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stamped)
}

func (f *fakeAuthority) distinctChains() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chains)
}

func (f *fakeAuthority) calls() (stamp, query, cancel int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stampCalls, f.queryCalls, f.cancelCalls
}

// fakeSealer sello determinista derivado de la cadena.
type fakeSealer struct{}

func (fakeSealer) CertificateNumber() string { return "30001000000500003416" }

func (fakeSealer) Seal(chain string) (string, error) {
	return "sello:" + cfdi.ChainDigest(chain), nil
}

// conflictStore fuerza conflictos de versión en los primeros guardados.
type conflictStore struct {
	*memory.DocumentStore
	mu       sync.Mutex
	failNext int
}

func (s *conflictStore) Save(ctx context.Context, doc *entity.FiscalDocument, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return 0, domain.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.DocumentStore.Save(ctx, doc, expectedVersion)
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

const testTenant = "tenant-1"

func testConfig() billing.Config {
	return billing.Config{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMax:        5 * time.Millisecond,
		AttemptTimeout:    time.Second,
		CancelGraceWindow: 72 * time.Hour,
		ReconcileBatch:    50,
		ReconcileWorkers:  2,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// validDraft borrador de ingreso que pasa todas las validaciones.
func validDraft() *entity.FiscalDocument {
	now := time.Now().UTC()
	return &entity.FiscalDocument{
		ID:                   uuid.NewString(),
		TenantID:             testTenant,
		Kind:                 sat.DocumentKindIncome,
		PaymentMethod:        sat.PaymentMethodSingle,
		PaymentForm:          sat.PaymentFormCash,
		Currency:             sat.CurrencyMXN,
		Export:               sat.ExportNotApplies,
		ExpeditionPostalCode: "64000",
		Series:               "A",
		Number:               "1",
		Issuer:               entity.Party{RFC: "EKU9003173C9", Name: "ESCUELA KEMPER URGATE", FiscalRegime: "601"},
		Receiver:             entity.Party{RFC: "CACX7605101P8", Name: "XOCHILT CASAS CHAVEZ", FiscalRegime: "612", PostalCode: "36257", Usage: "G03"},
		Concepts: []entity.Concept{{
			ProductCode: "90101501",
			UnitCode:    "E48",
			Unit:        "Servicio",
			Description: "Consumo de alimentos",
			Quantity:    dec("2"),
			UnitValue:   dec("45.005"),
			TaxObject:   sat.TaxObjectYes,
			Taxes: []entity.Tax{{
				Kind:        entity.TaxTransferred,
				Code:        sat.TaxCodeIVA,
				FactorType:  sat.FactorRate,
				RateOrQuota: dec("0.16"),
			}},
		}},
		Status:    entity.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// saveDraft guarda un borrador válido y devuelve su ID.
func saveDraft(t *testing.T, store *memory.DocumentStore, mutate ...func(*entity.FiscalDocument)) string {
	t.Helper()
	doc := validDraft()
	for _, m := range mutate {
		m(doc)
	}
	_, err := store.Save(context.Background(), doc, 0)
	require.NoError(t, err)
	return doc.ID
}

type harness struct {
	store        *memory.DocumentStore
	authority    *fakeAuthority
	stamping     *billing.StampingCoordinator
	cancellation *billing.CancellationCoordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewDocumentStore()
	return newHarnessWithStore(t, store, store)
}

// newHarnessWithStore los coordinadores usan store; las aserciones leen de mem.
func newHarnessWithStore(t *testing.T, mem *memory.DocumentStore, store repository.DocumentStore) *harness {
	t.Helper()
	authority := newFakeAuthority()
	leaser := billing.NewLocalLeaser()
	cfg := testConfig()
	log := zerolog.Nop()
	return &harness{
		store:        mem,
		authority:    authority,
		stamping:     billing.NewStampingCoordinator(store, authority, fakeSealer{}, cfdi.NewValidator(nil), leaser, cfg, log),
		cancellation: billing.NewCancellationCoordinator(store, authority, leaser, cfg, log),
	}
}

// stampedDoc guarda y timbra un borrador válido.
func (h *harness) stampedDoc(t *testing.T) *entity.FiscalDocument {
	t.Helper()
	id := saveDraft(t, h.store)
	doc, err := h.stamping.Stamp(context.Background(), testTenant, id)
	require.NoError(t, err)
	require.Equal(t, entity.StatusStamped, doc.Status)
	return doc
}

func (h *harness) load(t *testing.T, id string) *entity.FiscalDocument {
	t.Helper()
	doc, _, err := h.store.Load(context.Background(), id)
	require.NoError(t, err)
	return doc
}
