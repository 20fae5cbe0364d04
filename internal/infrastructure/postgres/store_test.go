package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// fakeRow fila preprogramada: copia values en dest o devuelve err.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *bool:
			*p = r.values[i].(bool)
		case *int64:
			*p = r.values[i].(int64)
		case *[]byte:
			*p = r.values[i].([]byte)
		default:
			return errors.New("tipo no soportado")
		}
	}
	return nil
}

// fakeQuerier responde QueryRow en orden y registra las sentencias.
type fakeQuerier struct {
	rows    []fakeRow
	queries []string
	execErr error
	tag     pgconn.CommandTag
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	return f.tag, f.execErr
}

func (f *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	return nil, errors.New("no implementado")
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	if len(f.rows) == 0 {
		return fakeRow{err: errors.New("sin filas programadas")}
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func sampleDoc() *entity.FiscalDocument {
	return &entity.FiscalDocument{
		ID:       "doc-1",
		TenantID: "tenant-1",
		Status:   entity.StatusStamped,
		Totals:   entity.Totals{Total: decimal.RequireFromString("104.41")},
		Stamp:    &entity.Stamp{Folio: "6F8A5C3B-2D1E-4F7A-9B0C-1D2E3F4A5B6C"},
		Concepts: []entity.Concept{
			{Quantity: decimal.RequireFromString("2"), UnitValue: decimal.RequireFromString("45.005")},
		},
		CreatedAt: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC),
	}
}

func TestDocumentStore_LoadDecodificaJSON(t *testing.T) {
	data, err := json.Marshal(sampleDoc())
	require.NoError(t, err)
	q := &fakeQuerier{rows: []fakeRow{{values: []any{data, int64(3)}}}}

	doc, ver, err := NewDocumentStore(q).Load(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), ver)
	assert.Equal(t, "6F8A5C3B-2D1E-4F7A-9B0C-1D2E3F4A5B6C", doc.Stamp.Folio)
	assert.Equal(t, "45.005", doc.Concepts[0].UnitValue.String(), "los decimales conservan su precisión")
}

func TestDocumentStore_LoadInexistente(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{{err: pgx.ErrNoRows}}}
	_, _, err := NewDocumentStore(q).Load(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SaveConflictoDeVersion(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{
		{err: pgx.ErrNoRows},  // el UPDATE condicionado no afectó filas
		{values: []any{true}}, // el documento existe
	}}
	_, err := NewDocumentStore(q).Save(context.Background(), sampleDoc(), 2)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestDocumentStore_SaveInexistente(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{{err: pgx.ErrNoRows}, {values: []any{false}}}}
	_, err := NewDocumentStore(q).Save(context.Background(), sampleDoc(), 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SaveIncrementaVersion(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{{values: []any{int64(3)}}}}
	ver, err := NewDocumentStore(q).Save(context.Background(), sampleDoc(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ver)
}

func TestDocumentStore_InsertDuplicadoEsConflicto(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("INSERT 0 0")}
	_, err := NewDocumentStore(q).Save(context.Background(), sampleDoc(), 0)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	q = &fakeQuerier{tag: pgconn.NewCommandTag("INSERT 0 1")}
	ver, err := NewDocumentStore(q).Save(context.Background(), sampleDoc(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
}

func TestDocumentStore_FolioDuplicado(t *testing.T) {
	q := &fakeQuerier{execErr: &pgconn.PgError{Code: "23505"}}
	_, err := NewDocumentStore(q).Save(context.Background(), sampleDoc(), 0)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestCatalogLookup_RecuerdaAciertos(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{{values: []any{true}}, {values: []any{false}}, {values: []any{false}}}}
	lookup := NewCatalogLookup(q)

	for i := 0; i < 3; i++ {
		ok, err := lookup.Exists(context.Background(), sat.CatalogProductCode, "90101501")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	for i := 0; i < 2; i++ {
		ok, err := lookup.Exists(context.Background(), sat.CatalogProductCode, "99999999")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Len(t, q.queries, 3, "un acierto se consulta una vez; los fallos siempre")
}

func TestMigrate_TomaLockYAplicaEnOrden(t *testing.T) {
	q := &fakeQuerier{}
	require.NoError(t, Migrate(context.Background(), q))
	require.GreaterOrEqual(t, len(q.queries), 2)
	assert.Contains(t, q.queries[0], "pg_advisory_xact_lock")
	assert.Contains(t, q.queries[1], "fiscal_documents")
}

func TestMigrate_FallaDelLock(t *testing.T) {
	q := &fakeQuerier{execErr: errors.New("conexión cerrada")}
	err := Migrate(context.Background(), q)
	assert.ErrorContains(t, err, "lock de migraciones")
	assert.Len(t, q.queries, 1)
}

func TestClasificacionDeErrores(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(errors.New("23505 en el texto no cuenta")))
	assert.True(t, isRetryableTx(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryableTx(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetryableTx(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
}
