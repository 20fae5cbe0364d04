package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

// DocumentStore persiste el CFDI completo como JSONB con control de versión
// optimista: cada Save es un UPDATE condicionado a la versión esperada.
type DocumentStore struct {
	q Querier
}

// NewDocumentStore construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentStore(q Querier) *DocumentStore {
	return &DocumentStore{q: q}
}

// Load implementa repository.DocumentStore.
func (s *DocumentStore) Load(ctx context.Context, id string) (*entity.FiscalDocument, int64, error) {
	var (
		data    []byte
		version int64
	)
	err := s.q.QueryRow(ctx, `SELECT data, version FROM fiscal_documents WHERE id = $1`, id).Scan(&data, &version)
	if err != nil {
		if isNoRows(err) {
			return nil, 0, domain.ErrNotFound
		}
		return nil, 0, fmt.Errorf("get fiscal document: %w", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, 0, err
	}
	return doc, version, nil
}

// Save implementa repository.DocumentStore. expectedVersion 0 inserta; un id
// existente en ese caso es conflicto de versión.
func (s *DocumentStore) Save(ctx context.Context, doc *entity.FiscalDocument, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("serializar documento: %w", err)
	}
	var folio *string
	if doc.IsStamped() {
		folio = &doc.Stamp.Folio
	}

	if expectedVersion == 0 {
		tag, err := s.q.Exec(ctx, `
			INSERT INTO fiscal_documents (id, tenant_id, location_id, status, folio, total, version, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			doc.ID, doc.TenantID, doc.LocationID, doc.Status, folio, doc.Totals.Total, data, doc.CreatedAt, doc.UpdatedAt,
		)
		if err != nil {
			return 0, saveError(err)
		}
		if tag.RowsAffected() == 0 {
			return 0, domain.ErrVersionConflict
		}
		return 1, nil
	}

	var next int64
	err = s.q.QueryRow(ctx, `
		UPDATE fiscal_documents
		SET status = $3, folio = $4, total = $5, data = $6, updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`,
		doc.ID, expectedVersion, doc.Status, folio, doc.Totals.Total, data, doc.UpdatedAt,
	).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !isNoRows(err) {
		return 0, saveError(err)
	}

	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_documents WHERE id = $1)`, doc.ID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("verificar documento: %w", err)
	}
	if !exists {
		return 0, domain.ErrNotFound
	}
	return 0, domain.ErrVersionConflict
}

// FindByFolio implementa repository.DocumentStore. Retorna nil si no existe.
func (s *DocumentStore) FindByFolio(ctx context.Context, tenantID, folio string) (*entity.FiscalDocument, error) {
	var data []byte
	err := s.q.QueryRow(ctx,
		`SELECT data FROM fiscal_documents WHERE tenant_id = $1 AND folio = $2`, tenantID, folio,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal document by folio: %w", err)
	}
	return decodeDocument(data)
}

// ListByStatus implementa repository.DocumentStore. limit <= 0 no limita.
func (s *DocumentStore) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]*entity.FiscalDocument, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.q.Query(ctx, `
		SELECT data FROM fiscal_documents
		WHERE status = ANY($1)
		ORDER BY updated_at ASC, id ASC
		LIMIT $2 OFFSET $3`, statuses, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("list fiscal documents by status: %w", err)
	}
	return collectDocuments(rows)
}

// ListByTenant implementa repository.DocumentStore.
func (s *DocumentStore) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*entity.FiscalDocument, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.q.Query(ctx, `
		SELECT data FROM fiscal_documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, tenantID, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("list fiscal documents by tenant: %w", err)
	}
	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]*entity.FiscalDocument, error) {
	raw, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("leer documentos: %w", err)
	}
	out := make([]*entity.FiscalDocument, 0, len(raw))
	for _, data := range raw {
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func decodeDocument(data []byte) (*entity.FiscalDocument, error) {
	var doc entity.FiscalDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("deserializar documento: %w", err)
	}
	return &doc, nil
}

// saveError traduce la violación del índice único de folio.
func saveError(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: folio fiscal ya asignado a otro documento", domain.ErrDuplicate)
	}
	return fmt.Errorf("save fiscal document: %w", err)
}
