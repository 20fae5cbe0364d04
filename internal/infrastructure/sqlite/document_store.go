package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

// timeLayout ancho fijo en UTC: el orden lexicográfico coincide con el cronológico.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DocumentStore implementa repository.DocumentStore sobre SQLite.
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore construye el store sobre una base abierta con Open.
func NewDocumentStore(d *DB) *DocumentStore {
	return &DocumentStore{db: d.db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Load implementa repository.DocumentStore.
func (s *DocumentStore) Load(ctx context.Context, id string) (*entity.FiscalDocument, int64, error) {
	var (
		data    string
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, version FROM fiscal_documents WHERE id = ?`, id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, domain.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get fiscal document: %w", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, 0, err
	}
	return doc, version, nil
}

// Save implementa repository.DocumentStore con comparación de versión.
func (s *DocumentStore) Save(ctx context.Context, doc *entity.FiscalDocument, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("serializar documento: %w", err)
	}
	var folio sql.NullString
	if doc.IsStamped() {
		folio = sql.NullString{String: doc.Stamp.Folio, Valid: true}
	}

	if expectedVersion == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO fiscal_documents (id, tenant_id, location_id, status, folio, total, version, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			doc.ID, doc.TenantID, doc.LocationID, doc.Status, folio, doc.Totals.Total.String(), string(data),
			formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt),
		)
		if err != nil {
			return 0, saveError(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, domain.ErrVersionConflict
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE fiscal_documents
		SET status = ?, folio = ?, total = ?, data = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		doc.Status, folio, doc.Totals.Total.String(), string(data), formatTime(doc.UpdatedAt), doc.ID, expectedVersion,
	)
	if err != nil {
		return 0, saveError(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return expectedVersion + 1, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_documents WHERE id = ?)`, doc.ID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("verificar documento: %w", err)
	}
	if !exists {
		return 0, domain.ErrNotFound
	}
	return 0, domain.ErrVersionConflict
}

// FindByFolio implementa repository.DocumentStore. Retorna nil si no existe.
func (s *DocumentStore) FindByFolio(ctx context.Context, tenantID, folio string) (*entity.FiscalDocument, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM fiscal_documents WHERE tenant_id = ? AND folio = ?`, tenantID, folio,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fiscal document by folio: %w", err)
	}
	return decodeDocument(data)
}

// ListByStatus implementa repository.DocumentStore. limit <= 0 no limita.
func (s *DocumentStore) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]*entity.FiscalDocument, error) {
	if len(statuses) == 0 {
		return []*entity.FiscalDocument{}, nil
	}
	args := make([]any, 0, len(statuses)+2)
	for _, st := range statuses {
		args = append(args, st)
	}
	args = append(args, sqlLimit(limit), offset)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM fiscal_documents
		WHERE status IN (`+placeholders+`)
		ORDER BY updated_at ASC, id ASC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list fiscal documents by status: %w", err)
	}
	return scanDocuments(rows)
}

// ListByTenant implementa repository.DocumentStore.
func (s *DocumentStore) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*entity.FiscalDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM fiscal_documents
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, tenantID, sqlLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list fiscal documents by tenant: %w", err)
	}
	return scanDocuments(rows)
}

// sqlLimit en SQLite LIMIT -1 significa sin límite.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func scanDocuments(rows *sql.Rows) ([]*entity.FiscalDocument, error) {
	defer rows.Close()
	out := make([]*entity.FiscalDocument, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("leer documento: %w", err)
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leer documentos: %w", err)
	}
	return out, nil
}

func decodeDocument(data string) (*entity.FiscalDocument, error) {
	var doc entity.FiscalDocument
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("deserializar documento: %w", err)
	}
	return &doc, nil
}

func saveError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: folio fiscal ya asignado a otro documento", domain.ErrDuplicate)
	}
	return fmt.Errorf("save fiscal document: %w", err)
}
