// Package memory implementa los puertos de persistencia en memoria. Se usa en
// desarrollo (STORE_DRIVER=memory) y en pruebas.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

type record struct {
	doc     *entity.FiscalDocument
	version int64
}

// DocumentStore guarda copias profundas; nunca comparte estado con el llamador.
// El folio fiscal es único por tenant.
type DocumentStore struct {
	mu      sync.RWMutex
	docs    map[string]*record
	byFolio map[string]string // tenant|folio → id
}

// NewDocumentStore crea un store vacío.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:    make(map[string]*record),
		byFolio: make(map[string]string),
	}
}

func folioKey(tenantID, folio string) string {
	return tenantID + "|" + folio
}

// Load implementa repository.DocumentStore.
func (s *DocumentStore) Load(ctx context.Context, id string) (*entity.FiscalDocument, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[id]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	return rec.doc.Clone(), rec.version, nil
}

// Save implementa repository.DocumentStore con comparación de versión.
func (s *DocumentStore) Save(ctx context.Context, doc *entity.FiscalDocument, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.docs[doc.ID]
	switch {
	case !exists && expectedVersion != 0:
		return 0, domain.ErrNotFound
	case exists && rec.version != expectedVersion:
		return 0, domain.ErrVersionConflict
	}

	if doc.IsStamped() {
		key := folioKey(doc.TenantID, doc.Stamp.Folio)
		if owner, ok := s.byFolio[key]; ok && owner != doc.ID {
			return 0, domain.ErrDuplicate
		}
		s.byFolio[key] = doc.ID
	}

	next := expectedVersion + 1
	s.docs[doc.ID] = &record{doc: doc.Clone(), version: next}
	return next, nil
}

// FindByFolio implementa repository.DocumentStore. Retorna nil si no existe.
func (s *DocumentStore) FindByFolio(ctx context.Context, tenantID, folio string) (*entity.FiscalDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFolio[folioKey(tenantID, folio)]
	if !ok {
		return nil, nil
	}
	return s.docs[id].doc.Clone(), nil
}

// ListByStatus implementa repository.DocumentStore.
func (s *DocumentStore) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]*entity.FiscalDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	s.mu.RLock()
	out := make([]*entity.FiscalDocument, 0)
	for _, rec := range s.docs {
		if wanted[rec.doc.Status] {
			out = append(out, rec.doc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, offset), nil
}

// ListByTenant implementa repository.DocumentStore.
func (s *DocumentStore) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*entity.FiscalDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*entity.FiscalDocument, 0)
	for _, rec := range s.docs {
		if rec.doc.TenantID == tenantID {
			out = append(out, rec.doc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// page aplica offset y limit (limit <= 0 no limita).
func page(docs []*entity.FiscalDocument, limit, offset int) []*entity.FiscalDocument {
	if offset >= len(docs) {
		return []*entity.FiscalDocument{}
	}
	docs = docs[offset:]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
