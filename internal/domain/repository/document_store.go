package repository

import (
	"context"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// DocumentStore define el puerto de persistencia de FiscalDocument con concurrencia
// optimista. Es el único dueño durable del documento; el llamador trabaja sobre copias.
type DocumentStore interface {
	// Load devuelve una copia del documento y su versión actual.
	// Retorna domain.ErrNotFound si no existe.
	Load(ctx context.Context, id string) (*entity.FiscalDocument, int64, error)

	// Save persiste el documento si la versión almacenada es expectedVersion
	// (0 para crear). Retorna la nueva versión o domain.ErrVersionConflict.
	Save(ctx context.Context, doc *entity.FiscalDocument, expectedVersion int64) (int64, error)

	// FindByFolio busca un documento timbrado por su folio fiscal dentro del tenant.
	// Retorna (nil, nil) si no existe.
	FindByFolio(ctx context.Context, tenantID, folio string) (*entity.FiscalDocument, error)

	// ListByStatus lista documentos (de cualquier tenant) en alguno de los estados dados,
	// del más antiguo al más reciente y con el ID como desempate. Lo usa el conciliador
	// para recorrer la lista por páginas.
	ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]*entity.FiscalDocument, error)

	// ListByTenant lista documentos del tenant, del más reciente al más antiguo.
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*entity.FiscalDocument, error)
}
