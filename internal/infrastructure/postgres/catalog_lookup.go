package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

var _ sat.CatalogLookup = (*CatalogLookup)(nil)

// CatalogLookup consulta los catálogos del SAT cargados en sat_catalogs.
// Los aciertos se recuerdan: un código vigente no deja de existir durante el proceso.
type CatalogLookup struct {
	q    Querier
	mu   sync.RWMutex
	hits map[sat.Catalog]map[string]bool
}

// NewCatalogLookup construye el adaptador.
func NewCatalogLookup(q Querier) *CatalogLookup {
	return &CatalogLookup{q: q, hits: make(map[sat.Catalog]map[string]bool)}
}

// Exists implementa sat.CatalogLookup.
func (c *CatalogLookup) Exists(ctx context.Context, catalog sat.Catalog, code string) (bool, error) {
	c.mu.RLock()
	hit := c.hits[catalog][code]
	c.mu.RUnlock()
	if hit {
		return true, nil
	}

	var exists bool
	err := c.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sat_catalogs
			WHERE catalog = $1 AND code = $2
			  AND (valid_from IS NULL OR valid_from <= CURRENT_DATE)
			  AND (valid_to IS NULL OR valid_to >= CURRENT_DATE)
		)`, string(catalog), code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("consultar catálogo %s: %w", catalog, err)
	}
	if exists {
		c.mu.Lock()
		if c.hits[catalog] == nil {
			c.hits[catalog] = make(map[string]bool)
		}
		c.hits[catalog][code] = true
		c.mu.Unlock()
	}
	return exists, nil
}
