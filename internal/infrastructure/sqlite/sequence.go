package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
)

var _ billing.NumberSequence = (*NumberSequence)(nil)

// NumberSequence folio interno consecutivo por tenant y serie.
type NumberSequence struct {
	db *sql.DB
}

// NewNumberSequence construye la secuencia sobre una base abierta con Open.
func NewNumberSequence(d *DB) *NumberSequence {
	return &NumberSequence{db: d.db}
}

// Next implementa billing.NumberSequence.
func (s *NumberSequence) Next(ctx context.Context, tenantID, series string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_sequences (tenant_id, series, last_value)
		VALUES (?, ?, 1)
		ON CONFLICT (tenant_id, series) DO UPDATE SET last_value = last_value + 1
		RETURNING last_value`, tenantID, series).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("siguiente folio %s/%s: %w", tenantID, series, err)
	}
	return next, nil
}
