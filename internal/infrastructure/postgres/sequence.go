package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
)

var _ billing.NumberSequence = (*NumberSequence)(nil)

// NumberSequence folio interno consecutivo por tenant y serie (upsert atómico).
type NumberSequence struct {
	q Querier
}

// NewNumberSequence construye el adaptador.
func NewNumberSequence(q Querier) *NumberSequence {
	return &NumberSequence{q: q}
}

// Next implementa billing.NumberSequence.
func (s *NumberSequence) Next(ctx context.Context, tenantID, series string) (int64, error) {
	var next int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO document_sequences (tenant_id, series, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, series) DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, tenantID, series).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("siguiente folio %s/%s: %w", tenantID, series, err)
	}
	return next, nil
}
