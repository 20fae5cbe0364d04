package memory

import (
	"context"
	"sync"
)

// NumberSequence folio interno consecutivo por tenant y serie.
type NumberSequence struct {
	mu   sync.Mutex
	next map[string]int64
}

// NewNumberSequence crea la secuencia; cada serie empieza en 1.
func NewNumberSequence() *NumberSequence {
	return &NumberSequence{next: make(map[string]int64)}
}

// Next devuelve el siguiente número de la serie.
func (s *NumberSequence) Next(ctx context.Context, tenantID, series string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantID + "|" + series
	s.next[key]++
	return s.next[key], nil
}
