package billing

import (
	"context"
	"sync"
)

// LocalLeaser arrendamientos en proceso, uno por clave. Sirve a una sola instancia;
// con varias instancias usar postgres.AdvisoryLeaser.
type LocalLeaser struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocalLeaser crea el leaser en memoria.
func NewLocalLeaser() *LocalLeaser {
	return &LocalLeaser{held: make(map[string]chan struct{})}
}

// Acquire implementa Leaser. Los que esperan se despiertan al liberar y compiten de nuevo.
func (l *LocalLeaser) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

var _ Leaser = (*LocalLeaser)(nil)

// leaseKey clave de arrendamiento de un documento.
func leaseKey(documentID string) string {
	return "cfdi:" + documentID
}
