package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
)

var _ billing.Leaser = (*AdvisoryLeaser)(nil)

// AdvisoryLeaser arrendamiento por documento con pg_advisory_lock. Sirve cuando
// varias instancias del servicio comparten la base: el candado vive en la sesión,
// así que la conexión se retiene hasta liberar.
type AdvisoryLeaser struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewAdvisoryLeaser construye el leaser sobre el pool.
func NewAdvisoryLeaser(pool *pgxpool.Pool, log zerolog.Logger) *AdvisoryLeaser {
	return &AdvisoryLeaser{pool: pool, log: log}
}

// Acquire implementa billing.Leaser. Si ctx expira mientras espera, pgx cancela
// la consulta y se devuelve el error del contexto.
func (l *AdvisoryLeaser) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lease: obtener conexión: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		// La sesión pudo quedar con la consulta cancelada a medias: no se recicla.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("lease: pg_advisory_lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				l.log.Error().Err(err).Str("lease", key).Msg("liberar pg_advisory_lock")
				_ = conn.Conn().Close(context.Background())
			}
			conn.Release()
		})
	}, nil
}
