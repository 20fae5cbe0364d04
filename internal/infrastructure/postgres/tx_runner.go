package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultTxAttempts intentos ante serialization_failure o deadlock.
const defaultTxAttempts = 3

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL y repite la
// transacción completa si el servidor la aborta por serialización o deadlock.
type TxRunner struct {
	pool     *pgxpool.Pool
	opts     pgx.TxOptions
	attempts int
}

// NewTxRunner construye el runner con el pool (READ COMMITTED).
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool, attempts: defaultTxAttempts}
}

// WithIsolation devuelve una copia del runner con el nivel de aislamiento dado.
func (r *TxRunner) WithIsolation(level pgx.TxIsoLevel) *TxRunner {
	cp := *r
	cp.opts.IsoLevel = level
	return &cp
}

// Run ejecuta fn con la tx como Querier. fn debe ser repetible: puede correr
// más de una vez si la transacción se aborta por conflicto.
func (r *TxRunner) Run(ctx context.Context, fn func(q Querier) error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = r.runOnce(ctx, fn)
		if err == nil || !isRetryableTx(err) {
			return err
		}
	}
	return fmt.Errorf("transacción abortada tras %d intentos: %w", r.attempts, err)
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.pool.BeginTx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
