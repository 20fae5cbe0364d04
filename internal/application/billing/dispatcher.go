package billing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// StampDispatcher dispara el timbrado fuera del ciclo HTTP:
//
//	POST /stamp?async=true → 202 Accepted → goroutine → STAMPED | ERROR
//
// Cada envío corre con su propio context.Background() y un tope de tiempo que
// cubre todos los intentos; el cliente consulta el resultado con GET /status.
// Lo que no termine aquí lo recoge el conciliador.
type StampDispatcher struct {
	stamping *StampingCoordinator
	timeout  time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewStampDispatcher construye el despachador. El tope por documento es
// MaxAttempts × (AttemptTimeout + BackoffMax).
func NewStampDispatcher(stamping *StampingCoordinator, cfg Config, log zerolog.Logger) *StampDispatcher {
	cfg = cfg.withDefaults()
	return &StampDispatcher{
		stamping: stamping,
		timeout:  time.Duration(cfg.MaxAttempts) * (cfg.AttemptTimeout + cfg.BackoffMax),
		log:      log,
	}
}

// ProcessAsync timbra el documento en una goroutine independiente.
func (d *StampDispatcher) ProcessAsync(tenantID, id string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.process(tenantID, id)
	}()
}

func (d *StampDispatcher) process(tenantID, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	logger := d.log.With().Str("document_id", id).Str("tenant_id", tenantID).Logger()
	doc, err := d.stamping.Stamp(ctx, tenantID, id)
	if err != nil {
		logger.Warn().Err(err).Msg("timbrado en segundo plano sin éxito")
		return
	}
	if doc != nil && doc.Status == entity.StatusStamped {
		logger.Info().Str("folio", doc.Stamp.Folio).Msg("timbrado en segundo plano completado")
	}
}

// Wait bloquea hasta que terminen los envíos en curso (apagado ordenado).
func (d *StampDispatcher) Wait() {
	d.wg.Wait()
}
