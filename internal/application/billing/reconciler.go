package billing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
)

// Reconciler trabajador periódico:
//   - reintenta documentos en ERROR transitorio cuyo próximo reintento ya venció,
//   - resuelve documentos PENDING abandonados (respuesta perdida o proceso caído),
//   - aplica la aceptación tácita de cancelaciones vencidas.
//
// Toda la lógica de estado vive en los coordinadores; aquí solo se seleccionan
// candidatos y se reparte el trabajo con concurrencia acotada.
type Reconciler struct {
	store        repository.DocumentStore
	stamping     *StampingCoordinator
	cancellation *CancellationCoordinator
	cfg          Config
	log          zerolog.Logger
	now          func() time.Time
}

// NewReconciler construye el trabajador.
func NewReconciler(
	store repository.DocumentStore,
	stamping *StampingCoordinator,
	cancellation *CancellationCoordinator,
	cfg Config,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		store:        store,
		stamping:     stamping,
		cancellation: cancellation,
		cfg:          cfg.withDefaults(),
		log:          log,
		now:          time.Now,
	}
}

// ReconcileReport resumen de una pasada.
type ReconcileReport struct {
	Candidates int
	Stamped    int
	Failed     int
	Expired    int
}

// Run ejecuta RunOnce cada ReconcileInterval hasta que ctx se cancele.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error().Err(err).Msg("pasada de conciliación fallida")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce ejecuta una pasada.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	now := r.now()

	candidates, err := collectPages(ctx, r.store, []string{entity.StatusError, entity.StatusPending}, r.cfg.ReconcileBatch,
		func(d *entity.FiscalDocument) bool { return r.isCandidate(d, now) })
	if err != nil {
		return report, err
	}
	report.Candidates = len(candidates)

	type outcome struct{ stamped bool }
	results := make([]outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ReconcileWorkers)
	for i, d := range candidates {
		g.Go(func() error {
			doc, err := r.stamping.Stamp(gctx, d.TenantID, d.ID)
			if err != nil {
				// Un documento fallido no detiene a los demás.
				r.log.Warn().Err(err).Str("document_id", d.ID).Msg("conciliación: documento sigue sin timbrar")
				return nil
			}
			results[i].stamped = doc != nil && doc.Status == entity.StatusStamped
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	for _, res := range results {
		if res.stamped {
			report.Stamped++
		} else {
			report.Failed++
		}
	}

	if r.cancellation != nil {
		expired, err := r.cancellation.ExpireAcceptanceWindows(ctx, now)
		if err != nil {
			return report, err
		}
		report.Expired = expired
	}

	if report.Candidates > 0 || report.Expired > 0 {
		r.log.Info().
			Int("candidates", report.Candidates).
			Int("stamped", report.Stamped).
			Int("failed", report.Failed).
			Int("expired", report.Expired).
			Msg("pasada de conciliación")
	}
	return report, ctx.Err()
}

// isCandidate ERROR transitorio con reintento vencido, o PENDING sin cambios por más
// de dos timeouts de intento (nadie tiene el arrendamiento en curso).
func (r *Reconciler) isCandidate(d *entity.FiscalDocument, now time.Time) bool {
	switch d.Status {
	case entity.StatusError:
		if !d.Stamping.Retryable {
			return false
		}
		return d.Stamping.NextRetryAt == nil || !now.Before(*d.Stamping.NextRetryAt)
	case entity.StatusPending:
		return now.Sub(d.UpdatedAt) > 2*r.cfg.AttemptTimeout
	default:
		return false
	}
}

// collectPages recorre los documentos en los estados dados, página por página,
// hasta reunir batch documentos que cumplan keep o agotar la lista. Los que no
// califican (ERROR definitivo, cancelaciones ya resueltas) no desplazan a los
// siguientes. Se listan todos antes de procesar: procesar cambia updated_at y
// movería los documentos entre páginas.
func collectPages(
	ctx context.Context,
	store repository.DocumentStore,
	statuses []string,
	batch int,
	keep func(*entity.FiscalDocument) bool,
) ([]*entity.FiscalDocument, error) {
	out := make([]*entity.FiscalDocument, 0)
	for offset := 0; ; offset += batch {
		docs, err := store.ListByStatus(ctx, statuses, batch, offset)
		if err != nil {
			return out, err
		}
		for _, d := range docs {
			if !keep(d) {
				continue
			}
			out = append(out, d)
			if len(out) == batch {
				return out, nil
			}
		}
		if len(docs) < batch {
			return out, nil
		}
	}
}
