package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// Reglas de precondición de cancelación.
const (
	RuleNotStamped        = "DOCUMENTO_NO_TIMBRADO"
	RuleRelatedRequired   = "FOLIO_RELACIONADO_REQUERIDO"
	RuleRelatedNotAllowed = "FOLIO_RELACIONADO_NO_PERMITIDO"
	RuleRelatedInvalid    = "FOLIO_RELACIONADO_INVALIDO"
	RuleNotAwaiting       = "SIN_ACEPTACION_PENDIENTE"
)

// CancelRequest solicitud de cancelación del llamador.
type CancelRequest struct {
	Motive       string
	RelatedFolio string
}

// CancellationCoordinator lleva un documento timbrado a CANCELLED:
//
//	STAMPED → CANCELLATION_REQUESTED → CANCELLED
//	                               ↘ (aceptación del receptor) → CANCELLED | STAMPED
//
// Las reglas del motivo se validan antes de cualquier llamada al PAC.
type CancellationCoordinator struct {
	store     repository.DocumentStore
	authority CertificationAuthority
	leaser    Leaser
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewCancellationCoordinator construye el coordinador.
func NewCancellationCoordinator(
	store repository.DocumentStore,
	authority CertificationAuthority,
	leaser Leaser,
	cfg Config,
	log zerolog.Logger,
) *CancellationCoordinator {
	return &CancellationCoordinator{
		store:     store,
		authority: authority,
		leaser:    leaser,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       time.Now,
	}
}

// Cancel solicita la cancelación. "Ya cancelado" se trata como éxito. Con aceptación
// pendiente del receptor el documento queda en CANCELLATION_REQUESTED hasta que
// responda o venza el plazo.
func (c *CancellationCoordinator) Cancel(ctx context.Context, tenantID, id string, req CancelRequest) (*entity.FiscalDocument, error) {
	req.Motive = strings.TrimSpace(req.Motive)
	req.RelatedFolio = strings.ToUpper(strings.TrimSpace(req.RelatedFolio))
	if res := sat.ValidateField(sat.FieldCancellationMotive, req.Motive); !res.OK {
		return nil, &domain.ValidationError{Violations: []entity.Violation{{
			Kind:    entity.ViolationCatalog,
			Field:   "motivo",
			Code:    res.Reason,
			Message: fmt.Sprintf("motivo de cancelación %q inválido", req.Motive),
		}}}
	}

	var last attemptResult
	for try := 1; try <= c.cfg.MaxAttempts; try++ {
		last = c.attempt(ctx, tenantID, id, req)
		if !last.retry {
			return last.doc, last.err
		}
		if try == c.cfg.MaxAttempts {
			break
		}
		delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffMax, try)
		c.log.Debug().Str("document_id", id).Int("try", try).Dur("backoff", delay).Err(last.err).Msg("reintentando cancelación")
		if err := sleepCtx(ctx, delay); err != nil {
			return last.doc, fmt.Errorf("cancelación interrumpida: %w", errors.Join(last.err, err))
		}
	}
	return last.doc, fmt.Errorf("cancelación: %d intentos agotados: %w", c.cfg.MaxAttempts, last.err)
}

func (c *CancellationCoordinator) attempt(ctx context.Context, tenantID, id string, req CancelRequest) attemptResult {
	release, err := c.leaser.Acquire(ctx, leaseKey(id))
	if err != nil {
		return attemptResult{err: fmt.Errorf("arrendamiento del documento %s: %w", id, err)}
	}
	defer release()

	doc, ver, err := c.store.Load(ctx, id)
	if err != nil {
		return attemptResult{err: err}
	}
	if doc.TenantID != tenantID {
		return attemptResult{err: domain.ErrForbidden}
	}
	logger := c.log.With().Str("document_id", doc.ID).Str("tenant_id", doc.TenantID).Logger()

	switch doc.Status {
	case entity.StatusCancelled:
		return attemptResult{doc: doc}
	case entity.StatusCancellationRequested:
		if doc.Cancellation != nil && doc.Cancellation.SubStatus == entity.CancellationAwaitingReceiver {
			return attemptResult{doc: doc}
		}
		// solicitud previa sin respuesta definitiva: se reenvía
	case entity.StatusStamped:
	default:
		return attemptResult{doc: doc, err: &domain.PreconditionError{
			Rule:   RuleNotStamped,
			Detail: fmt.Sprintf("solo se cancelan documentos timbrados (estado %s)", doc.Status),
		}}
	}
	if !doc.IsStamped() {
		return attemptResult{doc: doc, err: &domain.PreconditionError{Rule: RuleNotStamped, Detail: "el documento no tiene folio fiscal"}}
	}

	// ── 1. Precondiciones del motivo (sin llamadas externas) ─────────────────
	if err := c.checkMotive(ctx, doc, req); err != nil {
		return attemptResult{doc: doc, err: err}
	}

	// ── 2. STAMPED → CANCELLATION_REQUESTED ──────────────────────────────────
	now := c.now()
	if doc.Status == entity.StatusStamped {
		doc.Status = entity.StatusCancellationRequested
		doc.Cancellation = &entity.Cancellation{
			Motive:       req.Motive,
			RelatedFolio: req.RelatedFolio,
			RequestedAt:  now,
		}
		if ver, err = c.save(ctx, doc, ver); err != nil {
			return attemptResult{doc: doc, err: err, retry: errors.Is(err, domain.ErrVersionConflict)}
		}
		logger.Info().Str("status", doc.Status).Str("motive", req.Motive).Msg("cancelación solicitada")
	} else {
		doc.Cancellation.Motive = req.Motive
		doc.Cancellation.RelatedFolio = req.RelatedFolio
	}

	// ── 3. Llamada al PAC ────────────────────────────────────────────────────
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	res, err := c.authority.Cancel(callCtx, AuthorityCancelRequest{
		IssuerRFC:    doc.Issuer.RFC,
		ReceiverRFC:  doc.Receiver.RFC,
		Folio:        doc.Stamp.Folio,
		Motive:       doc.Cancellation.Motive,
		RelatedFolio: doc.Cancellation.RelatedFolio,
		Total:        doc.Totals.Total,
	})
	cancel()
	if err != nil {
		if isTransient(err) {
			// Queda en CANCELLATION_REQUESTED; se puede volver a invocar.
			doc.Cancellation.Message = err.Error()
			if _, sErr := c.save(context.WithoutCancel(ctx), doc, ver); sErr != nil {
				logger.Error().Err(sErr).Msg("no se pudo persistir la falla de cancelación")
			}
			logger.Warn().Err(err).Msg("falla transitoria al cancelar")
			return attemptResult{doc: doc, err: err, retry: ctx.Err() == nil}
		}
		return c.revert(ctx, doc, ver, entity.CancellationRejectedByPAC, err, logger)
	}

	// ── 4. Resultado ─────────────────────────────────────────────────────────
	switch res.Outcome {
	case CancelAccepted, CancelAlreadyCancelled:
		cancelledAt := res.CancelledAt
		if cancelledAt.IsZero() {
			cancelledAt = now
		}
		doc.Status = entity.StatusCancelled
		doc.Cancellation.CancelledAt = &cancelledAt
		doc.Cancellation.SubStatus = ""
		doc.Cancellation.Message = res.Reason
		if res.Outcome == CancelAlreadyCancelled && res.Reason == "" {
			doc.Cancellation.Message = "el PAC reporta el documento como ya cancelado"
		}
	case CancelPendingAcceptance:
		deadline := now.Add(c.cfg.CancelGraceWindow)
		doc.Cancellation.SubStatus = entity.CancellationAwaitingReceiver
		doc.Cancellation.AcceptanceDeadline = &deadline
		doc.Cancellation.Message = res.Reason
	case CancelRejected:
		return c.revert(ctx, doc, ver, entity.CancellationRejectedByPAC,
			&domain.AuthorityError{Code: "RECHAZADA", Message: res.Reason, Raw: res.Raw}, logger)
	default:
		return c.revert(ctx, doc, ver, entity.CancellationRejectedByPAC,
			&domain.AuthorityError{Message: fmt.Sprintf("resultado de cancelación desconocido %q", res.Outcome), Raw: res.Raw}, logger)
	}

	if _, err := c.save(context.WithoutCancel(ctx), doc, ver); err != nil {
		return attemptResult{doc: doc, err: err, retry: errors.Is(err, domain.ErrVersionConflict)}
	}
	logger.Info().
		Str("status", doc.Status).
		Str("sub_status", doc.Cancellation.SubStatus).
		Str("outcome", string(res.Outcome)).
		Msg("respuesta de cancelación registrada")
	return attemptResult{doc: doc}
}

// checkMotive el motivo 01 exige un folio relacionado de un documento timbrado del
// mismo tenant; los demás motivos no admiten folio relacionado.
func (c *CancellationCoordinator) checkMotive(ctx context.Context, doc *entity.FiscalDocument, req CancelRequest) error {
	if !sat.MotiveRequiresRelatedFolio(req.Motive) {
		if req.RelatedFolio != "" {
			return &domain.PreconditionError{
				Rule:   RuleRelatedNotAllowed,
				Detail: fmt.Sprintf("el motivo %s no admite folio relacionado", req.Motive),
			}
		}
		return nil
	}
	if req.RelatedFolio == "" {
		return &domain.PreconditionError{
			Rule:   RuleRelatedRequired,
			Detail: fmt.Sprintf("el motivo %s requiere el folio fiscal del comprobante que sustituye", req.Motive),
		}
	}
	if !sat.ValidateField(sat.FieldFolio, req.RelatedFolio).OK || strings.EqualFold(req.RelatedFolio, doc.Stamp.Folio) {
		return &domain.PreconditionError{Rule: RuleRelatedInvalid, Detail: "folio relacionado inválido: " + req.RelatedFolio}
	}
	related, err := c.store.FindByFolio(ctx, doc.TenantID, req.RelatedFolio)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("buscar folio relacionado: %w", err)
	}
	if related == nil {
		return &domain.PreconditionError{Rule: RuleRelatedInvalid, Detail: "el folio relacionado no existe: " + req.RelatedFolio}
	}
	if related.Status != entity.StatusStamped {
		return &domain.PreconditionError{
			Rule:   RuleRelatedInvalid,
			Detail: fmt.Sprintf("el comprobante relacionado está en estado %s; debe estar timbrado", related.Status),
		}
	}
	return nil
}

// revert regresa el documento a STAMPED conservando el motivo del rechazo.
func (c *CancellationCoordinator) revert(
	ctx context.Context,
	doc *entity.FiscalDocument,
	ver int64,
	subStatus string,
	cause error,
	logger zerolog.Logger,
) attemptResult {
	doc.Status = entity.StatusStamped
	doc.Cancellation.SubStatus = subStatus
	doc.Cancellation.AcceptanceDeadline = nil
	doc.Cancellation.Message = cause.Error()
	if _, err := c.save(context.WithoutCancel(ctx), doc, ver); err != nil {
		logger.Error().Err(err).Msg("no se pudo persistir el rechazo de cancelación")
		return attemptResult{doc: doc, err: errors.Join(cause, err), retry: errors.Is(err, domain.ErrVersionConflict)}
	}
	logger.Warn().Str("status", doc.Status).Str("sub_status", subStatus).Err(cause).Msg("cancelación rechazada")
	return attemptResult{doc: doc, err: cause}
}

// RecordReceiverResponse registra la respuesta del receptor a una cancelación que
// requiere su aceptación.
func (c *CancellationCoordinator) RecordReceiverResponse(ctx context.Context, tenantID, id string, accepted bool) (*entity.FiscalDocument, error) {
	release, err := c.leaser.Acquire(ctx, leaseKey(id))
	if err != nil {
		return nil, fmt.Errorf("arrendamiento del documento %s: %w", id, err)
	}
	defer release()

	doc, ver, err := c.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.TenantID != tenantID {
		return nil, domain.ErrForbidden
	}
	if doc.Status != entity.StatusCancellationRequested || doc.Cancellation == nil ||
		doc.Cancellation.SubStatus != entity.CancellationAwaitingReceiver {
		return doc, &domain.PreconditionError{Rule: RuleNotAwaiting, Detail: "el documento no espera respuesta del receptor"}
	}

	now := c.now()
	if accepted {
		doc.Status = entity.StatusCancelled
		doc.Cancellation.SubStatus = entity.CancellationAcceptedByReceiver
		doc.Cancellation.CancelledAt = &now
	} else {
		doc.Status = entity.StatusStamped
		doc.Cancellation.SubStatus = entity.CancellationRejectedByReceiver
	}
	doc.Cancellation.AcceptanceDeadline = nil
	if _, err := c.save(ctx, doc, ver); err != nil {
		return doc, err
	}
	c.log.Info().
		Str("document_id", doc.ID).
		Str("status", doc.Status).
		Str("sub_status", doc.Cancellation.SubStatus).
		Msg("respuesta del receptor registrada")
	return doc, nil
}

// ExpireAcceptanceWindows aplica la aceptación tácita a las cancelaciones cuyo plazo
// venció sin respuesta del receptor. Devuelve cuántos documentos pasaron a CANCELLED.
func (c *CancellationCoordinator) ExpireAcceptanceWindows(ctx context.Context, now time.Time) (int, error) {
	docs, err := collectPages(ctx, c.store, []string{entity.StatusCancellationRequested}, c.cfg.ReconcileBatch,
		func(d *entity.FiscalDocument) bool { return acceptanceExpired(d, now) })
	if err != nil {
		return 0, fmt.Errorf("listar cancelaciones pendientes: %w", err)
	}
	expired := 0
	for _, d := range docs {
		ok, err := c.expireOne(ctx, d.ID, now)
		if err != nil {
			c.log.Error().Err(err).Str("document_id", d.ID).Msg("no se pudo aplicar aceptación tácita")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func acceptanceExpired(d *entity.FiscalDocument, now time.Time) bool {
	return d.Status == entity.StatusCancellationRequested &&
		d.Cancellation != nil &&
		d.Cancellation.SubStatus == entity.CancellationAwaitingReceiver &&
		d.Cancellation.AcceptanceDeadline != nil &&
		!now.Before(*d.Cancellation.AcceptanceDeadline)
}

func (c *CancellationCoordinator) expireOne(ctx context.Context, id string, now time.Time) (bool, error) {
	release, err := c.leaser.Acquire(ctx, leaseKey(id))
	if err != nil {
		return false, err
	}
	defer release()

	doc, ver, err := c.store.Load(ctx, id)
	if err != nil {
		return false, err
	}
	// Revalidar bajo el arrendamiento: el receptor pudo haber respondido.
	if !acceptanceExpired(doc, now) {
		return false, nil
	}
	doc.Status = entity.StatusCancelled
	doc.Cancellation.SubStatus = entity.CancellationImplicitAcceptance
	doc.Cancellation.CancelledAt = &now
	doc.Cancellation.AcceptanceDeadline = nil
	if _, err := c.save(ctx, doc, ver); err != nil {
		return false, err
	}
	c.log.Info().Str("document_id", doc.ID).Str("status", doc.Status).Msg("aceptación tácita de cancelación")
	return true, nil
}

func (c *CancellationCoordinator) save(ctx context.Context, doc *entity.FiscalDocument, ver int64) (int64, error) {
	doc.UpdatedAt = c.now()
	return c.store.Save(ctx, doc, ver)
}
