package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
)

// StampingCoordinator orquesta el ciclo de timbrado de un CFDI:
//
//	Calcular → Validar → Cadena original → Sello → PENDING → PAC → STAMPED | ERROR
//
// Cada intento se ejecuta bajo el arrendamiento del documento; la espera entre
// intentos (backoff exponencial) ocurre fuera del arrendamiento. Si el documento ya
// tuvo un intento, primero consulta al PAC con el token anterior y, si ese intento
// ya fue timbrado, concilia localmente en lugar de pedir un segundo timbre. Si el
// resultado del intento anterior es desconocido, se reenvía el mismo contenido con
// el mismo token; solo un resultado definitivo abre un intento nuevo.
type StampingCoordinator struct {
	store     repository.DocumentStore
	authority CertificationAuthority
	sealer    Sealer
	validator *cfdi.Validator
	leaser    Leaser
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewStampingCoordinator construye el coordinador con todas sus dependencias.
func NewStampingCoordinator(
	store repository.DocumentStore,
	authority CertificationAuthority,
	sealer Sealer,
	validator *cfdi.Validator,
	leaser Leaser,
	cfg Config,
	log zerolog.Logger,
) *StampingCoordinator {
	return &StampingCoordinator{
		store:     store,
		authority: authority,
		sealer:    sealer,
		validator: validator,
		leaser:    leaser,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       time.Now,
	}
}

// attemptResult resultado de un intento. retry indica que vale la pena repetir
// tras el backoff (falla transitoria del PAC o conflicto de versión).
type attemptResult struct {
	doc   *entity.FiscalDocument
	err   error
	retry bool
}

// Stamp timbra el documento. Si ya está timbrado (o un llamador concurrente lo
// timbró mientras se esperaba el arrendamiento) devuelve el resultado existente.
func (c *StampingCoordinator) Stamp(ctx context.Context, tenantID, id string) (*entity.FiscalDocument, error) {
	var last attemptResult
	for try := 1; try <= c.cfg.MaxAttempts; try++ {
		last = c.attempt(ctx, tenantID, id, try == c.cfg.MaxAttempts)
		if !last.retry {
			return last.doc, last.err
		}
		if try == c.cfg.MaxAttempts {
			break
		}
		delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffMax, try)
		c.log.Debug().
			Str("document_id", id).
			Int("try", try).
			Dur("backoff", delay).
			Err(last.err).
			Msg("reintentando timbrado")
		if err := sleepCtx(ctx, delay); err != nil {
			return last.doc, fmt.Errorf("timbrado interrumpido: %w", errors.Join(last.err, err))
		}
	}
	return last.doc, fmt.Errorf("timbrado: %d intentos agotados: %w", c.cfg.MaxAttempts, last.err)
}

// attempt ejecuta un intento completo bajo el arrendamiento del documento.
func (c *StampingCoordinator) attempt(ctx context.Context, tenantID, id string, final bool) attemptResult {
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
	logger := c.log.With().
		Str("document_id", doc.ID).
		Str("tenant_id", doc.TenantID).
		Logger()

	switch doc.Status {
	case entity.StatusStamped, entity.StatusCancellationRequested, entity.StatusCancelled:
		return attemptResult{doc: doc}
	case entity.StatusDraft, entity.StatusError, entity.StatusPending:
	default:
		return attemptResult{doc: doc, err: fmt.Errorf("%w: estado %q", domain.ErrInvalidTransition, doc.Status)}
	}

	// ── 1. Conciliación: ¿el PAC ya timbró el intento anterior? ──────────────
	if prior := doc.Stamping.Token; prior != "" {
		res, found, qErr := c.queryStatus(ctx, prior)
		if qErr != nil {
			return c.fail(ctx, doc, ver, qErr, isTransient(qErr), final, logger)
		}
		if found {
			logger.Info().
				Str("token", prior).
				Str("folio", res.Folio).
				Msg("el PAC ya tenía timbrado el intento anterior; conciliando sin reenviar")
			chain, err := cfdi.OriginalChain(doc)
			if err != nil {
				return attemptResult{doc: doc, err: err}
			}
			seal := res.IssuerSeal
			if seal == "" {
				if seal, err = c.sealer.Seal(chain); err != nil {
					return attemptResult{doc: doc, err: fmt.Errorf("sellar cadena: %w", err)}
				}
			}
			return c.complete(ctx, doc, ver, chain, seal, res, logger)
		}
	}

	// El PAC puede seguir procesando una solicitud cuyo tiempo de espera venció:
	// un token nuevo en ese momento produciría un segundo folio.
	resend := doc.Stamping.Token != "" && outcomeUnknown(doc)

	// ── 2. Cálculo y validación (solo si el documento es mutable) ────────────
	if !resend && doc.IsMutable() {
		if err := cfdi.Calculate(doc); err != nil {
			return attemptResult{doc: doc, err: err}
		}
		violations, err := c.validator.Validate(ctx, doc)
		if err != nil {
			return attemptResult{doc: doc, err: fmt.Errorf("validar documento: %w", err)}
		}
		if len(violations) > 0 {
			// El documento conserva su estado (DRAFT o ERROR) con las violaciones.
			vErr := &domain.ValidationError{Violations: violations}
			doc.Violations = violations
			doc.ErrorMessage = vErr.Error()
			doc.Stamping.LastError = vErr.Error()
			doc.Stamping.ErrorKind = entity.ErrorKindValidation
			doc.Stamping.Retryable = false
			doc.Stamping.NextRetryAt = nil
			if _, err := c.save(ctx, doc, ver); err != nil {
				return attemptResult{doc: doc, err: err, retry: errors.Is(err, domain.ErrVersionConflict)}
			}
			logger.Warn().Int("violations", len(violations)).Msg("documento con violaciones; no se envía al PAC")
			return attemptResult{doc: doc, err: vErr}
		}
	}

	// ── 3. Nuevo intento: token, fecha, certificado, cadena y sello ──────────
	if doc.Status != entity.StatusPending && !doc.CanTransition(entity.StatusPending) {
		return attemptResult{doc: doc, err: fmt.Errorf("%w: %s → %s", domain.ErrInvalidTransition, doc.Status, entity.StatusPending)}
	}
	if resend {
		logger.Info().
			Str("token", doc.Stamping.Token).
			Int("attempt", doc.Stamping.Attempts).
			Msg("resultado del intento anterior desconocido; se reenvía con el mismo token")
	} else {
		doc.Stamping.Attempts++
		doc.Stamping.Token = cfdi.IdempotencyToken(doc.ID, doc.Stamping.Attempts)
		doc.IssuedAt = c.now().Truncate(time.Second)
		doc.CertificateNumber = c.sealer.CertificateNumber()
	}

	chain, err := cfdi.OriginalChain(doc)
	if err != nil {
		return c.fail(ctx, doc, ver, fmt.Errorf("cadena original: %w", err), false, final, logger)
	}
	seal, err := c.sealer.Seal(chain)
	if err != nil {
		return c.fail(ctx, doc, ver, fmt.Errorf("sello del emisor: %w", err), false, final, logger)
	}

	doc.Status = entity.StatusPending
	doc.Violations = nil
	doc.ErrorMessage = ""
	doc.Stamping.LastError = ""
	doc.Stamping.ErrorKind = ""
	doc.Stamping.NextRetryAt = nil
	ver, err = c.save(ctx, doc, ver)
	if err != nil {
		return attemptResult{doc: doc, err: err, retry: errors.Is(err, domain.ErrVersionConflict)}
	}
	logger.Info().
		Str("status", doc.Status).
		Int("attempt", doc.Stamping.Attempts).
		Str("token", doc.Stamping.Token).
		Msg("enviando al PAC")

	// ── 4. Llamada al PAC con timeout por intento ────────────────────────────
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	res, err := c.authority.Stamp(callCtx, StampRequest{
		Token:             doc.Stamping.Token,
		OriginalChain:     chain,
		IssuerSeal:        seal,
		CertificateNumber: doc.CertificateNumber,
		Document:          doc.Clone(),
	})
	cancel()
	if err != nil {
		return c.fail(ctx, doc, ver, err, isTransient(err), final, logger)
	}
	return c.complete(ctx, doc, ver, chain, seal, res, logger)
}

// outcomeUnknown el último envío pudo haber llegado al PAC sin respuesta definitiva.
func outcomeUnknown(doc *entity.FiscalDocument) bool {
	switch doc.Status {
	case entity.StatusPending:
		return true
	case entity.StatusError:
		return doc.Stamping.ErrorKind == entity.ErrorKindTransient
	default:
		return false
	}
}

func (c *StampingCoordinator) queryStatus(ctx context.Context, token string) (*StampResult, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()
	return c.authority.QueryStatus(callCtx, token)
}

// complete escribe el timbre y el estado STAMPED en una sola operación del store.
func (c *StampingCoordinator) complete(
	ctx context.Context,
	doc *entity.FiscalDocument,
	ver int64,
	chain, seal string,
	res *StampResult,
	logger zerolog.Logger,
) attemptResult {
	if res == nil || res.Folio == "" {
		return c.fail(ctx, doc, ver, &domain.AuthorityError{Message: "respuesta de timbrado sin folio fiscal"}, false, true, logger)
	}
	stampedAt := res.StampedAt
	if stampedAt.IsZero() {
		stampedAt = c.now()
	}
	doc.Stamp = &entity.Stamp{
		Folio:                      res.Folio,
		StampedAt:                  stampedAt,
		IssuerSeal:                 seal,
		AuthorityCertificateNumber: res.AuthorityCertificateNumber,
		AuthoritySeal:              res.AuthoritySeal,
		AuthorityChain:             res.AuthorityChain,
		OriginalChain:              chain,
	}
	doc.Status = entity.StatusStamped
	doc.ErrorMessage = ""
	doc.Violations = nil
	doc.Stamping.LastError = ""
	doc.Stamping.ErrorKind = ""
	doc.Stamping.Retryable = false
	doc.Stamping.NextRetryAt = nil
	doc.Stamping.RawResponse = res.Raw

	// Si el guardado falla el documento queda PENDING con su token; el siguiente
	// intento (o el conciliador) lo resuelve con QueryStatus.
	if _, err := c.save(context.WithoutCancel(ctx), doc, ver); err != nil {
		logger.Error().Err(err).Str("folio", res.Folio).Msg("timbrado exitoso pero no se pudo persistir")
		return attemptResult{doc: doc, err: err, retry: errors.Is(err, domain.ErrVersionConflict)}
	}
	logger.Info().
		Str("status", doc.Status).
		Str("folio", res.Folio).
		Int("attempt", doc.Stamping.Attempts).
		Msg("documento timbrado")
	return attemptResult{doc: doc}
}

// isTransient clasifica un error del PAC. Los errores sin clasificar (timeout,
// red, contexto) se tratan como transitorios.
func isTransient(err error) bool {
	var authErr *domain.AuthorityError
	if errors.As(err, &authErr) {
		return authErr.Transient
	}
	return true
}

// fail registra la falla del intento y deja el documento en ERROR, inspeccionable.
// Las fallas transitorias son reintentables salvo en el último intento.
func (c *StampingCoordinator) fail(
	ctx context.Context,
	doc *entity.FiscalDocument,
	ver int64,
	cause error,
	transient bool,
	final bool,
	logger zerolog.Logger,
) attemptResult {
	var authErr *domain.AuthorityError
	if errors.As(cause, &authErr) {
		doc.Stamping.RawResponse = authErr.Raw
	}

	doc.Status = entity.StatusError
	doc.ErrorMessage = cause.Error()
	doc.Stamping.LastError = cause.Error()
	doc.Stamping.NextRetryAt = nil
	if transient {
		doc.Stamping.ErrorKind = entity.ErrorKindTransient
		doc.Stamping.Retryable = !final
		if final {
			doc.ErrorMessage = "intentos de timbrado agotados, requiere intervención: " + cause.Error()
		} else {
			next := c.now().Add(backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffMax, doc.Stamping.Attempts))
			doc.Stamping.NextRetryAt = &next
		}
	} else {
		doc.Stamping.ErrorKind = entity.ErrorKindDefinitive
		doc.Stamping.Retryable = false
	}

	if _, err := c.save(context.WithoutCancel(ctx), doc, ver); err != nil {
		logger.Error().Err(err).Msg("no se pudo persistir ERROR")
		if errors.Is(err, domain.ErrVersionConflict) {
			return attemptResult{doc: doc, err: err, retry: true}
		}
		return attemptResult{doc: doc, err: errors.Join(cause, err)}
	}
	logger.Warn().
		Str("status", doc.Status).
		Int("attempt", doc.Stamping.Attempts).
		Str("token", doc.Stamping.Token).
		Bool("transient", transient).
		Err(cause).
		Msg("intento de timbrado fallido")

	retry := transient && !final && ctx.Err() == nil
	return attemptResult{doc: doc, err: cause, retry: retry}
}

func (c *StampingCoordinator) save(ctx context.Context, doc *entity.FiscalDocument, ver int64) (int64, error) {
	doc.UpdatedAt = c.now()
	return c.store.Save(ctx, doc, ver)
}
