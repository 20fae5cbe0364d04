package pac

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

const (
	simulatedProviderRFC = "SPR190613I52"
	simulatedSATCert     = "00001000000505142236"

	// Códigos de respuesta de cancelación del SAT.
	CodeCancelReceived   = "201"
	CodeAlreadyCancelled = "202"
	CodeFolioNotFound    = "205"
	// CodeTokenReused el token ya se usó con otro contenido.
	CodeTokenReused = "TOKEN_REUSED"
)

// acceptanceThreshold total a partir del cual la cancelación requiere aceptación
// del receptor (salvo público en general).
var acceptanceThreshold = decimal.NewFromInt(1000)

type simulatedStamp struct {
	digest string
	result billing.StampResult
}

// Simulator PAC en memoria para desarrollo: timbra sin validez fiscal, reconoce
// reenvíos por token y aplica las reglas de aceptación de cancelaciones.
type Simulator struct {
	mu          sync.Mutex
	builder     *XMLBuilder
	providerRFC string
	byToken     map[string]*simulatedStamp
	byFolio     map[string]*simulatedStamp
	cancelled   map[string]time.Time
	now         func() time.Time
}

// NewSimulator crea el simulador. providerRFC vacío usa un RFC de prueba.
func NewSimulator(builder *XMLBuilder, providerRFC string) *Simulator {
	if providerRFC == "" {
		providerRFC = simulatedProviderRFC
	}
	return &Simulator{
		builder:     builder,
		providerRFC: providerRFC,
		byToken:     make(map[string]*simulatedStamp),
		byFolio:     make(map[string]*simulatedStamp),
		cancelled:   make(map[string]time.Time),
		now:         time.Now,
	}
}

// Stamp timbra el comprobante. Un reenvío con el mismo token y contenido devuelve
// el mismo timbre.
func (s *Simulator) Stamp(ctx context.Context, req billing.StampRequest) (*billing.StampResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.AuthorityError{Transient: true, Message: err.Error()}
	}
	xmlBytes, err := s.builder.Build(req)
	if err != nil {
		return nil, &domain.AuthorityError{Code: "XML", Message: err.Error()}
	}
	digest, err := ContentDigest(xmlBytes)
	if err != nil {
		return nil, &domain.AuthorityError{Code: "XML", Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byToken[req.Token]; ok {
		if prev.digest != digest {
			return nil, &domain.AuthorityError{Code: CodeTokenReused, Message: "el token de idempotencia ya se usó con otro comprobante"}
		}
		res := prev.result
		return &res, nil
	}

	res := billing.StampResult{
		Folio:                      strings.ToUpper(uuid.NewString()),
		StampedAt:                  s.now().Truncate(time.Second),
		IssuerSeal:                 req.IssuerSeal,
		AuthorityCertificateNumber: simulatedSATCert,
	}
	res.AuthorityChain = StampChain(&res, s.providerRFC)
	sum := sha256.Sum256([]byte(res.AuthorityChain))
	res.AuthoritySeal = base64.StdEncoding.EncodeToString(sum[:])
	stamped, err := AttachStamp(xmlBytes, &res, s.providerRFC)
	if err != nil {
		return nil, &domain.AuthorityError{Code: "XML", Message: err.Error()}
	}
	res.Raw = string(stamped)

	rec := &simulatedStamp{digest: digest, result: res}
	s.byToken[req.Token] = rec
	s.byFolio[res.Folio] = rec
	out := res
	return &out, nil
}

// QueryStatus consulta un intento previo por token.
func (s *Simulator) QueryStatus(ctx context.Context, token string) (*billing.StampResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, &domain.AuthorityError{Transient: true, Message: err.Error()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byToken[token]
	if !ok {
		return nil, false, nil
	}
	res := rec.result
	return &res, true, nil
}

// Cancel aplica las reglas del SAT: sin aceptación para público en general o
// totales menores al umbral; en otro caso queda pendiente de aceptación.
func (s *Simulator) Cancel(ctx context.Context, req billing.AuthorityCancelRequest) (*billing.CancelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.AuthorityError{Transient: true, Message: err.Error()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	folio := strings.ToUpper(req.Folio)
	if at, ok := s.cancelled[folio]; ok {
		return &billing.CancelResult{Outcome: billing.CancelAlreadyCancelled, CancelledAt: at, Raw: CodeAlreadyCancelled}, nil
	}
	if _, ok := s.byFolio[folio]; !ok {
		return nil, &domain.AuthorityError{Code: CodeFolioNotFound, Message: "el folio fiscal no existe"}
	}
	if req.ReceiverRFC != sat.RFCGenericNational && req.ReceiverRFC != sat.RFCGenericForeign &&
		req.Total.GreaterThan(acceptanceThreshold) {
		return &billing.CancelResult{Outcome: billing.CancelPendingAcceptance, Raw: CodeCancelReceived}, nil
	}
	now := s.now().Truncate(time.Second)
	s.cancelled[folio] = now
	return &billing.CancelResult{Outcome: billing.CancelAccepted, CancelledAt: now, Raw: CodeCancelReceived}, nil
}
