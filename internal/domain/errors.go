package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// Errores de dominio.
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// Tipos de error del motor de CFDI.
	ErrValidation          = errors.New("comprobante inválido")
	ErrPrecondition        = errors.New("precondición no cumplida")
	ErrTransientAuthority  = errors.New("falla transitoria del PAC")
	ErrDefinitiveAuthority = errors.New("rechazo definitivo del PAC")
	ErrVersionConflict     = errors.New("conflicto de versión del documento")
	ErrInvalidTransition   = errors.New("transición de estado no permitida")
)

// ValidationError lista de violaciones estructurales, de catálogo o aritméticas.
// Nunca se reintenta.
type ValidationError struct {
	Violations []entity.Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("%s %s: %s", v.Kind, v.Field, v.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PreconditionError regla de negocio previa a cualquier llamada externa (motivos de cancelación).
type PreconditionError struct {
	Rule   string
	Detail string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", ErrPrecondition.Error(), e.Rule, e.Detail)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// AuthorityError error reportado por el PAC o por el transporte hacia él.
type AuthorityError struct {
	Transient bool
	Code      string
	Message   string
	Raw       string
}

func (e *AuthorityError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("PAC [%s]: %s", e.Code, e.Message)
	}
	return "PAC: " + e.Message
}

func (e *AuthorityError) Unwrap() error {
	if e.Transient {
		return ErrTransientAuthority
	}
	return ErrDefinitiveAuthority
}

// IsRetryable indica si el error amerita reintento automático.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientAuthority) || errors.Is(err, ErrVersionConflict)
}
