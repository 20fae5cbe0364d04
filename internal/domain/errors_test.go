package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

func TestAuthorityError_Clasificacion(t *testing.T) {
	transient := fmt.Errorf("timbrar: %w", &domain.AuthorityError{Transient: true, Message: "timeout"})
	definitive := &domain.AuthorityError{Code: "CFDI40102", Message: "RFC del receptor no existe"}

	assert.ErrorIs(t, transient, domain.ErrTransientAuthority)
	assert.True(t, domain.IsRetryable(transient))

	assert.ErrorIs(t, definitive, domain.ErrDefinitiveAuthority)
	assert.False(t, domain.IsRetryable(definitive))
	assert.Contains(t, definitive.Error(), "CFDI40102")
}

func TestValidationError(t *testing.T) {
	err := &domain.ValidationError{Violations: []entity.Violation{
		{Kind: entity.ViolationStructural, Field: "conceptos[0].cantidad", Message: "debe ser mayor a cero"},
	}}
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, domain.IsRetryable(err))
	assert.Contains(t, err.Error(), "conceptos[0].cantidad")

	var ve *domain.ValidationError
	assert.True(t, errors.As(fmt.Errorf("timbrar: %w", err), &ve))
	assert.Len(t, ve.Violations, 1)
}

func TestPreconditionError(t *testing.T) {
	err := &domain.PreconditionError{Rule: "motivo-01", Detail: "falta folio sustituto"}
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.False(t, domain.IsRetryable(err))
}
