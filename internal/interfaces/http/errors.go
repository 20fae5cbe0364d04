package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/application/dto"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// ValidationErrorResponse cuerpo 422: violaciones del comprobante.
type ValidationErrorResponse struct {
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Violations []dto.ViolationDTO `json:"violations"`
}

// AuthorityErrorResponse cuerpo 502/503: error del PAC y, si existe, el documento resultante.
type AuthorityErrorResponse struct {
	Code          string                      `json:"code"`
	Message       string                      `json:"message"`
	AuthorityCode string                      `json:"authority_code,omitempty"`
	Retryable     bool                        `json:"retryable"`
	Document      *dto.FiscalDocumentResponse `json:"document,omitempty"`
}

// respondError traduce errores de dominio a respuestas HTTP. doc es el estado
// del documento tras la operación fallida (puede ser nil).
func respondError(c *fiber.Ctx, err error, doc *entity.FiscalDocument) error {
	var (
		valErr  *domain.ValidationError
		preErr  *domain.PreconditionError
		authErr *domain.AuthorityError
	)
	switch {
	case errors.As(err, &valErr):
		violations := make([]dto.ViolationDTO, 0, len(valErr.Violations))
		for _, v := range valErr.Violations {
			violations = append(violations, dto.ViolationDTO{Kind: v.Kind, Field: v.Field, Code: v.Code, Message: v.Message})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ValidationErrorResponse{
			Code:       "VALIDATION",
			Message:    "el comprobante tiene violaciones",
			Violations: violations,
		})
	case errors.As(err, &preErr):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: preErr.Rule, Message: preErr.Detail})
	case errors.As(err, &authErr):
		status, code := fiber.StatusBadGateway, "AUTHORITY_REJECTED"
		if authErr.Transient {
			status, code = fiber.StatusServiceUnavailable, "AUTHORITY_UNAVAILABLE"
		}
		resp := AuthorityErrorResponse{
			Code:          code,
			Message:       authErr.Message,
			AuthorityCode: authErr.Code,
			Retryable:     authErr.Transient,
		}
		if doc != nil {
			resp.Document = billing.ToFiscalDocumentResponse(doc)
		}
		return c.Status(status).JSON(resp)
	case errors.Is(err, domain.ErrVersionConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "VERSION_CONFLICT", Message: "el documento cambió durante la operación, reintente"})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()})
	case errors.Is(err, domain.ErrTransientAuthority):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "AUTHORITY_UNAVAILABLE", Message: err.Error()})
	case errors.Is(err, domain.ErrDefinitiveAuthority):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "AUTHORITY_REJECTED", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
