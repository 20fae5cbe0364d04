package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/dto"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// CustomerUseCase casos de uso para clientes (receptores de CFDI).
type CustomerUseCase struct {
	repo repository.CustomerRepository
}

// NewCustomerUseCase construye el caso de uso.
func NewCustomerUseCase(repo repository.CustomerRepository) *CustomerUseCase {
	return &CustomerUseCase{repo: repo}
}

// Create registra un cliente. El RFC se normaliza y debe cumplir el patrón del SAT.
func (uc *CustomerUseCase) Create(ctx context.Context, companyID string, in dto.CreateCustomerRequest) (*dto.CustomerResponse, error) {
	rfc := sat.NormalizeRFC(in.RFC)
	if in.Name == "" || rfc == "" {
		return nil, domain.ErrInvalidInput
	}
	if !sat.IsValidRFC(rfc) {
		return nil, fmt.Errorf("%w: RFC %q con formato inválido", domain.ErrInvalidInput, rfc)
	}
	if r := sat.ValidateField(sat.FieldPostalCode, in.PostalCode); !r.OK {
		return nil, fmt.Errorf("%w: código postal %s", domain.ErrInvalidInput, r.Reason)
	}
	if r := sat.ValidateField(sat.FieldFiscalRegime, in.FiscalRegime); !r.OK {
		return nil, fmt.Errorf("%w: régimen fiscal %s", domain.ErrInvalidInput, r.Reason)
	}
	existing, err := uc.repo.GetByCompanyAndRFC(ctx, companyID, rfc)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicate
	}
	now := time.Now()
	customer := &entity.Customer{
		ID:           uuid.New().String(),
		CompanyID:    companyID,
		Name:         in.Name,
		RFC:          rfc,
		PostalCode:   in.PostalCode,
		FiscalRegime: in.FiscalRegime,
		Usage:        in.Usage,
		Email:        in.Email,
		Phone:        in.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.Create(ctx, customer); err != nil {
		return nil, err
	}
	return toCustomerResponse(customer), nil
}

// Get obtiene un cliente de la empresa.
func (uc *CustomerUseCase) Get(ctx context.Context, companyID, id string) (*dto.CustomerResponse, error) {
	c, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	if c.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	return toCustomerResponse(c), nil
}

// List lista clientes de la empresa.
func (uc *CustomerUseCase) List(ctx context.Context, companyID string, limit, offset int) ([]*dto.CustomerResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, err := uc.repo.ListByCompany(ctx, companyID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.CustomerResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCustomerResponse(c))
	}
	return out, nil
}

func toCustomerResponse(c *entity.Customer) *dto.CustomerResponse {
	return &dto.CustomerResponse{
		ID:           c.ID,
		CompanyID:    c.CompanyID,
		Name:         c.Name,
		RFC:          c.RFC,
		PostalCode:   c.PostalCode,
		FiscalRegime: c.FiscalRegime,
		Usage:        c.Usage,
		Email:        c.Email,
		Phone:        c.Phone,
	}
}
