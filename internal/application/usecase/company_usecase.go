package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/dto"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// CompanyUseCase perfil fiscal del emisor (tenant). El RFC no cambia: identifica al tenant
// y a los CFDI ya timbrados.
type CompanyUseCase struct {
	repo repository.CompanyRepository
	now  func() time.Time
}

// NewCompanyUseCase construye el caso de uso con el puerto de persistencia.
func NewCompanyUseCase(repo repository.CompanyRepository) *CompanyUseCase {
	return &CompanyUseCase{repo: repo, now: time.Now}
}

// GetProfile devuelve la empresa del token.
func (uc *CompanyUseCase) GetProfile(ctx context.Context, companyID string) (*dto.CompanyResponse, error) {
	company, err := uc.repo.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.ErrNotFound
	}
	return entityToCompanyResponse(company), nil
}

// UpdateProfile actualiza los datos que se copian al emisor de cada CFDI nuevo.
// Los documentos existentes conservan los datos con que se crearon.
func (uc *CompanyUseCase) UpdateProfile(ctx context.Context, companyID string, in dto.UpdateCompanyRequest) (*dto.CompanyResponse, error) {
	company, err := uc.repo.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.ErrNotFound
	}

	if in.FiscalRegime != nil {
		if r := sat.ValidateField(sat.FieldFiscalRegime, *in.FiscalRegime); !r.OK {
			return nil, fmt.Errorf("%w: régimen fiscal %s", domain.ErrInvalidInput, r.Reason)
		}
		company.FiscalRegime = *in.FiscalRegime
	}
	if in.PostalCode != nil {
		if r := sat.ValidateField(sat.FieldPostalCode, *in.PostalCode); !r.OK {
			return nil, fmt.Errorf("%w: código postal %s", domain.ErrInvalidInput, r.Reason)
		}
		company.PostalCode = *in.PostalCode
	}
	if in.Name != nil {
		company.Name = *in.Name
	}
	if in.Series != nil {
		company.Series = *in.Series
	}
	if in.Email != nil {
		company.Email = *in.Email
	}
	company.UpdatedAt = uc.now().UTC()

	if err := uc.repo.Update(ctx, company); err != nil {
		return nil, err
	}
	return entityToCompanyResponse(company), nil
}

func entityToCompanyResponse(c *entity.Company) *dto.CompanyResponse {
	return &dto.CompanyResponse{
		ID:           c.ID,
		Name:         c.Name,
		RFC:          c.RFC,
		FiscalRegime: c.FiscalRegime,
		PostalCode:   c.PostalCode,
		Series:       c.Series,
		Email:        c.Email,
		Status:       c.Status,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
