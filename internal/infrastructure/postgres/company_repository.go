package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
)

// Asegura que CompanyRepo implementa repository.CompanyRepository.
var _ repository.CompanyRepository = (*CompanyRepo)(nil)

// CompanyRepo implementación del puerto CompanyRepository sobre PostgreSQL.
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository construye el adaptador de persistencia para empresas (emisores).
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

const companyColumns = `id, name, rfc, fiscal_regime, postal_code, series, email, status, created_at, updated_at`

func scanCompany(row interface{ Scan(...any) error }) (*entity.Company, error) {
	var c entity.Company
	err := row.Scan(&c.ID, &c.Name, &c.RFC, &c.FiscalRegime, &c.PostalCode, &c.Series,
		&c.Email, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID obtiene una empresa por ID.
func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	c, err := scanCompany(r.q.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

// GetByRFC obtiene una empresa por RFC.
func (r *CompanyRepo) GetByRFC(ctx context.Context, rfc string) (*entity.Company, error) {
	c, err := scanCompany(r.q.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE rfc = $1`, rfc))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get company by rfc: %w", err)
	}
	return c, nil
}

// GetLocation obtiene la sucursal de la empresa.
func (r *CompanyRepo) GetLocation(ctx context.Context, companyID, locationID string) (*entity.Location, error) {
	var l entity.Location
	err := r.q.QueryRow(ctx, `
		SELECT id, company_id, name, postal_code, series
		FROM locations WHERE id = $1 AND company_id = $2`, locationID, companyID,
	).Scan(&l.ID, &l.CompanyID, &l.Name, &l.PostalCode, &l.Series)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

// Update actualiza datos fiscales de la empresa.
func (r *CompanyRepo) Update(ctx context.Context, company *entity.Company) error {
	company.UpdatedAt = time.Now()
	tag, err := r.q.Exec(ctx, `
		UPDATE companies
		SET name = $2, rfc = $3, fiscal_regime = $4, postal_code = $5, series = $6,
		    email = $7, status = $8, updated_at = $9
		WHERE id = $1`,
		company.ID, company.Name, company.RFC, company.FiscalRegime, company.PostalCode,
		company.Series, company.Email, company.Status, company.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("update company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
