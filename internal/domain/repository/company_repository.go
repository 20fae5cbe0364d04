package repository

import (
	"context"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// CompanyRepository define el puerto de persistencia para Company (emisor / tenant).
// La implementación vive en infrastructure.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
	GetByRFC(ctx context.Context, rfc string) (*entity.Company, error)
	// GetLocation devuelve la sucursal (lugar de expedición) de la empresa.
	GetLocation(ctx context.Context, companyID, locationID string) (*entity.Location, error)
	Update(ctx context.Context, company *entity.Company) error
}
