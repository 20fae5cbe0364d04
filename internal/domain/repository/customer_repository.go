package repository

import (
	"context"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// CustomerRepository define el puerto de persistencia para Customer (receptores de CFDI).
type CustomerRepository interface {
	Create(ctx context.Context, customer *entity.Customer) error
	GetByID(ctx context.Context, id string) (*entity.Customer, error)
	GetByCompanyAndRFC(ctx context.Context, companyID, rfc string) (*entity.Customer, error)
	ListByCompany(ctx context.Context, companyID string, limit, offset int) ([]*entity.Customer, error)
	Update(ctx context.Context, customer *entity.Customer) error
	Delete(ctx context.Context, id string) error
}
