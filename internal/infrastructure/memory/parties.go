package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
)

var (
	_ repository.CompanyRepository  = (*CompanyRepo)(nil)
	_ repository.CustomerRepository = (*CustomerRepo)(nil)
)

// CompanyRepo empresas y sucursales en memoria. Igual que los adaptadores de
// base de datos, un registro inexistente se devuelve como (nil, nil).
type CompanyRepo struct {
	mu        sync.RWMutex
	companies map[string]entity.Company
	locations map[string]entity.Location
}

// NewCompanyRepo crea el repositorio con las empresas dadas.
func NewCompanyRepo(companies ...entity.Company) *CompanyRepo {
	r := &CompanyRepo{
		companies: make(map[string]entity.Company),
		locations: make(map[string]entity.Location),
	}
	for _, c := range companies {
		r.companies[c.ID] = c
	}
	return r
}

// AddLocation registra una sucursal.
func (r *CompanyRepo) AddLocation(loc entity.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[loc.ID] = loc
}

func (r *CompanyRepo) GetByID(_ context.Context, id string) (*entity.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *CompanyRepo) GetByRFC(_ context.Context, rfc string) (*entity.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.companies {
		if c.RFC == rfc {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *CompanyRepo) GetLocation(_ context.Context, companyID, locationID string) (*entity.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.locations[locationID]
	if !ok || loc.CompanyID != companyID {
		return nil, nil
	}
	return &loc, nil
}

func (r *CompanyRepo) Update(_ context.Context, company *entity.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[company.ID]; !ok {
		return domain.ErrNotFound
	}
	r.companies[company.ID] = *company
	return nil
}

// CustomerRepo clientes en memoria; RFC único por empresa.
type CustomerRepo struct {
	mu        sync.RWMutex
	customers map[string]entity.Customer
}

// NewCustomerRepo crea el repositorio vacío.
func NewCustomerRepo() *CustomerRepo {
	return &CustomerRepo{customers: make(map[string]entity.Customer)}
}

func (r *CustomerRepo) Create(_ context.Context, customer *entity.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.CompanyID == customer.CompanyID && c.RFC == customer.RFC {
			return domain.ErrDuplicate
		}
	}
	r.customers[customer.ID] = *customer
	return nil
}

func (r *CustomerRepo) GetByID(_ context.Context, id string) (*entity.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *CustomerRepo) GetByCompanyAndRFC(_ context.Context, companyID, rfc string) (*entity.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.customers {
		if c.CompanyID == companyID && c.RFC == rfc {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *CustomerRepo) ListByCompany(_ context.Context, companyID string, limit, offset int) ([]*entity.Customer, error) {
	r.mu.RLock()
	list := make([]*entity.Customer, 0)
	for _, c := range r.customers {
		if c.CompanyID == companyID {
			list = append(list, &c)
		}
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	if offset >= len(list) {
		return []*entity.Customer{}, nil
	}
	list = list[offset:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *CustomerRepo) Update(_ context.Context, customer *entity.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customers[customer.ID]; !ok {
		return domain.ErrNotFound
	}
	r.customers[customer.ID] = *customer
	return nil
}

func (r *CustomerRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.customers, id)
	return nil
}
