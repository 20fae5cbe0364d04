package dto

// CreateCustomerRequest body para POST /api/customers.
type CreateCustomerRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=300"`
	RFC          string `json:"rfc" validate:"required,min=12,max=13"`
	PostalCode   string `json:"postal_code" validate:"required,len=5,numeric"`
	FiscalRegime string `json:"fiscal_regime" validate:"required,len=3,numeric"`
	Usage        string `json:"usage" validate:"omitempty,min=3,max=4"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        string `json:"phone,omitempty"`
}

// CustomerResponse cliente en respuestas.
type CustomerResponse struct {
	ID           string `json:"id"`
	CompanyID    string `json:"company_id"`
	Name         string `json:"name"`
	RFC          string `json:"rfc"`
	PostalCode   string `json:"postal_code"`
	FiscalRegime string `json:"fiscal_regime"`
	Usage        string `json:"usage,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
}
