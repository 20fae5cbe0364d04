package dto

import "time"

// UpdateCompanyRequest datos fiscales del emisor (campos opcionales).
type UpdateCompanyRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=300"`
	FiscalRegime *string `json:"fiscal_regime" validate:"omitempty,len=3,numeric"`
	PostalCode   *string `json:"postal_code" validate:"omitempty,len=5,numeric"`
	Series       *string `json:"series" validate:"omitempty,max=25"`
	Email        *string `json:"email" validate:"omitempty,email"`
}

// CompanyResponse perfil fiscal del emisor.
type CompanyResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RFC          string    `json:"rfc"`
	FiscalRegime string    `json:"fiscal_regime"`
	PostalCode   string    `json:"postal_code"`
	Series       string    `json:"series,omitempty"`
	Email        string    `json:"email,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
