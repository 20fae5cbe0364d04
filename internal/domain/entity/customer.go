package entity

import "time"

// Customer representa un cliente de la empresa (receptor del CFDI).
type Customer struct {
	ID           string
	CompanyID    string
	Name         string
	RFC          string
	PostalCode   string // Domicilio fiscal
	FiscalRegime string
	Usage        string // Uso CFDI por defecto
	Email        string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
