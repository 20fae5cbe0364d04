package entity

import "time"

// Company representa un tenant del sistema (emisor de CFDI).
type Company struct {
	ID           string
	Name         string // Razón social tal como aparece en la constancia de situación fiscal
	RFC          string
	FiscalRegime string // c_RegimenFiscal
	PostalCode   string // Lugar de expedición por defecto
	Series       string // Serie interna por defecto
	Email        string
	Status       string // active, suspended, inactive
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Location sucursal del tenant (restaurante, tienda).
type Location struct {
	ID         string
	CompanyID  string
	Name       string
	PostalCode string // Lugar de expedición de la sucursal
	Series     string
}
