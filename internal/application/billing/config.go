package billing

import "time"

// Config parámetros de timbrado, cancelación y conciliación. Se cargan desde
// pkg/config; los valores cero toman los defaults.
type Config struct {
	MaxAttempts       int           // intentos por llamada a Stamp/Cancel
	BackoffBase       time.Duration // espera antes del segundo intento
	BackoffMax        time.Duration
	AttemptTimeout    time.Duration // tope de cada llamada al PAC
	CancelGraceWindow time.Duration // plazo del receptor para aceptar o rechazar
	ReconcileInterval time.Duration
	ReconcileBatch    int
	ReconcileWorkers  int
}

// DefaultConfig valores por defecto.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       4,
		BackoffBase:       500 * time.Millisecond,
		BackoffMax:        30 * time.Second,
		AttemptTimeout:    20 * time.Second,
		CancelGraceWindow: 72 * time.Hour,
		ReconcileInterval: time.Minute,
		ReconcileBatch:    50,
		ReconcileWorkers:  4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.CancelGraceWindow <= 0 {
		c.CancelGraceWindow = d.CancelGraceWindow
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = d.ReconcileInterval
	}
	if c.ReconcileBatch <= 0 {
		c.ReconcileBatch = d.ReconcileBatch
	}
	if c.ReconcileWorkers <= 0 {
		c.ReconcileWorkers = d.ReconcileWorkers
	}
	return c
}
