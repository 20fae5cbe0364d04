// Package pac implementa el puerto billing.CertificationAuthority: renderizado del
// CFDI 4.0, cliente SOAP hacia el proveedor de certificación y un simulador local.
package pac

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
)

const (
	// EnvDev no llama a ningún PAC: timbra con el simulador en memoria.
	EnvDev = "dev"
	// EnvTest ambiente de pruebas del PAC (timbres sin validez fiscal).
	EnvTest = "test"
	// EnvProd ambiente productivo.
	EnvProd = "prod"

	defaultTimeout = 30 * time.Second
)

// Config parámetros de conexión al PAC.
type Config struct {
	Env         string
	URL         string // endpoint SOAP; obligatorio fuera de dev
	Username    string
	Password    string
	ProviderRFC string // RfcProvCertif del timbre
	Timeout     time.Duration
	ZipPayload  bool // envía el XML comprimido en ZIP
}

// New construye el cliente según el ambiente configurado.
func New(cfg Config, certificateB64 string, log zerolog.Logger) (billing.CertificationAuthority, error) {
	builder := NewXMLBuilder(certificateB64)
	switch cfg.Env {
	case EnvDev, "":
		log.Warn().Msg("PAC en modo simulado: los timbres no tienen validez fiscal")
		return NewSimulator(builder, cfg.ProviderRFC), nil
	case EnvTest, EnvProd:
		if cfg.URL == "" {
			return nil, fmt.Errorf("pac: URL no configurada para el ambiente %q", cfg.Env)
		}
		return NewSOAPClient(cfg, builder, log), nil
	default:
		return nil, fmt.Errorf("pac: ambiente desconocido %q (usar 'dev', 'test' o 'prod')", cfg.Env)
	}
}
