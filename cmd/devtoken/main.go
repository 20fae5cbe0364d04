// devtoken emite un JWT firmado con JWT_SECRET para probar la API en local.
// La identidad real la emite el servicio de usuarios; este comando solo sirve
// con STORE_DRIVER=memory|sqlite o contra una base de pruebas.
//
// Uso: go run ./cmd/devtoken [rol] [company_id]
// Rol por defecto: facturador. company_id por defecto: la empresa de demostración.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/jhoicas/Facturacion-CFDI/pkg/config"
	"github.com/jhoicas/Facturacion-CFDI/pkg/jwt"
)

const devCompanyID = "00000000-0000-0000-0000-000000000001"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}

	role, companyID := "facturador", devCompanyID
	if len(os.Args) > 1 {
		role = os.Args[1]
	}
	if len(os.Args) > 2 {
		companyID = os.Args[2]
	}
	switch role {
	case "admin", "facturador", "consulta":
	default:
		fmt.Fprintf(os.Stderr, "Rol desconocido %q (admin, facturador, consulta)\n", role)
		os.Exit(2)
	}

	token, err := jwt.Generate(cfg.JWT.Secret, uuid.NewString(), companyID, role, cfg.JWT.Issuer, cfg.JWT.Expiration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generar token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
