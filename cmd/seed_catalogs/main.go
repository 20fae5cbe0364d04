// seed_catalogs genera el script SQL que carga un catálogo del SAT (c_ClaveProdServ,
// c_ClaveUnidad, c_RegimenFiscal, c_UsoCFDI) en la tabla sat_catalogs, a partir
// de la hoja correspondiente de catCFDI.xls exportada a CSV.
//
// Uso: go run ./cmd/seed_catalogs <catalogo> <archivo.csv> [salida.sql]
// Por defecto escribe internal/infrastructure/postgres/migrations/100_seed_<catalogo>.sql
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

var knownCatalogs = map[string]bool{
	string(sat.CatalogProductCode):  true,
	string(sat.CatalogUnitCode):     true,
	string(sat.CatalogFiscalRegime): true,
	string(sat.CatalogUsage):        true,
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Uso: seed_catalogs <catalogo> <archivo.csv> [salida.sql]")
		os.Exit(2)
	}
	catalog, csvPath := os.Args[1], os.Args[2]
	if !knownCatalogs[catalog] {
		fmt.Fprintf(os.Stderr, "Catálogo desconocido %q\n", catalog)
		os.Exit(2)
	}

	in, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	entries, err := readCatalog(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer catálogo: %v\n", err)
		os.Exit(1)
	}

	outPath := filepath.Join(findModuleRoot(), "internal", "infrastructure", "postgres", "migrations",
		"100_seed_"+strings.ToLower(strings.TrimPrefix(catalog, "c_"))+".sql")
	if len(os.Args) > 3 {
		outPath = os.Args[3]
	}
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := writeSQL(out, catalog, entries); err != nil {
		fmt.Fprintf(os.Stderr, "Escribir SQL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generado %s: %d claves de %s\n", outPath, len(entries), catalog)
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
