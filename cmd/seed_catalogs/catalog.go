package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// entry una fila del catálogo: clave, descripción y vigencia.
type entry struct {
	Code        string
	Description string
	ValidFrom   *time.Time
	ValidTo     *time.Time
}

// Formatos de fecha que aparecen en las exportaciones de catCFDI.xls.
var dateLayouts = []string{"02/01/2006", "2006-01-02", "2/1/2006"}

// readCatalog lee un CSV exportado del catálogo del SAT. El archivo viene en
// Windows-1252; la primera fila con clave no numérica ni alfanumérica corta se
// toma como encabezado y se omite. Las claves repetidas conservan la última fila.
func readCatalog(r io.Reader) ([]entry, error) {
	cr := csv.NewReader(transform.NewReader(r, charmap.Windows1252.NewDecoder()))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	byCode := make(map[string]entry)
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("leer CSV: %w", err)
		}
		line++
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if line == 1 && isHeader(rec[0]) {
			continue
		}

		e := entry{Code: strings.TrimSpace(rec[0])}
		if len(rec) > 1 {
			e.Description = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 {
			if e.ValidFrom, err = parseDate(rec[2]); err != nil {
				return nil, fmt.Errorf("línea %d: %w", line, err)
			}
		}
		if len(rec) > 3 {
			if e.ValidTo, err = parseDate(rec[3]); err != nil {
				return nil, fmt.Errorf("línea %d: %w", line, err)
			}
		}
		byCode[e.Code] = e
	}

	out := make([]entry, 0, len(byCode))
	for _, e := range byCode {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func isHeader(first string) bool {
	f := strings.ToLower(strings.TrimSpace(first))
	return strings.HasPrefix(f, "c_") || f == "clave" || f == "code"
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("fecha de vigencia inválida %q", s)
}

// writeSQL escribe el script de carga. ON CONFLICT lo hace idempotente, por lo
// que puede vivir junto a las migraciones.
func writeSQL(w io.Writer, catalog string, entries []entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("catálogo %s sin filas", catalog)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "-- Catálogo %s del SAT (%d claves)\n", catalog, len(entries))
	b.WriteString("-- Generado con cmd/seed_catalogs\n\n")
	b.WriteString("INSERT INTO sat_catalogs (catalog, code, description, valid_from, valid_to) VALUES\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "  ('%s', '%s', '%s', %s, %s)",
			escapeSQL(catalog), escapeSQL(e.Code), escapeSQL(e.Description), sqlDate(e.ValidFrom), sqlDate(e.ValidTo))
		if i < len(entries)-1 {
			b.WriteString(",\n")
		} else {
			b.WriteString("\n")
		}
	}
	b.WriteString("ON CONFLICT (catalog, code) DO UPDATE SET\n")
	b.WriteString("  description = EXCLUDED.description,\n")
	b.WriteString("  valid_from = EXCLUDED.valid_from,\n")
	b.WriteString("  valid_to = EXCLUDED.valid_to;\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func sqlDate(t *time.Time) string {
	if t == nil {
		return "NULL"
	}
	return "'" + t.Format("2006-01-02") + "'"
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
