package pac

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// CompressXMLToZip empaqueta el XML en un ZIP en memoria con una sola entrada.
func CompressXMLToZip(xmlBytes []byte, xmlFilename string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(xmlFilename)
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s: %w", xmlFilename, err)
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, fmt.Errorf("zip: escribir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// Filenames nombres del XML y del ZIP: {RFC emisor}_{serie}{folio interno}.
// Sin serie ni folio se usa el id del documento.
func Filenames(doc *entity.FiscalDocument) (xmlName, zipName string) {
	rfc := nonAlnum.ReplaceAllString(strings.ToUpper(doc.Issuer.RFC), "")
	suffix := strings.TrimSpace(doc.Series) + strings.TrimSpace(doc.Number)
	if suffix == "" {
		suffix = doc.ID
	}
	base := rfc + "_" + suffix
	return base + ".xml", base + ".zip"
}
