package pdf

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

func stampedDocument() *entity.FiscalDocument {
	d := decimal.RequireFromString
	cancelledAt := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	return &entity.FiscalDocument{
		ID:                   "doc-1",
		Series:               "A",
		Number:               "100",
		Kind:                 "I",
		PaymentMethod:        "PUE",
		PaymentForm:          "01",
		Currency:             "MXN",
		Export:               "01",
		ExpeditionPostalCode: "64000",
		IssuedAt:             time.Date(2026, 10, 16, 10, 30, 0, 0, time.UTC),
		CertificateNumber:    "30001000000500003416",
		Issuer:               entity.Party{RFC: "EKU9003173C9", Name: "ESCUELA KEMPER URGATE", FiscalRegime: "601"},
		Receiver:             entity.Party{RFC: "XAXX010101000", Name: "PUBLICO EN GENERAL", FiscalRegime: "616", PostalCode: "64000", Usage: "S01"},
		Concepts: []entity.Concept{
			{ProductCode: "90101501", UnitCode: "E48", Description: "Consumo de alimentos", Quantity: d("2"), UnitValue: d("50"), Amount: d("100")},
		},
		Totals: entity.Totals{Subtotal: d("100"), TotalTransferred: d("16"), Total: d("116")},
		Status: entity.StatusCancelled,
		Stamp: &entity.Stamp{
			Folio:                      "6F8A5C3B-2D1E-4F7A-9B0C-1D2E3F4A5B6C",
			StampedAt:                  time.Date(2026, 10, 16, 10, 31, 0, 0, time.UTC),
			IssuerSeal:                 strings.Repeat("A", 344),
			AuthoritySeal:              strings.Repeat("B", 344),
			AuthorityCertificateNumber: "00001000000505142236",
			AuthorityChain:             "||1.1|6F8A5C3B-2D1E-4F7A-9B0C-1D2E3F4A5B6C|2026-10-16T10:31:00|SPR190613I52|AAAA|00001000000505142236||",
		},
		Cancellation: &entity.Cancellation{Motive: "02", CancelledAt: &cancelledAt},
	}
}

func TestGenerateFiscalDocumentPDF(t *testing.T) {
	company := &entity.Company{Name: "ESCUELA KEMPER URGATE", Email: "facturas@kemper.mx"}
	out, err := NewMarotoPDFGenerator().GenerateFiscalDocumentPDF(
		context.Background(), stampedDocument(), company,
		"https://verificacfdi.facturaelectronica.sat.gob.mx/default.aspx?id=6F8A5C3B-2D1E-4F7A-9B0C-1D2E3F4A5B6C",
	)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateFiscalDocumentPDF_SinTimbre(t *testing.T) {
	doc := stampedDocument()
	doc.Stamp = nil
	_, err := NewMarotoPDFGenerator().GenerateFiscalDocumentPDF(context.Background(), doc, &entity.Company{}, "")
	assert.ErrorContains(t, err, "no tiene timbre")
}

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"0":         "0.00",
		"999.5":     "999.50",
		"25000":     "25,000.00",
		"1234567.5": "1,234,567.50",
		"-1000.126": "-1,000.13",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatMoney(decimal.RequireFromString(in)), in)
	}
}

func TestSplitEvery(t *testing.T) {
	assert.Equal(t, []string{"abc", "def", "g"}, splitEvery("abcdefg", 3))
	assert.Nil(t, splitEvery("", 3))
}
