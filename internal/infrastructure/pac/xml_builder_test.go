package pac

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleDocument(t *testing.T) *entity.FiscalDocument {
	t.Helper()
	doc := &entity.FiscalDocument{
		ID:                   "doc-1",
		TenantID:             "tenant-1",
		Kind:                 sat.DocumentKindIncome,
		PaymentMethod:        sat.PaymentMethodSingle,
		PaymentForm:          sat.PaymentFormCash,
		Currency:             sat.CurrencyMXN,
		Export:               sat.ExportNotApplies,
		ExpeditionPostalCode: "64000",
		Series:               "A",
		Number:               "100",
		IssuedAt:             time.Date(2026, 10, 16, 10, 30, 0, 0, time.Local),
		CertificateNumber:    "30001000000500003416",
		Issuer:               entity.Party{RFC: "EKU9003173C9", Name: "ESCUELA KEMPER URGATE", FiscalRegime: "601"},
		Receiver: entity.Party{
			RFC:          "CACX7605101P8",
			Name:         "XOCHILT CASAS CHAVEZ",
			FiscalRegime: "612",
			PostalCode:   "36257",
			Usage:        "G03",
		},
		Concepts: []entity.Concept{
			{
				ProductCode: "90101501",
				UnitCode:    "E48",
				Description: "Consumo de alimentos",
				Quantity:    dec("2"),
				UnitValue:   dec("45.005"),
				TaxObject:   sat.TaxObjectYes,
				Taxes: []entity.Tax{
					{Kind: entity.TaxTransferred, Code: sat.TaxCodeIVA, FactorType: sat.FactorRate, RateOrQuota: dec("0.16")},
					{Kind: entity.TaxWithheld, Code: sat.TaxCodeISR, FactorType: sat.FactorRate, RateOrQuota: dec("0.10")},
				},
			},
			{
				ProductCode: "55101500",
				UnitCode:    "H87",
				Description: "Libro",
				Quantity:    dec("1"),
				UnitValue:   dec("200"),
				TaxObject:   sat.TaxObjectYes,
				Taxes: []entity.Tax{
					{Kind: entity.TaxTransferred, Code: sat.TaxCodeIVA, FactorType: sat.FactorExempt},
				},
			},
		},
		Status: entity.StatusDraft,
	}
	require.NoError(t, cfdi.Calculate(doc))
	doc.Status = entity.StatusPending
	return doc
}

func sampleRequest(t *testing.T) billing.StampRequest {
	t.Helper()
	doc := sampleDocument(t)
	chain, err := cfdi.OriginalChain(doc)
	require.NoError(t, err)
	return billing.StampRequest{
		Token:             cfdi.IdempotencyToken(doc.ID, 1),
		OriginalChain:     chain,
		IssuerSeal:        "c2VsbG8tZGUtcHJ1ZWJh",
		CertificateNumber: doc.CertificateNumber,
		Document:          doc,
	}
}

func TestXMLBuilder_Comprobante(t *testing.T) {
	out, err := NewXMLBuilder("Q0VSVA==").Build(sampleRequest(t))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))
	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "cfdi", root.Space)
	assert.Equal(t, "Comprobante", root.Tag)
	assert.Equal(t, "4.0", root.SelectAttrValue("Version", ""))
	assert.Equal(t, "A", root.SelectAttrValue("Serie", ""))
	assert.Equal(t, "100", root.SelectAttrValue("Folio", ""))
	assert.Equal(t, "2026-10-16T10:30:00", root.SelectAttrValue("Fecha", ""))
	assert.Equal(t, "Q0VSVA==", root.SelectAttrValue("Certificado", ""))
	assert.Equal(t, "290.01", root.SelectAttrValue("SubTotal", ""))
	assert.Equal(t, "", root.SelectAttrValue("Descuento", ""), "sin descuento no se emite el atributo")

	receiver := root.SelectElement("Receptor")
	require.NotNil(t, receiver)
	assert.Equal(t, "36257", receiver.SelectAttrValue("DomicilioFiscalReceptor", ""))

	concepts := root.FindElements("./Conceptos/Concepto")
	require.Len(t, concepts, 2)
	assert.Equal(t, "45.005", concepts[0].SelectAttrValue("ValorUnitario", ""))
	assert.Equal(t, "90.01", concepts[0].SelectAttrValue("Importe", ""))

	taxes := concepts[0].SelectElement("Impuestos")
	require.NotNil(t, taxes)
	require.Len(t, taxes.ChildElements(), 2)
	assert.Equal(t, "Traslados", taxes.ChildElements()[0].Tag, "traslados antes que retenciones")

	exempt := concepts[1].FindElement("./Impuestos/Traslados/Traslado")
	require.NotNil(t, exempt)
	assert.Equal(t, sat.FactorExempt, exempt.SelectAttrValue("TipoFactor", ""))
	assert.Nil(t, exempt.SelectAttr("Importe"), "un traslado exento no lleva importe")

	summary := root.SelectElement("Impuestos")
	require.NotNil(t, summary)
	assert.Equal(t, "14.40", summary.SelectAttrValue("TotalImpuestosTrasladados", ""))
	assert.Equal(t, "9.00", summary.SelectAttrValue("TotalImpuestosRetenidos", ""))
	assert.Len(t, summary.FindElements("./Traslados/Traslado"), 2, "un grupo por tasa y otro exento")
}

func TestXMLBuilder_SinSello(t *testing.T) {
	req := sampleRequest(t)
	req.IssuerSeal = ""
	_, err := NewXMLBuilder("").Build(req)
	assert.ErrorContains(t, err, "sin sello")
}

func TestAttachAndParseStamp(t *testing.T) {
	out, err := NewXMLBuilder("").Build(sampleRequest(t))
	require.NoError(t, err)

	res := &billing.StampResult{
		Folio:                      "6F8A5C3B-2D1E-4F7A-9B0C-1D2E3F4A5B6C",
		StampedAt:                  time.Date(2026, 10, 16, 10, 31, 5, 0, time.Local),
		IssuerSeal:                 "c2VsbG8tZGUtcHJ1ZWJh",
		AuthoritySeal:              "U0FU",
		AuthorityCertificateNumber: "00001000000505142236",
	}
	stamped, err := AttachStamp(out, res, "SPR190613I52")
	require.NoError(t, err)

	parsed, err := ParseStamp(stamped)
	require.NoError(t, err)
	assert.Equal(t, res.Folio, parsed.Folio)
	assert.True(t, res.StampedAt.Equal(parsed.StampedAt))
	assert.Equal(t, res.AuthoritySeal, parsed.AuthoritySeal)
	assert.Equal(t, "||1.1|6F8A5C3B-2D1E-4F7A-9B0C-1D2E3F4A5B6C|2026-10-16T10:31:05|SPR190613I52|c2VsbG8tZGUtcHJ1ZWJh|00001000000505142236||", parsed.AuthorityChain)
}

func TestParseStamp_SinTimbre(t *testing.T) {
	out, err := NewXMLBuilder("").Build(sampleRequest(t))
	require.NoError(t, err)
	_, err = ParseStamp(out)
	assert.ErrorContains(t, err, "TimbreFiscalDigital")
}

func TestContentDigest_Deterministico(t *testing.T) {
	req := sampleRequest(t)
	a, err := NewXMLBuilder("").Build(req)
	require.NoError(t, err)
	b, err := NewXMLBuilder("").Build(req)
	require.NoError(t, err)

	da, err := ContentDigest(a)
	require.NoError(t, err)
	db, err := ContentDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	req.Document.Receiver.Name = "OTRO RECEPTOR"
	c, err := NewXMLBuilder("").Build(req)
	require.NoError(t, err)
	dc, err := ContentDigest(c)
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}

func TestCompressXMLToZip(t *testing.T) {
	doc := sampleDocument(t)
	xmlName, zipName := Filenames(doc)
	assert.Equal(t, "EKU9003173C9_A100.xml", xmlName)
	assert.Equal(t, "EKU9003173C9_A100.zip", zipName)

	zipped, err := CompressXMLToZip([]byte("<cfdi/>"), xmlName)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, xmlName, zr.File[0].Name)
	f, err := zr.File[0].Open()
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "<cfdi/>", string(content))
}
