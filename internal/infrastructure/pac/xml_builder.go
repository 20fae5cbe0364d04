package pac

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"sort"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/pkg/sat"
)

// Namespaces del Anexo 20 (CFDI 4.0) y del complemento de timbrado.
const (
	NsCFDI = "http://www.sat.gob.mx/cfd/4"
	NsTFD  = "http://www.sat.gob.mx/TimbreFiscalDigital"
	nsXsi  = "http://www.w3.org/2001/XMLSchema-instance"

	schemaLocationCFDI = "http://www.sat.gob.mx/cfd/4 http://www.sat.gob.mx/sitio_internet/cfd/4/cfdv40.xsd"
	schemaLocationTFD  = "http://www.sat.gob.mx/TimbreFiscalDigital http://www.sat.gob.mx/sitio_internet/cfd/TimbreFiscalDigital/TimbreFiscalDigitalv11.xsd"

	tfdVersion = "1.1"
)

// XMLBuilder renderiza el comprobante sellado que se envía al PAC.
type XMLBuilder struct {
	certificate string // CSD en DER Base64; vacío en modo simulado
}

// NewXMLBuilder crea el builder. certificateB64 va en el atributo Certificado.
func NewXMLBuilder(certificateB64 string) *XMLBuilder {
	return &XMLBuilder{certificate: certificateB64}
}

// Build genera el cfdi:Comprobante a partir del documento sellado.
func (b *XMLBuilder) Build(req billing.StampRequest) ([]byte, error) {
	doc, err := b.build(req)
	if err != nil {
		return nil, err
	}
	doc.Indent(2)
	return doc.WriteToBytes()
}

func (b *XMLBuilder) build(req billing.StampRequest) (*etree.Document, error) {
	d := req.Document
	if d == nil {
		return nil, fmt.Errorf("pac: solicitud sin documento")
	}
	if req.IssuerSeal == "" {
		return nil, fmt.Errorf("pac: documento %s sin sello del emisor", d.ID)
	}

	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := out.CreateElement("cfdi:Comprobante")
	root.CreateAttr("xmlns:cfdi", NsCFDI)
	root.CreateAttr("xmlns:xsi", nsXsi)
	root.CreateAttr("xsi:schemaLocation", schemaLocationCFDI)
	root.CreateAttr("Version", sat.CFDIVersion)
	setOptional(root, "Serie", d.Series)
	setOptional(root, "Folio", d.Number)
	root.CreateAttr("Fecha", d.IssuedAt.Format(cfdi.IssuedAtLayout))
	root.CreateAttr("Sello", req.IssuerSeal)
	setOptional(root, "FormaPago", d.PaymentForm)
	root.CreateAttr("NoCertificado", req.CertificateNumber)
	setOptional(root, "Certificado", b.certificate)
	root.CreateAttr("SubTotal", d.Totals.Subtotal.StringFixed(2))
	if d.Totals.Discount.IsPositive() {
		root.CreateAttr("Descuento", d.Totals.Discount.StringFixed(2))
	}
	root.CreateAttr("Moneda", d.Currency)
	root.CreateAttr("Total", d.Totals.Total.StringFixed(2))
	root.CreateAttr("TipoDeComprobante", d.Kind)
	root.CreateAttr("Exportacion", d.Export)
	setOptional(root, "MetodoPago", d.PaymentMethod)
	root.CreateAttr("LugarExpedicion", d.ExpeditionPostalCode)

	issuer := root.CreateElement("cfdi:Emisor")
	issuer.CreateAttr("Rfc", d.Issuer.RFC)
	issuer.CreateAttr("Nombre", d.Issuer.Name)
	issuer.CreateAttr("RegimenFiscal", d.Issuer.FiscalRegime)

	receiver := root.CreateElement("cfdi:Receptor")
	receiver.CreateAttr("Rfc", d.Receiver.RFC)
	receiver.CreateAttr("Nombre", d.Receiver.Name)
	receiver.CreateAttr("DomicilioFiscalReceptor", d.Receiver.PostalCode)
	receiver.CreateAttr("RegimenFiscalReceptor", d.Receiver.FiscalRegime)
	receiver.CreateAttr("UsoCFDI", d.Receiver.Usage)

	concepts := root.CreateElement("cfdi:Conceptos")
	for _, c := range d.Concepts {
		writeConcept(concepts.CreateElement("cfdi:Concepto"), c)
	}
	writeTaxSummary(root, d)
	return out, nil
}

func writeConcept(el *etree.Element, c entity.Concept) {
	el.CreateAttr("ClaveProdServ", c.ProductCode)
	setOptional(el, "NoIdentificacion", c.Identification)
	el.CreateAttr("Cantidad", c.Quantity.String())
	el.CreateAttr("ClaveUnidad", c.UnitCode)
	setOptional(el, "Unidad", c.Unit)
	el.CreateAttr("Descripcion", c.Description)
	el.CreateAttr("ValorUnitario", c.UnitValue.String())
	el.CreateAttr("Importe", c.Gross().StringFixed(2))
	if c.Discount.IsPositive() {
		el.CreateAttr("Descuento", c.Discount.StringFixed(2))
	}
	el.CreateAttr("ObjetoImp", c.TaxObject)
	if len(c.Taxes) == 0 {
		return
	}

	taxes := el.CreateElement("cfdi:Impuestos")
	var transferred, withheld *etree.Element
	for _, t := range c.Taxes {
		var node *etree.Element
		if t.Kind == entity.TaxWithheld {
			if withheld == nil {
				withheld = etree.NewElement("cfdi:Retenciones")
			}
			node = withheld.CreateElement("cfdi:Retencion")
		} else {
			if transferred == nil {
				transferred = etree.NewElement("cfdi:Traslados")
			}
			node = transferred.CreateElement("cfdi:Traslado")
		}
		node.CreateAttr("Base", t.Base.StringFixed(2))
		node.CreateAttr("Impuesto", t.Code)
		node.CreateAttr("TipoFactor", t.FactorType)
		if t.FactorType != sat.FactorExempt {
			node.CreateAttr("TasaOCuota", t.RateOrQuota.StringFixed(6))
			node.CreateAttr("Importe", t.Amount.StringFixed(2))
		}
	}
	// Traslados antes que retenciones, como en la cadena original.
	if transferred != nil {
		taxes.AddChild(transferred)
	}
	if withheld != nil {
		taxes.AddChild(withheld)
	}
}

type taxGroup struct {
	code, factor string
	rate         decimal.Decimal
	base, amount decimal.Decimal
}

func (g taxGroup) key() string {
	return g.code + "|" + g.factor + "|" + g.rate.StringFixed(6)
}

// writeTaxSummary resumen de impuestos del comprobante: traslados agrupados por
// impuesto, factor y tasa; retenciones por impuesto.
func writeTaxSummary(root *etree.Element, d *entity.FiscalDocument) {
	transferred := map[string]*taxGroup{}
	withheld := map[string]*taxGroup{}
	hasTransferred, hasWithheld := false, false
	for _, c := range d.Concepts {
		if c.TaxObject != sat.TaxObjectYes {
			continue
		}
		for _, t := range c.Taxes {
			g := taxGroup{code: t.Code, factor: t.FactorType, rate: t.RateOrQuota}
			target := transferred
			if t.Kind == entity.TaxWithheld {
				g = taxGroup{code: t.Code}
				target = withheld
				hasWithheld = true
			} else {
				hasTransferred = true
			}
			acc, ok := target[g.key()]
			if !ok {
				acc = &g
				target[g.key()] = acc
			}
			acc.base = acc.base.Add(t.Base)
			acc.amount = acc.amount.Add(t.Amount)
		}
	}
	if !hasTransferred && !hasWithheld {
		return
	}

	taxes := root.CreateElement("cfdi:Impuestos")
	if hasWithheld {
		taxes.CreateAttr("TotalImpuestosRetenidos", d.Totals.TotalWithheld.StringFixed(2))
	}
	if hasTransferred && !onlyExempt(transferred) {
		taxes.CreateAttr("TotalImpuestosTrasladados", d.Totals.TotalTransferred.StringFixed(2))
	}
	if hasWithheld {
		list := taxes.CreateElement("cfdi:Retenciones")
		for _, g := range sortedGroups(withheld) {
			el := list.CreateElement("cfdi:Retencion")
			el.CreateAttr("Impuesto", g.code)
			el.CreateAttr("Importe", g.amount.StringFixed(2))
		}
	}
	if hasTransferred {
		list := taxes.CreateElement("cfdi:Traslados")
		for _, g := range sortedGroups(transferred) {
			el := list.CreateElement("cfdi:Traslado")
			el.CreateAttr("Base", g.base.StringFixed(2))
			el.CreateAttr("Impuesto", g.code)
			el.CreateAttr("TipoFactor", g.factor)
			if g.factor != sat.FactorExempt {
				el.CreateAttr("TasaOCuota", g.rate.StringFixed(6))
				el.CreateAttr("Importe", g.amount.StringFixed(2))
			}
		}
	}
}

func onlyExempt(groups map[string]*taxGroup) bool {
	for _, g := range groups {
		if g.factor != sat.FactorExempt {
			return false
		}
	}
	return true
}

func sortedGroups(groups map[string]*taxGroup) []*taxGroup {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*taxGroup, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out
}

func setOptional(el *etree.Element, name, value string) {
	if value != "" {
		el.CreateAttr(name, value)
	}
}

// AttachStamp agrega cfdi:Complemento con el tfd:TimbreFiscalDigital al comprobante.
func AttachStamp(comprobante []byte, res *billing.StampResult, providerRFC string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(comprobante); err != nil {
		return nil, fmt.Errorf("pac: leer comprobante: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Comprobante" {
		return nil, fmt.Errorf("pac: el XML no es un cfdi:Comprobante")
	}
	complement := root.SelectElement("cfdi:Complemento")
	if complement == nil {
		complement = root.CreateElement("cfdi:Complemento")
	}
	tfd := complement.CreateElement("tfd:TimbreFiscalDigital")
	tfd.CreateAttr("xmlns:tfd", NsTFD)
	tfd.CreateAttr("xsi:schemaLocation", schemaLocationTFD)
	tfd.CreateAttr("Version", tfdVersion)
	tfd.CreateAttr("UUID", res.Folio)
	tfd.CreateAttr("FechaTimbrado", res.StampedAt.Format(cfdi.IssuedAtLayout))
	tfd.CreateAttr("RfcProvCertif", providerRFC)
	tfd.CreateAttr("SelloCFD", res.IssuerSeal)
	tfd.CreateAttr("NoCertificadoSAT", res.AuthorityCertificateNumber)
	tfd.CreateAttr("SelloSAT", res.AuthoritySeal)
	doc.Indent(2)
	return doc.WriteToBytes()
}

// ParseStamp extrae el timbre fiscal de un CFDI timbrado.
func ParseStamp(stamped []byte) (*billing.StampResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(stamped); err != nil {
		return nil, fmt.Errorf("pac: leer CFDI timbrado: %w", err)
	}
	tfd := doc.FindElement("//Complemento/TimbreFiscalDigital")
	if tfd == nil {
		return nil, fmt.Errorf("pac: el CFDI no contiene TimbreFiscalDigital")
	}
	folio := tfd.SelectAttrValue("UUID", "")
	if folio == "" {
		return nil, fmt.Errorf("pac: TimbreFiscalDigital sin UUID")
	}
	stampedAt, err := time.ParseInLocation(cfdi.IssuedAtLayout, tfd.SelectAttrValue("FechaTimbrado", ""), time.Local)
	if err != nil {
		return nil, fmt.Errorf("pac: FechaTimbrado inválida: %w", err)
	}
	res := &billing.StampResult{
		Folio:                      folio,
		StampedAt:                  stampedAt,
		IssuerSeal:                 tfd.SelectAttrValue("SelloCFD", ""),
		AuthoritySeal:              tfd.SelectAttrValue("SelloSAT", ""),
		AuthorityCertificateNumber: tfd.SelectAttrValue("NoCertificadoSAT", ""),
		Raw:                        string(stamped),
	}
	res.AuthorityChain = StampChain(res, tfd.SelectAttrValue("RfcProvCertif", ""))
	return res, nil
}

// StampChain cadena original del complemento de certificación digital del SAT.
func StampChain(res *billing.StampResult, providerRFC string) string {
	return "||" + tfdVersion +
		"|" + res.Folio +
		"|" + res.StampedAt.Format(cfdi.IssuedAtLayout) +
		"|" + providerRFC +
		"|" + res.IssuerSeal +
		"|" + res.AuthorityCertificateNumber + "||"
}

// Canonicalize forma canónica (C14N) del XML; base del digest de contenido.
func Canonicalize(data []byte) ([]byte, error) {
	// La declaración XML no forma parte de la forma canónica.
	if bytes.HasPrefix(data, []byte("<?xml")) {
		if end := bytes.Index(data, []byte("?>")); end >= 0 {
			data = bytes.TrimLeft(data[end+2:], "\r\n")
		}
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// ContentDigest SHA-256 hex de la forma canónica del XML.
func ContentDigest(data []byte) (string, error) {
	canonical, err := Canonicalize(data)
	if err != nil {
		return "", fmt.Errorf("pac: canonicalizar XML: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
