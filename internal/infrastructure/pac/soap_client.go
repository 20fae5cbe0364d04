package pac

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
)

const (
	soapNS        = "http://schemas.xmlsoap.org/soap/envelope/"
	soapNSService = "urn:cfdi:pac:servicios"

	opStamp  = "stamp"
	opQuery  = "query"
	opCancel = "cancel"

	// Incidencias del PAC.
	codeAlreadyStamped = "307" // el token ya fue timbrado; la respuesta trae el timbre
	codeSATUnavailable = "708" // el PAC no pudo conectar con el SAT
	codeNotFound       = "404"

	maxResponseBytes = 4 << 20
)

// transientCodes incidencias que no dependen del contenido: se reintentan.
var transientCodes = map[string]bool{
	codeSATUnavailable: true,
	"SERVER_BUSY":      true,
}

// SOAPClient implementa billing.CertificationAuthority contra el WS SOAP del PAC.
type SOAPClient struct {
	httpClient *http.Client
	cfg        Config
	builder    *XMLBuilder
	log        zerolog.Logger
}

// NewSOAPClient construye el cliente. El timeout de red es el configurado o 30 s.
func NewSOAPClient(cfg Config, builder *XMLBuilder, log zerolog.Logger) *SOAPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SOAPClient{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		builder:    builder,
		log:        log.With().Str("component", "pac").Str("env", cfg.Env).Logger(),
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name   `xml:"s:Envelope"`
	XmlnsS  string     `xml:"xmlns:s,attr"`
	Header  soapHeader `xml:"s:Header"`
	Body    soapBody   `xml:"s:Body"`
}

type soapHeader struct{}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "s:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type stampBody struct {
	XMLName  xml.Name `xml:"stamp"`
	Xmlns    string   `xml:"xmlns,attr"`
	Username string   `xml:"username"`
	Password string   `xml:"password"`
	Token    string   `xml:"idempotencyKey"`
	FileName string   `xml:"fileName"`
	Zipped   bool     `xml:"zipped"`
	Content  string   `xml:"content"` // XML o ZIP en Base64
}

type queryBody struct {
	XMLName  xml.Name `xml:"query"`
	Xmlns    string   `xml:"xmlns,attr"`
	Username string   `xml:"username"`
	Password string   `xml:"password"`
	Token    string   `xml:"idempotencyKey"`
}

type cancelBody struct {
	XMLName      xml.Name `xml:"cancel"`
	Xmlns        string   `xml:"xmlns,attr"`
	Username     string   `xml:"username"`
	Password     string   `xml:"password"`
	IssuerRFC    string   `xml:"rfcEmisor"`
	ReceiverRFC  string   `xml:"rfcReceptor"`
	Folio        string   `xml:"uuid"`
	Motive       string   `xml:"motivo"`
	RelatedFolio string   `xml:"folioSustitucion,omitempty"`
	Total        string   `xml:"total"`
}

// ── Estructuras de respuesta SOAP ─────────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	Stamp  *stampResult  `xml:"stampResponse>stampResult"`
	Query  *stampResult  `xml:"queryResponse>queryResult"`
	Cancel *cancelResult `xml:"cancelResponse>cancelResult"`
	Fault  *soapFault    `xml:"Fault"`
}

type incident struct {
	Code    string `xml:"CodigoError"`
	Message string `xml:"MensajeIncidencia"`
}

type stampResult struct {
	XML       string     `xml:"xml"` // CFDI timbrado
	UUID      string     `xml:"UUID"`
	Status    string     `xml:"CodEstatus"`
	Incidents []incident `xml:"Incidencias>Incidencia"`
}

type cancelResult struct {
	Folio        string     `xml:"Folios>Folio>UUID"`
	StatusUUID   string     `xml:"Folios>Folio>EstatusUUID"`
	CancelStatus string     `xml:"Folios>Folio>EstatusCancelacion"`
	Date         string     `xml:"Fecha"`
	Incidents    []incident `xml:"Incidencias>Incidencia"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// Stamp envía el comprobante sellado. Un reenvío con el mismo token que el PAC ya
// timbró responde la incidencia 307 junto con el timbre original.
func (c *SOAPClient) Stamp(ctx context.Context, req billing.StampRequest) (*billing.StampResult, error) {
	xmlBytes, err := c.builder.Build(req)
	if err != nil {
		return nil, &domain.AuthorityError{Code: "XML", Message: err.Error()}
	}
	xmlName, zipName := Filenames(req.Document)
	body := &stampBody{
		Xmlns:    soapNSService,
		Username: c.cfg.Username,
		Password: c.cfg.Password,
		Token:    req.Token,
		FileName: xmlName,
	}
	if c.cfg.ZipPayload {
		zipBytes, err := CompressXMLToZip(xmlBytes, xmlName)
		if err != nil {
			return nil, &domain.AuthorityError{Code: "ZIP", Message: err.Error()}
		}
		body.FileName, body.Zipped = zipName, true
		body.Content = base64.StdEncoding.EncodeToString(zipBytes)
	} else {
		body.Content = base64.StdEncoding.EncodeToString(xmlBytes)
	}

	env, raw, err := c.call(ctx, opStamp, body)
	if err != nil {
		return nil, err
	}
	if env.Body.Stamp == nil {
		return nil, unexpected(raw)
	}
	res, found, err := c.stampOutcome(env.Body.Stamp, raw)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, unexpected(raw)
	}
	c.log.Info().Str("token", req.Token).Str("folio", res.Folio).Msg("comprobante timbrado")
	return res, nil
}

// QueryStatus consulta el resultado de un intento por token.
func (c *SOAPClient) QueryStatus(ctx context.Context, token string) (*billing.StampResult, bool, error) {
	body := &queryBody{
		Xmlns:    soapNSService,
		Username: c.cfg.Username,
		Password: c.cfg.Password,
		Token:    token,
	}
	env, raw, err := c.call(ctx, opQuery, body)
	if err != nil {
		return nil, false, err
	}
	if env.Body.Query == nil {
		return nil, false, unexpected(raw)
	}
	return c.stampOutcome(env.Body.Query, raw)
}

// Cancel solicita la cancelación de un folio fiscal.
func (c *SOAPClient) Cancel(ctx context.Context, req billing.AuthorityCancelRequest) (*billing.CancelResult, error) {
	body := &cancelBody{
		Xmlns:        soapNSService,
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
		IssuerRFC:    req.IssuerRFC,
		ReceiverRFC:  req.ReceiverRFC,
		Folio:        req.Folio,
		Motive:       req.Motive,
		RelatedFolio: req.RelatedFolio,
		Total:        req.Total.StringFixed(2),
	}
	env, raw, err := c.call(ctx, opCancel, body)
	if err != nil {
		return nil, err
	}
	r := env.Body.Cancel
	if r == nil {
		return nil, unexpected(raw)
	}
	if err := incidentError(r.Incidents, raw); err != nil {
		return nil, err
	}

	res := &billing.CancelResult{Raw: raw}
	cancelledAt, _ := time.ParseInLocation(time.RFC3339, r.Date, time.Local)
	switch {
	case r.StatusUUID == CodeAlreadyCancelled:
		res.Outcome = billing.CancelAlreadyCancelled
		res.CancelledAt = cancelledAt
	case r.StatusUUID == CodeFolioNotFound:
		return nil, &domain.AuthorityError{Code: r.StatusUUID, Message: "el folio fiscal no existe", Raw: raw}
	case strings.EqualFold(r.CancelStatus, "En proceso"):
		res.Outcome = billing.CancelPendingAcceptance
	case strings.EqualFold(r.CancelStatus, "Cancelado sin aceptación"),
		strings.EqualFold(r.CancelStatus, "Cancelado con aceptación"),
		strings.EqualFold(r.CancelStatus, "Plazo vencido"),
		r.StatusUUID == CodeCancelReceived && r.CancelStatus == "":
		res.Outcome = billing.CancelAccepted
		res.CancelledAt = cancelledAt
	default:
		res.Outcome = billing.CancelRejected
		res.Reason = fmt.Sprintf("estatus %s: %s", r.StatusUUID, r.CancelStatus)
	}
	c.log.Info().Str("folio", req.Folio).Str("motive", req.Motive).Str("outcome", string(res.Outcome)).Msg("respuesta de cancelación")
	return res, nil
}

// stampOutcome interpreta stamp/query: timbre, no encontrado o incidencia.
func (c *SOAPClient) stampOutcome(r *stampResult, raw string) (*billing.StampResult, bool, error) {
	if len(r.Incidents) == 1 && r.Incidents[0].Code == codeNotFound {
		return nil, false, nil
	}
	if len(r.Incidents) > 0 && r.Incidents[0].Code != codeAlreadyStamped {
		return nil, false, incidentError(r.Incidents, raw)
	}
	if r.XML == "" {
		return nil, false, nil
	}
	res, err := ParseStamp([]byte(r.XML))
	if err != nil {
		return nil, false, &domain.AuthorityError{Code: "TFD", Message: err.Error(), Raw: raw}
	}
	return res, true, nil
}

// call serializa el envelope, lo envía y desempaqueta la respuesta. Las fallas de
// transporte, HTTP 5xx/429 y faults del servidor son transitorias.
func (c *SOAPClient) call(ctx context.Context, op string, body interface{}) (*soapResponseEnvelope, string, error) {
	envelope := soapEnvelope{
		XmlnsS: soapNS,
		Body:   soapBody{Content: body},
	}
	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("soap: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapNSService+"#"+op)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("llamada al PAC fallida")
		return nil, "", &domain.AuthorityError{Transient: true, Code: "NET", Message: transportMessage(ctx, err)}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", &domain.AuthorityError{Transient: true, Code: "NET", Message: "leer respuesta: " + err.Error()}
	}
	raw := string(rawBody)
	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("respuesta del PAC")

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, raw, &domain.AuthorityError{Transient: true, Code: fmt.Sprint(resp.StatusCode), Message: http.StatusText(resp.StatusCode), Raw: raw}
	}

	var env soapResponseEnvelope
	if err := xml.Unmarshal(rawBody, &env); err != nil {
		return nil, raw, &domain.AuthorityError{Code: fmt.Sprint(resp.StatusCode), Message: "respuesta SOAP ilegible", Raw: raw}
	}
	if f := env.Body.Fault; f != nil {
		return nil, raw, &domain.AuthorityError{
			Transient: strings.Contains(f.FaultCode, "Server"),
			Code:      f.FaultCode,
			Message:   f.FaultString,
			Raw:       raw,
		}
	}
	if resp.StatusCode >= 400 {
		return nil, raw, &domain.AuthorityError{Code: fmt.Sprint(resp.StatusCode), Message: http.StatusText(resp.StatusCode), Raw: raw}
	}
	return &env, raw, nil
}

func incidentError(incidents []incident, raw string) error {
	if len(incidents) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(incidents))
	for _, in := range incidents {
		msgs = append(msgs, in.Message)
	}
	first := incidents[0].Code
	return &domain.AuthorityError{
		Transient: transientCodes[first],
		Code:      first,
		Message:   strings.Join(msgs, "; "),
		Raw:       raw,
	}
}

func transportMessage(ctx context.Context, err error) string {
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
		return "timeout o cancelación: " + ctx.Err().Error()
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout de red: " + err.Error()
	default:
		return "llamada HTTP fallida: " + err.Error()
	}
}

func unexpected(raw string) error {
	return &domain.AuthorityError{Code: "SOAP", Message: "respuesta SOAP vacía o inesperada", Raw: raw}
}
