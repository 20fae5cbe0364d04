package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/application/dto"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// FiscalDocumentHandler maneja el ciclo de vida del CFDI: alta, consulta,
// timbrado, cancelación y PDF (protegido).
type FiscalDocumentHandler struct {
	docs         *billing.DocumentUseCase
	stamping     *billing.StampingCoordinator
	cancellation *billing.CancellationCoordinator
	dispatcher   *billing.StampDispatcher
	pdf          *billing.PDFUseCase
}

// NewFiscalDocumentHandler construye el handler. dispatcher y pdf pueden ser nil:
// sin dispatcher ?async=true timbra en línea; sin pdf la ruta responde 501.
func NewFiscalDocumentHandler(
	docs *billing.DocumentUseCase,
	stamping *billing.StampingCoordinator,
	cancellation *billing.CancellationCoordinator,
	dispatcher *billing.StampDispatcher,
	pdf *billing.PDFUseCase,
) *FiscalDocumentHandler {
	return &FiscalDocumentHandler{
		docs:         docs,
		stamping:     stamping,
		cancellation: cancellation,
		dispatcher:   dispatcher,
		pdf:          pdf,
	}
}

// Create godoc
// @Summary      Crear borrador de CFDI
// @Tags         fiscal-documents
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateFiscalDocumentRequest  true  "Receptor y conceptos u orden"
// @Success      201   {object}  dto.FiscalDocumentResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/fiscal-documents [post]
func (h *FiscalDocumentHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateFiscalDocumentRequest
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	out, err := h.docs.Create(c.UserContext(), GetCompanyID(c), in)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Update godoc
// @Summary      Editar borrador de CFDI
// @Tags         fiscal-documents
// @Accept       json
// @Produce      json
// @Param        id    path  string                           true  "ID del documento"
// @Param        body  body  dto.CreateFiscalDocumentRequest  true  "Campos a reemplazar"
// @Success      200   {object}  dto.FiscalDocumentResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/fiscal-documents/{id} [put]
func (h *FiscalDocumentHandler) Update(c *fiber.Ctx) error {
	var in dto.CreateFiscalDocumentRequest
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	out, err := h.docs.Update(c.UserContext(), GetCompanyID(c), c.Params("id"), in)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Obtener CFDI
// @Tags         fiscal-documents
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.FiscalDocumentResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/fiscal-documents/{id} [get]
func (h *FiscalDocumentHandler) GetByID(c *fiber.Ctx) error {
	out, err := h.docs.Get(c.UserContext(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(out)
}

// GetStatus GET /api/fiscal-documents/:id/status (polling tras ?async=true).
func (h *FiscalDocumentHandler) GetStatus(c *fiber.Ctx) error {
	out, err := h.docs.GetStatus(c.UserContext(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(out)
}

// List GET /api/fiscal-documents?limit=20&offset=0
func (h *FiscalDocumentHandler) List(c *fiber.Ctx) error {
	page := dto.NewPageRequest(c.QueryInt("limit"), c.QueryInt("offset"))
	out, err := h.docs.List(c.UserContext(), GetCompanyID(c), page)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(out)
}

// Stamp godoc
// @Summary      Timbrar CFDI
// @Description  Sella y envía el comprobante al PAC. Con async=true responde 202 y el resultado se consulta en /status.
// @Tags         fiscal-documents
// @Produce      json
// @Param        id     path   string  true   "ID del documento"
// @Param        async  query  bool    false  "Timbrar en segundo plano"
// @Success      200    {object}  dto.FiscalDocumentResponse
// @Success      202    {object}  dto.FiscalDocumentStatusDTO
// @Failure      422    {object}  ValidationErrorResponse
// @Failure      502    {object}  AuthorityErrorResponse
// @Failure      503    {object}  AuthorityErrorResponse
// @Router       /api/fiscal-documents/{id}/stamp [post]
func (h *FiscalDocumentHandler) Stamp(c *fiber.Ctx) error {
	tenantID, id := GetCompanyID(c), c.Params("id")

	if c.QueryBool("async") && h.dispatcher != nil {
		status, err := h.docs.GetStatus(c.UserContext(), tenantID, id)
		if err != nil {
			return respondError(c, err, nil)
		}
		h.dispatcher.ProcessAsync(tenantID, id)
		return c.Status(fiber.StatusAccepted).JSON(status)
	}

	doc, err := h.stamping.Stamp(c.UserContext(), tenantID, id)
	if err != nil {
		return respondError(c, err, doc)
	}
	return c.JSON(billing.ToFiscalDocumentResponse(doc))
}

// Cancel godoc
// @Summary      Cancelar CFDI
// @Description  Motivo 01 exige folio relacionado. Con aceptación pendiente del receptor responde 202.
// @Tags         fiscal-documents
// @Accept       json
// @Produce      json
// @Param        id    path  string                           true  "ID del documento"
// @Param        body  body  dto.CancelFiscalDocumentRequest  true  "Motivo y folio relacionado"
// @Success      200   {object}  dto.FiscalDocumentResponse
// @Success      202   {object}  dto.FiscalDocumentResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/fiscal-documents/{id}/cancel [post]
func (h *FiscalDocumentHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelFiscalDocumentRequest
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	doc, err := h.cancellation.Cancel(c.UserContext(), GetCompanyID(c), c.Params("id"), billing.CancelRequest{
		Motive:       in.Motive,
		RelatedFolio: in.RelatedFolio,
	})
	if err != nil {
		return respondError(c, err, doc)
	}
	status := fiber.StatusOK
	if doc.Status != entity.StatusCancelled {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(billing.ToFiscalDocumentResponse(doc))
}

// ReceiverResponse POST /api/fiscal-documents/:id/receiver-response
// Registra si el receptor aceptó o rechazó la cancelación pendiente.
func (h *FiscalDocumentHandler) ReceiverResponse(c *fiber.Ctx) error {
	var in dto.ReceiverResponseRequest
	if ok, err := parseBody(c, &in); !ok {
		return err
	}
	doc, err := h.cancellation.RecordReceiverResponse(c.UserContext(), GetCompanyID(c), c.Params("id"), *in.Accepted)
	if err != nil {
		return respondError(c, err, doc)
	}
	return c.JSON(billing.ToFiscalDocumentResponse(doc))
}

// DownloadPDF godoc
// @Summary      Representación impresa del CFDI
// @Tags         fiscal-documents
// @Produce      application/pdf
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {file}    binary
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/fiscal-documents/{id}/pdf [get]
func (h *FiscalDocumentHandler) DownloadPDF(c *fiber.Ctx) error {
	if h.pdf == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(dto.ErrorResponse{Code: "PDF_DISABLED", Message: "generación de PDF no configurada"})
	}
	out, filename, err := h.pdf.DownloadPDF(c.UserContext(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, nil)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(out)
}
