package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/repository"
)

// PDFUseCase genera la representación impresa (PDF) de un CFDI.
// Solo se permite si el documento ya tiene folio fiscal (timbrado o cancelado).
type PDFUseCase struct {
	store       repository.DocumentStore
	companyRepo repository.CompanyRepository
	generator   PDFGenerator
}

// NewPDFUseCase construye el caso de uso inyectando todas sus dependencias.
func NewPDFUseCase(
	store repository.DocumentStore,
	companyRepo repository.CompanyRepository,
	generator PDFGenerator,
) *PDFUseCase {
	return &PDFUseCase{
		store:       store,
		companyRepo: companyRepo,
		generator:   generator,
	}
}

// DownloadPDF carga el documento, verifica que tenga timbre y genera el PDF con
// el QR de verificación del SAT.
//
// Retorna:
//   - (pdfBytes, filename, nil)  si todo sale bien.
//   - domain.ErrNotFound         si el documento no existe.
//   - domain.ErrForbidden        si el documento no pertenece al tenant del token.
//   - domain.ErrConflict         si el documento aún no está timbrado.
func (uc *PDFUseCase) DownloadPDF(ctx context.Context, tenantID, id string) (pdfBytes []byte, filename string, err error) {
	doc, _, err := uc.store.Load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if doc.TenantID != tenantID {
		return nil, "", domain.ErrForbidden
	}
	if !doc.IsStamped() || doc.Status == entity.StatusPending {
		return nil, "", fmt.Errorf("%w: el documento está en estado %s, espere a que sea timbrado antes de descargar el PDF",
			domain.ErrConflict, doc.Status)
	}

	company, err := uc.companyRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener empresa: %w", err)
	}
	if company == nil {
		return nil, "", domain.ErrNotFound
	}

	qr, err := cfdi.VerificationQR(doc)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: QR de verificación: %w", err)
	}

	pdfBytes, err = uc.generator.GenerateFiscalDocumentPDF(ctx, doc, company, qr)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generación fallida: %w", err)
	}

	filename = fmt.Sprintf("cfdi_%s.pdf", doc.Stamp.Folio)
	if doc.Series != "" || doc.Number != "" {
		filename = fmt.Sprintf("cfdi_%s%s.pdf", doc.Series, doc.Number)
	}
	return pdfBytes, filename, nil
}
