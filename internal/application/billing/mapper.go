package billing

import (
	"github.com/jhoicas/Facturacion-CFDI/internal/application/dto"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/cfdi"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

// ToFiscalDocumentResponse expone el mapeo para los handlers de timbrado y cancelación.
func ToFiscalDocumentResponse(doc *entity.FiscalDocument) *dto.FiscalDocumentResponse {
	return toFiscalDocumentResponse(doc)
}

func toFiscalDocumentResponse(doc *entity.FiscalDocument) *dto.FiscalDocumentResponse {
	resp := &dto.FiscalDocumentResponse{
		ID:            doc.ID,
		TenantID:      doc.TenantID,
		LocationID:    doc.LocationID,
		OrderRef:      doc.OrderRef,
		Kind:          doc.Kind,
		PaymentMethod: doc.PaymentMethod,
		PaymentForm:   doc.PaymentForm,
		Currency:      doc.Currency,
		Series:        doc.Series,
		Number:        doc.Number,
		Issuer:        toPartyResponse(doc.Issuer),
		Receiver:      toPartyResponse(doc.Receiver),
		Concepts:      make([]dto.ConceptResponse, 0, len(doc.Concepts)),
		Subtotal:      doc.Totals.Subtotal,
		Discount:      doc.Totals.Discount,
		Transferred:   doc.Totals.TotalTransferred,
		Withheld:      doc.Totals.TotalWithheld,
		Total:         doc.Totals.Total,
		Status:        doc.Status,
		ErrorMessage:  doc.ErrorMessage,
		Attempts:      doc.Stamping.Attempts,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if !doc.IssuedAt.IsZero() {
		t := doc.IssuedAt
		resp.IssuedAt = &t
	}
	for _, c := range doc.Concepts {
		cr := dto.ConceptResponse{
			ProductCode: c.ProductCode,
			UnitCode:    c.UnitCode,
			Description: c.Description,
			Quantity:    c.Quantity,
			UnitValue:   c.UnitValue,
			Discount:    c.Discount,
			Amount:      c.Amount,
			TaxObject:   c.TaxObject,
		}
		for _, t := range c.Taxes {
			cr.Taxes = append(cr.Taxes, dto.TaxResponse{
				Kind:        t.Kind,
				Code:        t.Code,
				FactorType:  t.FactorType,
				RateOrQuota: t.RateOrQuota,
				Base:        t.Base,
				Amount:      t.Amount,
			})
		}
		resp.Concepts = append(resp.Concepts, cr)
	}
	for _, v := range doc.Violations {
		resp.Violations = append(resp.Violations, dto.ViolationDTO(v))
	}
	if doc.IsStamped() {
		resp.Folio = doc.Stamp.Folio
		t := doc.Stamp.StampedAt
		resp.StampedAt = &t
		if qr, err := cfdi.VerificationQR(doc); err == nil {
			resp.QRData = qr
		}
	}
	if c := doc.Cancellation; c != nil {
		resp.Cancellation = &dto.CancellationDTO{
			Motive:             c.Motive,
			RelatedFolio:       c.RelatedFolio,
			RequestedAt:        c.RequestedAt,
			CancelledAt:        c.CancelledAt,
			SubStatus:          c.SubStatus,
			AcceptanceDeadline: c.AcceptanceDeadline,
			Message:            c.Message,
		}
	}
	return resp
}

func toPartyResponse(p entity.Party) dto.PartyResponse {
	return dto.PartyResponse{
		RFC:          p.RFC,
		Name:         p.Name,
		FiscalRegime: p.FiscalRegime,
		PostalCode:   p.PostalCode,
		Usage:        p.Usage,
	}
}

func toStatusDTO(doc *entity.FiscalDocument) *dto.FiscalDocumentStatusDTO {
	out := &dto.FiscalDocumentStatusDTO{
		ID:       doc.ID,
		Status:   doc.Status,
		Attempts: doc.Stamping.Attempts,
		Error:    doc.ErrorMessage,
	}
	if doc.IsStamped() {
		out.Folio = doc.Stamp.Folio
	}
	if doc.Cancellation != nil {
		out.SubStatus = doc.Cancellation.SubStatus
	}
	return out
}
