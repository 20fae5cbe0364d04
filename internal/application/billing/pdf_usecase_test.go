package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain"
	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
	"github.com/jhoicas/Facturacion-CFDI/internal/infrastructure/memory"
)

// recordingPDF generador falso que guarda el QR recibido.
type recordingPDF struct {
	qr string
}

func (r *recordingPDF) GenerateFiscalDocumentPDF(_ context.Context, _ *entity.FiscalDocument, _ *entity.Company, qrData string) ([]byte, error) {
	r.qr = qrData
	return []byte("%PDF-1.3"), nil
}

func TestPDFUseCase_DownloadPDF(t *testing.T) {
	h := newHarness(t)
	doc := h.stampedDoc(t)
	companies := memory.NewCompanyRepo(entity.Company{ID: testTenant, Name: "ESCUELA KEMPER URGATE", RFC: "EKU9003173C9"})
	gen := &recordingPDF{}
	uc := billing.NewPDFUseCase(h.store, companies, gen)

	out, filename, err := uc.DownloadPDF(context.Background(), testTenant, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(out))
	assert.Equal(t, "cfdi_A1.pdf", filename)
	assert.Contains(t, gen.qr, "id="+doc.Stamp.Folio)
	assert.Contains(t, gen.qr, "re=EKU9003173C9")
}

func TestPDFUseCase_Errores(t *testing.T) {
	h := newHarness(t)
	companies := memory.NewCompanyRepo(entity.Company{ID: testTenant, RFC: "EKU9003173C9"})
	uc := billing.NewPDFUseCase(h.store, companies, &recordingPDF{})
	ctx := context.Background()

	draftID := saveDraft(t, h.store)
	_, _, err := uc.DownloadPDF(ctx, testTenant, draftID)
	assert.ErrorIs(t, err, domain.ErrConflict, "sin timbre no hay PDF")

	_, _, err = uc.DownloadPDF(ctx, "otra-empresa", draftID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = uc.DownloadPDF(ctx, testTenant, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
