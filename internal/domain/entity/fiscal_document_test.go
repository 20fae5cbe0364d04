package entity_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/Facturacion-CFDI/internal/domain/entity"
)

func TestCanTransition(t *testing.T) {
	doc := &entity.FiscalDocument{Status: entity.StatusDraft}
	assert.True(t, doc.CanTransition(entity.StatusPending))
	assert.False(t, doc.CanTransition(entity.StatusStamped), "DRAFT no puede saltar a STAMPED")

	doc.Status = entity.StatusError
	assert.True(t, doc.CanTransition(entity.StatusStamped), "conciliación ERROR→STAMPED")

	doc.Status = entity.StatusStamped
	assert.True(t, doc.CanTransition(entity.StatusCancellationRequested))
	assert.False(t, doc.CanTransition(entity.StatusPending), "un documento timbrado no se vuelve a timbrar")

	doc.Status = entity.StatusCancelled
	assert.False(t, doc.CanTransition(entity.StatusStamped), "CANCELLED es terminal")
}

func TestIsMutable(t *testing.T) {
	for status, want := range map[string]bool{
		entity.StatusDraft:                 true,
		entity.StatusError:                 true,
		entity.StatusPending:               false,
		entity.StatusStamped:               false,
		entity.StatusCancellationRequested: false,
	} {
		d := &entity.FiscalDocument{Status: status}
		assert.Equal(t, want, d.IsMutable(), status)
	}
}

func TestClone_CopiaProfunda(t *testing.T) {
	now := time.Now()
	orig := &entity.FiscalDocument{
		ID: "doc-1",
		Concepts: []entity.Concept{{
			Description: "Café",
			Quantity:    decimal.NewFromInt(1),
			Taxes:       []entity.Tax{{Code: "002"}},
		}},
		Stamp:        &entity.Stamp{Folio: "F1"},
		Cancellation: &entity.Cancellation{Motive: "02", CancelledAt: &now},
	}
	c := orig.Clone()
	c.Concepts[0].Description = "Té"
	c.Concepts[0].Taxes[0].Code = "003"
	c.Stamp.Folio = "F2"
	c.Cancellation.Motive = "03"

	assert.Equal(t, "Café", orig.Concepts[0].Description)
	assert.Equal(t, "002", orig.Concepts[0].Taxes[0].Code)
	assert.Equal(t, "F1", orig.Stamp.Folio)
	assert.Equal(t, "02", orig.Cancellation.Motive)
}
