package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Facturacion-CFDI/internal/application/billing"
)

var _ billing.OrderSource = (*OrderSource)(nil)

// OrderSource lee órdenes del punto de venta. Los montos NUMERIC se escanean
// directo a decimal.Decimal con el codec registrado en el pool.
type OrderSource struct {
	q Querier
}

// NewOrderSource construye el adaptador.
func NewOrderSource(q Querier) *OrderSource {
	return &OrderSource{q: q}
}

// GetOrder implementa billing.OrderSource. Retorna (nil, nil) si no existe en el tenant.
func (s *OrderSource) GetOrder(ctx context.Context, tenantID, orderID string) (*billing.Order, error) {
	o := billing.Order{ID: orderID, TenantID: tenantID}
	err := s.q.QueryRow(ctx, `
		SELECT location_id, customer_id, payment_form
		FROM orders WHERE id = $1 AND tenant_id = $2`, orderID, tenantID,
	).Scan(&o.LocationID, &o.CustomerID, &o.PaymentForm)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := s.q.Query(ctx, `
		SELECT sku, description, product_code, unit_code, unit, quantity, unit_price, discount, tax_rate, exempt
		FROM order_lines WHERE order_id = $1
		ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	o.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.OrderLine, error) {
		var l billing.OrderLine
		err := row.Scan(&l.SKU, &l.Description, &l.ProductCode, &l.UnitCode, &l.Unit,
			&l.Quantity, &l.UnitPrice, &l.Discount, &l.TaxRate, &l.Exempt)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan order lines: %w", err)
	}
	return &o, nil
}
