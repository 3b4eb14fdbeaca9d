package receiving

import (
	"errors"

	"github.com/shopspring/decimal"

	"kulakan/internal/domain"
)

var ErrProductMissing = errors.New("product referenced by order line not found")

// Plan is the outcome of reconciling a confirmed form.
type Plan struct {
	OrderID     string
	Adjustments []domain.StockAdjustment
	// Lines are the order items with received values and subtotals filled in.
	Lines       []domain.PurchaseOrderItem
	TotalAmount decimal.Decimal
	// MissingProducts lists SKUs whose product could not be found. Their
	// lines count toward the total but produce no stock adjustment.
	MissingProducts []string
}

// Reconcile converts the form into stock adjustments in base units and the
// corrected order lines. It is pure.
func Reconcile(form Form) Plan {
	plan := Plan{
		OrderID:     form.orderID,
		Adjustments: make([]domain.StockAdjustment, 0, len(form.lines)),
		Lines:       make([]domain.PurchaseOrderItem, 0, len(form.lines)),
		TotalAmount: decimal.Zero,
	}

	seenMissing := map[string]bool{}
	for _, line := range form.lines {
		total := line.LineTotal()

		if line.Conversion.Found {
			plan.Adjustments = append(plan.Adjustments, domain.StockAdjustment{
				SKU:          line.SKU,
				BaseQty:      line.ReceivedQty.Mul(line.Conversion.Factor),
				BaseUnitCost: BaseUnitCost(line.ReceivedUnitPrice, line.Conversion.Factor),
			})
		} else if !seenMissing[line.SKU] {
			seenMissing[line.SKU] = true
			plan.MissingProducts = append(plan.MissingProducts, line.SKU)
		}

		updated := line.item
		updated.ReceivedQty = line.ReceivedQty
		updated.ReceivedUnitPrice = line.ReceivedUnitPrice
		updated.Subtotal = total
		plan.Lines = append(plan.Lines, updated)

		plan.TotalAmount = plan.TotalAmount.Add(total)
	}

	return plan
}

// BaseUnitCost converts a purchase-unit price to a base-unit cost. When the
// factor is above 1 the quotient is rounded up to the next whole currency
// unit so converted cost never falls below what was paid.
func BaseUnitCost(price decimal.Decimal, factor decimal.Decimal) decimal.Decimal {
	if !factor.GreaterThan(one) {
		return price
	}
	q, r := price.QuoRem(factor, 0)
	if r.IsPositive() {
		q = q.Add(one)
	}
	return q
}
