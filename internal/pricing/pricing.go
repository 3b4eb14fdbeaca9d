package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"kulakan/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DiscountAmount is the reduction a discount applies to price, before the
// result is floored at zero.
func DiscountAmount(price decimal.Decimal, discountType string, discount decimal.Decimal) decimal.Decimal {
	switch strings.ToLower(strings.TrimSpace(discountType)) {
	case domain.DiscountPercent:
		return price.Mul(discount).Div(hundred)
	case domain.DiscountFixed:
		return discount
	default:
		return decimal.Zero
	}
}

// FinalPrice applies a percent or fixed discount to price. The result is never
// negative. Unknown discount types leave the price unchanged.
func FinalPrice(price decimal.Decimal, discountType string, discount decimal.Decimal) decimal.Decimal {
	final := price.Sub(DiscountAmount(price, discountType, discount))
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}

func Preview(req domain.PricingPreviewRequest) domain.PricingPreviewResponse {
	final := FinalPrice(req.Price, req.DiscountType, req.Discount)
	return domain.PricingPreviewResponse{
		Price:          req.Price,
		DiscountType:   req.DiscountType,
		Discount:       req.Discount,
		DiscountAmount: req.Price.Sub(final),
		FinalPrice:     final,
	}
}

// WithFinalPrice fills the derived final price of a product.
func WithFinalPrice(p domain.Product) domain.Product {
	p.FinalPrice = FinalPrice(p.Price, p.DiscountType, p.Discount)
	return p
}

// BundlePreview sums the retail price of every SKU in the rule and applies the
// rule discount to the sum. SKUs absent from products are reported and
// contribute nothing.
func BundlePreview(rule domain.PromoRule, products map[string]domain.Product) domain.BundlePreview {
	preview := domain.BundlePreview{
		PromoID:   rule.ID,
		SKUs:      append([]string(nil), rule.SKUs...),
		BaseTotal: decimal.Zero,
	}

	for _, sku := range rule.SKUs {
		product, ok := products[sku]
		if !ok {
			preview.MissingSKUs = append(preview.MissingSKUs, sku)
			continue
		}
		preview.BaseTotal = preview.BaseTotal.Add(product.Price)
	}

	preview.FinalTotal = FinalPrice(preview.BaseTotal, rule.DiscountType, rule.Discount)
	preview.Savings = preview.BaseTotal.Sub(preview.FinalTotal)
	return preview
}
