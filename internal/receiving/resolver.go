// Package receiving turns a purchase order that has arrived into stock
// movements and a corrected order document.
//
// The flow has three stages: Resolve looks up how many base units one
// purchase unit holds, Form carries the editable received values per line,
// and Reconcile converts the confirmed form into a Plan that a repository can
// commit in one transaction.
package receiving

import (
	"strings"

	"github.com/shopspring/decimal"

	"kulakan/internal/domain"
)

var one = decimal.NewFromInt(1)

// Conversion is the effective unit conversion for a product.
type Conversion struct {
	// Factor is the number of base units in one purchase unit. Always > 0.
	Factor       decimal.Decimal
	PurchaseUnit string
	BaseUnit     string
	// Found is false when the product could not be looked up.
	Found bool
}

// Converts reports whether receiving this product changes units.
func (c Conversion) Converts() bool {
	return c.Factor.GreaterThan(one)
}

// Resolve returns the conversion for p. Conversion applies only when the
// product names a purchase unit and carries a positive conversion; otherwise
// the factor is 1 and the purchase unit is the base unit. A nil product
// resolves to factor 1 with Found=false.
func Resolve(p *domain.Product) Conversion {
	if p == nil {
		return Conversion{Factor: one}
	}

	base := strings.TrimSpace(p.BaseUnit)
	if base == "" {
		base = domain.DefaultBaseUnit
	}

	purchase := strings.TrimSpace(p.PurchaseUnit)
	if purchase != "" && p.ConversionToUnit.IsPositive() {
		return Conversion{
			Factor:       p.ConversionToUnit,
			PurchaseUnit: purchase,
			BaseUnit:     base,
			Found:        true,
		}
	}

	return Conversion{
		Factor:       one,
		PurchaseUnit: base,
		BaseUnit:     base,
		Found:        true,
	}
}
