package receiving

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kulakan/internal/domain"
)

var (
	ErrLineNotFound  = errors.New("receiving line not found")
	ErrInvalidLineID = errors.New("invalid order line id")
)

// FormLine is the editable state of one order line while it is received.
// Quantities and prices are in purchase units.
type FormLine struct {
	LineID            string
	SKU               string
	ProductName       string
	Conversion        Conversion
	OrderedQty        decimal.Decimal
	ReceivedQty       decimal.Decimal
	ReceivedUnitPrice decimal.Decimal

	item domain.PurchaseOrderItem
}

// LineTotal is what was paid for the line in purchase-unit pricing.
func (l FormLine) LineTotal() decimal.Decimal {
	return l.ReceivedQty.Mul(l.ReceivedUnitPrice)
}

// Form is an immutable receiving form. Edits return a new Form and leave the
// receiver untouched.
type Form struct {
	orderID string
	status  string
	lines   []FormLine
	index   map[string]int
}

// Edit is a change to one line addressed by its line id. Nil fields are left
// as they are.
type Edit struct {
	LineID            string
	ReceivedQty       *string
	ReceivedUnitPrice *string
}

// NewForm seeds one line per order item. Received quantity starts at the
// ordered quantity and the received unit price is the ordered base-unit price
// re-expressed per purchase unit. products is keyed by SKU; a missing entry
// resolves to factor 1. Line ids are kept as stored so the commit can match
// them; an order with an empty or repeated line id cannot be received.
func NewForm(order domain.PurchaseOrder, products map[string]*domain.Product) (Form, error) {
	form := Form{
		orderID: order.ID,
		status:  order.Status,
		lines:   make([]FormLine, 0, len(order.Items)),
		index:   make(map[string]int, len(order.Items)),
	}

	for i, item := range order.Items {
		if item.LineID == "" {
			return Form{}, fmt.Errorf("%w: item %d has no line id", ErrInvalidLineID, i+1)
		}
		if _, exists := form.index[item.LineID]; exists {
			return Form{}, fmt.Errorf("%w: %s appears more than once", ErrInvalidLineID, item.LineID)
		}

		conv := Resolve(products[item.SKU])
		form.index[item.LineID] = len(form.lines)
		form.lines = append(form.lines, FormLine{
			LineID:            item.LineID,
			SKU:               item.SKU,
			ProductName:       item.ProductName,
			Conversion:        conv,
			OrderedQty:        clamp(item.OrderedQty),
			ReceivedQty:       clamp(item.OrderedQty),
			ReceivedUnitPrice: clamp(item.OrderedUnitPrice).Mul(conv.Factor),
			item:              item,
		})
	}

	return form, nil
}

// Lines returns a copy of the lines in order-item order.
func (f Form) Lines() []FormLine {
	out := make([]FormLine, len(f.lines))
	copy(out, f.lines)
	return out
}

func (f Form) Line(lineID string) (FormLine, bool) {
	i, ok := f.index[lineID]
	if !ok {
		return FormLine{}, false
	}
	return f.lines[i], true
}

// Total is the running sum of line totals. It is informational only; the
// order total changes on commit.
func (f Form) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range f.lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

func (f Form) SetReceivedQty(lineID string, raw string) (Form, error) {
	if err := CheckAmount(raw); err != nil {
		return f, fmt.Errorf("received_qty: %w", err)
	}
	return f.update(lineID, func(line *FormLine) {
		line.ReceivedQty = ParseAmount(raw)
	})
}

func (f Form) SetReceivedUnitPrice(lineID string, raw string) (Form, error) {
	if err := CheckAmount(raw); err != nil {
		return f, fmt.Errorf("received_unit_price: %w", err)
	}
	return f.update(lineID, func(line *FormLine) {
		line.ReceivedUnitPrice = ParseAmount(raw)
	})
}

// Apply runs edits in order. The first unknown line id aborts and returns the
// receiver unchanged.
func (f Form) Apply(edits []Edit) (Form, error) {
	next := f
	for _, edit := range edits {
		var err error
		if edit.ReceivedQty != nil {
			if next, err = next.SetReceivedQty(edit.LineID, *edit.ReceivedQty); err != nil {
				return f, err
			}
		}
		if edit.ReceivedUnitPrice != nil {
			if next, err = next.SetReceivedUnitPrice(edit.LineID, *edit.ReceivedUnitPrice); err != nil {
				return f, err
			}
		}
		if _, ok := next.index[edit.LineID]; !ok {
			return f, fmt.Errorf("%w: %s", ErrLineNotFound, edit.LineID)
		}
	}
	return next, nil
}

// View renders the form for API responses.
func (f Form) View() domain.ReceivingForm {
	view := domain.ReceivingForm{
		PurchaseOrderID: f.orderID,
		Status:          f.status,
		Lines:           make([]domain.ReceivingFormLine, 0, len(f.lines)),
		TotalAmount:     f.Total(),
	}
	for _, line := range f.lines {
		view.Lines = append(view.Lines, domain.ReceivingFormLine{
			LineID:            line.LineID,
			SKU:               line.SKU,
			ProductName:       line.ProductName,
			ProductFound:      line.Conversion.Found,
			PurchaseUnit:      line.Conversion.PurchaseUnit,
			BaseUnit:          line.Conversion.BaseUnit,
			Factor:            line.Conversion.Factor,
			OrderedQty:        line.OrderedQty,
			ReceivedQty:       line.ReceivedQty,
			ReceivedUnitPrice: line.ReceivedUnitPrice,
			LineTotal:         line.LineTotal(),
		})
	}
	return view
}

func (f Form) update(lineID string, mutate func(*FormLine)) (Form, error) {
	i, ok := f.index[lineID]
	if !ok {
		return f, fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
	}

	lines := make([]FormLine, len(f.lines))
	copy(lines, f.lines)
	mutate(&lines[i])

	next := f
	next.lines = lines
	return next, nil
}

// ParseAmount normalizes user input. Empty, unparsable, negative and out of
// range values become zero.
func ParseAmount(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxAmountLen {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !InRange(d) {
		return decimal.Zero
	}
	return clamp(d)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
