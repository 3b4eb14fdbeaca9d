package receiving

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kulakan/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sackProduct() *domain.Product {
	return &domain.Product{
		SKU:              "BERAS-50",
		Name:             "Beras Premium",
		BaseUnit:         "Kg",
		PurchaseUnit:     "Karung",
		ConversionToUnit: decimal.NewFromInt(50),
	}
}

func plainProduct() *domain.Product {
	return &domain.Product{SKU: "SABUN", Name: "Sabun Mandi", BaseUnit: "Pcs"}
}

func twoLineOrder() domain.PurchaseOrder {
	return domain.PurchaseOrder{
		ID:     "po-1",
		Status: domain.POStatusOrdered,
		Items: []domain.PurchaseOrderItem{
			{LineID: "l-1", SKU: "BERAS-50", ProductName: "Beras Premium", OrderedQty: dec("2"), OrderedUnitPrice: dec("200")},
			{LineID: "l-2", SKU: "SABUN", ProductName: "Sabun Mandi", OrderedQty: dec("10"), OrderedUnitPrice: dec("5000")},
		},
	}
}

func newForm(t *testing.T, order domain.PurchaseOrder, products map[string]*domain.Product) Form {
	t.Helper()
	form, err := NewForm(order, products)
	require.NoError(t, err)
	return form
}

func products() map[string]*domain.Product {
	return map[string]*domain.Product{
		"BERAS-50": sackProduct(),
		"SABUN":    plainProduct(),
	}
}

func TestNewFormSeedsFromOrder(t *testing.T) {
	form := newForm(t, twoLineOrder(), products())
	lines := form.Lines()
	require.Len(t, lines, 2)

	assert.Equal(t, "l-1", lines[0].LineID)
	assert.True(t, dec("2").Equal(lines[0].ReceivedQty))
	assert.True(t, dec("10000").Equal(lines[0].ReceivedUnitPrice), "200/Kg x 50 = 10000 per sack, got %s", lines[0].ReceivedUnitPrice)
	assert.True(t, dec("20000").Equal(lines[0].LineTotal()))

	assert.True(t, dec("10").Equal(lines[1].ReceivedQty))
	assert.True(t, dec("5000").Equal(lines[1].ReceivedUnitPrice))
	assert.True(t, dec("70000").Equal(form.Total()))
}

func TestNewFormRejectsMissingOrRepeatedLineIDs(t *testing.T) {
	missing := domain.PurchaseOrder{ID: "po-2", Items: []domain.PurchaseOrderItem{
		{LineID: "l-1", SKU: "A", OrderedQty: dec("1"), OrderedUnitPrice: dec("1")},
		{SKU: "B", OrderedQty: dec("1"), OrderedUnitPrice: dec("1")},
	}}
	_, err := NewForm(missing, nil)
	assert.ErrorIs(t, err, ErrInvalidLineID)

	repeated := domain.PurchaseOrder{ID: "po-3", Items: []domain.PurchaseOrderItem{
		{LineID: "l-1", SKU: "A", OrderedQty: dec("1"), OrderedUnitPrice: dec("1")},
		{LineID: "l-1", SKU: "B", OrderedQty: dec("1"), OrderedUnitPrice: dec("1")},
	}}
	_, err = NewForm(repeated, nil)
	assert.ErrorIs(t, err, ErrInvalidLineID)
}

func TestNewFormKeepsStoredLineIDs(t *testing.T) {
	order := domain.PurchaseOrder{ID: "po-4", Items: []domain.PurchaseOrderItem{
		{LineID: "pol-a", SKU: "A", OrderedQty: dec("1"), OrderedUnitPrice: dec("1")},
	}}
	plan := Reconcile(newForm(t, order, nil))
	require.Len(t, plan.Lines, 1)
	assert.Equal(t, "pol-a", plan.Lines[0].LineID, "committed line id must match the stored one")
}

func TestSetReceivedQtyIsCopyOnWrite(t *testing.T) {
	original := newForm(t, twoLineOrder(), products())

	edited, err := original.SetReceivedQty("l-1", "3")
	require.NoError(t, err)

	before, _ := original.Line("l-1")
	after, _ := edited.Line("l-1")
	assert.True(t, dec("2").Equal(before.ReceivedQty), "original form must not change")
	assert.True(t, dec("3").Equal(after.ReceivedQty))
	assert.True(t, dec("30000").Equal(after.LineTotal()))

	otherBefore, _ := original.Line("l-2")
	otherAfter, _ := edited.Line("l-2")
	assert.Equal(t, otherBefore, otherAfter, "editing one line must not touch another")
}

func TestSetReceivedUnitPriceOnlyTouchesOneLine(t *testing.T) {
	form := newForm(t, twoLineOrder(), products())

	edited, err := form.SetReceivedUnitPrice("l-2", "4500")
	require.NoError(t, err)

	line, _ := edited.Line("l-2")
	assert.True(t, dec("45000").Equal(line.LineTotal()))

	first, _ := edited.Line("l-1")
	assert.True(t, dec("10000").Equal(first.ReceivedUnitPrice))
	assert.True(t, dec("2").Equal(first.ReceivedQty))
}

func TestEmptyAndNegativeInputNormalizeToZero(t *testing.T) {
	form := newForm(t, twoLineOrder(), products())

	edited, err := form.SetReceivedQty("l-1", "")
	require.NoError(t, err)
	edited, err = edited.SetReceivedUnitPrice("l-2", "-50")
	require.NoError(t, err)

	first, _ := edited.Line("l-1")
	assert.True(t, first.ReceivedQty.IsZero())
	assert.True(t, first.LineTotal().IsZero())

	second, _ := edited.Line("l-2")
	assert.True(t, second.ReceivedUnitPrice.IsZero())
	assert.True(t, dec("10").Equal(second.ReceivedQty))
}

func TestUnknownLineID(t *testing.T) {
	form := newForm(t, twoLineOrder(), products())

	_, err := form.SetReceivedQty("nope", "1")
	assert.ErrorIs(t, err, ErrLineNotFound)

	qty := "5"
	same, err := form.Apply([]Edit{
		{LineID: "l-1", ReceivedQty: &qty},
		{LineID: "nope"},
	})
	assert.ErrorIs(t, err, ErrLineNotFound)
	line, _ := same.Line("l-1")
	assert.True(t, dec("2").Equal(line.ReceivedQty), "failed apply returns the untouched form")
}

func TestOutOfRangeAmountIsRejected(t *testing.T) {
	form := newForm(t, twoLineOrder(), products())

	for _, raw := range []string{"1e50000000", "123456789012345", "0.0000001", "1e-50000000", "1" + strings.Repeat("0", 40)} {
		same, err := form.SetReceivedQty("l-1", raw)
		assert.ErrorIs(t, err, ErrAmountOutOfRange, "received_qty %q", raw)
		line, _ := same.Line("l-1")
		assert.True(t, dec("2").Equal(line.ReceivedQty), "rejected edit leaves the form unchanged")

		_, err = form.SetReceivedUnitPrice("l-2", raw)
		assert.ErrorIs(t, err, ErrAmountOutOfRange, "received_unit_price %q", raw)
	}

	huge := "1e50000000"
	_, err := form.Apply([]Edit{{LineID: "l-1", ReceivedQty: &huge}})
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange(decimal.Zero))
	assert.True(t, InRange(dec("99999999999999.999999")))
	assert.True(t, InRange(dec("1e13")))
	assert.False(t, InRange(dec("1e14")))
	assert.False(t, InRange(dec("0.0000001")))
	assert.False(t, InRange(decimal.New(1, 50000000)))
}

func TestApplyEdits(t *testing.T) {
	form := newForm(t, twoLineOrder(), products())
	qty := "2"
	price := "10001"

	edited, err := form.Apply([]Edit{{LineID: "l-1", ReceivedQty: &qty, ReceivedUnitPrice: &price}})
	require.NoError(t, err)

	line, _ := edited.Line("l-1")
	assert.True(t, dec("20002").Equal(line.LineTotal()))
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"":           "0",
		"  ":         "0",
		"abc":        "0",
		"-1":         "0",
		"-0.5":       "0",
		"12":         "12",
		" 7.25 ":     "7.25",
		"1e3":        "1000",
		"1e50000000": "0",
		"1e-9":       "0",
	}
	for in, want := range cases {
		assert.True(t, dec(want).Equal(ParseAmount(in)), "ParseAmount(%q) = %s, want %s", in, ParseAmount(in), want)
	}
}

func TestViewMirrorsLines(t *testing.T) {
	view := newForm(t, twoLineOrder(), products()).View()

	assert.Equal(t, "po-1", view.PurchaseOrderID)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "Karung", view.Lines[0].PurchaseUnit)
	assert.Equal(t, "Kg", view.Lines[0].BaseUnit)
	assert.True(t, view.Lines[0].ProductFound)
	assert.True(t, dec("70000").Equal(view.TotalAmount))
}
