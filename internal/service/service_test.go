package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"kulakan/internal/domain"
	"kulakan/internal/notify"
	"kulakan/internal/receiving"
	"kulakan/internal/store"
	"kulakan/internal/store/memory"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func amount(s string) *domain.Amount {
	a := domain.Amount(s)
	return &a
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "gudang", Role: domain.RoleStaff})
}

type fixture struct {
	svc      *Service
	repo     *memory.Store
	recorder *notify.Recorder
}

func newFixture(opts Options) fixture {
	repo := memory.NewSeeded(nil)
	recorder := &notify.Recorder{}
	opts.Notifier = recorder
	return fixture{svc: New(repo, "main-store", opts), repo: repo, recorder: recorder}
}

// failingCommitRepo rejects every receipt commit, as a store that is down would.
type failingCommitRepo struct {
	store.Repository
	err error
}

func (r failingCommitRepo) CommitReceipt(context.Context, store.ReceiptCommit) (*domain.PurchaseOrder, bool, error) {
	return nil, false, r.err
}

// relabeledOrderRepo serves purchase orders with every line id replaced, as
// rows written without line ids would read back.
type relabeledOrderRepo struct {
	store.Repository
	lineID string
}

func (r relabeledOrderRepo) GetPurchaseOrderByID(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := r.Repository.GetPurchaseOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range po.Items {
		po.Items[i].LineID = r.lineID
	}
	return po, nil
}

func orderedPO(t *testing.T, svc *Service, items ...domain.PurchaseOrderItemRequest) domain.PurchaseOrder {
	t.Helper()
	created, err := svc.CreatePurchaseOrder(adminCtx(), domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-seed-01",
		Date:       "2026-03-01",
		Items:      items,
	})
	if err != nil {
		t.Fatalf("create purchase order: %v", err)
	}
	ordered, err := svc.MarkOrdered(adminCtx(), created.PurchaseOrder.ID)
	if err != nil {
		t.Fatalf("mark ordered: %v", err)
	}
	return ordered.PurchaseOrder
}

func stockLevel(t *testing.T, svc *Service, sku string) domain.StockLevel {
	t.Helper()
	resp, err := svc.GetStockLevels(context.Background(), "", []string{sku})
	if err != nil || len(resp.Items) != 1 {
		t.Fatalf("stock levels: %+v %v", resp, err)
	}
	return resp.Items[0]
}

func TestReceiveProductWithoutConversion(t *testing.T) {
	f := newFixture(Options{})
	before := stockLevel(t, f.svc, "SKU-ROTI-01")
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("10"), OrderedUnitPrice: d("5000")})

	resp, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	if len(resp.Adjustments) != 1 {
		t.Fatalf("expected one adjustment, got %+v", resp.Adjustments)
	}
	adj := resp.Adjustments[0]
	if !adj.BaseQty.Equal(d("10")) || !adj.BaseUnitCost.Equal(d("5000")) {
		t.Fatalf("expected 10 @ 5000, got %s @ %s", adj.BaseQty, adj.BaseUnitCost)
	}
	if !resp.PurchaseOrder.TotalAmount.Equal(d("50000")) {
		t.Fatalf("expected total 50000, got %s", resp.PurchaseOrder.TotalAmount)
	}
	if resp.PurchaseOrder.Status != domain.POStatusReceived || resp.PurchaseOrder.ReceivedBy != "gudang" {
		t.Fatalf("unexpected order after receipt: %+v", resp.PurchaseOrder)
	}

	after := stockLevel(t, f.svc, "SKU-ROTI-01")
	if !after.Qty.Equal(before.Qty.Add(d("10"))) {
		t.Fatalf("expected stock %s, got %s", before.Qty.Add(d("10")), after.Qty)
	}
	if !after.Cost.Equal(store.WeightedCost(before.Cost, before.Qty, d("5000"), d("10"))) {
		t.Fatalf("unexpected weighted cost %s", after.Cost)
	}

	last, ok := f.recorder.Last()
	if !ok || last.Severity != notify.SeveritySuccess || last.EntityID != po.ID {
		t.Fatalf("expected success notification for %s, got %+v", po.ID, last)
	}
}

func TestReceiveSackConvertsToKilograms(t *testing.T) {
	f := newFixture(Options{})
	before := stockLevel(t, f.svc, "SKU-BERAS-01")
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-BERAS-01", OrderedQty: d("2"), OrderedUnitPrice: d("200")})

	if !po.TotalAmount.Equal(d("20000")) {
		t.Fatalf("expected planned total 20000, got %s", po.TotalAmount)
	}

	form, err := f.svc.GetReceivingForm(staffCtx(), po.ID)
	if err != nil {
		t.Fatalf("receiving form: %v", err)
	}
	line := form.Lines[0]
	if !line.ReceivedUnitPrice.Equal(d("10000")) || !line.Factor.Equal(d("50")) || line.PurchaseUnit != "Karung" {
		t.Fatalf("expected seeded 10000 per Karung at factor 50, got %+v", line)
	}

	resp, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{ReceiptID: "rcpt-sack"})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	adj := resp.Adjustments[0]
	if !adj.BaseQty.Equal(d("100")) || !adj.BaseUnitCost.Equal(d("200")) {
		t.Fatalf("expected 100 Kg @ 200, got %s @ %s", adj.BaseQty, adj.BaseUnitCost)
	}
	item := resp.PurchaseOrder.Items[0]
	if !item.Subtotal.Equal(d("20000")) || !item.ReceivedUnitPrice.Equal(d("10000")) || !item.OrderedUnitPrice.Equal(d("200")) {
		t.Fatalf("unexpected received line %+v", item)
	}

	after := stockLevel(t, f.svc, "SKU-BERAS-01")
	if !after.Qty.Equal(before.Qty.Add(d("100"))) {
		t.Fatalf("expected stock +100 Kg, got %s -> %s", before.Qty, after.Qty)
	}

	lots, err := f.svc.ListInventoryLots(context.Background(), "", "SKU-BERAS-01", 10)
	if err != nil || len(lots.Lots) != 1 || !lots.Lots[0].Qty.Equal(d("100")) {
		t.Fatalf("expected one 100 Kg lot, got %+v %v", lots, err)
	}
}

func TestReceiveDiscountedSackRoundsCostUp(t *testing.T) {
	f := newFixture(Options{})
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-BERAS-01", OrderedQty: d("2"), OrderedUnitPrice: d("200")})

	resp, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceivingLineInput{{LineID: po.Items[0].LineID, ReceivedUnitPrice: amount("10001")}},
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !resp.Adjustments[0].BaseUnitCost.Equal(d("201")) {
		t.Fatalf("expected base cost 201, got %s", resp.Adjustments[0].BaseUnitCost)
	}
	if !resp.PurchaseOrder.TotalAmount.Equal(d("20002")) {
		t.Fatalf("expected total 20002, got %s", resp.PurchaseOrder.TotalAmount)
	}
}

func TestReceiveTotalIsSumOfEditedLines(t *testing.T) {
	f := newFixture(Options{})
	po := orderedPO(t, f.svc,
		domain.PurchaseOrderItemRequest{SKU: "SKU-BERAS-01", OrderedQty: d("2"), OrderedUnitPrice: d("200")},
		domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("5"), OrderedUnitPrice: d("9000")},
	)

	resp, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceivingLineInput{
			{LineID: po.Items[1].LineID, ReceivedQty: amount("5"), ReceivedUnitPrice: amount("7000")},
		},
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !resp.PurchaseOrder.TotalAmount.Equal(d("55000")) {
		t.Fatalf("expected total 55000, got %s", resp.PurchaseOrder.TotalAmount)
	}
}

func TestReceiveEmptyQuantityIsZero(t *testing.T) {
	f := newFixture(Options{})
	before := stockLevel(t, f.svc, "SKU-ROTI-01")
	po := orderedPO(t, f.svc,
		domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("5"), OrderedUnitPrice: d("9000")},
		domain.PurchaseOrderItemRequest{SKU: "SKU-TELUR-01", OrderedQty: d("3"), OrderedUnitPrice: d("20000")},
	)

	resp, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceivingLineInput{{LineID: po.Items[0].LineID, ReceivedQty: amount("")}},
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !resp.PurchaseOrder.Items[0].Subtotal.IsZero() || !resp.Adjustments[0].BaseQty.IsZero() {
		t.Fatalf("expected zero line, got %+v / %+v", resp.PurchaseOrder.Items[0], resp.Adjustments[0])
	}
	if !resp.PurchaseOrder.Items[1].Subtotal.Equal(d("60000")) {
		t.Fatalf("expected untouched second line, got %+v", resp.PurchaseOrder.Items[1])
	}
	if after := stockLevel(t, f.svc, "SKU-ROTI-01"); !after.Qty.Equal(before.Qty) {
		t.Fatalf("expected no stock change for zero line, got %s -> %s", before.Qty, after.Qty)
	}
}

func TestReceiveCommitFailureKeepsOrderOrdered(t *testing.T) {
	repo := memory.NewSeeded(nil)
	recorder := &notify.Recorder{}
	setup := New(repo, "main-store", Options{})
	po := orderedPO(t, setup, domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("5"), OrderedUnitPrice: d("9000")})
	before := stockLevel(t, setup, "SKU-ROTI-01")

	commitErr := errors.New("network unreachable")
	svc := New(failingCommitRepo{Repository: repo, err: commitErr}, "main-store", Options{Notifier: recorder})

	if _, err := svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{}); !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}

	stored, err := repo.GetPurchaseOrderByID(context.Background(), po.ID)
	if err != nil {
		t.Fatalf("get po: %v", err)
	}
	if stored.Status != domain.POStatusOrdered || !stored.TotalAmount.Equal(po.TotalAmount) {
		t.Fatalf("expected order untouched, got status=%s total=%s", stored.Status, stored.TotalAmount)
	}
	if after := stockLevel(t, setup, "SKU-ROTI-01"); !after.Qty.Equal(before.Qty) {
		t.Fatalf("expected stock untouched, got %s -> %s", before.Qty, after.Qty)
	}

	last, ok := recorder.Last()
	if !ok || last.Severity != notify.SeverityError || last.Description != commitErr.Error() {
		t.Fatalf("expected error notification, got %+v", last)
	}
}

func TestReceiveIsIdempotentByReceiptID(t *testing.T) {
	f := newFixture(Options{})
	before := stockLevel(t, f.svc, "SKU-SUSU-01")
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-SUSU-01", OrderedQty: d("1"), OrderedUnitPrice: d("15000")})

	req := domain.PurchaseOrderReceiveRequest{ReceiptID: "rcpt-idem"}
	if _, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, req); err != nil {
		t.Fatalf("first receive: %v", err)
	}
	replay, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, req)
	if err != nil {
		t.Fatalf("replay receive: %v", err)
	}
	if !replay.Duplicate {
		t.Fatalf("expected duplicate flag on replay")
	}

	after := stockLevel(t, f.svc, "SKU-SUSU-01")
	if !after.Qty.Equal(before.Qty.Add(d("12"))) {
		t.Fatalf("expected one karton (12) added once, got %s -> %s", before.Qty, after.Qty)
	}

	if _, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{ReceiptID: "rcpt-other"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for a new receipt on a received order, got %v", err)
	}
}

func TestReceiveRequiresOrderedStatus(t *testing.T) {
	f := newFixture(Options{})
	draft, err := f.svc.CreatePurchaseOrder(adminCtx(), domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-seed-01",
		Items:      []domain.PurchaseOrderItemRequest{{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("9000")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.ReceivePurchaseOrder(staffCtx(), draft.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for draft order, got %v", err)
	}

	if _, err := f.svc.CancelPurchaseOrder(adminCtx(), draft.PurchaseOrder.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.MarkOrdered(adminCtx(), draft.PurchaseOrder.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict ordering a cancelled order, got %v", err)
	}
	if _, err := f.svc.GetReceivingForm(staffCtx(), draft.PurchaseOrder.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for receiving form of cancelled order, got %v", err)
	}
}

func TestReceiveUnknownLineID(t *testing.T) {
	f := newFixture(Options{})
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("9000")})

	_, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceivingLineInput{{LineID: "pol-missing", ReceivedQty: amount("1")}},
	})
	if !errors.Is(err, receiving.ErrLineNotFound) || !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected line-not-found invalid error, got %v", err)
	}
	if len(f.recorder.Sent()) != 0 {
		t.Fatalf("expected no notification before commit, got %+v", f.recorder.Sent())
	}
}

func TestReceiveRejectsOutOfRangeAmount(t *testing.T) {
	f := newFixture(Options{})
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("9000")})
	before := stockLevel(t, f.svc, "SKU-ROTI-01")

	_, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{
		Lines: []domain.ReceivingLineInput{{LineID: po.Items[0].LineID, ReceivedQty: amount("1e50000000")}},
	})
	if !errors.Is(err, receiving.ErrAmountOutOfRange) || !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected out-of-range invalid error, got %v", err)
	}

	stored, err := f.svc.GetPurchaseOrder(staffCtx(), po.ID)
	if err != nil {
		t.Fatalf("get purchase order: %v", err)
	}
	if stored.PurchaseOrder.Status != domain.POStatusOrdered {
		t.Fatalf("expected order to stay ordered, got %s", stored.PurchaseOrder.Status)
	}
	if after := stockLevel(t, f.svc, "SKU-ROTI-01"); !after.Qty.Equal(before.Qty) {
		t.Fatalf("expected stock untouched, before=%s after=%s", before.Qty, after.Qty)
	}
}

func TestReceiveRejectsRepeatedLineIDs(t *testing.T) {
	f := newFixture(Options{})
	po := orderedPO(t, f.svc,
		domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("9000")},
		domain.PurchaseOrderItemRequest{SKU: "SKU-BERAS-01", OrderedQty: d("1"), OrderedUnitPrice: d("200")},
	)
	svc := New(relabeledOrderRepo{Repository: f.repo, lineID: "pol-same"}, "main-store", Options{Notifier: f.recorder})

	if _, err := svc.GetReceivingForm(staffCtx(), po.ID); !errors.Is(err, receiving.ErrInvalidLineID) {
		t.Fatalf("expected invalid line id for receiving form, got %v", err)
	}
	_, err := svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{})
	if !errors.Is(err, receiving.ErrInvalidLineID) || !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid line id error, got %v", err)
	}
}

func TestReceiveMissingProductDefaultsToFactorOne(t *testing.T) {
	f := newFixture(Options{})
	po := orderedPO(t, f.svc,
		domain.PurchaseOrderItemRequest{SKU: "SKU-LEGACY-01", OrderedQty: d("3"), OrderedUnitPrice: d("1000")},
		domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("9000")},
	)

	resp, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(resp.MissingProducts) != 1 || resp.MissingProducts[0] != "SKU-LEGACY-01" {
		t.Fatalf("expected legacy sku reported missing, got %v", resp.MissingProducts)
	}
	if len(resp.Adjustments) != 1 || resp.Adjustments[0].SKU != "SKU-ROTI-01" {
		t.Fatalf("expected only the known product adjusted, got %+v", resp.Adjustments)
	}
	if !resp.PurchaseOrder.TotalAmount.Equal(d("12000")) {
		t.Fatalf("expected total 12000, got %s", resp.PurchaseOrder.TotalAmount)
	}

	var warned bool
	for _, n := range f.recorder.Sent() {
		if n.Severity == notify.SeverityWarning {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warning notification for the missing product")
	}
}

func TestReceiveMissingProductStrictMode(t *testing.T) {
	f := newFixture(Options{RequireProduct: true})
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-LEGACY-01", OrderedQty: d("3"), OrderedUnitPrice: d("1000")})

	_, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{})
	if !errors.Is(err, receiving.ErrProductMissing) {
		t.Fatalf("expected product missing error, got %v", err)
	}
	stored, _ := f.repo.GetPurchaseOrderByID(context.Background(), po.ID)
	if stored.Status != domain.POStatusOrdered {
		t.Fatalf("expected order to stay ordered, got %s", stored.Status)
	}
}

func TestConcurrentReceiptsHaveOneWinner(t *testing.T) {
	f := newFixture(Options{})
	before := stockLevel(t, f.svc, "SKU-GULA-01")
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-GULA-01", OrderedQty: d("1"), OrderedUnitPrice: d("15000")})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful receipt, got %d", succeeded)
	}
	if after := stockLevel(t, f.svc, "SKU-GULA-01"); !after.Qty.Equal(before.Qty.Add(d("20"))) {
		t.Fatalf("expected one bal (20) added, got %s -> %s", before.Qty, after.Qty)
	}
}

func TestReceiveRequiresStaffRole(t *testing.T) {
	f := newFixture(Options{})
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("9000")})

	if _, err := f.svc.ReceivePurchaseOrder(context.Background(), po.ID, domain.PurchaseOrderReceiveRequest{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without actor, got %v", err)
	}
	if _, err := f.svc.MarkOrdered(staffCtx(), po.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for staff ordering, got %v", err)
	}
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	f := newFixture(Options{})

	tests := []struct {
		name string
		req  domain.PurchaseOrderCreateRequest
		want error
	}{
		{
			name: "no items",
			req:  domain.PurchaseOrderCreateRequest{SupplierID: "sup-seed-01"},
			want: store.ErrInvalidTransaction,
		},
		{
			name: "bad date",
			req: domain.PurchaseOrderCreateRequest{SupplierID: "sup-seed-01", Date: "01/03/2026",
				Items: []domain.PurchaseOrderItemRequest{{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("1")}}},
			want: store.ErrInvalidTransaction,
		},
		{
			name: "zero quantity",
			req: domain.PurchaseOrderCreateRequest{SupplierID: "sup-seed-01",
				Items: []domain.PurchaseOrderItemRequest{{SKU: "SKU-ROTI-01", OrderedQty: d("0"), OrderedUnitPrice: d("1")}}},
			want: store.ErrInvalidTransaction,
		},
		{
			name: "quantity out of range",
			req: domain.PurchaseOrderCreateRequest{SupplierID: "sup-seed-01",
				Items: []domain.PurchaseOrderItemRequest{{SKU: "SKU-ROTI-01", OrderedQty: decimal.New(1, 50000000), OrderedUnitPrice: d("1")}}},
			want: store.ErrInvalidTransaction,
		},
		{
			name: "unknown supplier",
			req: domain.PurchaseOrderCreateRequest{SupplierID: "sup-none",
				Items: []domain.PurchaseOrderItemRequest{{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("1")}}},
			want: store.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreatePurchaseOrder(adminCtx(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUpdateProductInvalidatesConversion(t *testing.T) {
	f := newFixture(Options{})

	conv, err := f.svc.ProductConversion(context.Background(), "sku-teh-01")
	if err != nil {
		t.Fatalf("conversion: %v", err)
	}
	if conv.Converts || !conv.Factor.Equal(d("1")) || conv.PurchaseUnit != "Box" {
		t.Fatalf("expected factor 1 in Box, got %+v", conv)
	}

	unit := "Dus"
	factor := d("12")
	if _, err := f.svc.UpdateProduct(adminCtx(), "SKU-TEH-01", domain.ProductUpdateRequest{PurchaseUnit: &unit, ConversionToUnit: &factor}); err != nil {
		t.Fatalf("update: %v", err)
	}

	conv, err = f.svc.ProductConversion(context.Background(), "SKU-TEH-01")
	if err != nil {
		t.Fatalf("conversion: %v", err)
	}
	if !conv.Converts || !conv.Factor.Equal(d("12")) || conv.PurchaseUnit != "Dus" {
		t.Fatalf("expected 12 per Dus, got %+v", conv)
	}
}

func TestCreateProductWithInitialStock(t *testing.T) {
	f := newFixture(Options{})

	product, err := f.svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		SKU:              " sku-minyak-01 ",
		Name:             "Minyak Goreng 2L",
		Category:         "grocery",
		PurchaseUnit:     "Karton",
		ConversionToUnit: d("6"),
		Price:            d("36000"),
		DiscountType:     domain.DiscountPercent,
		Discount:         d("10"),
		InitialStock:     d("24"),
		InitialCost:      d("31000"),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.SKU != "SKU-MINYAK-01" || product.BaseUnit != domain.DefaultBaseUnit {
		t.Fatalf("unexpected normalized product %+v", product)
	}
	if !product.FinalPrice.Equal(d("32400")) {
		t.Fatalf("expected final price 32400, got %s", product.FinalPrice)
	}
	if level := stockLevel(t, f.svc, "SKU-MINYAK-01"); !level.Qty.Equal(d("24")) || !level.Cost.Equal(d("31000")) {
		t.Fatalf("unexpected initial stock %+v", level)
	}

	if _, err := f.svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{SKU: "X", Name: "X", Category: "X", Price: d("1")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff to be forbidden, got %v", err)
	}
	if _, err := f.svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{SKU: "SKU-X", Name: "X", Category: "X", Price: d("1"), DiscountType: "percent", Discount: d("120")}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected percent above 100 to be rejected, got %v", err)
	}
}

func TestPromoPreview(t *testing.T) {
	f := newFixture(Options{})

	promo, err := f.svc.CreatePromo(adminCtx(), domain.PromoCreateRequest{
		Name:         "Paket Sarapan",
		DiscountType: domain.DiscountFixed,
		Discount:     d("5000"),
		SKUs:         []string{"sku-roti-01", "SKU-SUSU-01"},
	})
	if err != nil {
		t.Fatalf("create promo: %v", err)
	}

	preview, err := f.svc.PreviewPromo(adminCtx(), promo.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !preview.BaseTotal.Equal(d("36700")) || !preview.FinalTotal.Equal(d("31700")) {
		t.Fatalf("unexpected bundle preview %+v", preview)
	}

	toggled, err := f.svc.SetPromoActive(adminCtx(), promo.ID, false)
	if err != nil || toggled.Active {
		t.Fatalf("expected promo deactivated, got %+v %v", toggled, err)
	}
}

func TestPricingPreviewNeverNegative(t *testing.T) {
	f := newFixture(Options{})

	resp, err := f.svc.PricingPreview(context.Background(), domain.PricingPreviewRequest{Price: d("5000"), DiscountType: "fixed", Discount: d("7500")})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !resp.FinalPrice.IsZero() {
		t.Fatalf("expected final price 0, got %s", resp.FinalPrice)
	}

	if _, err := f.svc.PricingPreview(context.Background(), domain.PricingPreviewRequest{Price: d("5000"), DiscountType: "bogus"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid discount type, got %v", err)
	}
}

func TestMutationsWriteAuditLog(t *testing.T) {
	f := newFixture(Options{})
	po := orderedPO(t, f.svc, domain.PurchaseOrderItemRequest{SKU: "SKU-ROTI-01", OrderedQty: d("1"), OrderedUnitPrice: d("9000")})
	if _, err := f.svc.ReceivePurchaseOrder(staffCtx(), po.ID, domain.PurchaseOrderReceiveRequest{}); err != nil {
		t.Fatalf("receive: %v", err)
	}

	logs, err := f.svc.ListAuditLogs(context.Background(), "", "", 50)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
	}
	for _, want := range []string{"purchase_order_create", "purchase_order_order", "purchase_order_receive"} {
		if !actions[want] {
			t.Fatalf("expected audit action %s, got %v", want, actions)
		}
	}
}
