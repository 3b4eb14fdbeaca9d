package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kulakan/internal/domain"
	"kulakan/internal/notify"
	"kulakan/internal/receiving"
	"kulakan/internal/store"
	"kulakan/internal/xid"
)

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	req.Date = strings.TrimSpace(req.Date)
	req.Notes = strings.TrimSpace(req.Notes)
	for i := range req.Items {
		req.Items[i].SKU = normalizeSKU(req.Items[i].SKU)
	}
	if err := s.check(req); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	now := s.now()
	orderDate := now
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return domain.PurchaseOrderResponse{}, store.ErrInvalidTransaction
		}
		orderDate = parsed.UTC()
	}

	if _, err := s.repo.GetSupplierByID(ctx, req.SupplierID); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	total := decimal.Zero
	for _, item := range req.Items {
		if !item.OrderedQty.IsPositive() || item.OrderedUnitPrice.IsNegative() ||
			!receiving.InRange(item.OrderedQty) || !receiving.InRange(item.OrderedUnitPrice) {
			return domain.PurchaseOrderResponse{}, store.ErrInvalidTransaction
		}

		name := item.SKU
		var product *domain.Product
		found, err := s.lookupProduct(ctx, item.SKU)
		switch {
		case err == nil:
			product = found
			name = found.Name
		case errors.Is(err, store.ErrNotFound):
			s.logger.Warn("purchase order line references unknown product", zap.String("sku", item.SKU))
		default:
			return domain.PurchaseOrderResponse{}, err
		}

		conv := receiving.Resolve(product)
		subtotal := item.OrderedQty.Mul(item.OrderedUnitPrice).Mul(conv.Factor)
		total = total.Add(subtotal)
		items = append(items, domain.PurchaseOrderItem{
			LineID:           xid.New("pol"),
			SKU:              item.SKU,
			ProductName:      name,
			OrderedQty:       item.OrderedQty,
			OrderedUnitPrice: item.OrderedUnitPrice,
			Subtotal:         subtotal,
		})
	}

	saved, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		ID:          xid.New("po"),
		StoreID:     req.StoreID,
		SupplierID:  req.SupplierID,
		Date:        orderDate,
		Status:      domain.POStatusDraft,
		Items:       items,
		TotalAmount: total,
		Notes:       req.Notes,
		CreatedAt:   now,
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "purchase_order_create", "purchase_order", saved.ID,
		fmt.Sprintf("items=%d,total=%s", len(saved.Items), saved.TotalAmount))
	return domain.PurchaseOrderResponse{PurchaseOrder: *saved}, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string) (domain.PurchaseOrderListResponse, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	pos, err := s.repo.ListPurchaseOrders(ctx, s.defaultStoreID, status, 200)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: pos}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, strings.TrimSpace(purchaseOrderID))
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

func (s *Service) MarkOrdered(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	return s.transition(ctx, purchaseOrderID, []string{domain.POStatusDraft}, domain.POStatusOrdered, "purchase_order_order")
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	return s.transition(ctx, purchaseOrderID, []string{domain.POStatusDraft, domain.POStatusOrdered}, domain.POStatusCancelled, "purchase_order_cancel")
}

func (s *Service) transition(ctx context.Context, purchaseOrderID string, from []string, to string, action string) (domain.PurchaseOrderResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidTransaction
	}

	po, err := s.repo.TransitionPurchaseOrder(ctx, purchaseOrderID, from, to, s.now())
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, po.StoreID, action, "purchase_order", po.ID, fmt.Sprintf("status=%s", po.Status))
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

// GetReceivingForm returns the form an ordered purchase order starts
// receiving with.
func (s *Service) GetReceivingForm(ctx context.Context, purchaseOrderID string) (domain.ReceivingForm, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.ReceivingForm{}, err
	}

	po, err := s.repo.GetPurchaseOrderByID(ctx, strings.TrimSpace(purchaseOrderID))
	if err != nil {
		return domain.ReceivingForm{}, err
	}
	if po.Status != domain.POStatusOrdered {
		return domain.ReceivingForm{}, fmt.Errorf("%w: purchase order is %s", store.ErrConflict, po.Status)
	}

	products, _, err := s.orderProducts(ctx, *po)
	if err != nil {
		return domain.ReceivingForm{}, err
	}
	form, err := receiving.NewForm(*po, products)
	if err != nil {
		return domain.ReceivingForm{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	return form.View(), nil
}

// ReceivePurchaseOrder reconciles what arrived against the order and commits
// stock, cost basis and the corrected order in one step. A repeated request
// with the same receipt id returns the stored result.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderReceiveResponse, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}

	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		return domain.PurchaseOrderReceiveResponse{}, store.ErrInvalidTransaction
	}
	req.ReceiptID = strings.TrimSpace(req.ReceiptID)
	req.ReceivedBy = strings.TrimSpace(req.ReceivedBy)
	if req.ReceivedBy == "" {
		req.ReceivedBy = actor.Username
	}
	if err := s.check(req); err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}

	po, err := s.repo.GetPurchaseOrderByID(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	if req.ReceiptID != "" && po.Status == domain.POStatusReceived && po.ReceiptID == req.ReceiptID {
		return domain.PurchaseOrderReceiveResponse{PurchaseOrder: *po, Adjustments: []domain.StockAdjustment{}, Duplicate: true}, nil
	}
	if po.Status != domain.POStatusOrdered {
		return domain.PurchaseOrderReceiveResponse{}, fmt.Errorf("%w: purchase order is %s", store.ErrConflict, po.Status)
	}

	products, missing, err := s.orderProducts(ctx, *po)
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	if len(missing) > 0 && s.requireProduct {
		return domain.PurchaseOrderReceiveResponse{}, fmt.Errorf("%w: %s", receiving.ErrProductMissing, strings.Join(missing, ", "))
	}

	form, err := receiving.NewForm(*po, products)
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	form, err = form.Apply(toEdits(req.Lines))
	if err != nil {
		return domain.PurchaseOrderReceiveResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	plan := receiving.Reconcile(form)

	if len(plan.MissingProducts) > 0 {
		s.logger.Warn("receiving lines without product, received at factor 1 without stock change",
			zap.String("purchase_order_id", po.ID),
			zap.Strings("skus", plan.MissingProducts))
		s.notifier.Notify(ctx, notify.Notification{
			Title:       "Produk tidak ditemukan",
			Description: fmt.Sprintf("Stok tidak diperbarui untuk %s", strings.Join(plan.MissingProducts, ", ")),
			Severity:    notify.SeverityWarning,
			EntityID:    po.ID,
			SentAt:      s.now(),
		})
	}

	receiptID := req.ReceiptID
	if receiptID == "" {
		receiptID = xid.New("rcpt")
	}
	received, duplicate, err := s.repo.CommitReceipt(ctx, store.ReceiptCommit{
		ReceiptID:   receiptID,
		OrderID:     po.ID,
		Adjustments: plan.Adjustments,
		Lines:       plan.Lines,
		TotalAmount: plan.TotalAmount,
		ReceivedBy:  req.ReceivedBy,
		ReceivedAt:  s.now(),
	})
	if err != nil {
		s.logger.Error("receipt commit failed",
			zap.String("purchase_order_id", po.ID),
			zap.String("receipt_id", receiptID),
			zap.Error(err))
		s.notifier.Notify(ctx, notify.Notification{
			Title:       "Gagal menerima barang",
			Description: err.Error(),
			Severity:    notify.SeverityError,
			EntityID:    po.ID,
			SentAt:      s.now(),
		})
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	if duplicate {
		return domain.PurchaseOrderReceiveResponse{PurchaseOrder: *received, Adjustments: []domain.StockAdjustment{}, Duplicate: true}, nil
	}

	s.logAudit(ctx, received.StoreID, "purchase_order_receive", "purchase_order", received.ID,
		fmt.Sprintf("receipt=%s,received_by=%s,total=%s,lines=%d", receiptID, req.ReceivedBy, plan.TotalAmount, len(plan.Lines)))
	s.notifier.Notify(ctx, notify.Notification{
		Title:       "Barang diterima",
		Description: fmt.Sprintf("%d baris diterima, total %s", len(plan.Lines), plan.TotalAmount.StringFixed(0)),
		Severity:    notify.SeveritySuccess,
		EntityID:    received.ID,
		SentAt:      s.now(),
	})

	return domain.PurchaseOrderReceiveResponse{
		PurchaseOrder:   *received,
		Adjustments:     plan.Adjustments,
		MissingProducts: plan.MissingProducts,
	}, nil
}

// orderProducts looks up every distinct product on the order. SKUs that are
// not found are returned in missing and left out of the map.
func (s *Service) orderProducts(ctx context.Context, po domain.PurchaseOrder) (map[string]*domain.Product, []string, error) {
	products := make(map[string]*domain.Product, len(po.Items))
	var missing []string
	for _, item := range po.Items {
		if _, seen := products[item.SKU]; seen || slices.Contains(missing, item.SKU) {
			continue
		}
		product, err := s.lookupProduct(ctx, item.SKU)
		if errors.Is(err, store.ErrNotFound) {
			missing = append(missing, item.SKU)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		products[item.SKU] = product
	}
	return products, missing, nil
}

func toEdits(lines []domain.ReceivingLineInput) []receiving.Edit {
	edits := make([]receiving.Edit, 0, len(lines))
	for _, line := range lines {
		edit := receiving.Edit{LineID: strings.TrimSpace(line.LineID)}
		if line.ReceivedQty != nil {
			raw := string(*line.ReceivedQty)
			edit.ReceivedQty = &raw
		}
		if line.ReceivedUnitPrice != nil {
			raw := string(*line.ReceivedUnitPrice)
			edit.ReceivedUnitPrice = &raw
		}
		edits = append(edits, edit)
	}
	return edits
}
