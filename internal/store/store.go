package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kulakan/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
)

// ReceiptCommit is everything a receipt changes. Repositories apply it as one
// unit: stock, cost basis, lots and the order document all change or none do.
// ReceiptID makes the commit idempotent.
type ReceiptCommit struct {
	ReceiptID   string
	OrderID     string
	Adjustments []domain.StockAdjustment
	Lines       []domain.PurchaseOrderItem
	TotalAmount decimal.Decimal
	ReceivedBy  string
	ReceivedAt  time.Time
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)

	GetStockLevels(ctx context.Context, storeID string, skus []string) ([]domain.StockLevel, error)
	SetStock(ctx context.Context, storeID string, sku string, qty decimal.Decimal, cost decimal.Decimal) error
	ListInventoryLots(ctx context.Context, storeID string, sku string, limit int) ([]domain.InventoryLot, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplierByID(ctx context.Context, supplierID string) (*domain.Supplier, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error)
	// TransitionPurchaseOrder moves an order to status "to" if its current
	// status is one of from, otherwise it returns ErrConflict.
	TransitionPurchaseOrder(ctx context.Context, purchaseOrderID string, from []string, to string, at time.Time) (*domain.PurchaseOrder, error)
	// CommitReceipt applies a receipt to an ordered purchase order. A repeat
	// commit carrying the receipt id already recorded on the order returns the
	// stored order and duplicate=true.
	CommitReceipt(ctx context.Context, commit ReceiptCommit) (po *domain.PurchaseOrder, duplicate bool, err error)

	CreatePromo(ctx context.Context, promo domain.PromoRule) (*domain.PromoRule, error)
	ListPromos(ctx context.Context) ([]domain.PromoRule, error)
	GetPromoByID(ctx context.Context, promoID string) (*domain.PromoRule, error)
	UpdatePromoActive(ctx context.Context, promoID string, active bool) (*domain.PromoRule, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
