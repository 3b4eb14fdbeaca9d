package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseUnit is the stock unit assumed when a product does not name one.
const DefaultBaseUnit = "Pcs"

type Product struct {
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	BaseUnit         string          `json:"base_unit"`
	PurchaseUnit     string          `json:"purchase_unit,omitempty"`
	ConversionToUnit decimal.Decimal `json:"conversion_to_unit"`
	Price            decimal.Decimal `json:"price"`
	DiscountType     string          `json:"discount_type,omitempty"`
	Discount         decimal.Decimal `json:"discount"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	Active           bool            `json:"active"`
}

type ProductCreateRequest struct {
	StoreID          string          `json:"store_id"`
	SKU              string          `json:"sku" validate:"required,max=64"`
	Name             string          `json:"name" validate:"required,max=120"`
	Category         string          `json:"category" validate:"required,max=60"`
	BaseUnit         string          `json:"base_unit" validate:"max=20"`
	PurchaseUnit     string          `json:"purchase_unit" validate:"max=20"`
	ConversionToUnit decimal.Decimal `json:"conversion_to_unit"`
	Price            decimal.Decimal `json:"price"`
	DiscountType     string          `json:"discount_type" validate:"omitempty,oneof=percent fixed"`
	Discount         decimal.Decimal `json:"discount"`
	InitialStock     decimal.Decimal `json:"initial_stock"`
	InitialCost      decimal.Decimal `json:"initial_cost"`
}

type ProductUpdateRequest struct {
	Name             *string          `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Category         *string          `json:"category,omitempty" validate:"omitempty,min=1,max=60"`
	BaseUnit         *string          `json:"base_unit,omitempty" validate:"omitempty,max=20"`
	PurchaseUnit     *string          `json:"purchase_unit,omitempty" validate:"omitempty,max=20"`
	ConversionToUnit *decimal.Decimal `json:"conversion_to_unit,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	DiscountType     *string          `json:"discount_type,omitempty" validate:"omitempty,oneof=none percent fixed"`
	Discount         *decimal.Decimal `json:"discount,omitempty"`
	Active           *bool            `json:"active,omitempty"`
}

type ProductConversionResponse struct {
	SKU          string          `json:"sku"`
	Factor       decimal.Decimal `json:"factor"`
	PurchaseUnit string          `json:"purchase_unit"`
	BaseUnit     string          `json:"base_unit"`
	Converts     bool            `json:"converts"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"max=30"`
	Address string `json:"address" validate:"max=255"`
}

// PurchaseOrderItem is one planned line of a purchase order. OrderedQty is in
// purchase units; OrderedUnitPrice is per base unit. Received values are in
// purchase units and are only meaningful once the order is received.
type PurchaseOrderItem struct {
	LineID            string          `json:"line_id"`
	SKU               string          `json:"sku"`
	ProductName       string          `json:"product_name"`
	OrderedQty        decimal.Decimal `json:"ordered_qty"`
	OrderedUnitPrice  decimal.Decimal `json:"ordered_unit_price"`
	ReceivedQty       decimal.Decimal `json:"received_qty"`
	ReceivedUnitPrice decimal.Decimal `json:"received_unit_price"`
	Subtotal          decimal.Decimal `json:"subtotal"`
}

type PurchaseOrder struct {
	ID          string              `json:"id"`
	StoreID     string              `json:"store_id"`
	SupplierID  string              `json:"supplier_id"`
	Date        time.Time           `json:"date"`
	Status      string              `json:"status"`
	Items       []PurchaseOrderItem `json:"items"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Notes       string              `json:"notes,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	OrderedAt   *time.Time          `json:"ordered_at,omitempty"`
	ReceivedAt  *time.Time          `json:"received_at,omitempty"`
	ReceivedBy  string              `json:"received_by,omitempty"`
	ReceiptID   string              `json:"receipt_id,omitempty"`
}

type PurchaseOrderItemRequest struct {
	SKU              string          `json:"sku" validate:"required,max=64"`
	OrderedQty       decimal.Decimal `json:"ordered_qty"`
	OrderedUnitPrice decimal.Decimal `json:"ordered_unit_price"`
}

type PurchaseOrderCreateRequest struct {
	StoreID    string                     `json:"store_id"`
	SupplierID string                     `json:"supplier_id" validate:"required"`
	Date       string                     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes      string                     `json:"notes" validate:"max=500"`
	Items      []PurchaseOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// Amount is raw user input for a numeric field. It accepts a JSON number or a
// JSON string and keeps the text untouched so that normalization happens in
// one place.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

type ReceivingLineInput struct {
	LineID            string  `json:"line_id" validate:"required"`
	ReceivedQty       *Amount `json:"received_qty,omitempty"`
	ReceivedUnitPrice *Amount `json:"received_unit_price,omitempty"`
}

type PurchaseOrderReceiveRequest struct {
	ReceiptID  string               `json:"receipt_id" validate:"max=100"`
	ReceivedBy string               `json:"received_by" validate:"max=120"`
	Lines      []ReceivingLineInput `json:"lines" validate:"dive"`
}

type ReceivingFormLine struct {
	LineID            string          `json:"line_id"`
	SKU               string          `json:"sku"`
	ProductName       string          `json:"product_name"`
	ProductFound      bool            `json:"product_found"`
	PurchaseUnit      string          `json:"purchase_unit"`
	BaseUnit          string          `json:"base_unit"`
	Factor            decimal.Decimal `json:"factor"`
	OrderedQty        decimal.Decimal `json:"ordered_qty"`
	ReceivedQty       decimal.Decimal `json:"received_qty"`
	ReceivedUnitPrice decimal.Decimal `json:"received_unit_price"`
	LineTotal         decimal.Decimal `json:"line_total"`
}

type ReceivingForm struct {
	PurchaseOrderID string              `json:"purchase_order_id"`
	Status          string              `json:"status"`
	Lines           []ReceivingFormLine `json:"lines"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
}

// StockAdjustment is a per-line effect of a receipt expressed in base units.
type StockAdjustment struct {
	SKU          string          `json:"sku"`
	BaseQty      decimal.Decimal `json:"base_qty"`
	BaseUnitCost decimal.Decimal `json:"base_unit_cost"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type PurchaseOrderReceiveResponse struct {
	PurchaseOrder   PurchaseOrder     `json:"purchase_order"`
	Adjustments     []StockAdjustment `json:"adjustments"`
	MissingProducts []string          `json:"missing_products,omitempty"`
	Duplicate       bool              `json:"duplicate"`
}

type StockLevel struct {
	StoreID   string          `json:"store_id"`
	SKU       string          `json:"sku"`
	Qty       decimal.Decimal `json:"qty"`
	Cost      decimal.Decimal `json:"cost"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type StockLevelResponse struct {
	StoreID string       `json:"store_id"`
	Items   []StockLevel `json:"items"`
}

type InventoryLot struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"store_id"`
	SKU        string          `json:"sku"`
	LotCode    string          `json:"lot_code"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

type InventoryLotListResponse struct {
	Lots []InventoryLot `json:"lots"`
}

type PromoRule struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DiscountType string          `json:"discount_type"`
	Discount     decimal.Decimal `json:"discount"`
	SKUs         []string        `json:"skus"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
}

type PromoCreateRequest struct {
	Name         string          `json:"name" validate:"required,max=120"`
	DiscountType string          `json:"discount_type" validate:"required,oneof=percent fixed"`
	Discount     decimal.Decimal `json:"discount"`
	SKUs         []string        `json:"skus" validate:"dive,required,max=64"`
}

type PromoToggleRequest struct {
	Active bool `json:"active"`
}

type BundlePreview struct {
	PromoID     string          `json:"promo_id,omitempty"`
	SKUs        []string        `json:"skus"`
	MissingSKUs []string        `json:"missing_skus,omitempty"`
	BaseTotal   decimal.Decimal `json:"base_total"`
	FinalTotal  decimal.Decimal `json:"final_total"`
	Savings     decimal.Decimal `json:"savings"`
}

type PricingPreviewRequest struct {
	Price        decimal.Decimal `json:"price"`
	DiscountType string          `json:"discount_type" validate:"omitempty,oneof=percent fixed"`
	Discount     decimal.Decimal `json:"discount"`
}

type PricingPreviewResponse struct {
	Price          decimal.Decimal `json:"price"`
	DiscountType   string          `json:"discount_type,omitempty"`
	Discount       decimal.Decimal `json:"discount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalPrice     decimal.Decimal `json:"final_price"`
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	POStatusDraft     = "draft"
	POStatusOrdered   = "ordered"
	POStatusReceived  = "received"
	POStatusCancelled = "cancelled"
)

const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

const LotSourcePurchaseOrder = "purchase_order"
