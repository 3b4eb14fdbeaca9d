package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kulakan/internal/domain"
	"kulakan/internal/store"
	"kulakan/internal/xid"
)

const (
	pgUniqueViolation       = "23505"
	pgForeignKeyViolation   = "23503"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgCheckViolation        = "23514"
	pgNumericOutOfRange     = "22003"
	productColumns          = "sku, name, category, base_unit, purchase_unit, conversion_to_unit, price, discount_type, discount, active"
	purchaseOrderColumns    = "id, store_id, supplier_id, order_date, status, total_amount, notes, created_at, ordered_at, received_at, received_by, receipt_id"
	purchaseOrderItemColumn = "line_id, sku, product_name, ordered_qty, ordered_unit_price, received_qty, received_unit_price, subtotal"
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an already opened database handle.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.Named("postgres-store")}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.SKU, &p.Name, &p.Category, &p.BaseUnit, &p.PurchaseUnit, &p.ConversionToUnit, &p.Price, &p.DiscountType, &p.Discount, &p.Active)
	return p, err
}

func validProduct(p domain.Product) bool {
	if p.SKU == "" || p.Name == "" || p.Category == "" {
		return false
	}
	return !p.Price.IsNegative() && !p.Discount.IsNegative() && !p.ConversionToUnit.IsNegative()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidTransaction
	}
	if product.BaseUnit == "" {
		product.BaseUnit = domain.DefaultBaseUnit
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	`, product.SKU, product.Name, product.Category, product.BaseUnit, product.PurchaseUnit, product.ConversionToUnit, product.Price, product.DiscountType, product.Discount, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE sku = $1
	`, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, base_unit = $4, purchase_unit = $5, conversion_to_unit = $6,
			price = $7, discount_type = $8, discount = $9, active = $10, updated_at = now()
		WHERE sku = $1
	`, product.SKU, product.Name, product.Category, product.BaseUnit, product.PurchaseUnit, product.ConversionToUnit, product.Price, product.DiscountType, product.Discount, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetStockLevels(ctx context.Context, storeID string, skus []string) ([]domain.StockLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, sku, qty, cost, updated_at
		FROM inventory_stocks
		WHERE store_id = $1 AND (cardinality($2::text[]) = 0 OR sku = ANY($2))
		ORDER BY sku
	`, storeID, emptyIfNil(skus))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]domain.StockLevel, len(skus))
	levels := make([]domain.StockLevel, 0, len(skus))
	for rows.Next() {
		var level domain.StockLevel
		if err := rows.Scan(&level.StoreID, &level.SKU, &level.Qty, &level.Cost, &level.UpdatedAt); err != nil {
			return nil, err
		}
		level.UpdatedAt = level.UpdatedAt.UTC()
		found[level.SKU] = level
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(skus) == 0 {
		return levels, nil
	}

	ordered := make([]domain.StockLevel, 0, len(skus))
	for _, sku := range skus {
		level, ok := found[sku]
		if !ok {
			level = domain.StockLevel{StoreID: storeID, SKU: sku, Qty: decimal.Zero, Cost: decimal.Zero}
		}
		ordered = append(ordered, level)
	}
	return ordered, nil
}

func (s *Store) SetStock(ctx context.Context, storeID string, sku string, qty decimal.Decimal, cost decimal.Decimal) error {
	if sku == "" || qty.IsNegative() || cost.IsNegative() {
		return store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_stocks (store_id, sku, qty, cost, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (store_id, sku)
		DO UPDATE SET qty = EXCLUDED.qty, cost = EXCLUDED.cost, updated_at = now()
	`, storeID, sku, qty, cost)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: sku %s unavailable", store.ErrNotFound, sku)
		}
		return err
	}
	return nil
}

func (s *Store) ListInventoryLots(ctx context.Context, storeID string, sku string, limit int) ([]domain.InventoryLot, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, sku, lot_code, qty, unit_cost, source_type, COALESCE(source_id,''), received_at
		FROM inventory_lots
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR sku = $2)
		ORDER BY received_at DESC, lot_code ASC
		LIMIT $3
	`, storeID, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]domain.InventoryLot, 0, limit)
	for rows.Next() {
		var lot domain.InventoryLot
		if err := rows.Scan(&lot.ID, &lot.StoreID, &lot.SKU, &lot.LotCode, &lot.Qty, &lot.UnitCost, &lot.SourceType, &lot.SourceID, &lot.ReceivedAt); err != nil {
			return nil, err
		}
		lot.ReceivedAt = lot.ReceivedAt.UTC()
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	supplier.Address = strings.TrimSpace(supplier.Address)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(address,''), created_at
		FROM suppliers
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 64)
	for rows.Next() {
		var item domain.Supplier
		if err := rows.Scan(&item.ID, &item.Name, &item.Phone, &item.Address, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		suppliers = append(suppliers, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, supplierID string) (*domain.Supplier, error) {
	var item domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(address,''), created_at
		FROM suppliers
		WHERE id = $1
	`, supplierID).Scan(&item.ID, &item.Name, &item.Phone, &item.Address, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	if po.Date.IsZero() {
		po.Date = po.CreatedAt
	}
	if po.Status == "" {
		po.Status = domain.POStatusDraft
	}
	if po.StoreID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, store_id, supplier_id, order_date, status, total_amount, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, po.ID, po.StoreID, po.SupplierID, po.Date, po.Status, po.TotalAmount, po.Notes, po.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for idx, item := range po.Items {
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.SKU == "" || !item.OrderedQty.IsPositive() || item.OrderedUnitPrice.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		if item.LineID == "" {
			item.LineID = xid.New("pol")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (
				line_id, purchase_order_id, position, sku, product_name,
				ordered_qty, ordered_unit_price, received_qty, received_unit_price, subtotal
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, item.LineID, po.ID, idx+1, item.SKU, item.ProductName, item.OrderedQty, item.OrderedUnitPrice, item.ReceivedQty, item.ReceivedUnitPrice, item.Subtotal)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrInvalidTransaction
			}
			return nil, err
		}
		items = append(items, item)
	}
	po.Items = items

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := po
	return &saved, nil
}

func scanPurchaseOrder(row rowScanner) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var orderedAt, receivedAt sql.NullTime
	var receivedBy, receiptID sql.NullString
	err := row.Scan(
		&po.ID,
		&po.StoreID,
		&po.SupplierID,
		&po.Date,
		&po.Status,
		&po.TotalAmount,
		&po.Notes,
		&po.CreatedAt,
		&orderedAt,
		&receivedAt,
		&receivedBy,
		&receiptID,
	)
	if err != nil {
		return po, err
	}
	po.Date = po.Date.UTC()
	po.CreatedAt = po.CreatedAt.UTC()
	if orderedAt.Valid {
		at := orderedAt.Time.UTC()
		po.OrderedAt = &at
	}
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		po.ReceivedAt = &at
	}
	po.ReceivedBy = receivedBy.String
	po.ReceiptID = receiptID.String
	return po, nil
}

func scanPurchaseOrderItem(row rowScanner, dest ...any) (domain.PurchaseOrderItem, error) {
	var item domain.PurchaseOrderItem
	targets := append(dest, &item.LineID, &item.SKU, &item.ProductName, &item.OrderedQty, &item.OrderedUnitPrice, &item.ReceivedQty, &item.ReceivedUnitPrice, &item.Subtotal)
	err := row.Scan(targets...)
	return item, err
}

func (s *Store) loadPurchaseOrder(ctx context.Context, q querier, purchaseOrderID string, forUpdate bool) (*domain.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	po, err := scanPurchaseOrder(q.QueryRowContext(ctx, query, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+purchaseOrderItemColumn+`
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY position ASC
	`, po.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		item, err := scanPurchaseOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	po.Items = items
	return &po, nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	return s.loadPurchaseOrder(ctx, s.db, purchaseOrderID, false)
}

func (s *Store) ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 200
	}
	status = strings.ToLower(strings.TrimSpace(status))
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, storeID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PurchaseOrder, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT purchase_order_id, `+purchaseOrderItemColumn+`
		FROM purchase_order_items
		WHERE purchase_order_id = ANY($1)
		ORDER BY purchase_order_id, position ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.PurchaseOrderItem, len(ids))
	for itemRows.Next() {
		var poID string
		item, err := scanPurchaseOrderItem(itemRows, &poID)
		if err != nil {
			return nil, err
		}
		itemMap[poID] = append(itemMap[poID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		result[i].Items = itemMap[result[i].ID]
	}
	return result, nil
}

func (s *Store) TransitionPurchaseOrder(ctx context.Context, purchaseOrderID string, from []string, to string, at time.Time) (*domain.PurchaseOrder, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var orderedAt any
	if to == domain.POStatusOrdered {
		orderedAt = at
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		UPDATE purchase_orders
		SET status = $3, ordered_at = COALESCE($4, ordered_at)
		WHERE id = $1 AND status = ANY($2)
		RETURNING id
	`, purchaseOrderID, from, to, orderedAt).Scan(&id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		var status string
		lookupErr := s.db.QueryRowContext(ctx, `SELECT status FROM purchase_orders WHERE id = $1`, purchaseOrderID).Scan(&status)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrConflict, status)
	}

	return s.GetPurchaseOrderByID(ctx, id)
}

type stockRow struct {
	qty  decimal.Decimal
	cost decimal.Decimal
}

// CommitReceipt applies stock, cost, lots and the order update in one
// serializable transaction. Any failure rolls the whole receipt back.
func (s *Store) CommitReceipt(ctx context.Context, commit store.ReceiptCommit) (*domain.PurchaseOrder, bool, error) {
	receivedAt := commit.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy := strings.TrimSpace(commit.ReceivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}
	if commit.ReceiptID == "" {
		commit.ReceiptID = xid.New("rcpt")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, mapTxError(err)
	}
	defer func() { _ = tx.Rollback() }()

	po, err := s.loadPurchaseOrder(ctx, tx, commit.OrderID, true)
	if err != nil {
		return nil, false, mapTxError(err)
	}
	if po.Status == domain.POStatusReceived && po.ReceiptID == commit.ReceiptID {
		return po, true, nil
	}
	if po.Status != domain.POStatusOrdered {
		return nil, false, fmt.Errorf("%w: purchase order is %s", store.ErrConflict, po.Status)
	}
	if err := matchLines(po.Items, commit.Lines); err != nil {
		return nil, false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_order_receipts (id, purchase_order_id, received_by, total_amount, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, commit.ReceiptID, po.ID, receivedBy, commit.TotalAmount, receivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("%w: receipt %s already used", store.ErrConflict, commit.ReceiptID)
		}
		return nil, false, mapWriteError(err, "")
	}

	stock, err := lockStock(ctx, tx, po.StoreID, adjustmentSKUs(commit.Adjustments))
	if err != nil {
		return nil, false, mapTxError(err)
	}

	lotSeq := 0
	for _, adj := range commit.Adjustments {
		if adj.BaseQty.IsNegative() || adj.BaseUnitCost.IsNegative() {
			return nil, false, store.ErrInvalidTransaction
		}
		if !adj.BaseQty.IsPositive() {
			continue
		}
		current := stock[adj.SKU]
		next := stockRow{
			qty:  current.qty.Add(adj.BaseQty),
			cost: store.WeightedCost(current.cost, current.qty, adj.BaseUnitCost, adj.BaseQty),
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_stocks (store_id, sku, qty, cost, updated_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (store_id, sku)
			DO UPDATE SET qty = EXCLUDED.qty, cost = EXCLUDED.cost, updated_at = EXCLUDED.updated_at
		`, po.StoreID, adj.SKU, next.qty, next.cost, receivedAt)
		if err != nil {
			return nil, false, mapWriteError(err, adj.SKU)
		}

		lotSeq++
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_lots (id, store_id, sku, lot_code, qty, unit_cost, source_type, source_id, received_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, xid.New("lot"), po.StoreID, adj.SKU, fmt.Sprintf("PO-%s-%02d", po.ID, lotSeq), adj.BaseQty, adj.BaseUnitCost, domain.LotSourcePurchaseOrder, po.ID, receivedAt)
		if err != nil {
			return nil, false, mapWriteError(err, adj.SKU)
		}
		stock[adj.SKU] = next
	}

	for _, line := range commit.Lines {
		_, err = tx.ExecContext(ctx, `
			UPDATE purchase_order_items
			SET received_qty = $3, received_unit_price = $4, subtotal = $5
			WHERE purchase_order_id = $1 AND line_id = $2
		`, po.ID, line.LineID, line.ReceivedQty, line.ReceivedUnitPrice, line.Subtotal)
		if err != nil {
			return nil, false, mapWriteError(err, line.SKU)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = 'received', total_amount = $2, received_at = $3, received_by = $4, receipt_id = $5
		WHERE id = $1 AND status = 'ordered'
	`, po.ID, commit.TotalAmount, receivedAt, receivedBy, commit.ReceiptID)
	if err != nil {
		return nil, false, mapWriteError(err, "")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, mapTxError(err)
	}
	if affected == 0 {
		return nil, false, store.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, false, mapWriteError(err, "")
	}

	s.logger.Debug("receipt committed",
		zap.String("purchase_order_id", po.ID),
		zap.String("receipt_id", commit.ReceiptID),
		zap.Int("lots", lotSeq))

	po.Items = append([]domain.PurchaseOrderItem(nil), commit.Lines...)
	po.TotalAmount = commit.TotalAmount
	po.Status = domain.POStatusReceived
	po.ReceivedAt = &receivedAt
	po.ReceivedBy = receivedBy
	po.ReceiptID = commit.ReceiptID
	return po, false, nil
}

func lockStock(ctx context.Context, tx *sql.Tx, storeID string, skus []string) (map[string]stockRow, error) {
	stock := make(map[string]stockRow, len(skus))
	if len(skus) == 0 {
		return stock, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT sku, qty, cost
		FROM inventory_stocks
		WHERE store_id = $1 AND sku = ANY($2)
		FOR UPDATE
	`, storeID, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sku string
		var row stockRow
		if err := rows.Scan(&sku, &row.qty, &row.cost); err != nil {
			return nil, err
		}
		stock[sku] = row
	}
	return stock, rows.Err()
}

func adjustmentSKUs(adjustments []domain.StockAdjustment) []string {
	seen := make(map[string]struct{}, len(adjustments))
	skus := make([]string, 0, len(adjustments))
	for _, adj := range adjustments {
		if _, ok := seen[adj.SKU]; ok {
			continue
		}
		seen[adj.SKU] = struct{}{}
		skus = append(skus, adj.SKU)
	}
	return skus
}

func matchLines(current []domain.PurchaseOrderItem, next []domain.PurchaseOrderItem) error {
	if len(current) != len(next) {
		return fmt.Errorf("%w: receipt has %d lines, order has %d", store.ErrInvalidTransaction, len(next), len(current))
	}
	for i := range current {
		if current[i].LineID != next[i].LineID || current[i].SKU != next[i].SKU {
			return fmt.Errorf("%w: receipt line %s does not match order", store.ErrInvalidTransaction, next[i].LineID)
		}
	}
	return nil
}

func (s *Store) CreatePromo(ctx context.Context, promo domain.PromoRule) (*domain.PromoRule, error) {
	promo.Name = strings.TrimSpace(promo.Name)
	if promo.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if promo.DiscountType != domain.DiscountPercent && promo.DiscountType != domain.DiscountFixed {
		return nil, store.ErrInvalidTransaction
	}
	if !promo.Discount.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	if promo.SKUs == nil {
		promo.SKUs = []string{}
	}
	promo.Active = true

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO promo_rules (id, name, discount_type, discount, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, promo.ID, promo.Name, promo.DiscountType, promo.Discount, promo.Active, promo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	for idx, sku := range promo.SKUs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO promo_rule_skus (promo_id, position, sku)
			VALUES ($1,$2,$3)
		`, promo.ID, idx+1, sku); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := promo
	return &saved, nil
}

func (s *Store) ListPromos(ctx context.Context) ([]domain.PromoRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, discount_type, discount, active, created_at
		FROM promo_rules
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.PromoRule, 0, 16)
	ids := make([]string, 0, 16)
	for rows.Next() {
		var promo domain.PromoRule
		if err := rows.Scan(&promo.ID, &promo.Name, &promo.DiscountType, &promo.Discount, &promo.Active, &promo.CreatedAt); err != nil {
			return nil, err
		}
		promo.CreatedAt = promo.CreatedAt.UTC()
		promo.SKUs = []string{}
		promos = append(promos, promo)
		ids = append(ids, promo.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return promos, nil
	}

	skus, err := s.promoSKUs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range promos {
		if list, ok := skus[promos[i].ID]; ok {
			promos[i].SKUs = list
		}
	}
	return promos, nil
}

func (s *Store) GetPromoByID(ctx context.Context, promoID string) (*domain.PromoRule, error) {
	var promo domain.PromoRule
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, discount_type, discount, active, created_at
		FROM promo_rules
		WHERE id = $1
	`, promoID).Scan(&promo.ID, &promo.Name, &promo.DiscountType, &promo.Discount, &promo.Active, &promo.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	promo.CreatedAt = promo.CreatedAt.UTC()

	skus, err := s.promoSKUs(ctx, []string{promo.ID})
	if err != nil {
		return nil, err
	}
	promo.SKUs = skus[promo.ID]
	if promo.SKUs == nil {
		promo.SKUs = []string{}
	}
	return &promo, nil
}

func (s *Store) UpdatePromoActive(ctx context.Context, promoID string, active bool) (*domain.PromoRule, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE promo_rules
		SET active = $2, updated_at = now()
		WHERE id = $1
	`, promoID, active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetPromoByID(ctx, promoID)
}

func (s *Store) promoSKUs(ctx context.Context, promoIDs []string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT promo_id, sku
		FROM promo_rule_skus
		WHERE promo_id = ANY($1)
		ORDER BY promo_id, position ASC
	`, promoIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]string, len(promoIDs))
	for rows.Next() {
		var promoID, sku string
		if err := rows.Scan(&promoID, &sku); err != nil {
			return nil, err
		}
		result[promoID] = append(result[promoID], sku)
	}
	return result, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyViolation
}

// mapWriteError turns constraint failures inside a receipt into store errors
// the service understands.
func mapWriteError(err error, sku string) error {
	switch pgCode(err) {
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: sku %s unavailable", store.ErrInvalidTransaction, sku)
	case pgCheckViolation, pgNumericOutOfRange:
		return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	default:
		return mapTxError(err)
	}
}

// mapTxError turns transaction aborts into ErrConflict so callers can retry.
func mapTxError(err error) error {
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: concurrent receipt, retry", store.ErrConflict)
	default:
		return err
	}
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
