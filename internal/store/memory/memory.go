package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kulakan/internal/domain"
	"kulakan/internal/store"
	"kulakan/internal/xid"
)

const defaultStoreID = "main-store"

type stockEntry struct {
	qty       decimal.Decimal
	cost      decimal.Decimal
	updatedAt time.Time
}

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	inventory          map[string]map[string]stockEntry
	inventoryLots      map[string]map[string][]domain.InventoryLot
	auditLogs          []domain.AuditLog
	promosByID         map[string]domain.PromoRule
	suppliersByID      map[string]domain.Supplier
	purchaseOrdersByID map[string]domain.PurchaseOrder
	receiptOrders      map[string]string
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func rp(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// NewSeeded returns a store with a small Indonesian grocery catalog, one
// supplier and dev users. logger may be nil.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("memory-store")

	products := []domain.Product{
		{SKU: "SKU-BERAS-01", Name: "Beras Premium", Category: "grocery", BaseUnit: "Kg", PurchaseUnit: "Karung", ConversionToUnit: rp(50), Price: rp(15500), Active: true},
		{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", BaseUnit: "Pcs", PurchaseUnit: "Dus", ConversionToUnit: rp(40), Price: rp(3500), Active: true},
		{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", BaseUnit: "Pack", Price: rp(26500), Active: true},
		{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", BaseUnit: "Pcs", PurchaseUnit: "Karton", ConversionToUnit: rp(12), Price: rp(18900), Active: true},
		{SKU: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery", BaseUnit: "Pcs", Price: rp(17800), Active: true},
		{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", BaseUnit: "Pcs", PurchaseUnit: "Renceng", ConversionToUnit: rp(10), Price: rp(2600), DiscountType: domain.DiscountPercent, Discount: rp(10), Active: true},
		{SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", BaseUnit: "Kg", PurchaseUnit: "Bal", ConversionToUnit: rp(20), Price: rp(17400), Active: true},
		{SKU: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage", BaseUnit: "Box", Price: rp(9800), Active: true},
		{SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", BaseUnit: "Pcs", PurchaseUnit: "Dus", ConversionToUnit: rp(24), Price: rp(3900), Active: true},
		{SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", BaseUnit: "Pcs", Price: rp(7400), DiscountType: domain.DiscountFixed, Discount: rp(400), Active: true},
	}

	now := time.Now().UTC()
	productMap := make(map[string]domain.Product, len(products))
	inventory := map[string]map[string]stockEntry{defaultStoreID: {}}
	for _, p := range products {
		productMap[p.SKU] = p
		inventory[defaultStoreID][p.SKU] = stockEntry{
			qty:       rp(120),
			cost:      p.Price.Mul(decimal.RequireFromString("0.8")).Round(0),
			updatedAt: now,
		}
	}

	supplier := domain.Supplier{ID: "sup-seed-01", Name: "CV Sumber Rejeki", Phone: "0812-0000-1111", Address: "Pasar Induk Blok A", CreatedAt: now}

	return &Store{
		products:           productMap,
		inventory:          inventory,
		inventoryLots:      map[string]map[string][]domain.InventoryLot{defaultStoreID: {}},
		auditLogs:          make([]domain.AuditLog, 0, 128),
		promosByID:         make(map[string]domain.PromoRule),
		suppliersByID:      map[string]domain.Supplier{supplier.ID: supplier},
		purchaseOrdersByID: make(map[string]domain.PurchaseOrder),
		receiptOrders:      make(map[string]string),
		usersByUsername:    seedUsers(logger),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func validProduct(p domain.Product) bool {
	if p.SKU == "" || p.Name == "" || p.Category == "" {
		return false
	}
	return !p.Price.IsNegative() && !p.Discount.IsNegative() && !p.ConversionToUnit.IsNegative()
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validProduct(product) {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if product.BaseUnit == "" {
		product.BaseUnit = domain.DefaultBaseUnit
	}

	product.Active = true
	s.products[product.SKU] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validProduct(product) {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.products[product.SKU]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.SKU] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if p, ok := s.products[sku]; ok && p.Active {
			result[sku] = p
		}
	}
	return result, nil
}

func (s *Store) GetStockLevels(_ context.Context, storeID string, skus []string) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	storeStock := s.inventory[storeID]
	if len(skus) == 0 {
		for sku := range storeStock {
			skus = append(skus, sku)
		}
		slices.Sort(skus)
	}

	levels := make([]domain.StockLevel, 0, len(skus))
	for _, sku := range skus {
		entry := storeStock[sku]
		levels = append(levels, domain.StockLevel{
			StoreID:   storeID,
			SKU:       sku,
			Qty:       entry.qty,
			Cost:      entry.cost,
			UpdatedAt: entry.updatedAt,
		})
	}
	return levels, nil
}

func (s *Store) SetStock(_ context.Context, storeID string, sku string, qty decimal.Decimal, cost decimal.Decimal) error {
	if sku == "" || qty.IsNegative() || cost.IsNegative() {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[sku]; !exists {
		return fmt.Errorf("%w: sku %s unavailable", store.ErrNotFound, sku)
	}
	storeStock, ok := s.inventory[storeID]
	if !ok {
		storeStock = make(map[string]stockEntry)
		s.inventory[storeID] = storeStock
	}
	storeStock[sku] = stockEntry{qty: qty, cost: cost, updatedAt: time.Now().UTC()}
	return nil
}

func (s *Store) ListInventoryLots(_ context.Context, storeID string, sku string, limit int) ([]domain.InventoryLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.InventoryLot, 0, limit)

	if storeID != "" && sku != "" {
		result = append(result, s.inventoryLots[storeID][sku]...)
	} else if storeID != "" {
		for _, lots := range s.inventoryLots[storeID] {
			result = append(result, lots...)
		}
	} else {
		for _, bySKU := range s.inventoryLots {
			for _, lots := range bySKU {
				result = append(result, lots...)
			}
		}
	}

	slices.SortFunc(result, func(a, b domain.InventoryLot) int {
		if a.ReceivedAt.Equal(b.ReceivedAt) {
			return cmpString(a.LotCode, b.LotCode)
		}
		if a.ReceivedAt.After(b.ReceivedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreatePromo(_ context.Context, promo domain.PromoRule) (*domain.PromoRule, error) {
	if strings.TrimSpace(promo.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if promo.DiscountType != domain.DiscountPercent && promo.DiscountType != domain.DiscountFixed {
		return nil, store.ErrInvalidTransaction
	}
	if !promo.Discount.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	promo.SKUs = slices.Clone(promo.SKUs)
	promo.Active = true
	s.promosByID[promo.ID] = promo
	return clonePromo(promo), nil
}

func (s *Store) ListPromos(_ context.Context) ([]domain.PromoRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.PromoRule, 0, len(s.promosByID))
	for _, promo := range s.promosByID {
		promos = append(promos, *clonePromo(promo))
	}
	slices.SortFunc(promos, func(a, b domain.PromoRule) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return promos, nil
}

func (s *Store) GetPromoByID(_ context.Context, promoID string) (*domain.PromoRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, exists := s.promosByID[promoID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return clonePromo(promo), nil
}

func (s *Store) UpdatePromoActive(_ context.Context, promoID string, active bool) (*domain.PromoRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, exists := s.promosByID[promoID]
	if !exists {
		return nil, store.ErrNotFound
	}
	promo.Active = active
	s.promosByID[promoID] = promo
	return clonePromo(promo), nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.suppliersByID[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.Name, b.Name)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return suppliers, nil
}

func (s *Store) GetSupplierByID(_ context.Context, supplierID string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[supplierID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.StoreID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.suppliersByID[po.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
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

	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.SKU == "" || !item.OrderedQty.IsPositive() || item.OrderedUnitPrice.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		if item.LineID == "" {
			item.LineID = xid.New("pol")
		}
		items = append(items, item)
	}
	po.Items = items

	s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	saved := clonePurchaseOrder(s.purchaseOrdersByID[po.ID])
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyPO := clonePurchaseOrder(po)
	return &copyPO, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status = strings.ToLower(strings.TrimSpace(status))
	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if storeID != "" && po.StoreID != storeID {
			continue
		}
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) TransitionPurchaseOrder(_ context.Context, purchaseOrderID string, from []string, to string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(from, po.Status) {
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrConflict, po.Status)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	po.Status = to
	if to == domain.POStatusOrdered {
		po.OrderedAt = &at
	}
	s.purchaseOrdersByID[purchaseOrderID] = po
	updated := clonePurchaseOrder(po)
	return &updated, nil
}

// CommitReceipt validates the whole receipt before touching any state, so a
// rejected commit leaves stock and the order exactly as they were.
func (s *Store) CommitReceipt(_ context.Context, commit store.ReceiptCommit) (*domain.PurchaseOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[commit.OrderID]
	if !exists {
		return nil, false, store.ErrNotFound
	}
	if commit.ReceiptID != "" && po.Status == domain.POStatusReceived && po.ReceiptID == commit.ReceiptID {
		stored := clonePurchaseOrder(po)
		return &stored, true, nil
	}
	if po.Status != domain.POStatusOrdered {
		return nil, false, fmt.Errorf("%w: purchase order is %s", store.ErrConflict, po.Status)
	}
	if commit.ReceiptID == "" {
		commit.ReceiptID = xid.New("rcpt")
	}
	if owner, used := s.receiptOrders[commit.ReceiptID]; used && owner != po.ID {
		return nil, false, fmt.Errorf("%w: receipt %s already used", store.ErrConflict, commit.ReceiptID)
	}
	if err := matchLines(po.Items, commit.Lines); err != nil {
		return nil, false, err
	}
	for _, adj := range commit.Adjustments {
		if adj.BaseQty.IsNegative() || adj.BaseUnitCost.IsNegative() {
			return nil, false, store.ErrInvalidTransaction
		}
		if _, exists := s.products[adj.SKU]; !exists {
			return nil, false, fmt.Errorf("%w: sku %s unavailable", store.ErrInvalidTransaction, adj.SKU)
		}
	}

	receivedAt := commit.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	storeStock, ok := s.inventory[po.StoreID]
	if !ok {
		storeStock = make(map[string]stockEntry)
		s.inventory[po.StoreID] = storeStock
	}
	if _, ok := s.inventoryLots[po.StoreID]; !ok {
		s.inventoryLots[po.StoreID] = map[string][]domain.InventoryLot{}
	}

	lotSeq := 0
	for _, adj := range commit.Adjustments {
		if !adj.BaseQty.IsPositive() {
			continue
		}
		current := storeStock[adj.SKU]
		storeStock[adj.SKU] = stockEntry{
			qty:       current.qty.Add(adj.BaseQty),
			cost:      store.WeightedCost(current.cost, current.qty, adj.BaseUnitCost, adj.BaseQty),
			updatedAt: receivedAt,
		}

		lotSeq++
		lot := domain.InventoryLot{
			ID:         xid.New("lot"),
			StoreID:    po.StoreID,
			SKU:        adj.SKU,
			LotCode:    fmt.Sprintf("PO-%s-%02d", po.ID, lotSeq),
			Qty:        adj.BaseQty,
			UnitCost:   adj.BaseUnitCost,
			SourceType: domain.LotSourcePurchaseOrder,
			SourceID:   po.ID,
			ReceivedAt: receivedAt,
		}
		s.inventoryLots[po.StoreID][adj.SKU] = append(s.inventoryLots[po.StoreID][adj.SKU], lot)
	}

	po.Items = slices.Clone(commit.Lines)
	po.TotalAmount = commit.TotalAmount
	po.Status = domain.POStatusReceived
	po.ReceivedBy = strings.TrimSpace(commit.ReceivedBy)
	if po.ReceivedBy == "" {
		po.ReceivedBy = "system"
	}
	po.ReceivedAt = &receivedAt
	po.ReceiptID = commit.ReceiptID
	s.purchaseOrdersByID[po.ID] = po
	s.receiptOrders[commit.ReceiptID] = po.ID

	updated := clonePurchaseOrder(po)
	return &updated, false, nil
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

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	items := make([]domain.PurchaseOrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func clonePromo(src domain.PromoRule) *domain.PromoRule {
	dup := src
	dup.SKUs = slices.Clone(src.SKUs)
	if dup.SKUs == nil {
		dup.SKUs = []string{}
	}
	return &dup
}
