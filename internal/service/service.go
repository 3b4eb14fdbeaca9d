package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kulakan/internal/cache"
	"kulakan/internal/domain"
	"kulakan/internal/notify"
	"kulakan/internal/pricing"
	"kulakan/internal/receiving"
	"kulakan/internal/store"
	"kulakan/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

var hundred = decimal.NewFromInt(100)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options carries the optional collaborators of a Service. Zero values fall
// back to no-op implementations.
type Options struct {
	Cache    cache.ProductCache
	Notifier notify.Notifier
	Logger   *zap.Logger
	// RequireProduct rejects a receipt when a line's product cannot be found
	// instead of receiving it at factor 1.
	RequireProduct bool
}

type Service struct {
	repo           store.Repository
	cache          cache.ProductCache
	notifier       notify.Notifier
	logger         *zap.Logger
	validate       *validator.Validate
	defaultStoreID string
	requireProduct bool
	now            func() time.Time
}

func New(repo store.Repository, defaultStoreID string, opts Options) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopProductCache{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		repo:           repo,
		cache:          opts.Cache,
		notifier:       opts.Notifier,
		logger:         opts.Logger.Named("service"),
		validate:       newValidator(),
		defaultStoreID: defaultStoreID,
		requireProduct: opts.RequireProduct,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates a request DTO and reports failing fields by their JSON name.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: invalid %s", store.ErrInvalidTransaction, strings.Join(fields, ", "))
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return actor, nil
}

func requireStaff(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleStaff) {
		return domain.Actor{}, fmt.Errorf("%w: staff role required", ErrForbidden)
	}
	return actor, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i] = pricing.WithFinalPrice(products[i])
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, sku string) (domain.Product, error) {
	product, err := s.lookupProduct(ctx, normalizeSKU(sku))
	if err != nil {
		return domain.Product{}, err
	}
	return pricing.WithFinalPrice(*product), nil
}

// ProductConversion reports how the product is converted on receipt.
func (s *Service) ProductConversion(ctx context.Context, sku string) (domain.ProductConversionResponse, error) {
	sku = normalizeSKU(sku)
	product, err := s.lookupProduct(ctx, sku)
	if err != nil {
		return domain.ProductConversionResponse{}, err
	}
	conv := receiving.Resolve(product)
	return domain.ProductConversionResponse{
		SKU:          sku,
		Factor:       conv.Factor,
		PurchaseUnit: conv.PurchaseUnit,
		BaseUnit:     conv.BaseUnit,
		Converts:     conv.Converts(),
	}, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.SKU = normalizeSKU(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.BaseUnit = strings.TrimSpace(req.BaseUnit)
	req.PurchaseUnit = strings.TrimSpace(req.PurchaseUnit)
	req.DiscountType = strings.ToLower(strings.TrimSpace(req.DiscountType))
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if !req.Price.IsPositive() || req.ConversionToUnit.IsNegative() || req.InitialStock.IsNegative() || req.InitialCost.IsNegative() {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if err := checkDiscount(req.DiscountType, req.Discount); err != nil {
		return domain.Product{}, err
	}
	if req.BaseUnit == "" {
		req.BaseUnit = domain.DefaultBaseUnit
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:              req.SKU,
		Name:             req.Name,
		Category:         req.Category,
		BaseUnit:         req.BaseUnit,
		PurchaseUnit:     req.PurchaseUnit,
		ConversionToUnit: req.ConversionToUnit,
		Price:            req.Price,
		DiscountType:     req.DiscountType,
		Discount:         req.Discount,
		Active:           true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock.IsPositive() {
		if err := s.repo.SetStock(ctx, req.StoreID, created.SKU, req.InitialStock, req.InitialCost); err != nil {
			return domain.Product{}, err
		}
	}

	s.logAudit(ctx, req.StoreID, "product_create", "product", created.SKU,
		fmt.Sprintf("name=%s,price=%s,stock=%s", created.Name, created.Price, req.InitialStock))
	return pricing.WithFinalPrice(*created), nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	sku = normalizeSKU(sku)
	if sku == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.BaseUnit != nil {
		updated.BaseUnit = strings.TrimSpace(*req.BaseUnit)
		if updated.BaseUnit == "" {
			updated.BaseUnit = domain.DefaultBaseUnit
		}
	}
	if req.PurchaseUnit != nil {
		updated.PurchaseUnit = strings.TrimSpace(*req.PurchaseUnit)
	}
	if req.ConversionToUnit != nil {
		updated.ConversionToUnit = *req.ConversionToUnit
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.DiscountType != nil {
		updated.DiscountType = strings.ToLower(strings.TrimSpace(*req.DiscountType))
		if updated.DiscountType == "none" {
			updated.DiscountType = ""
			updated.Discount = decimal.Zero
		}
	}
	if req.Discount != nil {
		updated.Discount = *req.Discount
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	if updated.Name == "" || updated.Category == "" || !updated.Price.IsPositive() || updated.ConversionToUnit.IsNegative() {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	if err := checkDiscount(updated.DiscountType, updated.Discount); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.cache.Delete(ctx, saved.SKU); err != nil {
		s.logger.Warn("product cache invalidation failed", zap.String("sku", saved.SKU), zap.Error(err))
	}

	s.logAudit(ctx, s.defaultStoreID, "product_update", "product", saved.SKU,
		fmt.Sprintf("price=%s,purchase_unit=%s,conversion=%s,active=%t", saved.Price, saved.PurchaseUnit, saved.ConversionToUnit, saved.Active))
	return pricing.WithFinalPrice(*saved), nil
}

// lookupProduct reads through the product cache. Inactive products resolve
// too, so orders placed before a product was retired can still be received.
func (s *Service) lookupProduct(ctx context.Context, sku string) (*domain.Product, error) {
	if sku == "" {
		return nil, store.ErrInvalidTransaction
	}

	cached, hit, err := s.cache.Get(ctx, sku)
	if err != nil {
		s.logger.Warn("product cache read failed", zap.String("sku", sku), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, *product); err != nil {
		s.logger.Warn("product cache write failed", zap.String("sku", sku), zap.Error(err))
	}
	return product, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     req.Phone,
		Address:   req.Address,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "supplier_create", "supplier", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetStockLevels(ctx context.Context, storeID string, skus []string) (domain.StockLevelResponse, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	normalized := make([]string, 0, len(skus))
	for _, sku := range skus {
		if sku = normalizeSKU(sku); sku != "" {
			normalized = append(normalized, sku)
		}
	}

	levels, err := s.repo.GetStockLevels(ctx, storeID, normalized)
	if err != nil {
		return domain.StockLevelResponse{}, err
	}
	return domain.StockLevelResponse{StoreID: storeID, Items: levels}, nil
}

func (s *Service) ListInventoryLots(ctx context.Context, storeID string, sku string, limit int) (domain.InventoryLotListResponse, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	lots, err := s.repo.ListInventoryLots(ctx, storeID, normalizeSKU(sku), limit)
	if err != nil {
		return domain.InventoryLotListResponse{}, err
	}
	return domain.InventoryLotListResponse{Lots: lots}, nil
}

func (s *Service) CreatePromo(ctx context.Context, req domain.PromoCreateRequest) (domain.PromoRule, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PromoRule{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.DiscountType = strings.ToLower(strings.TrimSpace(req.DiscountType))
	skus := make([]string, 0, len(req.SKUs))
	for _, sku := range req.SKUs {
		skus = append(skus, normalizeSKU(sku))
	}
	req.SKUs = skus
	if err := s.check(req); err != nil {
		return domain.PromoRule{}, err
	}
	if !req.Discount.IsPositive() {
		return domain.PromoRule{}, store.ErrInvalidTransaction
	}
	if err := checkDiscount(req.DiscountType, req.Discount); err != nil {
		return domain.PromoRule{}, err
	}

	saved, err := s.repo.CreatePromo(ctx, domain.PromoRule{
		ID:           xid.New("promo"),
		Name:         req.Name,
		DiscountType: req.DiscountType,
		Discount:     req.Discount,
		SKUs:         req.SKUs,
		Active:       true,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return domain.PromoRule{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "promo_create", "promo", saved.ID,
		fmt.Sprintf("type=%s,discount=%s,skus=%d", saved.DiscountType, saved.Discount, len(saved.SKUs)))
	return *saved, nil
}

func (s *Service) ListPromos(ctx context.Context) ([]domain.PromoRule, error) {
	return s.repo.ListPromos(ctx)
}

func (s *Service) SetPromoActive(ctx context.Context, promoID string, active bool) (domain.PromoRule, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PromoRule{}, err
	}

	rule, err := s.repo.UpdatePromoActive(ctx, promoID, active)
	if err != nil {
		return domain.PromoRule{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "promo_toggle", "promo", promoID, fmt.Sprintf("active=%t", active))
	return *rule, nil
}

// PreviewPromo prices the promotion's bundle at current retail prices.
func (s *Service) PreviewPromo(ctx context.Context, promoID string) (domain.BundlePreview, error) {
	rule, err := s.repo.GetPromoByID(ctx, promoID)
	if err != nil {
		return domain.BundlePreview{}, err
	}
	products, err := s.repo.GetProductsBySKUs(ctx, rule.SKUs)
	if err != nil {
		return domain.BundlePreview{}, err
	}
	return pricing.BundlePreview(*rule, products), nil
}

func (s *Service) PricingPreview(_ context.Context, req domain.PricingPreviewRequest) (domain.PricingPreviewResponse, error) {
	req.DiscountType = strings.ToLower(strings.TrimSpace(req.DiscountType))
	if err := s.check(req); err != nil {
		return domain.PricingPreviewResponse{}, err
	}
	if req.Price.IsNegative() {
		return domain.PricingPreviewResponse{}, store.ErrInvalidTransaction
	}
	if err := checkDiscount(req.DiscountType, req.Discount); err != nil {
		return domain.PricingPreviewResponse{}, err
	}
	return pricing.Preview(req), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Truncate(24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

func checkDiscount(discountType string, discount decimal.Decimal) error {
	if discount.IsNegative() {
		return store.ErrInvalidTransaction
	}
	switch discountType {
	case "":
		if !discount.IsZero() {
			return fmt.Errorf("%w: discount without discount_type", store.ErrInvalidTransaction)
		}
	case domain.DiscountPercent:
		if discount.GreaterThan(hundred) {
			return fmt.Errorf("%w: percent discount above 100", store.ErrInvalidTransaction)
		}
	case domain.DiscountFixed:
	default:
		return store.ErrInvalidTransaction
	}
	return nil
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
