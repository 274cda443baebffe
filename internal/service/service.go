package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"caixaforte/backend/internal/cache"
	"caixaforte/backend/internal/domain"
	"caixaforte/backend/internal/metrics"
	"caixaforte/backend/internal/notify"
	"caixaforte/backend/internal/store"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Till differences above this absolute value, in cents, flag the closing for
// review (R$ 5,00).
const alertThresholdCents = 500

const kpiCacheKey = "dashboard:kpi:today"

type actorContextKey struct{}

// WithActor attaches the server-verified principal to the context. Only the
// auth middleware calls this, after validating the access token.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	kpiCache cache.KPICache
	notifier notify.Notifier
	logger   *zap.Logger
}

func New(repo store.Repository, kpiCache cache.KPICache, notifier notify.Notifier, logger *zap.Logger) *Service {
	if kpiCache == nil {
		kpiCache = cache.NoopKPICache{}
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, kpiCache: kpiCache, notifier: notifier, logger: logger}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func (s *Service) requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("role %s not allowed: %w", actor.Role, ErrForbidden)
}

// Checkout runs a POS sale. Request-shape problems fail before the store is
// touched; per-item checks and all writes happen atomically inside the store.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		metrics.CheckoutsFailedTotal.WithLabelValues("unauthenticated").Inc()
		return nil, err
	}

	if len(req.Items) == 0 {
		metrics.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, fmt.Errorf("cart is empty: %w", ErrValidation)
	}
	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		metrics.CheckoutsFailedTotal.WithLabelValues("payment_method").Inc()
		return nil, fmt.Errorf("invalid payment method %q: %w", req.PaymentMethod, ErrValidation)
	}
	if req.DiscountCents < 0 {
		metrics.CheckoutsFailedTotal.WithLabelValues("discount").Inc()
		return nil, fmt.Errorf("discount must not be negative: %w", ErrValidation)
	}

	items, err := normalizeItems(req.Items)
	if err != nil {
		metrics.CheckoutsFailedTotal.WithLabelValues("item").Inc()
		return nil, err
	}

	result, err := s.repo.CreateCheckout(ctx, store.CheckoutCommand{
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Items:          items,
		PaymentMethod:  req.PaymentMethod,
		DiscountCents:  req.DiscountCents,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedBy:      actor.Username,
	})
	if err != nil {
		metrics.CheckoutsFailedTotal.WithLabelValues(checkoutFailReason(err)).Inc()
		return nil, err
	}

	if !result.Replayed {
		metrics.CheckoutsTotal.Inc()
		metrics.CheckoutAmountCents.Add(float64(result.Order.TotalCents))
		s.logger.Info("checkout completed",
			zap.String("order_number", result.Order.OrderNumber),
			zap.String("operator", actor.Username),
			zap.String("payment_method", result.Transaction.PaymentMethod),
			zap.Int64("total_cents", result.Order.TotalCents),
			zap.Int("items", len(result.Order.Items)))
	}

	receiptQueued := false
	if !result.Replayed && (req.CustomerPhone != "" || req.CustomerEmail != "") {
		receiptQueued = true
		s.queueReceipt(domain.ReceiptNotification{
			OrderID:       result.Order.ID,
			OrderNumber:   result.Order.OrderNumber,
			TotalCents:    result.Order.TotalCents,
			CustomerPhone: req.CustomerPhone,
			CustomerEmail: req.CustomerEmail,
		})
	}

	return &domain.CheckoutResponse{
		OrderID:       result.Order.ID,
		OrderNumber:   result.Order.OrderNumber,
		SubtotalCents: result.Order.SubtotalCents,
		TaxCents:      result.Order.TaxCents,
		DiscountCents: result.Order.DiscountCents,
		TotalCents:    result.Order.TotalCents,
		Items:         result.Order.Items,
		ReceiptQueued: receiptQueued,
		Replayed:      result.Replayed,
	}, nil
}

// normalizeItems validates the cart lines and merges duplicates of the same
// product, so availability is checked once against the combined quantity.
// Without the merge, each line would pass its own check against the same
// un-decremented stock and the sale could oversell.
func normalizeItems(items []domain.CheckoutItemRequest) ([]store.CheckoutItem, error) {
	merged := make([]store.CheckoutItem, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, fmt.Errorf("item product id is required: %w", ErrValidation)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("item quantity must be at least 1: %w", ErrValidation)
		}
		if item.UnitPriceCents < 0 {
			return nil, fmt.Errorf("item unit price must not be negative: %w", ErrValidation)
		}

		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			if merged[i].UnitPriceCents == 0 {
				merged[i].UnitPriceCents = item.UnitPriceCents
			}
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, store.CheckoutItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return merged, nil
}

// queueReceipt delivers the receipt in the background. The sale is already
// committed; a delivery failure is logged and dropped.
func (s *Service) queueReceipt(n domain.ReceiptNotification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.SendReceipt(ctx, n); err != nil {
			metrics.ReceiptDeliveriesFailedTotal.Inc()
			s.logger.Warn("receipt delivery failed",
				zap.String("order_number", n.OrderNumber),
				zap.Error(err))
		}
	}()
}

func checkoutFailReason(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "product_not_found"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	}
	return "internal"
}

// CloseCash performs the blind till reconciliation for the current day. The
// operator commits their counted values without seeing the expected ones;
// both sides plus the differences come back in the response.
func (s *Service) CloseCash(ctx context.Context, req domain.CashClosingRequest) (*domain.CashClosing, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if req.CashCountedCents < 0 || req.CardCountedCents < 0 || req.PixCountedCents < 0 {
		return nil, fmt.Errorf("counted values must not be negative: %w", ErrValidation)
	}

	from, to := dayWindowUTC(time.Now().UTC())
	transactions, err := s.repo.ListCompletedTransactions(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var cashExpected, cardExpected, pixExpected, excluded int64
	for _, txn := range transactions {
		switch domain.PaymentBucket(txn.PaymentMethod) {
		case domain.BucketCash:
			cashExpected += txn.AmountCents
		case domain.BucketCard:
			cardExpected += txn.AmountCents
		case domain.BucketPix:
			pixExpected += txn.AmountCents
		default:
			excluded += txn.AmountCents
		}
	}
	if excluded > 0 {
		s.logger.Warn("transactions outside till channels excluded from closing",
			zap.Int64("excluded_cents", excluded))
	}

	totalCounted := req.CashCountedCents + req.CardCountedCents + req.PixCountedCents
	totalExpected := cashExpected + cardExpected + pixExpected
	totalDifference := totalCounted - totalExpected
	hasAlert := absInt64(totalDifference) > alertThresholdCents

	closing, err := s.repo.CreateCashClosing(ctx, domain.CashClosing{
		ClosedBy: actor.Username,

		CashCountedCents:  req.CashCountedCents,
		CardCountedCents:  req.CardCountedCents,
		PixCountedCents:   req.PixCountedCents,
		TotalCountedCents: totalCounted,

		CashExpectedCents:  cashExpected,
		CardExpectedCents:  cardExpected,
		PixExpectedCents:   pixExpected,
		TotalExpectedCents: totalExpected,

		CashDifferenceCents:  req.CashCountedCents - cashExpected,
		CardDifferenceCents:  req.CardCountedCents - cardExpected,
		PixDifferenceCents:   req.PixCountedCents - pixExpected,
		TotalDifferenceCents: totalDifference,

		Notes:    strings.TrimSpace(req.Notes),
		Status:   domain.ClosingStatusClosed,
		HasAlert: hasAlert,
	})
	if err != nil {
		return nil, err
	}

	metrics.CashClosingsTotal.Inc()
	if hasAlert {
		metrics.CashClosingAlertsTotal.Inc()
	}
	s.logger.Info("cash closing recorded",
		zap.String("closing_id", closing.ID),
		zap.String("operator", actor.Username),
		zap.Int64("total_counted_cents", totalCounted),
		zap.Int64("total_expected_cents", totalExpected),
		zap.Int64("total_difference_cents", totalDifference),
		zap.Bool("has_alert", hasAlert))

	return closing, nil
}

// ListCashClosings returns the most recent closings. Only admins may audit
// the history; operators only ever see their own closing's response.
func (s *Service) ListCashClosings(ctx context.Context) ([]domain.CashClosing, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListCashClosings(ctx, 30)
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (*domain.StockAdjustResponse, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.ProductID) == "" || strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("product id and reason are required: %w", ErrValidation)
	}
	if req.NewQuantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative: %w", ErrValidation)
	}

	reference := fmt.Sprintf("ADJ-%d", time.Now().UnixMilli())
	result, err := s.repo.AdjustStock(ctx, req.ProductID, req.NewQuantity,
		fmt.Sprintf("Ajuste de Estoque: %s", strings.TrimSpace(req.Reason)),
		reference, actor.Username)
	if err != nil {
		return nil, err
	}

	metrics.StockAdjustmentsTotal.Inc()
	s.logger.Info("stock adjusted",
		zap.String("product_id", result.ProductID),
		zap.String("operator", actor.Username),
		zap.Int("previous", result.PreviousStock),
		zap.Int("new", result.NewStock))
	return result, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID, userID, movementType string, page, limit int) (*domain.StockMovementPage, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	filter := domain.StockMovementFilter{
		ProductID: strings.TrimSpace(productID),
		Type:      strings.ToUpper(strings.TrimSpace(movementType)),
		Since:     time.Now().UTC().Add(-30 * 24 * time.Hour),
		Offset:    (page - 1) * limit,
		Limit:     limit,
	}

	switch actor.Role {
	case domain.RoleOperator:
		// Operators only see their own movements.
		filter.UserID = actor.Username
	case domain.RoleAdmin, domain.RoleManager:
		filter.UserID = strings.TrimSpace(userID)
	}

	movements, total, err := s.repo.ListStockMovements(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPages := (total + limit - 1) / limit
	return &domain.StockMovementPage{
		Movements:   movements,
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}, nil
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.LowStockProduct, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.ListLowStockProducts(ctx)
}

// SearchProducts ranks matches the way the POS front end expects: exact code
// first, then code prefix, exact name, name prefix, then code order.
func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.ProductSearchResult, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return []domain.ProductSearchResult{}, nil
	}

	candidates, err := s.repo.SearchProducts(ctx, term, 20)
	if err != nil {
		return nil, err
	}

	rank := func(r domain.ProductSearchResult) int {
		code := strings.ToLower(r.Code)
		name := strings.ToLower(r.Name)
		switch {
		case code == term:
			return 0
		case strings.HasPrefix(code, term):
			return 1
		case name == term:
			return 2
		case strings.HasPrefix(name, term):
			return 3
		}
		return 4
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := rank(candidates[i]), rank(candidates[j])
		if ri != rj {
			return ri < rj
		}
		return candidates[i].Code < candidates[j].Code
	})

	if len(candidates) > 10 {
		candidates = candidates[:10]
	}
	return candidates, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("code and name are required: %w", ErrValidation)
	}
	if req.SellingPriceCents < 1 || req.CostPriceCents < 0 {
		return nil, fmt.Errorf("prices out of range: %w", ErrValidation)
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return nil, fmt.Errorf("tax rate must be between 0 and 100: %w", ErrValidation)
	}
	if req.MinStockLevel < 0 || req.InitialStock < 0 {
		return nil, fmt.Errorf("stock levels must not be negative: %w", ErrValidation)
	}

	return s.repo.CreateProduct(ctx, domain.Product{
		Code:              code,
		Name:              name,
		Description:       strings.TrimSpace(req.Description),
		Active:            true,
		CostPriceCents:    req.CostPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		TaxRatePercent:    req.TaxRatePercent,
		MinStockLevel:     req.MinStockLevel,
		TrackInventory:    true,
	}, req.InitialStock)
}

// DashboardKPI serves today's aggregates, cached for a short TTL when Redis
// is available.
func (s *Service) DashboardKPI(ctx context.Context) (*domain.DashboardKPI, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	if kpi, ok := s.kpiCache.Get(ctx, kpiCacheKey); ok {
		return kpi, nil
	}

	from, to := dayWindowUTC(time.Now().UTC())
	kpi, err := s.repo.DashboardKPI(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.kpiCache.Set(ctx, kpiCacheKey, *kpi)
	return kpi, nil
}

// DashboardSales returns the daily sales totals for the last seven days,
// today included, labeled dd/MM oldest first. Days without sales report zero.
func (s *Service) DashboardSales(ctx context.Context) (*domain.SalesSeries, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	start, _ := dayWindowUTC(now.AddDate(0, 0, -6))
	_, end := dayWindowUTC(now)
	totals, err := s.repo.SalesTotalsByDay(ctx, start, end)
	if err != nil {
		return nil, err
	}

	series := &domain.SalesSeries{
		Labels:    make([]string, 0, 7),
		DataCents: make([]int64, 0, 7),
	}
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		series.Labels = append(series.Labels, day.Format("02/01"))
		series.DataCents = append(series.DataCents, totals[day.Format("2006-01-02")])
	}
	return series, nil
}

// TopProducts returns the five best sellers by quantity across all
// non-cancelled orders.
func (s *Service) TopProducts(ctx context.Context) ([]domain.TopProduct, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.TopProducts(ctx, 5)
}

// dayWindowUTC returns the half-open interval [startOfDay, startOfDay+24h).
func dayWindowUTC(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
