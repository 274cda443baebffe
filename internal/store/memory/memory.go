package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"caixaforte/backend/internal/domain"
	"caixaforte/backend/internal/store"
	"caixaforte/backend/internal/xid"
)

// Store is an in-memory Repository used by unit tests and demo mode. The
// single mutex makes every command atomic, which mirrors the transactional
// guarantees of the postgres store.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productIDByCode map[string]string
	stocksByProduct map[string][]domain.Stock
	movements       []domain.StockMovement
	ordersByID      map[string]*domain.Order
	orderIDByIdem   map[string]string
	transactions    []domain.Transaction
	closings        []domain.CashClosing
	usersByUsername map[string]domain.UserAccount
	orderSeq        int64
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		productIDByCode: make(map[string]string),
		stocksByProduct: make(map[string][]domain.Stock),
		movements:       make([]domain.StockMovement, 0, 128),
		ordersByID:      make(map[string]*domain.Order),
		orderIDByIdem:   make(map[string]string),
		transactions:    make([]domain.Transaction, 0, 128),
		closings:        make([]domain.CashClosing, 0, 32),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"gerente", operatorPwd, domain.RoleManager},
		{"operador", operatorPwd, domain.RoleOperator},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
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

// NewSeeded returns a store pre-loaded with a small product catalog. One
// product (PRD-ARROZ) carries two stock rows so multi-location deduction is
// exercised out of the box.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prd-arroz", Code: "PRD-ARROZ", Name: "Arroz Branco 5kg", Active: true, CostPriceCents: 1850, SellingPriceCents: 2790, TaxRatePercent: 0, MinStockLevel: 10, TrackInventory: true},
		{ID: "prd-feijao", Code: "PRD-FEIJAO", Name: "Feijao Carioca 1kg", Active: true, CostPriceCents: 620, SellingPriceCents: 989, TaxRatePercent: 0, MinStockLevel: 15, TrackInventory: true},
		{ID: "prd-cafe", Code: "PRD-CAFE", Name: "Cafe Torrado 500g", Active: true, CostPriceCents: 1240, SellingPriceCents: 1890, TaxRatePercent: 5, MinStockLevel: 8, TrackInventory: true},
		{ID: "prd-leite", Code: "PRD-LEITE", Name: "Leite Integral 1L", Active: true, CostPriceCents: 389, SellingPriceCents: 599, TaxRatePercent: 0, MinStockLevel: 24, TrackInventory: true},
		{ID: "prd-oleo", Code: "PRD-OLEO", Name: "Oleo de Soja 900ml", Active: true, CostPriceCents: 512, SellingPriceCents: 849, TaxRatePercent: 0, MinStockLevel: 12, TrackInventory: true},
		{ID: "prd-sabao", Code: "PRD-SABAO", Name: "Sabao em Po 1kg", Active: true, CostPriceCents: 780, SellingPriceCents: 1290, TaxRatePercent: 12, MinStockLevel: 6, TrackInventory: true},
		{ID: "prd-refri", Code: "PRD-REFRI", Name: "Refrigerante 2L", Active: true, CostPriceCents: 430, SellingPriceCents: 799, TaxRatePercent: 18, MinStockLevel: 20, TrackInventory: true},
		{ID: "prd-inativo", Code: "PRD-INATIVO", Name: "Produto Descontinuado", Active: false, CostPriceCents: 100, SellingPriceCents: 200, TaxRatePercent: 0, MinStockLevel: 0, TrackInventory: true},
	}
	for i := range products {
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
		s.products[products[i].ID] = products[i]
		s.productIDByCode[products[i].Code] = products[i].ID
	}

	for _, row := range []domain.Stock{
		{ID: "stk-arroz-1", ProductID: "prd-arroz", Location: "deposito", Quantity: 30, Reserved: 0, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "stk-arroz-2", ProductID: "prd-arroz", Location: "loja", Quantity: 50, Reserved: 5, CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "stk-feijao-1", ProductID: "prd-feijao", Location: "loja", Quantity: 60, Reserved: 0, CreatedAt: now},
		{ID: "stk-cafe-1", ProductID: "prd-cafe", Location: "loja", Quantity: 40, Reserved: 0, CreatedAt: now},
		{ID: "stk-leite-1", ProductID: "prd-leite", Location: "loja", Quantity: 80, Reserved: 0, CreatedAt: now},
		{ID: "stk-oleo-1", ProductID: "prd-oleo", Location: "loja", Quantity: 25, Reserved: 0, CreatedAt: now},
		{ID: "stk-sabao-1", ProductID: "prd-sabao", Location: "loja", Quantity: 18, Reserved: 0, CreatedAt: now},
		{ID: "stk-refri-1", ProductID: "prd-refri", Location: "loja", Quantity: 45, Reserved: 0, CreatedAt: now},
	} {
		s.stocksByProduct[row.ProductID] = append(s.stocksByProduct[row.ProductID], row)
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	clone := p
	return &clone, nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product, initialStock int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productIDByCode[p.Code]; exists {
		return nil, fmt.Errorf("product code %s: %w", p.Code, store.ErrConflict)
	}

	now := time.Now().UTC()
	p.ID = xid.New("prd")
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	s.productIDByCode[p.Code] = p.ID

	if initialStock > 0 {
		s.stocksByProduct[p.ID] = append(s.stocksByProduct[p.ID], domain.Stock{
			ID:        xid.New("stk"),
			ProductID: p.ID,
			Location:  "main",
			Quantity:  initialStock,
			CreatedAt: now,
		})
		s.movements = append(s.movements, domain.StockMovement{
			ID:        xid.New("mov"),
			ProductID: p.ID,
			Type:      domain.MovementIn,
			Quantity:  initialStock,
			Reason:    "Estoque inicial",
			CreatedAt: now,
		})
	}

	clone := p
	return &clone, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.ProductSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return []domain.ProductSearchResult{}, nil
	}

	out := make([]domain.ProductSearchResult, 0, limit)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if !strings.Contains(strings.ToLower(p.Code), term) && !strings.Contains(strings.ToLower(p.Name), term) {
			continue
		}
		total, reserved := 0, 0
		for _, row := range s.stocksByProduct[p.ID] {
			total += row.Quantity
			reserved += row.Reserved
		}
		out = append(out, domain.ProductSearchResult{
			ID:                p.ID,
			Code:              p.Code,
			Name:              p.Name,
			SellingPriceCents: p.SellingPriceCents,
			TotalStock:        total,
			AvailableStock:    total - reserved,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListStockRows(_ context.Context, productID string) ([]domain.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.stocksByProduct[productID]
	if !ok {
		return []domain.Stock{}, nil
	}
	out := make([]domain.Stock, len(rows))
	copy(out, rows)
	sortStockRows(out)
	return out, nil
}

// sortStockRows orders rows oldest-first with the row id as tie-break, the
// same order the postgres store locks and deducts them in.
func sortStockRows(rows []domain.Stock) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}

func (s *Store) AdjustStock(_ context.Context, productID string, newQuantity int, reason, reference, userID string) (*domain.StockAdjustResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	rows := s.stocksByProduct[productID]
	if len(rows) == 0 {
		return nil, fmt.Errorf("product %s has no stock rows: %w", productID, store.ErrConflict)
	}
	sortStockRows(rows)

	currentTotal := 0
	for _, row := range rows {
		currentTotal += row.Quantity
	}
	difference := newQuantity - currentTotal

	// The delta is applied to the oldest row. Other locations keep their
	// quantities, so the new total may not drop below their sum.
	othersTotal := currentTotal - rows[0].Quantity
	if newQuantity < othersTotal {
		return nil, fmt.Errorf("new quantity %d below other locations' total %d: %w", newQuantity, othersTotal, store.ErrConflict)
	}
	rows[0].Quantity = newQuantity - othersTotal
	s.stocksByProduct[productID] = rows

	if difference != 0 {
		s.movements = append(s.movements, domain.StockMovement{
			ID:        xid.New("mov"),
			ProductID: productID,
			Type:      domain.MovementAdjustment,
			Quantity:  absInt(difference),
			Reason:    reason,
			Reference: reference,
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		})
	}

	return &domain.StockAdjustResponse{
		ProductID:     productID,
		ProductName:   p.Name,
		PreviousStock: currentTotal,
		NewStock:      newQuantity,
		Difference:    difference,
	}, nil
}

func (s *Store) ListStockMovements(_ context.Context, filter domain.StockMovementFilter) ([]domain.StockMovement, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.StockMovement, 0, len(s.movements))
	for _, m := range s.movements {
		if !filter.Since.IsZero() && m.CreatedAt.Before(filter.Since) {
			continue
		}
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if filter.UserID != "" && m.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if filter.Offset >= total {
		return []domain.StockMovement{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	page := make([]domain.StockMovement, end-filter.Offset)
	copy(page, matched[filter.Offset:end])
	return page, total, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.LowStockProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LowStockProduct, 0, 8)
	for _, p := range s.products {
		if !p.Active || !p.TrackInventory {
			continue
		}
		total := 0
		for _, row := range s.stocksByProduct[p.ID] {
			total += row.Quantity
		}
		if total <= p.MinStockLevel {
			out = append(out, domain.LowStockProduct{
				ID:            p.ID,
				Code:          p.Code,
				Name:          p.Name,
				TotalStock:    total,
				MinStockLevel: p.MinStockLevel,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) CreateCheckout(_ context.Context, cmd store.CheckoutCommand) (*store.CheckoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.IdempotencyKey != "" {
		if orderID, ok := s.orderIDByIdem[cmd.IdempotencyKey]; ok {
			return s.replayResult(orderID)
		}
	}

	// Validate every line before touching any state so a late failure
	// leaves the store unchanged.
	type pricedLine struct {
		product   domain.Product
		quantity  int
		unitPrice int64
	}
	lines := make([]pricedLine, 0, len(cmd.Items))
	seen := make(map[string]bool, len(cmd.Items))
	for _, item := range cmd.Items {
		// Duplicate lines must be merged by the caller; each product's
		// availability is checked exactly once.
		if seen[item.ProductID] {
			return nil, fmt.Errorf("duplicate cart line for product %s: %w", item.ProductID, store.ErrConflict)
		}
		seen[item.ProductID] = true

		p, ok := s.products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if !p.Active {
			return nil, fmt.Errorf("product %s is inactive: %w", p.Name, store.ErrConflict)
		}
		available := 0
		for _, row := range s.stocksByProduct[p.ID] {
			available += row.Available()
		}
		if available < item.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   available,
				Requested:   item.Quantity,
			}
		}
		unitPrice := item.UnitPriceCents
		if unitPrice == 0 {
			unitPrice = p.SellingPriceCents
		}
		lines = append(lines, pricedLine{product: p, quantity: item.Quantity, unitPrice: unitPrice})
	}

	var subtotal, tax int64
	orderItems := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		lineTotal := line.unitPrice * int64(line.quantity)
		lineTax := int64(math.Round(float64(lineTotal) * line.product.TaxRatePercent / 100))
		subtotal += lineTotal
		tax += lineTax
		orderItems = append(orderItems, domain.OrderItem{
			ProductID:       line.product.ID,
			ProductName:     line.product.Name,
			Quantity:        line.quantity,
			UnitPriceCents:  line.unitPrice,
			UnitCostCents:   line.product.CostPriceCents,
			TaxRatePercent:  line.product.TaxRatePercent,
			TotalPriceCents: lineTotal,
		})
	}
	total := subtotal + tax - cmd.DiscountCents

	s.orderSeq++
	now := time.Now().UTC()
	order := domain.Order{
		ID:            xid.New("ord"),
		OrderNumber:   fmt.Sprintf("ORD-%06d", s.orderSeq),
		Status:        domain.OrderStatusApproved,
		PaymentStatus: domain.PaymentStatusPaid,
		SubtotalCents: subtotal,
		DiscountCents: cmd.DiscountCents,
		TaxCents:      tax,
		TotalCents:    total,
		Notes:         cmd.Notes,
		CreatedBy:     cmd.CreatedBy,
		CreatedAt:     now,
		Items:         orderItems,
	}

	for _, line := range lines {
		rows := s.stocksByProduct[line.product.ID]
		sortStockRows(rows)
		remaining := line.quantity
		for i := range rows {
			if remaining <= 0 {
				break
			}
			avail := rows[i].Available()
			if avail <= 0 {
				continue
			}
			deduct := remaining
			if deduct > avail {
				deduct = avail
			}
			rows[i].Quantity -= deduct
			remaining -= deduct
		}
		s.stocksByProduct[line.product.ID] = rows

		s.movements = append(s.movements, domain.StockMovement{
			ID:        xid.New("mov"),
			ProductID: line.product.ID,
			Type:      domain.MovementOut,
			Quantity:  line.quantity,
			Reason:    fmt.Sprintf("Venda POS #%s", order.OrderNumber),
			Reference: order.ID,
			UserID:    cmd.CreatedBy,
			CreatedAt: now,
		})
	}

	txn := domain.Transaction{
		ID:            xid.New("txn"),
		OrderID:       order.ID,
		PaymentMethod: cmd.PaymentMethod,
		AmountCents:   total,
		Status:        domain.TxStatusCompleted,
		Reference:     order.OrderNumber,
		ProcessedBy:   cmd.CreatedBy,
		ProcessedAt:   now,
	}

	s.ordersByID[order.ID] = &order
	if cmd.IdempotencyKey != "" {
		s.orderIDByIdem[cmd.IdempotencyKey] = order.ID
	}
	s.transactions = append(s.transactions, txn)

	return &store.CheckoutResult{Order: order, Transaction: txn}, nil
}

func (s *Store) replayResult(orderID string) (*store.CheckoutResult, error) {
	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}
	for _, txn := range s.transactions {
		if txn.OrderID == orderID {
			return &store.CheckoutResult{Order: *order, Transaction: txn, Replayed: true}, nil
		}
	}
	return nil, fmt.Errorf("transaction for order %s: %w", orderID, store.ErrNotFound)
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	clone := *order
	return &clone, nil
}

func (s *Store) ListCompletedTransactions(_ context.Context, from, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, 32)
	for _, txn := range s.transactions {
		if txn.Status != domain.TxStatusCompleted {
			continue
		}
		if txn.ProcessedAt.Before(from) || !txn.ProcessedAt.Before(to) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (s *Store) CreateCashClosing(_ context.Context, closing domain.CashClosing) (*domain.CashClosing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	closing.ID = xid.New("cls")
	closing.CreatedAt = time.Now().UTC()
	s.closings = append(s.closings, closing)
	return &closing, nil
}

func (s *Store) ListCashClosings(_ context.Context, limit int) ([]domain.CashClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CashClosing, len(s.closings))
	copy(out, s.closings)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DashboardKPI(_ context.Context, from, to time.Time) (*domain.DashboardKPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kpi := domain.DashboardKPI{}
	for _, order := range s.ordersByID {
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		kpi.TotalOrders++
		kpi.TodaySalesCents += order.TotalCents
		for _, item := range order.Items {
			kpi.TodayProfitCents += item.TotalPriceCents - item.UnitCostCents*int64(item.Quantity)
		}
	}

	for _, p := range s.products {
		if !p.Active || !p.TrackInventory {
			continue
		}
		total := 0
		for _, row := range s.stocksByProduct[p.ID] {
			total += row.Quantity
		}
		if total <= p.MinStockLevel {
			kpi.LowStockCount++
		}
	}
	return &kpi, nil
}

func (s *Store) SalesTotalsByDay(_ context.Context, from, to time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int64)
	for _, order := range s.ordersByID {
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		totals[order.CreatedAt.UTC().Format("2006-01-02")] += order.TotalCents
	}
	return totals, nil
}

func (s *Store) TopProducts(_ context.Context, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := make(map[string]*domain.TopProduct)
	for _, order := range s.ordersByID {
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		for _, item := range order.Items {
			agg, ok := byProduct[item.ProductID]
			if !ok {
				agg = &domain.TopProduct{ProductID: item.ProductID, Name: item.ProductName}
				byProduct[item.ProductID] = agg
			}
			agg.Quantity += item.Quantity
			agg.RevenueCents += item.TotalPriceCents
		}
	}

	top := make([]domain.TopProduct, 0, len(byProduct))
	for _, agg := range byProduct {
		top = append(top, *agg)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Quantity != top[j].Quantity {
			return top[i].Quantity > top[j].Quantity
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return fmt.Errorf("user %s: %w", username, store.ErrNotFound)
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
