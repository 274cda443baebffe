package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"caixaforte/backend/internal/domain"
	"caixaforte/backend/internal/store"
	"caixaforte/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
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

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, COALESCE(description, ''), active,
		       cost_price_cents, selling_price_cents, tax_rate_percent,
		       min_stock_level, track_inventory, created_at, updated_at
		FROM products
		WHERE active = true
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Active,
			&p.CostPriceCents, &p.SellingPriceCents, &p.TaxRatePercent,
			&p.MinStockLevel, &p.TrackInventory, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, COALESCE(description, ''), active,
		       cost_price_cents, selling_price_cents, tax_rate_percent,
		       min_stock_level, track_inventory, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Active,
		&p.CostPriceCents, &p.SellingPriceCents, &p.TaxRatePercent,
		&p.MinStockLevel, &p.TrackInventory, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product, initialStock int) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	p.ID = xid.New("prd")
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, code, name, description, active,
			cost_price_cents, selling_price_cents, tax_rate_percent,
			min_stock_level, track_inventory, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.Code, p.Name, p.Description, p.Active,
		p.CostPriceCents, p.SellingPriceCents, p.TaxRatePercent,
		p.MinStockLevel, p.TrackInventory, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("product code %s: %w", p.Code, store.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	if initialStock > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stocks (id, product_id, location, quantity, reserved, created_at)
			VALUES ($1, $2, 'main', $3, 0, $4)
		`, xid.New("stk"), p.ID, initialStock, now)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, type, quantity, reason, reference, user_id, created_at)
			VALUES ($1, $2, $3, $4, 'Estoque inicial', NULL, NULL, $5)
		`, xid.New("mov"), p.ID, domain.MovementIn, initialStock, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.ProductSearchResult, error) {
	term := strings.TrimSpace(query)
	if term == "" {
		return []domain.ProductSearchResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.code, p.name, p.selling_price_cents,
		       COALESCE(SUM(st.quantity), 0), COALESCE(SUM(st.reserved), 0)
		FROM products p
		LEFT JOIN stocks st ON st.product_id = p.id
		WHERE p.active = true
		  AND (p.code ILIKE '%' || $1 || '%' OR p.name ILIKE '%' || $1 || '%')
		GROUP BY p.id, p.code, p.name, p.selling_price_cents
		LIMIT $2
	`, term, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ProductSearchResult, 0, limit)
	for rows.Next() {
		var r domain.ProductSearchResult
		var reserved int
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.SellingPriceCents, &r.TotalStock, &reserved); err != nil {
			return nil, err
		}
		r.AvailableStock = r.TotalStock - reserved
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) ListStockRows(ctx context.Context, productID string) ([]domain.Stock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, location, quantity, reserved, created_at
		FROM stocks
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Stock, 0, 4)
	for rows.Next() {
		var st domain.Stock
		if err := rows.Scan(&st.ID, &st.ProductID, &st.Location, &st.Quantity, &st.Reserved, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) AdjustStock(ctx context.Context, productID string, newQuantity int, reason, reference, userID string) (*domain.StockAdjustResponse, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productName string
	err = tx.QueryRowContext(ctx, `SELECT name FROM products WHERE id = $1`, productID).Scan(&productName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, quantity
		FROM stocks
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, productID)
	if err != nil {
		return nil, err
	}
	type stockRow struct {
		id       string
		quantity int
	}
	locked := make([]stockRow, 0, 4)
	for rows.Next() {
		var r stockRow
		if err := rows.Scan(&r.id, &r.quantity); err != nil {
			rows.Close()
			return nil, err
		}
		locked = append(locked, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(locked) == 0 {
		return nil, fmt.Errorf("product %s has no stock rows: %w", productID, store.ErrConflict)
	}

	currentTotal := 0
	for _, r := range locked {
		currentTotal += r.quantity
	}
	difference := newQuantity - currentTotal

	// The delta lands on the oldest row; other locations are untouched.
	othersTotal := currentTotal - locked[0].quantity
	if newQuantity < othersTotal {
		return nil, fmt.Errorf("new quantity %d below other locations' total %d: %w", newQuantity, othersTotal, store.ErrConflict)
	}

	_, err = tx.ExecContext(ctx, `UPDATE stocks SET quantity = $1 WHERE id = $2`, newQuantity-othersTotal, locked[0].id)
	if err != nil {
		return nil, err
	}

	if difference != 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, type, quantity, reason, reference, user_id, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		`, xid.New("mov"), productID, domain.MovementAdjustment, absInt(difference), reason, reference, userID, time.Now().UTC())
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.StockAdjustResponse{
		ProductID:     productID,
		ProductName:   productName,
		PreviousStock: currentTotal,
		NewStock:      newQuantity,
		Difference:    difference,
	}, nil
}

func (s *Store) ListStockMovements(ctx context.Context, filter domain.StockMovementFilter) ([]domain.StockMovement, int, error) {
	conds := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.Since))
	}
	if filter.ProductID != "" {
		conds = append(conds, "product_id = "+arg(filter.ProductID))
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = "+arg(filter.UserID))
	}
	if filter.Type != "" {
		conds = append(conds, "type = "+arg(filter.Type))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_movements WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT id, product_id, type, quantity, reason, COALESCE(reference, ''), COALESCE(user_id, ''), created_at
		FROM stock_movements
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %s OFFSET %s
	`, where, arg(limit), arg(filter.Offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.Reason, &m.Reference, &m.UserID, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.LowStockProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.code, p.name, COALESCE(SUM(st.quantity), 0), p.min_stock_level
		FROM products p
		LEFT JOIN stocks st ON st.product_id = p.id
		WHERE p.active = true AND p.track_inventory = true
		GROUP BY p.id, p.code, p.name, p.min_stock_level
		HAVING COALESCE(SUM(st.quantity), 0) <= p.min_stock_level
		ORDER BY p.code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.LowStockProduct, 0, 16)
	for rows.Next() {
		var p domain.LowStockProduct
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.TotalStock, &p.MinStockLevel); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateCheckout runs the whole sale in a single serializable transaction:
// product validation, stock row locks, pricing, order numbering, stock
// deduction, movement log and payment record. Any failure rolls back all of
// it.
func (s *Store) CreateCheckout(ctx context.Context, cmd store.CheckoutCommand) (*store.CheckoutResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	type pricedLine struct {
		product   domain.Product
		rows      []stockLock
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

		var p domain.Product
		err := tx.QueryRowContext(ctx, `
			SELECT id, code, name, active, cost_price_cents, selling_price_cents, tax_rate_percent
			FROM products
			WHERE id = $1
		`, item.ProductID).Scan(&p.ID, &p.Code, &p.Name, &p.Active,
			&p.CostPriceCents, &p.SellingPriceCents, &p.TaxRatePercent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if !p.Active {
			return nil, fmt.Errorf("product %s is inactive: %w", p.Name, store.ErrConflict)
		}

		locked, err := lockStockRows(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}
		available := 0
		for _, r := range locked {
			available += r.quantity - r.reserved
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
		lines = append(lines, pricedLine{product: p, rows: locked, quantity: item.Quantity, unitPrice: unitPrice})
	}

	var subtotal, taxTotal int64
	orderItems := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		lineTotal := line.unitPrice * int64(line.quantity)
		lineTax := int64(math.Round(float64(lineTotal) * line.product.TaxRatePercent / 100))
		subtotal += lineTotal
		taxTotal += lineTax
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
	total := subtotal + taxTotal - cmd.DiscountCents

	orderNumber, err := nextOrderNumber(ctx, tx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:            xid.New("ord"),
		OrderNumber:   orderNumber,
		Status:        domain.OrderStatusApproved,
		PaymentStatus: domain.PaymentStatusPaid,
		SubtotalCents: subtotal,
		DiscountCents: cmd.DiscountCents,
		TaxCents:      taxTotal,
		TotalCents:    total,
		Notes:         cmd.Notes,
		CreatedBy:     cmd.CreatedBy,
		CreatedAt:     now,
		Items:         orderItems,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, idempotency_key, status, payment_status,
			subtotal_cents, discount_cents, tax_cents, total_cents, notes, created_by, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
	`, order.ID, order.OrderNumber, cmd.IdempotencyKey, order.Status, order.PaymentStatus,
		order.SubtotalCents, order.DiscountCents, order.TaxCents, order.TotalCents,
		order.Notes, order.CreatedBy, order.CreatedAt)
	if isUniqueViolation(err) {
		// A concurrent or earlier request already completed this sale.
		_ = tx.Rollback()
		return s.replayCheckout(ctx, cmd.IdempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	for i, item := range orderItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity,
				unit_price_cents, unit_cost_cents, tax_rate_percent, total_price_cents, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, order.ID, item.ProductID, item.ProductName, item.Quantity,
			item.UnitPriceCents, item.UnitCostCents, item.TaxRatePercent, item.TotalPriceCents, i)
		if err != nil {
			return nil, err
		}
	}

	for _, line := range lines {
		// Deduct oldest row first; the FOR UPDATE scan already returned
		// rows in created_at, id order.
		remaining := line.quantity
		for _, row := range line.rows {
			if remaining <= 0 {
				break
			}
			avail := row.quantity - row.reserved
			if avail <= 0 {
				continue
			}
			deduct := remaining
			if deduct > avail {
				deduct = avail
			}
			_, err = tx.ExecContext(ctx, `UPDATE stocks SET quantity = quantity - $1 WHERE id = $2`, deduct, row.id)
			if err != nil {
				return nil, err
			}
			remaining -= deduct
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, type, quantity, reason, reference, user_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		`, xid.New("mov"), line.product.ID, domain.MovementOut, line.quantity,
			fmt.Sprintf("Venda POS #%s", order.OrderNumber), order.ID, cmd.CreatedBy, now)
		if err != nil {
			return nil, err
		}
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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, order_id, payment_method, amount_cents, status, reference, processed_by, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, txn.ID, txn.OrderID, txn.PaymentMethod, txn.AmountCents, txn.Status,
		txn.Reference, txn.ProcessedBy, txn.ProcessedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &store.CheckoutResult{Order: order, Transaction: txn}, nil
}

type stockLock struct {
	id       string
	quantity int
	reserved int
}

func lockStockRows(ctx context.Context, tx *sql.Tx, productID string) ([]stockLock, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, quantity, reserved
		FROM stocks
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]stockLock, 0, 4)
	for rows.Next() {
		var r stockLock
		if err := rows.Scan(&r.id, &r.quantity, &r.reserved); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// nextOrderNumber increments the dedicated counter row. Counting existing
// orders would race under concurrency; the counter row is serialized by the
// surrounding transaction.
func nextOrderNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `
		UPDATE order_counters SET value = value + 1 WHERE id = 1 RETURNING value
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_counters (id, value) VALUES (1, 1)
			ON CONFLICT (id) DO UPDATE SET value = order_counters.value + 1
			RETURNING value
		`).Scan(&seq)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%06d", seq), nil
}

func (s *Store) replayCheckout(ctx context.Context, idempotencyKey string) (*store.CheckoutResult, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("duplicate order: %w", store.ErrConflict)
	}
	var orderID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM orders WHERE idempotency_key = $1
	`, idempotencyKey).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("duplicate order: %w", store.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var txn domain.Transaction
	err = s.db.QueryRowContext(ctx, `
		SELECT id, order_id, payment_method, amount_cents, status, reference, processed_by, processed_at
		FROM transactions
		WHERE order_id = $1
	`, orderID).Scan(&txn.ID, &txn.OrderID, &txn.PaymentMethod, &txn.AmountCents,
		&txn.Status, &txn.Reference, &txn.ProcessedBy, &txn.ProcessedAt)
	if err != nil {
		return nil, err
	}

	return &store.CheckoutResult{Order: *order, Transaction: txn, Replayed: true}, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_number, status, payment_status, subtotal_cents, discount_cents,
		       tax_cents, total_cents, COALESCE(notes, ''), created_by, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&o.ID, &o.OrderNumber, &o.Status, &o.PaymentStatus, &o.SubtotalCents,
		&o.DiscountCents, &o.TaxCents, &o.TotalCents, &o.Notes, &o.CreatedBy, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price_cents, unit_cost_cents,
		       tax_rate_percent, total_price_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity,
			&item.UnitPriceCents, &item.UnitCostCents, &item.TaxRatePercent, &item.TotalPriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListCompletedTransactions(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, payment_method, amount_cents, status, reference, processed_by, processed_at
		FROM transactions
		WHERE status = $1 AND processed_at >= $2 AND processed_at < $3
		ORDER BY processed_at
	`, domain.TxStatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.OrderID, &t.PaymentMethod, &t.AmountCents,
			&t.Status, &t.Reference, &t.ProcessedBy, &t.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateCashClosing(ctx context.Context, closing domain.CashClosing) (*domain.CashClosing, error) {
	closing.ID = xid.New("cls")
	closing.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_closings (id, closed_by,
			cash_counted_cents, card_counted_cents, pix_counted_cents, total_counted_cents,
			cash_expected_cents, card_expected_cents, pix_expected_cents, total_expected_cents,
			cash_difference_cents, card_difference_cents, pix_difference_cents, total_difference_cents,
			notes, status, has_alert, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''), $16, $17, $18)
	`, closing.ID, closing.ClosedBy,
		closing.CashCountedCents, closing.CardCountedCents, closing.PixCountedCents, closing.TotalCountedCents,
		closing.CashExpectedCents, closing.CardExpectedCents, closing.PixExpectedCents, closing.TotalExpectedCents,
		closing.CashDifferenceCents, closing.CardDifferenceCents, closing.PixDifferenceCents, closing.TotalDifferenceCents,
		closing.Notes, closing.Status, closing.HasAlert, closing.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &closing, nil
}

func (s *Store) ListCashClosings(ctx context.Context, limit int) ([]domain.CashClosing, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, closed_by,
		       cash_counted_cents, card_counted_cents, pix_counted_cents, total_counted_cents,
		       cash_expected_cents, card_expected_cents, pix_expected_cents, total_expected_cents,
		       cash_difference_cents, card_difference_cents, pix_difference_cents, total_difference_cents,
		       COALESCE(notes, ''), status, has_alert, created_at
		FROM cash_closings
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CashClosing, 0, limit)
	for rows.Next() {
		var c domain.CashClosing
		if err := rows.Scan(&c.ID, &c.ClosedBy,
			&c.CashCountedCents, &c.CardCountedCents, &c.PixCountedCents, &c.TotalCountedCents,
			&c.CashExpectedCents, &c.CardExpectedCents, &c.PixExpectedCents, &c.TotalExpectedCents,
			&c.CashDifferenceCents, &c.CardDifferenceCents, &c.PixDifferenceCents, &c.TotalDifferenceCents,
			&c.Notes, &c.Status, &c.HasAlert, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DashboardKPI(ctx context.Context, from, to time.Time) (*domain.DashboardKPI, error) {
	kpi := domain.DashboardKPI{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2 AND status <> $3
	`, from, to, domain.OrderStatusCancelled).Scan(&kpi.TotalOrders, &kpi.TodaySalesCents)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(oi.total_price_cents - oi.unit_cost_cents * oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.created_at >= $1 AND o.created_at < $2 AND o.status <> $3
	`, from, to, domain.OrderStatusCancelled).Scan(&kpi.TodayProfitCents)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM (
			SELECT p.id
			FROM products p
			LEFT JOIN stocks st ON st.product_id = p.id
			WHERE p.active = true AND p.track_inventory = true
			GROUP BY p.id, p.min_stock_level
			HAVING COALESCE(SUM(st.quantity), 0) <= p.min_stock_level
		) low
	`).Scan(&kpi.LowStockCount)
	if err != nil {
		return nil, err
	}

	return &kpi, nil
}

func (s *Store) SalesTotalsByDay(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COALESCE(SUM(total_cents), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2 AND status <> $3
		GROUP BY 1
	`, from, to, domain.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var day string
		var cents int64
		if err := rows.Scan(&day, &cents); err != nil {
			return nil, err
		}
		totals[day] = cents
	}
	return totals, rows.Err()
}

func (s *Store) TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT oi.product_id, oi.product_name, SUM(oi.quantity), SUM(oi.total_price_cents)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status <> $1
		GROUP BY oi.product_id, oi.product_name
		ORDER BY SUM(oi.quantity) DESC, oi.product_name ASC
		LIMIT $2
	`, domain.OrderStatusCancelled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var p domain.TopProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Quantity, &p.RevenueCents); err != nil {
			return nil, err
		}
		top = append(top, p)
	}
	return top, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $1 WHERE username = $2`, password, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", username, store.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
