package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixaforte/backend/internal/domain"
	"caixaforte/backend/internal/store"
	"caixaforte/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, nil, nil, nil), repo
}

func asOperator(ctx context.Context) context.Context {
	return WithActor(ctx, domain.Actor{Username: "operador", Role: domain.RoleOperator})
}

func asManager(ctx context.Context) context.Context {
	return WithActor(ctx, domain.Actor{Username: "gerente", Role: domain.RoleManager})
}

func asAdmin(ctx context.Context) context.Context {
	return WithActor(ctx, domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func TestCheckoutRequiresAuthentication(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-arroz", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(asOperator(context.Background()), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(asOperator(context.Background()), domain.CheckoutRequest{
		PaymentMethod: "CHEQUE",
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-arroz", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCheckoutRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(asOperator(context.Background()), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-arroz", Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCheckoutUnknownProduct(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(asOperator(context.Background()), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-nope", Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckoutInactiveProduct(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(asOperator(context.Background()), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-inativo", Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

// A 10-unit sale of a tax-free product priced at R$ 100,00 must total exactly
// R$ 1.000,00 and leave the product with zero stock.
func TestCheckoutPricingDrainsStock(t *testing.T) {
	svc, repo := newTestService()
	ctx := asManager(context.Background())

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Code:              "PRD-TESTE",
		Name:              "Produto Teste",
		CostPriceCents:    6000,
		SellingPriceCents: 10000,
		TaxRatePercent:    0,
		InitialStock:      10,
	})
	require.NoError(t, err)

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: product.ID, Quantity: 10}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100000), resp.SubtotalCents)
	assert.Equal(t, int64(0), resp.TaxCents)
	assert.Equal(t, int64(100000), resp.TotalCents)
	assert.Regexp(t, `^ORD-\d{6}$`, resp.OrderNumber)

	rows, err := repo.ListStockRows(ctx, product.ID)
	require.NoError(t, err)
	total := 0
	for _, row := range rows {
		total += row.Quantity
	}
	assert.Equal(t, 0, total)
}

func TestCheckoutTaxAndDiscount(t *testing.T) {
	svc, _ := newTestService()

	// prd-cafe: 1890 cents, 5% tax. 2 units: subtotal 3780, tax 189.
	resp, err := svc.Checkout(asOperator(context.Background()), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentPix,
		DiscountCents: 100,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-cafe", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3780), resp.SubtotalCents)
	assert.Equal(t, int64(189), resp.TaxCents)
	assert.Equal(t, int64(100), resp.DiscountCents)
	assert.Equal(t, int64(3869), resp.TotalCents)
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	svc, repo := newTestService()
	ctx := asOperator(context.Background())

	// prd-feijao has 60 available; the second line fails, so the first must
	// not be deducted either.
	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items: []domain.CheckoutItemRequest{
			{ProductID: "prd-feijao", Quantity: 5},
			{ProductID: "prd-oleo", Quantity: 9999},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	var stockErr *store.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 25, stockErr.Available)
	assert.Equal(t, 9999, stockErr.Requested)

	rows, err := repo.ListStockRows(ctx, "prd-feijao")
	require.NoError(t, err)
	assert.Equal(t, 60, rows[0].Quantity)

	page, err := svc.ListStockMovements(asAdmin(context.Background()), "", "", "", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

// Two cart lines for the same product are merged before the availability
// check, so the sale deducts once with the combined quantity.
func TestCheckoutMergesDuplicateLines(t *testing.T) {
	svc, repo := newTestService()
	ctx := asOperator(context.Background())

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items: []domain.CheckoutItemRequest{
			{ProductID: "prd-feijao", Quantity: 2},
			{ProductID: "prd-feijao", Quantity: 3},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	assert.Equal(t, 5, resp.Items[0].Quantity)
	assert.Equal(t, int64(4945), resp.Items[0].TotalPriceCents)
	assert.Equal(t, int64(4945), resp.TotalCents)

	rows, err := repo.ListStockRows(ctx, "prd-feijao")
	require.NoError(t, err)
	assert.Equal(t, 55, rows[0].Quantity)

	page, err := svc.ListStockMovements(asAdmin(context.Background()), "prd-feijao", "", "", 1, 50)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.Movements[0].Quantity)
}

// Split lines must not dodge the stock check: 25+10 of prd-oleo against 25
// available is rejected as one 35-unit request and nothing is deducted.
func TestCheckoutDuplicateLinesCannotOversell(t *testing.T) {
	svc, repo := newTestService()
	ctx := asOperator(context.Background())

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items: []domain.CheckoutItemRequest{
			{ProductID: "prd-oleo", Quantity: 25},
			{ProductID: "prd-oleo", Quantity: 10},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	var stockErr *store.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 25, stockErr.Available)
	assert.Equal(t, 35, stockErr.Requested)

	rows, err := repo.ListStockRows(ctx, "prd-oleo")
	require.NoError(t, err)
	assert.Equal(t, 25, rows[0].Quantity)

	page, err := svc.ListStockMovements(asAdmin(context.Background()), "prd-oleo", "", "", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

// prd-arroz carries two stock rows: deposito (30 units, older) and loja
// (50 units, 5 reserved). A 40-unit sale drains the older row first.
func TestCheckoutDeductsOldestRowFirst(t *testing.T) {
	svc, repo := newTestService()
	ctx := asOperator(context.Background())

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-arroz", Quantity: 40}},
	})
	require.NoError(t, err)

	rows, err := repo.ListStockRows(ctx, "prd-arroz")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "deposito", rows[0].Location)
	assert.Equal(t, 0, rows[0].Quantity)
	assert.Equal(t, 40, rows[1].Quantity)
}

func TestCheckoutRecordsOneMovementPerItem(t *testing.T) {
	svc, _ := newTestService()
	ctx := asOperator(context.Background())

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items: []domain.CheckoutItemRequest{
			{ProductID: "prd-arroz", Quantity: 40},
			{ProductID: "prd-feijao", Quantity: 2},
		},
	})
	require.NoError(t, err)

	page, err := svc.ListStockMovements(asAdmin(context.Background()), "", "", domain.MovementOut, 1, 50)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	for _, m := range page.Movements {
		assert.Equal(t, domain.MovementOut, m.Type)
		assert.Contains(t, m.Reason, resp.OrderNumber)
	}
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	svc, repo := newTestService()
	ctx := asOperator(context.Background())

	req := domain.CheckoutRequest{
		IdempotencyKey: "idem-1",
		PaymentMethod:  domain.PaymentCash,
		Items:          []domain.CheckoutItemRequest{{ProductID: "prd-leite", Quantity: 3}},
	}

	first, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	second, err := svc.Checkout(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.True(t, second.Replayed)

	rows, err := repo.ListStockRows(ctx, "prd-leite")
	require.NoError(t, err)
	assert.Equal(t, 77, rows[0].Quantity)
}

func checkoutWithAmount(t *testing.T, svc *Service, ctx context.Context, method string, amountCents int64) {
	t.Helper()
	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: method,
		Items: []domain.CheckoutItemRequest{
			{ProductID: "prd-arroz", Quantity: 1, UnitPriceCents: amountCents},
		},
	})
	require.NoError(t, err)
}

// Expected 500/300/200, counted 505/300/195. The channel
// differences cancel out, so the closing balances and raises no alert.
func TestCloseCashBalancedAcrossChannels(t *testing.T) {
	svc, _ := newTestService()
	ctx := asOperator(context.Background())

	checkoutWithAmount(t, svc, ctx, domain.PaymentCash, 50000)
	checkoutWithAmount(t, svc, ctx, domain.PaymentCreditCard, 30000)
	checkoutWithAmount(t, svc, ctx, domain.PaymentPix, 20000)

	closing, err := svc.CloseCash(ctx, domain.CashClosingRequest{
		CashCountedCents: 50500,
		CardCountedCents: 30000,
		PixCountedCents:  19500,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(50000), closing.CashExpectedCents)
	assert.Equal(t, int64(30000), closing.CardExpectedCents)
	assert.Equal(t, int64(20000), closing.PixExpectedCents)
	assert.Equal(t, int64(500), closing.CashDifferenceCents)
	assert.Equal(t, int64(0), closing.CardDifferenceCents)
	assert.Equal(t, int64(-500), closing.PixDifferenceCents)
	assert.Equal(t, int64(0), closing.TotalDifferenceCents)
	assert.False(t, closing.HasAlert)
	assert.Equal(t, domain.ClosingStatusClosed, closing.Status)
}

// Spec'd alert path: counted 500/300/210 against 500/300/200 leaves the till
// R$ 10,00 over, which is past the R$ 5,00 threshold.
func TestCloseCashOverageRaisesAlert(t *testing.T) {
	svc, _ := newTestService()
	ctx := asOperator(context.Background())

	checkoutWithAmount(t, svc, ctx, domain.PaymentCash, 50000)
	checkoutWithAmount(t, svc, ctx, domain.PaymentDebitCard, 30000)
	checkoutWithAmount(t, svc, ctx, domain.PaymentDigitalWallet, 20000)

	closing, err := svc.CloseCash(ctx, domain.CashClosingRequest{
		CashCountedCents: 50000,
		CardCountedCents: 30000,
		PixCountedCents:  21000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), closing.TotalDifferenceCents)
	assert.True(t, closing.HasAlert)
}

func TestCloseCashExactThresholdDoesNotAlert(t *testing.T) {
	svc, _ := newTestService()
	ctx := asOperator(context.Background())

	checkoutWithAmount(t, svc, ctx, domain.PaymentCash, 50000)

	closing, err := svc.CloseCash(ctx, domain.CashClosingRequest{
		CashCountedCents: 50500,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500), closing.TotalDifferenceCents)
	assert.False(t, closing.HasAlert)
}

func TestCloseCashExcludesOffTillChannels(t *testing.T) {
	svc, _ := newTestService()
	ctx := asOperator(context.Background())

	checkoutWithAmount(t, svc, ctx, domain.PaymentCash, 10000)
	checkoutWithAmount(t, svc, ctx, domain.PaymentBankTransfer, 99900)
	checkoutWithAmount(t, svc, ctx, domain.PaymentOther, 12300)

	closing, err := svc.CloseCash(ctx, domain.CashClosingRequest{
		CashCountedCents: 10000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10000), closing.TotalExpectedCents)
	assert.Equal(t, int64(0), closing.TotalDifferenceCents)
	assert.False(t, closing.HasAlert)
}

func TestCloseCashRejectsNegativeCounts(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CloseCash(asOperator(context.Background()), domain.CashClosingRequest{
		CashCountedCents: -1,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListCashClosingsAdminOnly(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CloseCash(asOperator(context.Background()), domain.CashClosingRequest{})
	require.NoError(t, err)

	_, err = svc.ListCashClosings(asOperator(context.Background()))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ListCashClosings(asManager(context.Background()))
	assert.ErrorIs(t, err, ErrForbidden)

	closings, err := svc.ListCashClosings(asAdmin(context.Background()))
	require.NoError(t, err)
	require.Len(t, closings, 1)
	assert.Equal(t, "operador", closings[0].ClosedBy)
}

func TestAdjustStockRequiresElevatedRole(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.AdjustStock(asOperator(context.Background()), domain.StockAdjustRequest{
		ProductID:   "prd-feijao",
		NewQuantity: 10,
		Reason:      "contagem",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdjustStockRecordsMovement(t *testing.T) {
	svc, _ := newTestService()
	ctx := asManager(context.Background())

	result, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID:   "prd-feijao",
		NewQuantity: 50,
		Reason:      "contagem fisica",
	})
	require.NoError(t, err)

	assert.Equal(t, 60, result.PreviousStock)
	assert.Equal(t, 50, result.NewStock)
	assert.Equal(t, -10, result.Difference)

	page, err := svc.ListStockMovements(asAdmin(context.Background()), "prd-feijao", "", domain.MovementAdjustment, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Movements[0].Quantity)
	assert.Contains(t, page.Movements[0].Reason, "contagem fisica")
}

func TestStockMovementsOperatorSeesOnlyOwn(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Checkout(asOperator(context.Background()), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-refri", Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = svc.Checkout(WithActor(context.Background(), domain.Actor{Username: "outro", Role: domain.RoleOperator}), domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-refri", Quantity: 1}},
	})
	require.NoError(t, err)

	page, err := svc.ListStockMovements(asOperator(context.Background()), "", "", "", 1, 50)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "operador", page.Movements[0].UserID)

	page, err = svc.ListStockMovements(asAdmin(context.Background()), "", "", "", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestLowStockAlerts(t *testing.T) {
	svc, _ := newTestService()
	ctx := asManager(context.Background())

	_, err := svc.ListLowStockProducts(asOperator(context.Background()))
	assert.ErrorIs(t, err, ErrForbidden)

	// Drop feijao (min 15) to 12 to trip the alert.
	_, err = svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID:   "prd-feijao",
		NewQuantity: 12,
		Reason:      "quebra",
	})
	require.NoError(t, err)

	alerts, err := svc.ListLowStockProducts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "PRD-FEIJAO", alerts[0].Code)
	assert.Equal(t, 12, alerts[0].TotalStock)
}

func TestSearchProductsRanking(t *testing.T) {
	svc, _ := newTestService()
	ctx := asManager(context.Background())

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Code:              "CAFE",
		Name:              "Cafe Soluvel",
		SellingPriceCents: 990,
		InitialStock:      5,
	})
	require.NoError(t, err)

	results, err := svc.SearchProducts(ctx, "cafe")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	// Exact code match outranks the substring match on PRD-CAFE.
	assert.Equal(t, "CAFE", results[0].Code)
}

func TestDashboardKPIAfterSale(t *testing.T) {
	svc, _ := newTestService()
	ctx := asOperator(context.Background())

	// prd-leite: sells 599, costs 389. Two units: sales 1198, profit 420.
	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-leite", Quantity: 2}},
	})
	require.NoError(t, err)

	kpi, err := svc.DashboardKPI(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1198), kpi.TodaySalesCents)
	assert.Equal(t, int64(420), kpi.TodayProfitCents)
	assert.Equal(t, 1, kpi.TotalOrders)
}

func TestDashboardSalesSevenDaySeries(t *testing.T) {
	svc, _ := newTestService()
	ctx := asOperator(context.Background())

	// prd-leite, two units: today's bucket gets 1198, the six prior days zero.
	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.CheckoutItemRequest{{ProductID: "prd-leite", Quantity: 2}},
	})
	require.NoError(t, err)

	series, err := svc.DashboardSales(ctx)
	require.NoError(t, err)
	require.Len(t, series.Labels, 7)
	require.Len(t, series.DataCents, 7)

	now := time.Now().UTC()
	assert.Equal(t, now.AddDate(0, 0, -6).Format("02/01"), series.Labels[0])
	assert.Equal(t, now.Format("02/01"), series.Labels[6])
	for i := 0; i < 6; i++ {
		assert.Equal(t, int64(0), series.DataCents[i])
	}
	assert.Equal(t, int64(1198), series.DataCents[6])
}

func TestTopProductsRankedByQuantity(t *testing.T) {
	svc, _ := newTestService()
	ctx := asOperator(context.Background())

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentCash,
		Items: []domain.CheckoutItemRequest{
			{ProductID: "prd-feijao", Quantity: 3},
			{ProductID: "prd-leite", Quantity: 2},
		},
	})
	require.NoError(t, err)

	top, err := svc.TopProducts(ctx)
	require.NoError(t, err)
	require.Len(t, top, 2)

	assert.Equal(t, "prd-feijao", top[0].ProductID)
	assert.Equal(t, 3, top[0].Quantity)
	assert.Equal(t, int64(2967), top[0].RevenueCents)

	assert.Equal(t, "prd-leite", top[1].ProductID)
	assert.Equal(t, 2, top[1].Quantity)
	assert.Equal(t, int64(1198), top[1].RevenueCents)

	_, err = svc.TopProducts(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := asAdmin(context.Background())

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "sem codigo", SellingPriceCents: 100})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Code: "X", Name: "Y", SellingPriceCents: 100, TaxRatePercent: 150})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateProduct(asOperator(context.Background()), domain.ProductCreateRequest{Code: "X", Name: "Y", SellingPriceCents: 100})
	assert.ErrorIs(t, err, ErrForbidden)
}
