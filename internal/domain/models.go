package domain

import "time"

// All monetary values are integer cents (centavos). Floating point is only
// used for tax rates, which are percentages.

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleOperator = "operator"
)

const (
	PaymentCash          = "CASH"
	PaymentCreditCard    = "CREDIT_CARD"
	PaymentDebitCard     = "DEBIT_CARD"
	PaymentBankTransfer  = "BANK_TRANSFER"
	PaymentDigitalWallet = "DIGITAL_WALLET"
	PaymentPix           = "PIX"
	PaymentOther         = "OTHER"
)

// ValidPaymentMethod reports whether m is one of the accepted payment methods.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentBankTransfer,
		PaymentDigitalWallet, PaymentPix, PaymentOther:
		return true
	}
	return false
}

const (
	BucketCash = "cash"
	BucketCard = "card"
	BucketPix  = "pix"
)

// PaymentBucket maps a payment method to the till channel it settles in.
// Bank transfers and OTHER settle outside the till and return "".
func PaymentBucket(method string) string {
	switch method {
	case PaymentCash:
		return BucketCash
	case PaymentCreditCard, PaymentDebitCard:
		return BucketCard
	case PaymentPix, PaymentDigitalWallet:
		return BucketPix
	}
	return ""
}

const (
	MovementIn         = "IN"
	MovementOut        = "OUT"
	MovementAdjustment = "ADJUSTMENT"
	MovementTransfer   = "TRANSFER"
)

const (
	OrderStatusApproved  = "APPROVED"
	OrderStatusCancelled = "CANCELLED"

	PaymentStatusPaid = "PAID"

	TxStatusCompleted = "COMPLETED"

	ClosingStatusClosed = "CLOSED"
)

type Product struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Active            bool      `json:"active"`
	CostPriceCents    int64     `json:"costPriceCents"`
	SellingPriceCents int64     `json:"sellingPriceCents"`
	TaxRatePercent    float64   `json:"taxRatePercent"`
	MinStockLevel     int       `json:"minStockLevel"`
	TrackInventory    bool      `json:"trackInventory"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Stock is one location's quantity of a product. A product may have several
// rows; its available stock is the sum of quantity-reserved over all rows.
type Stock struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Location  string    `json:"location"`
	Quantity  int       `json:"quantity"`
	Reserved  int       `json:"reserved"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Stock) Available() int {
	return s.Quantity - s.Reserved
}

// StockMovement is the append-only audit trail of stock changes. Rows are
// never updated or deleted.
type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Type      string    `json:"type"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Reference string    `json:"reference,omitempty"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Order struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"orderNumber"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"paymentStatus"`
	SubtotalCents int64       `json:"subtotalCents"`
	DiscountCents int64       `json:"discountCents"`
	TaxCents      int64       `json:"taxCents"`
	TotalCents    int64       `json:"totalCents"`
	Notes         string      `json:"notes,omitempty"`
	CreatedBy     string      `json:"createdBy"`
	CreatedAt     time.Time   `json:"createdAt"`
	Items         []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	ProductID       string  `json:"productId"`
	ProductName     string  `json:"productName"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unitPriceCents"`
	UnitCostCents   int64   `json:"unitCostCents"`
	TaxRatePercent  float64 `json:"taxRatePercent"`
	TotalPriceCents int64   `json:"totalPriceCents"`
}

type Transaction struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"orderId"`
	PaymentMethod string    `json:"paymentMethod"`
	AmountCents   int64     `json:"amountCents"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference"`
	ProcessedBy   string    `json:"processedBy"`
	ProcessedAt   time.Time `json:"processedAt"`
}

// CashClosing is one blind till reconciliation. Rows are append-only.
type CashClosing struct {
	ID       string `json:"id"`
	ClosedBy string `json:"closedBy"`

	CashCountedCents  int64 `json:"cashCountedCents"`
	CardCountedCents  int64 `json:"cardCountedCents"`
	PixCountedCents   int64 `json:"pixCountedCents"`
	TotalCountedCents int64 `json:"totalCountedCents"`

	CashExpectedCents  int64 `json:"cashExpectedCents"`
	CardExpectedCents  int64 `json:"cardExpectedCents"`
	PixExpectedCents   int64 `json:"pixExpectedCents"`
	TotalExpectedCents int64 `json:"totalExpectedCents"`

	CashDifferenceCents  int64 `json:"cashDifferenceCents"`
	CardDifferenceCents  int64 `json:"cardDifferenceCents"`
	PixDifferenceCents   int64 `json:"pixDifferenceCents"`
	TotalDifferenceCents int64 `json:"totalDifferenceCents"`

	Notes     string    `json:"notes,omitempty"`
	Status    string    `json:"status"`
	HasAlert  bool      `json:"hasAlert"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actor is the server-verified principal attached to a request context. It is
// only ever built from a validated token, never from client-supplied fields.
type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type CheckoutItemRequest struct {
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents,omitempty"`
}

type CheckoutRequest struct {
	IdempotencyKey string                `json:"idempotencyKey"`
	Items          []CheckoutItemRequest `json:"items"`
	PaymentMethod  string                `json:"paymentMethod"`
	DiscountCents  int64                 `json:"discountCents,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	CustomerPhone  string                `json:"customerPhone,omitempty"`
	CustomerEmail  string                `json:"customerEmail,omitempty"`
}

type CheckoutResponse struct {
	OrderID       string      `json:"orderId"`
	OrderNumber   string      `json:"orderNumber"`
	SubtotalCents int64       `json:"subtotalCents"`
	TaxCents      int64       `json:"taxCents"`
	DiscountCents int64       `json:"discountCents"`
	TotalCents    int64       `json:"totalCents"`
	Items         []OrderItem `json:"items"`
	ReceiptQueued bool        `json:"receiptQueued"`
	Replayed      bool        `json:"replayed,omitempty"`
}

type CashClosingRequest struct {
	CashCountedCents int64  `json:"cashCountedCents"`
	CardCountedCents int64  `json:"cardCountedCents"`
	PixCountedCents  int64  `json:"pixCountedCents"`
	Notes            string `json:"notes,omitempty"`
}

type StockAdjustRequest struct {
	ProductID   string `json:"productId"`
	NewQuantity int    `json:"newQuantity"`
	Reason      string `json:"reason"`
}

type StockAdjustResponse struct {
	ProductID     string `json:"productId"`
	ProductName   string `json:"productName"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
	Difference    int    `json:"difference"`
}

type StockMovementFilter struct {
	ProductID string
	UserID    string
	Type      string
	Since     time.Time
	Offset    int
	Limit     int
}

type StockMovementPage struct {
	Movements   []StockMovement `json:"data"`
	Page        int             `json:"page"`
	Limit       int             `json:"limit"`
	Total       int             `json:"total"`
	TotalPages  int             `json:"totalPages"`
	HasNextPage bool            `json:"hasNextPage"`
	HasPrevPage bool            `json:"hasPrevPage"`
}

type ProductSearchResult struct {
	ID                string `json:"id"`
	Code              string `json:"code"`
	Name              string `json:"name"`
	SellingPriceCents int64  `json:"sellingPriceCents"`
	TotalStock        int    `json:"stock"`
	AvailableStock    int    `json:"availableStock"`
}

type LowStockProduct struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	TotalStock    int    `json:"totalStock"`
	MinStockLevel int    `json:"minStockLevel"`
}

type ProductCreateRequest struct {
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	CostPriceCents    int64   `json:"costPriceCents"`
	SellingPriceCents int64   `json:"sellingPriceCents"`
	TaxRatePercent    float64 `json:"taxRatePercent"`
	MinStockLevel     int     `json:"minStockLevel"`
	InitialStock      int     `json:"initialStock"`
}

type DashboardKPI struct {
	TodaySalesCents  int64 `json:"todaySalesCents"`
	TodayProfitCents int64 `json:"todayProfitCents"`
	LowStockCount    int   `json:"lowStockCount"`
	TotalOrders      int   `json:"totalOrders"`
}

// SalesSeries is the daily sales chart feed: one label (dd/MM) and one total
// per day, oldest first.
type SalesSeries struct {
	Labels    []string `json:"labels"`
	DataCents []int64  `json:"data"`
}

type TopProduct struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	RevenueCents int64  `json:"revenueCents"`
}

// ReceiptNotification is the payload handed to the receipt notifier after a
// successful checkout.
type ReceiptNotification struct {
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	TotalCents    int64  `json:"totalCents"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}
