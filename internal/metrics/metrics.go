package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_checkouts_total",
		Help: "Total number of completed checkouts",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CheckoutAmountCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_checkout_amount_cents_total",
		Help: "Gross value of completed checkouts in cents",
	})

	CashClosingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_cash_closings_total",
		Help: "Total number of cash closings recorded",
	})

	CashClosingAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_cash_closing_alerts_total",
		Help: "Cash closings whose total difference exceeded the alert threshold",
	})

	StockAdjustmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_stock_adjustments_total",
		Help: "Total number of manual stock adjustments",
	})

	ReceiptDeliveriesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_receipt_deliveries_failed_total",
		Help: "Receipt notifications that could not be delivered",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
