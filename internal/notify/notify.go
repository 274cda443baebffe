package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"caixaforte/backend/internal/domain"
)

// Notifier delivers a receipt after checkout. Delivery runs outside the sale
// transaction; failures must never fail the sale.
type Notifier interface {
	SendReceipt(ctx context.Context, n domain.ReceiptNotification) error
}

// Noop is used when no webhook URL is configured.
type Noop struct{}

func (Noop) SendReceipt(context.Context, domain.ReceiptNotification) error { return nil }

// WebhookNotifier POSTs the receipt payload to an external delivery service
// (WhatsApp/email gateway).
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

func (w *WebhookNotifier) SendReceipt(ctx context.Context, n domain.ReceiptNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("receipt webhook returned %d", resp.StatusCode)
	}
	w.logger.Info("receipt queued",
		zap.String("order_number", n.OrderNumber),
		zap.Bool("has_phone", n.CustomerPhone != ""),
		zap.Bool("has_email", n.CustomerEmail != ""))
	return nil
}
