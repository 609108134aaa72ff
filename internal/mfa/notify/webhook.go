package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// WebhookNotifier POSTs codes as JSON to a delivery gateway (SMS/email relay).
type WebhookNotifier struct {
	URL        string
	HTTPClient *http.Client
}

type webhookPayload struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

// NewWebhookNotifier returns a notifier that posts to url with a 15s timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:        url,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Deliver posts {"account_id","code"} and treats any non-2xx status as a failed delivery.
// The response body is included in the error, the code is not.
func (n *WebhookNotifier) Deliver(ctx context.Context, accountID, code string) error {
	if n.URL == "" {
		return fmt.Errorf("notify: webhook URL not configured")
	}
	raw, err := json.Marshal(webhookPayload{AccountID: accountID, Code: code})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: webhook failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
