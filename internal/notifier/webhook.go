package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSink posts a JSON payload describing a high-urgency ticket to a
// single configured URL.
type WebhookSink struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSink creates a webhook sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		httpClient: &http.Client{Timeout: sendTimeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

type webhookPayload struct {
	TenantID   string `json:"tenant_id"`
	ExternalID string `json:"external_id"`
	CustomerID string `json:"customer_id"`
	Subject    string `json:"subject"`
	Urgency    string `json:"urgency"`
	Sentiment  string `json:"sentiment"`
	Status     string `json:"status"`
	UpdatedAt  string `json:"updated_at"`
}

// Send posts t to the configured webhook URL. A non-2xx response is
// reported as an error so the pool's retry/backoff path engages.
func (s *WebhookSink) Send(ctx context.Context, t Task) error {
	payload := webhookPayload{
		TenantID:   t.TenantID,
		ExternalID: t.Ticket.ExternalID,
		CustomerID: t.Ticket.CustomerID,
		Subject:    t.Ticket.Subject,
		Urgency:    string(t.Ticket.Urgency),
		Sentiment:  string(t.Ticket.Sentiment),
		Status:     t.Ticket.Status,
		UpdatedAt:  t.Ticket.UpdatedAt.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SendError{StatusCode: resp.StatusCode, Err: fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)}
	}
	return nil
}
