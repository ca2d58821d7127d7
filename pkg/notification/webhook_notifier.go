package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookNotifier 以JSON POST向第三方端点投递事件
type WebhookNotifier struct {
	client *http.Client
}

// webhookPayload 推送载荷
type webhookPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	VIN       string `json:"vin"`
	CommandID string `json:"command_id,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewWebhookNotifier 创建通知器
func NewWebhookNotifier(client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookNotifier{client: client}
}

// Post 投递一个事件，返回HTTP状态码；非2xx视为失败
func (n *WebhookNotifier) Post(ctx context.Context, endpoint NotificationEndpoint, event *NotificationEvent) (int, error) {
	body, err := json.Marshal(webhookPayload{
		EventID:   event.EventID,
		EventType: event.EventType,
		VIN:       event.VIN,
		CommandID: event.CommandID,
		Owner:     event.Owner,
		Subject:   event.Subject,
		Message:   event.Message,
		Timestamp: event.Timestamp.Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	if endpoint.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, endpoint.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// 幂等键：使用事件ID
	req.Header.Set("Idempotency-Key", event.EventID)
	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
