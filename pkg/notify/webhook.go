package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"collabchat/internal/errors"
	"collabchat/internal/tracing"
)

const maxErrorBodyBytes = 512

// WebhookPusher posts notifications as JSON to an HTTP push relay
type WebhookPusher struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookPusher(url, token string, client *http.Client, timeout time.Duration) *WebhookPusher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &WebhookPusher{url: url, token: token, client: client}
}

func (p *WebhookPusher) Push(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	tracing.InjectHTTP(ctx, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.NewAPIError("push", p.url, http.StatusServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return errors.NewAPIError("push", p.url, resp.StatusCode,
			fmt.Errorf("push relay error: status %d, body: %s", resp.StatusCode, string(detail)))
	}
	return nil
}

func (p *WebhookPusher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
