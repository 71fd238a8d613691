package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// WebhookSMSSender posts {"to", "body"} to an SMS gateway.
type WebhookSMSSender struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookSMSSender(url, token string, client *http.Client) *WebhookSMSSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSMSSender{url: strings.TrimSpace(url), token: strings.TrimSpace(token), client: client}
}

func (s *WebhookSMSSender) Send(ctx context.Context, to, body string) error {
	raw, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}
