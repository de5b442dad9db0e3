package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"gatekeeper/internal/platform/config"
	id "gatekeeper/pkg/domain"
)

// HTTPSender talks to the WhatsApp Cloud API. Failure classification is the
// breaker's job; this client only reports success or error.
type HTTPSender struct {
	cfg    config.WhatsAppConfig
	client *http.Client
}

func NewHTTPSender(cfg config.WhatsAppConfig) *HTTPSender {
	return &HTTPSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *HTTPSender) Send(ctx context.Context, tenantID id.TenantID, msg Message) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.To,
		"type":              "text",
		"text":              map[string]string{"body": msg.Body},
	})
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.cfg.BaseURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("send message: provider returned %d", resp.StatusCode)
	}

	var body struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	if len(body.Messages) == 0 {
		return "", fmt.Errorf("provider response carried no message id")
	}
	return body.Messages[0].ID, nil
}
