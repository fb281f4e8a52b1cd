package alert

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// WebhookSink HTTP 回调出口，报警以 JSON POST 到配置的 URL
type WebhookSink struct {
	client *resty.Client
	url    string
}

// NewWebhookSink 创建 webhook sink（超时由分发层的 ctx 控制）
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		client: resty.New(),
		url:    url,
	}
}

func (s *WebhookSink) Name() string {
	return "webhook"
}

func (s *WebhookSink) Notify(ctx context.Context, n Notification) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(n.Payload()).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
