package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DJune12138/Collection3/internal/ports"
)

// Webhook posts DingTalk-style text messages:
// {"msgtype":"text","text":{"content":"..."}}.
type Webhook struct {
	url    string
	client *http.Client
}

var _ ports.Alerter = (*Webhook)(nil)

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookMessage struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

type webhookReply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (w *Webhook) Send(ctx context.Context, a ports.Alert) error {
	body, err := json.Marshal(webhookMessage{MsgType: "text", Text: webhookText{Content: Format(a)}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("webhook: read reply: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	var reply webhookReply
	if len(data) > 0 && json.Unmarshal(data, &reply) == nil && reply.ErrCode != 0 {
		return fmt.Errorf("webhook: errcode %d: %s", reply.ErrCode, reply.ErrMsg)
	}
	return nil
}
