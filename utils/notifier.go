package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// WebhookNotifier posts internal-team alerts to a chat webhook
// (Slack-compatible payload). When no webhook URL is configured the alert
// only goes to the log, which is the documented behavior for notification
// steps.
type WebhookNotifier struct {
	URL    string
	Logger *logrus.Logger
}

func NewWebhookNotifier(url string, logger *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Logger: logger}
}

func (n *WebhookNotifier) Notify(subject, body string) error {
	n.Logger.WithFields(logrus.Fields{
		"subject": subject,
		"body":    body,
	}).Info("Internal notification")

	if n.URL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s*\n%s", subject, body),
	})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := fasthttp.DoTimeout(req, resp, 10*time.Second); err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
