// Package notify escalates flagged audit entries to a human via a webhook.
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

type Notifier struct {
	client     *resty.Client
	webhookURL string
}

// New builds a notifier. An empty webhook URL yields a no-op notifier, so
// callers never have to nil-check.
func New(webhookURL string) *Notifier {
	return &Notifier{
		client:     resty.New().SetTimeout(10 * time.Second),
		webhookURL: webhookURL,
	}
}

type escalation struct {
	Token   string `json:"token"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// Escalate delivers the entry to the webhook. Delivery is best-effort: the
// entry is already persisted, so a failed POST only costs immediacy.
func (n *Notifier) Escalate(ctx context.Context, token, message string) {
	if n.webhookURL == "" {
		return
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(escalation{
			Token:   token,
			Message: message,
			Source:  "squid-bot",
		}).
		Post(n.webhookURL)
	if err != nil {
		logrus.Warnf("failed to escalate log %s: %v", token, err)
		return
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		logrus.Warnf("escalation webhook returned %d for log %s", resp.StatusCode(), token)
	}
}
