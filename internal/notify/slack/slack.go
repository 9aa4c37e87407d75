// Package slack posts new-patient notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/erqueue/internal/notify"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

const httpTimeout = 10 * time.Second

// Notifier sends patient-in events to a Slack webhook. Other events are
// ignored.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
	now        func() time.Time
}

// New creates a new Slack notifier. If webhookURL is empty, Publish is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Publish posts a patient-in event to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Publish(ctx context.Context, ev notify.Event) error {
	if n.webhookURL == "" || ev.Type != notify.PatientIn {
		return nil
	}

	body, err := json.Marshal(buildMessage(ev, n.now()))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		n.logger.Warn(ctx, "slack webhook rejected message", "status", resp.StatusCode, "patient", ev.Number)
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(ev notify.Event, ts time.Time) map[string]any {
	return map[string]any{
		"text": fmt.Sprintf("New patient #%d (%s)", ev.Number, labelText(ev.Label)),
		"blocks": []map[string]any{
			headerBlock(ev),
			contextBlock(ts),
		},
	}
}

func headerBlock(ev notify.Event) map[string]any {
	text := fmt.Sprintf("%s Patient #%d: %s", labelEmoji(ev.Label), ev.Number, labelText(ev.Label))
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func contextBlock(ts time.Time) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("erqueue • %s • %s", notify.Channel, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func labelEmoji(l triage.Label) string {
	switch l {
	case triage.LabelEmergency:
		return "\U0001f534" // red circle
	case triage.LabelDelayed:
		return "\U0001f7e1" // yellow circle
	case triage.LabelMinor:
		return "\U0001f7e2" // green circle
	default:
		return "⚪" // white circle
	}
}

func labelText(l triage.Label) string {
	if l == "" {
		return "unlabelled"
	}
	return string(l)
}
