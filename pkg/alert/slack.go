package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Slack sends notifications via Slack incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		client:     newHTTPClient(),
		webhookURL: webhookURL,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	// Block Kit: header, overall line, then one section per ranking end.
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": n.Title,
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Source:* %s | *Avg score:* %+.3f\n%s", n.Source, n.Overall.AvgScore, n.Body),
			},
		},
	}
	if len(n.Top) > 0 {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": "*Most positive*\n" + lines(n.Top, "%s: %.1f%% (%d)")},
				{"type": "mrkdwn", "text": "*Least positive*\n" + lines(n.Bottom, "%s: %.1f%% (%d)")},
			},
		})
	}
	if len(n.Shifts) > 0 {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "*Shifts since last run*\n" + shiftLines(n.Shifts)},
		})
	}
	if len(n.Warnings) > 0 {
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": ":warning: " + warningLines(n.Warnings, 5)},
			},
		})
	}

	body, err := json.Marshal(map[string]any{"blocks": blocks})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return post(ctx, s.client, s.webhookURL, body, nil)
}
