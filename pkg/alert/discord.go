package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	colorPositive = 0x2ECC71
	colorMixed    = 0xF1C40F
	colorNegative = 0xE74C3C
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     newHTTPClient(),
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var fields []map[string]any
	if len(n.Top) > 0 {
		fields = append(fields,
			map[string]any{"name": "Most positive", "value": lines(n.Top, "**%s** %.1f%% (%d)"), "inline": true},
			map[string]any{"name": "Least positive", "value": lines(n.Bottom, "**%s** %.1f%% (%d)"), "inline": true},
		)
	}
	if len(n.Shifts) > 0 {
		fields = append(fields, map[string]any{"name": "Shifts since last run", "value": shiftLines(n.Shifts)})
	}
	if len(n.Warnings) > 0 {
		fields = append(fields, map[string]any{"name": "Warnings", "value": warningLines(n.Warnings, 5)})
	}

	embed := map[string]any{
		"title":       n.Title,
		"description": fmt.Sprintf("**Source:** %s | **Avg score:** %+.3f\n\n%s", n.Source, n.Overall.AvgScore, n.Body),
		"color":       embedColor(n.Overall.PositivePct, n.Overall.NegativePct()),
		"fields":      fields,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return post(ctx, d.client, d.webhookURL, body, nil)
}

func embedColor(pos, neg float64) int {
	switch {
	case pos >= 2*neg && pos > 0:
		return colorPositive
	case neg >= 2*pos && neg > 0:
		return colorNegative
	}
	return colorMixed
}
