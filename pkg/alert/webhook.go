package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

// SignatureHeader carries the HMAC of the request body.
const SignatureHeader = "X-Signature-256"

// Webhook posts the digest as JSON to a generic HTTP endpoint, signed with
// HMAC-SHA256 when a secret is set.
type Webhook struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhook creates a new generic webhook notifier.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: newHTTPClient(),
		url:    url,
		secret: secret,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}
	header := http.Header{}
	header.Set("User-Agent", "sentradar/1.0")
	if n.RunID != "" {
		header.Set("X-Sentradar-Run", n.RunID)
	}
	if w.secret != "" {
		header.Set(SignatureHeader, Sign(w.secret, body))
	}
	return post(ctx, w.client, w.url, body, header)
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value in constant time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
