package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Payload is the summary delivery body posted to the configured webhook.
type Payload struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
	Summary   string `json:"summary"`
}

// Poster delivers session summaries to an external automation webhook.
// Delivery is best-effort: callers log failures and move on.
type Poster struct {
	url    string
	client *http.Client
}

func NewPoster(url string) *Poster {
	return &Poster{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

// Configured reports whether a webhook URL is set. Post on an
// unconfigured poster is a silent no-op.
func (p *Poster) Configured() bool {
	return p != nil && p.url != ""
}

func (p *Poster) Post(ctx context.Context, payload Payload) error {
	if !p.Configured() {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("post summary: unexpected status %d", res.StatusCode)
	}
	return nil
}
