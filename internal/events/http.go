package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPSender posts events to an Inngest-compatible event API at {baseURL}/e/{key}.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender builds a sender for the given event API.
func NewHTTPSender(baseURL, eventKey string, timeout time.Duration) (*HTTPSender, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("event api base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid event api base url %q: %w", base, err)
	}
	if strings.TrimSpace(eventKey) == "" {
		return nil, fmt.Errorf("event key is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPSender{
		endpoint: base + "/e/" + url.PathEscape(eventKey),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPSender) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event %s: %w", event.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("event api returned %d for %s: %s", resp.StatusCode, event.Name, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
