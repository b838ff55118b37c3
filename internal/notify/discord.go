package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Discord posts messages to a chat webhook. Delivery is attempted once;
// only 204 No Content counts as success.
type Discord struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// DiscordOption configures a Discord sink.
type DiscordOption func(*Discord)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) DiscordOption {
	return func(d *Discord) { d.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) DiscordOption {
	return func(d *Discord) { d.logger = l }
}

// NewDiscord creates a webhook sink for url.
func NewDiscord(url string, opts ...DiscordOption) *Discord {
	d := &Discord{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, message string) error {
	if d.url == "" {
		return errors.New("webhook url is not configured")
	}

	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	d.logger.Info("discord summary message sent")
	return nil
}
