// Package notifier delivers formatted tweet messages to a chat webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/util"
)

const (
	maxSendRetries = 3
	// MaxMessageLength is the largest message body the webhook accepts.
	MaxMessageLength = 4000
)

// Client posts {"content": ...} payloads to a webhook URL.
type Client struct {
	webhookURL  string
	format      string
	language    string
	client      *http.Client
	rateLimiter *rate.Limiter
	retryBase   time.Duration
}

func New(webhookURL, format, language string) *Client {
	return &Client{
		webhookURL:  webhookURL,
		format:      format,
		language:    language,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		retryBase:   util.DefaultBackoffBase,
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.webhookURL != ""
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Send posts a single message. An empty webhook URL makes it a no-op.
func (c *Client) Send(ctx context.Context, content string) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(webhookPayload{Content: TruncateText(content, MaxMessageLength)})
	if err != nil {
		return err
	}

	return util.RetryWithBackoffBase(ctx, maxSendRetries, c.retryBase, func(attempt int) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("webhook status: %s, body: %s", resp.Status, string(respBody))

		backoff := retryBackoff(resp, attempt)
		if backoff == 0 {
			return util.Permanent(statusErr)
		}
		slog.Warn("Webhook send failed, retrying", "status", resp.StatusCode, "attempt", attempt+1)
		if resp.Header.Get("Retry-After") != "" {
			return util.RetryAfter(statusErr, backoff)
		}
		return statusErr
	})
}

// SendTweets formats tweets as a batch and sends each message in order.
// It stops at the first failure.
func (c *Client) SendTweets(ctx context.Context, tweets []models.Tweet) error {
	if !c.Enabled() {
		return nil
	}
	for i, msg := range FormatBatch(tweets, c.format, c.language) {
		if err := c.Send(ctx, msg); err != nil {
			return fmt.Errorf("message %d: %w", i+1, err)
		}
	}
	return nil
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the status is not retryable. 429 honours Retry-After in seconds.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return util.DefaultBackoffBase << attempt
	case resp.StatusCode >= 500:
		return util.DefaultBackoffBase << attempt
	default:
		return 0
	}
}
