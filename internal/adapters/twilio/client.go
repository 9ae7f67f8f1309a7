// Package twilio wraps the Twilio Messages API used to deliver WhatsApp
// replies and admin alerts.
package twilio

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://api.twilio.com"

// Client is a thin Twilio Messages API client with bounded retries.
type Client struct {
	httpClient *resty.Client
	accountSID string
	maxRetries int
	baseDelay  time.Duration // first backoff step after a 429
	retryDelay time.Duration // fixed delay for non-rate-limit failures
}

// Config holds Twilio client settings. BaseURL and the delays exist so tests
// can point the client at a local server without sleeping for real.
type Config struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	Timeout    time.Duration
	BaseDelay  time.Duration
	RetryDelay time.Duration
}

type apiResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// NewClient creates a new Twilio client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetTimeout(cfg.Timeout)

	log.Info().Str("baseURL", cfg.BaseURL).Msg("Twilio client configured")

	return &Client{
		httpClient: httpClient,
		accountSID: cfg.AccountSID,
		maxRetries: 3,
		baseDelay:  cfg.BaseDelay,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// SendWhatsApp delivers one message through the gateway. Rate-limit responses
// retry with exponential backoff, the delay doubling per attempt; any other
// failure retries after a fixed short delay. After three attempts the last
// error is returned and the caller decides what to log.
func (c *Client) SendWhatsApp(ctx context.Context, to, from, body string) error {
	url := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.accountSID)
	formData := map[string]string{
		"To":   "whatsapp:" + to,
		"From": "whatsapp:" + from,
		"Body": body,
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetFormData(formData).
			SetResult(&apiResponse{}).
			Post(url)

		if err == nil && !resp.IsError() {
			result := resp.Result().(*apiResponse)
			log.Debug().Str("sid", result.Sid).Str("to", to).Str("status", result.Status).Msg("WhatsApp message accepted by Twilio")
			return nil
		}

		var delay time.Duration
		if err != nil {
			lastErr = fmt.Errorf("twilio request failed: %w", err)
			delay = c.retryDelay
		} else if resp.StatusCode() == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("twilio rate limited: status %s", resp.Status())
			// Doubles per attempt: base, 2*base, 4*base.
			delay = c.baseDelay << (attempt - 1)
		} else {
			lastErr = fmt.Errorf("twilio error: status %s, body: %s", resp.Status(), resp.String())
			delay = c.retryDelay
		}

		log.Warn().Err(lastErr).Int("attempt", attempt).Int("maxRetries", c.maxRetries).Str("to", to).Msg("WhatsApp send attempt failed")

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("whatsapp send to %s exhausted %d attempts: %w", to, c.maxRetries, lastErr)
}

// DownloadMedia fetches an inbound media attachment. Twilio media URLs require
// the same basic auth credentials as the Messages API.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(mediaURL)
	if err != nil {
		return nil, "", fmt.Errorf("media download failed: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("media download error: status %s", resp.Status())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}
