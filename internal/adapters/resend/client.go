// Package resend wraps the Resend transactional email API used for admin
// notifications.
package resend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://api.resend.com"

// Client is a minimal Resend API client.
type Client struct {
	httpClient *resty.Client
	from       string
}

// Config holds Resend client settings.
type Config struct {
	APIKey  string
	From    string
	BaseURL string
	Timeout time.Duration
}

type sendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// NewClient creates a new Resend client. A missing API key is a configuration
// choice, not an error: the notification service checks for a nil client and
// skips email dispatch.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("resend from address is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout)

	log.Info().Str("from", cfg.From).Msg("Resend client configured")

	return &Client{httpClient: httpClient, from: cfg.From}, nil
}

// SendEmail delivers one HTML email.
func (c *Client) SendEmail(ctx context.Context, to, subject, html string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sendPayload{From: c.from, To: []string{to}, Subject: subject, HTML: html}).
		SetResult(&sendResponse{}).
		Post("/emails")

	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("resend error: status %s, body: %s", resp.Status(), resp.String())
	}

	result := resp.Result().(*sendResponse)
	log.Debug().Str("emailID", result.ID).Str("to", to).Msg("Notification email accepted by Resend")
	return nil
}
