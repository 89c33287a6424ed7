package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/stockbook/stockbook/internal/config"
)

// Notifier delivers operational alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Alert is the JSON body posted to the webhook.
type Alert struct {
	Kind     string    `json:"kind"`
	Summary  string    `json:"summary"`
	Details  any       `json:"details,omitempty"`
	RaisedAt time.Time `json:"raisedAt"`
}

// Client is a resty-backed implementation of Notifier.
type Client struct {
	httpClient *resty.Client
	url        string
}

// NewClient builds a webhook client for cfg.WebhookURL.
func NewClient(cfg config.AlertsConfig) *Client {
	restyClient := resty.New()
	restyClient.
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Client{
		httpClient: restyClient,
		url:        cfg.WebhookURL,
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Notify posts the alert and fails on any non-2xx response.
func (c *Client) Notify(ctx context.Context, alert Alert) error {
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		SetError(apiErr).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		message := apiErr.Message
		if message == "" {
			message = apiErr.Error
		}
		return fmt.Errorf("alert webhook error: status=%d, message=%s", resp.StatusCode(), message)
	}
	return nil
}
