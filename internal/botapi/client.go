// ABOUTME: Generic client for the Telegram Bot API.
// ABOUTME: Any action name is dispatched through one POST endpoint with status classification.

package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/dolarbot/internal/config"
	"github.com/2389/dolarbot/internal/metrics"
)

// Sender is what publishers and the webhook interpreter need from the client.
type Sender interface {
	Send(ctx context.Context, action string, params *Params) (json.RawMessage, error)
}

// Client calls <base>/bot<token>/<action>. It does not retry.
type Client struct {
	baseURL string
	token   string
	botID   int64
	http    *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records every call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the parent logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l.With("component", "botapi") }
}

// New creates a client. The token must look like "<bot id>:<secret>".
func New(baseURL, token string, opts ...Option) (*Client, error) {
	botID, err := config.BotIDFromToken(token)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		botID:   botID,
		http:    &http.Client{Timeout: config.DefaultHTTPTimeout},
		logger:  slog.Default().With("component", "botapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BotID is the numeric prefix of the token, the bot's own user id.
func (c *Client) BotID() int64 {
	return c.botID
}

// Send calls action and returns the decoded response body.
// An empty payload fails with ErrEmptyPayload before any request is made.
func (c *Client) Send(ctx context.Context, action string, params *Params) (json.RawMessage, error) {
	if params.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", action, ErrEmptyPayload)
	}

	body, err := c.Execute(ctx, action, params)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(body)
	if !gjson.Valid(trimmed) || trimmed == "null" {
		return nil, fmt.Errorf("%s: %w", action, ErrInvalidResponse)
	}
	return json.RawMessage(trimmed), nil
}

// Execute performs one POST and returns the raw body of a 2xx answer.
// Other status families come back as *StatusError.
func (c *Client) Execute(ctx context.Context, action string, params *Params) (string, error) {
	req, err := encode(action, params, c.logger)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", action, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(action), bytes.NewReader(req.body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", redact(err, c.token))
	}
	httpReq.Header.Set("Content-Type", req.contentType)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.ObserveAPICall(action, "transport_error", time.Since(start))
		return "", fmt.Errorf("calling %s: %w", action, redact(err, c.token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveAPICall(action, "transport_error", elapsed)
		return "", fmt.Errorf("reading %s response: %w", action, err)
	}

	class, ok := classify(resp.StatusCode)
	if !ok {
		c.metrics.ObserveAPICall(action, class.String(), elapsed)
		c.logger.Warn("remote action failed",
			"action", action,
			"status", resp.StatusCode,
			"multipart", req.isMultipart(),
		)
		return "", &StatusError{Class: class, StatusCode: resp.StatusCode, Action: action, Body: string(raw)}
	}

	c.metrics.ObserveAPICall(action, "ok", elapsed)
	c.logger.Debug("remote action done", "action", action, "status", resp.StatusCode, "duration", elapsed)
	return string(raw), nil
}

func (c *Client) endpoint(action string) string {
	return c.baseURL + "/bot" + c.token + "/" + action
}

// redact strips the token from URL errors so it never reaches the logs.
func redact(err error, token string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, token, "<token>")
	}
	return err
}

// Result returns the "result" member of a Bot API answer.
func Result(raw json.RawMessage) gjson.Result {
	return gjson.GetBytes(raw, "result")
}

var _ Sender = (*Client)(nil)
