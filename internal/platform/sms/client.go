package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 8 * time.Second

// Message is a single outbound text message.
type Message struct {
	To   string
	Body string
}

// Client talks to the SMS gateway REST API.
type Client struct {
	endpoint string
	apiKey   string
	from     string
	http     *http.Client
}

// Options configure an SMS gateway client.
type Options struct {
	Endpoint   string
	APIKey     string
	FromNumber string
	Timeout    time.Duration
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

// NewClient validates the gateway settings and returns an SMS client.
func NewClient(opts Options) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("sms: endpoint is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("sms: api key is required")
	}
	if strings.TrimSpace(opts.FromNumber) == "" {
		return nil, errors.New("sms: sender number is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(opts.APIKey),
		from:     strings.TrimSpace(opts.FromNumber),
		http:     httpClient,
	}, nil
}

// Send submits the message and returns the gateway delivery identifier.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return "", errors.New("sms: recipient number is required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", errors.New("sms: message body is required")
	}

	payload, err := json.Marshal(map[string]string{
		"from":    c.from,
		"to":      to,
		"message": msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("sms: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sms: gateway status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("sms: decode response: %w", err)
	}
	return result.ID, nil
}

func drainError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	return strings.TrimSpace(string(data))
}
