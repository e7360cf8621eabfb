package mail

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

// Message is a single templated transactional mail.
type Message struct {
	ToEmail     string
	ToName      string
	Subject     string
	TemplateKey string
	Payload     map[string]any
}

// Client talks to the transactional mail API.
type Client struct {
	endpoint string
	apiKey   string
	from     string
	fromName string
	http     *http.Client
}

// Options configure a mail API client.
type Options struct {
	Endpoint    string
	APIKey      string
	FromAddress string
	FromName    string
	Timeout     time.Duration
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

// NewClient validates the mail API settings and returns a client.
func NewClient(opts Options) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("mail: endpoint is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("mail: api key is required")
	}
	if strings.TrimSpace(opts.FromAddress) == "" {
		return nil, errors.New("mail: sender address is required")
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
		from:     strings.TrimSpace(opts.FromAddress),
		fromName: strings.TrimSpace(opts.FromName),
		http:     httpClient,
	}, nil
}

// Send submits the mail for delivery.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return errors.New("mail: recipient address is required")
	}
	if strings.TrimSpace(msg.TemplateKey) == "" {
		return errors.New("mail: template key is required")
	}

	body := map[string]any{
		"from":     map[string]string{"email": c.from, "name": c.fromName},
		"to":       map[string]string{"email": strings.TrimSpace(msg.ToEmail), "name": strings.TrimSpace(msg.ToName)},
		"subject":  msg.Subject,
		"template": msg.TemplateKey,
	}
	if len(msg.Payload) > 0 {
		body["variables"] = msg.Payload
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("mail: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("mail: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mail: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail: api status %d: %s", resp.StatusCode, drainError(resp.Body))
	}
	return nil
}

func drainError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	return strings.TrimSpace(string(data))
}
