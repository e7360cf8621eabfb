package push

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

// Sounds names the per-platform notification sounds attached to a send.
type Sounds struct {
	Android string
	IOS     string
}

// Notification is a single push delivery request. SendAfter, when set,
// asks the gateway to hold the notification until that instant.
type Notification struct {
	Recipients []string
	Title      string
	Message    string
	Data       map[string]any
	Sounds     Sounds
	SendAfter  *time.Time
}

// Client talks to the push gateway REST API.
type Client struct {
	endpoint string
	appID    string
	apiKey   string
	http     *http.Client
}

// Options configure a push gateway client.
type Options struct {
	Endpoint string
	AppID    string
	APIKey   string
	Timeout  time.Duration
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

// NewClient validates the gateway settings and returns a push client.
func NewClient(opts Options) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("push: endpoint is required")
	}
	if strings.TrimSpace(opts.AppID) == "" {
		return nil, errors.New("push: app id is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("push: api key is required")
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
		appID:    strings.TrimSpace(opts.AppID),
		apiKey:   strings.TrimSpace(opts.APIKey),
		http:     httpClient,
	}, nil
}

// Send submits the notification and returns the gateway delivery identifier.
func (c *Client) Send(ctx context.Context, n Notification) (string, error) {
	if len(n.Recipients) == 0 {
		return "", errors.New("push: at least one recipient is required")
	}
	if strings.TrimSpace(n.Message) == "" {
		return "", errors.New("push: message is required")
	}

	body := map[string]any{
		"app_id":                    c.appID,
		"include_external_user_ids": n.Recipients,
		"contents":                  map[string]string{"en": n.Message},
	}
	if n.Title != "" {
		body["headings"] = map[string]string{"en": n.Title}
	}
	if len(n.Data) > 0 {
		body["data"] = n.Data
	}
	if n.Sounds.Android != "" {
		body["android_sound"] = n.Sounds.Android
	}
	if n.Sounds.IOS != "" {
		body["ios_sound"] = n.Sounds.IOS
	}
	if n.SendAfter != nil {
		body["send_after"] = n.SendAfter.UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("push: marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/notifications", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("push: send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("push: gateway status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var result struct {
		ID     string   `json:"id"`
		Errors []string `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("push: decode response: %w", err)
	}
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("push: gateway rejected notification: %s", strings.Join(result.Errors, "; "))
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
