package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running portkeeper daemon's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8127/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new portkeeper API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// Status mirrors the daemon's GET /status payload.
type Status struct {
	Status      string `json:"status"`
	PID         int    `json:"pid,omitempty"`
	Adopted     bool   `json:"adopted,omitempty"`
	LastErr     string `json:"last_error,omitempty"`
	URL         string `json:"url"`
	Displayed   string `json:"displayed"`
	PortBlocked bool   `json:"port_blocked"`
}

func (c *Client) Start(ctx context.Context) error   { return c.post(ctx, "/start") }
func (c *Client) Stop(ctx context.Context) error    { return c.post(ctx, "/stop") }
func (c *Client) Restart(ctx context.Context) error { return c.post(ctx, "/restart") }
func (c *Client) Refresh(ctx context.Context) error { return c.post(ctx, "/refresh") }
func (c *Client) ResolvePortConflict(ctx context.Context) error {
	return c.post(ctx, "/resolve-port")
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.get(ctx, "/status", &st)
	return st, err
}

// Event mirrors the daemon's event payload.
type Event struct {
	Kind string    `json:"kind"`
	Text string    `json:"text,omitempty"`
	At   time.Time `json:"at"`
}

func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var evs []Event
	err := c.get(ctx, "/events", &evs)
	return evs, err
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
