// Package generation submits listing-video jobs to the external generator
// webhook.
package generation

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

// ErrUnauthorized is returned when the generator rejects our credentials.
var ErrUnauthorized = errors.New("generation: unauthorized")

// Listing describes the property the video is generated for.
type Listing struct {
	Address         string   `json:"address"`
	City            string   `json:"city,omitempty"`
	State           string   `json:"state,omitempty"`
	Zip             string   `json:"zip,omitempty"`
	Price           int64    `json:"price,omitempty"`
	Bedrooms        float64  `json:"bedrooms,omitempty"`
	Bathrooms       float64  `json:"bathrooms,omitempty"`
	SquareFeet      int      `json:"squareFeet,omitempty"`
	Description     string   `json:"description,omitempty"`
	PhotoURLs       []string `json:"photoUrls"`
	AgentName       string   `json:"agentName,omitempty"`
	AgentPhone      string   `json:"agentPhone,omitempty"`
	AgentEmail      string   `json:"agentEmail,omitempty"`
	Style           string   `json:"style,omitempty"`
	DurationSeconds int      `json:"durationSeconds,omitempty"`
}

// UploadTarget tells the generator where to write the finished video.
type UploadTarget struct {
	Key     string            `json:"key"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Job is the body posted to the generator webhook.
type Job struct {
	VideoID     string       `json:"videoId"`
	CallbackURL string       `json:"callbackUrl,omitempty"`
	Listing     Listing      `json:"listing"`
	Upload      UploadTarget `json:"upload"`
}

// Submission is the generator's acknowledgement.
type Submission struct {
	JobID  string `json:"jobId"`
	Status string `json:"status,omitempty"`
}

// StatusError is a non-2xx response from the generator.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation: webhook returned %d: %s", e.StatusCode, e.Body)
}

// Client posts jobs to the generator webhook.
type Client struct {
	endpoint   string
	httpClient *http.Client
	apiKey     string
	onUnauth   func(req *http.Request)
	timeout    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets the base client. Its transport is wrapped by the
// AuthInterceptor.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUnauthorizedHandler is invoked whenever the generator answers 401.
func WithUnauthorizedHandler(fn func(req *http.Request)) Option {
	return func(c *Client) {
		c.onUnauth = fn
	}
}

// WithTimeout bounds each submission.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client for the webhook at endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := http.DefaultTransport
	if c.httpClient != nil && c.httpClient.Transport != nil {
		base = c.httpClient.Transport
	}
	hc := &http.Client{}
	if c.httpClient != nil {
		*hc = *c.httpClient
	}
	hc.Transport = &AuthInterceptor{
		Base:           base,
		Token:          c.apiKey,
		OnUnauthorized: c.onUnauth,
	}
	if hc.Timeout == 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = hc
	return c
}

// Submit posts job to the generator.
func (c *Client) Submit(ctx context.Context, job Job) (*Submission, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("generation: encode job: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation: submit job %s: %w", job.VideoID, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	sub := &Submission{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, sub); err != nil {
			return nil, fmt.Errorf("generation: decode response: %w", err)
		}
	}
	return sub, nil
}
