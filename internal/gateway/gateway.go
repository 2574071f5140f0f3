// Package gateway talks to the hosted, OpenAI-compatible LLM gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
)

var (
	ErrRateLimited     = errors.New("gateway: rate limited")
	ErrPaymentRequired = errors.New("gateway: payment required")
)

// StatusError is any other non-OK gateway response. Body is for server logs only.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway: status %d", e.Status)
}

// StatusCode returns the upstream HTTP status.
func (e *StatusError) StatusCode() int { return e.Status }

// Message is one chat message. Content is a string or a []ContentPart.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ContentPart is an element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// ChatRequest is the body sent to /chat/completions.
type ChatRequest struct {
	Model      string    `json:"model"`
	Messages   []Message `json:"messages"`
	Stream     bool      `json:"stream,omitempty"`
	Modalities []string  `json:"modalities,omitempty"`
}

// Completion is the first choice of a non-streamed response.
type Completion struct {
	Text   string
	Images []string
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				ImageURL ImageURL `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	ImageModel string
}

// Client calls the gateway. It never retries.
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	imageModel string
	httpClient *http.Client
}

// New creates a gateway client. Streams can run for minutes, so only
// connection setup and response headers are bounded here; callers bound the
// rest through the context.
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		chatModel:  cfg.ChatModel,
		imageModel: cfg.ImageModel,
		httpClient: &http.Client{Transport: transport},
	}
}

// ChatModel is the default text model.
func (c *Client) ChatModel() string { return c.chatModel }

// ImageModel is the default image generation model.
func (c *Client) ImageModel() string { return c.imageModel }

// Stream starts a streamed completion and returns the raw SSE body.
// The caller must close it.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true
	resp, err := c.do(ctx, "stream", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Complete runs a non-streamed completion.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*Completion, error) {
	req.Stream = false
	resp, err := c.do(ctx, "complete", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("gateway: decode response: %w", err)
	}
	if len(body.Choices) == 0 {
		return &Completion{}, nil
	}

	msg := body.Choices[0].Message
	out := &Completion{Text: msg.Content}
	for _, img := range msg.Images {
		if img.ImageURL.URL != "" {
			out.Images = append(out.Images, img.ImageURL.URL)
		}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, mode string, req ChatRequest) (*http.Response, error) {
	if req.Model == "" {
		req.Model = c.chatModel
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.GatewayLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(mode, "error").Inc()
		return nil, fmt.Errorf("gateway: send request: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		metrics.GatewayRequests.WithLabelValues(mode, "ok").Inc()
		return resp, nil
	}

	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		metrics.GatewayRequests.WithLabelValues(mode, "rate_limited").Inc()
		return nil, ErrRateLimited
	case http.StatusPaymentRequired:
		metrics.GatewayRequests.WithLabelValues(mode, "payment_required").Inc()
		return nil, ErrPaymentRequired
	}
	metrics.GatewayRequests.WithLabelValues(mode, "error").Inc()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
}
