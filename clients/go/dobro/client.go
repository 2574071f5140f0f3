// Package dobro provides a client for the Dobro chat API.
package dobro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
	"github.com/ChannovDenis/dobro20-sub000/internal/chat"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// DefaultURL is used when NewClient gets an empty base URL.
const DefaultURL = "http://localhost:8080"

// Client is a Dobro API client. It implements chat.Backend and chat.Store.
type Client struct {
	BaseURL    string
	SessionID  string
	Token      string
	Tenant     string
	HTTPClient *http.Client
}

var (
	_ chat.Backend = (*Client)(nil)
	_ chat.Store   = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithSession sets the anonymous session identifier sent on every request.
func WithSession(id string) Option {
	return func(c *Client) { c.SessionID = id }
}

// WithToken sets the bearer token for a signed-in user.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithTenant selects the tenant by slug.
func WithTenant(slug string) Option {
	return func(c *Client) { c.Tenant = slug }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// NewClient creates a new client. Streams can run for minutes, so the
// default HTTP client has no overall timeout; use contexts instead.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 2 * time.Minute,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dobro: HTTP %d", e.Status)
	}
	return fmt.Sprintf("dobro error %d: %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status of the response.
func (e *APIError) StatusCode() int { return e.Status }

// send performs a request and returns the response with a 2xx status. The
// caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	if c.Tenant != "" {
		q := u.Query()
		q.Set("tenant", c.Tenant)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.SessionID != "" {
		req.Header.Set(auth.SessionHeader, c.SessionID)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(data, &errResp)
		return nil, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}
	return resp, nil
}

// doRequest performs a request and decodes a JSON response into out, which
// may be nil.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type streamRequest struct {
	Messages    []chat.HistoryMessage `json:"messages"`
	IsStyleMode *bool                 `json:"isStyleMode,omitempty"`
}

// Chat streams a general assistant reply. The body is raw SSE.
func (c *Client) Chat(ctx context.Context, history []chat.HistoryMessage) (io.ReadCloser, error) {
	resp, err := c.send(ctx, http.MethodPost, "/chat", streamRequest{Messages: history})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Stylist streams a stylist reply. The body is raw SSE.
func (c *Client) Stylist(ctx context.Context, history []chat.HistoryMessage, styleMode bool) (io.ReadCloser, error) {
	resp, err := c.send(ctx, http.MethodPost, "/lisa-stylist", streamRequest{Messages: history, IsStyleMode: &styleMode})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// AnalyzeColorType runs a color-type analysis of the photo at imageURL.
func (c *Client) AnalyzeColorType(ctx context.Context, imageURL string) (*models.ColorPaletteData, error) {
	var palette models.ColorPaletteData
	body := map[string]string{"imageUrl": imageURL}
	if err := c.doRequest(ctx, http.MethodPost, "/colortype-analyzer", body, &palette); err != nil {
		return nil, err
	}
	return &palette, nil
}

// VirtualTryOn renders the user photo wearing the described clothing.
func (c *Client) VirtualTryOn(ctx context.Context, req chat.TryOnRequest) (*chat.TryOnResult, error) {
	var res chat.TryOnResult
	if err := c.doRequest(ctx, http.MethodPost, "/virtual-tryon", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TopicListResponse is the response from listing topics.
type TopicListResponse struct {
	Topics []models.Topic `json:"topics"`
	Total  int            `json:"total"`
}

// TopicMessagesResponse is the response from reading a topic's messages.
type TopicMessagesResponse struct {
	Topic    *models.Topic    `json:"topic"`
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
}

// CreateTopicRequest is the request body for creating a topic.
type CreateTopicRequest struct {
	Title        string          `json:"title"`
	FirstMessage string          `json:"first_message,omitempty"`
	ServiceType  string          `json:"service_type,omitempty"`
	Context      json.RawMessage `json:"context,omitempty"`
}

// UpdateTopicRequest is the request body for updating a topic. Nil fields
// are left alone.
type UpdateTopicRequest struct {
	Title   *string             `json:"title,omitempty"`
	Status  *models.TopicStatus `json:"status,omitempty"`
	Context json.RawMessage     `json:"context,omitempty"`
}

// ListTopics lists the caller's topics, newest first. An empty status lists
// every status.
func (c *Client) ListTopics(ctx context.Context, status models.TopicStatus, limit int) (*TopicListResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/topics"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp TopicListResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTopic creates a topic.
func (c *Client) CreateTopic(ctx context.Context, req CreateTopicRequest) (*models.Topic, error) {
	var topic models.Topic
	if err := c.doRequest(ctx, http.MethodPost, "/topics", req, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// GetTopic gets a topic by ID.
func (c *Client) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	var topic models.Topic
	if err := c.doRequest(ctx, http.MethodGet, "/topics/"+id.String(), nil, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// UpdateTopic renames a topic or changes its status.
func (c *Client) UpdateTopic(ctx context.Context, id uuid.UUID, req UpdateTopicRequest) (*models.Topic, error) {
	var topic models.Topic
	if err := c.doRequest(ctx, http.MethodPatch, "/topics/"+id.String(), req, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// RenameTopic sets a topic's title.
func (c *Client) RenameTopic(ctx context.Context, id uuid.UUID, title string) (*models.Topic, error) {
	return c.UpdateTopic(ctx, id, UpdateTopicRequest{Title: &title})
}

// SetTopicStatus archives, restores or escalates a topic.
func (c *Client) SetTopicStatus(ctx context.Context, id uuid.UUID, status models.TopicStatus) (*models.Topic, error) {
	return c.UpdateTopic(ctx, id, UpdateTopicRequest{Status: &status})
}

// DeleteTopic deletes a topic and its messages.
func (c *Client) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	return c.doRequest(ctx, http.MethodDelete, "/topics/"+id.String(), nil, nil)
}

// ListMessages returns a topic's messages, oldest first.
func (c *Client) ListMessages(ctx context.Context, topicID uuid.UUID) ([]models.Message, error) {
	var resp TopicMessagesResponse
	if err := c.doRequest(ctx, http.MethodGet, "/topics/"+topicID.String()+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SaveMessage appends msg, attachments included, to a topic.
func (c *Client) SaveMessage(ctx context.Context, topicID uuid.UUID, msg models.Message) error {
	return c.doRequest(ctx, http.MethodPost, "/topics/"+topicID.String()+"/messages", msg, nil)
}

// TenantResponse is a tenant's public branding.
type TenantResponse struct {
	models.Tenant
	CSS string `json:"css"`
}

// GetTenant returns the tenant selected by the client's Tenant slug, or the
// default tenant.
func (c *Client) GetTenant(ctx context.Context) (*TenantResponse, error) {
	var resp TenantResponse
	if err := c.doRequest(ctx, http.MethodGet, "/tenant", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTenantBySlug returns a tenant by slug.
func (c *Client) GetTenantBySlug(ctx context.Context, slug string) (*TenantResponse, error) {
	var resp TenantResponse
	if err := c.doRequest(ctx, http.MethodGet, "/tenants/"+url.PathEscape(slug), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check is a single dependency check in a health response.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health checks server health. A degraded server answers 503, which is
// still decoded.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &APIError{Status: resp.StatusCode}
	}
	return &out, nil
}
