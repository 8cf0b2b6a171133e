// Package backend is the HTTP client for the companion server.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/chat"
	"vibemate.dev/vibemate/internal/logging"
	"vibemate.dev/vibemate/internal/profile"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// Response is the envelope every JSON endpoint answers with.
type Response[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
	Status  string `json:"status"`
}

// MemoryEntry is one turn of the server-side conversation memory.
type MemoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	_ profile.Backend = (*Client)(nil)
	_ chat.Transport  = (*Client)(nil)
)

type Client struct {
	baseURL string
	// api carries the request timeout; streamed replies are bounded by the caller's context only.
	api    *http.Client
	stream *http.Client
	logger *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     &http.Client{Timeout: timeout},
		stream:  &http.Client{},
		logger:  logging.OrNop(logger).Named("backend"),
	}
}

// SaveUserInfo upserts the profile. The server assigns the user id on first save.
func (c *Client) SaveUserInfo(ctx context.Context, p profile.UserProfile) (profile.UserProfile, error) {
	var resp Response[profile.UserProfile]
	if err := c.doJSON(ctx, http.MethodPost, "/api/user/info", p, &resp); err != nil {
		return profile.UserProfile{}, err
	}
	return resp.Data, nil
}

func (c *Client) SaveBot(ctx context.Context, p profile.PersonaConfig) (profile.PersonaConfig, error) {
	var resp Response[profile.PersonaConfig]
	if err := c.doJSON(ctx, http.MethodPost, "/api/user/bot", p, &resp); err != nil {
		return profile.PersonaConfig{}, err
	}
	return resp.Data, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (profile.UserProfile, error) {
	var resp Response[profile.UserProfile]
	if err := c.doJSON(ctx, http.MethodGet, "/api/user/"+url.PathEscape(userID), nil, &resp); err != nil {
		return profile.UserProfile{}, err
	}
	return resp.Data, nil
}

func (c *Client) GetBot(ctx context.Context, userID string) (profile.PersonaConfig, error) {
	var resp Response[profile.PersonaConfig]
	if err := c.doJSON(ctx, http.MethodGet, "/api/user/bot/"+url.PathEscape(userID), nil, &resp); err != nil {
		return profile.PersonaConfig{}, err
	}
	return resp.Data, nil
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (c *Client) Memory(ctx context.Context, userID string) ([]MemoryEntry, error) {
	var resp Response[[]MemoryEntry]
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/memory", chatRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) ClearMemory(ctx context.Context, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/chat/clear", chatRequest{UserID: userID}, nil)
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/api/health", nil, nil)
}

// Open posts a chat message and returns the streamed reply body. The caller
// closes it.
func (c *Client) Open(ctx context.Context, req chat.Request) (io.ReadCloser, error) {
	var (
		httpReq *http.Request
		err     error
	)
	if req.Attachment == nil {
		httpReq, err = c.newJSONRequest(ctx, http.MethodPost, string(req.Endpoint), chatRequest{UserID: req.UserID, Message: req.Message})
	} else {
		httpReq, err = c.newMultipartRequest(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/markdown")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach backend: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp.Body, nil
}

func (c *Client) newMultipartRequest(ctx context.Context, req chat.Request) (*http.Request, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.Attachment.Name))
	contentType := req.Attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(req.Attachment.Data); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.WriteField("userId", req.UserID); err != nil {
		return nil, fmt.Errorf("failed to write userId field: %w", err)
	}
	if err := w.WriteField("message", req.Message); err != nil {
		return nil, fmt.Errorf("failed to write message field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+string(req.Endpoint), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return httpReq, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	httpReq, err := c.newJSONRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope Response[json.RawMessage]
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
		apiErr.Message = envelope.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
