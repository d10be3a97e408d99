package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"threadspost/internal/config"

	"golang.org/x/time/rate"
)

// Container states reported by the Graph API.
const (
	ContainerStatusInProgress = "IN_PROGRESS"
	ContainerStatusFinished   = "FINISHED"
	ContainerStatusPublished  = "PUBLISHED"
	ContainerStatusError      = "ERROR"
	ContainerStatusExpired    = "EXPIRED"
)

// ErrMalformedResponse is returned when a 2xx response carries no usable id.
var ErrMalformedResponse = errors.New("threads: malformed response")

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("threads: http %d", e.StatusCode)
	}
	return fmt.Sprintf("threads: http %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

// IsContainerGone reports whether a container lookup failed because the
// container itself is unusable. Auth and rate limit answers are excluded
// since a new container would fail the same way.
func IsContainerGone(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// Container is the state of a media container.
type Container struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// Client talks to the Threads Graph API. It holds no credential of its own:
// every call takes the persona's token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg *config.ThreadsConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion != "" {
		base = base + "/" + strings.Trim(cfg.APIVersion, "/")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// CreateTextContainer creates an unpublished text container and returns its id.
func (c *Client) CreateTextContainer(ctx context.Context, token, userID, text string) (string, error) {
	form := url.Values{}
	form.Set("media_type", "TEXT")
	form.Set("text", text)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(userID)+"/threads", token, form, &out); err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create container: %w", ErrMalformedResponse)
	}
	return out.ID, nil
}

// PublishContainer publishes a container and returns the id of the new thread.
func (c *Client) PublishContainer(ctx context.Context, token, userID, containerID string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(userID)+"/threads_publish", token, form, &out); err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("publish container %s: %w", containerID, ErrMalformedResponse)
	}
	return out.ID, nil
}

// GetContainer reads a container's status; PUBLISHED means a publish call
// for it already succeeded.
func (c *Client) GetContainer(ctx context.Context, token, containerID string) (*Container, error) {
	query := url.Values{}
	query.Set("fields", "id,status,error_message")

	var out Container
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(containerID)+"?"+query.Encode(), token, nil, &out); err != nil {
		return nil, fmt.Errorf("get container %s: %w", containerID, err)
	}
	if out.Status == "" {
		return nil, fmt.Errorf("get container %s: %w", containerID, ErrMalformedResponse)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, form url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Type = envelope.Error.Type
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
