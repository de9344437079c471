package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"galleryd/internal/services"
)

// ErrUnavailable reports that the daemon could not be reached.
var ErrUnavailable = errors.New("daemon unavailable")

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon listening on bind, which may be a
// host:port pair or a full URL.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, services.Wrap(services.ErrConfiguration, "api", "client", "api bind address is empty", nil)
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "client", "parse api bind address", err)
	}
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns downloads, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses []string) ([]QueueItem, error) {
	query := url.Values{}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	var resp QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/api/downloads", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Describe fetches one download. A missing download returns nil without error.
func (c *Client) Describe(ctx context.Context, id int64) (*QueueItem, error) {
	var resp QueueItemResponse
	err := c.do(ctx, http.MethodGet, downloadPath(id, ""), nil, nil, &resp)
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

// Download enqueues a gallery download.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (*DownloadResponse, error) {
	var resp DownloadResponse
	if err := c.do(ctx, http.MethodPost, "/api/downloads", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Remove cancels and deletes one download.
func (c *Client) Remove(ctx context.Context, id int64) (int64, error) {
	var resp CountResponse
	if err := c.do(ctx, http.MethodDelete, downloadPath(id, ""), nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Clear removes finished rows in the given scope.
func (c *Client) Clear(ctx context.Context, scope string) (int64, error) {
	var resp CountResponse
	if err := c.do(ctx, http.MethodPost, "/api/downloads/clear", nil, ClearRequest{Scope: scope}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Prefetch asks the daemon to resolve metadata for queued downloads now.
func (c *Client) Prefetch(ctx context.Context) (int64, error) {
	var resp CountResponse
	if err := c.do(ctx, http.MethodPost, "/api/downloads/prefetch", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Retry re-enqueues a failed download.
func (c *Client) Retry(ctx context.Context, id int64) (*DownloadResponse, error) {
	return c.action(ctx, id, "retry")
}

// Pause holds an active download.
func (c *Client) Pause(ctx context.Context, id int64) (*DownloadResponse, error) {
	return c.action(ctx, id, "pause")
}

// Resume releases a paused download.
func (c *Client) Resume(ctx context.Context, id int64) (*DownloadResponse, error) {
	return c.action(ctx, id, "resume")
}

// Export schedules a ZIP export of a completed gallery.
func (c *Client) Export(ctx context.Context, id int64) (*ExportResponse, error) {
	var resp ExportResponse
	if err := c.do(ctx, http.MethodPost, "/api/exports", nil, ExportRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) action(ctx context.Context, id int64, verb string) (*DownloadResponse, error) {
	var resp DownloadResponse
	if err := c.do(ctx, http.MethodPost, downloadPath(id, verb), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func downloadPath(id int64, verb string) string {
	path := "/api/downloads/" + strconv.FormatInt(id, 10)
	if verb != "" {
		path += "/" + verb
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError maps an error response onto the services markers.
func decodeError(resp *http.Response) error {
	var payload ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	if payload.Error == "" {
		payload.Error = resp.Status
	}
	var marker error
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusConflict:
		marker = services.ErrValidation
	case http.StatusNotFound:
		marker = services.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		marker = services.ErrConfiguration
	default:
		marker = services.ErrTransient
	}
	return fmt.Errorf("%w: %s", marker, payload.Error)
}
