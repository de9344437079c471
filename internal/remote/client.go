package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"galleryd/internal/config"
	"galleryd/internal/gallery"
	"galleryd/internal/logging"
	"galleryd/internal/metrics"
	"galleryd/internal/services"
)

const (
	maxMetadataBytes = 4 << 20
	maxPageBytes     = 64 << 20
)

// PageRef identifies one page of a gallery on the image host.
type PageRef struct {
	GalleryID int64
	MediaID   string
	Page      int
}

// Fetcher is the transport contract used by downloaders and the page loader.
type Fetcher interface {
	FetchMetadata(ctx context.Context, id int64) (gallery.Metadata, error)
	FetchPage(ctx context.Context, ref PageRef, ext string) ([]byte, error)
}

// Client talks to the remote gallery API over HTTP.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	imageBaseURL string
	userAgent    string
	cookie       string
	logger       *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New builds a Client from the remote section of the configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout()},
		baseURL:      strings.TrimRight(cfg.Remote.BaseURL, "/"),
		imageBaseURL: strings.TrimRight(cfg.Remote.ImageBaseURL, "/"),
		userAgent:    cfg.Remote.UserAgent,
		cookie:       cfg.Remote.Cookie,
		logger:       logging.NewComponentLogger(logger, "remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiGallery struct {
	ID      json.RawMessage `json:"id"`
	MediaID json.RawMessage `json:"media_id"`
	Title   struct {
		English  string `json:"english"`
		Japanese string `json:"japanese"`
		Pretty   string `json:"pretty"`
	} `json:"title"`
	Images struct {
		Pages     []apiImage `json:"pages"`
		Thumbnail apiImage   `json:"thumbnail"`
	} `json:"images"`
	NumPages int `json:"num_pages"`
}

type apiImage struct {
	Type string `json:"t"`
}

// FetchMetadata resolves page count, titles and extension hints for id.
func (c *Client) FetchMetadata(ctx context.Context, id int64) (gallery.Metadata, error) {
	if id <= 0 {
		return gallery.Metadata{}, services.Wrap(services.ErrValidation, "metadata", "fetch", fmt.Sprintf("invalid gallery id %d", id), nil)
	}
	url := fmt.Sprintf("%s/api/gallery/%d", c.baseURL, id)
	body, err := c.get(ctx, "metadata", url, maxMetadataBytes)
	if err != nil {
		return gallery.Metadata{}, err
	}

	var payload apiGallery
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.RemoteRequests.WithLabelValues("metadata", metrics.OutcomeFatal).Inc()
		return gallery.Metadata{}, services.Wrap(services.ErrValidation, "metadata", "decode", "malformed gallery payload", err)
	}
	meta, err := payload.toMetadata()
	if err != nil {
		return gallery.Metadata{}, err
	}
	if meta.ID != id {
		return gallery.Metadata{}, services.Wrap(services.ErrValidation, "metadata", "decode",
			fmt.Sprintf("requested gallery %d but received %d", id, meta.ID), nil)
	}
	thumbExt := gallery.ExtJPG
	if ext, ok := gallery.ExtensionFromCode(payload.Images.Thumbnail.Type); ok {
		thumbExt = ext
	}
	meta.Thumbnail = fmt.Sprintf("%s/galleries/%s/thumb.%s", c.imageBaseURL, meta.MediaID, thumbExt)
	return meta, nil
}

func (g apiGallery) toMetadata() (gallery.Metadata, error) {
	id, err := flexibleInt(g.ID)
	if err != nil {
		return gallery.Metadata{}, services.Wrap(services.ErrValidation, "metadata", "decode", "gallery id", err)
	}
	mediaID := strings.Trim(strings.TrimSpace(string(g.MediaID)), `"`)
	meta := gallery.Metadata{
		ID:      id,
		MediaID: mediaID,
		Titles: gallery.Titles{
			English:  g.Title.English,
			Japanese: g.Title.Japanese,
			Pretty:   g.Title.Pretty,
		},
		PageCount: g.NumPages,
	}
	if meta.PageCount == 0 {
		meta.PageCount = len(g.Images.Pages)
	}
	meta.Extensions = make([]string, 0, len(g.Images.Pages))
	for i, page := range g.Images.Pages {
		ext, ok := gallery.ExtensionFromCode(page.Type)
		if !ok {
			return gallery.Metadata{}, services.Wrap(services.ErrValidation, "metadata", "decode",
				fmt.Sprintf("page %d has unknown type %q", i+1, page.Type), nil)
		}
		meta.Extensions = append(meta.Extensions, ext)
	}
	if err := meta.Validate(); err != nil {
		return gallery.Metadata{}, err
	}
	return meta, nil
}

func flexibleInt(raw json.RawMessage) (int64, error) {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if value == "" {
		return 0, errors.New("missing")
	}
	return strconv.ParseInt(value, 10, 64)
}

// PageURL returns the image URL for ref with the given extension.
func (c *Client) PageURL(ref PageRef, ext string) string {
	return fmt.Sprintf("%s/galleries/%s/%d.%s", c.imageBaseURL, ref.MediaID, ref.Page, ext)
}

// FetchPage downloads the bytes of one page image.
func (c *Client) FetchPage(ctx context.Context, ref PageRef, ext string) ([]byte, error) {
	if ref.Page < 1 || strings.TrimSpace(ref.MediaID) == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "fetch page", fmt.Sprintf("invalid page reference %+v", ref), nil)
	}
	body, err := c.get(ctx, "page", c.PageURL(ref, ext), maxPageBytes)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		metrics.RemoteRequests.WithLabelValues("page", metrics.OutcomeTransient).Inc()
		return nil, services.Wrap(services.ErrTransient, "download", "fetch page", fmt.Sprintf("empty body for page %d", ref.Page), nil)
	}
	return body, nil
}

// Ping issues a GET against the API root. A 404 there still proves the host
// answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "ping", c.baseURL+"/", maxMetadataBytes)
	if errors.Is(err, services.ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) get(ctx context.Context, kind, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, kind, "build request", url, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(kind, metrics.OutcomeTransient).Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrTransient, kind, "request", url, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(kind, url, resp.StatusCode); err != nil {
		outcome := metrics.OutcomeFatal
		if services.Retryable(err) {
			outcome = metrics.OutcomeTransient
		}
		metrics.RemoteRequests.WithLabelValues(kind, outcome).Inc()
		c.logger.Debug("remote request rejected",
			logging.String("kind", kind),
			logging.String("url", url),
			logging.Int("status", resp.StatusCode),
		)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(kind, metrics.OutcomeTransient).Inc()
		return nil, services.Wrap(services.ErrTransient, kind, "read body", url, err)
	}
	if int64(len(body)) > limit {
		metrics.RemoteRequests.WithLabelValues(kind, metrics.OutcomeFatal).Inc()
		return nil, services.Wrap(services.ErrValidation, kind, "read body", fmt.Sprintf("response exceeds %d bytes", limit), nil)
	}
	metrics.RemoteRequests.WithLabelValues(kind, metrics.OutcomeOK).Inc()
	c.logger.Debug("remote request complete",
		logging.String("kind", kind),
		logging.String("url", url),
		logging.Int("bytes", len(body)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}

func classifyStatus(kind, url string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return services.Wrap(services.ErrNotFound, kind, "request", url, nil)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return services.Wrap(services.ErrTransient, kind, "request", fmt.Sprintf("%s returned %d", url, code), nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		// Challenge pages resolve once the configured cookie is refreshed.
		return services.Wrap(services.ErrTransient, kind, "request", fmt.Sprintf("%s returned %d; check remote.cookie", url, code), nil)
	default:
		return services.Wrap(services.ErrValidation, kind, "request", fmt.Sprintf("%s returned %d", url, code), nil)
	}
}
