package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"galleryd/internal/config"
	"galleryd/internal/logging"
	"galleryd/internal/metrics"
)

const userAgent = "galleryd/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventDownloadProgress  Event = "download_progress"
	EventDownloadCompleted Event = "download_completed"
	EventDownloadFailed    Event = "download_failed"
	EventExportCompleted   Event = "export_completed"
	EventTest              Event = "test"
)

// Payload carries event fields. Well-known keys: id, title, current, total,
// error, path.
type Payload map[string]any

// String returns the trimmed string value for key.
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the integer value for key, or zero.
func (p Payload) Int64(key string) int64 {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Int is Int64 narrowed to int.
func (p Payload) Int(key string) int {
	return int(p.Int64(key))
}

// Service publishes workflow events. Callers log and ignore errors; a failed
// notification never fails a download.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the notification pipeline: log sink, ntfy when a topic is
// configured, and the active-progress cap in front of both.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	sinks := []Service{NewLogService(logger)}

	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sinks = append(sinks, &ntfyService{
			endpoint: topic,
			client:   &http.Client{Timeout: timeout},
			toggles:  cfg.Notifications,
			sampler:  logging.NewProgressSampler(25),
		})
	}

	return WithActiveCap(Multi(sinks...), cfg.Notifications.MaxActive)
}

// Multi fans an event out to every service and joins their errors.
func Multi(services ...Service) Service {
	filtered := make([]Service, 0, len(services))
	for _, svc := range services {
		if svc != nil {
			filtered = append(filtered, svc)
		}
	}
	switch len(filtered) {
	case 0:
		return Noop()
	case 1:
		return filtered[0]
	default:
		return multiService(filtered)
	}
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type message struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	toggles  config.Notifications

	mu      sync.Mutex
	sampler *logging.ProgressSampler
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	err := n.send(ctx, data)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeFatal
	}
	metrics.Notifications.WithLabelValues(string(event), outcome).Inc()
	return err
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	title := payload.String("title")
	if title == "" {
		if id := payload.Int64("id"); id > 0 {
			title = fmt.Sprintf("gallery %d", id)
		} else {
			title = "unknown gallery"
		}
	}

	switch event {
	case EventDownloadProgress:
		if !n.toggles.Progress {
			return message{}, false
		}
		current, total := payload.Int("current"), payload.Int("total")
		n.mu.Lock()
		emit := n.sampler.ShouldLog(payload.Int64("id"), current, total)
		n.mu.Unlock()
		if !emit {
			return message{}, false
		}
		return message{
			title:    "galleryd - Downloading",
			message:  fmt.Sprintf("⬇️ %s: %d/%d pages", title, current, total),
			tags:     []string{"galleryd", "download", "progress"},
			priority: "low",
		}, true
	case EventDownloadCompleted:
		if !n.toggles.Completed {
			return message{}, false
		}
		return message{
			title:   "galleryd - Download Complete",
			message: fmt.Sprintf("✅ Downloaded: %s (%d pages)", title, payload.Int("total")),
			tags:    []string{"galleryd", "download", "completed"},
		}, true
	case EventDownloadFailed:
		if !n.toggles.Errors {
			return message{}, false
		}
		reason := payload.String("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "galleryd - Download Failed",
			message:  fmt.Sprintf("❌ %s: %s", title, reason),
			tags:     []string{"galleryd", "download", "error"},
			priority: "high",
		}, true
	case EventExportCompleted:
		if !n.toggles.Completed {
			return message{}, false
		}
		text := fmt.Sprintf("📦 Exported: %s", title)
		if path := payload.String("path"); path != "" {
			text = fmt.Sprintf("%s\nFile: %s", text, path)
		}
		return message{
			title:   "galleryd - Export Ready",
			message: text,
			tags:    []string{"galleryd", "export", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "galleryd - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"galleryd", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

// Noop returns a service that drops every event.
func Noop() Service { return noopService{} }

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
