package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"galleryd/internal/api"
	"galleryd/internal/config"
	"galleryd/internal/downloads"
	"galleryd/internal/gallery"
	"galleryd/internal/logging"
	"galleryd/internal/queue"
	"galleryd/internal/render"
	"galleryd/internal/services"
)

const requestIDHeader = "X-Request-Id"

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, services.Wrap(services.ErrConfiguration, "api", "listen", "api bind address is empty", nil)
	}
	srv := &apiServer{
		bind:     bind,
		logger:   logging.NewComponentLogger(logger, "api"),
		daemon:   d,
		queueSvc: api.NewQueueService(d.store),
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler exposes the API routes for in-process use, mainly tests.
func (d *Daemon) Handler() http.Handler {
	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		return http.NotFoundHandler()
	}
	return srv.server.Handler
}

func (s *apiServer) routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(token))
		r.Get("/status", s.handleStatus)
		r.Route("/downloads", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleEnqueue)
			r.Post("/clear", s.handleClear)
			r.Post("/prefetch", s.handlePrefetch)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleDescribe)
				r.Delete("/", s.handleRemove)
				r.Post("/retry", s.handleRetry)
				r.Post("/pause", s.handlePause)
				r.Post("/resume", s.handleResume)
			})
		})
		r.Post("/exports", s.handleExport)
		r.Get("/galleries/{id}/pages/{page}", s.handlePage)
	})
	return r
}

// requestContext tags each request with a correlation id, reusing the
// caller's X-Request-Id when present.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

// serve listens on the bind address until ctx is done.
func (s *apiServer) serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, part := range strings.Split(r.URL.Query().Get("status"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		status, ok := queue.ParseStatus(part)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
			return
		}
		statuses = append(statuses, status)
	}
	items, err := s.queueSvc.List(r.Context(), statuses...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if items == nil {
		items = []api.QueueItem{}
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: items})
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	item, err := s.queueSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "download not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: *item})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req api.DownloadRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.daemon.Enqueue(r.Context(), downloads.Request{
		ID:        req.ID,
		Title:     req.Title,
		Thumbnail: req.Thumbnail,
		Range:     gallery.Range{Start: req.Start, End: req.End},
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	code := http.StatusAccepted
	if res == downloads.AddIgnored {
		code = http.StatusOK
	}
	s.writeJSON(w, code, api.DownloadResponse{ID: req.ID, Result: res.String()})
}

func (s *apiServer) handleClear(w http.ResponseWriter, r *http.Request) {
	var req api.ClearRequest
	if !s.decode(w, r, &req) {
		return
	}
	count, err := s.daemon.Clear(r.Context(), req.Scope)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.daemon.Prefetch(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: int64(resolved)})
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	count, err := s.daemon.Remove(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	res, err := s.daemon.Retry(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.DownloadResponse{ID: id, Result: res.String()})
}

func (s *apiServer) handlePause(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.daemon.Pause(id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DownloadResponse{ID: id, Result: "paused"})
}

func (s *apiServer) handleResume(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.daemon.Resume(id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DownloadResponse{ID: id, Result: "resumed"})
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var req api.ExportRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.daemon.Export(r.Context(), req.ID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ExportResponse{ID: req.ID, Job: job})
}

func (s *apiServer) handlePage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}
	opts := render.Options{Quality: render.QualityFull}
	if raw := r.URL.Query().Get("quality"); raw != "" {
		quality, err := render.ParseQuality(raw)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		opts.Quality = quality
	}
	if raw := r.URL.Query().Get("rotation"); raw != "" {
		rotation, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid rotation")
			return
		}
		opts.Rotation = rotation
	}

	out, err := s.daemon.Page(r.Context(), id, page, opts)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid gallery id")
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into dst and runs the validator rules on it.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := api.Validate(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// writeFailure maps a services error marker onto an HTTP status.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		code = http.StatusNotFound
	case services.Retryable(err):
		code = http.StatusServiceUnavailable
	}
	if code >= http.StatusInternalServerError {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, code, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api encode failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, api.ErrorResponse{Error: message})
}
