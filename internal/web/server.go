// Package web exposes the downloader service over HTTP.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvcoi/ytdl-web/internal/db"
	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/selector"
	"github.com/lvcoi/ytdl-web/internal/ws"
)

//go:embed assets/*
var embeddedAssets embed.FS

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// Downloader is the service the handlers call. *downloader.Service
// satisfies it.
type Downloader interface {
	Formats(ctx context.Context, rawURL string) (*downloader.Listing, error)
	DirectURL(ctx context.Context, rawURL string, req selector.Request) (*downloader.Direct, error)
	Download(ctx context.Context, rawURL string, req selector.Request, progress func(float64)) (*downloader.File, error)
}

// HistoryLister reads the download history. *db.DB satisfies it.
type HistoryLister interface {
	List(ctx context.Context, limit, offset int) ([]db.Record, error)
	Count(ctx context.Context) (int, error)
}

// Config tunes the HTTP surface.
type Config struct {
	Addr            string
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	RateLimit       float64
	RateBurst       int
	JobCompletedTTL time.Duration
	JobErroredTTL   time.Duration
	// MaxConcurrent bounds async jobs running at once; QueueSize bounds
	// the ones waiting.
	MaxConcurrent int
	QueueSize     int
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 30 * time.Minute
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 2
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	if c.JobCompletedTTL <= 0 {
		c.JobCompletedTTL = 15 * time.Minute
	}
	if c.JobErroredTTL <= 0 {
		c.JobErroredTTL = 30 * time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
}

// Server wires handlers to the service.
type Server struct {
	cfg        Config
	svc        Downloader
	history    HistoryLister
	hub        *ws.Hub
	jobs       *jobTracker
	pool       *jobPool
	limiter    *clientLimiter
	logger     *zap.Logger
	strategies []string
	startedAt  time.Time

	// ctx outlives requests; async jobs run under it until Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// Deps are the collaborators a Server needs. History and Hub may be nil.
type Deps struct {
	Service    Downloader
	History    HistoryLister
	Hub        *ws.Hub
	Logger     *zap.Logger
	Strategies []string
}

func NewServer(cfg Config, deps Deps) *Server {
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := deps.Hub
	if hub == nil {
		hub = ws.NewHub(logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		svc:        deps.Service,
		history:    deps.History,
		hub:        hub,
		jobs:       &jobTracker{},
		pool:       newJobPool(cfg.MaxConcurrent, cfg.QueueSize),
		limiter:    newClientLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:     logger.Named("web"),
		strategies: deps.Strategies,
		startedAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.pool.Start(ctx)
	return s
}

// Close cancels running jobs and waits for the workers to exit.
func (s *Server) Close() {
	s.cancel()
	s.pool.Wait()
}

type mediaRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Format  string `json:"format"`
}

func (m mediaRequest) selector() selector.Request {
	return selector.Request{Quality: m.Quality, FormatType: m.Format}
}

type errorResponse struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

type historyResponse struct {
	Items      []db.Record `json:"items"`
	Total      int         `json:"total"`
	NextOffset *int        `json:"next_offset"`
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(assets))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/url", s.handleURL)
	mux.HandleFunc("/api/jobs", s.handleCreateJob)
	mux.HandleFunc("/api/jobs/{id}", s.handleJob)
	mux.HandleFunc("/api/jobs/{id}/file", s.handleJobFile)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		if r.URL.Path == "/" || !fileExists(assets, strings.TrimPrefix(r.URL.Path, "/")) {
			serveIndex(w, assets)
			return
		}
		fileServer.ServeHTTP(w, r)
	})

	return withRequestLogging(s.logger, withSecurityHeaders(s.limiter.middleware(mux)))
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	defer s.Close()
	s.jobs.StartCleanup(ctx, time.Minute, s.cfg.JobCompletedTTL, s.cfg.JobErroredTTL)
	go s.hub.Run(ctx)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.limiter.prune(now)
			}
		}
	}()

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.cfg.DownloadTimeout + time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.cfg.Addr), zap.Strings("strategies", s.strategies))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req mediaRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	listing, err := s.svc.Formats(ctx, req.URL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req mediaRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	direct, err := s.svc.DirectURL(ctx, req.URL, req.selector())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, direct)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req mediaRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.DownloadTimeout)
	defer cancel()

	file, err := s.svc.Download(ctx, req.URL, req.selector(), nil)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.streamFile(w, file)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req mediaRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	if _, err := downloader.ValidateURL(req.URL); err != nil {
		s.writeServiceError(w, err)
		return
	}

	job := s.jobs.Create(req.URL, req.selector())
	if !s.pool.Submit(func(ctx context.Context) { s.runJob(ctx, job) }) {
		s.jobs.Delete(job.ID)
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, http.StatusServiceUnavailable, "too many queued downloads")
		return
	}
	s.hub.PublishJob(job.update())

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": statusQueued,
		"jobId":  job.ID,
	})
}

func (s *Server) runJob(ctx context.Context, job *Job) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	job.start()
	s.hub.PublishJob(job.update())
	file, err := s.svc.Download(ctx, job.URL, job.Request, func(p float64) {
		if job.setPercent(p) {
			s.hub.PublishJob(job.update())
		}
	})
	if err != nil {
		s.logger.Warn("job failed", zap.String("job", job.ID), zap.Error(err))
	}
	job.finish(file, err)
	s.hub.PublishJob(job.update())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	snap := job.Snapshot()
	writeJSON(w, http.StatusOK, &snap)
}

func (s *Server) handleJobFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	switch job.Snapshot().Status {
	case statusQueued, statusRunning:
		writeJSONError(w, http.StatusConflict, "job not finished")
		return
	case statusError:
		writeJSONError(w, http.StatusConflict, "job failed")
		return
	}
	file := job.takeFile()
	if file == nil {
		writeJSONError(w, http.StatusGone, "file already delivered")
		return
	}
	s.streamFile(w, file)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	offset, limit, err := parsePagination(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, historyResponse{Items: []db.Record{}})
		return
	}
	items, err := s.history.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("listing history", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	total, err := s.history.Count(r.Context())
	if err != nil {
		s.logger.Error("counting history", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	resp := historyResponse{Items: items, Total: total}
	if next := offset + len(items); next < total {
		resp.NextOffset = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_downloads": s.jobs.ActiveCount(),
		"max_concurrent":   s.cfg.MaxConcurrent,
		"ws_clients":       s.hub.ClientCount(),
		"strategies":       s.strategies,
		"uptime":           time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

// streamFile sends file as an attachment; the file is removed afterwards.
func (s *Server) streamFile(w http.ResponseWriter, file *downloader.File) {
	rc, err := file.Open()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", file.ContentType)
	h.Set("Content-Length", strconv.FormatInt(rc.Size(), 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("client went away during transfer", zap.String("file", file.Name), zap.Error(err))
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := downloader.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
		msg = publicMessage(status)
	}
	writeJSON(w, status, errorResponse{
		Type:     "error",
		Status:   "error",
		Error:    msg,
		Category: downloader.CategoryOf(err).String(),
	})
}

// publicMessage hides provider internals from clients.
func publicMessage(status int) string {
	switch status {
	case http.StatusBadGateway:
		return "Unable to get download link. Please try again later."
	case http.StatusGatewayTimeout:
		return "The request timed out."
	default:
		return "internal error"
	}
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return &requestError{http.StatusUnsupportedMediaType, "content type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	return nil
}

func parsePagination(r *http.Request) (offset, limit int, err error) {
	limit = 50
	q := r.URL.Query()
	if raw := q.Get("offset"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter")
		}
		offset = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid limit parameter")
		}
		limit = min(n, 500)
	}
	return offset, limit, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Type: "error", Status: "error", Error: message})
}

func serveIndex(w http.ResponseWriter, assets fs.FS) {
	data, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		http.Error(w, "missing index", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func fileExists(assets fs.FS, name string) bool {
	if name == "" {
		return false
	}
	f, err := assets.Open(name)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
