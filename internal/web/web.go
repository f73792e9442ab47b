package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maypok86/otter/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"focuscal/internal/config"
	"focuscal/internal/focus"
	appLog "focuscal/internal/log"
	"focuscal/internal/model"
	"focuscal/internal/store"
)

const (
	defaultRangeDays    = 7
	commitmentsTTL      = 30 * time.Second
	retryAfterSeconds   = 30
	shutdownGracePeriod = 10 * time.Second
)

// Suggester runs the focus engine.
type Suggester interface {
	Suggest(ctx context.Context, req focus.Request) (focus.Result, error)
}

// CommitmentCollector returns a user's merged commitments.
type CommitmentCollector interface {
	Collect(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error)
}

// BlockStore lists and confirms stored time blocks.
type BlockStore interface {
	ListTimeBlocks(ctx context.Context, userID string, start, end time.Time) ([]store.TimeBlock, error)
	ConfirmTimeBlock(ctx context.Context, userID, id string) (store.TimeBlock, error)
}

// Options wires the server's collaborators.
type Options struct {
	Engine    Suggester
	Collector CommitmentCollector
	Blocks    BlockStore
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

// Server provides the HTTP API for suggestions, commitments and time blocks.
type Server struct {
	cfg    *config.Config
	opts   Options
	loc    *time.Location
	router chi.Router

	// Collected commitments are cached briefly so dashboards polling the
	// endpoint do not refetch every ICS feed.
	commitments *otter.Cache[string, commitmentsResponse]
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}

	s := &Server{
		cfg:  cfg,
		opts: opts,
		loc:  loc,
		commitments: otter.Must(&otter.Options[string, commitmentsResponse]{
			MaximumSize:      10_000,
			ExpiryCalculator: otter.ExpiryWriting[string, commitmentsResponse](commitmentsTTL),
		}),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
			r.Use(s.basicAuthMiddleware)
		}
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

		r.Route("/api/users/{userID}", func(r chi.Router) {
			r.Post("/focus-blocks", s.handleSuggest)
			r.Get("/commitments", s.handleCommitments)
			r.Get("/time-blocks", s.handleTimeBlocks)
			r.Post("/time-blocks/{blockID}/confirm", s.handleConfirm)
		})
	})
	return r
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	appLog.Info("stopping HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than locking everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="focuscal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(started).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleSuggest runs the engine for a user.
//
// POST /api/users/{userID}/focus-blocks?start=2025-01-06&end=2025-01-10&dry_run=true
//   - start: first day, YYYY-MM-DD or RFC3339 (default today)
//   - end:   last day, inclusive (default start + 6 days)
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	start, end, ok := s.parseRange(w, r)
	if !ok {
		return
	}
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	res, err := s.opts.Engine.Suggest(r.Context(), focus.Request{
		UserID:     userID,
		RangeStart: start,
		RangeEnd:   end,
		DryRun:     dryRun,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type commitmentsResponse struct {
	UserID      string             `json:"userId"`
	RangeStart  time.Time          `json:"rangeStart"`
	RangeEnd    time.Time          `json:"rangeEnd"`
	Commitments []model.Commitment `json:"commitments"`
}

// handleCommitments returns the merged commitments for whole days
// [start, end] in the configured timezone.
func (s *Server) handleCommitments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	start, end, ok := s.parseDayWindow(w, r)
	if !ok {
		return
	}

	key := commitmentsKeyPrefix(userID) + start.Format(time.RFC3339) + "|" + end.Format(time.RFC3339)
	if cached, found := s.commitments.GetIfPresent(key); found {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	items, err := s.opts.Collector.Collect(r.Context(), userID, start, end)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	resp := commitmentsResponse{UserID: userID, RangeStart: start, RangeEnd: end, Commitments: items}
	s.commitments.Set(key, resp)

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, resp)
}

type timeBlocksResponse struct {
	UserID     string            `json:"userId"`
	RangeStart time.Time         `json:"rangeStart"`
	RangeEnd   time.Time         `json:"rangeEnd"`
	Blocks     []store.TimeBlock `json:"blocks"`
}

func (s *Server) handleTimeBlocks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	start, end, ok := s.parseDayWindow(w, r)
	if !ok {
		return
	}

	blocks, err := s.opts.Blocks.ListTimeBlocks(r.Context(), userID, start, end)
	if err != nil {
		appLog.Error("list time blocks failed", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to list time blocks")
		return
	}
	if blocks == nil {
		blocks = []store.TimeBlock{}
	}
	writeJSON(w, http.StatusOK, timeBlocksResponse{UserID: userID, RangeStart: start, RangeEnd: end, Blocks: blocks})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	blockID := chi.URLParam(r, "blockID")

	block, err := s.opts.Blocks.ConfirmTimeBlock(r.Context(), userID, blockID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "time block not found")
		return
	}
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, "time block is not awaiting confirmation")
		return
	}
	if err != nil {
		appLog.Error("confirm time block failed", err, "user_id", userID, "block_id", blockID)
		writeError(w, http.StatusInternalServerError, "failed to confirm time block")
		return
	}

	// A confirmed block is now a commitment.
	s.invalidateCommitments(userID)
	appLog.Info("time block confirmed", "user_id", userID, "block_id", blockID)
	writeJSON(w, http.StatusOK, block)
}

// invalidateCommitments drops every cached commitments response of userID.
func (s *Server) invalidateCommitments(userID string) {
	prefix := commitmentsKeyPrefix(userID)
	var stale []string
	for key := range s.commitments.Keys() {
		if strings.HasPrefix(key, prefix) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		s.commitments.Invalidate(key)
	}
}

func commitmentsKeyPrefix(userID string) string {
	return userID + "|"
}

// parseRange reads start/end query parameters. Dates are interpreted in the
// configured timezone. An inverted range is passed through for the engine to
// reject.
func (s *Server) parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	today := focus.StartOfDay(s.opts.Now().In(s.loc))

	start := today
	if v := q.Get("start"); v != "" {
		t, err := parseDay(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
			return time.Time{}, time.Time{}, false
		}
		start = t
	}
	end := start.AddDate(0, 0, defaultRangeDays-1)
	if v := q.Get("end"); v != "" {
		t, err := parseDay(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
			return time.Time{}, time.Time{}, false
		}
		end = t
	}
	return start, end, true
}

// parseDayWindow turns start/end into the half-open window from midnight of
// the first day to midnight after the last.
func (s *Server) parseDayWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	start, end, ok := s.parseRange(w, r)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start is after end")
		return time.Time{}, time.Time{}, false
	}
	first := focus.StartOfDay(start.In(s.loc))
	last := focus.StartOfDay(end.In(s.loc))
	return first, time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, s.loc), true
}

func parseDay(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, focus.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, focus.ErrDataUnavailable):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, "data temporarily unavailable")
	default:
		appLog.Error("unexpected engine error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
