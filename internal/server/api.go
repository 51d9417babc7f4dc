// Package server exposes the DevConnect JSON API over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"devconnect/internal/access"
	"devconnect/internal/apperr"
	"devconnect/internal/auth"
	"devconnect/internal/store"
)

type Options struct {
	// Development exposes underlying error causes in responses.
	Development bool
	// AuthRate and AuthBurst throttle register/login per client IP.
	AuthRate  rate.Limit
	AuthBurst int
	Now       func() time.Time
}

type api struct {
	store  *store.Store
	log    *slog.Logger
	bus    *EventBus
	authz  *access.Authority
	tokens *auth.Issuer
	dev    bool
	now    func() time.Time
	authRL *ipLimiter
}

// New wires the API routes and returns the root handler.
func New(st *store.Store, tokens *auth.Issuer, log *slog.Logger, opts Options) http.Handler {
	return newAPI(st, tokens, log, opts).handler()
}

func newAPI(st *store.Store, tokens *auth.Issuer, log *slog.Logger, opts Options) *api {
	if opts.AuthRate == 0 {
		opts.AuthRate = rate.Every(3 * time.Second)
	}
	if opts.AuthBurst == 0 {
		opts.AuthBurst = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &api{
		store:  st,
		log:    log,
		bus:    NewEventBus(),
		authz:  access.NewAuthority(st),
		tokens: tokens,
		dev:    opts.Development,
		now:    opts.Now,
		authRL: newIPLimiter(opts.AuthRate, opts.AuthBurst),
	}
}

func (a *api) handler() http.Handler {
	mux := http.NewServeMux()
	a.routes(mux)
	return withLogging(a.log, mux)
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)

	mux.HandleFunc("POST /api/auth/register", a.withRateLimit(a.handleRegister))
	mux.HandleFunc("POST /api/auth/login", a.withRateLimit(a.handleLogin))
	mux.HandleFunc("GET /api/auth/profile", a.requireAuth(a.handleProfile))
	mux.HandleFunc("PUT /api/auth/profile", a.requireAuth(a.handleUpdateProfile))

	mux.HandleFunc("GET /api/users", a.requireAuth(a.handleListUsers))
	mux.HandleFunc("GET /api/users/{id}", a.requireAuth(a.handleGetUser))
	mux.HandleFunc("PUT /api/users/{id}", a.requireAuth(a.handleUpdateUser))
	mux.HandleFunc("DELETE /api/users/{id}", a.requireAuth(a.handleDeleteUser))

	mux.HandleFunc("POST /api/projects", a.requireAuth(a.handleCreateProject))
	mux.HandleFunc("GET /api/projects", a.requireAuth(a.handleListProjects))
	mux.HandleFunc("GET /api/projects/{id}", a.requireAuth(a.handleGetProject))
	mux.HandleFunc("PUT /api/projects/{id}", a.requireAuth(a.handleUpdateProject))
	mux.HandleFunc("DELETE /api/projects/{id}", a.requireAuth(a.handleDeleteProject))
	mux.HandleFunc("POST /api/projects/{id}/members", a.requireAuth(a.handleAddMember))
	mux.HandleFunc("PUT /api/projects/{id}/members/{userId}", a.requireAuth(a.handleUpdateMember))
	mux.HandleFunc("DELETE /api/projects/{id}/members/{userId}", a.requireAuth(a.handleRemoveMember))

	mux.HandleFunc("GET /api/projects/{id}/board", a.requireAuth(a.handleGetBoard))
	mux.HandleFunc("POST /api/projects/{id}/board/commands", a.requireAuth(a.handleBoardCommand))
	mux.HandleFunc("GET /api/projects/{id}/events", a.requireAuth(a.handleEvents))
	mux.HandleFunc("POST /api/projects/{id}/phases", a.requireAuth(a.handleCreatePhase))
	mux.HandleFunc("PUT /api/phases/{id}", a.requireAuth(a.handleUpdatePhase))
	mux.HandleFunc("DELETE /api/phases/{id}", a.requireAuth(a.handleDeletePhase))
	mux.HandleFunc("POST /api/phases/{id}/move", a.requireAuth(a.handleMovePhase))

	mux.HandleFunc("POST /api/tasks", a.requireAuth(a.handleCreateTask))
	mux.HandleFunc("GET /api/tasks/project/{projectId}", a.requireAuth(a.handleProjectTasks))
	mux.HandleFunc("GET /api/tasks/{id}", a.requireAuth(a.handleGetTask))
	mux.HandleFunc("PUT /api/tasks/{id}", a.requireAuth(a.handleUpdateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", a.requireAuth(a.handleDeleteTask))
	mux.HandleFunc("POST /api/tasks/{id}/move", a.requireAuth(a.handleMoveTask))
	mux.HandleFunc("POST /api/tasks/{id}/members", a.requireAuth(a.handleAttachTaskMember))
	mux.HandleFunc("DELETE /api/tasks/{id}/members/{userId}", a.requireAuth(a.handleDetachTaskMember))

	mux.HandleFunc("POST /api/comments", a.requireAuth(a.handleCreateComment))
	mux.HandleFunc("GET /api/comments/task/{taskId}", a.requireAuth(a.handleTaskComments))
	mux.HandleFunc("GET /api/comments/{id}", a.requireAuth(a.handleGetComment))
	mux.HandleFunc("DELETE /api/comments/{id}", a.requireAuth(a.handleDeleteComment))
}

func parseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

// pathID reads a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := parseID(r.PathValue(name))
	if err != nil || id <= 0 {
		return 0, apperr.E(apperr.Validation, "Identifiant invalide")
	}
	return id, nil
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.Validation, "Requête invalide", err)
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"message": msg})
}

// writeErr answers with the error envelope. Unexpected errors are logged
// under op and their cause is only shown in development.
func (a *api) writeErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	err = translate(err)
	kind := apperr.KindOf(err)
	body := map[string]any{"message": apperr.Message(err)}
	if kind == apperr.Internal {
		a.log.Error(op, "err", err, "request_id", w.Header().Get("X-Request-ID"))
		if a.dev {
			body["error"] = err.Error()
		}
	}
	writeJSON(w, kind.Status(), body)
}

// translate maps leftover store sentinels onto the error taxonomy.
func translate(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, "Ressource non trouvée", err)
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(apperr.Conflict, "Conflit avec une ressource existante", err)
	}
	return err
}

func orNotFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, msg, err)
	}
	return err
}

type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{limit: limit, burst: burst, limiters: map[string]*rate.Limiter{}}
}

func (l *ipLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *api) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.authRL.allow(clientIP(r)) {
			writeMessage(w, http.StatusTooManyRequests, "Trop de requêtes, réessayez plus tard")
			return
		}
		next(w, r)
	}
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Info("http", "method", r.Method, "path", r.URL.Path, "status", sw.status,
			"dur_ms", time.Since(start).Milliseconds(), "request_id", reqID)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }

// Flush lets SSE responses through the logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
