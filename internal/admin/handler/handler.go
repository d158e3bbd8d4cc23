package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"dispatch/internal/common/logger"
	"dispatch/internal/domain/user"
	"dispatch/internal/jwt"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

// AdminHTTPHandler adapts HTTP requests to the AdminService.
type AdminHTTPHandler struct {
	svc    ports.AdminService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewAdminHTTPHandler wires an HTTP handler around the AdminService.
func NewAdminHTTPHandler(svc ports.AdminService, logger *logger.Logger, auth *jwt.Manager) *AdminHTTPHandler {
	return &AdminHTTPHandler{svc: svc, logger: logger, auth: auth}
}

// RegisterRoutes mounts admin endpoints on the provided mux.
func (handler *AdminHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/overview",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin)(handler.handleOverview),
	)
	mux.HandleFunc("GET /admin/jobs/active",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin)(handler.handleActiveJobs),
	)
	mux.HandleFunc("GET /admin/health", handler.handleHealth)
}

func (handler *AdminHTTPHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.GetSystemOverview(opCtx)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

func (handler *AdminHTTPHandler) handleActiveJobs(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	q := r.URL.Query()

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.GetActiveJobs(opCtx, q.Get("page"), q.Get("page_size"))
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

func (handler *AdminHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "admin-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (handler *AdminHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *AdminHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// svcError maps admin service failures onto HTTP status codes.
func (handler *AdminHTTPHandler) svcError(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
		return
	}
	handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *AdminHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
