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
	"dispatch/internal/tracker/service"

	"github.com/jackc/pgx/v5/pgconn"
)

// TrackerHTTPHandler adapts HTTP and WebSocket traffic to the TrackerService.
type TrackerHTTPHandler struct {
	svc    *service.TrackerService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewTrackerHTTPHandler wires an HTTP handler around the TrackerService.
func NewTrackerHTTPHandler(svc *service.TrackerService, logger *logger.Logger, auth *jwt.Manager) *TrackerHTTPHandler {
	return &TrackerHTTPHandler{svc: svc, logger: logger, auth: auth}
}

// RegisterRoutes mounts tracker endpoints on the provided mux. Location and
// presence also flow over the WebSocket; the HTTP routes exist for devices
// without a live socket.
func (handler *TrackerHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /drivers/location",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleOperator)(handler.handleReportLocation),
	)
	mux.HandleFunc("POST /drivers/online",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleOperator)(handler.handleOnline),
	)
	mux.HandleFunc("POST /drivers/offline",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleOperator)(handler.handleOffline),
	)

	mux.HandleFunc("GET /ws", handler.handleWS)
	mux.HandleFunc("GET /tracker/health", handler.handleHealth)
}

func (handler *TrackerHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "tracker-service",
		"connections": handler.svc.Hub().ConnCount(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (handler *TrackerHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
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
func (handler *TrackerHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// svcError maps tracker service failures onto HTTP status codes.
func (handler *TrackerHTTPHandler) svcError(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	default:
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	}
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *TrackerHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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
