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
	"dispatch/internal/dispatch/service"
	"dispatch/internal/domain/user"
	"dispatch/internal/jwt"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

// DispatchHTTPHandler adapts HTTP requests to the DispatchService.
type DispatchHTTPHandler struct {
	svc    ports.DispatchService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewDispatchHTTPHandler wires an HTTP handler around the DispatchService.
func NewDispatchHTTPHandler(svc ports.DispatchService, logger *logger.Logger, auth *jwt.Manager) *DispatchHTTPHandler {
	return &DispatchHTTPHandler{svc: svc, logger: logger, auth: auth}
}

// RegisterRoutes mounts dispatch endpoints on the provided mux.
func (handler *DispatchHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /jobs",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer)(handler.handleCreateJob),
	)
	mux.HandleFunc("GET /jobs/feed",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleOperator)(handler.handleFeed),
	)
	mux.HandleFunc("GET /jobs/{job_id}",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleDriver, user.RoleOperator, user.RoleAdmin)(handler.handleGetJob),
	)
	mux.HandleFunc("POST /jobs/{job_id}/accept",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleOperator)(handler.handleAccept),
	)
	mux.HandleFunc("PUT /jobs/{job_id}/delegate",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleOperator)(handler.handleDelegate),
	)
	mux.HandleFunc("PUT /jobs/{job_id}/status",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver, user.RoleAdmin)(handler.handleStatus),
	)
	mux.HandleFunc("POST /jobs/{job_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleOperator, user.RoleAdmin)(handler.handleCancel),
	)

	mux.HandleFunc("GET /jobs/health", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

// ----- general helpers -----

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

// TokenResponse represents the response for token generation
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *DispatchHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	if !req.Role.Valid() {
		handler.httpError(ctx, w, http.StatusBadRequest, "role must be one of: CUSTOMER, DRIVER, OPERATOR, ADMIN", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	response := TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, response)
}

func (handler *DispatchHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "dispatch-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (handler *DispatchHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
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
func (handler *DispatchHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusConflict {
		action = "conflict"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// svcError maps service sentinels onto HTTP status codes.
func (handler *DispatchHTTPHandler) svcError(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, service.ErrValidation):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, service.ErrForbidden):
		handler.httpError(ctx, w, http.StatusForbidden, err.Error(), err)
	case errors.Is(err, service.ErrNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, service.ErrConflict):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, service.ErrInvalidTransition):
		// same 409 as a lost race, but the body says no retry will help
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	default:
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	}
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *DispatchHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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
