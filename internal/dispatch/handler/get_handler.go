package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"dispatch/internal/jwt"
	"dispatch/internal/ports"
)

// --- Handler: GET /jobs/{job_id} ---

func (handler *DispatchHTTPHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	jobID := strings.TrimSpace(r.PathValue("job_id"))
	if jobID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "job_id is required", errors.New("missing job_id"))
		return
	}
	ctx = handler.logger.WithJobID(ctx, jobID)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	actor := ports.Actor{
		ID:   strings.TrimSpace(claims.Subject),
		Role: claims.Role,
	}

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	view, err := handler.svc.GetJob(ctxWithTimeout, jobID, actor)
	if err != nil {
		handler.svcError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, view)
}
