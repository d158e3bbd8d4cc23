package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"dispatch/internal/jwt"
)

// --- Handler: POST /jobs/{job_id}/accept ---

// The contractor claiming the job is always the token subject; the request
// carries no body. Losers of the claim race get 409.
func (handler *DispatchHTTPHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
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

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Accept(ctxWithTimeout, jobID, strings.TrimSpace(claims.Subject))
	if err != nil {
		handler.svcError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
