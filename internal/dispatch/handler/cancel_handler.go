package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"dispatch/internal/jwt"
	"dispatch/internal/ports"
)

// --- Request DTO (HTTP boundary) ---

type cancelJobRequest struct {
	Reason string `json:"reason"`
}

// --- Handler: POST /jobs/{job_id}/cancel ---

func (handler *DispatchHTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 256<<10) // 256 KiB
	defer r.Body.Close()

	jobID := strings.TrimSpace(r.PathValue("job_id"))
	if jobID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "job_id is required", errors.New("missing job_id"))
		return
	}
	ctx = handler.logger.WithJobID(ctx, jobID)

	// decode strictly
	var req cancelJobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	in := ports.CancelInput{
		JobID:  jobID,
		Reason: strings.TrimSpace(req.Reason),
		Actor: ports.Actor{
			ID:   strings.TrimSpace(claims.Subject),
			Role: claims.Role,
		},
	}

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Cancel(ctxWithTimeout, in)
	if err != nil {
		handler.svcError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
