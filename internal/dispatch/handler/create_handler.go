package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"dispatch/internal/domain/job"
	"dispatch/internal/jwt"
	"dispatch/internal/ports"
)

// --- Request DTO (HTTP boundary) ---

type createJobRequest struct {
	CustomerID     string     `json:"customer_id"`
	Address        string     `json:"address"`
	Lat            float64    `json:"lat"`
	Lng            float64    `json:"lng"`
	Items          []job.Item `json:"items"`
	VolumeEstimate float64    `json:"volume_estimate"`
}

// ----- Handler: POST /jobs -----

func (handler *DispatchHTTPHandler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	// generate a context with request ID
	ctx := handler.withReqID(r.Context(), r)

	// check the content type
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	// limit body size
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	// decode strictly
	var req createJobRequest
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

	// obtain the JWT claims
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	// fill or verify customer_id against the token subject
	sub := strings.TrimSpace(claims.Subject)
	if strings.TrimSpace(req.CustomerID) == "" {
		req.CustomerID = sub
	} else if req.CustomerID != sub {
		handler.httpError(ctx, w, http.StatusForbidden, "customer_id does not match token subject", errors.New("customer/token mismatch"))
		return
	}

	in := ports.CreateJobInput{
		CustomerID:     strings.TrimSpace(req.CustomerID),
		Address:        strings.TrimSpace(req.Address),
		Lat:            req.Lat,
		Lng:            req.Lng,
		Items:          req.Items,
		VolumeEstimate: req.VolumeEstimate,
	}

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.CreateJob(ctxWithTimeout, in)
	if err != nil {
		handler.svcError(ctxWithTimeout, w, err)
		return
	}
	ctxWithTimeout = handler.logger.WithJobID(ctxWithTimeout, res.JobID)

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, res)
}
