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

// LocationRequest is one GPS fix posted over HTTP.
type LocationRequest struct {
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

func (handler *TrackerHTTPHandler) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}

	var req LocationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 256<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := ports.ReportLocationInput{
		ContractorID: claims.Subject,
		Lat:          req.Lat,
		Lng:          req.Lng,
	}
	if req.RecordedAt != nil {
		in.RecordedAt = *req.RecordedAt
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.ReportLocation(opCtx, in)
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

func (handler *TrackerHTTPHandler) handleOnline(w http.ResponseWriter, r *http.Request) {
	handler.toggleOnline(w, r, true)
}

func (handler *TrackerHTTPHandler) handleOffline(w http.ResponseWriter, r *http.Request) {
	handler.toggleOnline(w, r, false)
}

func (handler *TrackerHTTPHandler) toggleOnline(w http.ResponseWriter, r *http.Request, online bool) {
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := handler.svc.ToggleOnline(opCtx, ports.ToggleOnlineInput{
		ContractorID: claims.Subject,
		Online:       online,
	})
	if err != nil {
		handler.svcError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"contractor_id": claims.Subject,
		"online":        online,
	})
}
