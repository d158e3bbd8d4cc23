package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dispatch/internal/jwt"
	"dispatch/internal/ports"
)

// --- Handler: GET /jobs/feed?lat=..&lng=..&radius_km=.. ---

func (handler *DispatchHTTPHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "lat and lng query parameters are required", errors.New("bad coordinates"))
		return
	}

	var radius float64
	if raw := q.Get("radius_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			handler.httpError(ctx, w, http.StatusBadRequest, "radius_km must be a positive number", err)
			return
		}
		radius = v
	}

	in := ports.FeedInput{
		ContractorID: strings.TrimSpace(claims.Subject),
		Lat:          lat,
		Lng:          lng,
		RadiusKM:     radius,
	}

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	entries, err := handler.svc.Feed(ctxWithTimeout, in)
	if err != nil {
		handler.svcError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]any{
		"jobs":  entries,
		"count": len(entries),
	})
}
