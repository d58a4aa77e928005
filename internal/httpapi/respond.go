// Package httpapi serves the versioned REST surface and mounts the gateway
// upgrade endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

// maxBodyBytes caps request bodies before JSON decoding.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type listCursor struct {
	After   string `json:"after,omitempty"`
	HasMore bool   `json:"has_more"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("api: encode response", "error", err)
	}
}

// respondData wraps a single resource in the {"data": ...} envelope.
func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"data": data})
}

// respondList wraps a collection, attaching the cursor when the endpoint
// paginates.
func respondList(w http.ResponseWriter, data any, cur *listCursor) {
	body := map[string]any{"data": data}
	if cur != nil {
		body["cursor"] = cur
	}
	writeJSON(w, http.StatusOK, body)
}

func respondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// errorStatus maps the sentinel taxonomy to wire codes and HTTP statuses.
func errorStatus(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return "invalid_request", http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden", http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return "already_exists", http.StatusConflict
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return "payload_too_large", http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited", http.StatusTooManyRequests
	default:
		return "internal_error", http.StatusInternalServerError
	}
}

// respondError serves the {"error": {...}} envelope. Internal errors are
// logged with the request path and masked on the wire.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := errorStatus(err)

	body := errorBody{Code: code, Message: err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Message = de.Message
		body.Details = de.Details
		if de.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(de.RetryAfter)))
		}
	}
	if status == http.StatusInternalServerError {
		slog.Error("api: internal error", "error", err, "method", r.Method, "path", r.URL.Path)
		body.Message = "internal server error"
		body.Details = nil
	}
	writeJSON(w, status, map[string]any{"error": body})
}

// retryAfterSeconds rounds up so a sub-second wait never advertises zero.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// decodeJSON reads the capped request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.PayloadTooLarge("request body too large")
		}
		return domain.BadRequest("malformed json body")
	}
	return nil
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// clampLimit bounds a client-supplied page size.
func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
