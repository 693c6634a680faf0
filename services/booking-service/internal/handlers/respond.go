package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/agendei/libs/httpx"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sends v with status. The header is already out when encoding fails, so the
// failure, usually a client that went away, is only logged.
func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("response encode failed",
			"path", r.URL.Path,
			"status", status,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
	}
}

// writeError renders domain errors with their code; anything else is logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		writeJSON(w, r, logger, apperr.HTTPStatus(appErr), errorBody{Error: string(appErr.Code), Message: appErr.Message})
	case errors.Is(err, errUnauthenticated):
		writeJSON(w, r, logger, http.StatusUnauthorized, errorBody{Error: "Unauthorized", Message: "missing or invalid credentials"})
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		writeJSON(w, r, logger, http.StatusInternalServerError, errorBody{Error: "Internal", Message: "internal error"})
	}
}

func invalid(msg string) error {
	return apperr.New(apperr.InvalidInput, msg)
}

// decodeJSON reads an optional JSON body into v; an empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return invalid("invalid json body")
	}
	return nil
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

// parseDateTime accepts RFC 3339 or a local date-time without offset, read in loc.
func parseDateTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("dataHora must look like 2006-01-02T15:04:05")
}

func formatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02T15:04:05")
}
