package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	errs "savingsbank/core/errors"
	"savingsbank/native/certificate"
)

type errorResponse struct {
	Error            string `json:"error"`
	Kind             string `json:"kind,omitempty"`
	RemainingSeconds uint64 `json:"remainingSeconds,omitempty"`
}

// statusForKind maps the error taxonomy to HTTP status codes.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindState, errs.KindReentrant:
		return http.StatusConflict
	case errs.KindUnauthorized:
		return http.StatusForbidden
	case errs.KindSecurity:
		return http.StatusLocked
	case errs.KindResource:
		return http.StatusUnprocessableEntity
	case errs.KindPaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := errs.KindOf(err)
	status := statusForKind(kind)
	resp := errorResponse{Error: err.Error(), Kind: kind.String()}
	switch {
	case kind == errs.KindUnauthorized:
		resp.Error = errs.ErrUnauthorized.Error()
	case kind == errs.KindUnknown:
		resp.Error = "internal error"
		resp.Kind = ""
	}
	var cooldown *certificate.CooldownError
	if errors.As(err, &cooldown) {
		resp.RemainingSeconds = cooldown.Remaining
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed",
			slog.String("component", "http"),
			slog.String("op", op),
			slog.Any("error", err))
	}
	writeJSON(w, status, resp)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: errs.KindValidation.String()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
