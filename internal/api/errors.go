package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Veraticus/ledger-must-balance/internal/common"
)

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Count   int    `json:"count,omitempty"`
	Version int    `json:"expected_version,omitempty"`
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	var inUse *common.AccountInUseError
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &inUse),
		errors.Is(err, common.ErrVersionConflict),
		errors.Is(err, common.ErrAlreadyPaid),
		errors.Is(err, common.ErrNotPaid):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError reports err with the status and payload its type calls for.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var (
		vErr     *common.ValidationError
		inUse    *common.AccountInUseError
		conflict *common.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		resp.Field = vErr.Field
	case errors.As(err, &inUse):
		resp.Count = inUse.Count
	case errors.As(err, &conflict):
		resp.Version = conflict.ExpectedVersion
	}

	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
		resp.Error = "internal error"
	}
	s.writeJSON(w, status, resp)
}
