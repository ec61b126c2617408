package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tendercrm/internal/common"
	"github.com/dmitrijs2005/tendercrm/internal/entities"
	"github.com/dmitrijs2005/tendercrm/internal/server/repositories/rows"
	"github.com/dmitrijs2005/tendercrm/internal/server/services"
)

// ErrorResponse is the PostgREST error body.
type ErrorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
	Hint    *string `json:"hint"`
}

func strPtr(s string) *string { return &s }

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error onto a status and error body.
// Unknown errors are logged and reported as 500 without their text.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *entities.ValidationError

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: "23514", Message: ve.Error()})
	case errors.Is(err, services.ErrBadRequest):
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: "PGRST102", Message: err.Error()})
	case errors.Is(err, rows.ErrBadOrder):
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: "PGRST100", Message: err.Error()})
	case errors.Is(err, rows.ErrConflict):
		writeError(w, http.StatusConflict, ErrorResponse{
			Code:    "23505",
			Message: "duplicate key value violates unique constraint",
			Details: strPtr(err.Error()),
		})
	case errors.Is(err, entities.ErrUnknownTable):
		writeError(w, http.StatusNotFound, ErrorResponse{Code: "PGRST205", Message: err.Error()})
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{Code: "PGRST116", Message: "row not found"})
	default:
		s.logger.Error(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Code: "XX000", Message: "internal server error"})
	}
}
