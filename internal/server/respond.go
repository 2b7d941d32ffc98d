package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Marioshad/foodvault/internal/auth"
	"github.com/Marioshad/foodvault/internal/inventory"
	"github.com/Marioshad/foodvault/internal/receipt"
	"github.com/Marioshad/foodvault/internal/scanning"
)

// errorBody is the JSON shape of every non-2xx API response
type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Detail  string            `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps err onto a status code and error body
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		verr *inventory.ValidationError
		xerr *scanning.ExtractionError
	)

	// Extraction failures are reported as plain text
	if errors.As(err, &xerr) {
		http.Error(w, "Failed to extract receipt data", http.StatusInternalServerError)
		return
	}

	body := errorBody{Message: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body.Message = "validation failed"
		body.Fields = verr.Fields
	case errors.Is(err, receipt.ErrEmpty), errors.Is(err, receipt.ErrTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, inventory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, inventory.ErrUsernameTaken), errors.Is(err, inventory.ErrLocationInUse):
		status = http.StatusConflict
	default:
		slog.Error("Internal server error", "error", err)
		body.Message = "Internal server error"
	}

	if s.opts.Development {
		body.Detail = err.Error()
	}
	writeJSON(w, status, body)
}

// decodeJSON reads the request body into v, reporting malformed JSON as a validation error
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return inventory.NewValidationError("body", "must be valid JSON: "+err.Error())
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, inventory.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

// currentUser is the user attached by requireAuth
func currentUser(r *http.Request) *inventory.User {
	user, _ := auth.UserFrom(r.Context())
	return user
}
