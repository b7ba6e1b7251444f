package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gnan700/splitledger/internal/service"
)

// Error codes carried in the "code" field of error bodies.
const (
	codeInvalidRequest     = "invalid_request"
	codeValidation         = "validation_error"
	codeNotFound           = "not_found"
	codeOutstandingBalance = "outstanding_balance"
	codeEmailTaken         = "email_taken"
	codeInternal           = "internal_error"
)

type blockerResponse struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Amount    money  `json:"amount"`
}

// errorResponse repeats the message in "detail" for clients that read that
// field instead.
type errorResponse struct {
	Status   string            `json:"status"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Detail   string            `json:"detail"`
	Blockers []blockerResponse `json:"blockers,omitempty"`
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		Detail:  message,
	})
}

// writeServiceError maps a service error to its HTTP status:
// ValidationError and ConflictError 400, NotFoundError 404, duplicate email
// 409, anything else 500 without leaking the cause.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		ve *service.ValidationError
		nf *service.NotFoundError
		ce *service.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, codeValidation, ve.Message)
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, codeNotFound, nf.Error())
	case errors.As(err, &ce):
		resp := errorResponse{
			Status:   "error",
			Code:     codeOutstandingBalance,
			Message:  ce.Message,
			Detail:   ce.Message,
			Blockers: make([]blockerResponse, len(ce.Blockers)),
		}
		for i, b := range ce.Blockers {
			resp.Blockers[i] = blockerResponse{
				GroupID:   b.GroupID,
				GroupName: b.GroupName,
				UserID:    b.UserID,
				UserName:  b.UserName,
				Amount:    money(b.Amount),
			}
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, codeEmailTaken, err.Error())
	default:
		slog.Error("Internal error", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
