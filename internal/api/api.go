// Package api exposes the ledger services as a REST/JSON API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gnan700/splitledger/internal/service"
)

const (
	maxBodyBytes = 1 << 20
	defaultLimit = 100
)

// Handler serves the REST API.
type Handler struct {
	svc *service.Services
}

// NewHandler creates a Handler over the given services.
func NewHandler(svc *service.Services) *Handler {
	return &Handler{svc: svc}
}

// Register adds every API route to mux. Collection routes answer both with
// and without the trailing slash.
func (h *Handler) Register(mux *http.ServeMux) {
	collection := func(method, path string, fn http.HandlerFunc) {
		mux.HandleFunc(method+" "+path, fn)
		mux.HandleFunc(method+" "+path+"/{$}", fn)
	}

	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("GET /healthz", h.health)

	collection("POST", "/users", h.createUser)
	collection("GET", "/users", h.listUsers)
	mux.HandleFunc("GET /users/{id}", h.getUser)
	mux.HandleFunc("PUT /users/{id}", h.updateUser)
	mux.HandleFunc("DELETE /users/{id}", h.deleteUser)
	mux.HandleFunc("GET /users/{id}/balances", h.userBalances)

	collection("POST", "/groups", h.createGroup)
	collection("GET", "/groups", h.listGroups)
	mux.HandleFunc("GET /groups/{id}", h.getGroup)
	mux.HandleFunc("PUT /groups/{id}", h.updateGroup)
	mux.HandleFunc("DELETE /groups/{id}", h.deleteGroup)
	mux.HandleFunc("GET /groups/{id}/balances", h.groupBalances)
	mux.HandleFunc("POST /groups/{id}/members", h.addMembers)
	mux.HandleFunc("DELETE /groups/{id}/members/{userId}", h.removeMember)
	mux.HandleFunc("GET /groups/{id}/expenses", h.listExpenses)
	mux.HandleFunc("POST /groups/{id}/expenses", h.createExpense)
	mux.HandleFunc("GET /groups/{id}/settlements", h.listSettlements)

	collection("POST", "/settlements", h.createSettlement)
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "splitledger API"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads a JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "invalid request body"
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			msg = "request body is empty"
		case errors.As(err, &syntaxErr):
			msg = "malformed JSON at offset " + strconv.FormatInt(syntaxErr.Offset, 10)
		case errors.As(err, &typeErr):
			msg = "invalid type for field " + typeErr.Field
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, msg)
		return false
	}
	return true
}

// page parses skip/limit query parameters (defaults 0 and 100).
func page(w http.ResponseWriter, r *http.Request) (skip, limit int, ok bool) {
	parse := func(name string, def int) (int, bool) {
		v := r.URL.Query().Get(name)
		if v == "" {
			return def, true
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, name+" must be a non-negative integer")
			return 0, false
		}
		return n, true
	}
	if skip, ok = parse("skip", 0); !ok {
		return 0, 0, false
	}
	if limit, ok = parse("limit", defaultLimit); !ok {
		return 0, 0, false
	}
	return skip, limit, true
}
