package api

import (
	"net/http"

	"github.com/gnan700/splitledger/internal/service"
)

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Expenses.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenses(list))
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	policy, err := req.policy()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	list, err := h.svc.Expenses.Create(r.Context(), r.PathValue("id"), service.NewExpense{
		Description: req.Description,
		Amount:      req.Amount,
		PaidBy:      req.PaidBy,
		Policy:      policy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenses(list)[0])
}
