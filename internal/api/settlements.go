package api

import (
	"net/http"

	"github.com/gnan700/splitledger/internal/service"
)

func (h *Handler) listSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.svc.Settlements.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]settlementResponse, len(settlements))
	for i, s := range settlements {
		out[i] = toSettlement(s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createSettlement(w http.ResponseWriter, r *http.Request) {
	var req createSettlementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	settlement, err := h.svc.Settlements.Record(r.Context(), service.NewSettlement{
		GroupID:     req.GroupID,
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlement(settlement))
}
