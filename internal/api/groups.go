package api

import (
	"net/http"

	"github.com/gnan700/splitledger/internal/models"
)

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := h.svc.Groups.Create(r.Context(), req.Name, req.Description, req.UserIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroup(group))
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := page(w, r)
	if !ok {
		return
	}
	groups, err := h.svc.Groups.List(r.Context(), skip, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]groupResponse, len(groups))
	for i, g := range groups {
		out[i] = toGroup(g)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.Groups.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroup(group))
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	var req updateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := h.svc.Groups.Update(r.Context(), r.PathValue("id"), models.GroupUpdate{
		Name:        req.Name,
		Description: req.Description,
		Members:     req.UserIDs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroup(group))
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Groups.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Group deleted successfully"})
}

func (h *Handler) addMembers(w http.ResponseWriter, r *http.Request) {
	var req addMembersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := h.svc.Groups.AddMembers(r.Context(), r.PathValue("id"), req.UserIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroup(group))
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Groups.RemoveMember(r.Context(), r.PathValue("id"), r.PathValue("userId")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "User removed from group successfully"})
}

func (h *Handler) groupBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.svc.Balances.Group(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalances(balances))
}
