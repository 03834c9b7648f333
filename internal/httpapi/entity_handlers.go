package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"hellai.org/internal/access"
	"hellai.org/internal/audit"
)

type createEntityRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (a *API) handleEntityCollection(w http.ResponseWriter, r *http.Request, kind access.EntityKind) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createEntityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entity, err := a.access.CreateEntity(r.Context(), kind, req.ParentID, req.Name, userID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.entity.created", map[string]any{
		"entity": entity.Ref().String(),
		"name":   entity.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/%s/%s", collectionSegment(kind), entity.ID))
	writeJSON(w, http.StatusCreated, entity)
}

// handleEntityScoped routes /v1/<collection>/{id} and its members subtree.
func (a *API) handleEntityScoped(w http.ResponseWriter, r *http.Request, segment string, kind access.EntityKind) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/"+segment+"/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleEntityResource(w, r, kind, parts[0])
	case len(parts) == 2 && parts[1] == "members":
		a.handleEntityMembers(w, r, kind, parts[0])
	case len(parts) == 3 && parts[1] == "members":
		a.handleEntityMember(w, r, kind, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleEntityResource(w http.ResponseWriter, r *http.Request, kind access.EntityKind, id string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.access.DeleteEntity(r.Context(), kind, id, userID); err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.entity.deleted", map[string]any{
		"entity": string(kind) + "/" + id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEntityMembers(w http.ResponseWriter, r *http.Request, kind access.EntityKind, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := a.access.AddMember(r.Context(), kind, id, req.UserID, role, userID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.member.added", map[string]any{
		"entity": grant.Entity.String(),
		"member": grant.UserID,
		"role":   grant.Role.String(),
	})
	writeJSON(w, http.StatusCreated, grant)
}

func (a *API) handleEntityMember(w http.ResponseWriter, r *http.Request, kind access.EntityKind, id, memberID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.access.RemoveMember(r.Context(), kind, id, memberID, userID); err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.member.removed", map[string]any{
		"entity": string(kind) + "/" + id,
		"member": memberID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func collectionSegment(kind access.EntityKind) string {
	for segment, k := range entityCollections {
		if k == kind {
			return segment
		}
	}
	return string(kind) + "s"
}
