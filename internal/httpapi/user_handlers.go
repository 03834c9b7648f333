package httpapi

import (
	"net/http"
	"strings"

	"hellai.org/internal/access"
	"hellai.org/internal/audit"
)

type createNoteRequest struct {
	Body       string `json:"body"`
	EntityKind string `json:"entity_kind,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
}

func (a *API) handleNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Both entity fields present means an attached note; both absent means a
	// personal one. Anything in between is malformed.
	var ref *access.EntityRef
	hasKind := strings.TrimSpace(req.EntityKind) != ""
	hasID := strings.TrimSpace(req.EntityID) != ""
	switch {
	case hasKind && hasID:
		built, err := access.NewRef(access.EntityKind(req.EntityKind), req.EntityID)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ref = &built
	case hasKind || hasID:
		writeError(w, r, http.StatusBadRequest, "entity_kind and entity_id must be provided together")
		return
	}

	note, err := a.access.CreateNote(r.Context(), userID, ref, req.Body)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.note.created", map[string]any{
		"note_id": note.ID,
	})
	w.Header().Set("Location", "/v1/notes/"+note.ID)
	writeJSON(w, http.StatusCreated, note)
}

func (a *API) handleNoteResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/notes/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.access.DeleteNote(r.Context(), id, userID); err != nil {
		handleAccessError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "access.note.deleted", map[string]any{
		"note_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	User *userResponse `json:"user"`
	access.UserData
}

// handleMe returns the caller's account plus their organizations, or one
// organization with the projects the caller can see when organization_id is
// given.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := a.auth.GetUser(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	orgID := strings.TrimSpace(r.URL.Query().Get("organization_id"))
	data, err := a.access.UserOverview(r.Context(), userID, orgID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(user), UserData: data})
}
