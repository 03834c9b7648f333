package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"hellai.org/internal/access"
	"hellai.org/internal/auth"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	accessSvc, err := access.NewService(access.NewInMemory())
	if err != nil {
		t.Fatalf("access service: %v", err)
	}
	store := auth.NewInMemory()
	authSvc, err := auth.NewService(store, store, store, "test-signing-secret")
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	api := New(accessSvc, authSvc, ReadyProbe{}, "test")
	api.rateBurst = 1000
	api.ratePerSec = 1000
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) del(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodDelete, path, nil, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

// register creates a user and returns their id and an auth header.
func (c *apiClient) register(login string) (string, map[string]string, tokenResponse) {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]any{
		"login":    login,
		"name":     login,
		"password": "Passw0rd",
		"email":    login + "@example.com",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: unexpected status %d", login, resp.StatusCode)
	}
	payload := decode[tokenResponse](c.t, resp)
	if payload.User == nil || payload.AccessToken == "" {
		c.t.Fatalf("register %s: incomplete response %+v", login, payload)
	}
	return payload.User.ID, map[string]string{"Authorization": "Bearer " + payload.AccessToken}, payload
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestAuthRequiredOnProtectedRoutes(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/v1/organizations", map[string]any{"name": "Acme"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestLoginFlow(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice")

	resp := api.post("/v1/auth/login", map[string]any{"login": "alice", "password": "Passw0rd"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](t, resp)
	if payload.AccessToken == "" || payload.RefreshToken == "" {
		t.Fatalf("login returned incomplete pair: %+v", payload)
	}

	resp = api.post("/v1/auth/login", map[string]any{"login": "alice", "password": "WrongPass1"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", resp.StatusCode)
	}
}

func TestRefreshReuseDetection(t *testing.T) {
	api := newTestAPI(t)
	_, _, first := api.register("bob")

	resp := api.post("/v1/auth/refresh", map[string]any{"refresh_token": first.RefreshToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.post("/v1/auth/refresh", map[string]any{"refresh_token": first.RefreshToken}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d", resp.StatusCode)
	}
	payload := decode[map[string]any](t, resp)
	if payload["code"] != "session_reuse_detected" {
		t.Fatalf("replay: expected reuse code, got %v", payload)
	}
}

func TestEntityLifecycleFlow(t *testing.T) {
	api := newTestAPI(t)
	_, ownerHdr, _ := api.register("owner1")
	memberID, memberHdr, _ := api.register("member1")

	// Owner creates an organization and becomes its owner.
	resp := api.post("/v1/organizations", map[string]any{"name": "Acme"}, ownerHdr)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create org: expected 201, got %d", resp.StatusCode)
	}
	org := decode[access.Entity](t, resp)

	// Owner creates a project under it.
	resp = api.post("/v1/projects", map[string]any{"name": "Billing", "parent_id": org.ID}, ownerHdr)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project: expected 201, got %d", resp.StatusCode)
	}
	project := decode[access.Entity](t, resp)

	// A stranger sees nothing inside the organization.
	resp = api.post("/v1/projects", map[string]any{"name": "Rogue", "parent_id": org.ID}, memberHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger create project: expected 403, got %d", resp.StatusCode)
	}

	// Owner grants member access at the organization.
	resp = api.post("/v1/organizations/"+org.ID+"/members",
		map[string]any{"user_id": memberID, "role": "member"}, ownerHdr)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add member: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Member-level access still cannot create projects.
	resp = api.post("/v1/projects", map[string]any{"name": "Side", "parent_id": org.ID}, memberHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member create project: expected 403, got %d", resp.StatusCode)
	}

	// But the member now sees the organization and its projects.
	resp = api.get("/v1/me", url.Values{"organization_id": {org.ID}}, memberHdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member overview: expected 200, got %d", resp.StatusCode)
	}
	overview := decode[meResponse](t, resp)
	if overview.User == nil || overview.User.ID != memberID {
		t.Fatalf("member overview user: %+v", overview.User)
	}
	if len(overview.Projects) != 1 || overview.Projects[0].ID != project.ID {
		t.Fatalf("member overview projects: %+v", overview.Projects)
	}

	// Member cannot delete; owner can, and children go with the org.
	resp = api.del("/v1/organizations/"+org.ID, memberHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member delete org: expected 403, got %d", resp.StatusCode)
	}
	resp = api.del("/v1/organizations/"+org.ID, ownerHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("owner delete org: expected 204, got %d", resp.StatusCode)
	}
	resp = api.del("/v1/projects/"+project.ID, ownerHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("project should be gone with the org, got %d", resp.StatusCode)
	}
}

func TestNotesEndpoints(t *testing.T) {
	api := newTestAPI(t)
	_, ownerHdr, _ := api.register("notes1")
	_, otherHdr, _ := api.register("notes2")

	// Personal note.
	resp := api.post("/v1/notes", map[string]any{"body": "remember the milk"}, ownerHdr)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create personal note: expected 201, got %d", resp.StatusCode)
	}
	note := decode[access.Note](t, resp)

	// Foreign personal notes are invisible, not forbidden.
	resp = api.del("/v1/notes/"+note.ID, otherHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign note delete: expected 404, got %d", resp.StatusCode)
	}
	resp = api.del("/v1/notes/"+note.ID, ownerHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("own note delete: expected 204, got %d", resp.StatusCode)
	}

	// Attached notes need both entity fields and a real grant.
	resp = api.post("/v1/notes", map[string]any{"body": "half ref", "entity_id": "x"}, ownerHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("half entity ref: expected 400, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/organizations", map[string]any{"name": "NoteOrg"}, ownerHdr)
	org := decode[access.Entity](t, resp)
	resp = api.post("/v1/notes", map[string]any{
		"body": "on the org", "entity_kind": "organization", "entity_id": org.ID,
	}, ownerHdr)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("attached note: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.post("/v1/notes", map[string]any{
		"body": "no access", "entity_kind": "organization", "entity_id": org.ID,
	}, otherHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("attached note without grant: expected 403, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	_, hdr, _ := api.register("methods")
	resp := api.get("/v1/organizations", nil, hdr)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "POST" {
		t.Fatalf("expected Allow: POST, got %q", allow)
	}
}
