package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                      "/",
		"/metrics":                              "/metrics",
		"/v1/projects/01ABC":                    "/v1/projects/:id",
		"/v1/projects/01ABC/members":            "/v1/projects/:id/members",
		"/v1/projects/01ABC/members/01DEF":      "/v1/projects/:id/members/:user_id",
		"/v1/organizations/9/extra/deep":        "/v1/organizations/9/extra/deep",
		"/v1/auth/login":                        "/v1/auth/login",
		"/v1/tasks/01XYZ?organization_id=01ABC": "/v1/tasks/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
