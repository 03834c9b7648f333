package access

import (
	"context"
	"errors"
	"testing"
)

func newTestService(t *testing.T) (*Service, *InMemory) {
	t.Helper()
	store := NewInMemory()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

// seedHierarchy creates org -> project -> task -> subtask owned by "owner".
func seedHierarchy(t *testing.T, svc *Service) (org, project, task, subtask Entity) {
	t.Helper()
	ctx := context.Background()
	var err error
	org, err = svc.CreateEntity(ctx, KindOrganization, "", "Acme", "owner")
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	project, err = svc.CreateEntity(ctx, KindProject, org.ID, "Apollo", "owner")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	task, err = svc.CreateEntity(ctx, KindTask, project.ID, "Design", "owner")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	subtask, err = svc.CreateEntity(ctx, KindSubtask, task.ID, "Sketches", "owner")
	if err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	return org, project, task, subtask
}

func TestCreateEntityGrantsOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	org, err := svc.CreateEntity(ctx, KindOrganization, "", "Acme", "alice")
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	role, err := svc.ResolveRole(ctx, "alice", org.Ref())
	if err != nil || role != RoleOwner {
		t.Fatalf("creator role = %s, err=%v, want owner", role, err)
	}
}

func TestCreateProjectAuthorization(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	org, _, _, _ := seedHierarchy(t, svc)

	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "uma", RoleMember, "owner"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	// Member access at the organization is not enough to create a project.
	if _, err := svc.CreateEntity(ctx, KindProject, org.ID, "P1", "uma"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for member, got %v", err)
	}

	proj, err := svc.CreateEntity(ctx, KindProject, org.ID, "P1", "owner")
	if err != nil {
		t.Fatalf("owner create project: %v", err)
	}
	role, err := svc.ResolveRole(ctx, "owner", proj.Ref())
	if err != nil || role != RoleOwner {
		t.Fatalf("creator should resolve as owner of new project, got %s err=%v", role, err)
	}
}

func TestCreateEntityValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateEntity(ctx, KindOrganization, "", "   ", "alice"); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank name: expected ErrValidation, got %v", err)
	}
	if _, err := svc.CreateEntity(ctx, KindProject, "", "P", "alice"); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing parent: expected ErrValidation, got %v", err)
	}
	if _, err := svc.CreateEntity(ctx, KindProject, "ghost", "P", "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown parent: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCascadeIsTotal(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	org, project, task, subtask := seedHierarchy(t, svc)

	if _, err := svc.AddMember(ctx, KindTask, task.ID, "uma", RoleGuest, "owner"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	ref := task.Ref()
	if _, err := svc.CreateNote(ctx, "owner", &ref, "remember the sketches"); err != nil {
		t.Fatalf("create note: %v", err)
	}

	if err := svc.DeleteEntity(ctx, KindOrganization, org.ID, "owner"); err != nil {
		t.Fatalf("delete organization: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.entities) != 0 {
		t.Fatalf("orphan entities remain: %v", store.entities)
	}
	for ref, grants := range store.grants {
		if len(grants) != 0 {
			t.Fatalf("orphan grants remain at %s: %v", ref, grants)
		}
	}
	if len(store.notes) != 0 {
		t.Fatalf("orphan notes remain: %v", store.notes)
	}
	_ = project
	_ = subtask
}

func TestDeleteEntityRequiresAdministrator(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	org, project, _, _ := seedHierarchy(t, svc)

	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "mia", RoleManager, "owner"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := svc.DeleteEntity(ctx, KindProject, project.ID, "mia"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("manager delete: expected ErrPermissionDenied, got %v", err)
	}
	if err := svc.DeleteEntity(ctx, KindProject, "ghost", "owner"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing entity: expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteEntity(ctx, KindProject, project.ID, "owner"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestAddMemberRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	org, _, _, _ := seedHierarchy(t, svc)

	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "mia", RoleManager, "owner"); err != nil {
		t.Fatalf("owner grants manager: %v", err)
	}
	// A manager cannot grant a role above their own.
	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "uma", RoleOwner, "mia"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("manager granting owner: expected ErrPermissionDenied, got %v", err)
	}
	// Granting at their own level to a fresh user is allowed.
	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "uma", RoleManager, "mia"); err != nil {
		t.Fatalf("manager granting manager: %v", err)
	}
	// Overwriting an equal grant requires a strictly higher requester.
	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "uma", RoleGuest, "mia"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("equal-grant override: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "uma", RoleGuest, "owner"); err != nil {
		t.Fatalf("owner downgrades manager: %v", err)
	}
	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "uma", Role(42), "owner"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestRemoveMemberLastOwnerConstraint(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	org, _, _, _ := seedHierarchy(t, svc)

	if err := svc.RemoveMember(ctx, KindOrganization, org.ID, "owner", "owner"); !errors.Is(err, ErrLastOwner) {
		t.Fatalf("expected ErrLastOwner, got %v", err)
	}

	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "second", RoleOwner, "owner"); err != nil {
		t.Fatalf("add second owner: %v", err)
	}
	if err := svc.RemoveMember(ctx, KindOrganization, org.ID, "owner", "second"); err != nil {
		t.Fatalf("remove with another owner remaining: %v", err)
	}
	role, err := svc.ResolveRole(ctx, "owner", org.Ref())
	if !errors.Is(err, ErrNoAccess) {
		t.Fatalf("removed member still resolves: role=%s err=%v", role, err)
	}
}

func TestRemoveMemberRequiresAtLeastTargetRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	org, _, _, _ := seedHierarchy(t, svc)

	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "adam", RoleAdministrator, "owner"); err != nil {
		t.Fatalf("add administrator: %v", err)
	}
	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "mia", RoleManager, "owner"); err != nil {
		t.Fatalf("add manager: %v", err)
	}

	if err := svc.RemoveMember(ctx, KindOrganization, org.ID, "adam", "mia"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("manager removing administrator: expected ErrPermissionDenied, got %v", err)
	}
	if err := svc.RemoveMember(ctx, KindOrganization, org.ID, "mia", "adam"); err != nil {
		t.Fatalf("administrator removing manager: %v", err)
	}
	if err := svc.RemoveMember(ctx, KindOrganization, org.ID, "mia", "adam"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("removing absent grant: expected ErrNotFound, got %v", err)
	}
}

func TestNotesScoping(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, project, _, _ := seedHierarchy(t, svc)

	ref := project.Ref()
	if _, err := svc.CreateNote(ctx, "stranger", &ref, "hi"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("note on inaccessible entity: expected ErrPermissionDenied, got %v", err)
	}

	note, err := svc.CreateNote(ctx, "owner", &ref, "kickoff summary")
	if err != nil {
		t.Fatalf("create attached note: %v", err)
	}
	personal, err := svc.CreateNote(ctx, "owner", nil, "my private plan")
	if err != nil {
		t.Fatalf("create personal note: %v", err)
	}

	// Personal notes do not leak their existence to other users.
	if err := svc.DeleteNote(ctx, personal.ID, "stranger"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign personal delete: expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteNote(ctx, note.ID, "owner"); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	if err := svc.DeleteNote(ctx, personal.ID, "owner"); err != nil {
		t.Fatalf("personal delete: %v", err)
	}
}

func TestUserOverview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	org, project, _, _ := seedHierarchy(t, svc)

	hidden, err := svc.CreateEntity(ctx, KindProject, org.ID, "Skunkworks", "owner")
	if err != nil {
		t.Fatalf("create second project: %v", err)
	}
	if _, err := svc.AddMember(ctx, KindProject, project.ID, "uma", RoleMember, "owner"); err != nil {
		t.Fatalf("add project member: %v", err)
	}
	if _, err := svc.AddMember(ctx, KindOrganization, org.ID, "uma", RoleGuest, "owner"); err != nil {
		t.Fatalf("add org guest: %v", err)
	}

	data, err := svc.UserOverview(ctx, "uma", org.ID)
	if err != nil {
		t.Fatalf("UserOverview: %v", err)
	}
	if data.Organization == nil || data.Organization.ID != org.ID {
		t.Fatalf("unexpected organization: %+v", data.Organization)
	}
	// Guest at the organization inherits into both projects.
	if len(data.Projects) != 2 {
		t.Fatalf("expected 2 visible projects, got %d", len(data.Projects))
	}

	overview, err := svc.UserOverview(ctx, "uma", "")
	if err != nil {
		t.Fatalf("UserOverview all orgs: %v", err)
	}
	if len(overview.Organizations) != 1 || overview.Organizations[0].ID != org.ID {
		t.Fatalf("unexpected organizations: %+v", overview.Organizations)
	}
	_ = hidden
}
