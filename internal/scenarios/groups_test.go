package scenarios

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
)

func memberIDs(members GroupMembers) []uint {
	ids := make([]uint, 0, len(members.Scenarios))
	for _, scenario := range members.Scenarios {
		ids = append(ids, scenario.ID)
	}
	return ids
}

func TestGroupsListAndShow(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	first := mustScenario(t, service, "first", hands.Grid{})
	second := mustScenario(t, service, "second", hands.Grid{})

	opens, err := service.CreateGroup(ctx, "Opens", true)
	if err != nil {
		t.Fatalf("unexpected group error: %v", err)
	}
	empty, err := service.CreateGroup(ctx, "Empty", false)
	if err != nil {
		t.Fatalf("unexpected group error: %v", err)
	}
	for _, id := range []uint{second.ID, first.ID} {
		if err := service.AddToGroup(ctx, opens.ID, id); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
	}

	groups, err := service.Groups(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(groups) != 2 || groups[0].Group.ID != opens.ID || groups[1].Group.ID != empty.ID {
		t.Fatalf("expected groups oldest first, got %+v", groups)
	}
	if ids := memberIDs(groups[0]); len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Fatalf("expected members ordered by id, got %v", ids)
	}
	if groups[1].Scenarios == nil || len(groups[1].Scenarios) != 0 {
		t.Fatalf("expected an empty member list, got %#v", groups[1].Scenarios)
	}

	shown, err := service.Group(ctx, opens.ID)
	if err != nil {
		t.Fatalf("unexpected show error: %v", err)
	}
	if shown.Group.Name != "Opens" || len(shown.Scenarios) != 2 || shown.Scenarios[0].Name != "first" {
		t.Fatalf("unexpected group: %+v", shown)
	}
	if _, err := service.Group(ctx, 404); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateGroup(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	group, err := service.CreateGroup(ctx, "Opens", true)
	if err != nil {
		t.Fatalf("unexpected group error: %v", err)
	}

	name := "  Late opens "
	inactive := false
	updated, err := service.UpdateGroup(ctx, group.ID, GroupUpdate{Name: &name, IsActive: &inactive})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Name != "Late opens" || updated.IsActive {
		t.Fatalf("unexpected updated group: %+v", updated)
	}

	unchanged, err := service.UpdateGroup(ctx, group.ID, GroupUpdate{})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if unchanged != updated {
		t.Fatalf("expected an empty update to keep the group, got %+v", unchanged)
	}

	blank := "   "
	if _, err := service.UpdateGroup(ctx, group.ID, GroupUpdate{Name: &blank}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := service.UpdateGroup(ctx, 404, GroupUpdate{IsActive: &inactive}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteGroupKeepsScenarios(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	scenario := mustScenario(t, service, "first", hands.Grid{})
	group, err := service.CreateGroup(ctx, "Opens", true)
	if err != nil {
		t.Fatalf("unexpected group error: %v", err)
	}
	if err := service.AddToGroup(ctx, group.ID, scenario.ID); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	if err := service.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := service.Group(ctx, group.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected deleted group to be missing, got %v", err)
	}
	var links int64
	if err := db.Model(&GroupScenario{}).Where("group_id = ?", group.ID).Count(&links).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if links != 0 {
		t.Fatalf("expected memberships to go, got %d", links)
	}
	if _, err := service.Scenario(ctx, scenario.ID); err != nil {
		t.Fatalf("expected scenario to survive, got %v", err)
	}
	if err := service.DeleteGroup(ctx, group.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncGroupScenariosReplacesMembership(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	first := mustScenario(t, service, "first", hands.Grid{})
	second := mustScenario(t, service, "second", hands.Grid{})
	third := mustScenario(t, service, "third", hands.Grid{})
	group, err := service.CreateGroup(ctx, "Opens", true)
	if err != nil {
		t.Fatalf("unexpected group error: %v", err)
	}
	if err := service.AddToGroup(ctx, group.ID, first.ID); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	if err := service.SyncGroupScenarios(ctx, group.ID, []uint{third.ID, second.ID, third.ID}); err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	ids, err := service.GroupScenarioIDs(ctx, group.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != second.ID || ids[1] != third.ID {
		t.Fatalf("expected exactly the synced members, got %v", ids)
	}

	err = service.SyncGroupScenarios(ctx, group.ID, []uint{first.ID, 404})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ids, err = service.GroupScenarioIDs(ctx, group.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != second.ID {
		t.Fatalf("expected a failed sync to leave membership alone, got %v", ids)
	}

	if err := service.SyncGroupScenarios(ctx, group.ID, nil); err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	ids, err = service.GroupScenarioIDs(ctx, group.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected an empty sync to clear the group, got %v", ids)
	}

	if err := service.SyncGroupScenarios(ctx, 404, []uint{first.ID}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGroupsOfAndCreatorGroups(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	mine := mustScenario(t, service, "mine", hands.Grid{})
	theirs, err := service.CreateScenario(ctx, Input{
		Name:       "theirs",
		Positions:  []Position{PositionBB},
		StackDepth: 40,
		CreatedBy:  "user-2",
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	loose := mustScenario(t, service, "loose", hands.Grid{})

	shared, err := service.CreateGroup(ctx, "Shared", true)
	if err != nil {
		t.Fatalf("unexpected group error: %v", err)
	}
	foreign, err := service.CreateGroup(ctx, "Foreign", false)
	if err != nil {
		t.Fatalf("unexpected group error: %v", err)
	}
	if err := service.SyncGroupScenarios(ctx, shared.ID, []uint{mine.ID, theirs.ID}); err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	if err := service.SyncGroupScenarios(ctx, foreign.ID, []uint{theirs.ID}); err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}

	memberships, err := service.GroupsOf(ctx, []uint{mine.ID, theirs.ID, loose.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := memberships[mine.ID]; len(got) != 1 || got[0].ID != shared.ID {
		t.Fatalf("unexpected groups for mine: %+v", got)
	}
	if got := memberships[theirs.ID]; len(got) != 2 || got[0].ID != shared.ID || got[1].ID != foreign.ID {
		t.Fatalf("unexpected groups for theirs: %+v", got)
	}
	if _, found := memberships[loose.ID]; found {
		t.Fatalf("expected ungrouped scenario to be absent")
	}

	groups, err := service.CreatorGroups(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 || groups[0].Group.ID != shared.ID {
		t.Fatalf("expected only the shared group, got %+v", groups)
	}
	if ids := memberIDs(groups[0]); len(ids) != 1 || ids[0] != mine.ID {
		t.Fatalf("expected members restricted to the creator, got %v", ids)
	}

	groups, err = service.CreatorGroups(ctx, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
}
