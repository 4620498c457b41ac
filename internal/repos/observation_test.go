package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/edusight/observation-service/internal/types"
)

func newObservation(createdBy string, entities ...string) *types.Observation {
	return &types.Observation{
		Name:               "School visit",
		SolutionID:         uuid.New(),
		SolutionExternalID: "SOLUTION-001",
		EntityType:         "school",
		Entities:           datatypes.NewJSONSlice(entities),
		Status:             types.StatusPublished,
		CreatedBy:          createdBy,
	}
}

func TestAddEntitiesSetSemantics(t *testing.T) {
	db := newTestDB(t)
	repo := NewObservationRepo(db, newTestLogger(t))
	ctx := context.Background()

	obs, err := repo.Create(ctx, nil, newObservation("user-1", "e1", "e2"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.AddEntities(ctx, nil, obs.ID, []string{"e2", "e3", "e3"}); err != nil {
		t.Fatalf("AddEntities: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, obs.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	want := []string{"e1", "e2", "e3"}
	if len(got.Entities) != len(want) {
		t.Fatalf("expected entities %v, got %v", want, got.Entities)
	}
	for i, e := range want {
		if got.Entities[i] != e {
			t.Fatalf("expected entities %v, got %v", want, got.Entities)
		}
	}
}

func TestRemoveEntitiesBlockedWhenCompleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewObservationRepo(db, newTestLogger(t))
	ctx := context.Background()

	obs := newObservation("user-1", "e1", "e2")
	obs.Status = types.StatusCompleted
	created, err := repo.Create(ctx, nil, obs)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.RemoveEntities(ctx, nil, created.ID, "user-1", []string{"e1"}); err != nil {
		t.Fatalf("RemoveEntities: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("expected completed observation untouched, got %v", got.Entities)
	}
}

func TestRemoveEntitiesSetDifference(t *testing.T) {
	db := newTestDB(t)
	repo := NewObservationRepo(db, newTestLogger(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, nil, newObservation("user-1", "e1", "e2", "e3"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.RemoveEntities(ctx, nil, created.ID, "user-1", []string{"e2", "missing"}); err != nil {
		t.Fatalf("RemoveEntities: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Entities) != 2 || got.Entities[0] != "e1" || got.Entities[1] != "e3" {
		t.Fatalf("expected [e1 e3], got %v", got.Entities)
	}
}

func TestGetPublishedBySolutionExternalID(t *testing.T) {
	db := newTestDB(t)
	repo := NewObservationRepo(db, newTestLogger(t))
	ctx := context.Background()

	inactive := newObservation("user-1", "e1")
	inactive.Status = types.StatusInactive
	if _, err := repo.Create(ctx, nil, inactive); err != nil {
		t.Fatalf("Create: %v", err)
	}

	published, err := repo.Create(ctx, nil, newObservation("user-1", "e2"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetPublishedBySolutionExternalID(ctx, nil, "SOLUTION-001", "user-1")
	if err != nil {
		t.Fatalf("GetPublishedBySolutionExternalID: %v", err)
	}
	if got == nil || got.ID != published.ID {
		t.Fatalf("expected the published observation")
	}

	none, err := repo.GetPublishedBySolutionExternalID(ctx, nil, "SOLUTION-001", "someone-else")
	if err != nil {
		t.Fatalf("GetPublishedBySolutionExternalID: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no observation for another creator")
	}
}

func TestListByCreatorPagedExcludesProjectReferences(t *testing.T) {
	db := newTestDB(t)
	repo := NewObservationRepo(db, newTestLogger(t))
	ctx := context.Background()

	if _, err := repo.Create(ctx, nil, newObservation("user-1", "e1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fromProject := newObservation("user-1", "e2")
	fromProject.ReferenceFrom = types.ReferenceFromProject
	if _, err := repo.Create(ctx, nil, fromProject); err != nil {
		t.Fatalf("Create: %v", err)
	}

	results, count, err := repo.ListByCreatorPaged(ctx, nil, "user-1", ListFilter{PageNo: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("ListByCreatorPaged: %v", err)
	}
	if count != 1 || len(results) != 1 {
		t.Fatalf("expected project-referenced observation excluded, got count=%d len=%d", count, len(results))
	}
}
