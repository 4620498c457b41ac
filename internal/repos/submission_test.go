package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/edusight/observation-service/internal/types"
)

func newSubmission(observationID uuid.UUID, entityID string, number int) *types.ObservationSubmission {
	return &types.ObservationSubmission{
		ObservationID:    observationID,
		EntityID:         entityID,
		SubmissionNumber: number,
		SolutionID:       uuid.New(),
		Status:           types.StatusStarted,
		CreatedBy:        "user-1",
	}
}

func TestFindOrCreateConverges(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepo(db, newTestLogger(t))
	ctx := context.Background()

	observationID := uuid.New()

	first, created, err := repo.FindOrCreate(ctx, nil, newSubmission(observationID, "entity-1", 1))
	if err != nil {
		t.Fatalf("first FindOrCreate: %v", err)
	}
	if !created {
		t.Fatalf("expected first call to create")
	}

	second, created, err := repo.FindOrCreate(ctx, nil, newSubmission(observationID, "entity-1", 1))
	if err != nil {
		t.Fatalf("second FindOrCreate: %v", err)
	}
	if created {
		t.Fatalf("expected second call to observe the existing row")
	}
	if second.ID != first.ID {
		t.Fatalf("expected one submission per tuple, got %s and %s", first.ID, second.ID)
	}
}

func TestFindOrCreateDistinctTuples(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepo(db, newTestLogger(t))
	ctx := context.Background()

	observationID := uuid.New()

	a, _, err := repo.FindOrCreate(ctx, nil, newSubmission(observationID, "entity-1", 1))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	b, created, err := repo.FindOrCreate(ctx, nil, newSubmission(observationID, "entity-1", 2))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if !created || a.ID == b.ID {
		t.Fatalf("expected a new row for a new submission number")
	}
}

func TestLastSubmissionNumber(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepo(db, newTestLogger(t))
	ctx := context.Background()

	observationID := uuid.New()

	n, err := repo.LastSubmissionNumber(ctx, nil, observationID, "entity-1")
	if err != nil {
		t.Fatalf("LastSubmissionNumber: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 for no submissions, got %d", n)
	}

	for i := 1; i <= 3; i++ {
		sub := newSubmission(observationID, "entity-1", i)
		sub.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if _, _, err := repo.FindOrCreate(ctx, nil, sub); err != nil {
			t.Fatalf("FindOrCreate %d: %v", i, err)
		}
	}

	n, err = repo.LastSubmissionNumber(ctx, nil, observationID, "entity-1")
	if err != nil {
		t.Fatalf("LastSubmissionNumber: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected latest submission number 3, got %d", n)
	}
}

func TestListForEntitySkipsDeleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepo(db, newTestLogger(t))
	ctx := context.Background()

	observationID := uuid.New()

	kept, _, err := repo.FindOrCreate(ctx, nil, newSubmission(observationID, "entity-1", 1))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	deleted := newSubmission(observationID, "entity-1", 2)
	deleted.IsDeleted = true
	if _, _, err := repo.FindOrCreate(ctx, nil, deleted); err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	subs, err := repo.ListForEntity(ctx, nil, observationID, "entity-1")
	if err != nil {
		t.Fatalf("ListForEntity: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != kept.ID {
		t.Fatalf("expected only the live submission, got %d rows", len(subs))
	}
}
