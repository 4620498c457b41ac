package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/edusight/observation-service/internal/types"
)

func TestValidateEntitiesFiltersToRequestedSubset(t *testing.T) {
	schoolID := uuid.NewString()
	directory := &fakeDirectory{entities: []types.Entity{
		{ID: schoolID, Type: "school", Name: "School One"},
		{Code: "SCH-2", Type: "school", Name: "School Two"},
		{Code: "DIS-1", Type: "district", Name: "District One"},
	}}
	resolver := NewEntityResolver(directory, newTestLogger(t))

	validated := resolver.ValidateEntities(context.Background(), []string{schoolID, "SCH-2", "SCH-2", "DIS-1", ""}, "school")
	if len(validated) != 2 {
		t.Fatalf("expected two validated entities, got %v", validated)
	}
	seen := map[string]bool{}
	for _, id := range validated {
		seen[id] = true
	}
	if !seen[schoolID] || !seen["SCH-2"] {
		t.Fatalf("expected id and code both accepted, got %v", validated)
	}
}

func TestValidateEntitiesTypeMatchIsCaseInsensitive(t *testing.T) {
	directory := &fakeDirectory{entities: []types.Entity{
		{Code: "SCH-1", Type: "School"},
	}}
	resolver := NewEntityResolver(directory, newTestLogger(t))

	validated := resolver.ValidateEntities(context.Background(), []string{"SCH-1"}, "school")
	if len(validated) != 1 || validated[0] != "SCH-1" {
		t.Fatalf("expected case-folded type match, got %v", validated)
	}
}

func TestValidateEntitiesDirectoryFailure(t *testing.T) {
	resolver := NewEntityResolver(&fakeDirectory{fail: true}, newTestLogger(t))

	validated := resolver.ValidateEntities(context.Background(), []string{"SCH-1"}, "school")
	if len(validated) != 0 {
		t.Fatalf("expected empty set when the directory is down, got %v", validated)
	}
}

func TestListByLocationIDsSplitsIDsAndCodes(t *testing.T) {
	stateID := uuid.NewString()
	directory := &fakeDirectory{entities: []types.Entity{
		{ID: stateID, Type: "state"},
		{Code: "SCH-1", Type: "school"},
	}}
	resolver := NewEntityResolver(directory, newTestLogger(t))

	entities, err := resolver.ListByLocationIDs(context.Background(), []string{stateID, "SCH-1"})
	if err != nil {
		t.Fatalf("ListByLocationIDs: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected both forms resolved, got %v", entities)
	}
}

func TestListByLocationIDsFailure(t *testing.T) {
	resolver := NewEntityResolver(&fakeDirectory{fail: true}, newTestLogger(t))

	if _, err := resolver.ListByLocationIDs(context.Background(), []string{"SCH-1"}); err == nil {
		t.Fatalf("expected an error when every directory call fails")
	}
}

func TestListByLocationIDsEmptyInput(t *testing.T) {
	resolver := NewEntityResolver(&fakeDirectory{fail: true}, newTestLogger(t))

	entities, err := resolver.ListByLocationIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListByLocationIDs: %v", err)
	}
	if len(entities) != 0 {
		t.Fatalf("expected no entities for no input, got %v", entities)
	}
}
