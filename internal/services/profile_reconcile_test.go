package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/edusight/observation-service/internal/types"
)

func reconcilerUnderTest(t *testing.T, directory *fakeDirectory) ProfileReconciler {
	t.Helper()
	log := newTestLogger(t)
	return NewProfileReconciler(NewEntityResolver(directory, log), log)
}

func TestReconcileMapsClaimedRoles(t *testing.T) {
	stateID := uuid.NewString()
	directory := &fakeDirectory{entities: []types.Entity{
		{ID: stateID, Type: "state", Name: "State"},
		{Code: "SCH-1", Type: "school", Name: "School One"},
	}}
	reconciler := reconcilerUnderTest(t, directory)

	claims := types.RoleClaims{
		Role:      "TEACHER,HM",
		Locations: map[string]string{"state": stateID, "school": "SCH-1"},
	}
	result, mismatch := reconciler.Reconcile(context.Background(), types.UserProfile{}, claims)
	if !mismatch {
		t.Fatalf("expected mismatch against an empty stored profile")
	}

	if len(result.ProfileUserTypes) != 2 {
		t.Fatalf("expected two role entries, got %+v", result.ProfileUserTypes)
	}
	if result.ProfileUserTypes[0].Type != "teacher" || result.ProfileUserTypes[0].SubType != nil {
		t.Fatalf("expected plain teacher entry, got %+v", result.ProfileUserTypes[0])
	}
	admin := result.ProfileUserTypes[1]
	if admin.Type != "administrator" || admin.SubType == nil || *admin.SubType != "hm" {
		t.Fatalf("expected administrator/hm entry, got %+v", admin)
	}

	if len(result.UserLocations) != 2 {
		t.Fatalf("expected locations rebuilt from the directory, got %+v", result.UserLocations)
	}
	if !result.RoleMismatchUpdated || !result.LocationMismatchUpdated {
		t.Fatalf("expected both mismatch flags set")
	}
}

func TestReconcileResetsStaleRoles(t *testing.T) {
	reconciler := reconcilerUnderTest(t, &fakeDirectory{})

	deo := "deo"
	stored := types.UserProfile{
		ProfileUserTypes: []types.ProfileUserType{{Type: "administrator", SubType: &deo}},
	}
	claims := types.RoleClaims{Role: "TEACHER"}

	result, mismatch := reconciler.Reconcile(context.Background(), stored, claims)
	if !mismatch {
		t.Fatalf("expected mismatch when the stored role is no longer claimed")
	}
	if len(result.ProfileUserTypes) != 1 || result.ProfileUserTypes[0].Type != "teacher" {
		t.Fatalf("expected stale roles dropped and teacher appended, got %+v", result.ProfileUserTypes)
	}
	if len(stored.ProfileUserTypes) != 1 || stored.ProfileUserTypes[0].Type != "administrator" {
		t.Fatalf("stored profile must not be mutated")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	stateID := uuid.NewString()
	directory := &fakeDirectory{entities: []types.Entity{
		{ID: stateID, Type: "state", Name: "State"},
		{Code: "SCH-1", Type: "school", Name: "School One"},
	}}
	reconciler := reconcilerUnderTest(t, directory)
	ctx := context.Background()

	claims := types.RoleClaims{
		Role:      "TEACHER",
		Locations: map[string]string{"state": stateID, "school": "SCH-1"},
	}

	first, mismatch := reconciler.Reconcile(ctx, types.UserProfile{}, claims)
	if !mismatch {
		t.Fatalf("expected first pass to correct the profile")
	}

	if _, mismatch := reconciler.Reconcile(ctx, first, claims); mismatch {
		t.Fatalf("expected a corrected profile to reconcile clean")
	}
}

func TestReconcileKeepsLocationsWhenRebuildResolvesNothing(t *testing.T) {
	stateID := uuid.NewString()
	reconciler := reconcilerUnderTest(t, &fakeDirectory{fail: true})

	stored := types.UserProfile{
		ProfileUserTypes: []types.ProfileUserType{{Type: "teacher"}},
		UserLocations:    []types.UserLocation{{Type: "state", ID: stateID}},
	}
	claims := types.RoleClaims{
		Role:      "TEACHER",
		Locations: map[string]string{"state": stateID, "district": uuid.NewString()},
	}

	result, mismatch := reconciler.Reconcile(context.Background(), stored, claims)
	if mismatch {
		t.Fatalf("a rebuild that resolved nothing must not report a correction")
	}
	if len(result.UserLocations) != 1 || result.UserLocations[0].ID != stateID {
		t.Fatalf("expected the stored locations kept, got %+v", result.UserLocations)
	}
	if result.LocationMismatchUpdated {
		t.Fatalf("expected no location update flagged")
	}
}

func TestReconcileRebuildsLocationsOnCountDrift(t *testing.T) {
	stateID := uuid.NewString()
	districtID := uuid.NewString()
	directory := &fakeDirectory{entities: []types.Entity{
		{ID: stateID, Type: "state", Name: "State"},
		{ID: districtID, Type: "district", Name: "District"},
	}}
	reconciler := reconcilerUnderTest(t, directory)

	stored := types.UserProfile{
		ProfileUserTypes: []types.ProfileUserType{{Type: "teacher"}},
		UserLocations:    []types.UserLocation{{Type: "state", ID: stateID}},
	}
	claims := types.RoleClaims{
		Role:      "TEACHER",
		Locations: map[string]string{"state": stateID, "district": districtID},
	}

	result, mismatch := reconciler.Reconcile(context.Background(), stored, claims)
	if !mismatch {
		t.Fatalf("expected mismatch when a claimed location is missing")
	}
	if len(result.UserLocations) != 2 {
		t.Fatalf("expected both locations after rebuild, got %+v", result.UserLocations)
	}
	if result.RoleMismatchUpdated {
		t.Fatalf("roles were in sync, only locations drifted")
	}
}
