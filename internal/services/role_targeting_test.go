package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/edusight/observation-service/internal/platform/apierr"
	"github.com/edusight/observation-service/internal/types"
)

func targetingUnderTest(t *testing.T, roles map[string]*types.UserRole, hierarchy *fakeHierarchy, directory *fakeDirectory, cache *fakeCache) RoleTargeting {
	t.Helper()
	return NewRoleTargeting(&fakeUserRoles{roles: roles}, hierarchy, directory, cache, newTestLogger(t))
}

func TestSubEntityTypesAnchorsAtRoleLevel(t *testing.T) {
	stateID := uuid.NewString()
	roles := map[string]*types.UserRole{
		"DEO": {Code: "DEO", EntityTypes: datatypes.NewJSONSlice([]string{"district"})},
	}
	hierarchy := &fakeHierarchy{def: []string{"state", "district", "block", "school"}}
	targeting := targetingUnderTest(t, roles, hierarchy, &fakeDirectory{}, &fakeCache{})

	claims := types.RoleClaims{Role: "DEO", Locations: map[string]string{"state": stateID}}
	chain, err := targeting.SubEntityTypes(context.Background(), claims, "DEO")
	if err != nil {
		t.Fatalf("SubEntityTypes: %v", err)
	}
	want := []string{"district", "block", "school"}
	if len(chain) != len(want) {
		t.Fatalf("expected %v, got %v", want, chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, chain)
		}
	}
}

func TestSubEntityTypesUnknownRole(t *testing.T) {
	targeting := targetingUnderTest(t, map[string]*types.UserRole{}, &fakeHierarchy{def: defaultHierarchy}, &fakeDirectory{}, &fakeCache{})

	claims := types.RoleClaims{Role: "GHOST", Locations: map[string]string{"state": uuid.NewString()}}
	_, err := targeting.SubEntityTypes(context.Background(), claims, "GHOST")
	if !apierr.IsCode(err, apierr.CodeNotRelevantForUser) {
		t.Fatalf("expected not_relevant_for_user, got %v", err)
	}
}

func TestSubEntityTypesRequiresState(t *testing.T) {
	roles := map[string]*types.UserRole{
		"DEO": {Code: "DEO", EntityTypes: datatypes.NewJSONSlice([]string{"district"})},
	}
	targeting := targetingUnderTest(t, roles, &fakeHierarchy{def: defaultHierarchy}, &fakeDirectory{}, &fakeCache{})

	claims := types.RoleClaims{Role: "DEO", Locations: map[string]string{"district": uuid.NewString()}}
	_, err := targeting.SubEntityTypes(context.Background(), claims, "DEO")
	if !apierr.IsCode(err, apierr.CodeEntitiesNotFound) {
		t.Fatalf("expected entities_not_found without a state claim, got %v", err)
	}
}

func TestSubEntityTypesResolvesStateCode(t *testing.T) {
	stateID := uuid.NewString()
	roles := map[string]*types.UserRole{
		"DEO": {Code: "DEO", EntityTypes: datatypes.NewJSONSlice([]string{"district"})},
	}
	directory := &fakeDirectory{entities: []types.Entity{{ID: stateID, Code: "ST-01", Type: "state"}}}
	hierarchy := &fakeHierarchy{chains: map[string][]string{stateID: {"state", "district", "school"}}}
	targeting := targetingUnderTest(t, roles, hierarchy, directory, &fakeCache{})

	claims := types.RoleClaims{Role: "DEO", Locations: map[string]string{"state": "ST-01"}}
	chain, err := targeting.SubEntityTypes(context.Background(), claims, "DEO")
	if err != nil {
		t.Fatalf("SubEntityTypes: %v", err)
	}
	if len(chain) != 2 || chain[0] != "district" || chain[1] != "school" {
		t.Fatalf("expected the code-resolved state's chain, got %v", chain)
	}
}

func TestValidateUserRoleKeepsLongestChain(t *testing.T) {
	stateID := uuid.NewString()
	roles := map[string]*types.UserRole{
		"DEO": {Code: "DEO", EntityTypes: datatypes.NewJSONSlice([]string{"district"})},
		"BEO": {Code: "BEO", EntityTypes: datatypes.NewJSONSlice([]string{"block"})},
	}
	hierarchy := &fakeHierarchy{def: []string{"state", "district", "block", "school"}}
	targeting := targetingUnderTest(t, roles, hierarchy, &fakeDirectory{}, &fakeCache{})
	ctx := context.Background()

	claims := types.RoleClaims{
		Role: "BEO,DEO",
		Locations: map[string]string{
			"state":  stateID,
			"school": "SCH-CODE-1",
		},
	}
	if err := targeting.ValidateUserRole(ctx, claims, "school"); err != nil {
		t.Fatalf("ValidateUserRole: %v", err)
	}

	// Same roles but no location for the targeted level.
	claims.Locations = map[string]string{"state": stateID}
	if err := targeting.ValidateUserRole(ctx, claims, "school"); !apierr.IsCode(err, apierr.CodeNotRelevantForUser) {
		t.Fatalf("expected not_relevant_for_user without a school location, got %v", err)
	}

	// Level above the roles' anchor is never targetable.
	claims.Locations = map[string]string{"state": stateID}
	if err := targeting.ValidateUserRole(ctx, claims, "state"); !apierr.IsCode(err, apierr.CodeNotRelevantForUser) {
		t.Fatalf("expected not_relevant_for_user for a level above the anchor, got %v", err)
	}
}

func TestStateHierarchyReadsThroughCache(t *testing.T) {
	stateID := uuid.NewString()
	roles := map[string]*types.UserRole{
		"DEO": {Code: "DEO", EntityTypes: datatypes.NewJSONSlice([]string{"district"})},
	}
	hierarchy := &fakeHierarchy{def: []string{"state", "district", "school"}}
	cache := &fakeCache{values: map[string][]string{
		subEntityCacheKeyPrefix + stateID: {"state", "district", "block", "school"},
	}}
	targeting := targetingUnderTest(t, roles, hierarchy, &fakeDirectory{}, cache)

	claims := types.RoleClaims{Role: "DEO", Locations: map[string]string{"state": stateID}}
	chain, err := targeting.SubEntityTypes(context.Background(), claims, "DEO")
	if err != nil {
		t.Fatalf("SubEntityTypes: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected the cached chain used, got %v", chain)
	}
	if hierarchy.calls != 0 {
		t.Fatalf("expected no hierarchy lookups on a cache hit, got %d", hierarchy.calls)
	}
}

func TestStateHierarchyFillsCacheOnMiss(t *testing.T) {
	stateID := uuid.NewString()
	roles := map[string]*types.UserRole{
		"DEO": {Code: "DEO", EntityTypes: datatypes.NewJSONSlice([]string{"district"})},
	}
	hierarchy := &fakeHierarchy{def: []string{"state", "district", "school"}}
	cache := &fakeCache{}
	targeting := targetingUnderTest(t, roles, hierarchy, &fakeDirectory{}, cache)
	claims := types.RoleClaims{Role: "DEO", Locations: map[string]string{"state": stateID}}
	ctx := context.Background()

	if _, err := targeting.SubEntityTypes(ctx, claims, "DEO"); err != nil {
		t.Fatalf("SubEntityTypes: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache fill, got %d", cache.sets)
	}

	if _, err := targeting.SubEntityTypes(ctx, claims, "DEO"); err != nil {
		t.Fatalf("SubEntityTypes: %v", err)
	}
	if hierarchy.calls != 1 {
		t.Fatalf("expected the second lookup served from cache, got %d provider calls", hierarchy.calls)
	}
}
