package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/edusight/observation-service/internal/clients/redis"
	"github.com/edusight/observation-service/internal/clients/sunbird"
	"github.com/edusight/observation-service/internal/platform/apierr"
	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

const subEntityCacheKeyPrefix = "subEntityTypesOf_"

// RoleTargeting decides which entity-type levels a role may target, anchored
// at the caller's state.
type RoleTargeting interface {
	// SubEntityTypes returns the hierarchy slice from the first level the
	// role declares, downward inclusive.
	SubEntityTypes(ctx context.Context, claims types.RoleClaims, role string) ([]string, error)
	// ValidateUserRole is a pure permission gate: the longest chain across
	// the claimed comma-separated roles must contain entityType, and the
	// claims must carry a location value for that type.
	ValidateUserRole(ctx context.Context, claims types.RoleClaims, entityType string) error
}

type roleTargeting struct {
	userRoles UserRoleService
	hierarchy HierarchyProvider
	directory sunbird.Client
	cache     redis.Cache
	log       *logger.Logger
}

func NewRoleTargeting(userRoles UserRoleService, hierarchy HierarchyProvider, directory sunbird.Client, cache redis.Cache, baseLog *logger.Logger) RoleTargeting {
	return &roleTargeting{
		userRoles: userRoles,
		hierarchy: hierarchy,
		directory: directory,
		cache:     cache,
		log:       baseLog.With("service", "RoleTargeting"),
	}
}

func (t *roleTargeting) SubEntityTypes(ctx context.Context, claims types.RoleClaims, role string) ([]string, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, apierr.Invalid("role required")
	}

	roleDoc, err := t.userRoles.GetByCode(ctx, role)
	if err != nil {
		return nil, err
	}
	if roleDoc == nil || len(roleDoc.EntityTypes) == 0 {
		return nil, apierr.NotRelevant()
	}

	stateID, err := t.resolveStateID(ctx, claims)
	if err != nil {
		return nil, err
	}

	chain, err := t.stateHierarchy(ctx, stateID)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, apierr.EntitiesNotFound()
	}

	declared := map[string]bool{}
	for _, et := range roleDoc.EntityTypes {
		declared[strings.ToLower(et)] = true
	}
	for i, level := range chain {
		if declared[strings.ToLower(level)] {
			return chain[i:], nil
		}
	}
	return nil, apierr.NotRelevant()
}

func (t *roleTargeting) ValidateUserRole(ctx context.Context, claims types.RoleClaims, entityType string) error {
	if claims.Role == "" {
		return apierr.Invalid("role claim required")
	}
	if entityType == "" {
		return apierr.Invalid("entity type required")
	}

	var longest []string
	var lastErr error
	for _, role := range strings.Split(claims.Role, ",") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		chain, err := t.SubEntityTypes(ctx, claims, role)
		if err != nil {
			lastErr = err
			continue
		}
		if len(chain) > len(longest) {
			longest = chain
		}
	}

	if len(longest) == 0 {
		if lastErr != nil {
			return lastErr
		}
		return apierr.NotRelevant()
	}

	for _, level := range longest {
		if strings.EqualFold(level, entityType) {
			if claims.Locations[level] != "" || claims.Locations[strings.ToLower(entityType)] != "" {
				return nil
			}
			return apierr.NotRelevant()
		}
	}
	return apierr.NotRelevant()
}

// resolveStateID returns the UUID of the claimed state, resolving opaque
// state codes through the directory.
func (t *roleTargeting) resolveStateID(ctx context.Context, claims types.RoleClaims) (string, error) {
	value := claims.Locations["state"]
	if value == "" {
		return "", apierr.EntitiesNotFound()
	}
	if _, err := uuid.Parse(value); err == nil {
		return value, nil
	}

	res := t.directory.LocationSearch(ctx, sunbird.LocationFilter{Codes: []string{value}})
	if !res.Success || len(res.Data) == 0 {
		return "", apierr.EntitiesNotFound()
	}
	return res.Data[0].ID, nil
}

// stateHierarchy is read-through on the cache; entries are never invalidated
// here, staleness is bounded by the cache TTL.
func (t *roleTargeting) stateHierarchy(ctx context.Context, stateID string) ([]string, error) {
	key := subEntityCacheKeyPrefix + stateID
	if t.cache != nil {
		if chain, ok := t.cache.GetStrings(ctx, key); ok {
			return chain, nil
		}
	}

	chain, err := t.hierarchy.SubEntityTypes(ctx, stateID)
	if err != nil {
		return nil, apierr.EntitiesNotFound()
	}

	if t.cache != nil && len(chain) > 0 {
		if err := t.cache.SetStrings(ctx, key, chain); err != nil {
			t.log.Warn("hierarchy cache fill failed", "state_id", stateID, "error", err)
		}
	}
	return chain, nil
}
