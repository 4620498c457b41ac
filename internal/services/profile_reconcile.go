package services

import (
	"context"
	"strings"

	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

const roleTeacher = "teacher"

// ProfileReconciler detects drift between a stored directory profile and the
// role/location claims on the current request, and computes a corrected
// profile. The stored profile is never mutated; the corrected copy replaces
// the snapshot on a newly created observation and is never written back to
// the directory.
type ProfileReconciler interface {
	Reconcile(ctx context.Context, stored types.UserProfile, claims types.RoleClaims) (types.UserProfile, bool)
}

type profileReconciler struct {
	resolver EntityResolver
	log      *logger.Logger
}

func NewProfileReconciler(resolver EntityResolver, baseLog *logger.Logger) ProfileReconciler {
	return &profileReconciler{
		resolver: resolver,
		log:      baseLog.With("service", "ProfileReconciler"),
	}
}

func (p *profileReconciler) Reconcile(ctx context.Context, stored types.UserProfile, claims types.RoleClaims) (types.UserProfile, bool) {
	result := types.UserProfile{
		ProfileUserTypes: append([]types.ProfileUserType(nil), stored.ProfileUserTypes...),
		UserLocations:    append([]types.UserLocation(nil), stored.UserLocations...),
	}
	if claims.Empty() {
		return result, false
	}

	claimedRoles := splitRoles(claims.Role)

	roleChanged := p.reconcileRoles(&result, claimedRoles)
	locationChanged := p.reconcileLocations(ctx, &result, claims.Locations)

	result.RoleMismatchUpdated = roleChanged
	result.LocationMismatchUpdated = locationChanged
	return result, roleChanged || locationChanged
}

// reconcileRoles resets the stored role-type list when any entry's
// discriminator is absent from the claims, then appends entries for claimed
// roles not yet represented.
func (p *profileReconciler) reconcileRoles(profile *types.UserProfile, claimedRoles []string) bool {
	if len(claimedRoles) == 0 {
		return false
	}

	claimed := map[string]bool{}
	for _, role := range claimedRoles {
		claimed[strings.ToLower(role)] = true
	}

	changed := false
	for _, entry := range profile.ProfileUserTypes {
		discriminator := entry.Type
		if entry.SubType != nil && *entry.SubType != "" {
			discriminator = *entry.SubType
		}
		if !claimed[strings.ToLower(discriminator)] {
			profile.ProfileUserTypes = []types.ProfileUserType{}
			changed = true
			break
		}
	}

	for _, role := range claimedRoles {
		if hasRoleEntry(profile.ProfileUserTypes, role) {
			continue
		}
		if strings.EqualFold(role, roleTeacher) {
			profile.ProfileUserTypes = append(profile.ProfileUserTypes, types.ProfileUserType{Type: roleTeacher})
		} else {
			subType := strings.ToLower(role)
			profile.ProfileUserTypes = append(profile.ProfileUserTypes, types.ProfileUserType{
				Type:    "administrator",
				SubType: &subType,
			})
		}
		changed = true
	}
	return changed
}

// reconcileLocations rebuilds the whole stored location list from the
// directory when any claimed location is missing or the counts differ.
// Schools match by code, every other level by id.
func (p *profileReconciler) reconcileLocations(ctx context.Context, profile *types.UserProfile, claimedLocations map[string]string) bool {
	if len(claimedLocations) == 0 {
		return false
	}

	rebuild := len(profile.UserLocations) != len(claimedLocations)
	if !rebuild {
		for locType, value := range claimedLocations {
			if !hasLocationEntry(profile.UserLocations, locType, value) {
				rebuild = true
				break
			}
		}
	}
	if !rebuild {
		return false
	}

	values := make([]string, 0, len(claimedLocations))
	for _, v := range claimedLocations {
		values = append(values, v)
	}

	entities, err := p.resolver.ListByLocationIDs(ctx, values)
	if err != nil {
		p.log.Warn("location rebuild degraded", "error", err)
		entities = nil
	}

	locations := make([]types.UserLocation, 0, len(entities))
	for _, e := range entities {
		locations = append(locations, types.UserLocation{
			Type: e.Type,
			ID:   e.ID,
			Code: e.Code,
			Name: e.Name,
		})
	}
	// A rebuild that resolved nothing keeps the stale-but-present list.
	if len(locations) == 0 {
		return false
	}
	profile.UserLocations = locations
	return true
}

func splitRoles(role string) []string {
	var roles []string
	for _, r := range strings.Split(role, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

func hasRoleEntry(entries []types.ProfileUserType, role string) bool {
	for _, entry := range entries {
		if strings.EqualFold(entry.Type, role) {
			return true
		}
		if entry.SubType != nil && strings.EqualFold(*entry.SubType, role) {
			return true
		}
	}
	return false
}

func hasLocationEntry(locations []types.UserLocation, locType, value string) bool {
	for _, loc := range locations {
		if !strings.EqualFold(loc.Type, locType) {
			continue
		}
		if strings.EqualFold(locType, "school") {
			if loc.Code == value {
				return true
			}
		} else if loc.ID == value {
			return true
		}
	}
	return false
}
