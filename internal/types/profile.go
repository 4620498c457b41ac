package types

// ProfileUserType is one role entry on a directory profile. Administrator
// roles carry the concrete role code in SubType; plain teacher entries have
// a nil SubType.
type ProfileUserType struct {
	Type    string  `json:"type"`
	SubType *string `json:"subType"`
}

// UserLocation is one location entry on a directory profile. Schools are
// identified by Code, every other level by ID.
type UserLocation struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

// UserProfile is the directory-sourced snapshot embedded into an
// observation at creation time.
type UserProfile struct {
	ProfileUserTypes []ProfileUserType `json:"profileUserTypes"`
	UserLocations    []UserLocation    `json:"userLocations"`

	RoleMismatchUpdated     bool `json:"userRoleMismatchFoundAndUpdated,omitempty"`
	LocationMismatchUpdated bool `json:"userLocationsMismatchFoundAndUpdated,omitempty"`
}

// RoleClaims are the role/location claims presented on a request: a
// comma-separated role list plus one location value per entity-type name
// (UUID-shaped ids for most levels, opaque codes for schools).
type RoleClaims struct {
	Role      string            `json:"role"`
	Locations map[string]string `json:"locations,omitempty"`
}

func (rc RoleClaims) Empty() bool {
	return rc.Role == "" && len(rc.Locations) == 0
}

// RoleClaimsFromMap splits a flat request body map into role and location
// claims; every non-role key is treated as a location-type name.
func RoleClaimsFromMap(body map[string]string) RoleClaims {
	claims := RoleClaims{Locations: map[string]string{}}
	for k, v := range body {
		if k == "role" {
			claims.Role = v
			continue
		}
		claims.Locations[k] = v
	}
	return claims
}
