package types

import "github.com/google/uuid"

// Entity is a directory-resolved location record (school, district, ...).
// Entities are never owned by this service; they are read-only references.
type Entity struct {
	ID       string `json:"id"`
	Code     string `json:"code,omitempty"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// SplitLocationValues classifies raw location values into UUID-shaped ids
// and opaque codes, the split the directory filter keys expect.
func SplitLocationValues(values []string) (ids []string, codes []string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := uuid.Parse(v); err == nil {
			ids = append(ids, v)
		} else {
			codes = append(codes, v)
		}
	}
	return ids, codes
}
