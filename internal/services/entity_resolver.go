package services

import (
	"context"
	"errors"
	"strings"

	"github.com/edusight/observation-service/internal/clients/sunbird"
	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

var errDirectoryUnavailable = errors.New("directory service unavailable")

// EntityResolver validates and normalizes entity identifier sets against the
// directory. Partial matches are never errors: the output is always a
// deduplicated subset of the input whose resolved type matches.
type EntityResolver interface {
	ValidateEntities(ctx context.Context, requestedIDs []string, entityType string) []string
	ListByLocationIDs(ctx context.Context, values []string) ([]types.Entity, error)
}

type entityResolver struct {
	directory sunbird.Client
	log       *logger.Logger
}

func NewEntityResolver(directory sunbird.Client, baseLog *logger.Logger) EntityResolver {
	return &entityResolver{
		directory: directory,
		log:       baseLog.With("service", "EntityResolver"),
	}
}

func (r *entityResolver) ValidateEntities(ctx context.Context, requestedIDs []string, entityType string) []string {
	validated := []string{}
	if len(requestedIDs) == 0 {
		return validated
	}

	requested := map[string]bool{}
	for _, id := range requestedIDs {
		if id != "" {
			requested[id] = true
		}
	}

	resolved, err := r.ListByLocationIDs(ctx, requestedIDs)
	if err != nil {
		r.log.Warn("entity validation degraded to empty set", "error", err)
		return validated
	}

	seen := map[string]bool{}
	for _, entity := range resolved {
		if entityType != "" && !strings.EqualFold(entity.Type, entityType) {
			continue
		}
		// The directory may address a record by id or by code; accept
		// whichever form the caller actually requested.
		id := ""
		switch {
		case requested[entity.ID]:
			id = entity.ID
		case requested[entity.Code]:
			id = entity.Code
		default:
			continue
		}
		if !seen[id] {
			validated = append(validated, id)
			seen[id] = true
		}
	}
	return validated
}

func (r *entityResolver) ListByLocationIDs(ctx context.Context, values []string) ([]types.Entity, error) {
	ids, codes := types.SplitLocationValues(values)

	entities := []types.Entity{}
	anySuccess := false

	if len(ids) > 0 {
		res := r.directory.LocationSearch(ctx, sunbird.LocationFilter{IDs: ids})
		if res.Success {
			anySuccess = true
			entities = append(entities, res.Data...)
		}
	}
	if len(codes) > 0 {
		res := r.directory.LocationSearch(ctx, sunbird.LocationFilter{Codes: codes})
		if res.Success {
			anySuccess = true
			entities = append(entities, res.Data...)
		}
	}

	if !anySuccess && (len(ids) > 0 || len(codes) > 0) {
		return nil, errDirectoryUnavailable
	}
	return entities, nil
}
