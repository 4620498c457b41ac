package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

// ListFilter narrows the paginated creator listing. CreatedByMe keeps only
// private-program observations, AssignedToMe the opposite.
type ListFilter struct {
	Search       string
	CreatedByMe  bool
	AssignedToMe bool
	PageNo       int
	PageSize     int
}

type ObservationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, obs *types.Observation) (*types.Observation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Observation, error)
	GetBySolutionAndCreator(ctx context.Context, tx *gorm.DB, solutionID uuid.UUID, createdBy string) (*types.Observation, error)
	GetBySolutionExternalIDAndCreator(ctx context.Context, tx *gorm.DB, solutionExternalID, createdBy string) (*types.Observation, error)
	GetPublishedBySolutionExternalID(ctx context.Context, tx *gorm.DB, solutionExternalID, createdBy string) (*types.Observation, error)
	ListActiveByCreator(ctx context.Context, tx *gorm.DB, createdBy string) ([]*types.Observation, error)
	ListByCreatorPaged(ctx context.Context, tx *gorm.DB, createdBy string, filter ListFilter) ([]*types.Observation, int64, error)
	AddEntities(ctx context.Context, tx *gorm.DB, id uuid.UUID, entityIDs []string) error
	RemoveEntities(ctx context.Context, tx *gorm.DB, id uuid.UUID, createdBy string, entityIDs []string) error
	Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (int64, error)
}

type observationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObservationRepo(db *gorm.DB, baseLog *logger.Logger) ObservationRepo {
	return &observationRepo{db: db, log: baseLog.With("repo", "ObservationRepo")}
}

func (r *observationRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *observationRepo) Create(ctx context.Context, tx *gorm.DB, obs *types.Observation) (*types.Observation, error) {
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	if err := r.conn(tx).WithContext(ctx).Create(obs).Error; err != nil {
		return nil, err
	}
	return obs, nil
}

func (r *observationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Observation, error) {
	var obs types.Observation
	err := r.conn(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (r *observationRepo) GetBySolutionAndCreator(ctx context.Context, tx *gorm.DB, solutionID uuid.UUID, createdBy string) (*types.Observation, error) {
	var obs types.Observation
	err := r.conn(tx).WithContext(ctx).
		Where("solution_id = ? AND created_by = ?", solutionID, createdBy).
		First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (r *observationRepo) GetBySolutionExternalIDAndCreator(ctx context.Context, tx *gorm.DB, solutionExternalID, createdBy string) (*types.Observation, error) {
	var obs types.Observation
	err := r.conn(tx).WithContext(ctx).
		Where("solution_external_id = ? AND created_by = ?", solutionExternalID, createdBy).
		First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (r *observationRepo) GetPublishedBySolutionExternalID(ctx context.Context, tx *gorm.DB, solutionExternalID, createdBy string) (*types.Observation, error) {
	var obs types.Observation
	err := r.conn(tx).WithContext(ctx).
		Where("solution_external_id = ? AND created_by = ? AND status = ?",
			solutionExternalID, createdBy, types.StatusPublished).
		First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (r *observationRepo) ListActiveByCreator(ctx context.Context, tx *gorm.DB, createdBy string) ([]*types.Observation, error) {
	var results []*types.Observation
	if err := r.conn(tx).WithContext(ctx).
		Where("created_by = ? AND status <> ?", createdBy, types.StatusInactive).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *observationRepo) ListByCreatorPaged(ctx context.Context, tx *gorm.DB, createdBy string, filter ListFilter) ([]*types.Observation, int64, error) {
	q := r.conn(tx).WithContext(ctx).
		Model(&types.Observation{}).
		Where("created_by = ?", createdBy).
		Where("reference_from <> ? OR reference_from IS NULL", types.ReferenceFromProject)

	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("name ILIKE ? OR description ILIKE ?", like, like)
	}
	if filter.CreatedByMe {
		q = q.Where("is_a_private_program = ?", true)
	} else if filter.AssignedToMe {
		q = q.Where("is_a_private_program = ?", false)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	pageNo := filter.PageNo
	if pageNo <= 0 {
		pageNo = 1
	}

	var results []*types.Observation
	if err := q.Order("updated_at DESC").
		Offset(pageSize * (pageNo - 1)).
		Limit(pageSize).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, count, nil
}

// AddEntities merges entity ids into the observation's entity set. Set
// semantics: existing members are not duplicated.
func (r *observationRepo) AddEntities(ctx context.Context, tx *gorm.DB, id uuid.UUID, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		var obs types.Observation
		if err := inner.Where("id = ?", id).First(&obs).Error; err != nil {
			return err
		}
		existing := map[string]bool{}
		for _, e := range obs.Entities {
			existing[e] = true
		}
		merged := []string(obs.Entities)
		for _, e := range entityIDs {
			if !existing[e] {
				merged = append(merged, e)
				existing[e] = true
			}
		}
		return inner.Model(&types.Observation{}).
			Where("id = ?", id).
			Update("entities", datatypes.NewJSONSlice(merged)).Error
	})
}

// RemoveEntities is an unconditional set difference, blocked only for
// completed observations.
func (r *observationRepo) RemoveEntities(ctx context.Context, tx *gorm.DB, id uuid.UUID, createdBy string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	drop := map[string]bool{}
	for _, e := range entityIDs {
		drop[e] = true
	}
	return r.conn(tx).WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		var obs types.Observation
		err := inner.
			Where("id = ? AND created_by = ? AND status <> ?", id, createdBy, types.StatusCompleted).
			First(&obs).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		kept := make([]string, 0, len(obs.Entities))
		for _, e := range obs.Entities {
			if !drop[e] {
				kept = append(kept, e)
			}
		}
		return inner.Model(&types.Observation{}).
			Where("id = ?", obs.ID).
			Update("entities", datatypes.NewJSONSlice(kept)).Error
	})
}

func (r *observationRepo) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&types.Observation{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
