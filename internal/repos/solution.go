package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

type SolutionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, solution *types.Solution) (*types.Solution, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Solution, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Solution, error)
	GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.Solution, error)
	// GetObservationByLink finds the non-reusable observation solution a
	// shareable link points at, excluding inactive ones unless
	// includeInactive is set.
	GetObservationByLink(ctx context.Context, tx *gorm.DB, link string, includeInactive bool) (*types.Solution, error)
	GetObservationByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.Solution, error)
	UpdateByLink(ctx context.Context, tx *gorm.DB, link string, updates map[string]interface{}) (int64, error)
	Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (int64, error)
}

type solutionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSolutionRepo(db *gorm.DB, baseLog *logger.Logger) SolutionRepo {
	return &solutionRepo{db: db, log: baseLog.With("repo", "SolutionRepo")}
}

func (r *solutionRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *solutionRepo) Create(ctx context.Context, tx *gorm.DB, solution *types.Solution) (*types.Solution, error) {
	if solution.ID == uuid.Nil {
		solution.ID = uuid.New()
	}
	if err := r.conn(tx).WithContext(ctx).Create(solution).Error; err != nil {
		return nil, err
	}
	return solution, nil
}

func (r *solutionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Solution, error) {
	var solution types.Solution
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&solution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &solution, nil
}

func (r *solutionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Solution, error) {
	var results []*types.Solution
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *solutionRepo) GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.Solution, error) {
	var solution types.Solution
	err := r.conn(tx).WithContext(ctx).Where("external_id = ?", externalID).First(&solution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &solution, nil
}

func (r *solutionRepo) GetObservationByLink(ctx context.Context, tx *gorm.DB, link string, includeInactive bool) (*types.Solution, error) {
	q := r.conn(tx).WithContext(ctx).
		Where("link = ? AND type = ? AND is_reusable = ?", link, types.SolutionTypeObservation, false)
	if !includeInactive {
		q = q.Where("status <> ?", types.SolutionStatusInactive)
	}
	var solution types.Solution
	err := q.First(&solution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &solution, nil
}

func (r *solutionRepo) GetObservationByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.Solution, error) {
	var solution types.Solution
	err := r.conn(tx).WithContext(ctx).
		Where("external_id = ? AND type = ? AND is_reusable = ?", externalID, types.SolutionTypeObservation, false).
		First(&solution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &solution, nil
}

func (r *solutionRepo) UpdateByLink(ctx context.Context, tx *gorm.DB, link string, updates map[string]interface{}) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&types.Solution{}).
		Where("link = ?", link).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *solutionRepo) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&types.Solution{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
