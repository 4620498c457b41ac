package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

type SubmissionRepo interface {
	// FindOrCreate returns the submission for the (observation, entity,
	// submissionNumber) tuple, creating it when absent. The bool reports
	// whether a new row was created.
	FindOrCreate(ctx context.Context, tx *gorm.DB, sub *types.ObservationSubmission) (*types.ObservationSubmission, bool, error)
	ListForObservation(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, entityIDs []string, newestFirst bool) ([]*types.ObservationSubmission, error)
	ListForEntity(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, entityID string) ([]*types.ObservationSubmission, error)
	LastSubmissionNumber(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, entityID string) (int, error)
	ListIDsByStatusNot(ctx context.Context, tx *gorm.DB, status string) ([]uuid.UUID, error)
	ListCompletedIDs(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]uuid.UUID, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ObservationSubmission, error)
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return &submissionRepo{db: db, log: baseLog.With("repo", "SubmissionRepo")}
}

func (r *submissionRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *submissionRepo) FindOrCreate(ctx context.Context, tx *gorm.DB, sub *types.ObservationSubmission) (*types.ObservationSubmission, bool, error) {
	conn := r.conn(tx).WithContext(ctx)

	var existing types.ObservationSubmission
	err := conn.
		Where("observation_id = ? AND entity_id = ? AND submission_number = ?",
			sub.ObservationID, sub.EntityID, sub.SubmissionNumber).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	// The unique tuple index makes concurrent creates converge: a loser of
	// the race re-reads the winner's row.
	createErr := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(sub).Error
	if createErr != nil {
		return nil, false, createErr
	}

	err = conn.
		Where("observation_id = ? AND entity_id = ? AND submission_number = ?",
			sub.ObservationID, sub.EntityID, sub.SubmissionNumber).
		First(&existing).Error
	if err != nil {
		return nil, false, err
	}
	created := existing.ID == sub.ID
	return &existing, created, nil
}

func (r *submissionRepo) ListForObservation(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, entityIDs []string, newestFirst bool) ([]*types.ObservationSubmission, error) {
	var results []*types.ObservationSubmission
	if len(entityIDs) == 0 {
		return results, nil
	}
	q := r.conn(tx).WithContext(ctx).
		Where("observation_id = ? AND entity_id IN ?", observationID, entityIDs)
	if newestFirst {
		q = q.Order("created_at DESC")
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *submissionRepo) ListForEntity(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, entityID string) ([]*types.ObservationSubmission, error) {
	var results []*types.ObservationSubmission
	if err := r.conn(tx).WithContext(ctx).
		Where("observation_id = ? AND entity_id = ? AND is_deleted = ?", observationID, entityID, false).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *submissionRepo) LastSubmissionNumber(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, entityID string) (int, error) {
	var sub types.ObservationSubmission
	err := r.conn(tx).WithContext(ctx).
		Where("observation_id = ? AND entity_id = ?", observationID, entityID).
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return sub.SubmissionNumber, nil
}

func (r *submissionRepo) ListIDsByStatusNot(ctx context.Context, tx *gorm.DB, status string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.conn(tx).WithContext(ctx).
		Model(&types.ObservationSubmission{}).
		Where("status <> ?", status).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *submissionRepo) ListCompletedIDs(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.conn(tx).WithContext(ctx).
		Model(&types.ObservationSubmission{}).
		Where("status = ? AND completed_date IS NOT NULL AND completed_date >= ? AND completed_date <= ?",
			types.StatusCompleted, from, to).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *submissionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ObservationSubmission, error) {
	var results []*types.ObservationSubmission
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
