package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/types"
)

type ProgramRepo interface {
	Create(ctx context.Context, tx *gorm.DB, program *types.Program) (*types.Program, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Program, error)
}

type programRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgramRepo(db *gorm.DB, baseLog *logger.Logger) ProgramRepo {
	return &programRepo{db: db, log: baseLog.With("repo", "ProgramRepo")}
}

func (r *programRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *programRepo) Create(ctx context.Context, tx *gorm.DB, program *types.Program) (*types.Program, error) {
	if program.ID == uuid.Nil {
		program.ID = uuid.New()
	}
	if err := r.conn(tx).WithContext(ctx).Create(program).Error; err != nil {
		return nil, err
	}
	return program, nil
}

func (r *programRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Program, error) {
	var results []*types.Program
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

type UserRoleRepo interface {
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.UserRole, error)
}

type userRoleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRoleRepo(db *gorm.DB, baseLog *logger.Logger) UserRoleRepo {
	return &userRoleRepo{db: db, log: baseLog.With("repo", "UserRoleRepo")}
}

func (r *userRoleRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *userRoleRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.UserRole, error) {
	var role types.UserRole
	err := r.conn(tx).WithContext(ctx).Where("code = ?", code).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}
