package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/repos"
	"github.com/edusight/observation-service/internal/types"
)

// SolutionService exposes the solution documents the observation lifecycle
// needs: lookups, template materialization and the report-information
// write-back after a profile reconcile.
type SolutionService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.Solution, error)
	GetByExternalID(ctx context.Context, externalID string) (*types.Solution, error)
	GetObservationByExternalID(ctx context.Context, externalID string) (*types.Solution, error)
	GetObservationByLink(ctx context.Context, link string, includeInactive bool) (*types.Solution, error)
	// CreateFromTemplate materializes a concrete program + solution pair
	// from a reusable template for one creator.
	CreateFromTemplate(ctx context.Context, template *types.Solution, userID string) (*types.Solution, error)
	AddReportInformation(ctx context.Context, solutionID uuid.UUID, profile types.UserProfile) error
	Update(ctx context.Context, solutionID uuid.UUID, updates map[string]interface{}) error
}

type ProgramService interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*types.Program, error)
}

type UserRoleService interface {
	GetByCode(ctx context.Context, code string) (*types.UserRole, error)
}

type solutionService struct {
	db           *gorm.DB
	solutionRepo repos.SolutionRepo
	programRepo  repos.ProgramRepo
	log          *logger.Logger
}

func NewSolutionService(db *gorm.DB, solutionRepo repos.SolutionRepo, programRepo repos.ProgramRepo, baseLog *logger.Logger) SolutionService {
	return &solutionService{
		db:           db,
		solutionRepo: solutionRepo,
		programRepo:  programRepo,
		log:          baseLog.With("service", "SolutionService"),
	}
}

func (s *solutionService) GetByID(ctx context.Context, id uuid.UUID) (*types.Solution, error) {
	return s.solutionRepo.GetByID(ctx, nil, id)
}

func (s *solutionService) GetByExternalID(ctx context.Context, externalID string) (*types.Solution, error) {
	return s.solutionRepo.GetByExternalID(ctx, nil, externalID)
}

func (s *solutionService) GetObservationByExternalID(ctx context.Context, externalID string) (*types.Solution, error) {
	return s.solutionRepo.GetObservationByExternalID(ctx, nil, externalID)
}

func (s *solutionService) GetObservationByLink(ctx context.Context, link string, includeInactive bool) (*types.Solution, error) {
	return s.solutionRepo.GetObservationByLink(ctx, nil, link, includeInactive)
}

func (s *solutionService) CreateFromTemplate(ctx context.Context, template *types.Solution, userID string) (*types.Solution, error) {
	if template == nil {
		return nil, fmt.Errorf("template solution required")
	}
	if !template.IsReusable {
		return nil, fmt.Errorf("solution %s is not a reusable template", template.ID)
	}

	suffix := strings.Split(uuid.NewString(), "-")[0]

	var created *types.Solution
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		program, err := s.programRepo.Create(ctx, tx, &types.Program{
			ExternalID:        template.ExternalID + "-PROGRAM-" + suffix,
			Name:              template.Name,
			Description:       template.Description,
			IsAPrivateProgram: true,
		})
		if err != nil {
			return err
		}

		endDate := template.EndDate
		if endDate == nil {
			oneYear := time.Now().AddDate(1, 0, 0)
			endDate = &oneYear
		}

		created, err = s.solutionRepo.Create(ctx, tx, &types.Solution{
			ExternalID:               template.ExternalID + "-" + suffix,
			Name:                     template.Name,
			Description:              template.Description,
			Type:                     template.Type,
			SubType:                  template.SubType,
			IsReusable:               false,
			ProgramID:                &program.ID,
			ProgramExternalID:        program.ExternalID,
			FrameworkID:              template.FrameworkID,
			FrameworkExternalID:      template.FrameworkExternalID,
			EntityType:               template.EntityType,
			IsAPrivateProgram:        true,
			Status:                   types.SolutionStatusActive,
			EndDate:                  endDate,
			Creator:                  userID,
			Language:                 template.Language,
			AllowMultipleAssessments: template.AllowMultipleAssessments,
			License:                  template.License,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Materialized solution from template",
		"template_external_id", template.ExternalID,
		"solution_id", created.ID,
	)
	return created, nil
}

func (s *solutionService) AddReportInformation(ctx context.Context, solutionID uuid.UUID, profile types.UserProfile) error {
	_, err := s.solutionRepo.Update(ctx, nil, solutionID, map[string]interface{}{
		"report_information": datatypes.NewJSONType(profile),
	})
	return err
}

func (s *solutionService) Update(ctx context.Context, solutionID uuid.UUID, updates map[string]interface{}) error {
	_, err := s.solutionRepo.Update(ctx, nil, solutionID, updates)
	return err
}

type programService struct {
	programRepo repos.ProgramRepo
	log         *logger.Logger
}

func NewProgramService(programRepo repos.ProgramRepo, baseLog *logger.Logger) ProgramService {
	return &programService{
		programRepo: programRepo,
		log:         baseLog.With("service", "ProgramService"),
	}
}

func (s *programService) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*types.Program, error) {
	return s.programRepo.GetByIDs(ctx, nil, ids)
}

type userRoleService struct {
	userRoleRepo repos.UserRoleRepo
	log          *logger.Logger
}

func NewUserRoleService(userRoleRepo repos.UserRoleRepo, baseLog *logger.Logger) UserRoleService {
	return &userRoleService{
		userRoleRepo: userRoleRepo,
		log:          baseLog.With("service", "UserRoleService"),
	}
}

func (s *userRoleService) GetByCode(ctx context.Context, code string) (*types.UserRole, error) {
	return s.userRoleRepo.GetByCode(ctx, nil, strings.TrimSpace(code))
}
