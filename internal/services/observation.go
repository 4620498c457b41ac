package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/edusight/observation-service/internal/clients/core"
	"github.com/edusight/observation-service/internal/clients/redis"
	"github.com/edusight/observation-service/internal/clients/sunbird"
	"github.com/edusight/observation-service/internal/platform/apierr"
	"github.com/edusight/observation-service/internal/platform/envutil"
	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/repos"
	"github.com/edusight/observation-service/internal/types"
)

const (
	// Bulk-create outcome statuses. A mismatched entity type is reported,
	// not rejected; upstream rosters routinely carry mixed levels.
	BulkStatusCreated           = "observation-created"
	BulkStatusUpdated           = "observation-updated"
	BulkStatusInvalidEntityType = "invalid-entity-type"

	MessageEntitiesUpdated          = "entities updated"
	MessageEntitiesPartiallyUpdated = "entities partially updated"

	// StatusPending is the synthetic listing status for entities that have
	// no submission yet.
	StatusPending = "pending"

	reportChunkSize = 500
)

type ObservationInput struct {
	Name          string
	Description   string
	Entities      []string
	StartDate     time.Time
	EndDate       time.Time
	ReferenceFrom string
	ProjectID     string
}

type CreatedObservation struct {
	ID          uuid.UUID `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

type BulkCreateResult struct {
	ObservationID uuid.UUID `json:"observationId,omitempty"`
	Status        string    `json:"status"`
}

type SubmissionSummary struct {
	ID               uuid.UUID  `json:"_id"`
	SubmissionNumber int        `json:"submissionNumber"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedDate    *time.Time `json:"completedDate,omitempty"`
}

type ListedEntity struct {
	ID          string              `json:"_id"`
	Name        string              `json:"name,omitempty"`
	ExternalID  string              `json:"externalId,omitempty"`
	Status      string              `json:"status"`
	Submissions []SubmissionSummary `json:"submissions"`
}

type ObservationListItem struct {
	ID          uuid.UUID      `json:"_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	EntityType  string         `json:"entityType"`
	Status      string         `json:"status"`
	Entities    []ListedEntity `json:"entities"`
}

type ObservationDetails struct {
	Observation *types.Observation `json:"observation"`
	Program     *types.Program     `json:"program,omitempty"`
	Entities    []types.Entity     `json:"entities"`
	EntityCount int                `json:"entityCount"`
}

type VerifyLinkRequest struct {
	Link          string
	UserID        string
	UserToken     string
	Claims        types.RoleClaims
	RegistryCodes []string
}

type VerifyLinkResult struct {
	Expired     bool               `json:"expired"`
	Observation *types.Observation `json:"observation,omitempty"`
}

type EntityListRequest struct {
	UserID        string
	UserToken     string
	ObservationID *uuid.UUID
	SolutionID    *uuid.UUID
	Claims        types.RoleClaims
}

type EntityListItem struct {
	ID               string     `json:"_id"`
	Name             string     `json:"name,omitempty"`
	ExternalID       string     `json:"externalId,omitempty"`
	SubmissionsCount int        `json:"submissionsCount"`
	SubmissionID     *uuid.UUID `json:"submissionId,omitempty"`
}

type EntityList struct {
	ObservationID uuid.UUID        `json:"observationId"`
	EntityType    string           `json:"entityType"`
	Entities      []EntityListItem `json:"entities"`
}

type FindSubmissionRequest struct {
	ObservationID    uuid.UUID
	EntityID         string
	SubmissionNumber int
	UserID           string
}

type UserAssignedItem struct {
	ID                 uuid.UUID  `json:"_id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	SolutionID         uuid.UUID  `json:"solutionId"`
	SolutionExternalID string     `json:"solutionExternalId,omitempty"`
	ProgramID          *uuid.UUID `json:"programId,omitempty"`
	EntityType         string     `json:"entityType,omitempty"`
	Status             string     `json:"status"`
	IsAPrivateProgram  bool       `json:"isAPrivateProgram"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type UserAssignedList struct {
	Data  []UserAssignedItem `json:"data"`
	Count int64              `json:"count"`
}

type DashboardRequest struct {
	UserID    string
	UserToken string
	Claims    types.RoleClaims
	Search    string
	PageNo    int
	PageSize  int
}

// DashboardItem is one row of the merged dashboard: either an observation
// the user created, or a solution targeted at the user with no observation
// yet (ObservationID nil).
type DashboardItem struct {
	ObservationID     *uuid.UUID `json:"observationId,omitempty"`
	SolutionID        string     `json:"solutionId"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	ProgramName       string     `json:"programName,omitempty"`
	EntityType        string     `json:"entityType,omitempty"`
	IsAPrivateProgram bool       `json:"isAPrivateProgram"`
	IsCreator         bool       `json:"isCreator"`
}

type DashboardList struct {
	Data  []DashboardItem `json:"data"`
	Count int             `json:"count"`
}

type ReportRow struct {
	SubmissionID  uuid.UUID  `json:"submissionId"`
	ObservationID uuid.UUID  `json:"observationId"`
	EntityID      string     `json:"entityId"`
	EntityName    string     `json:"entityName"`
	UserID        string     `json:"userId"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`
}

// ObservationService is the lifecycle orchestrator: it owns observation
// documents and delegates entity resolution, role gating, profile
// reconciliation and downstream pushes to the collaborators.
type ObservationService interface {
	Create(ctx context.Context, userID, userToken string, solutionID uuid.UUID, input ObservationInput, claims types.RoleClaims) (*CreatedObservation, error)
	CreateFromTemplate(ctx context.Context, userID, userToken, templateExternalID string, input ObservationInput, claims types.RoleClaims) (*CreatedObservation, error)
	BulkCreate(ctx context.Context, userID, solutionExternalID string, entity types.Entity) (*BulkCreateResult, error)
	ListV1(ctx context.Context, userID string) ([]ObservationListItem, error)
	ListV2(ctx context.Context, userID string) ([]ObservationListItem, error)
	Details(ctx context.Context, userID string, observationID, solutionID *uuid.UUID) (*ObservationDetails, error)
	GetObservationLink(ctx context.Context, solutionExternalID, appName string) (string, error)
	VerifyLink(ctx context.Context, req VerifyLinkRequest) (*VerifyLinkResult, error)
	ListEntities(ctx context.Context, req EntityListRequest) (*EntityList, error)
	AddEntity(ctx context.Context, observationID uuid.UUID, userID string, entityIDs []string) (string, error)
	RemoveEntity(ctx context.Context, observationID uuid.UUID, userID string, entityIDs []string) error
	SubmissionStatus(ctx context.Context, userID string, observationID uuid.UUID, entityID string) ([]SubmissionSummary, error)
	FindSubmission(ctx context.Context, req FindSubmissionRequest) (*types.ObservationSubmission, error)
	LastSubmissionNumber(ctx context.Context, observationID uuid.UUID, entityID string) (int, error)
	UserAssigned(ctx context.Context, userID string, filter repos.ListFilter) (*UserAssignedList, error)
	Dashboard(ctx context.Context, req DashboardRequest) (*DashboardList, error)
	PendingObservations(ctx context.Context) ([]ReportRow, error)
	CompletedObservations(ctx context.Context, from, to time.Time) ([]ReportRow, error)
	UpdateObservation(ctx context.Context, userID string, observationID uuid.UUID, updates map[string]interface{}) error
}

// ObservationServiceDeps carries the orchestrator's collaborators. Core,
// notifier and pusher may be nil; the paths that need them degrade.
type ObservationServiceDeps struct {
	ObservationRepo repos.ObservationRepo
	SubmissionRepo  repos.SubmissionRepo
	Solutions       SolutionService
	Programs        ProgramService
	Resolver        EntityResolver
	Targeting       RoleTargeting
	Reconciler      ProfileReconciler
	Directory       sunbird.Client
	Core            core.Client
	Notifier        redis.NotificationQueue
	Pusher          redis.SubmissionPusher
}

type observationService struct {
	obsRepo    repos.ObservationRepo
	subRepo    repos.SubmissionRepo
	solutions  SolutionService
	programs   ProgramService
	resolver   EntityResolver
	targeting  RoleTargeting
	reconciler ProfileReconciler
	directory  sunbird.Client
	core       core.Client
	notifier   redis.NotificationQueue
	pusher     redis.SubmissionPusher
	log        *logger.Logger
}

func NewObservationService(deps ObservationServiceDeps, baseLog *logger.Logger) ObservationService {
	return &observationService{
		obsRepo:    deps.ObservationRepo,
		subRepo:    deps.SubmissionRepo,
		solutions:  deps.Solutions,
		programs:   deps.Programs,
		resolver:   deps.Resolver,
		targeting:  deps.Targeting,
		reconciler: deps.Reconciler,
		directory:  deps.Directory,
		core:       deps.Core,
		notifier:   deps.Notifier,
		pusher:     deps.Pusher,
		log:        baseLog.With("service", "ObservationService"),
	}
}

// ---------- creation ----------

func (s *observationService) Create(ctx context.Context, userID, userToken string, solutionID uuid.UUID, input ObservationInput, claims types.RoleClaims) (*CreatedObservation, error) {
	if strings.TrimSpace(userToken) == "" {
		return nil, apierr.Invalid("user token required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Invalid("user id required")
	}

	solution, err := s.solutions.GetByID(ctx, solutionID)
	if err != nil {
		return nil, err
	}
	if solution == nil {
		return nil, apierr.NotFound("solution %s not found", solutionID)
	}

	if solution.IsReusable {
		solution, err = s.solutions.CreateFromTemplate(ctx, solution, userID)
		if err != nil {
			return nil, err
		}
	}

	obs, err := s.createForSolution(ctx, userID, userToken, solution, input, claims)
	if err != nil {
		return nil, err
	}
	return &CreatedObservation{ID: obs.ID, Name: obs.Name, Description: obs.Description}, nil
}

func (s *observationService) CreateFromTemplate(ctx context.Context, userID, userToken, templateExternalID string, input ObservationInput, claims types.RoleClaims) (*CreatedObservation, error) {
	if strings.TrimSpace(userToken) == "" {
		return nil, apierr.Invalid("user token required")
	}
	if strings.TrimSpace(templateExternalID) == "" {
		return nil, apierr.Invalid("solution external id required")
	}

	template, err := s.solutions.GetByExternalID(ctx, templateExternalID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, apierr.NotFound("solution %s not found", templateExternalID)
	}

	solution := template
	if template.IsReusable {
		solution, err = s.solutions.CreateFromTemplate(ctx, template, userID)
		if err != nil {
			return nil, err
		}
	}

	obs, err := s.createForSolution(ctx, userID, userToken, solution, input, claims)
	if err != nil {
		return nil, err
	}
	return &CreatedObservation{ID: obs.ID, Name: obs.Name, Description: obs.Description}, nil
}

func (s *observationService) createForSolution(ctx context.Context, userID, userToken string, solution *types.Solution, input ObservationInput, claims types.RoleClaims) (*types.Observation, error) {
	if !claims.Empty() {
		if err := s.targeting.ValidateUserRole(ctx, claims, solution.EntityType); err != nil {
			return nil, err
		}
		if s.core != nil {
			if _, err := s.core.SolutionDetailsForRole(ctx, userToken, claims, solution.ID.String()); err != nil {
				s.log.Warn("role-scoped solution view unavailable",
					"solution_id", solution.ID,
					"error", err,
				)
				return nil, apierr.NotRelevant()
			}
		}
	}

	profile := types.UserProfile{}
	if res := s.directory.Profile(ctx, userToken, userID); res.Success {
		profile = res.Profile
	}
	if !claims.Empty() {
		reconciled, mismatch := s.reconciler.Reconcile(ctx, profile, claims)
		if mismatch {
			profile = reconciled
			if err := s.solutions.AddReportInformation(ctx, solution.ID, profile); err != nil {
				s.log.Warn("report information update failed",
					"solution_id", solution.ID,
					"error", err,
				)
			}
		}
	}

	entities := []string{}
	if len(input.Entities) > 0 {
		entities = s.resolver.ValidateEntities(ctx, input.Entities, solution.EntityType)
	}

	name := input.Name
	if name == "" {
		name = solution.Name
	}
	description := input.Description
	if description == "" {
		description = solution.Description
	}
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = time.Now()
	}
	endDate := input.EndDate
	if endDate.IsZero() {
		if solution.EndDate != nil {
			endDate = *solution.EndDate
		} else {
			endDate = startDate.AddDate(1, 0, 0)
		}
	}

	obs := &types.Observation{
		Name:                name,
		Description:         description,
		SolutionID:          solution.ID,
		SolutionExternalID:  solution.ExternalID,
		ProgramID:           solution.ProgramID,
		ProgramExternalID:   solution.ProgramExternalID,
		FrameworkID:         solution.FrameworkID,
		FrameworkExternalID: solution.FrameworkExternalID,
		EntityType:          solution.EntityType,
		Entities:            datatypes.NewJSONSlice(entities),
		Status:              types.StatusPublished,
		StartDate:           startDate,
		EndDate:             endDate,
		CreatedBy:           userID,
		UpdatedBy:           userID,
		IsAPrivateProgram:   solution.IsAPrivateProgram,
		ReferenceFrom:       input.ReferenceFrom,
		ProjectID:           input.ProjectID,
		Link:                solution.Link,
		RoleInformation:     datatypes.NewJSONType(claims),
		UserProfile:         datatypes.NewJSONType(profile),
	}
	return s.obsRepo.Create(ctx, nil, obs)
}

func (s *observationService) BulkCreate(ctx context.Context, userID, solutionExternalID string, entity types.Entity) (*BulkCreateResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Invalid("user id required")
	}
	if strings.TrimSpace(solutionExternalID) == "" {
		return nil, apierr.Invalid("solution external id required")
	}
	if strings.TrimSpace(entity.ID) == "" {
		return nil, apierr.Invalid("entity id required")
	}

	solution, err := s.solutions.GetByExternalID(ctx, solutionExternalID)
	if err != nil {
		return nil, err
	}
	if solution == nil {
		return nil, apierr.NotFound("solution %s not found", solutionExternalID)
	}

	// A mismatched entity type only controls whether the entity id is
	// enrolled; the observation itself is still created for the user.
	typeMismatch := entity.Type != "" && solution.EntityType != "" && !strings.EqualFold(entity.Type, solution.EntityType)

	existing, err := s.obsRepo.GetPublishedBySolutionExternalID(ctx, nil, solutionExternalID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if typeMismatch {
			return &BulkCreateResult{Status: BulkStatusInvalidEntityType}, nil
		}
		if err := s.obsRepo.AddEntities(ctx, nil, existing.ID, []string{entity.ID}); err != nil {
			return nil, err
		}
		return &BulkCreateResult{ObservationID: existing.ID, Status: BulkStatusUpdated}, nil
	}

	entities := []string{entity.ID}
	if typeMismatch {
		entities = []string{}
	}

	now := time.Now()
	obs, err := s.obsRepo.Create(ctx, nil, &types.Observation{
		Name:                solution.Name,
		Description:         solution.Description,
		SolutionID:          solution.ID,
		SolutionExternalID:  solution.ExternalID,
		ProgramID:           solution.ProgramID,
		ProgramExternalID:   solution.ProgramExternalID,
		FrameworkID:         solution.FrameworkID,
		FrameworkExternalID: solution.FrameworkExternalID,
		EntityType:          solution.EntityType,
		Entities:            datatypes.NewJSONSlice(entities),
		Status:              types.StatusPublished,
		StartDate:           now,
		EndDate:             now.AddDate(1, 0, 0),
		CreatedBy:           userID,
		UpdatedBy:           userID,
		IsAPrivateProgram:   solution.IsAPrivateProgram,
		Link:                solution.Link,
	})
	if err != nil {
		return nil, err
	}

	s.notifyMapping(ctx, userID, solution, obs)
	return &BulkCreateResult{ObservationID: obs.ID, Status: BulkStatusCreated}, nil
}

// notifyMapping is best effort; a queue failure never rolls back creation.
func (s *observationService) notifyMapping(ctx context.Context, userID string, solution *types.Solution, obs *types.Observation) {
	if s.notifier == nil {
		return
	}
	msg := redis.NotificationMessage{
		UserID:        userID,
		Internal:      true,
		Text:          "A new observation is available",
		Type:          "information",
		Action:        "mapping",
		Title:         "New Observation",
		CreatedAt:     time.Now(),
		AppType:       envutil.String("NOTIFICATION_APP_TYPE", "assessment"),
		SolutionType:  solution.SubType,
		SolutionID:    solution.ID.String(),
		ObservationID: obs.ID.String(),
	}
	if err := s.notifier.Enqueue(ctx, msg); err != nil {
		s.log.Warn("mapping notification enqueue failed",
			"observation_id", obs.ID,
			"error", err,
		)
	}
}

// ---------- listing ----------

func (s *observationService) ListV1(ctx context.Context, userID string) ([]ObservationListItem, error) {
	return s.list(ctx, userID, false)
}

func (s *observationService) ListV2(ctx context.Context, userID string) ([]ObservationListItem, error) {
	return s.list(ctx, userID, true)
}

func (s *observationService) list(ctx context.Context, userID string, newestFirst bool) ([]ObservationListItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Invalid("user id required")
	}

	observations, err := s.obsRepo.ListActiveByCreator(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	var allEntityIDs []string
	for _, obs := range observations {
		allEntityIDs = append(allEntityIDs, obs.Entities...)
	}
	names := s.entityIndex(ctx, allEntityIDs)

	items := make([]ObservationListItem, 0, len(observations))
	for _, obs := range observations {
		submissions, err := s.subRepo.ListForObservation(ctx, nil, obs.ID, obs.Entities, newestFirst)
		if err != nil {
			return nil, err
		}
		byEntity := map[string][]SubmissionSummary{}
		for _, sub := range submissions {
			byEntity[sub.EntityID] = append(byEntity[sub.EntityID], toSubmissionSummary(sub))
		}

		entities := make([]ListedEntity, 0, len(obs.Entities))
		for _, entityID := range obs.Entities {
			subs := byEntity[entityID]
			status := StatusPending
			if len(subs) > 0 {
				status = subs[0].Status
			}
			entry := ListedEntity{
				ID:          entityID,
				Status:      status,
				Submissions: subs,
			}
			if e, ok := names[entityID]; ok {
				entry.Name = e.Name
				entry.ExternalID = e.Code
			}
			entities = append(entities, entry)
		}

		items = append(items, ObservationListItem{
			ID:          obs.ID,
			Name:        obs.Name,
			Description: obs.Description,
			EntityType:  obs.EntityType,
			Status:      obs.Status,
			Entities:    entities,
		})
	}
	return items, nil
}

func (s *observationService) Details(ctx context.Context, userID string, observationID, solutionID *uuid.UUID) (*ObservationDetails, error) {
	var obs *types.Observation
	var err error
	switch {
	case observationID != nil:
		obs, err = s.obsRepo.GetByID(ctx, nil, *observationID)
	case solutionID != nil:
		obs, err = s.obsRepo.GetBySolutionAndCreator(ctx, nil, *solutionID, userID)
	default:
		return nil, apierr.Invalid("observation id or solution id required")
	}
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, apierr.NotFound("observation not found")
	}

	details := &ObservationDetails{Observation: obs, Entities: []types.Entity{}}

	// Directory failure degrades to an empty entity list, never an error.
	if len(obs.Entities) > 0 {
		if entities, resolveErr := s.resolver.ListByLocationIDs(ctx, obs.Entities); resolveErr == nil {
			details.Entities = entities
			details.EntityCount = len(entities)
		}
	}

	if obs.ProgramID != nil {
		if programs, progErr := s.programs.GetByIDs(ctx, []uuid.UUID{*obs.ProgramID}); progErr == nil && len(programs) > 0 {
			details.Program = programs[0]
		}
	}
	return details, nil
}

// ---------- shareable links ----------

func (s *observationService) GetObservationLink(ctx context.Context, solutionExternalID, appName string) (string, error) {
	if strings.TrimSpace(solutionExternalID) == "" {
		return "", apierr.Invalid("solution external id required")
	}
	if strings.TrimSpace(appName) == "" {
		return "", apierr.Invalid("app name required")
	}

	solution, err := s.solutions.GetObservationByExternalID(ctx, solutionExternalID)
	if err != nil {
		return "", err
	}
	if solution == nil {
		return "", apierr.NotFound("solution %s not found", solutionExternalID)
	}

	if solution.Link == "" {
		link := strings.ReplaceAll(uuid.NewString(), "-", "")
		if err := s.solutions.Update(ctx, solution.ID, map[string]interface{}{"link": link}); err != nil {
			return "", err
		}
		solution.Link = link
	}

	base := envutil.String("APP_PORTAL_BASE_URL", "")
	if s.core != nil {
		if app, appErr := s.core.AppDetails(ctx, appName); appErr == nil && app.BaseURL != "" {
			base = app.BaseURL
		}
	}
	if base == "" {
		return "", apierr.NotFound("app %s not found", appName)
	}

	return strings.TrimRight(base, "/") + "/" + appName + "/create-observation/" + solution.Link, nil
}

func (s *observationService) VerifyLink(ctx context.Context, req VerifyLinkRequest) (*VerifyLinkResult, error) {
	if strings.TrimSpace(req.Link) == "" {
		return nil, apierr.Invalid("link required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apierr.Invalid("user id required")
	}

	solution, err := s.solutions.GetObservationByLink(ctx, req.Link, true)
	if err != nil {
		return nil, err
	}
	if solution == nil {
		return nil, apierr.NotFound("invalid link")
	}

	if s.linkExpired(ctx, solution) {
		return &VerifyLinkResult{Expired: true}, nil
	}

	obs, err := s.obsRepo.GetBySolutionAndCreator(ctx, nil, solution.ID, req.UserID)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		obs, err = s.provisionFromLink(ctx, solution, req)
		if err != nil {
			return nil, err
		}
	}
	return &VerifyLinkResult{Observation: obs}, nil
}

// linkExpired reports whether the solution's window elapsed and deactivates
// the solution on first detection. Repeated verification of an expired link
// stays expired without further writes.
func (s *observationService) linkExpired(ctx context.Context, solution *types.Solution) bool {
	if solution.Status == types.SolutionStatusInactive {
		return true
	}
	if solution.EndDate == nil || time.Now().Before(*solution.EndDate) {
		return false
	}
	if err := s.solutions.Update(ctx, solution.ID, map[string]interface{}{"status": types.SolutionStatusInactive}); err != nil {
		s.log.Warn("link expiry deactivation failed",
			"solution_id", solution.ID,
			"error", err,
		)
	}
	return true
}

// provisionFromLink creates the first observation for a user visiting a
// shared link: entities come from the supplied registry codes, falling back
// to the user's directory locations, filtered to the solution's sub-type.
func (s *observationService) provisionFromLink(ctx context.Context, solution *types.Solution, req VerifyLinkRequest) (*types.Observation, error) {
	wantType := solution.SubType
	if wantType == "" {
		wantType = solution.EntityType
	}

	var candidates []types.Entity
	if len(req.RegistryCodes) > 0 {
		if resolved, err := s.resolver.ListByLocationIDs(ctx, req.RegistryCodes); err == nil {
			candidates = resolved
		}
	}
	if len(candidates) == 0 {
		if res := s.directory.Profile(ctx, req.UserToken, req.UserID); res.Success {
			for _, loc := range res.Profile.UserLocations {
				candidates = append(candidates, types.Entity{
					ID:   loc.ID,
					Code: loc.Code,
					Name: loc.Name,
					Type: loc.Type,
				})
			}
		}
	}

	var entityIDs []string
	seen := map[string]bool{}
	for _, e := range candidates {
		if wantType != "" && !strings.EqualFold(e.Type, wantType) {
			continue
		}
		id := e.ID
		if id == "" {
			id = e.Code
		}
		if id != "" && !seen[id] {
			entityIDs = append(entityIDs, id)
			seen[id] = true
		}
	}

	obs, err := s.createForSolution(ctx, req.UserID, req.UserToken, solution, ObservationInput{Entities: entityIDs}, req.Claims)
	if err != nil {
		return nil, err
	}
	// Link provisioning trusts the pre-filtered candidates; re-validation
	// through the resolver may have dropped codes the directory cannot
	// address by id. Restore the filtered set verbatim.
	if len(entityIDs) > 0 && len(obs.Entities) != len(entityIDs) {
		if _, updErr := s.obsRepo.Update(ctx, nil, obs.ID, map[string]interface{}{
			"entities": datatypes.NewJSONSlice(entityIDs),
		}); updErr == nil {
			obs.Entities = datatypes.NewJSONSlice(entityIDs)
		}
	}
	return obs, nil
}

// ---------- entity management ----------

func (s *observationService) ListEntities(ctx context.Context, req EntityListRequest) (*EntityList, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apierr.Invalid("user id required")
	}

	var obs *types.Observation
	var err error
	switch {
	case req.ObservationID != nil:
		obs, err = s.obsRepo.GetByID(ctx, nil, *req.ObservationID)
	case req.SolutionID != nil:
		obs, err = s.obsRepo.GetBySolutionAndCreator(ctx, nil, *req.SolutionID, req.UserID)
	default:
		return nil, apierr.Invalid("observation id or solution id required")
	}
	if err != nil {
		return nil, err
	}

	// First visit against a solution lazily provisions the observation.
	if obs == nil && req.SolutionID != nil {
		solution, solErr := s.solutions.GetByID(ctx, *req.SolutionID)
		if solErr != nil {
			return nil, solErr
		}
		if solution == nil {
			return nil, apierr.NotFound("solution %s not found", *req.SolutionID)
		}
		// First visit enrolls the user's own location for the solution's
		// entity level, when the claims carry one.
		input := ObservationInput{}
		if value := claimedLocation(req.Claims, solution.EntityType); value != "" {
			input.Entities = []string{value}
		}
		obs, err = s.createForSolution(ctx, req.UserID, req.UserToken, solution, input, req.Claims)
		if err != nil {
			return nil, err
		}
	}
	if obs == nil {
		return nil, apierr.NotFound("observation not found")
	}

	names := s.entityIndex(ctx, obs.Entities)

	entities := make([]EntityListItem, 0, len(obs.Entities))
	for _, entityID := range obs.Entities {
		subs, subErr := s.subRepo.ListForEntity(ctx, nil, obs.ID, entityID)
		if subErr != nil {
			return nil, subErr
		}
		item := EntityListItem{ID: entityID, SubmissionsCount: len(subs)}
		if len(subs) == 1 {
			item.SubmissionID = &subs[0].ID
		}
		if e, ok := names[entityID]; ok {
			item.Name = e.Name
			item.ExternalID = e.Code
		}
		entities = append(entities, item)
	}

	return &EntityList{
		ObservationID: obs.ID,
		EntityType:    obs.EntityType,
		Entities:      entities,
	}, nil
}

func (s *observationService) AddEntity(ctx context.Context, observationID uuid.UUID, userID string, entityIDs []string) (string, error) {
	if len(entityIDs) == 0 {
		return "", apierr.Invalid("entity ids required")
	}

	obs, err := s.obsRepo.GetByID(ctx, nil, observationID)
	if err != nil {
		return "", err
	}
	if obs == nil || obs.CreatedBy != userID {
		return "", apierr.NotFound("observation %s not found", observationID)
	}
	if obs.Status != types.StatusPublished {
		return "", apierr.Invalid("observation %s is not published", observationID)
	}

	requested := map[string]bool{}
	for _, id := range entityIDs {
		if id != "" {
			requested[id] = true
		}
	}

	validated := s.resolver.ValidateEntities(ctx, entityIDs, obs.EntityType)
	if len(validated) > 0 {
		if err := s.obsRepo.AddEntities(ctx, nil, obs.ID, validated); err != nil {
			return "", err
		}
	}

	if len(validated) < len(requested) {
		return MessageEntitiesPartiallyUpdated, nil
	}
	return MessageEntitiesUpdated, nil
}

func (s *observationService) RemoveEntity(ctx context.Context, observationID uuid.UUID, userID string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return apierr.Invalid("entity ids required")
	}
	return s.obsRepo.RemoveEntities(ctx, nil, observationID, userID, entityIDs)
}

// ---------- submissions ----------

func (s *observationService) SubmissionStatus(ctx context.Context, userID string, observationID uuid.UUID, entityID string) ([]SubmissionSummary, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, apierr.Invalid("entity id required")
	}

	obs, err := s.obsRepo.GetByID(ctx, nil, observationID)
	if err != nil {
		return nil, err
	}
	if obs == nil || obs.CreatedBy != userID {
		return nil, apierr.NotFound("observation %s not found", observationID)
	}
	if !containsFold(obs.Entities, entityID) {
		return nil, apierr.EntitiesNotFound()
	}

	subs, err := s.subRepo.ListForEntity(ctx, nil, obs.ID, entityID)
	if err != nil {
		return nil, err
	}
	summaries := make([]SubmissionSummary, 0, len(subs))
	for _, sub := range subs {
		summaries = append(summaries, toSubmissionSummary(sub))
	}
	return summaries, nil
}

func (s *observationService) FindSubmission(ctx context.Context, req FindSubmissionRequest) (*types.ObservationSubmission, error) {
	if strings.TrimSpace(req.EntityID) == "" {
		return nil, apierr.Invalid("entity id required")
	}

	obs, err := s.obsRepo.GetByID(ctx, nil, req.ObservationID)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, apierr.NotFound("observation %s not found", req.ObservationID)
	}
	if !containsFold(obs.Entities, req.EntityID) {
		return nil, apierr.EntitiesNotFound()
	}

	submissionNumber := req.SubmissionNumber
	if submissionNumber <= 0 {
		submissionNumber = 1
	}

	info := types.EntityInfo{ExternalID: req.EntityID}
	if e, ok := s.entityIndex(ctx, []string{req.EntityID})[req.EntityID]; ok {
		info = types.EntityInfo{Name: e.Name, ExternalID: e.Code}
	}

	sub, created, err := s.subRepo.FindOrCreate(ctx, nil, &types.ObservationSubmission{
		ObservationID:     obs.ID,
		EntityID:          req.EntityID,
		SubmissionNumber:  submissionNumber,
		SolutionID:        obs.SolutionID,
		ProgramID:         obs.ProgramID,
		Status:            types.StatusStarted,
		EntityInformation: datatypes.NewJSONType(info),
		ReferenceFrom:     obs.ReferenceFrom,
		CreatedBy:         obs.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	if created && s.pusher != nil {
		if pushErr := s.pusher.PushForReporting(ctx, sub.ID.String()); pushErr != nil {
			s.log.Warn("reporting push failed", "submission_id", sub.ID, "error", pushErr)
		}
		if obs.ReferenceFrom == types.ReferenceFromProject {
			if pushErr := s.pusher.PushToImprovement(ctx, sub); pushErr != nil {
				s.log.Warn("improvement push failed", "submission_id", sub.ID, "error", pushErr)
			}
		}
	}
	return sub, nil
}

func (s *observationService) LastSubmissionNumber(ctx context.Context, observationID uuid.UUID, entityID string) (int, error) {
	if strings.TrimSpace(entityID) == "" {
		return 0, apierr.Invalid("entity id required")
	}
	return s.subRepo.LastSubmissionNumber(ctx, nil, observationID, entityID)
}

// ---------- dashboard ----------

func (s *observationService) UserAssigned(ctx context.Context, userID string, filter repos.ListFilter) (*UserAssignedList, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Invalid("user id required")
	}

	observations, count, err := s.obsRepo.ListByCreatorPaged(ctx, nil, userID, filter)
	if err != nil {
		return nil, err
	}

	items := make([]UserAssignedItem, 0, len(observations))
	for _, obs := range observations {
		items = append(items, UserAssignedItem{
			ID:                 obs.ID,
			Name:               obs.Name,
			Description:        obs.Description,
			SolutionID:         obs.SolutionID,
			SolutionExternalID: obs.SolutionExternalID,
			ProgramID:          obs.ProgramID,
			EntityType:         obs.EntityType,
			Status:             obs.Status,
			IsAPrivateProgram:  obs.IsAPrivateProgram,
			CreatedAt:          obs.CreatedAt,
		})
	}
	return &UserAssignedList{Data: items, Count: count}, nil
}

func (s *observationService) Dashboard(ctx context.Context, req DashboardRequest) (*DashboardList, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apierr.Invalid("user id required")
	}

	observations, err := s.obsRepo.ListActiveByCreator(ctx, nil, req.UserID)
	if err != nil {
		return nil, err
	}

	programNames := s.programNameIndex(ctx, observations)

	var merged []DashboardItem
	var skipSolutionIDs []string
	for _, obs := range observations {
		if req.Search != "" && !strings.Contains(strings.ToLower(obs.Name), strings.ToLower(req.Search)) {
			continue
		}
		id := obs.ID
		item := DashboardItem{
			ObservationID:     &id,
			SolutionID:        obs.SolutionID.String(),
			Name:              obs.Name,
			Description:       obs.Description,
			EntityType:        obs.EntityType,
			IsAPrivateProgram: obs.IsAPrivateProgram,
			IsCreator:         true,
		}
		if obs.ProgramID != nil {
			item.ProgramName = programNames[*obs.ProgramID]
		}
		merged = append(merged, item)
		skipSolutionIDs = append(skipSolutionIDs, obs.SolutionID.String())
	}

	// Targeted solutions the user has not acted on yet; degraded, not
	// failed, when the core service is unreachable.
	if s.core != nil && !req.Claims.Empty() {
		targeted, coreErr := s.core.TargetedSolutions(ctx, req.UserToken, req.Claims, types.SolutionTypeObservation, req.Search, skipSolutionIDs)
		if coreErr != nil {
			s.log.Warn("targeted solutions unavailable", "error", coreErr)
		} else {
			for _, sol := range targeted.Data {
				merged = append(merged, DashboardItem{
					SolutionID:        sol.ID,
					Name:              sol.Name,
					Description:       sol.Description,
					ProgramName:       sol.ProgramName,
					EntityType:        sol.EntityType,
					IsAPrivateProgram: sol.IsAPrivateProgram,
				})
			}
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	pageNo := req.PageNo
	if pageNo <= 0 {
		pageNo = 1
	}
	start := pageSize * (pageNo - 1)
	if start > len(merged) {
		start = len(merged)
	}
	end := start + pageSize
	if end > len(merged) {
		end = len(merged)
	}

	return &DashboardList{Data: merged[start:end], Count: len(merged)}, nil
}

// ---------- reporting ----------

func (s *observationService) PendingObservations(ctx context.Context) ([]ReportRow, error) {
	ids, err := s.subRepo.ListIDsByStatusNot(ctx, nil, types.StatusCompleted)
	if err != nil {
		return nil, err
	}
	return s.reportRows(ctx, ids)
}

func (s *observationService) CompletedObservations(ctx context.Context, from, to time.Time) ([]ReportRow, error) {
	if !from.Before(to) {
		return nil, apierr.Invalid("invalid reporting window")
	}
	ids, err := s.subRepo.ListCompletedIDs(ctx, nil, from, to)
	if err != nil {
		return nil, err
	}
	return s.reportRows(ctx, ids)
}

// reportRows fans out over fixed-size chunks; each chunk is an independent
// read so the fan-out needs no coordination beyond the errgroup.
func (s *observationService) reportRows(ctx context.Context, ids []uuid.UUID) ([]ReportRow, error) {
	if len(ids) == 0 {
		return []ReportRow{}, nil
	}

	var chunks [][]uuid.UUID
	for start := 0; start < len(ids); start += reportChunkSize {
		end := start + reportChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}

	results := make([][]ReportRow, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			subs, err := s.subRepo.GetByIDs(gctx, nil, chunk)
			if err != nil {
				return err
			}
			rows := make([]ReportRow, 0, len(subs))
			for _, sub := range subs {
				rows = append(rows, toReportRow(sub))
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flat := make([]ReportRow, 0, len(ids))
	for _, rows := range results {
		flat = append(flat, rows...)
	}
	return flat, nil
}

// ---------- updates ----------

func (s *observationService) UpdateObservation(ctx context.Context, userID string, observationID uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return apierr.Invalid("update body required")
	}

	obs, err := s.obsRepo.GetByID(ctx, nil, observationID)
	if err != nil {
		return err
	}
	if obs == nil || obs.CreatedBy != userID {
		return apierr.NotFound("observation %s not found", observationID)
	}

	updates["updated_by"] = userID
	rows, err := s.obsRepo.Update(ctx, nil, observationID, updates)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apierr.NotFound("observation %s could not be updated", observationID)
	}
	return nil
}

// ---------- helpers ----------

// entityIndex resolves entity ids to directory records, keyed by both id
// and code. Resolution failure yields an empty index.
func (s *observationService) entityIndex(ctx context.Context, entityIDs []string) map[string]types.Entity {
	index := map[string]types.Entity{}
	if len(entityIDs) == 0 {
		return index
	}
	entities, err := s.resolver.ListByLocationIDs(ctx, entityIDs)
	if err != nil {
		return index
	}
	for _, e := range entities {
		if e.ID != "" {
			index[e.ID] = e
		}
		if e.Code != "" {
			index[e.Code] = e
		}
	}
	return index
}

func toSubmissionSummary(sub *types.ObservationSubmission) SubmissionSummary {
	return SubmissionSummary{
		ID:               sub.ID,
		SubmissionNumber: sub.SubmissionNumber,
		Status:           sub.Status,
		CreatedAt:        sub.CreatedAt,
		CompletedDate:    sub.CompletedDate,
	}
}

func toReportRow(sub *types.ObservationSubmission) ReportRow {
	info := sub.EntityInformation.Data()
	name := info.Name
	if name == "" {
		name = info.ExternalID
	}
	if name == "" {
		name = sub.EntityID
	}
	return ReportRow{
		SubmissionID:  sub.ID,
		ObservationID: sub.ObservationID,
		EntityID:      sub.EntityID,
		EntityName:    name,
		UserID:        sub.CreatedBy,
		Status:        sub.Status,
		CreatedAt:     sub.CreatedAt,
		CompletedDate: sub.CompletedDate,
	}
}

// programNameIndex batch-resolves the program names behind a set of
// observations; lookup failure degrades to empty names.
func (s *observationService) programNameIndex(ctx context.Context, observations []*types.Observation) map[uuid.UUID]string {
	names := map[uuid.UUID]string{}
	var ids []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, obs := range observations {
		if obs.ProgramID != nil && !seen[*obs.ProgramID] {
			ids = append(ids, *obs.ProgramID)
			seen[*obs.ProgramID] = true
		}
	}
	if len(ids) == 0 {
		return names
	}
	programs, err := s.programs.GetByIDs(ctx, ids)
	if err != nil {
		return names
	}
	for _, p := range programs {
		names[p.ID] = p.Name
	}
	return names
}

func claimedLocation(claims types.RoleClaims, entityType string) string {
	if entityType == "" {
		return ""
	}
	if value := claims.Locations[entityType]; value != "" {
		return value
	}
	return claims.Locations[strings.ToLower(entityType)]
}

func containsFold(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
