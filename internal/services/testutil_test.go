package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/edusight/observation-service/internal/clients/redis"
	"github.com/edusight/observation-service/internal/clients/sunbird"
	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/repos"
	"github.com/edusight/observation-service/internal/types"
)

// The production schema rides on postgres defaults the sqlite dialect
// cannot express, so tests create the tables directly.
var testSchema = []string{
	`CREATE TABLE observation (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		solution_id TEXT NOT NULL,
		solution_external_id TEXT,
		program_id TEXT,
		program_external_id TEXT,
		framework_id TEXT,
		framework_external_id TEXT,
		entity_type TEXT,
		entities TEXT,
		status TEXT NOT NULL DEFAULT 'published',
		start_date DATETIME,
		end_date DATETIME,
		created_by TEXT NOT NULL,
		updated_by TEXT,
		is_a_private_program NUMERIC NOT NULL DEFAULT 0,
		reference_from TEXT,
		project_id TEXT,
		link TEXT,
		role_information TEXT,
		user_profile TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE observation_submission (
		id TEXT PRIMARY KEY,
		observation_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		submission_number INTEGER NOT NULL DEFAULT 1,
		solution_id TEXT NOT NULL,
		program_id TEXT,
		status TEXT NOT NULL DEFAULT 'started',
		entity_information TEXT,
		reference_from TEXT,
		completed_date DATETIME,
		created_by TEXT,
		is_deleted NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (observation_id, entity_id, submission_number)
	)`,
	`CREATE TABLE solution (
		id TEXT PRIMARY KEY,
		external_id TEXT UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		type TEXT,
		sub_type TEXT,
		is_reusable NUMERIC NOT NULL DEFAULT 0,
		program_id TEXT,
		program_external_id TEXT,
		framework_id TEXT,
		framework_external_id TEXT,
		entity_type TEXT,
		is_a_private_program NUMERIC NOT NULL DEFAULT 0,
		link TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		end_date DATETIME,
		creator TEXT,
		language TEXT,
		allow_multiple_assessments NUMERIC NOT NULL DEFAULT 0,
		license TEXT,
		report_information TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE program (
		id TEXT PRIMARY KEY,
		external_id TEXT UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		is_a_private_program NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE user_role (
		id TEXT PRIMARY KEY,
		code TEXT UNIQUE,
		title TEXT,
		entity_types TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range testSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// --- fakes ---

type fakeDirectory struct {
	entities []types.Entity
	profiles map[string]types.UserProfile
	fail     bool
}

func (d *fakeDirectory) LocationSearch(ctx context.Context, filter sunbird.LocationFilter) sunbird.LocationSearchResult {
	if d.fail {
		return sunbird.LocationSearchResult{}
	}
	want := map[string]bool{}
	for _, id := range filter.IDs {
		want[id] = true
	}
	for _, code := range filter.Codes {
		want[code] = true
	}
	var out []types.Entity
	for _, e := range d.entities {
		if want[e.ID] || (e.Code != "" && want[e.Code]) {
			out = append(out, e)
		}
	}
	return sunbird.LocationSearchResult{Success: true, Data: out, Count: len(out)}
}

func (d *fakeDirectory) Profile(ctx context.Context, bearerToken, userID string) sunbird.ProfileResult {
	if d.fail {
		return sunbird.ProfileResult{}
	}
	profile, ok := d.profiles[userID]
	if !ok {
		return sunbird.ProfileResult{}
	}
	return sunbird.ProfileResult{Success: true, Profile: profile}
}

type fakeUserRoles struct {
	roles map[string]*types.UserRole
}

func (f *fakeUserRoles) GetByCode(ctx context.Context, code string) (*types.UserRole, error) {
	return f.roles[code], nil
}

type fakeHierarchy struct {
	chains map[string][]string
	def    []string
	calls  int
}

func (f *fakeHierarchy) SubEntityTypes(ctx context.Context, stateID string) ([]string, error) {
	f.calls++
	if chain, ok := f.chains[stateID]; ok {
		return chain, nil
	}
	return f.def, nil
}

type fakeCache struct {
	values map[string][]string
	sets   int
}

func (f *fakeCache) GetStrings(ctx context.Context, key string) ([]string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeCache) SetStrings(ctx context.Context, key string, values []string) error {
	if f.values == nil {
		f.values = map[string][]string{}
	}
	f.values[key] = values
	f.sets++
	return nil
}

func (f *fakeCache) Close() error { return nil }

type fakeNotifier struct {
	messages []redis.NotificationMessage
}

func (f *fakeNotifier) Enqueue(ctx context.Context, msg redis.NotificationMessage) error {
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

type fakePusher struct {
	reporting   []string
	improvement []any
}

func (f *fakePusher) PushForReporting(ctx context.Context, submissionID string) error {
	f.reporting = append(f.reporting, submissionID)
	return nil
}

func (f *fakePusher) PushToImprovement(ctx context.Context, payload any) error {
	f.improvement = append(f.improvement, payload)
	return nil
}

func (f *fakePusher) Close() error { return nil }

// countingSolutions wraps the real solution service and counts Update calls.
type countingSolutions struct {
	SolutionService
	updates int
}

func (c *countingSolutions) Update(ctx context.Context, solutionID uuid.UUID, updates map[string]interface{}) error {
	c.updates++
	return c.SolutionService.Update(ctx, solutionID, updates)
}

// --- fixture ---

type fixture struct {
	db        *gorm.DB
	obsRepo   repos.ObservationRepo
	subRepo   repos.SubmissionRepo
	solRepo   repos.SolutionRepo
	solutions *countingSolutions
	directory *fakeDirectory
	notifier  *fakeNotifier
	pusher    *fakePusher
	svc       ObservationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)

	obsRepo := repos.NewObservationRepo(db, log)
	subRepo := repos.NewSubmissionRepo(db, log)
	solRepo := repos.NewSolutionRepo(db, log)
	programRepo := repos.NewProgramRepo(db, log)
	userRoleRepo := repos.NewUserRoleRepo(db, log)

	directory := &fakeDirectory{profiles: map[string]types.UserProfile{}}
	solutions := &countingSolutions{SolutionService: NewSolutionService(db, solRepo, programRepo, log)}
	hierarchy := &fakeHierarchy{def: defaultHierarchy}
	resolver := NewEntityResolver(directory, log)
	targeting := NewRoleTargeting(NewUserRoleService(userRoleRepo, log), hierarchy, directory, &fakeCache{}, log)
	reconciler := NewProfileReconciler(resolver, log)
	notifier := &fakeNotifier{}
	pusher := &fakePusher{}

	svc := NewObservationService(ObservationServiceDeps{
		ObservationRepo: obsRepo,
		SubmissionRepo:  subRepo,
		Solutions:       solutions,
		Programs:        NewProgramService(programRepo, log),
		Resolver:        resolver,
		Targeting:       targeting,
		Reconciler:      reconciler,
		Directory:       directory,
		Notifier:        notifier,
		Pusher:          pusher,
	}, log)

	return &fixture{
		db:        db,
		obsRepo:   obsRepo,
		subRepo:   subRepo,
		solRepo:   solRepo,
		solutions: solutions,
		directory: directory,
		notifier:  notifier,
		pusher:    pusher,
		svc:       svc,
	}
}

func (f *fixture) seedSolution(t *testing.T, sol *types.Solution) *types.Solution {
	t.Helper()
	created, err := f.solRepo.Create(context.Background(), nil, sol)
	if err != nil {
		t.Fatalf("seed solution: %v", err)
	}
	return created
}
