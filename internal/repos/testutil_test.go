package repos

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/edusight/observation-service/internal/platform/logger"
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
	// A named shared in-memory database keeps the schema visible across
	// the pool's connections, one database per test.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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
