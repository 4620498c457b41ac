package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Solution struct {
	ID                       uuid.UUID                       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ExternalID               string                          `gorm:"column:external_id;uniqueIndex" json:"external_id"`
	Name                     string                          `gorm:"column:name;not null" json:"name"`
	Description              string                          `gorm:"column:description" json:"description"`
	Type                     string                          `gorm:"column:type;index" json:"type"`
	SubType                  string                          `gorm:"column:sub_type" json:"sub_type"`
	IsReusable               bool                            `gorm:"column:is_reusable;not null;default:false" json:"is_reusable"`
	ProgramID                *uuid.UUID                      `gorm:"type:uuid;index" json:"program_id,omitempty"`
	ProgramExternalID        string                          `gorm:"column:program_external_id" json:"program_external_id"`
	FrameworkID              *uuid.UUID                      `gorm:"type:uuid" json:"framework_id,omitempty"`
	FrameworkExternalID      string                          `gorm:"column:framework_external_id" json:"framework_external_id"`
	EntityType               string                          `gorm:"column:entity_type" json:"entity_type"`
	IsAPrivateProgram        bool                            `gorm:"column:is_a_private_program;not null;default:false" json:"is_a_private_program"`
	Link                     string                          `gorm:"column:link;index" json:"link,omitempty"`
	Status                   string                          `gorm:"column:status;not null;default:active" json:"status"`
	EndDate                  *time.Time                      `gorm:"column:end_date" json:"end_date,omitempty"`
	Creator                  string                          `gorm:"column:creator" json:"creator,omitempty"`
	Language                 datatypes.JSONSlice[string]     `gorm:"column:language;type:jsonb" json:"language"`
	AllowMultipleAssessments bool                            `gorm:"column:allow_multiple_assessments;not null;default:false" json:"allow_multiple_assessments"`
	License                  string                          `gorm:"column:license" json:"license,omitempty"`
	ReportInformation        datatypes.JSONType[UserProfile] `gorm:"column:report_information;type:jsonb" json:"report_information"`
	CreatedAt                time.Time                       `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt                time.Time                       `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt                gorm.DeletedAt                  `gorm:"index" json:"deleted_at,omitempty"`
}

func (Solution) TableName() string { return "solution" }

type Program struct {
	ID                uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ExternalID        string    `gorm:"column:external_id;uniqueIndex" json:"external_id"`
	Name              string    `gorm:"column:name;not null" json:"name"`
	Description       string    `gorm:"column:description" json:"description"`
	IsAPrivateProgram bool      `gorm:"column:is_a_private_program;not null;default:false" json:"is_a_private_program"`
	CreatedAt         time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Program) TableName() string { return "program" }

type UserRole struct {
	ID          uuid.UUID                   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Code        string                      `gorm:"column:code;uniqueIndex" json:"code"`
	Title       string                      `gorm:"column:title" json:"title"`
	EntityTypes datatypes.JSONSlice[string] `gorm:"column:entity_types;type:jsonb" json:"entity_types"`
	CreatedAt   time.Time                   `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserRole) TableName() string { return "user_role" }
