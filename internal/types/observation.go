package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPublished = "published"
	StatusCompleted = "completed"
	StatusInactive  = "inactive"
	StatusStarted   = "started"

	SolutionStatusActive   = "active"
	SolutionStatusInactive = "inactive"

	SolutionTypeObservation = "observation"

	ReferenceFromProject = "project"
)

type Observation struct {
	ID                  uuid.UUID                       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name                string                          `gorm:"column:name;not null" json:"name"`
	Description         string                          `gorm:"column:description" json:"description"`
	SolutionID          uuid.UUID                       `gorm:"type:uuid;not null;index" json:"solution_id"`
	SolutionExternalID  string                          `gorm:"column:solution_external_id;index" json:"solution_external_id"`
	ProgramID           *uuid.UUID                      `gorm:"type:uuid;index" json:"program_id,omitempty"`
	ProgramExternalID   string                          `gorm:"column:program_external_id" json:"program_external_id"`
	FrameworkID         *uuid.UUID                      `gorm:"type:uuid" json:"framework_id,omitempty"`
	FrameworkExternalID string                          `gorm:"column:framework_external_id" json:"framework_external_id"`
	EntityType          string                          `gorm:"column:entity_type" json:"entity_type"`
	Entities            datatypes.JSONSlice[string]     `gorm:"column:entities;type:jsonb" json:"entities"`
	Status              string                          `gorm:"column:status;not null;default:published;index" json:"status"`
	StartDate           time.Time                       `gorm:"column:start_date" json:"start_date"`
	EndDate             time.Time                       `gorm:"column:end_date" json:"end_date"`
	CreatedBy           string                          `gorm:"column:created_by;not null;index" json:"created_by"`
	UpdatedBy           string                          `gorm:"column:updated_by" json:"updated_by"`
	IsAPrivateProgram   bool                            `gorm:"column:is_a_private_program;not null;default:false" json:"is_a_private_program"`
	ReferenceFrom       string                          `gorm:"column:reference_from" json:"reference_from,omitempty"`
	ProjectID           string                          `gorm:"column:project_id" json:"project_id,omitempty"`
	Link                string                          `gorm:"column:link;index" json:"link,omitempty"`
	RoleInformation     datatypes.JSONType[RoleClaims]  `gorm:"column:role_information;type:jsonb" json:"role_information"`
	UserProfile         datatypes.JSONType[UserProfile] `gorm:"column:user_profile;type:jsonb" json:"user_profile"`
	CreatedAt           time.Time                       `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time                       `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt           gorm.DeletedAt                  `gorm:"index" json:"deleted_at,omitempty"`
}

func (Observation) TableName() string { return "observation" }
