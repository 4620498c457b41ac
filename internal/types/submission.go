package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EntityInfo is the display snapshot captured on a submission so reporting
// does not depend on later directory edits.
type EntityInfo struct {
	Name       string `json:"name,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
}

type ObservationSubmission struct {
	ID                uuid.UUID                      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ObservationID     uuid.UUID                      `gorm:"type:uuid;not null;index:idx_submission_tuple,unique" json:"observation_id"`
	EntityID          string                         `gorm:"column:entity_id;not null;index:idx_submission_tuple,unique" json:"entity_id"`
	SubmissionNumber  int                            `gorm:"column:submission_number;not null;default:1;index:idx_submission_tuple,unique" json:"submission_number"`
	SolutionID        uuid.UUID                      `gorm:"type:uuid;not null;index" json:"solution_id"`
	ProgramID         *uuid.UUID                     `gorm:"type:uuid" json:"program_id,omitempty"`
	Status            string                         `gorm:"column:status;not null;default:started;index" json:"status"`
	EntityInformation datatypes.JSONType[EntityInfo] `gorm:"column:entity_information;type:jsonb" json:"entity_information"`
	ReferenceFrom     string                         `gorm:"column:reference_from" json:"reference_from,omitempty"`
	CompletedDate     *time.Time                     `gorm:"column:completed_date" json:"completed_date,omitempty"`
	CreatedBy         string                         `gorm:"column:created_by;index" json:"created_by"`
	IsDeleted         bool                           `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`
	CreatedAt         time.Time                      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time                      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ObservationSubmission) TableName() string { return "observation_submission" }
