package entities

import (
	"time"

	"github.com/google/uuid"
	"recording-service/constant"
)

// CallRecord is one logged call attempt. RecordingLocation is single
// assignment: it is set exactly once when ingestion finalizes and is never
// overwritten.
type CallRecord struct {
	ID                uuid.UUID            `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	LeadId            uuid.UUID            `json:"lead_id" gorm:"type:uuid;not null;index:idx_call_records_lead_id"`
	AgentId           uuid.UUID            `json:"agent_id" gorm:"type:uuid;not null;index:idx_call_records_agent_id"`
	Outcome           constant.CallOutcome `json:"outcome" gorm:"type:varchar(20);not null"`
	DurationSeconds   *int                 `json:"duration_seconds" gorm:"type:integer"`
	RecordingLocation *string              `json:"recording_location" gorm:"type:varchar(500)"`
	CreatedAt         time.Time            `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time            `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

func (r *CallRecord) HasRecording() bool {
	return r.RecordingLocation != nil && *r.RecordingLocation != ""
}
