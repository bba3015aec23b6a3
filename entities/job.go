package entities

import (
	"time"

	"github.com/google/uuid"
	"recording-service/constant"
)

// Job is the durable record of one finalization work item. Reason is set
// when the job terminates as CANCELLED; Attempts counts retryable failures.
type Job struct {
	ID           uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	CallRecordId uuid.UUID          `json:"call_record_id" gorm:"type:uuid;not null;index:idx_jobs_call_record"`
	JobType      constant.JobType   `json:"job_type" gorm:"type:varchar(30);not null"`
	Status       constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	Reason       string             `json:"reason" gorm:"type:varchar(100)"`
	Attempts     int                `json:"attempts" gorm:"not null;default:0"`
	CreatedAt    time.Time          `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time          `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Job) TableName() string {
	return "jobs"
}
