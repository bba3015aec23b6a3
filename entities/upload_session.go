package entities

import (
	"time"

	"github.com/google/uuid"
)

// UploadSession tracks one chunked upload in progress. The received chunk
// set lives in upload_chunks; the session row is deleted by finalize or
// cancel. UpdatedAt is bumped on every append so idle sessions can be
// reclaimed.
type UploadSession struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	CallRecordId   uuid.UUID `json:"call_record_id" gorm:"type:uuid;not null;index:idx_upload_sessions_call_record"`
	ExpectedChunks int       `json:"expected_chunks" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (UploadSession) TableName() string {
	return "upload_sessions"
}
