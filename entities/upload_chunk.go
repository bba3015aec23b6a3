package entities

import (
	"time"

	"github.com/google/uuid"
)

// UploadChunk is one received chunk of an upload session. The unique index
// on (session_id, chunk_index) gives the received set its set semantics:
// a duplicate append upserts the row instead of adding a second one.
type UploadChunk struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	SessionId  uuid.UUID `json:"session_id" gorm:"type:uuid;not null;uniqueIndex:uniq_upload_chunks_session_index"`
	ChunkIndex int       `json:"chunk_index" gorm:"not null;uniqueIndex:uniq_upload_chunks_session_index"`
	Location   string    `json:"location" gorm:"type:varchar(500);not null"`
	SizeBytes  int64     `json:"size_bytes" gorm:"type:bigint;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (UploadChunk) TableName() string {
	return "upload_chunks"
}
